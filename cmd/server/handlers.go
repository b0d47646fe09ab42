package main

import (
	stderrors "errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ZanzyTHEbar/chain-sentinel/internal/audit"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/calibration"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/errors"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/risk"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/security"
	"github.com/ZanzyTHEbar/chain-sentinel/internal/types"
)

// handleScanToken godoc
// @Summary      Score a token contract
// @Tags         scan
// @Accept       json
// @Produce      json
// @Param        request  body      types.TokenScanRequest  true  "Token"
// @Success      200      {object}  scanner.Verdict
// @Failure      400      {object}  map[string]interface{}
// @Failure      429      {object}  map[string]interface{}
// @Router       /v1/scan/token [post]
func (a *app) handleScanToken(c *gin.Context) {
	var req types.TokenScanRequest
	if !bind(c, &req) {
		return
	}

	v, err := a.scanner.ScanToken(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// handleScanTransaction godoc
// @Summary      Score a transaction before it is signed
// @Tags         firewall
// @Accept       json
// @Produce      json
// @Param        request  body      types.TransactionScanRequest  true  "Transaction"
// @Success      200      {object}  scanner.Verdict
// @Failure      400      {object}  map[string]interface{}
// @Router       /v1/firewall/transaction [post]
func (a *app) handleScanTransaction(c *gin.Context) {
	var req types.TransactionScanRequest
	if !bind(c, &req) {
		return
	}
	if err := a.security.ValidateHexData(req.Data); err != nil {
		c.Error(errors.NewValidationError("data: "+err.Error(), "data"))
		return
	}
	if err := a.security.ValidateLabel(req.FunctionName); err != nil {
		c.Error(errors.NewValidationError("function_name: "+err.Error(), "function_name"))
		return
	}

	v, err := a.scanner.ScanTransaction(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// handleScanSignature godoc
// @Summary      Score an EIP-712 signature request
// @Tags         firewall
// @Accept       json
// @Produce      json
// @Param        request  body      types.SignatureScanRequest  true  "Typed data"
// @Success      200      {object}  scanner.Verdict
// @Failure      400      {object}  map[string]interface{}
// @Router       /v1/firewall/signature [post]
func (a *app) handleScanSignature(c *gin.Context) {
	var req types.SignatureScanRequest
	if !bind(c, &req) {
		return
	}

	v, err := a.scanner.ScanSignature(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// handleRecordOutcome godoc
// @Summary      Label a scanned target for calibration
// @Tags         admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      types.OutcomeRequest  true  "Outcome"
// @Success      201      {object}  audit.Outcome
// @Failure      401      {object}  map[string]interface{}
// @Failure      404      {object}  map[string]interface{}
// @Router       /v1/outcomes [post]
func (a *app) handleRecordOutcome(c *gin.Context) {
	var req types.OutcomeRequest
	if !bind(c, &req) {
		return
	}
	if err := a.security.ValidateAddress(req.Target); err != nil {
		c.Error(errors.NewValidationError("target: "+err.Error(), "target"))
		return
	}
	label, err := calibration.ParseLabel(req.Label)
	if err != nil {
		c.Error(errors.NewValidationError(err.Error(), "label"))
		return
	}
	chainID := req.ChainID
	if chainID == 0 {
		chainID = risk.DefaultChainID
	}
	source := req.Source
	if source == "" {
		source = security.AdminSubject(c)
	}

	out, err := a.audit.RecordOutcome(c.Request.Context(), audit.Outcome{
		ChainID: chainID,
		Target:  req.Target,
		Label:   label,
		Source:  source,
	})
	if stderrors.Is(err, audit.ErrNotFound) {
		c.Error(errors.NewNotFoundError("no scan recorded for target", err))
		return
	}
	if err != nil {
		c.Error(errors.NewInternalError("record outcome", err))
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (a *app) handleRecentAudit(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	entries, err := a.audit.Recent(c.Request.Context(), limit)
	if err != nil {
		c.Error(errors.NewInternalError("list audit entries", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

func (a *app) handleGetAudit(c *gin.Context) {
	e, err := a.audit.Get(c.Request.Context(), c.Param("id"))
	if stderrors.Is(err, audit.ErrNotFound) {
		c.Error(errors.NewNotFoundError("audit entry not found", err))
		return
	}
	if err != nil {
		c.Error(errors.NewInternalError("load audit entry", err))
		return
	}
	c.JSON(http.StatusOK, e)
}

func (a *app) handleCalibration(c *gin.Context) {
	c.JSON(http.StatusOK, a.scanner.Engine().Calibration())
}

func bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.Error(errors.NewValidationError("invalid request body", err.Error()))
		return false
	}
	return true
}
