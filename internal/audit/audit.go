package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ZanzyTHEbar/chain-sentinel/internal/risk"
)

// Entry is one persisted verdict.
type Entry struct {
	ID              string             `json:"id"`
	ScanType        string             `json:"scan_type"`
	ChainID         int64              `json:"chain_id"`
	Target          string             `json:"target"`
	From            string             `json:"from,omitempty"`
	Probability     float64            `json:"probability"`
	RiskLevel       risk.RiskLevel     `json:"risk_level"`
	Archetype       risk.Archetype     `json:"archetype"`
	Confidence      float64            `json:"confidence"`
	Decision        string             `json:"decision"`
	PolicyMode      string             `json:"policy_mode,omitempty"`
	PolicyOverride  string             `json:"policy_override,omitempty"`
	CriticalFlags   []string           `json:"critical_flags"`
	FailedAnalyzers []string           `json:"failed_analyzers,omitempty"`
	CategoryScores  map[string]float64 `json:"category_scores,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
}

// NewEntry snapshots a verdict for the audit trail.
func NewEntry(scanType string, actx risk.AnalysisContext, out risk.RiskOutput, decision string) Entry {
	out = out.Clone()
	return Entry{
		ID:              uuid.New().String(),
		ScanType:        scanType,
		ChainID:         actx.ChainID,
		Target:          actx.Target,
		From:            actx.From,
		Probability:     out.Probability,
		RiskLevel:       out.RiskLevel,
		Archetype:       out.Archetype,
		Confidence:      out.Confidence,
		Decision:        decision,
		PolicyMode:      out.PolicyMode,
		PolicyOverride:  out.PolicyOverride,
		CriticalFlags:   out.CriticalFlags,
		FailedAnalyzers: out.FailedAnalyzers,
		CategoryScores:  out.CategoryScores,
		CreatedAt:       time.Now().UTC(),
	}
}

// Recorder persists entries.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ctx context.Context, e Entry) error

func (f RecorderFunc) Record(ctx context.Context, e Entry) error { return f(ctx, e) }

// Nop discards entries.
var Nop Recorder = RecorderFunc(func(context.Context, Entry) error { return nil })
