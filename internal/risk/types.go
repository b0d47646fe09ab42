package risk

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// DefaultChainID is used when an AnalysisContext carries no chain.
const DefaultChainID int64 = 1

// AnalysisContext is the immutable input to a scan. Analyzers read it and
// never modify it; Extra carries scan-type specific inputs (calldata,
// typed data, claimed function names).
type AnalysisContext struct {
	Target  string         `json:"target"`
	ChainID int64          `json:"chain_id"`
	From    string         `json:"from,omitempty"`
	Extra   map[string]any `json:"extra,omitempty"`
}

// NewAnalysisContext normalises the target address and applies the default chain.
func NewAnalysisContext(target string, chainID int64, from string, extra map[string]any) AnalysisContext {
	if chainID == 0 {
		chainID = DefaultChainID
	}
	return AnalysisContext{
		Target:  strings.TrimSpace(target),
		ChainID: chainID,
		From:    strings.TrimSpace(from),
		Extra:   extra,
	}
}

// ExtraString returns Extra[key] when it is a string.
func (c AnalysisContext) ExtraString(key string) (string, bool) {
	v, ok := c.Extra[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Subject is the address whose reputation matters: the originator when
// known, otherwise the target.
func (c AnalysisContext) Subject() string {
	if c.From != "" {
		return c.From
	}
	return c.Target
}

// AnalyzerResult is what a single analyzer reports. A non-empty Error marks
// the result as failed: its score counts as zero and its flags are ignored.
type AnalyzerResult struct {
	Name   string         `json:"name"`
	Weight float64        `json:"weight"`
	Score  float64        `json:"score"`
	Flags  []string       `json:"flags"`
	Data   map[string]any `json:"data,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// Failed reports whether the analyzer errored.
func (r AnalyzerResult) Failed() bool { return r.Error != "" }

// RiskLevel is the three-bucket classification of a probability.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// Archetype names the dominant failure pattern behind a score.
type Archetype string

const (
	ArchetypeHoneypot         Archetype = "honeypot"
	ArchetypeRugPull          Archetype = "rug_pull"
	ArchetypeWashTraded       Archetype = "wash_traded"
	ArchetypeHighRiskContract Archetype = "high_risk_contract"
	ArchetypeLegitimate       Archetype = "legitimate"
)

// RiskOutput is the composite verdict. The policy fields are only set by the
// policy engine.
type RiskOutput struct {
	Probability    float64            `json:"probability"`
	RiskLevel      RiskLevel          `json:"risk_level"`
	Archetype      Archetype          `json:"archetype"`
	CriticalFlags  []string           `json:"critical_flags"`
	Confidence     float64            `json:"confidence"`
	CategoryScores map[string]float64 `json:"category_scores"`

	PolicyMode      string   `json:"policy_mode,omitempty"`
	PolicyOverride  string   `json:"policy_override,omitempty"`
	HasFailures     bool     `json:"has_failures"`
	FailedAnalyzers []string `json:"failed_analyzers,omitempty"`
}

// Clone deep-copies the output so annotations never alias the original.
func (o RiskOutput) Clone() RiskOutput {
	out := o
	out.CriticalFlags = append([]string(nil), o.CriticalFlags...)
	out.FailedAnalyzers = append([]string(nil), o.FailedAnalyzers...)
	if o.CategoryScores != nil {
		out.CategoryScores = make(map[string]float64, len(o.CategoryScores))
		for k, v := range o.CategoryScores {
			out.CategoryScores[k] = v
		}
	}
	return out
}

// Tristate distinguishes "known false" from "not known". Unknown ownership is
// never penalised.
type Tristate int8

const (
	Unknown Tristate = iota
	True
	False
)

// TristateOf lifts a known boolean.
func TristateOf(b bool) Tristate {
	if b {
		return True
	}
	return False
}

func (t Tristate) String() string {
	switch t {
	case True:
		return "true"
	case False:
		return "false"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes Unknown as null.
func (t Tristate) MarshalJSON() ([]byte, error) {
	switch t {
	case True:
		return []byte("true"), nil
	case False:
		return []byte("false"), nil
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts true, false or null.
func (t *Tristate) UnmarshalJSON(b []byte) error {
	switch string(bytes.TrimSpace(b)) {
	case "true":
		*t = True
	case "false":
		*t = False
	case "null", "":
		*t = Unknown
	default:
		var raw any
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
		return fmt.Errorf("tristate: unexpected value %v", raw)
	}
	return nil
}
