package calibration

import (
	"fmt"
	"math"
)

const (
	DefaultHighThreshold   = 71.0
	DefaultMediumThreshold = 31.0

	// MinSamples is the smallest labeled history Calibrate will learn from.
	MinSamples = 20

	binWidth         = 10.0
	highScamRatio    = 0.80
	mediumScamRatio  = 0.40
	baselineAccuracy = 0.80
	boostScale       = 50.0
	maxBoost         = 10.0
)

// Label is the ground-truth outcome recorded for a scanned target.
type Label string

const (
	LabelSafe Label = "safe"
	LabelScam Label = "scam"
)

// ParseLabel accepts "safe" or "scam".
func ParseLabel(s string) (Label, error) {
	switch Label(s) {
	case LabelSafe, LabelScam:
		return Label(s), nil
	}
	return "", fmt.Errorf("unknown label %q", s)
}

// Sample is a previously computed probability paired with its known outcome.
type Sample struct {
	Score float64 `json:"score"`
	Label Label   `json:"label"`
}

// Config carries the tunable thresholds and adjustments for one scoring run.
// Treat it as an immutable snapshot: the engine copies it at construction.
type Config struct {
	HighThreshold   float64            `json:"high_threshold" yaml:"high_threshold"`
	MediumThreshold float64            `json:"medium_threshold" yaml:"medium_threshold"`
	WeightOverrides map[string]float64 `json:"weight_overrides,omitempty" yaml:"weight_overrides,omitempty"`
	ConfidenceBoost float64            `json:"confidence_boost" yaml:"confidence_boost"`
	SampleCount     int                `json:"sample_count,omitempty" yaml:"sample_count,omitempty"`
}

// DefaultConfig returns the uncalibrated thresholds (HIGH ≥ 71, MEDIUM ≥ 31).
func DefaultConfig() Config {
	return Config{
		HighThreshold:   DefaultHighThreshold,
		MediumThreshold: DefaultMediumThreshold,
	}
}

// Validate checks threshold ordering and ranges.
func (c Config) Validate() error {
	if c.HighThreshold <= 0 || c.HighThreshold > 100 {
		return fmt.Errorf("high threshold %.1f out of range (0,100]", c.HighThreshold)
	}
	if c.MediumThreshold < 0 || c.MediumThreshold >= c.HighThreshold {
		return fmt.Errorf("medium threshold %.1f must be in [0, %.1f)", c.MediumThreshold, c.HighThreshold)
	}
	if c.ConfidenceBoost < 0 || c.ConfidenceBoost > maxBoost {
		return fmt.Errorf("confidence boost %.1f out of range [0,%.0f]", c.ConfidenceBoost, maxBoost)
	}
	for name, w := range c.WeightOverrides {
		if w <= 0 || w > 1 {
			return fmt.Errorf("weight override for %q must be in (0,1], got %v", name, w)
		}
	}
	return nil
}

// Clone returns a deep copy so callers cannot mutate a shared snapshot.
func (c Config) Clone() Config {
	out := c
	if c.WeightOverrides != nil {
		out.WeightOverrides = make(map[string]float64, len(c.WeightOverrides))
		for k, v := range c.WeightOverrides {
			out.WeightOverrides[k] = v
		}
	}
	return out
}

// Calibrate derives thresholds from labeled history. With fewer than
// MinSamples it returns DefaultConfig unchanged.
//
// HIGH is the lowest 10-point boundary, scanning down from 90, at which at
// least 80% of samples scoring at or above it are scams. MEDIUM is the lowest
// boundary below HIGH at which at least 40% of samples in [boundary, HIGH)
// are scams. Both scans stop at the first boundary that fails its rule.
func Calibrate(samples []Sample) Config {
	cfg := DefaultConfig()
	cfg.SampleCount = len(samples)
	if len(samples) < MinSamples {
		return cfg
	}

	high := -1.0
	for t := 90.0; t >= binWidth; t -= binWidth {
		total, scams := countRange(samples, t, math.Inf(1))
		if total == 0 || ratio(scams, total) < highScamRatio {
			break
		}
		high = t
	}
	if high > 0 {
		cfg.HighThreshold = high
	}

	medium := -1.0
	for t := cfg.HighThreshold - binWidth; t >= 0; t -= binWidth {
		total, scams := countRange(samples, t, cfg.HighThreshold)
		if total == 0 || ratio(scams, total) < mediumScamRatio {
			break
		}
		medium = t
	}
	if medium >= 0 {
		cfg.MediumThreshold = medium
	}
	if cfg.MediumThreshold >= cfg.HighThreshold {
		cfg.MediumThreshold = math.Max(cfg.HighThreshold-binWidth, 0)
	}

	acc := accuracy(samples, cfg.HighThreshold)
	cfg.ConfidenceBoost = math.Min(math.Max((acc-baselineAccuracy)*boostScale, 0), maxBoost)
	return cfg
}

func countRange(samples []Sample, lo, hi float64) (total, scams int) {
	for _, s := range samples {
		if s.Score >= lo && s.Score < hi {
			total++
			if s.Label == LabelScam {
				scams++
			}
		}
	}
	return total, scams
}

// accuracy is the fraction of samples the HIGH threshold alone classifies
// correctly (score ≥ high ⇔ scam).
func accuracy(samples []Sample, high float64) float64 {
	correct := 0
	for _, s := range samples {
		predictedScam := s.Score >= high
		if predictedScam == (s.Label == LabelScam) {
			correct++
		}
	}
	return ratio(correct, len(samples))
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}
