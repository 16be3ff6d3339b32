package patterns

import (
	"strings"
	"time"

	"opsmemory/config"
)

// Thresholds holds the heuristic constants of every detector.
type Thresholds struct {
	MinConfidence     float64
	MinEventCount     int
	MaxTimeWindow     time.Duration
	EscalationRatio   float64
	PerformanceBucket time.Duration
	RisingRatio       float64
	MinTrendBuckets   int
	DriftMinChanges   int
	DriftWindow       time.Duration
	CorrelationBucket time.Duration
	CorrelationUnits  int
	AnomalyMinEvents  int
	AnomalyMultiplier float64
	FailureMinEvents  int
	FailureMinSevere  int
	CampaignMinMatch  int
	PolicyKeywords    []string
	PolicyMinMatches  int
}

// DefaultThresholds returns the tuned defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinConfidence:     0.7,
		MinEventCount:     3,
		MaxTimeWindow:     24 * time.Hour,
		EscalationRatio:   0.7,
		PerformanceBucket: 4 * time.Hour,
		RisingRatio:       0.6,
		MinTrendBuckets:   3,
		DriftMinChanges:   3,
		DriftWindow:       2 * time.Hour,
		CorrelationBucket: 30 * time.Minute,
		CorrelationUnits:  2,
		AnomalyMinEvents:  10,
		AnomalyMultiplier: 3,
		FailureMinEvents:  5,
		FailureMinSevere:  2,
		CampaignMinMatch:  2,
		PolicyKeywords:    []string{"blocked", "denied", "violation", "policy", "unauthorized"},
		PolicyMinMatches:  5,
	}
}

// ThresholdsFromConfig overlays non-zero config values on the defaults.
func ThresholdsFromConfig(cfg config.PatternsConfig) Thresholds {
	t := DefaultThresholds()
	if cfg.MinConfidence > 0 {
		t.MinConfidence = cfg.MinConfidence
	}
	if cfg.MinEventCount > 0 {
		t.MinEventCount = cfg.MinEventCount
	}
	if cfg.MaxTimeWindow > 0 {
		t.MaxTimeWindow = cfg.MaxTimeWindow
	}
	if cfg.EscalationRatio > 0 {
		t.EscalationRatio = cfg.EscalationRatio
	}
	if cfg.AnomalyMultiplier > 0 {
		t.AnomalyMultiplier = cfg.AnomalyMultiplier
	}
	if cfg.DriftWindow > 0 {
		t.DriftWindow = cfg.DriftWindow
	}
	if cfg.CampaignMinMatches > 0 {
		t.CampaignMinMatch = cfg.CampaignMinMatches
	}
	if cfg.PolicyMinMatches > 0 {
		t.PolicyMinMatches = cfg.PolicyMinMatches
	}
	if len(cfg.PolicyKeywords) > 0 {
		kws := make([]string, 0, len(cfg.PolicyKeywords))
		for _, kw := range cfg.PolicyKeywords {
			if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
				kws = append(kws, kw)
			}
		}
		t.PolicyKeywords = kws
	}
	return t
}

// withDefaults fills every zero field from DefaultThresholds.
func (t Thresholds) withDefaults() Thresholds {
	d := DefaultThresholds()
	setFloat := func(v *float64, def float64) {
		if *v <= 0 {
			*v = def
		}
	}
	setInt := func(v *int, def int) {
		if *v <= 0 {
			*v = def
		}
	}
	setDur := func(v *time.Duration, def time.Duration) {
		if *v <= 0 {
			*v = def
		}
	}
	setFloat(&t.MinConfidence, d.MinConfidence)
	setInt(&t.MinEventCount, d.MinEventCount)
	setDur(&t.MaxTimeWindow, d.MaxTimeWindow)
	setFloat(&t.EscalationRatio, d.EscalationRatio)
	setDur(&t.PerformanceBucket, d.PerformanceBucket)
	setFloat(&t.RisingRatio, d.RisingRatio)
	setInt(&t.MinTrendBuckets, d.MinTrendBuckets)
	setInt(&t.DriftMinChanges, d.DriftMinChanges)
	setDur(&t.DriftWindow, d.DriftWindow)
	setDur(&t.CorrelationBucket, d.CorrelationBucket)
	setInt(&t.CorrelationUnits, d.CorrelationUnits)
	setInt(&t.AnomalyMinEvents, d.AnomalyMinEvents)
	setFloat(&t.AnomalyMultiplier, d.AnomalyMultiplier)
	setInt(&t.FailureMinEvents, d.FailureMinEvents)
	setInt(&t.FailureMinSevere, d.FailureMinSevere)
	setInt(&t.CampaignMinMatch, d.CampaignMinMatch)
	if len(t.PolicyKeywords) == 0 {
		t.PolicyKeywords = d.PolicyKeywords
	}
	setInt(&t.PolicyMinMatches, d.PolicyMinMatches)
	return t
}
