package voice

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

const (
	maxSuggestions       = 10
	popularSuggestions   = 3
	maxIntentSuggestions = 5
	examplesPerPattern   = 2

	healthySuccessRate  = 0.8
	failingSuccessRate  = 0.7
	leaderSuccessRate   = 0.9
	slowResponseSeconds = 2.0
)

var sectionSuggestions = map[string][]Suggestion{
	"investigation": {
		{Command: "Investigate BWW store 155", Description: "Run comprehensive security analysis", Confidence: 0.9},
		{Command: "Check all stores for security issues", Description: "Multi-store security assessment", Confidence: 0.8},
	},
	"fortianalyzer": {
		{Command: "Search logs for SQL injection", Description: "Advanced log analysis", Confidence: 0.85},
		{Command: "Show security events for last 24 hours", Description: "Recent security overview", Confidence: 0.8},
	},
}

// SuggestCommands proposes up to ten commands: section presets, the most
// used well-performing patterns, then unit-personalized commands.
func (e *Engine) SuggestCommands(sc SuggestContext) []Suggestion {
	out := append([]Suggestion(nil), sectionSuggestions[strings.ToLower(sc.Section)]...)

	for _, p := range e.popular() {
		if len(out) >= maxSuggestions {
			break
		}
		example := p.Regex
		if len(p.Examples) > 0 {
			example = p.Examples[0]
		}
		out = append(out, Suggestion{
			Command:     example,
			Description: fmt.Sprintf("Popular %s command", p.Intent),
			Confidence:  p.SuccessRate,
		})
	}

	if unit := strings.ToUpper(strings.TrimSpace(sc.PreferredUnit)); unit != "" {
		out = append(out,
			Suggestion{
				Command:     fmt.Sprintf("investigate %s store 155", unit),
				Description: fmt.Sprintf("Security analysis for your preferred unit: %s", unit),
				Confidence:  0.8,
			},
			Suggestion{
				Command:     fmt.Sprintf("predict security issues for %s", unit),
				Description: fmt.Sprintf("Predictive analysis for %s", unit),
				Confidence:  0.75,
			},
		)
	}
	if len(out) > maxSuggestions {
		out = out[:maxSuggestions]
	}
	return out
}

// popular returns the top patterns by usage weighted by success rate.
func (e *Engine) popular() []Pattern {
	e.mu.RLock()
	var used []Pattern
	for _, p := range e.patterns {
		if p.UsageCount >= e.opts.MinUsageCount {
			used = append(used, *p)
		}
	}
	e.mu.RUnlock()

	sort.SliceStable(used, func(i, j int) bool {
		return float64(used[i].UsageCount)*used[i].SuccessRate > float64(used[j].UsageCount)*used[j].SuccessRate
	})
	if len(used) > popularSuggestions {
		used = used[:popularSuggestions]
	}
	return used
}

// SuggestionsForIntent lists example phrasings from confident patterns of
// one intent.
func (e *Engine) SuggestionsForIntent(intent Intent) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var out []string
	seen := make(map[string]bool)
	for _, p := range e.patterns {
		if p.Intent != intent || p.Confidence < e.opts.MinPatternConfidence {
			continue
		}
		for i, ex := range p.Examples {
			if i == examplesPerPattern {
				break
			}
			if !seen[ex] {
				seen[ex] = true
				out = append(out, ex)
			}
		}
	}
	if len(out) > maxIntentSuggestions {
		out = out[:maxIntentSuggestions]
	}
	return out
}

// AnalyzeUsage turns the stored 30-day interaction rollup and the current
// pattern table into insights.
func (e *Engine) AnalyzeUsage(ctx context.Context) UsageReport {
	var report UsageReport
	data := e.store.GetVoiceLearningInsights(ctx)
	stats := e.patternStats()
	report.Patterns = stats

	if data.Overall.TotalInteractions > 0 {
		if len(data.TopCommands) > 0 {
			top := data.TopCommands[0]
			var recs []string
			if top.SuccessRate < leaderSuccessRate {
				recs = append(recs, fmt.Sprintf("Improve recognition for '%s' - currently %.1f%% success rate", top.Command, top.SuccessRate*100))
			}
			if len(data.Intents) < len(e.keywords) {
				recs = append(recs, "Consider exploring voice commands for prediction and pattern analysis")
			}
			report.Insights = append(report.Insights, Insight{
				Type:        "command_frequency",
				Description: fmt.Sprintf("Most used command: '%s' (%d times)", top.Command, top.Frequency),
				Metrics: map[string]any{
					"top_commands":       data.TopCommands[:min(5, len(data.TopCommands))],
					"total_interactions": data.Overall.TotalInteractions,
				},
				Recommendations: recs,
				Confidence:      0.9,
			})
		}

		if data.Overall.SuccessRate < healthySuccessRate {
			var failed []string
			for _, c := range data.TopCommands {
				if c.SuccessRate < failingSuccessRate {
					failed = append(failed, c.Command)
				}
			}
			report.Insights = append(report.Insights, Insight{
				Type:        "success_rate",
				Description: fmt.Sprintf("Voice command success rate: %.1f%%", data.Overall.SuccessRate*100),
				Metrics: map[string]any{
					"overall_success_rate": data.Overall.SuccessRate,
					"failed_commands":      failed,
				},
				Recommendations: []string{
					"Review failed commands for pattern improvements",
					"Consider adding command variations",
					"Improve error handling for unclear commands",
				},
				Confidence: 0.85,
			})
		}

		if len(data.Intents) > 0 {
			var recs []string
			for _, it := range data.Intents {
				if it.SuccessRate < failingSuccessRate {
					recs = append(recs, fmt.Sprintf("Improve %s command recognition", it.Intent))
				}
			}
			report.Insights = append(report.Insights, Insight{
				Type:            "intent_distribution",
				Description:     fmt.Sprintf("Most common intent: %s", data.Intents[0].Intent),
				Metrics:         map[string]any{"intent_distribution": data.Intents},
				Recommendations: recs,
				Confidence:      0.8,
			})
		}

		if data.Overall.AvgResponseTime > slowResponseSeconds {
			report.Insights = append(report.Insights, Insight{
				Type:        "performance",
				Description: fmt.Sprintf("Average response time: %.1fs", data.Overall.AvgResponseTime),
				Metrics:     map[string]any{"avg_response_time": data.Overall.AvgResponseTime},
				Recommendations: []string{
					"Optimize command processing pipeline",
					"Cache frequently used responses",
					"Consider command preprocessing",
				},
				Confidence: 0.7,
			})
		}
	}

	if stats.Learned > 0 {
		report.Insights = append(report.Insights, Insight{
			Type:        "pattern_learning",
			Description: fmt.Sprintf("System has learned %d new command patterns", stats.Learned),
			Metrics: map[string]any{
				"learned_patterns": stats.Learned,
				"total_patterns":   stats.Total,
				"avg_success_rate": stats.AvgLearnedSuccess,
			},
			Recommendations: []string{
				"Continue using voice commands to improve recognition",
				"Try variations of commands to expand pattern learning",
			},
			Confidence: 0.8,
		})
	}
	return report
}

func (e *Engine) patternStats() PatternStats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	s := PatternStats{Total: len(e.patterns)}
	sum := 0.0
	for _, p := range e.patterns {
		switch {
		case strings.HasPrefix(p.ID, "learned_"):
			s.Learned++
			sum += p.SuccessRate
		case strings.HasPrefix(p.ID, "correction_"):
			s.Corrections++
		}
	}
	if s.Learned > 0 {
		s.AvgLearnedSuccess = sum / float64(s.Learned)
	}
	return s
}
