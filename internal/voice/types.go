package voice

import "time"

// Intent is the closed vocabulary of command intents.
type Intent string

const (
	IntentInvestigation     Intent = "investigation"
	IntentNavigation        Intent = "navigation"
	IntentSecurityAnalysis  Intent = "security_analysis"
	IntentPerformanceCheck  Intent = "performance_check"
	IntentSystemControl     Intent = "system_control"
	IntentDataQuery         Intent = "data_query"
	IntentReportGeneration  Intent = "report_generation"
	IntentPredictionRequest Intent = "prediction_request"
	IntentPatternAnalysis   Intent = "pattern_analysis"
	IntentHelpRequest       Intent = "help_request"
)

// Intents lists every intent in keyword-vote tie-break order.
var Intents = []Intent{
	IntentInvestigation,
	IntentNavigation,
	IntentSecurityAnalysis,
	IntentPerformanceCheck,
	IntentSystemControl,
	IntentDataQuery,
	IntentReportGeneration,
	IntentPredictionRequest,
	IntentPatternAnalysis,
	IntentHelpRequest,
}

// Valid reports whether i is a known intent.
func (i Intent) Valid() bool {
	for _, known := range Intents {
		if i == known {
			return true
		}
	}
	return false
}

// Entity keys produced by extraction.
const (
	EntityUnit     = "unit"
	EntitySite     = "site"
	EntityDevice   = "device"
	EntitySeverity = "severity"
)

// Pattern is one recognition rule. Base patterns are seeded at startup;
// learned_ and correction_ patterns are added at runtime.
type Pattern struct {
	ID          string    `json:"pattern_id"`
	Regex       string    `json:"pattern_regex"`
	Intent      Intent    `json:"intent"`
	Examples    []string  `json:"examples,omitempty"`
	Confidence  float64   `json:"confidence"`
	UsageCount  int       `json:"usage_count"`
	SuccessRate float64   `json:"success_rate"`
	LastUsed    time.Time `json:"last_used"`
}

func (p *Pattern) score() float64 {
	return p.Confidence * (0.7 + 0.3*p.SuccessRate)
}

// CommandResult is a recognized command.
type CommandResult struct {
	ID         string            `json:"command_id"`
	Raw        string            `json:"raw_text"`
	Normalized string            `json:"normalized_text"`
	Intent     Intent            `json:"intent"`
	Entities   map[string]string `json:"entities"`
	Parameters map[string]any    `json:"parameters"`
	Confidence float64           `json:"confidence"`
	PatternID  string            `json:"pattern_id,omitempty"`
	Context    map[string]any    `json:"context,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

// Outcome is how the executed command went.
type Outcome struct {
	Success      bool    `json:"success"`
	ResponseTime float64 `json:"response_time"`
	Feedback     string  `json:"user_feedback,omitempty"`
}

// Correction is operator feedback for a misrecognized command.
type Correction struct {
	Text     string            `json:"text"`
	Intent   Intent            `json:"intended_intent"`
	Entities map[string]string `json:"correct_entities,omitempty"`
}

// SuggestContext narrows command suggestions.
type SuggestContext struct {
	Section       string `json:"current_section,omitempty"`
	PreferredUnit string `json:"preferred_unit,omitempty"`
}

// Suggestion is a command the operator may want to try.
type Suggestion struct {
	Command     string  `json:"command"`
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`
}

// Insight is one observation about command usage.
type Insight struct {
	Type            string         `json:"insight_type"`
	Description     string         `json:"description"`
	Metrics         map[string]any `json:"metrics"`
	Recommendations []string       `json:"recommendations"`
	Confidence      float64        `json:"confidence"`
}

// PatternStats counts the recognition table by origin.
type PatternStats struct {
	Total             int     `json:"total_patterns"`
	Learned           int     `json:"learned_patterns"`
	Corrections       int     `json:"correction_patterns"`
	AvgLearnedSuccess float64 `json:"avg_learned_success_rate"`
}

// UsageReport is the result of AnalyzeUsage.
type UsageReport struct {
	Insights []Insight    `json:"insights"`
	Patterns PatternStats `json:"pattern_stats"`
}
