package voice

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsmemory/internal/metrics"
	"opsmemory/internal/store"
	"opsmemory/pkg/models"
)

var t0 = time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

type fakeStore struct {
	interactions []models.VoiceInteraction
	insights     store.VoiceInsights
	fail         bool
}

func (f *fakeStore) RecordVoiceInteraction(_ context.Context, vi models.VoiceInteraction) bool {
	if f.fail {
		return false
	}
	f.interactions = append(f.interactions, vi)
	return true
}

func (f *fakeStore) GetVoiceLearningInsights(context.Context) store.VoiceInsights {
	return f.insights
}

func newTestEngine(t *testing.T, st *fakeStore) *Engine {
	t.Helper()
	e, err := NewEngine(st, Options{Now: func() time.Time { return t0 }})
	require.NoError(t, err)
	return e
}

func patternByID(e *Engine, id string) (Pattern, bool) {
	for _, p := range e.Patterns() {
		if p.ID == id {
			return p, true
		}
	}
	return Pattern{}, false
}

// train records n outcomes for text.
func train(t *testing.T, e *Engine, text string, n int, success bool) {
	t.Helper()
	for i := 0; i < n; i++ {
		res := e.ProcessCommand(text, nil)
		require.True(t, e.LearnFromInteraction(context.Background(), res, Outcome{Success: success, ResponseTime: 1.2}))
	}
}

func TestProcessCommandInvestigation(t *testing.T) {
	m := metrics.New()
	e, err := NewEngine(&fakeStore{}, Options{Metrics: m, Now: func() time.Time { return t0 }})
	require.NoError(t, err)

	res := e.ProcessCommand("investigate BWW store 155", map[string]any{"section": "overview"})
	assert.Equal(t, IntentInvestigation, res.Intent)
	assert.Equal(t, map[string]string{EntityUnit: "BWW", EntitySite: "155"}, res.Entities)
	assert.GreaterOrEqual(t, res.Confidence, 0.7)
	assert.Equal(t, "investigation_0", res.PatternID)
	assert.Equal(t, "24h", res.Parameters["timeframe"])
	assert.Equal(t, "investigate bww store 155", res.Normalized)
	assert.Equal(t, t0, res.Timestamp)
	assert.NotEmpty(t, res.ID)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.VoiceCommands.WithLabelValues("investigation")))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "show me the fortigate for arbys", normalize("Show me the Forty Gate, you know, for Arby's"))
	assert.Equal(t, "check bww", normalize("  Um, check   Buffalo Wild Wings!"))
	assert.Equal(t, "", normalize("uh"))
}

func TestProcessCommandSpokenVariantsAndTimeframe(t *testing.T) {
	e := newTestEngine(t, &fakeStore{})
	res := e.ProcessCommand("Um, check security status for Buffalo Wild Wings store 234 in the last 3 days", nil)
	assert.Equal(t, IntentInvestigation, res.Intent)
	assert.Equal(t, "investigation_1", res.PatternID)
	assert.Equal(t, "BWW", res.Entities[EntityUnit])
	assert.Equal(t, "234", res.Entities[EntitySite])
	assert.Equal(t, "3d", res.Parameters["timeframe"])
}

func TestExtractEntitiesAndParameters(t *testing.T) {
	e := newTestEngine(t, &fakeStore{})
	res := e.ProcessCommand("show me 5 critical events on fortigate 2 at sonic store 789 yesterday", nil)
	assert.Equal(t, "SONIC", res.Entities[EntityUnit])
	assert.Equal(t, "789", res.Entities[EntitySite])
	assert.Equal(t, "FortiGate-02", res.Entities[EntityDevice])
	assert.Equal(t, "critical", res.Entities[EntitySeverity])
	assert.Equal(t, 5, res.Parameters["limit"])
	assert.Equal(t, "1d", res.Parameters["timeframe"])

	// a bare number followed by a time unit is not a site
	params := e.ProcessCommand("list events at arbys for the last 48 hours", nil)
	assert.NotContains(t, params.Entities, EntitySite)
	assert.Equal(t, "48h", params.Parameters["timeframe"])

	sec := e.ProcessCommand("search for malware in BWW logs", nil)
	assert.Equal(t, IntentSecurityAnalysis, sec.Intent)
	assert.Equal(t, "malware", sec.Parameters["analysis_type"])
}

func TestProcessCommandFallbacks(t *testing.T) {
	e := newTestEngine(t, &fakeStore{})

	kw := e.ProcessCommand("could you examine things", nil)
	assert.Equal(t, IntentInvestigation, kw.Intent)
	assert.InDelta(t, 0.6, kw.Confidence, 1e-9)
	assert.Empty(t, kw.PatternID)

	unknown := e.ProcessCommand("zebra quantum", nil)
	assert.Equal(t, IntentHelpRequest, unknown.Intent)
	assert.InDelta(t, 0.3, unknown.Confidence, 1e-9)
}

func TestLearnFromInteractionRecalibrates(t *testing.T) {
	st := &fakeStore{}
	e := newTestEngine(t, st)

	train(t, e, "investigate BWW store 155", 3, true)
	require.Len(t, st.interactions, 3)
	vi := st.interactions[0]
	assert.Equal(t, "investigate BWW store 155", vi.Command)
	assert.Equal(t, "investigation", vi.Intent)
	assert.True(t, vi.Success)
	assert.Equal(t, 1.2, vi.ResponseTime)
	assert.Equal(t, map[string]string{EntityUnit: "BWW", EntitySite: "155"}, vi.Context["entities"])

	p, ok := patternByID(e, "investigation_0")
	require.True(t, ok)
	assert.Equal(t, 3, p.UsageCount)
	assert.InDelta(t, 0.95, p.Confidence, 1e-9)
	assert.InDelta(t, 0.95, e.ProcessCommand("investigate BWW store 155", nil).Confidence, 1e-9)

	// three failures halve the success rate and push the pattern below
	// the fallback threshold, leaving keyword voting to recognize it
	train(t, e, "investigate BWW store 155", 3, false)
	p, _ = patternByID(e, "investigation_0")
	assert.Equal(t, 6, p.UsageCount)
	assert.InDelta(t, 0.5, p.SuccessRate, 1e-9)
	assert.InDelta(t, 0.55, p.Confidence, 1e-9)

	res := e.ProcessCommand("investigate BWW store 155", nil)
	assert.Equal(t, IntentInvestigation, res.Intent)
	assert.InDelta(t, 0.6, res.Confidence, 1e-9)
}

func TestLearnFromInteractionSynthesizesPattern(t *testing.T) {
	e := newTestEngine(t, &fakeStore{})
	before := len(e.Patterns())

	// a base match at 0.8 is not confident enough to learn from
	train(t, e, "investigate BWW store 155 right now", 1, true)
	assert.Len(t, e.Patterns(), before)

	train(t, e, "investigate BWW store 155", 2, true)
	train(t, e, "investigate BWW store 155 right now", 1, true)
	require.Len(t, e.Patterns(), before+1)

	learned, ok := patternByID(e, "learned_investigation_4")
	require.True(t, ok)
	assert.Equal(t, `\binvestigate\s+(\w+)\s+store\s+(\d+)\s+right\s+now\b`, learned.Regex)
	assert.InDelta(t, 0.7, learned.Confidence, 1e-9)
	assert.Equal(t, []string{"investigate bww store 155 right now"}, learned.Examples)

	// the phrasing is now covered
	train(t, e, "investigate SONIC store 789 right now", 1, true)
	assert.Len(t, e.Patterns(), before+1)
}

func TestLearnFromInteractionReportsStoreFailure(t *testing.T) {
	st := &fakeStore{fail: true}
	e := newTestEngine(t, st)
	res := e.ProcessCommand("investigate BWW store 155", nil)
	assert.False(t, e.LearnFromInteraction(context.Background(), res, Outcome{Success: true}))

	p, _ := patternByID(e, "investigation_0")
	assert.Equal(t, 1, p.UsageCount)
}

func TestImproveRecognition(t *testing.T) {
	e := newTestEngine(t, &fakeStore{})
	assert.Equal(t, IntentHelpRequest, e.ProcessCommand("audit sonic store 789", nil).Intent)

	n := e.ImproveRecognition([]Correction{
		{Text: "Audit BWW store 155", Intent: IntentInvestigation, Entities: map[string]string{EntityUnit: "BWW", EntitySite: "155"}},
		{Text: "", Intent: IntentNavigation},
		{Text: "open the pod bay doors", Intent: Intent("bogus")},
	})
	assert.Equal(t, 1, n)

	res := e.ProcessCommand("audit sonic store 789", nil)
	assert.Equal(t, IntentInvestigation, res.Intent)
	assert.InDelta(t, 0.6, res.Confidence, 1e-9)
	assert.True(t, strings.HasPrefix(res.PatternID, "correction_investigation_"))
	assert.Equal(t, "SONIC", res.Entities[EntityUnit])
	assert.Equal(t, "789", res.Entities[EntitySite])

	count := len(e.Patterns())
	assert.Equal(t, 1, e.ImproveRecognition([]Correction{
		{Text: "audit bww store 155", Intent: IntentInvestigation, Entities: map[string]string{EntityUnit: "BWW", EntitySite: "155"}},
	}))
	assert.Len(t, e.Patterns(), count)
	assert.InDelta(t, 0.7, e.ProcessCommand("audit sonic store 789", nil).Confidence, 1e-9)
}

func TestImproveRecognitionExtendsVocabulary(t *testing.T) {
	e := newTestEngine(t, &fakeStore{})
	e.ImproveRecognition([]Correction{
		{Text: "audit taco store 12", Intent: IntentInvestigation, Entities: map[string]string{EntityUnit: "TACO", EntitySite: "12"}},
	})
	res := e.ProcessCommand("audit taco store 12", nil)
	assert.Equal(t, "TACO", res.Entities[EntityUnit])
	assert.Equal(t, "12", res.Entities[EntitySite])
}

func TestSuggestCommands(t *testing.T) {
	e := newTestEngine(t, &fakeStore{})

	got := e.SuggestCommands(SuggestContext{Section: "investigation", PreferredUnit: "sonic"})
	require.Len(t, got, 4)
	assert.Equal(t, "Investigate BWW store 155", got[0].Command)
	assert.Equal(t, "predict security issues for SONIC", got[3].Command)

	train(t, e, "investigate BWW store 155", 3, true)
	got = e.SuggestCommands(SuggestContext{Section: "investigation"})
	require.Len(t, got, 3)
	assert.Equal(t, "investigate BWW store 155", got[2].Command)
	assert.Equal(t, "Popular investigation command", got[2].Description)
	assert.Equal(t, 1.0, got[2].Confidence)

	assert.Equal(t, []string{"investigate BWW store 155", "check security status for Arby's store 234"},
		e.SuggestionsForIntent(IntentInvestigation))
}

func TestAnalyzeUsage(t *testing.T) {
	st := &fakeStore{insights: store.VoiceInsights{
		Overall:     store.VoiceOverall{TotalInteractions: 5, SuccessRate: 0.6, AvgResponseTime: 3},
		TopCommands: []store.CommandStat{{Command: "investigate bww store 155", Frequency: 5, SuccessRate: 0.6, AvgResponseTime: 3}},
		Intents:     []store.IntentStat{{Intent: "investigation", Frequency: 5, SuccessRate: 0.6}},
	}}
	e := newTestEngine(t, st)

	report := e.AnalyzeUsage(context.Background())
	var types []string
	for _, in := range report.Insights {
		types = append(types, in.Type)
	}
	assert.Equal(t, []string{"command_frequency", "success_rate", "intent_distribution", "performance"}, types)
	assert.Equal(t, "Improve recognition for 'investigate bww store 155' - currently 60.0% success rate",
		report.Insights[0].Recommendations[0])
	assert.Equal(t, []string{"investigate bww store 155"}, report.Insights[1].Metrics["failed_commands"])
	assert.Equal(t, []string{"Improve investigation command recognition"}, report.Insights[2].Recommendations)
	assert.Zero(t, report.Patterns.Learned)
}

func TestAnalyzeUsageReportsLearnedPatterns(t *testing.T) {
	e := newTestEngine(t, &fakeStore{})
	train(t, e, "investigate BWW store 155", 3, true)
	train(t, e, "investigate BWW store 155 right now", 1, true)

	report := e.AnalyzeUsage(context.Background())
	require.Len(t, report.Insights, 1)
	assert.Equal(t, "pattern_learning", report.Insights[0].Type)
	assert.Equal(t, 1, report.Patterns.Learned)
	assert.InDelta(t, 1.0, report.Patterns.AvgLearnedSuccess, 1e-9)
}
