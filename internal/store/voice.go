package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"opsmemory/internal/logger"
	"opsmemory/pkg/models"
)

// CommandStat aggregates interactions sharing the same command text.
type CommandStat struct {
	Command         string  `json:"command"`
	Frequency       int     `json:"frequency"`
	SuccessRate     float64 `json:"success_rate"`
	AvgResponseTime float64 `json:"avg_response_time"`
}

// IntentStat aggregates interactions sharing the same resolved intent.
type IntentStat struct {
	Intent        string  `json:"intent"`
	Frequency     int     `json:"frequency"`
	SuccessRate   float64 `json:"success_rate"`
	AvgResponseMS float64 `json:"avg_response_ms"`
}

// VoiceOverall summarizes every interaction in the window.
type VoiceOverall struct {
	TotalInteractions int     `json:"total_interactions"`
	SuccessRate       float64 `json:"success_rate"`
	AvgResponseTime   float64 `json:"avg_response_time"`
}

// VoiceInsights is the rolling 30-day rollup of command interactions.
type VoiceInsights struct {
	Period          string        `json:"period"`
	Overall         VoiceOverall  `json:"overall_statistics"`
	TopCommands     []CommandStat `json:"top_commands"`
	Intents         []IntentStat  `json:"intent_analysis"`
	Recommendations []string      `json:"recommendations"`
	GeneratedAt     time.Time     `json:"analysis_time"`
}

const (
	topCommandLimit        = 10
	commandSuccessFloor    = 0.8
	commandSlowResponseSec = 2.0
)

// RecordVoiceInteraction persists one processed command.
func (m *Memory) RecordVoiceInteraction(ctx context.Context, vi models.VoiceInteraction) bool {
	if vi.ID == "" {
		vi.ID = uuid.NewString()
	}
	if vi.Timestamp.IsZero() {
		vi.Timestamp = m.now()
	}
	idx := map[string]string{}
	if vi.Intent != "" {
		idx["intent"] = vi.Intent
	}
	if err := m.putJSON(ctx, CollVoice, vi.ID, vi.Timestamp, idx, vi); err != nil {
		m.fail("record_voice_interaction", err)
		return false
	}
	return true
}

// VoiceInteractions returns interactions at or after since in time order.
func (m *Memory) VoiceInteractions(ctx context.Context, since time.Time) []models.VoiceInteraction {
	recs, err := m.backend.Range(ctx, CollVoice, RangeQuery{Since: since})
	if err != nil {
		m.fail("voice_interactions", err)
		return nil
	}
	out := make([]models.VoiceInteraction, 0, len(recs))
	for _, rec := range recs {
		var vi models.VoiceInteraction
		if err := json.Unmarshal(rec.Data, &vi); err != nil {
			logger.Warnf("skip undecodable interaction %s: %v", rec.ID, err)
			continue
		}
		out = append(out, vi)
	}
	return out
}

// GetVoiceLearningInsights rolls up the last 30 days of interactions.
func (m *Memory) GetVoiceLearningInsights(ctx context.Context) VoiceInsights {
	now := m.now()
	out := VoiceInsights{Period: "last 30 days", GeneratedAt: now}
	interactions := m.VoiceInteractions(ctx, now.Add(-insightWindow))
	if len(interactions) == 0 {
		return out
	}

	type acc struct {
		n, ok     int
		rt        float64
		rtSamples int
	}
	byCommand := make(map[string]*acc)
	byIntent := make(map[string]*acc)
	var total acc
	for _, vi := range interactions {
		accs := []*acc{lookupAcc(byCommand, vi.Command), &total}
		if vi.Intent != "" {
			accs = append(accs, lookupAcc(byIntent, vi.Intent))
		}
		for _, a := range accs {
			a.n++
			if vi.Success {
				a.ok++
			}
			if vi.ResponseTime > 0 {
				a.rt += vi.ResponseTime
				a.rtSamples++
			}
		}
	}

	rate := func(a *acc) float64 { return float64(a.ok) / float64(a.n) }
	avgRT := func(a *acc) float64 {
		if a.rtSamples == 0 {
			return 0
		}
		return a.rt / float64(a.rtSamples)
	}

	out.Overall = VoiceOverall{TotalInteractions: total.n, SuccessRate: rate(&total), AvgResponseTime: avgRT(&total)}
	for cmd, a := range byCommand {
		out.TopCommands = append(out.TopCommands, CommandStat{
			Command:         cmd,
			Frequency:       a.n,
			SuccessRate:     rate(a),
			AvgResponseTime: avgRT(a),
		})
	}
	sort.Slice(out.TopCommands, func(i, j int) bool {
		if out.TopCommands[i].Frequency != out.TopCommands[j].Frequency {
			return out.TopCommands[i].Frequency > out.TopCommands[j].Frequency
		}
		return out.TopCommands[i].Command < out.TopCommands[j].Command
	})
	if len(out.TopCommands) > topCommandLimit {
		out.TopCommands = out.TopCommands[:topCommandLimit]
	}

	for intent, a := range byIntent {
		out.Intents = append(out.Intents, IntentStat{
			Intent:        intent,
			Frequency:     a.n,
			SuccessRate:   rate(a),
			AvgResponseMS: avgRT(a) * 1000,
		})
	}
	sort.Slice(out.Intents, func(i, j int) bool {
		if out.Intents[i].Frequency != out.Intents[j].Frequency {
			return out.Intents[i].Frequency > out.Intents[j].Frequency
		}
		return out.Intents[i].Intent < out.Intents[j].Intent
	})

	out.Recommendations = voiceRecommendations(out.TopCommands, out.Intents)
	return out
}

func lookupAcc[T any](m map[string]*T, key string) *T {
	a := m[key]
	if a == nil {
		a = new(T)
		m[key] = a
	}
	return a
}

func voiceRecommendations(commands []CommandStat, intents []IntentStat) []string {
	var out []string
	for _, c := range commands {
		if c.SuccessRate < commandSuccessFloor {
			out = append(out, fmt.Sprintf("Improve recognition for '%s' command", c.Command))
		}
	}
	for _, c := range commands {
		if c.AvgResponseTime > commandSlowResponseSec {
			out = append(out, fmt.Sprintf("Optimize response time for '%s' command", c.Command))
		}
	}
	if len(intents) > 0 {
		out = append(out, fmt.Sprintf("Consider adding more variations for '%s' intent", intents[0].Intent))
	}
	return out
}
