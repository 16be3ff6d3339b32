package models

import "time"

// VoiceInteraction is one processed operator command and its outcome.
type VoiceInteraction struct {
	ID           string         `json:"id"`
	Timestamp    time.Time      `json:"timestamp"`
	Command      string         `json:"command"`
	Intent       string         `json:"intent"`
	Success      bool           `json:"success"`
	ResponseTime float64        `json:"response_time"`
	Feedback     string         `json:"feedback,omitempty"`
	Context      map[string]any `json:"context,omitempty"`
}
