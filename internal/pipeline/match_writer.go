package pipeline

import "opsmemory/pkg/models"

// MatchWriter writes detected pattern matches.
type MatchWriter interface {
	WriteMatches(matches []models.PatternMatch) error
	Close() error
}
