package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"opsmemory/config"
)

// Collection names one of the four logical record sets.
type Collection string

const (
	CollEvents   Collection = "events"
	CollPatterns Collection = "patterns"
	CollVoice    Collection = "voice_interactions"
	CollMetrics  Collection = "performance_metrics"
)

// AllCollections lists every collection.
var AllCollections = []Collection{CollEvents, CollPatterns, CollVoice, CollMetrics}

// ErrNotFound is returned by Backend.Get for unknown ids.
var ErrNotFound = errors.New("record not found")

// Record is a stored document keyed by id with a timestamp index and
// optional secondary index fields (e.g. type, unit).
type Record struct {
	ID        string
	Timestamp time.Time
	Index     map[string]string
	Data      []byte
}

// RangeQuery selects records by timestamp, optionally through one secondary
// index. Zero times are unbounded.
type RangeQuery struct {
	Since time.Time
	Until time.Time
	Field string
	Value string
}

// Backend is the raw persistence surface. Implementations return errors;
// Memory turns them into logged empty results.
type Backend interface {
	Put(ctx context.Context, coll Collection, rec Record) error
	Get(ctx context.Context, coll Collection, id string) (Record, error)
	// Range returns matching records in ascending timestamp order.
	Range(ctx context.Context, coll Collection, q RangeQuery) ([]Record, error)
	Delete(ctx context.Context, coll Collection, ids []string) (int, error)
	Count(ctx context.Context, coll Collection) (int, error)
	Close() error
}

// Open builds the backend selected by cfg.Backend.
func Open(cfg config.StoreConfig) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "badger":
		return NewBadgerBackend(BadgerConfig{Dir: cfg.Badger.Dir, InMemory: cfg.Badger.InMemory})
	case "redis":
		return NewRedisBackend(RedisConfig{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.Key,
		})
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", cfg.Backend)
	}
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	ms := t.UnixMilli()
	if ms < 0 {
		return 0
	}
	return ms
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
