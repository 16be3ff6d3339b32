package pipeline

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"opsmemory/internal/logger"
	"opsmemory/internal/metrics"
	"opsmemory/internal/patterns"
	"opsmemory/internal/transform/eventjson"
	"opsmemory/pkg/models"
)

// Recorder persists parsed events.
type Recorder interface {
	RecordEvent(ctx context.Context, ev models.Event) bool
}

// Analyzer runs pattern detection over the store window.
type Analyzer interface {
	AnalyzePatterns(ctx context.Context, req patterns.AnalyzeRequest) []models.PatternMatch
}

// EventLinker attaches events to the topology graph.
type EventLinker interface {
	LinkEvent(ev models.Event) (string, error)
}

// Config tunes an IngestPipeline.
type Config struct {
	Workers         int
	QueueSize       int
	AnalyzeInterval time.Duration
	WindowHours     int
}

// IngestPipeline reads producer payloads, records them through a worker
// pool and periodically runs pattern analysis, writing new matches out.
type IngestPipeline struct {
	source   Source
	recorder Recorder
	analyzer Analyzer
	linker   EventLinker
	writer   MatchWriter
	metrics  *metrics.Metrics
	cfg      Config

	written *lru.Cache[string, struct{}]

	mu    sync.Mutex
	stats Stats
}

// Stats counts pipeline throughput.
type Stats struct {
	Received int `json:"received"`
	Recorded int `json:"recorded"`
	Rejected int `json:"rejected"`
	Failed   int `json:"failed"`
	Matches  int `json:"matches_written"`
}

// Option attaches optional collaborators.
type Option func(*IngestPipeline)

// WithLinker links every recorded event into a graph.
func WithLinker(l EventLinker) Option {
	return func(p *IngestPipeline) { p.linker = l }
}

// WithMetrics counts rejected payloads.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *IngestPipeline) { p.metrics = m }
}

// NewIngestPipeline creates a pipeline. analyzer and writer may be nil to
// only record events.
func NewIngestPipeline(source Source, recorder Recorder, analyzer Analyzer, writer MatchWriter, cfg Config, opts ...Option) *IngestPipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.Workers * 4
	}
	if cfg.AnalyzeInterval <= 0 {
		cfg.AnalyzeInterval = 5 * time.Minute
	}
	written, _ := lru.New[string, struct{}](8192)
	p := &IngestPipeline{
		source:   source,
		recorder: recorder,
		analyzer: analyzer,
		writer:   writer,
		cfg:      cfg,
		written:  written,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run consumes until ctx is cancelled or the source is exhausted. A final
// analysis pass runs before returning.
func (p *IngestPipeline) Run(ctx context.Context) error {
	logger.Infof("ingest pipeline started (workers=%d)", p.cfg.Workers)

	msgCh := make(chan []byte, p.cfg.QueueSize)
	var readErr error
	var readers, workers sync.WaitGroup

	readers.Add(1)
	go func() {
		defer readers.Done()
		readErr = p.readLoop(ctx, msgCh)
		close(msgCh)
	}()

	for i := 0; i < p.cfg.Workers; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			p.workerLoop(ctx, msgCh)
		}()
	}

	done := make(chan struct{})
	go func() {
		workers.Wait()
		close(done)
	}()

	ticker := time.NewTicker(p.cfg.AnalyzeInterval)
	defer ticker.Stop()
	for running := true; running; {
		select {
		case <-ticker.C:
			p.analyze(ctx)
		case <-done:
			running = false
		}
	}
	readers.Wait()

	// the final pass outlives cancellation so buffered events are analyzed
	p.analyze(context.WithoutCancel(ctx))
	s := p.Stats()
	logger.Infof("ingest pipeline stopped: received=%d recorded=%d rejected=%d failed=%d matches=%d",
		s.Received, s.Recorded, s.Rejected, s.Failed, s.Matches)
	if readErr != nil {
		return readErr
	}
	return ctx.Err()
}

// Close releases the writer and source.
func (p *IngestPipeline) Close() error {
	if p.writer != nil {
		if err := p.writer.Close(); err != nil {
			logger.Errorf("Failed to close match writer: %v", err)
		}
	}
	if p.source != nil {
		return p.source.Close()
	}
	return nil
}

// Stats returns a snapshot of the counters.
func (p *IngestPipeline) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

func (p *IngestPipeline) count(f func(*Stats)) {
	p.mu.Lock()
	f(&p.stats)
	p.mu.Unlock()
}

func (p *IngestPipeline) readLoop(ctx context.Context, out chan<- []byte) error {
	for {
		payload, err := p.source.Pop(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Errorf("Failed to read event payload: %v", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(500 * time.Millisecond):
			}
			continue
		}
		if payload == nil {
			if ctx.Err() != nil {
				return nil
			}
			continue
		}
		select {
		case out <- payload:
		case <-ctx.Done():
			return nil
		}
	}
}

func (p *IngestPipeline) workerLoop(ctx context.Context, in <-chan []byte) {
	for payload := range in {
		p.count(func(s *Stats) { s.Received++ })
		ev, err := eventjson.Parse(payload)
		if err != nil {
			logger.Warnf("Failed to parse event: %v", err)
			p.metrics.EventRejected()
			p.count(func(s *Stats) { s.Rejected++ })
			continue
		}
		if ev.ID == "" {
			ev.ID = uuid.NewString()
		}
		if !p.recorder.RecordEvent(context.WithoutCancel(ctx), *ev) {
			p.count(func(s *Stats) { s.Failed++ })
			continue
		}
		p.count(func(s *Stats) { s.Recorded++ })
		if p.linker != nil {
			if _, err := p.linker.LinkEvent(*ev); err != nil {
				logger.Debugf("event %s not linked: %v", ev.ID, err)
			}
		}
	}
}

// analyze runs detection and writes matches not written before.
func (p *IngestPipeline) analyze(ctx context.Context) {
	if p.analyzer == nil {
		return
	}
	matches := p.analyzer.AnalyzePatterns(ctx, patterns.AnalyzeRequest{WindowHours: p.cfg.WindowHours})
	var fresh []models.PatternMatch
	for _, m := range matches {
		if p.written.Contains(m.ID) {
			continue
		}
		fresh = append(fresh, m)
	}
	if len(fresh) == 0 || p.writer == nil {
		return
	}
	if err := p.writer.WriteMatches(fresh); err != nil {
		logger.Errorf("Failed to write pattern matches: %v", err)
		return
	}
	for _, m := range fresh {
		p.written.Add(m.ID, struct{}{})
	}
	p.count(func(s *Stats) { s.Matches += len(fresh) })
}
