package pipeline

import "context"

// Source yields raw producer payloads. Pop returns nil, nil when nothing
// arrived before its internal timeout and io.EOF when a finite source is
// exhausted.
type Source interface {
	Pop(ctx context.Context) ([]byte, error)
	Close() error
}
