package file

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
)

const maxLine = 4 << 20

// Reader replays a JSON lines file as an event source.
type Reader struct {
	f  *os.File
	sc *bufio.Scanner
}

// Open opens path for replay.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open replay file: %w", err)
	}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), maxLine)
	return &Reader{f: f, sc: sc}, nil
}

// Pop returns the next non-blank line, or io.EOF once the file is
// exhausted.
func (r *Reader) Pop(ctx context.Context) ([]byte, error) {
	for r.sc.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line := bytes.TrimSpace(r.sc.Bytes())
		if len(line) == 0 {
			continue
		}
		return append([]byte(nil), line...), nil
	}
	if err := r.sc.Err(); err != nil {
		return nil, fmt.Errorf("read replay file: %w", err)
	}
	return nil, io.EOF
}

// Close closes the file.
func (r *Reader) Close() error {
	return r.f.Close()
}
