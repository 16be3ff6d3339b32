package file

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReaderSkipsBlankLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{\"id\":\"1\"}\n\n  \n{\"id\":\"2\"}\n"), 0o644))

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	ctx := context.Background()
	var got []string
	for {
		line, err := r.Pop(ctx)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, string(line))
	}
	assert.Equal(t, []string{`{"id":"1"}`, `{"id":"2"}`}, got)
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope.jsonl"))
	assert.Error(t, err)
}
