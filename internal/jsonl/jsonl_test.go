package jsonl

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	in := "{\"id\":1,\"name\":\"a\"}\n\n{\"id\":2}\n"
	got, err := Decode(strings.NewReader(in), false)
	require.NoError(t, err)

	want := []map[string]any{
		{"id": float64(1), "name": "a"},
		{"id": float64(2)},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Decode mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeMalformed(t *testing.T) {
	in := "{\"id\":1}\nnot json\n[1,2]\n{\"id\":2}\n"

	_, err := Decode(strings.NewReader(in), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")

	got, err := Decode(strings.NewReader(in), true)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestEncode(t *testing.T) {
	var buf bytes.Buffer
	err := Encode(&buf, []map[string]any{{"id": 1}, {"id": "x"}})
	require.NoError(t, err)
	assert.Equal(t, "{\"id\":1}\n{\"id\":\"x\"}\n", buf.String())
}

func TestWriteFileReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.jsonl")
	records := []map[string]any{
		{"id": float64(1), "tags": []any{"a", "b"}},
		{"id": float64(2), "nested": map[string]any{"x": true}},
	}
	require.NoError(t, WriteFile(path, records))

	got, err := ReadFile(path, false)
	require.NoError(t, err)
	if diff := cmp.Diff(records, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file left behind")
}

func TestWriteFileEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.jsonl")
	require.NoError(t, WriteFile(path, nil))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestReadFileMissing(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "missing.jsonl"), false)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
