package bolt

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mesh-intelligence/larder/internal/enginetest"
	"github.com/mesh-intelligence/larder/pkg/types"
)

func TestEngine(t *testing.T) {
	enginetest.RunEngineTests(t, "bolt", func(t *testing.T) types.Engine {
		return NewEngine(t.TempDir(), zaptest.NewLogger(t))
	})
}

func BenchmarkEngine(b *testing.B) {
	enginetest.RunEngineBenchmarks(b, "bolt", func(b *testing.B) types.Engine {
		return NewEngine(b.TempDir(), nil)
	})
}

func TestFileLayout(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	e := NewEngine(dir, nil)
	require.NoError(t, e.Available())

	conn, err := e.Open(context.Background(), "notes", 1, nil)
	require.NoError(t, err)
	defer conn.Close()

	_, err = os.Stat(filepath.Join(dir, "notes"+FileExt))
	assert.NoError(t, err)
}

func TestUnavailable(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o600))

	e := NewEngine(file, nil)
	assert.ErrorIs(t, e.Available(), types.ErrUnsupported)
}

func TestSharedHandle(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(t.TempDir(), nil)

	first, err := e.Open(ctx, "shared", 1, nil)
	require.NoError(t, err)
	second, err := e.Open(ctx, "shared", 1, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, e.files.Size())

	require.NoError(t, first.Close())
	assert.Equal(t, 1, e.files.Size(), "handle stays open for the second connection")
	_, err = second.Size()
	assert.NoError(t, err)

	require.NoError(t, second.Close())
	assert.Zero(t, e.files.Size())
}

func TestOpenFailureReleasesHandle(t *testing.T) {
	e := NewEngine(t.TempDir(), nil)
	fail := func(types.SchemaTx, uint64, uint64) error { return assert.AnError }

	_, err := e.Open(context.Background(), "failing", 1, fail)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Zero(t, e.files.Size())
}
