package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mesh-intelligence/larder/internal/enginetest"
	"github.com/mesh-intelligence/larder/pkg/types"
)

func TestEngine(t *testing.T) {
	enginetest.RunEngineTests(t, "memory", func(t *testing.T) types.Engine {
		return NewEngine(zaptest.NewLogger(t))
	})
}

func BenchmarkEngine(b *testing.B) {
	enginetest.RunEngineBenchmarks(b, "memory", func(*testing.B) types.Engine {
		return NewEngine(nil)
	})
}

func TestDrop(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(nil)
	create := func(tx types.SchemaTx, _, _ uint64) error {
		return tx.CreateStore(types.StoreSchema{Name: "a"}.Normalize())
	}

	conn, err := e.Open(ctx, "db", 1, create)
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	e.Drop("db")

	conn, err = e.Open(ctx, "db", 1, nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Empty(t, conn.StoreNames())
}

func TestScanPrefix(t *testing.T) {
	db := newDatabase()
	tx := db.begin(true)
	b, err := tx.CreateBucket([]byte("b"))
	require.NoError(t, err)
	for _, k := range []string{"a1", "b1", "b2", "c1", "b0"} {
		require.NoError(t, b.Put([]byte(k), []byte(k)))
	}

	tests := []struct {
		name   string
		prefix []byte
		limit  int
		want   []string
	}{
		{name: "all", prefix: nil, want: []string{"a1", "b0", "b1", "b2", "c1"}},
		{name: "middle", prefix: []byte("b"), want: []string{"b0", "b1", "b2"}},
		{name: "exact key", prefix: []byte("b1"), want: []string{"b1"}},
		{name: "last", prefix: []byte("c"), want: []string{"c1"}},
		{name: "past the end", prefix: []byte("d"), want: nil},
		{name: "gap", prefix: []byte("a2"), want: nil},
		{name: "stop early", prefix: []byte("b"), limit: 2, want: []string{"b0", "b1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			err := b.Scan(tt.prefix, func(k, _ []byte) (bool, error) {
				got = append(got, string(k))
				return tt.limit == 0 || len(got) < tt.limit, nil
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	require.NoError(t, tx.Rollback())
	assert.Empty(t, db.buckets)
}

func TestReadersShareLock(t *testing.T) {
	db := newDatabase()
	r1 := db.begin(false)
	r2 := db.begin(false)
	require.NoError(t, r1.Rollback())
	require.NoError(t, r2.Rollback())

	w := db.begin(true)
	_, err := w.CreateBucket([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, w.Commit())
	assert.Len(t, db.buckets, 1)
}
