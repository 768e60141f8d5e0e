package enginetest

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/larder/pkg/types"
)

// EngineFactory creates a fresh engine for one test.
type EngineFactory func(t *testing.T) types.Engine

// RunEngineTests runs the conformance suite against an engine.
func RunEngineTests(t *testing.T, name string, factory EngineFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Available", func(t *testing.T) {
			assert.NoError(t, factory(t).Available())
		})
		t.Run("OpenCreatesStores", func(t *testing.T) {
			testOpenCreatesStores(t, factory(t))
		})
		t.Run("Versioning", func(t *testing.T) {
			testVersioning(t, factory(t))
		})
		t.Run("FailedUpgradeRollsBack", func(t *testing.T) {
			testFailedUpgrade(t, factory(t))
		})
		t.Run("AddGet", func(t *testing.T) {
			testAddGet(t, factory(t))
		})
		t.Run("Put", func(t *testing.T) {
			testPut(t, factory(t))
		})
		t.Run("KeyOrder", func(t *testing.T) {
			testKeyOrder(t, factory(t))
		})
		t.Run("Sequence", func(t *testing.T) {
			testSequence(t, factory(t))
		})
		t.Run("UUIDGenerator", func(t *testing.T) {
			testUUIDGenerator(t, factory(t))
		})
		t.Run("ManualKeys", func(t *testing.T) {
			testManualKeys(t, factory(t))
		})
		t.Run("DottedKeyPath", func(t *testing.T) {
			testDottedKeyPath(t, factory(t))
		})
		t.Run("Index", func(t *testing.T) {
			testIndex(t, factory(t))
		})
		t.Run("UniqueIndex", func(t *testing.T) {
			testUniqueIndex(t, factory(t))
		})
		t.Run("DeleteClearCount", func(t *testing.T) {
			testDeleteClearCount(t, factory(t))
		})
		t.Run("Rollback", func(t *testing.T) {
			testRollback(t, factory(t))
		})
		t.Run("Modes", func(t *testing.T) {
			testModes(t, factory(t))
		})
		t.Run("Reopen", func(t *testing.T) {
			testReopen(t, factory(t))
		})
		t.Run("Close", func(t *testing.T) {
			testClose(t, factory(t))
		})
		t.Run("TwoConnections", func(t *testing.T) {
			testTwoConnections(t, factory(t))
		})
		t.Run("NameIsolation", func(t *testing.T) {
			testNameIsolation(t, factory(t))
		})
		t.Run("InvalidName", func(t *testing.T) {
			testInvalidName(t, factory(t))
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

func boolPtr(b bool) *bool { return &b }

// schemas used across the suite. Each is normalized as larder would.
var (
	itemStore = types.StoreSchema{
		Name: "item",
		Indexes: []types.IndexSpec{
			{Key: "color"},
			{Key: "sku", Unique: true},
		},
	}.Normalize()
	userStore = types.StoreSchema{
		Name:          "user",
		KeyPath:       "email",
		AutoIncrement: boolPtr(false),
	}.Normalize()
	docStore = types.StoreSchema{
		Name:         "doc",
		KeyPath:      "meta.id",
		KeyGenerator: types.KeyGeneratorUUID,
	}.Normalize()
)

func createAll(stores ...types.StoreSchema) types.UpgradeFunc {
	return func(tx types.SchemaTx, _, _ uint64) error {
		for _, s := range stores {
			if tx.HasStore(s.Name) {
				continue
			}
			if err := tx.CreateStore(s); err != nil {
				return err
			}
		}
		return nil
	}
}

func open(t *testing.T, e types.Engine) types.Conn {
	t.Helper()
	conn, err := e.Open(context.Background(), "suite", 1, createAll(itemStore, userStore, docStore))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// write runs fn in a read-write transaction and commits.
func write(t *testing.T, conn types.Conn, store string, fn func(types.Txn) error) {
	t.Helper()
	txn, err := conn.Begin(context.Background(), store, types.ReadWrite)
	require.NoError(t, err)
	if err := fn(txn); err != nil {
		txn.Rollback()
		require.NoError(t, err)
	}
	require.NoError(t, txn.Commit())
}

// read runs fn in a read-only transaction.
func read(t *testing.T, conn types.Conn, store string, fn func(types.Txn)) {
	t.Helper()
	txn, err := conn.Begin(context.Background(), store, types.ReadOnly)
	require.NoError(t, err)
	defer txn.Commit()
	fn(txn)
}

func add(t *testing.T, conn types.Conn, store string, recs ...types.Record) []types.Key {
	t.Helper()
	var out []types.Key
	write(t, conn, store, func(txn types.Txn) error {
		for _, r := range recs {
			k, err := txn.Add(r)
			if err != nil {
				return err
			}
			out = append(out, k)
		}
		return nil
	})
	return out
}

func get(t *testing.T, conn types.Conn, store string, key types.Key) (types.Record, error) {
	t.Helper()
	var rec types.Record
	var err error
	read(t, conn, store, func(txn types.Txn) {
		rec, err = txn.Get(key)
	})
	return rec, err
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testOpenCreatesStores(t *testing.T, e types.Engine) {
	conn := open(t, e)

	assert.Equal(t, "suite", conn.Name())
	assert.Equal(t, uint64(1), conn.Version())
	assert.Equal(t, []string{"doc", "item", "user"}, conn.StoreNames())

	got, ok := conn.Schema("item")
	require.True(t, ok)
	if diff := cmp.Diff(itemStore, got); diff != "" {
		t.Errorf("schema mismatch (-want +got):\n%s", diff)
	}

	_, ok = conn.Schema("missing")
	assert.False(t, ok)

	_, err := conn.Begin(context.Background(), "missing", types.ReadOnly)
	assert.ErrorIs(t, err, types.ErrStoreNotFound)
}

func testVersioning(t *testing.T, e types.Engine) {
	ctx := context.Background()

	_, err := e.Open(ctx, "versions", 0, nil)
	assert.ErrorIs(t, err, types.ErrVersionInvalid)

	calls := 0
	upgrade := func(tx types.SchemaTx, oldV, newV uint64) error {
		calls++
		return createAll(itemStore)(tx, oldV, newV)
	}

	conn, err := e.Open(ctx, "versions", 2, upgrade)
	require.NoError(t, err)
	require.NoError(t, conn.Close())
	assert.Equal(t, 1, calls)

	conn, err = e.Open(ctx, "versions", 2, upgrade)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), conn.Version())
	require.NoError(t, conn.Close())
	assert.Equal(t, 1, calls, "upgrade must not run at the stored version")

	var gotOld, gotNew uint64
	conn, err = e.Open(ctx, "versions", 3, func(tx types.SchemaTx, oldV, newV uint64) error {
		gotOld, gotNew = oldV, newV
		assert.True(t, tx.HasStore("item"))
		assert.Equal(t, []string{"item"}, tx.StoreNames())
		return createAll(itemStore, userStore)(tx, oldV, newV)
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), gotOld)
	assert.Equal(t, uint64(3), gotNew)
	assert.Equal(t, []string{"item", "user"}, conn.StoreNames())
	require.NoError(t, conn.Close())

	_, err = e.Open(ctx, "versions", 1, upgrade)
	assert.ErrorIs(t, err, types.ErrVersion)
}

func testFailedUpgrade(t *testing.T, e types.Engine) {
	ctx := context.Background()
	boom := errors.New("boom")

	_, err := e.Open(ctx, "failing", 1, func(tx types.SchemaTx, _, _ uint64) error {
		require.NoError(t, tx.CreateStore(itemStore))
		err := tx.CreateStore(itemStore)
		assert.ErrorIs(t, err, types.ErrConstraint)
		return boom
	})
	require.ErrorIs(t, err, boom)

	conn, err := e.Open(ctx, "failing", 1, createAll(userStore))
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, []string{"user"}, conn.StoreNames())
}

func testAddGet(t *testing.T, e types.Engine) {
	conn := open(t, e)

	rec := types.Record{"name": "lamp", "tags": []any{"a", "b"}, "dims": map[string]any{"h": 1.5}}
	keys := add(t, conn, "item", rec)
	require.Equal(t, []types.Key{float64(1)}, keys)
	_, hasID := rec["id"]
	assert.False(t, hasID, "caller's record must not be mutated")

	got, err := get(t, conn, "item", 1)
	require.NoError(t, err)
	want := types.Record{"id": float64(1), "name": "lamp", "tags": []any{"a", "b"}, "dims": map[string]any{"h": 1.5}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}

	_, err = get(t, conn, "item", 2)
	assert.ErrorIs(t, err, types.ErrNotFound)

	txn, err := conn.Begin(context.Background(), "item", types.ReadWrite)
	require.NoError(t, err)
	_, err = txn.Add(types.Record{"id": 1, "name": "dup"})
	assert.ErrorIs(t, err, types.ErrConstraint)
	_, err = txn.Add(types.Record{"id": []any{1}})
	assert.ErrorIs(t, err, types.ErrDataError)
	_, err = txn.Add(nil)
	assert.ErrorIs(t, err, types.ErrDataError)
	require.NoError(t, txn.Rollback())
}

func testPut(t *testing.T, e types.Engine) {
	conn := open(t, e)
	add(t, conn, "item", types.Record{"name": "lamp", "color": "red"})

	write(t, conn, "item", func(txn types.Txn) error {
		k, err := txn.Put(types.Record{"id": 1, "name": "lamp", "color": "blue"})
		assert.Equal(t, float64(1), k)
		return err
	})

	got, err := get(t, conn, "item", 1)
	require.NoError(t, err)
	assert.Equal(t, "blue", got["color"])

	read(t, conn, "item", func(txn types.Txn) {
		_, err := txn.GetByIndex("color", "red")
		assert.ErrorIs(t, err, types.ErrNotFound, "stale index entry")
		rec, err := txn.GetByIndex("color", "blue")
		require.NoError(t, err)
		assert.Equal(t, float64(1), rec["id"])
		n, err := txn.Count()
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})
}

func testKeyOrder(t *testing.T, e types.Engine) {
	conn := open(t, e)
	add(t, conn, "user",
		types.Record{"email": "b@x"},
		types.Record{"email": "a@x"},
		types.Record{"email": 10},
		types.Record{"email": -2.5},
		types.Record{"email": 3},
	)

	read(t, conn, "user", func(txn types.Txn) {
		all, err := txn.GetAll()
		require.NoError(t, err)
		var got []any
		for _, r := range all {
			got = append(got, r["email"])
		}
		want := []any{-2.5, float64(3), float64(10), "a@x", "b@x"}
		assert.Equal(t, want, got)
	})
}

func testSequence(t *testing.T, e types.Engine) {
	conn := open(t, e)

	keys := add(t, conn, "item", types.Record{"n": 1}, types.Record{"n": 2})
	assert.Equal(t, []types.Key{float64(1), float64(2)}, keys)

	keys = add(t, conn, "item", types.Record{"id": 10.7}, types.Record{"n": 3})
	assert.Equal(t, []types.Key{10.7, float64(11)}, keys)

	// Keys below the generator and string keys leave it alone.
	keys = add(t, conn, "item", types.Record{"id": 5}, types.Record{"id": "s"}, types.Record{"n": 4})
	assert.Equal(t, []types.Key{float64(5), "s", float64(12)}, keys)
}

func testUUIDGenerator(t *testing.T, e types.Engine) {
	conn := open(t, e)

	keys := add(t, conn, "doc", types.Record{"body": "a"}, types.Record{"body": "b"})
	require.Len(t, keys, 2)
	k0, ok := keys[0].(string)
	require.True(t, ok, "uuid keys are strings")
	assert.Len(t, k0, 36)
	assert.NotEqual(t, keys[0], keys[1])

	got, err := get(t, conn, "doc", k0)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": k0}, got["meta"])
}

func testManualKeys(t *testing.T, e types.Engine) {
	conn := open(t, e)

	txn, err := conn.Begin(context.Background(), "user", types.ReadWrite)
	require.NoError(t, err)
	_, err = txn.Add(types.Record{"name": "no key"})
	assert.ErrorIs(t, err, types.ErrDataError)
	require.NoError(t, txn.Rollback())

	keys := add(t, conn, "user", types.Record{"email": "a@x", "name": "A"})
	assert.Equal(t, []types.Key{"a@x"}, keys)
}

func testDottedKeyPath(t *testing.T, e types.Engine) {
	conn := open(t, e)

	keys := add(t, conn, "doc", types.Record{"meta": map[string]any{"id": "fixed"}, "body": "x"})
	assert.Equal(t, []types.Key{"fixed"}, keys)

	got, err := get(t, conn, "doc", "fixed")
	require.NoError(t, err)
	assert.Equal(t, "x", got["body"])
}

func testIndex(t *testing.T, e types.Engine) {
	conn := open(t, e)
	add(t, conn, "item",
		types.Record{"id": 3, "color": "red"},
		types.Record{"id": 1, "color": "red"},
		types.Record{"id": 2, "color": 7},
		types.Record{"id": 4},
		types.Record{"id": 5, "color": []any{"not", "a", "key"}},
	)

	read(t, conn, "item", func(txn types.Txn) {
		rec, err := txn.GetByIndex("color", "red")
		require.NoError(t, err)
		assert.Equal(t, float64(1), rec["id"], "lowest primary key wins")

		rec, err = txn.GetByIndex("color", 7)
		require.NoError(t, err)
		assert.Equal(t, float64(2), rec["id"])

		_, err = txn.GetByIndex("color", "green")
		assert.ErrorIs(t, err, types.ErrNotFound)

		_, err = txn.GetByIndex("size", "L")
		assert.ErrorIs(t, err, types.ErrIndexNotFound)
	})
}

func testUniqueIndex(t *testing.T, e types.Engine) {
	conn := open(t, e)
	add(t, conn, "item", types.Record{"sku": "A-1"})

	txn, err := conn.Begin(context.Background(), "item", types.ReadWrite)
	require.NoError(t, err)
	_, err = txn.Add(types.Record{"sku": "A-1"})
	assert.ErrorIs(t, err, types.ErrConstraint)
	require.NoError(t, txn.Rollback())

	// Rewriting the same record keeps its own unique value.
	write(t, conn, "item", func(txn types.Txn) error {
		_, err := txn.Put(types.Record{"id": 1, "sku": "A-1", "name": "renamed"})
		return err
	})

	// A freed value can be reused.
	write(t, conn, "item", func(txn types.Txn) error {
		if err := txn.Delete(1); err != nil {
			return err
		}
		_, err := txn.Add(types.Record{"sku": "A-1"})
		return err
	})
	read(t, conn, "item", func(txn types.Txn) {
		rec, err := txn.GetByIndex("sku", "A-1")
		require.NoError(t, err)
		assert.Equal(t, float64(2), rec["id"])
	})
}

func testDeleteClearCount(t *testing.T, e types.Engine) {
	conn := open(t, e)
	add(t, conn, "item",
		types.Record{"color": "red"},
		types.Record{"color": "blue"},
		types.Record{"color": "red"},
	)

	write(t, conn, "item", func(txn types.Txn) error {
		if err := txn.Delete(1); err != nil {
			return err
		}
		return txn.Delete(42)
	})
	read(t, conn, "item", func(txn types.Txn) {
		n, err := txn.Count()
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		rec, err := txn.GetByIndex("color", "red")
		require.NoError(t, err)
		assert.Equal(t, float64(3), rec["id"])
	})

	write(t, conn, "item", func(txn types.Txn) error { return txn.Clear() })
	read(t, conn, "item", func(txn types.Txn) {
		n, err := txn.Count()
		require.NoError(t, err)
		assert.Zero(t, n)
		all, err := txn.GetAll()
		require.NoError(t, err)
		assert.Empty(t, all)
		_, err = txn.GetByIndex("color", "blue")
		assert.ErrorIs(t, err, types.ErrNotFound)
	})

	keys := add(t, conn, "item", types.Record{"color": "green"})
	assert.Equal(t, []types.Key{float64(4)}, keys, "clear keeps the generator")
}

func testRollback(t *testing.T, e types.Engine) {
	conn := open(t, e)
	add(t, conn, "item", types.Record{"name": "keep", "color": "red"})

	txn, err := conn.Begin(context.Background(), "item", types.ReadWrite)
	require.NoError(t, err)
	_, err = txn.Add(types.Record{"name": "discard"})
	require.NoError(t, err)
	_, err = txn.Put(types.Record{"id": 1, "name": "changed", "color": "blue"})
	require.NoError(t, err)
	require.NoError(t, txn.Rollback())
	require.NoError(t, txn.Rollback(), "second rollback is a no-op")

	got, err := get(t, conn, "item", 1)
	require.NoError(t, err)
	assert.Equal(t, "keep", got["name"])

	read(t, conn, "item", func(txn types.Txn) {
		n, err := txn.Count()
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		_, err = txn.GetByIndex("color", "red")
		assert.NoError(t, err)
	})

	keys := add(t, conn, "item", types.Record{"name": "next"})
	assert.Equal(t, []types.Key{float64(2)}, keys, "rolled back keys are reused")
}

func testModes(t *testing.T, e types.Engine) {
	conn := open(t, e)

	txn, err := conn.Begin(context.Background(), "item", types.ReadOnly)
	require.NoError(t, err)
	_, err = txn.Add(types.Record{"name": "x"})
	assert.ErrorIs(t, err, types.ErrReadOnly)
	_, err = txn.Put(types.Record{"name": "x"})
	assert.ErrorIs(t, err, types.ErrReadOnly)
	assert.ErrorIs(t, txn.Delete(1), types.ErrReadOnly)
	assert.ErrorIs(t, txn.Clear(), types.ErrReadOnly)
	require.NoError(t, txn.Commit())

	_, err = txn.Get(1)
	assert.ErrorIs(t, err, types.ErrTxnDone)
	assert.ErrorIs(t, txn.Commit(), types.ErrTxnDone)
	assert.NoError(t, txn.Rollback())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = conn.Begin(ctx, "item", types.ReadOnly)
	assert.Error(t, err)
}

func testReopen(t *testing.T, e types.Engine) {
	ctx := context.Background()
	conn, err := e.Open(ctx, "reopen", 1, createAll(itemStore))
	require.NoError(t, err)
	add(t, conn, "item", types.Record{"color": "red"}, types.Record{"color": "blue"})
	size, err := conn.Size()
	require.NoError(t, err)
	assert.Positive(t, size)
	require.NoError(t, conn.Close())

	conn, err = e.Open(ctx, "reopen", 1, nil)
	require.NoError(t, err)
	defer conn.Close()

	read(t, conn, "item", func(txn types.Txn) {
		rec, err := txn.GetByIndex("color", "blue")
		require.NoError(t, err)
		assert.Equal(t, float64(2), rec["id"])
	})
	keys := add(t, conn, "item", types.Record{"color": "green"})
	assert.Equal(t, []types.Key{float64(3)}, keys)
}

func testClose(t *testing.T, e types.Engine) {
	conn, err := e.Open(context.Background(), "closing", 1, createAll(itemStore))
	require.NoError(t, err)

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())

	_, err = conn.Begin(context.Background(), "item", types.ReadOnly)
	assert.ErrorIs(t, err, types.ErrClosed)
	_, err = conn.Size()
	assert.ErrorIs(t, err, types.ErrClosed)
}

func testTwoConnections(t *testing.T, e types.Engine) {
	ctx := context.Background()
	first, err := e.Open(ctx, "two", 1, createAll(itemStore))
	require.NoError(t, err)
	second, err := e.Open(ctx, "two", 1, nil)
	require.NoError(t, err)
	defer second.Close()

	add(t, first, "item", types.Record{"color": "red"})
	rec, err := get(t, second, "item", 1)
	require.NoError(t, err)
	assert.Equal(t, "red", rec["color"])

	require.NoError(t, first.Close())

	keys := add(t, second, "item", types.Record{"color": "blue"})
	assert.Equal(t, []types.Key{float64(2)}, keys)
	read(t, second, "item", func(txn types.Txn) {
		n, err := txn.Count()
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})
}

func testNameIsolation(t *testing.T, e types.Engine) {
	ctx := context.Background()
	names := []string{"notes#a", "notes#b", "notes", "what?x=1", "what", "50%"}
	for _, name := range names {
		conn, err := e.Open(ctx, name, 1, createAll(itemStore))
		require.NoError(t, err, name)
		add(t, conn, "item", types.Record{"color": name})
		require.NoError(t, conn.Close())
	}

	for _, name := range names {
		conn, err := e.Open(ctx, name, 1, nil)
		require.NoError(t, err, name)
		read(t, conn, "item", func(txn types.Txn) {
			all, err := txn.GetAll()
			require.NoError(t, err)
			require.Len(t, all, 1, name)
			assert.Equal(t, name, all[0]["color"])
		})
		size, err := conn.Size()
		require.NoError(t, err)
		assert.Positive(t, size, name)
		require.NoError(t, conn.Close())
	}
}

func testInvalidName(t *testing.T, e types.Engine) {
	for _, name := range []string{"", "..", "../escaped", "a/b"} {
		_, err := e.Open(context.Background(), name, 1, createAll(itemStore))
		assert.Error(t, err, name)
	}
}
