// Package memory implements the "memory" storage engine. Databases live in
// a process-local registry keyed by name, so reopening a name in the same
// process sees the same data. Buckets are gods red-black trees ordered by
// byte comparison.
package memory

import (
	"bytes"
	"fmt"
	"sync"

	rbt "github.com/emirpasic/gods/trees/redblacktree"

	"github.com/mesh-intelligence/larder/internal/kvstore"
)

// database is one named in-memory database. mu serializes writers and lets
// readers run concurrently.
type database struct {
	mu      sync.RWMutex
	buckets map[string]*bucket
}

func newDatabase() *database {
	return &database{buckets: make(map[string]*bucket)}
}

type bucket struct {
	tree *rbt.Tree
	seq  uint64
}

func newBucket() *bucket {
	return &bucket{tree: rbt.NewWith(func(a, b interface{}) int {
		return bytes.Compare(a.([]byte), b.([]byte))
	})}
}

// size returns the bytes held by keys and values.
func (db *database) size() int64 {
	db.mu.RLock()
	defer db.mu.RUnlock()
	var n int64
	for name, b := range db.buckets {
		n += int64(len(name))
		it := b.tree.Iterator()
		for it.Next() {
			n += int64(len(it.Key().([]byte)) + len(it.Value().([]byte)))
		}
	}
	return n
}

// begin locks the database and returns a transaction. Writable
// transactions keep an undo log so Rollback restores the prior state.
func (db *database) begin(writable bool) *memTx {
	if writable {
		db.mu.Lock()
	} else {
		db.mu.RLock()
	}
	return &memTx{db: db, writable: writable}
}

var _ kvstore.Tx = (*memTx)(nil)

type memTx struct {
	db       *database
	writable bool
	undo     []func()
	done     bool
}

func (t *memTx) Bucket(name []byte) kvstore.Bucket {
	b, ok := t.db.buckets[string(name)]
	if !ok {
		return nil
	}
	return &memBucket{tx: t, b: b}
}

func (t *memTx) CreateBucket(name []byte) (kvstore.Bucket, error) {
	if !t.writable {
		return nil, fmt.Errorf("could not create bucket: transaction not writable")
	}
	key := string(name)
	if _, ok := t.db.buckets[key]; ok {
		return nil, fmt.Errorf("could not create bucket: %q exists", key)
	}
	b := newBucket()
	t.db.buckets[key] = b
	t.undo = append(t.undo, func() { delete(t.db.buckets, key) })
	return &memBucket{tx: t, b: b}, nil
}

func (t *memTx) Writable() bool { return t.writable }

func (t *memTx) Commit() error {
	if t.done {
		return fmt.Errorf("transaction closed")
	}
	t.done = true
	t.undo = nil
	t.unlock()
	return nil
}

func (t *memTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
	t.unlock()
	return nil
}

func (t *memTx) unlock() {
	if t.writable {
		t.db.mu.Unlock()
	} else {
		t.db.mu.RUnlock()
	}
}

var _ kvstore.Bucket = (*memBucket)(nil)

type memBucket struct {
	tx *memTx
	b  *bucket
}

func (m *memBucket) Get(key []byte) []byte {
	v, ok := m.b.tree.Get(key)
	if !ok {
		return nil
	}
	return v.([]byte)
}

func (m *memBucket) Put(key, value []byte) error {
	if !m.tx.writable {
		return fmt.Errorf("put: transaction not writable")
	}
	if len(key) == 0 {
		return fmt.Errorf("put: key required")
	}
	k := append([]byte(nil), key...)
	v := append([]byte{}, value...)
	m.recordUndo(k)
	m.b.tree.Put(k, v)
	return nil
}

func (m *memBucket) Delete(key []byte) error {
	if !m.tx.writable {
		return fmt.Errorf("delete: transaction not writable")
	}
	k := append([]byte(nil), key...)
	m.recordUndo(k)
	m.b.tree.Remove(k)
	return nil
}

// recordUndo remembers the current state of key so Rollback can restore it.
func (m *memBucket) recordUndo(key []byte) {
	tree := m.b.tree
	if prev, ok := tree.Get(key); ok {
		m.tx.undo = append(m.tx.undo, func() { tree.Put(key, prev) })
		return
	}
	m.tx.undo = append(m.tx.undo, func() { tree.Remove(key) })
}

// Scan seeks to the first key at or after prefix and walks forward while
// keys share it.
func (m *memBucket) Scan(prefix []byte, fn func(k, v []byte) (bool, error)) error {
	node, ok := m.b.tree.Ceiling(prefix)
	if !ok {
		return nil
	}
	it := m.b.tree.IteratorAt(node)
	for {
		k := it.Key().([]byte)
		if !bytes.HasPrefix(k, prefix) {
			return nil
		}
		more, err := fn(k, it.Value().([]byte))
		if err != nil {
			return err
		}
		if !more || !it.Next() {
			return nil
		}
	}
}

func (m *memBucket) Sequence() uint64 { return m.b.seq }

func (m *memBucket) SetSequence(v uint64) error {
	if !m.tx.writable {
		return fmt.Errorf("set sequence: transaction not writable")
	}
	b := m.b
	prev := b.seq
	m.tx.undo = append(m.tx.undo, func() { b.seq = prev })
	b.seq = v
	return nil
}
