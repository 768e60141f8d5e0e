package kvstore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mesh-intelligence/larder/internal/keys"
	"github.com/mesh-intelligence/larder/pkg/types"
)

var _ types.Txn = (*Txn)(nil)

// Txn implements types.Txn for one store over a byte-bucket transaction.
type Txn struct {
	tx      Tx
	schema  types.StoreSchema
	records Bucket
	done    bool
}

// NewTxn scopes tx to the store described by schema. The schema must come
// from the catalog. Returns types.ErrStoreNotFound if the store's bucket is
// missing.
func NewTxn(tx Tx, schema types.StoreSchema) (*Txn, error) {
	records := tx.Bucket(RecordBucket(schema.Name))
	if records == nil {
		return nil, fmt.Errorf("%w: %q", types.ErrStoreNotFound, schema.Name)
	}
	return &Txn{tx: tx, schema: schema, records: records}, nil
}

// Get implements types.Txn.Get.
func (t *Txn) Get(key types.Key) (types.Record, error) {
	if t.done {
		return nil, types.ErrTxnDone
	}
	enc, err := keys.Encode(key)
	if err != nil {
		return nil, err
	}
	return t.load(enc)
}

func (t *Txn) load(enc []byte) (types.Record, error) {
	v := t.records.Get(enc)
	if v == nil {
		return nil, types.ErrNotFound
	}
	return decodeRecord(v)
}

// GetAll implements types.Txn.GetAll.
func (t *Txn) GetAll() ([]types.Record, error) {
	if t.done {
		return nil, types.ErrTxnDone
	}
	out := []types.Record{}
	err := t.records.Scan(nil, func(_, v []byte) (bool, error) {
		rec, err := decodeRecord(v)
		if err != nil {
			return false, err
		}
		out = append(out, rec)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetByIndex implements types.Txn.GetByIndex.
func (t *Txn) GetByIndex(index string, value types.Key) (types.Record, error) {
	if t.done {
		return nil, types.ErrTxnDone
	}
	ib, err := t.indexBucket(index)
	if err != nil {
		return nil, err
	}
	prefix, err := keys.IndexPrefix(value)
	if err != nil {
		return nil, err
	}
	var primary []byte
	err = ib.Scan(prefix, func(_, v []byte) (bool, error) {
		primary = append([]byte(nil), v...)
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	if primary == nil {
		return nil, types.ErrNotFound
	}
	return t.load(primary)
}

// Count implements types.Txn.Count.
func (t *Txn) Count() (int, error) {
	if t.done {
		return 0, types.ErrTxnDone
	}
	n := 0
	err := t.records.Scan(nil, func(_, _ []byte) (bool, error) {
		n++
		return true, nil
	})
	return n, err
}

// Add implements types.Txn.Add.
func (t *Txn) Add(rec types.Record) (types.Key, error) {
	return t.write(rec, false)
}

// Put implements types.Txn.Put.
func (t *Txn) Put(rec types.Record) (types.Key, error) {
	return t.write(rec, true)
}

// Delete implements types.Txn.Delete.
func (t *Txn) Delete(key types.Key) error {
	if err := t.checkWritable(); err != nil {
		return err
	}
	enc, err := keys.Encode(key)
	if err != nil {
		return err
	}
	old, err := t.load(enc)
	if errors.Is(err, types.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := t.unindex(old, enc); err != nil {
		return err
	}
	return t.records.Delete(enc)
}

// Clear implements types.Txn.Clear.
func (t *Txn) Clear() error {
	if err := t.checkWritable(); err != nil {
		return err
	}
	if err := clearBucket(t.records); err != nil {
		return err
	}
	for _, idx := range t.schema.Indexes {
		ib, err := t.indexBucket(idx.Key)
		if err != nil {
			return err
		}
		if err := clearBucket(ib); err != nil {
			return err
		}
	}
	return nil
}

// Commit implements types.Txn.Commit. Read-only transactions are released
// rather than committed.
func (t *Txn) Commit() error {
	if t.done {
		return types.ErrTxnDone
	}
	t.done = true
	if !t.tx.Writable() {
		return t.tx.Rollback()
	}
	return t.tx.Commit()
}

// Rollback implements types.Txn.Rollback. It is a no-op after Commit.
func (t *Txn) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	return t.tx.Rollback()
}

func (t *Txn) checkWritable() error {
	if t.done {
		return types.ErrTxnDone
	}
	if !t.tx.Writable() {
		return types.ErrReadOnly
	}
	return nil
}

func (t *Txn) indexBucket(index string) (Bucket, error) {
	if _, ok := t.schema.Index(index); !ok {
		return nil, fmt.Errorf("%w: %q on store %q", types.ErrIndexNotFound, index, t.schema.Name)
	}
	ib := t.tx.Bucket(IndexBucket(t.schema.Name, index))
	if ib == nil {
		return nil, fmt.Errorf("%w: %q on store %q", types.ErrIndexNotFound, index, t.schema.Name)
	}
	return ib, nil
}

func (t *Txn) write(rec types.Record, overwrite bool) (types.Key, error) {
	if err := t.checkWritable(); err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: nil record", types.ErrDataError)
	}
	r := types.CloneRecord(rec)
	key, err := keys.Resolve(r, t.schema, bucketSequence{t.records})
	if err != nil {
		return nil, err
	}
	enc, err := keys.Encode(key)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrDataError, err)
	}

	var old types.Record
	if v := t.records.Get(enc); v != nil {
		if !overwrite {
			return nil, fmt.Errorf("%w: key %v already exists in %q", types.ErrConstraint, key, t.schema.Name)
		}
		if old, err = decodeRecord(v); err != nil {
			return nil, err
		}
	}

	if err := t.checkUnique(r, enc); err != nil {
		return nil, err
	}
	if old != nil {
		if err := t.unindex(old, enc); err != nil {
			return nil, err
		}
	}
	if err := t.records.Put(enc, data); err != nil {
		return nil, err
	}
	if err := t.index(r, enc); err != nil {
		return nil, err
	}
	return key, nil
}

// bucketSequence adapts a record bucket's sequence to keys.Sequence.
type bucketSequence struct{ b Bucket }

func (s bucketSequence) Sequence() (uint64, error)  { return s.b.Sequence(), nil }
func (s bucketSequence) SetSequence(v uint64) error { return s.b.SetSequence(v) }

func (t *Txn) checkUnique(r types.Record, enc []byte) error {
	for _, idx := range t.schema.Indexes {
		if !idx.Unique {
			continue
		}
		value, ok := keys.IndexValue(r, idx.Key)
		if !ok {
			continue
		}
		ib, err := t.indexBucket(idx.Key)
		if err != nil {
			return err
		}
		prefix, err := keys.IndexPrefix(value)
		if err != nil {
			return err
		}
		taken := false
		err = ib.Scan(prefix, func(_, v []byte) (bool, error) {
			if !bytes.Equal(v, enc) {
				taken = true
				return false, nil
			}
			return true, nil
		})
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("%w: unique index %q already has value %v", types.ErrConstraint, idx.Key, value)
		}
	}
	return nil
}

func (t *Txn) index(r types.Record, enc []byte) error {
	return t.eachEntry(r, enc, func(ib Bucket, entry []byte) error {
		return ib.Put(entry, enc)
	})
}

func (t *Txn) unindex(r types.Record, enc []byte) error {
	return t.eachEntry(r, enc, func(ib Bucket, entry []byte) error {
		return ib.Delete(entry)
	})
}

func (t *Txn) eachEntry(r types.Record, enc []byte, fn func(ib Bucket, entry []byte) error) error {
	for _, idx := range t.schema.Indexes {
		value, ok := keys.IndexValue(r, idx.Key)
		if !ok {
			continue
		}
		ib, err := t.indexBucket(idx.Key)
		if err != nil {
			return err
		}
		entry, err := keys.IndexEntry(value, enc)
		if err != nil {
			return err
		}
		if err := fn(ib, entry); err != nil {
			return err
		}
	}
	return nil
}

func clearBucket(b Bucket) error {
	var all [][]byte
	err := b.Scan(nil, func(k, _ []byte) (bool, error) {
		all = append(all, append([]byte(nil), k...))
		return true, nil
	})
	if err != nil {
		return err
	}
	for _, k := range all {
		if err := b.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

func decodeRecord(v []byte) (types.Record, error) {
	var rec types.Record
	if err := json.Unmarshal(v, &rec); err != nil {
		return nil, fmt.Errorf("decoding record: %w", err)
	}
	return rec, nil
}
