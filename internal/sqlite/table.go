package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mesh-intelligence/larder/internal/keys"
	"github.com/mesh-intelligence/larder/pkg/types"
)

var _ types.Txn = (*table)(nil)

// table implements types.Txn for one store inside a SQLite transaction.
type table struct {
	ctx  context.Context
	tx   *sql.Tx
	info storeInfo
	mode types.Mode
	done bool
}

func (t *table) records() string { return storeTable(t.info.id) }

// indexPos returns the position of an index in the store schema, which is
// also the suffix of its table name.
func (t *table) indexPos(index string) (int, error) {
	for i, idx := range t.info.schema.Indexes {
		if idx.Key == index {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: %q on store %q", types.ErrIndexNotFound, index, t.info.schema.Name)
}

// Get implements types.Txn.Get.
func (t *table) Get(key types.Key) (types.Record, error) {
	if t.done {
		return nil, types.ErrTxnDone
	}
	enc, err := keys.Encode(key)
	if err != nil {
		return nil, err
	}
	return t.load(enc)
}

func (t *table) load(enc []byte) (types.Record, error) {
	var raw string
	err := t.tx.QueryRowContext(t.ctx, "SELECT value FROM "+t.records()+" WHERE pk = ?", enc).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading record: %w", err)
	}
	return decodeRecord(raw)
}

// GetAll implements types.Txn.GetAll. BLOB keys compare bytewise, so
// ORDER BY pk yields key order.
func (t *table) GetAll() ([]types.Record, error) {
	if t.done {
		return nil, types.ErrTxnDone
	}
	rows, err := t.tx.QueryContext(t.ctx, "SELECT value FROM "+t.records()+" ORDER BY pk")
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	defer rows.Close()

	out := []types.Record{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		rec, err := decodeRecord(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GetByIndex implements types.Txn.GetByIndex.
func (t *table) GetByIndex(index string, value types.Key) (types.Record, error) {
	if t.done {
		return nil, types.ErrTxnDone
	}
	pos, err := t.indexPos(index)
	if err != nil {
		return nil, err
	}
	ik, err := keys.Encode(value)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(
		"SELECT s.value FROM %s i JOIN %s s ON s.pk = i.pk WHERE i.ik = ? ORDER BY i.pk LIMIT 1",
		indexTable(t.info.id, pos), t.records())
	var raw string
	err = t.tx.QueryRowContext(t.ctx, query, ik).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying index %q: %w", index, err)
	}
	return decodeRecord(raw)
}

// Count implements types.Txn.Count.
func (t *table) Count() (int, error) {
	if t.done {
		return 0, types.ErrTxnDone
	}
	var n int
	if err := t.tx.QueryRowContext(t.ctx, "SELECT COUNT(*) FROM "+t.records()).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting records: %w", err)
	}
	return n, nil
}

// Add implements types.Txn.Add.
func (t *table) Add(rec types.Record) (types.Key, error) {
	return t.write(rec, false)
}

// Put implements types.Txn.Put.
func (t *table) Put(rec types.Record) (types.Key, error) {
	return t.write(rec, true)
}

func (t *table) write(rec types.Record, overwrite bool) (types.Key, error) {
	if err := t.checkWritable(); err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: nil record", types.ErrDataError)
	}
	r := types.CloneRecord(rec)
	key, err := keys.Resolve(r, t.info.schema, rowSequence{t})
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

	if overwrite {
		if err := t.unindex(enc); err != nil {
			return nil, err
		}
		_, err = t.tx.ExecContext(t.ctx,
			"INSERT INTO "+t.records()+" (pk, value) VALUES (?, ?) ON CONFLICT(pk) DO UPDATE SET value = excluded.value",
			enc, string(data))
	} else {
		_, err = t.tx.ExecContext(t.ctx, "INSERT INTO "+t.records()+" (pk, value) VALUES (?, ?)", enc, string(data))
	}
	if err != nil {
		return nil, mapError(fmt.Sprintf("writing key %v to %q", key, t.info.schema.Name), err)
	}
	if err := t.index(r, enc); err != nil {
		return nil, err
	}
	return key, nil
}

func (t *table) index(r types.Record, enc []byte) error {
	for pos, idx := range t.info.schema.Indexes {
		value, ok := keys.IndexValue(r, idx.Key)
		if !ok {
			continue
		}
		ik, err := keys.Encode(value)
		if err != nil {
			return err
		}
		_, err = t.tx.ExecContext(t.ctx, "INSERT INTO "+indexTable(t.info.id, pos)+" (ik, pk) VALUES (?, ?)", ik, enc)
		if err != nil {
			return mapError(fmt.Sprintf("indexing %q value %v", idx.Key, value), err)
		}
	}
	return nil
}

func (t *table) unindex(enc []byte) error {
	for pos := range t.info.schema.Indexes {
		if _, err := t.tx.ExecContext(t.ctx, "DELETE FROM "+indexTable(t.info.id, pos)+" WHERE pk = ?", enc); err != nil {
			return fmt.Errorf("removing index entries: %w", err)
		}
	}
	return nil
}

// Delete implements types.Txn.Delete.
func (t *table) Delete(key types.Key) error {
	if err := t.checkWritable(); err != nil {
		return err
	}
	enc, err := keys.Encode(key)
	if err != nil {
		return err
	}
	if err := t.unindex(enc); err != nil {
		return err
	}
	if _, err := t.tx.ExecContext(t.ctx, "DELETE FROM "+t.records()+" WHERE pk = ?", enc); err != nil {
		return fmt.Errorf("deleting record: %w", err)
	}
	return nil
}

// Clear implements types.Txn.Clear. The key generator is left untouched.
func (t *table) Clear() error {
	if err := t.checkWritable(); err != nil {
		return err
	}
	for pos := range t.info.schema.Indexes {
		if _, err := t.tx.ExecContext(t.ctx, "DELETE FROM "+indexTable(t.info.id, pos)); err != nil {
			return fmt.Errorf("clearing index: %w", err)
		}
	}
	if _, err := t.tx.ExecContext(t.ctx, "DELETE FROM "+t.records()); err != nil {
		return fmt.Errorf("clearing records: %w", err)
	}
	return nil
}

// Commit implements types.Txn.Commit.
func (t *table) Commit() error {
	if t.done {
		return types.ErrTxnDone
	}
	t.done = true
	if t.mode == types.ReadOnly {
		return t.tx.Rollback()
	}
	if err := t.tx.Commit(); err != nil {
		return mapError("commit", err)
	}
	return nil
}

// Rollback implements types.Txn.Rollback. It is a no-op after Commit.
func (t *table) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	return t.tx.Rollback()
}

func (t *table) checkWritable() error {
	if t.done {
		return types.ErrTxnDone
	}
	if t.mode == types.ReadOnly {
		return types.ErrReadOnly
	}
	return nil
}

// rowSequence stores the key generator in the store's catalog row.
type rowSequence struct{ t *table }

func (s rowSequence) Sequence() (uint64, error) {
	var v int64
	err := s.t.tx.QueryRowContext(s.t.ctx, "SELECT seq FROM larder_stores WHERE id = ?", s.t.info.id).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("reading key generator: %w", err)
	}
	return uint64(v), nil
}

func (s rowSequence) SetSequence(v uint64) error {
	_, err := s.t.tx.ExecContext(s.t.ctx, "UPDATE larder_stores SET seq = ? WHERE id = ?", int64(v), s.t.info.id)
	if err != nil {
		return fmt.Errorf("writing key generator: %w", err)
	}
	return nil
}

func decodeRecord(raw string) (types.Record, error) {
	var rec types.Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("decoding record: %w", err)
	}
	return rec, nil
}
