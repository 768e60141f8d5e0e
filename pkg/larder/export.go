package larder

import (
	"context"
	"fmt"
	"io"

	"github.com/mesh-intelligence/larder/internal/jsonl"
	"github.com/mesh-intelligence/larder/pkg/types"
)

// Export writes every record of the store to w as JSON lines, in key
// order, and returns how many were written.
func (db *Database) Export(ctx context.Context, store string, w io.Writer) (int, error) {
	records, err := transact(ctx, db, opExport, store, types.ReadOnly, func(txn types.Txn) ([]types.Record, error) {
		return txn.GetAll()
	})
	if err != nil {
		return 0, err
	}
	if err := jsonl.Encode(w, records); err != nil {
		return 0, &OpError{Op: opExport, Store: db.storeName(store), Err: err}
	}
	return len(records), nil
}

// Import reads JSON lines from r and puts each record into the store in
// one transaction, replacing records with the same key. It returns how
// many records were written. A malformed line fails the whole import.
func (db *Database) Import(ctx context.Context, store string, r io.Reader) (int, error) {
	records, err := jsonl.Decode(r, false)
	if err != nil {
		return 0, &OpError{Op: opImport, Store: db.storeName(store), Err: fmt.Errorf("%w: %v", types.ErrInvalidData, err)}
	}
	return db.ImportRecords(ctx, store, records)
}

// ImportRecords puts records into the store in one transaction, replacing
// records with the same key.
func (db *Database) ImportRecords(ctx context.Context, store string, records []types.Record) (int, error) {
	return transact(ctx, db, opImport, store, types.ReadWrite, func(txn types.Txn) (int, error) {
		for i, rec := range records {
			if _, err := txn.Put(rec); err != nil {
				return 0, fmt.Errorf("record %d: %w", i+1, err)
			}
		}
		return len(records), nil
	})
}
