package larder

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/mesh-intelligence/larder/internal/keys"
	"github.com/mesh-intelligence/larder/pkg/types"
)

// Operation names used in errors, logs, and metrics.
const (
	opGetByAttr   = "get_by_attr"
	opInsert      = "insert"
	opGetAll      = "get_all"
	opGetByKey    = "get_by_key"
	opAdd         = "add"
	opDeleteByKey = "delete_by_key"
	opUpdateByKey = "update_by_key"
	opClear       = "clear"
	opCount       = "count"
	opExport      = "export"
	opImport      = "import"
)

// GetByAttr returns the first record whose indexed value equals the value
// of the lexicographically first attribute in attrs. The index looked up
// is the one named after that attribute. Empty attrs returns (nil, nil).
//
// Returns types.ErrIndexNotFound when the store has no such index and
// types.ErrNotFound when nothing matches.
func (db *Database) GetByAttr(ctx context.Context, store string, attrs types.Record) (types.Record, error) {
	if len(attrs) == 0 {
		return nil, nil
	}
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)
	attr := names[0]

	return transact(ctx, db, opGetByAttr, store, types.ReadOnly, func(txn types.Txn) (types.Record, error) {
		value, err := keys.Normalize(attrs[attr])
		if err != nil {
			return nil, err
		}
		return txn.GetByIndex(attr, value)
	})
}

// Insert adds every record in one transaction and returns the key of the
// last one. If any add fails nothing is written. Inserting no records
// returns (nil, nil).
func (db *Database) Insert(ctx context.Context, store string, records ...types.Record) (types.Key, error) {
	if len(records) == 0 {
		return nil, nil
	}
	return transact(ctx, db, opInsert, store, types.ReadWrite, func(txn types.Txn) (types.Key, error) {
		var last types.Key
		for i, rec := range records {
			key, err := txn.Add(rec)
			if err != nil {
				return nil, fmt.Errorf("record %d: %w", i, err)
			}
			last = key
		}
		return last, nil
	})
}

// GetAll returns every record in the store in ascending key order.
func (db *Database) GetAll(ctx context.Context, store string) ([]types.Record, error) {
	return transact(ctx, db, opGetAll, store, types.ReadOnly, func(txn types.Txn) ([]types.Record, error) {
		return txn.GetAll()
	})
}

// GetByKey returns the record stored under key, or types.ErrNotFound.
func (db *Database) GetByKey(ctx context.Context, store string, key types.Key) (types.Record, error) {
	return transact(ctx, db, opGetByKey, store, types.ReadOnly, func(txn types.Txn) (types.Record, error) {
		return txn.Get(key)
	})
}

// Add inserts record and returns its key, generated when the store
// auto-increments and the record has none. Returns types.ErrConstraint
// when the key or a unique index value is already taken.
func (db *Database) Add(ctx context.Context, store string, record types.Record) (types.Key, error) {
	return transact(ctx, db, opAdd, store, types.ReadWrite, func(txn types.Txn) (types.Key, error) {
		return txn.Add(record)
	})
}

// DeleteByKey removes the record under key. A falsy key (nil, 0, "", or
// false) does nothing, and deleting a missing key succeeds.
func (db *Database) DeleteByKey(ctx context.Context, store string, key types.Key) error {
	if keys.IsZero(key) {
		return nil
	}
	_, err := transact(ctx, db, opDeleteByKey, store, types.ReadWrite, func(txn types.Txn) (struct{}, error) {
		return struct{}{}, txn.Delete(key)
	})
	return err
}

// UpdateByKey merges record over the stored record with the same key and
// writes the result, reading and writing in one transaction. Fields of
// record replace stored fields; stored fields record lacks are kept. When
// nothing is stored under the key, record is inserted as is.
//
// A record without a key, or with a falsy one, is a no-op returning
// (nil, nil).
func (db *Database) UpdateByKey(ctx context.Context, store string, record types.Record) (types.Record, error) {
	keyPath := db.keyPath(store)
	raw, found := keys.Extract(record, keyPath)
	if !found || keys.IsZero(raw) {
		return nil, nil
	}

	return transact(ctx, db, opUpdateByKey, store, types.ReadWrite, func(txn types.Txn) (types.Record, error) {
		key, err := keys.Normalize(raw)
		if err != nil {
			return nil, err
		}
		merged, err := txn.Get(key)
		if errors.Is(err, types.ErrNotFound) {
			merged = types.Record{}
		} else if err != nil {
			return nil, err
		}
		for k, v := range record {
			merged[k] = v
		}
		if _, err := txn.Put(merged); err != nil {
			return nil, err
		}
		return merged, nil
	})
}

// keyPath returns the key path of store, falling back to the default
// store's and then to types.DefaultKeyPath.
func (db *Database) keyPath(store string) string {
	if s, ok := db.conn.Schema(db.storeName(store)); ok {
		return s.KeyPath
	}
	if s, ok := db.conn.Schema(db.cfg.DefaultStore()); ok {
		return s.KeyPath
	}
	return types.DefaultKeyPath
}

// Clear removes every record from the store. Key generators keep counting.
func (db *Database) Clear(ctx context.Context, store string) error {
	_, err := transact(ctx, db, opClear, store, types.ReadWrite, func(txn types.Txn) (struct{}, error) {
		return struct{}{}, txn.Clear()
	})
	return err
}

// Count returns the number of records in the store.
func (db *Database) Count(ctx context.Context, store string) (int, error) {
	return transact(ctx, db, opCount, store, types.ReadOnly, func(txn types.Txn) (int, error) {
		return txn.Count()
	})
}
