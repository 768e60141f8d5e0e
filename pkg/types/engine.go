package types

import "context"

// Engine is a storage implementation that larder can open databases on.
// Engines own durability, indexing, and transaction isolation.
type Engine interface {
	// Name returns the backend name the engine is registered under.
	Name() string

	// Available reports whether the engine can run in this environment.
	// A non-nil result means the capability is absent.
	Available() error

	// Open opens or creates the named database. When the stored version is
	// lower than version (or the database is new), upgrade runs inside a
	// single schema transaction and the stored version is bumped.
	// Returns ErrVersion if the stored version is higher than version.
	Open(ctx context.Context, name string, version uint64, upgrade UpgradeFunc) (Conn, error)
}

// UpgradeFunc creates the schema for a new database version.
type UpgradeFunc func(tx SchemaTx, oldVersion, newVersion uint64) error

// SchemaTx is the view of the database available during an upgrade.
type SchemaTx interface {
	StoreNames() []string
	HasStore(name string) bool
	// CreateStore creates the store and its indexes. The schema must be
	// normalized. Returns ErrConstraint if the store already exists.
	CreateStore(schema StoreSchema) error
}

// Conn is an open database handle.
type Conn interface {
	Name() string
	Version() uint64

	// StoreNames returns the names of all stores, sorted.
	StoreNames() []string

	// Schema returns the stored schema for a store.
	Schema(store string) (StoreSchema, bool)

	// Begin starts a transaction scoped to one store.
	// Returns ErrStoreNotFound if the store does not exist and ErrClosed
	// if the connection was closed.
	Begin(ctx context.Context, store string, mode Mode) (Txn, error)

	// Size returns the bytes used by the database.
	Size() (int64, error)

	// Close releases the connection. Close is idempotent.
	Close() error
}

// Txn is a transaction over a single store. It must only be used by one
// goroutine and must end with exactly one Commit or Rollback.
type Txn interface {
	// Get returns the record stored under key, or ErrNotFound.
	Get(key Key) (Record, error)

	// GetAll returns every record in ascending key order.
	GetAll() ([]Record, error)

	// GetByIndex returns the first record (in primary key order) whose
	// indexed value equals value. Returns ErrIndexNotFound if the store has
	// no such index, ErrNotFound if nothing matches.
	GetByIndex(index string, value Key) (Record, error)

	// Count returns the number of records.
	Count() (int, error)

	// Add inserts rec and returns its key. Returns ErrConstraint if the key
	// or a unique index value is taken.
	Add(rec Record) (Key, error)

	// Put inserts or replaces rec and returns its key.
	Put(rec Record) (Key, error)

	// Delete removes the record under key. A missing key is not an error.
	Delete(key Key) error

	// Clear removes every record.
	Clear() error

	Commit() error
	Rollback() error
}
