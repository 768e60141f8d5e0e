package larder

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/larder/internal/log"
	"github.com/mesh-intelligence/larder/pkg/types"
)

// Option configures Open.
type Option func(*options)

type options struct {
	logger *zap.Logger
	engine types.Engine
}

// WithLogger sets the logger used by the database and its engine. Without
// it Open uses the logger carried by the context, then the global zap
// logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithEngine opens the database on engine instead of the one registered
// for Config.Backend.
func WithEngine(engine types.Engine) Option {
	return func(o *options) { o.engine = engine }
}

// Database is an open database. It is safe for concurrent use; each call
// runs in its own transaction.
type Database struct {
	cfg    types.Config
	conn   types.Conn
	logger *zap.Logger

	closeOnce sync.Once
	closeErr  error
}

// Open validates cfg, checks that its engine can run here, and opens the
// database. When the stored version is lower than cfg.Version (or the
// database is new) every declared store that does not exist yet is
// created with its indexes.
//
// Returns an error wrapping types.ErrUnsupported when the engine is not
// registered or not available, types.ErrVersion when the stored version is
// higher than cfg.Version, and the config validation errors of types.
func Open(ctx context.Context, cfg types.Config, opts ...Option) (*Database, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		logger = log.Logger(ctx)
	}
	if logger == nil {
		logger = zap.L()
	}

	cfg = cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("larder: open: %w", err)
	}

	engine := o.engine
	if engine == nil {
		var err error
		if engine, err = resolveEngine(cfg, logger); err != nil {
			return nil, fmt.Errorf("larder: open %s: %w", cfg.Name, err)
		}
	} else if err := engine.Available(); err != nil {
		return nil, fmt.Errorf("larder: open %s: %w: %v", cfg.Name, types.ErrUnsupported, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("larder: open %s: %w", cfg.Name, err)
	}
	conn, err := engine.Open(ctx, cfg.Name, cfg.Version, createStores(cfg))
	if err != nil {
		return nil, fmt.Errorf("larder: open %s: %w", cfg.Name, err)
	}

	logger = logger.With(zap.String("database", cfg.Name))
	log.WithContext(ctx, logger).Debug("database open",
		zap.String("backend", engine.Name()),
		zap.Uint64("version", conn.Version()),
		zap.Strings("stores", conn.StoreNames()))

	return &Database{cfg: cfg, conn: conn, logger: logger}, nil
}

// createStores returns the upgrade that creates every declared store the
// database does not have yet.
func createStores(cfg types.Config) types.UpgradeFunc {
	return func(tx types.SchemaTx, _, _ uint64) error {
		for _, s := range cfg.Stores {
			if tx.HasStore(s.Name) {
				continue
			}
			if err := tx.CreateStore(s); err != nil {
				return fmt.Errorf("creating store %q: %w", s.Name, err)
			}
		}
		return nil
	}
}

// Name returns the database name.
func (db *Database) Name() string { return db.cfg.Name }

// Version returns the version the database was opened at.
func (db *Database) Version() uint64 { return db.conn.Version() }

// StoreNames returns the names of every store in the database, sorted.
func (db *Database) StoreNames() []string { return db.conn.StoreNames() }

// DefaultStore returns the store used when an operation gets store "".
func (db *Database) DefaultStore() string { return db.cfg.DefaultStore() }

// Schema returns the schema of a store as the engine holds it.
func (db *Database) Schema(store string) (types.StoreSchema, bool) {
	return db.conn.Schema(db.storeName(store))
}

// Close releases the database. Operations after Close fail with
// types.ErrClosed. Close is idempotent.
func (db *Database) Close() error {
	db.closeOnce.Do(func() {
		db.closeErr = db.conn.Close()
		db.logger.Debug("database closed")
	})
	return db.closeErr
}

func (db *Database) storeName(store string) string {
	if store == "" {
		return db.cfg.DefaultStore()
	}
	return store
}
