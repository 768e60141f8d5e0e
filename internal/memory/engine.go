package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/larder/internal/kvstore"
	"github.com/mesh-intelligence/larder/internal/log"
	"github.com/mesh-intelligence/larder/pkg/types"
)

var _ types.Engine = (*Engine)(nil)

// Engine keeps databases in process memory.
type Engine struct {
	databases *xsync.MapOf[string, *database]
	logger    *zap.Logger
}

// NewEngine creates an empty memory engine. A nil logger uses the global
// zap logger.
func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.L()
	}
	return &Engine{
		databases: xsync.NewMapOf[string, *database](),
		logger:    logger.With(zap.String("engine", types.BackendMemory)),
	}
}

// WithLogger returns an engine that shares e's databases but logs to
// logger.
func (e *Engine) WithLogger(logger *zap.Logger) *Engine {
	if logger == nil {
		return e
	}
	return &Engine{databases: e.databases, logger: logger.With(zap.String("engine", types.BackendMemory))}
}

// Name implements types.Engine.Name.
func (e *Engine) Name() string { return types.BackendMemory }

// Available implements types.Engine.Available. Memory is always available.
func (e *Engine) Available() error { return nil }

// Open implements types.Engine.Open.
func (e *Engine) Open(ctx context.Context, name string, version uint64, upgrade types.UpgradeFunc) (types.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := types.ValidateName(name); err != nil {
		return nil, err
	}
	db, _ := e.databases.LoadOrCompute(name, newDatabase)

	tx := db.begin(true)
	cat, err := kvstore.Upgrade(tx, version, upgrade)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	logger := log.WithContext(ctx, e.logger).With(zap.String("database", name))
	logger.Debug("opened", zap.Uint64("version", cat.Version), zap.Strings("stores", cat.StoreNames()))
	return &conn{name: name, db: db, cat: cat, logger: logger}, nil
}

// Drop removes a database from the registry. Open connections keep working
// on the dropped data until closed.
func (e *Engine) Drop(name string) {
	e.databases.Delete(name)
}

var _ types.Conn = (*conn)(nil)

type conn struct {
	name   string
	db     *database
	cat    *kvstore.Catalog
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
}

func (c *conn) Name() string         { return c.name }
func (c *conn) Version() uint64      { return c.cat.Version }
func (c *conn) StoreNames() []string { return c.cat.StoreNames() }

func (c *conn) Schema(store string) (types.StoreSchema, bool) {
	return c.cat.Schema(store)
}

// Begin implements types.Conn.Begin.
func (c *conn) Begin(ctx context.Context, store string, mode types.Mode) (types.Txn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return nil, types.ErrClosed
	}
	schema, ok := c.cat.Schema(store)
	if !ok {
		return nil, fmt.Errorf("%w: %q", types.ErrStoreNotFound, store)
	}
	tx := c.db.begin(mode == types.ReadWrite)
	txn, err := kvstore.NewTxn(tx, schema)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	return txn, nil
}

// Size implements types.Conn.Size.
func (c *conn) Size() (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return 0, types.ErrClosed
	}
	return c.db.size(), nil
}

// Close implements types.Conn.Close. The data stays in the engine.
func (c *conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		c.logger.Debug("closed")
	}
	return nil
}
