package bolt

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/larder/internal/kvstore"
	"github.com/mesh-intelligence/larder/internal/log"
	"github.com/mesh-intelligence/larder/internal/paths"
	"github.com/mesh-intelligence/larder/pkg/types"
)

// FileExt is appended to the database name to form its file name.
const FileExt = ".bolt"

// openTimeout bounds how long Open waits for another process's file lock.
const openTimeout = 5 * time.Second

var _ types.Engine = (*Engine)(nil)

// Engine opens databases as bbolt files under a data directory. bbolt
// locks a file for the process that opens it, so connections to one
// database share a single handle, closed with the last connection.
type Engine struct {
	dataDir string
	logger  *zap.Logger
	files   *xsync.MapOf[string, *file]
}

// file is a bbolt handle shared by the connections to one database.
type file struct {
	db   *bolt.DB
	refs int
}

// NewEngine creates a bolt engine rooted at dataDir. A nil logger uses the
// global zap logger.
func NewEngine(dataDir string, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.L()
	}
	return &Engine{
		dataDir: dataDir,
		logger:  logger.With(zap.String("engine", types.BackendBolt)),
		files:   xsync.NewMapOf[string, *file](),
	}
}

// Name implements types.Engine.Name.
func (e *Engine) Name() string { return types.BackendBolt }

// Available implements types.Engine.Available. The data directory must be
// creatable and writable.
func (e *Engine) Available() error {
	if err := paths.EnsureWritableDir(e.dir()); err != nil {
		return fmt.Errorf("%w: %v", types.ErrUnsupported, err)
	}
	return nil
}

func (e *Engine) dir() string {
	if e.dataDir == "" {
		return "."
	}
	return e.dataDir
}

// Open implements types.Engine.Open.
func (e *Engine) Open(ctx context.Context, name string, version uint64, upgrade types.UpgradeFunc) (types.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := types.ValidateName(name); err != nil {
		return nil, err
	}
	logger := log.WithContext(ctx, e.logger).With(zap.String("database", name))

	path := filepath.Join(e.dir(), name+FileExt)
	db, err := e.acquire(path)
	if err != nil {
		return nil, err
	}

	var cat *kvstore.Catalog
	err = db.Update(func(tx *bolt.Tx) error {
		var err error
		cat, err = kvstore.Upgrade(&boltTx{tx: tx}, version, upgrade)
		return err
	})
	if err != nil {
		e.release(path)
		return nil, err
	}

	logger.Debug("opened", zap.String("path", path), zap.Uint64("version", cat.Version), zap.Strings("stores", cat.StoreNames()))
	return &conn{name: name, path: path, engine: e, db: db, cat: cat, logger: logger}, nil
}

// acquire returns the shared handle for path, opening the file for the
// first connection.
func (e *Engine) acquire(path string) (*bolt.DB, error) {
	var openErr error
	f, _ := e.files.Compute(path, func(f *file, loaded bool) (*file, bool) {
		if loaded {
			f.refs++
			return f, false
		}
		db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: openTimeout})
		if err != nil {
			openErr = fmt.Errorf("opening %s: %w", path, err)
			return nil, true
		}
		return &file{db: db, refs: 1}, false
	})
	if openErr != nil {
		return nil, openErr
	}
	return f.db, nil
}

// release drops one reference to path and closes the file with the last.
func (e *Engine) release(path string) error {
	var closeErr error
	e.files.Compute(path, func(f *file, loaded bool) (*file, bool) {
		if !loaded {
			return nil, true
		}
		f.refs--
		if f.refs > 0 {
			return f, false
		}
		closeErr = f.db.Close()
		return nil, true
	})
	return closeErr
}

var _ types.Conn = (*conn)(nil)

type conn struct {
	name   string
	path   string
	engine *Engine
	cat    *kvstore.Catalog
	logger *zap.Logger

	mu sync.RWMutex
	db *bolt.DB
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
	schema, ok := c.cat.Schema(store)
	if !ok {
		return nil, fmt.Errorf("%w: %q", types.ErrStoreNotFound, store)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.db == nil {
		return nil, types.ErrClosed
	}
	tx, err := c.db.Begin(mode == types.ReadWrite)
	if err != nil {
		if errors.Is(err, bolt.ErrDatabaseNotOpen) {
			return nil, types.ErrClosed
		}
		return nil, fmt.Errorf("could not begin transaction: %w", err)
	}
	txn, err := kvstore.NewTxn(&boltTx{tx: tx}, schema)
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
	if c.db == nil {
		return 0, types.ErrClosed
	}
	var size int64
	err := c.db.View(func(tx *bolt.Tx) error {
		size = tx.Size()
		return nil
	})
	return size, err
}

// Close implements types.Conn.Close.
func (c *conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil
	}
	err := c.engine.release(c.path)
	c.db = nil
	c.logger.Debug("closed")
	return err
}
