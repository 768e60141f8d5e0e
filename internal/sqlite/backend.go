// Package sqlite implements the "sqlite" storage engine on modernc.org/sqlite.
// Each database is one file. A catalog table holds store schemas and key
// generator state; every store is a table keyed by the order-preserving key
// encoding, and every index is a table of (index value, primary key) pairs.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/larder/internal/log"
	"github.com/mesh-intelligence/larder/internal/paths"
	"github.com/mesh-intelligence/larder/pkg/types"
)

// FileExt is appended to the database name to form its file name.
const FileExt = ".db"

// busyTimeoutMS bounds how long a connection waits on another process's lock.
const busyTimeoutMS = 5000

var _ types.Engine = (*Engine)(nil)

// Engine opens databases as SQLite files under a data directory.
type Engine struct {
	dataDir string
	logger  *zap.Logger
}

// NewEngine creates a sqlite engine rooted at dataDir. A nil logger uses
// the global zap logger.
func NewEngine(dataDir string, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.L()
	}
	return &Engine{dataDir: dataDir, logger: logger.With(zap.String("engine", types.BackendSQLite))}
}

// Name implements types.Engine.Name.
func (e *Engine) Name() string { return types.BackendSQLite }

// Available implements types.Engine.Available.
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

// storeInfo is a store's catalog row.
type storeInfo struct {
	id     int64
	schema types.StoreSchema
}

// Open implements types.Engine.Open. Catalog creation, the version check,
// and the upgrade all run in one SQLite transaction.
func (e *Engine) Open(ctx context.Context, name string, version uint64, upgrade types.UpgradeFunc) (types.Conn, error) {
	if version == 0 {
		return nil, types.ErrVersionInvalid
	}
	if err := types.ValidateName(name); err != nil {
		return nil, err
	}
	logger := log.WithContext(ctx, e.logger).With(zap.String("database", name))

	path := filepath.Join(e.dir(), name+FileExt)
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	// One connection serializes transactions within the process.
	db.SetMaxOpenConns(1)

	c := &conn{name: name, path: path, db: db, logger: logger}
	if err := c.open(ctx, version, upgrade); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("opened", zap.String("path", path), zap.Uint64("version", c.version), zap.Strings("stores", c.StoreNames()))
	return c, nil
}

// uriEscaper escapes the characters SQLite's URI parser gives meaning to
// inside a file path.
var uriEscaper = strings.NewReplacer("%", "%25", "?", "%3f", "#", "%23")

// dsn returns the URI filename for path with the connection pragmas.
func dsn(path string) string {
	return "file:" + uriEscaper.Replace(path) + "?_pragma=busy_timeout(" + strconv.Itoa(busyTimeoutMS) + ")"
}

var _ types.Conn = (*conn)(nil)

type conn struct {
	name    string
	path    string
	logger  *zap.Logger
	version uint64
	stores  map[string]storeInfo

	mu sync.RWMutex
	db *sql.DB
}

func (c *conn) open(ctx context.Context, version uint64, upgrade types.UpgradeFunc) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning open transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range catalogDDL {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating catalog: %w", err)
		}
	}

	stored, err := readVersion(ctx, tx)
	if err != nil {
		return err
	}
	stores, err := readStores(ctx, tx)
	if err != nil {
		return err
	}
	if version < stored {
		return fmt.Errorf("%w: requested %d, stored %d", types.ErrVersion, version, stored)
	}

	if version > stored {
		if upgrade != nil {
			stx := &schemaTx{ctx: ctx, tx: tx, stores: stores}
			if err := upgrade(stx, stored, version); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO larder_meta (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
			metaVersionKey, strconv.FormatUint(version, 10)); err != nil {
			return fmt.Errorf("writing version: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing open transaction: %w", err)
	}
	c.version = version
	c.stores = stores
	return nil
}

func readVersion(ctx context.Context, tx *sql.Tx) (uint64, error) {
	var raw string
	err := tx.QueryRowContext(ctx, "SELECT value FROM larder_meta WHERE key = ?", metaVersionKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading version: %w", err)
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing version %q: %w", raw, err)
	}
	return v, nil
}

func readStores(ctx context.Context, tx *sql.Tx) (map[string]storeInfo, error) {
	rows, err := tx.QueryContext(ctx, "SELECT id, schema FROM larder_stores")
	if err != nil {
		return nil, fmt.Errorf("loading stores: %w", err)
	}
	defer rows.Close()

	stores := make(map[string]storeInfo)
	for rows.Next() {
		var id int64
		var raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scanning store: %w", err)
		}
		var s types.StoreSchema
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			return nil, fmt.Errorf("parsing schema of store %d: %w", id, err)
		}
		s = s.Normalize()
		stores[s.Name] = storeInfo{id: id, schema: s}
	}
	return stores, rows.Err()
}

func (c *conn) Name() string    { return c.name }
func (c *conn) Version() uint64 { return c.version }

func (c *conn) StoreNames() []string {
	names := make([]string, 0, len(c.stores))
	for name := range c.stores {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *conn) Schema(store string) (types.StoreSchema, bool) {
	info, ok := c.stores[store]
	return info.schema, ok
}

// Begin implements types.Conn.Begin.
func (c *conn) Begin(ctx context.Context, store string, mode types.Mode) (types.Txn, error) {
	info, ok := c.stores[store]
	if !ok {
		return nil, fmt.Errorf("%w: %q", types.ErrStoreNotFound, store)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.db == nil {
		return nil, types.ErrClosed
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	return &table{ctx: ctx, tx: tx, info: info, mode: mode}, nil
}

// Size implements types.Conn.Size.
func (c *conn) Size() (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.db == nil {
		return 0, types.ErrClosed
	}
	var total int64
	for _, p := range []string{c.path, c.path + "-journal", c.path + "-wal"} {
		info, err := os.Stat(p)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return 0, err
		}
		total += info.Size()
	}
	return total, nil
}

// Close implements types.Conn.Close.
func (c *conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	c.logger.Debug("closed")
	return err
}

// schemaTx implements types.SchemaTx inside the open transaction.
type schemaTx struct {
	ctx    context.Context
	tx     *sql.Tx
	stores map[string]storeInfo
}

func (s *schemaTx) StoreNames() []string {
	names := make([]string, 0, len(s.stores))
	for name := range s.stores {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *schemaTx) HasStore(name string) bool {
	_, ok := s.stores[name]
	return ok
}

func (s *schemaTx) CreateStore(schema types.StoreSchema) error {
	schema = schema.Normalize()
	if err := schema.Validate(); err != nil {
		return err
	}
	if s.HasStore(schema.Name) {
		return fmt.Errorf("%w: store %q already exists", types.ErrConstraint, schema.Name)
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("encoding schema: %w", err)
	}
	res, err := s.tx.ExecContext(s.ctx, "INSERT INTO larder_stores (name, schema) VALUES (?, ?)", schema.Name, string(raw))
	if err != nil {
		return mapError("registering store "+schema.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading store id: %w", err)
	}

	uniques := make([]bool, len(schema.Indexes))
	for i, idx := range schema.Indexes {
		uniques[i] = idx.Unique
	}
	for _, stmt := range storeDDL(id, uniques) {
		if _, err := s.tx.ExecContext(s.ctx, stmt); err != nil {
			return fmt.Errorf("creating store %q: %w", schema.Name, err)
		}
	}
	s.stores[schema.Name] = storeInfo{id: id, schema: schema}
	return nil
}
