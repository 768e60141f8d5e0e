package types

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Config describes the database to open: its name and version, the stores
// it declares, and which engine holds it.
type Config struct {
	Name    string        `json:"name" yaml:"name"`
	Version uint64        `json:"version" yaml:"version"`
	Stores  []StoreSchema `json:"stores" yaml:"stores"`
	Backend string        `json:"backend" yaml:"backend"`
	DataDir string        `json:"data_dir" yaml:"data_dir"`
	// QuotaKB caps what Estimate reports as available; 0 means unknown.
	QuotaKB uint64 `json:"quota_kb,omitempty" yaml:"quota_kb,omitempty"`
}

// Supported backend names.
const (
	BackendSQLite = "sqlite"
	BackendBolt   = "bolt"
	BackendMemory = "memory"
)

// DefaultVersion is used when Config.Version is zero.
const DefaultVersion uint64 = 1

// Config validation errors.
var (
	ErrNameEmpty      = errors.New("database name must not be empty")
	ErrNameInvalid    = errors.New("database name must be a single local file name")
	ErrNoStores       = errors.New("at least one store must be declared")
	ErrBackendUnknown = errors.New("unknown backend")
	ErrDuplicateStore = errors.New("store declared more than once")
	ErrStoreNameEmpty = errors.New("store name must not be empty")
)

// Normalize returns a copy of the Config with defaults applied: version 1,
// the sqlite backend, and per-store defaults.
func (c Config) Normalize() Config {
	out := c
	if out.Version == 0 {
		out.Version = DefaultVersion
	}
	if out.Backend == "" {
		out.Backend = BackendSQLite
	}
	out.Stores = make([]StoreSchema, len(c.Stores))
	for i, s := range c.Stores {
		out.Stores[i] = s.Normalize()
	}
	return out
}

// Validate checks that the Config is well-formed. It does not check that the
// backend is registered; that is a capability check done at open time.
func (c Config) Validate() error {
	if err := ValidateName(c.Name); err != nil {
		return err
	}
	if len(c.Stores) == 0 {
		return ErrNoStores
	}
	seen := make(map[string]bool, len(c.Stores))
	for _, s := range c.Stores {
		if err := s.Validate(); err != nil {
			return err
		}
		if seen[s.Name] {
			return fmt.Errorf("%w: %q", ErrDuplicateStore, s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}

// ValidateName checks that a database name can be used as a file name
// inside a data directory: no path separators and no "." or "..".
func ValidateName(name string) error {
	if name == "" {
		return ErrNameEmpty
	}
	if name == "." || name == ".." || strings.ContainsAny(name, `/\`) || !filepath.IsLocal(name) {
		return fmt.Errorf("%w: %q", ErrNameInvalid, name)
	}
	return nil
}

// DefaultStore returns the name of the first declared store.
func (c Config) DefaultStore() string {
	if len(c.Stores) == 0 {
		return ""
	}
	return c.Stores[0].Name
}
