package larder

import (
	"fmt"
	"sort"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/larder/internal/bolt"
	"github.com/mesh-intelligence/larder/internal/memory"
	"github.com/mesh-intelligence/larder/internal/sqlite"
	"github.com/mesh-intelligence/larder/pkg/types"
)

// Factory builds an engine for a normalized config.
type Factory func(cfg types.Config, logger *zap.Logger) types.Engine

var registry = xsync.NewMapOf[string, Factory]()

// sharedMemory backs every "memory" database in the process, so reopening
// a name sees the data written before.
var sharedMemory = memory.NewEngine(nil)

func init() {
	Register(types.BackendSQLite, func(cfg types.Config, logger *zap.Logger) types.Engine {
		return sqlite.NewEngine(cfg.DataDir, logger)
	})
	Register(types.BackendBolt, func(cfg types.Config, logger *zap.Logger) types.Engine {
		return bolt.NewEngine(cfg.DataDir, logger)
	})
	Register(types.BackendMemory, func(_ types.Config, logger *zap.Logger) types.Engine {
		return sharedMemory.WithLogger(logger)
	})
}

// Register makes an engine available under name, replacing any engine
// already registered there.
func Register(name string, f Factory) {
	if name == "" || f == nil {
		panic("larder: Register requires a name and a factory")
	}
	registry.Store(name, f)
}

// Backends returns the registered backend names, sorted.
func Backends() []string {
	var names []string
	registry.Range(func(name string, _ Factory) bool {
		names = append(names, name)
		return true
	})
	sort.Strings(names)
	return names
}

// resolveEngine looks up the engine for cfg.Backend and checks it can run
// here. Both failures wrap types.ErrUnsupported.
func resolveEngine(cfg types.Config, logger *zap.Logger) (types.Engine, error) {
	f, ok := registry.Load(cfg.Backend)
	if !ok {
		return nil, fmt.Errorf("%w: %w %q", types.ErrUnsupported, types.ErrBackendUnknown, cfg.Backend)
	}
	engine := f(cfg, logger)
	if err := engine.Available(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", types.ErrUnsupported, cfg.Backend, err)
	}
	return engine, nil
}
