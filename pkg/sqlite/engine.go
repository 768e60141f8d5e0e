// Package sqlite provides the public factory for the SQLite storage engine.
// Pass the engine to larder.Open with larder.WithEngine to use a logger or
// data directory other than the ones in the Config.
package sqlite

import (
	"go.uber.org/zap"

	"github.com/mesh-intelligence/larder/internal/sqlite"
	"github.com/mesh-intelligence/larder/pkg/types"
)

// NewEngine creates a SQLite engine that keeps one file per database in
// dataDir. A nil logger uses the global zap logger.
//
// Example:
//
//	db, err := larder.Open(ctx, cfg, larder.WithEngine(sqlite.NewEngine(".larder-db", logger)))
func NewEngine(dataDir string, logger *zap.Logger) types.Engine {
	return sqlite.NewEngine(dataDir, logger)
}
