package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/larder/internal/log"
	"github.com/mesh-intelligence/larder/internal/paths"
	"github.com/mesh-intelligence/larder/pkg/larder"
	"github.com/mesh-intelligence/larder/pkg/types"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	configFileExt  = "config.yaml"
	schemaFileExt  = "schema.yaml"

	envPrefix = "larder"
)

// setup loads .env files, resolves the config directory, reads config.yaml
// through viper, and builds the logger. A missing config.yaml is not an
// error.
func (a *app) setup(cmd *cobra.Command) error {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	configDir, err := paths.ResolveConfigDir(a.flags.configDir)
	if err != nil {
		return sysError(fmt.Errorf("resolve config dir: %w", err))
	}
	a.configDir = configDir

	v := a.v
	v.SetDefault(cfgKeyBackend, types.BackendSQLite)
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return userError(fmt.Errorf("read config: %w", err))
		}
	}

	logger, err := log.New(v.GetString(cfgKeyLogLevel))
	if err != nil {
		return userError(err)
	}
	a.logger = logger

	ctx := log.WithLogger(cmd.Context(), logger)
	cmd.SetContext(log.WithFields(ctx, zap.String("command", cmd.Name())))
	return nil
}

// schemaPath returns the database definition file to load.
func (a *app) schemaPath() string {
	if p := a.v.GetString(cfgKeySchema); p != "" {
		return p
	}
	return filepath.Join(a.configDir, schemaFileExt)
}

// dbConfig assembles the larder config from the definition file and the
// resolved backend, data directory, and quota.
func (a *app) dbConfig() (types.Config, error) {
	path := a.schemaPath()
	cfg, err := types.LoadSchemaFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return types.Config{}, userError(fmt.Errorf("no database definition at %s (run larder init or pass --schema)", path))
		}
		return types.Config{}, userError(err)
	}

	dataDir, err := paths.ResolveDataDir(a.flags.dataDir, a.v.GetString(cfgKeyDataDir))
	if err != nil {
		return types.Config{}, sysError(fmt.Errorf("resolve data dir: %w", err))
	}
	cfg.Backend = a.v.GetString(cfgKeyBackend)
	cfg.DataDir = dataDir
	cfg.QuotaKB = a.v.GetUint64(cfgKeyQuotaKB)
	return cfg, nil
}

// open opens the database once per invocation. The logger comes from ctx,
// where setup put it.
func (a *app) open(ctx context.Context) (*larder.Database, error) {
	if a.db != nil {
		return a.db, nil
	}
	cfg, err := a.dbConfig()
	if err != nil {
		return nil, err
	}
	db, err := larder.Open(ctx, cfg)
	if err != nil {
		if errors.Is(err, types.ErrUnsupported) {
			return nil, sysError(err)
		}
		return nil, userError(err)
	}
	a.db = db
	return db, nil
}

// store returns the store selected with --store, or "" for the default.
func (a *app) store() string {
	return a.v.GetString(cfgKeyStore)
}
