package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/larder/pkg/types"
)

// configFile holds the structure written to config.yaml.
type configFile struct {
	Backend string `yaml:"backend"`
	DataDir string `yaml:"data_dir,omitempty"`
}

// schemaFile holds the structure written to schema.yaml.
type schemaFile struct {
	Name    string              `yaml:"name"`
	Version uint64              `yaml:"version"`
	Stores  []types.StoreSchema `yaml:"stores"`
}

// Defaults for a freshly initialized definition.
const (
	defaultDBName    = "larder"
	defaultStoreName = "records"
)

func newInitCmd(a *app) *cobra.Command {
	var name string
	var stores []string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize larder configuration and storage",
		Long: "Create the configuration directory with config.yaml and schema.yaml,\n" +
			"then open the database so every declared store exists.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := os.MkdirAll(a.configDir, 0o755); err != nil {
				return sysError(fmt.Errorf("create config directory: %w", err))
			}

			configPath := filepath.Join(a.configDir, configFileExt)
			cfg := configFile{Backend: a.v.GetString(cfgKeyBackend), DataDir: a.flags.dataDir}
			if err := writeYAMLIfMissing(configPath, &cfg); err != nil {
				return sysError(fmt.Errorf("write config: %w", err))
			}

			if len(stores) == 0 {
				stores = []string{defaultStoreName}
			}
			def := schemaFile{Name: name, Version: types.DefaultVersion}
			for _, s := range stores {
				def.Stores = append(def.Stores, types.StoreSchema{Name: s})
			}
			if err := writeYAMLIfMissing(a.schemaPath(), &def); err != nil {
				return sysError(fmt.Errorf("write schema: %w", err))
			}

			db, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "larder initialized: database %q with stores %v\n", db.Name(), db.StoreNames())
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", defaultDBName, "database name for a new schema.yaml")
	cmd.Flags().StringSliceVar(&stores, "stores", nil, "store names for a new schema.yaml (default: records)")
	return cmd
}

// writeYAMLIfMissing writes v to path unless the file already exists.
func writeYAMLIfMissing(path string, v any) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	return os.WriteFile(path, data, 0o644)
}
