// Package cli implements the larder command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/larder/internal/metrics"
	"github.com/mesh-intelligence/larder/pkg/larder"
	"github.com/mesh-intelligence/larder/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// Config keys. Each is settable in config.yaml or as LARDER_<KEY>.
const (
	cfgKeyBackend  = "backend"
	cfgKeyDataDir  = "data_dir"
	cfgKeySchema   = "schema"
	cfgKeyLogLevel = "log_level"
	cfgKeyStore    = "store"
	cfgKeyQuotaKB  = "quota_kb"
	cfgKeyMetrics  = "metrics"
)

// rootFlags holds global flag values that are not routed through viper.
type rootFlags struct {
	configDir string
	dataDir   string
}

// app is the state shared by one invocation's commands.
type app struct {
	flags     rootFlags
	v         *viper.Viper
	configDir string
	logger    *zap.Logger
	db        *larder.Database
}

// newRootCmd creates the top-level "larder" command with global flags and
// all subcommands registered.
func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "larder",
		Short: "Store and query records in embedded object stores",
		Long: "larder keeps JSON records in named stores inside an embedded database.\n" +
			"Stores are declared in a database definition file (schema.yaml).",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.teardown(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.configDir, "config-dir", "", "configuration directory (default: $(CWD)/.larder)")
	pf.StringVar(&a.flags.dataDir, "data-dir", "", "data directory (default: $(CWD)/.larder-db)")
	pf.String("backend", "", "storage engine: sqlite, bolt, or memory (default: sqlite)")
	pf.String("schema", "", "database definition file (default: <config-dir>/schema.yaml)")
	pf.String("log-level", "", "log level: debug, info, warn, error (default: warn)")
	pf.String("store", "", "store to operate on (default: the first declared store)")
	pf.Bool("metrics", false, "write operation metrics to stderr after the command")

	for key, flag := range map[string]string{
		cfgKeyBackend:  "backend",
		cfgKeySchema:   "schema",
		cfgKeyLogLevel: "log-level",
		cfgKeyStore:    "store",
		cfgKeyMetrics:  "metrics",
	} {
		if err := a.v.BindPFlag(key, pf.Lookup(flag)); err != nil {
			panic(err)
		}
	}

	root.AddCommand(
		newInitCmd(a),
		newCLIVersionCmd(),
		newStoresCmd(a),
		newVersionCmd(a),
		newGetCmd(a),
		newAllCmd(a),
		newFindCmd(a),
		newInsertCmd(a),
		newAddCmd(a),
		newUpdateCmd(a),
		newDeleteCmd(a),
		newClearCmd(a),
		newCountCmd(a),
		newSpaceCmd(a),
		newExportCmd(a),
		newImportCmd(a),
	)
	return root
}

// Execute runs the root command and exits with the appropriate code.
func Execute() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the CLI with args and returns the exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{v: viper.New()}
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if cerr := a.close(); err == nil && cerr != nil {
		err = sysError(cerr)
	}
	if err == nil {
		return exitSuccess
	}
	fmt.Fprintf(stderr, "Error: %s\n", err)
	return exitCode(err)
}

// cliError carries the exit code for an error.
type cliError struct {
	code int
	err  error
}

func (e *cliError) Error() string { return e.err.Error() }
func (e *cliError) Unwrap() error { return e.err }

func userError(err error) error { return &cliError{code: exitUserError, err: err} }
func sysError(err error) error  { return &cliError{code: exitSysError, err: err} }

// exitCode maps an error to an exit code. Failures of the environment
// (an unavailable engine, a closed database) are system errors; the rest
// are caused by the input.
func exitCode(err error) int {
	var ce *cliError
	if errors.As(err, &ce) {
		return ce.code
	}
	if errors.Is(err, types.ErrUnsupported) || errors.Is(err, types.ErrClosed) {
		return exitSysError
	}
	return exitUserError
}

// teardown dumps metrics when requested.
func (a *app) teardown(cmd *cobra.Command) error {
	if a.v.GetBool(cfgKeyMetrics) {
		metrics.WritePrometheus(cmd.ErrOrStderr())
	}
	return nil
}

// close releases the database, if one was opened, and flushes the logger.
func (a *app) close() error {
	var err error
	if a.db != nil {
		err = a.db.Close()
		a.db = nil
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	return err
}
