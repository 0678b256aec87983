// Package cli implements the datagenie commands.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/datagenie-engine/pkg/config"
	"github.com/ekaya-inc/datagenie-engine/pkg/logging"
)

// Options configures the root command.
type Options struct {
	Version string
	// Build wires the App. Nil uses Build.
	Build BuildFunc
	// Logger replaces the logger built from configuration.
	Logger *zap.Logger
}

// runtime carries flag values and lazily built state for one invocation.
type runtime struct {
	opts       Options
	configPath string
	format     string

	cfg    *config.Config
	logger *zap.Logger
	app    *App
}

// Execute runs the command line in args and releases everything it opened,
// whether or not the command succeeded.
func Execute(ctx context.Context, opts Options, args []string, stdout, stderr io.Writer) error {
	if opts.Build == nil {
		opts.Build = Build
	}
	rt := &runtime{opts: opts}
	defer rt.close()

	root := newRootCmd(rt)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(ctx)
}

func newRootCmd(rt *runtime) *cobra.Command {
	root := &cobra.Command{
		Use:           "datagenie",
		Short:         "Turn natural-language questions into validated read-only SQL",
		Long:          "datagenie answers analytics questions with a single SELECT statement checked against the schema catalog.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&rt.configPath, "config", "c", "", "Config file (default: ./config.yaml when present)")
	root.PersistentFlags().StringVarP(&rt.format, "format", "f", "json", "Output format: json or text")

	root.AddCommand(
		newAskCmd(rt),
		newBatchCmd(rt),
		newCatalogCmd(rt),
		newExamplesCmd(rt),
		newStatusCmd(rt),
		newVersionCmd(rt),
	)
	return root
}

func (rt *runtime) config() (*config.Config, error) {
	if rt.cfg != nil {
		return rt.cfg, nil
	}
	cfg, err := config.Load(rt.configPath, rt.opts.Version)
	if err != nil {
		return nil, err
	}
	rt.cfg = cfg
	return cfg, nil
}

func (rt *runtime) log(cfg *config.Config) (*zap.Logger, error) {
	if rt.logger != nil {
		return rt.logger, nil
	}
	if rt.opts.Logger != nil {
		rt.logger = rt.opts.Logger
		return rt.logger, nil
	}
	logger, err := logging.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	rt.logger = logger
	return logger, nil
}

// application builds the App once per invocation.
func (rt *runtime) application(cmd *cobra.Command) (*App, error) {
	if rt.app != nil {
		return rt.app, nil
	}
	cfg, err := rt.config()
	if err != nil {
		return nil, err
	}
	logger, err := rt.log(cfg)
	if err != nil {
		return nil, err
	}
	app, err := rt.opts.Build(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize: %w", err)
	}
	rt.app = app
	return app, nil
}

// loaded is application with the snapshot installed.
func (rt *runtime) loaded(cmd *cobra.Command) (*App, error) {
	app, err := rt.application(cmd)
	if err != nil {
		return nil, err
	}
	if _, err := app.Snapshots.Load(); err == nil {
		return app, nil
	}
	if _, err := app.LoadSnapshot(cmd.Context()); err != nil {
		return nil, err
	}
	return app, nil
}

func (rt *runtime) close() {
	if rt.app != nil {
		rt.app.Close()
		rt.app = nil
	}
	if rt.logger != nil && rt.opts.Logger == nil {
		_ = rt.logger.Sync()
	}
}

func (rt *runtime) text() bool {
	return rt.format == "text"
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
