package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/authcore/internal/app"
)

// Execute runs authctl and returns the process exit code.
func Execute() int {
	rootCmd := NewRootCmd(nil)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// ConfigLoader produces the runtime configuration. Tests swap it out.
type ConfigLoader func() (*app.Config, error)

type rootOptions struct {
	output  string
	verbose bool
	load    ConfigLoader
}

// NewRootCmd assembles the authctl command tree.
func NewRootCmd(load ConfigLoader) *cobra.Command {
	if load == nil {
		load = app.LoadConfig
	}
	opts := &rootOptions{load: load}

	rootCmd := &cobra.Command{
		Use:           "authctl",
		Short:         "Operate the authorization core",
		Long:          "authctl manages roles, bindings and the audit trail directly against the authorization store.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateOutputFormat(opts.output)
		},
	}
	rootCmd.PersistentFlags().StringVarP(&opts.output, "output", "o", "table", "Output format (table, json)")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log at debug level")

	rootCmd.AddCommand(
		newMigrateCmd(opts),
		newBootstrapCmd(opts),
		newRoleCmd(opts),
		newPermissionsCmd(opts),
		newAuditCmd(opts),
		newJobsCmd(opts),
	)
	return rootCmd
}

// runtime loads configuration, applies overrides and wires the core.
// Redis is optional for the CLI.
func (o *rootOptions) runtime(ctx context.Context, cmd *cobra.Command, migrate bool, override func(*app.Config)) (*app.Runtime, error) {
	cfg, err := o.load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if override != nil {
		override(cfg)
	}
	return app.NewRuntime(ctx, cfg, o.logger(cmd.ErrOrStderr()), app.RuntimeOptions{
		Migrate:       migrate,
		OptionalRedis: true,
	})
}

func (o *rootOptions) logger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func closeRuntime(cmd *cobra.Command, rt *app.Runtime) {
	if err := rt.Close(); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: close runtime: %v\n", err)
	}
}
