package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/authcore/internal/app"
	"github.com/odyssey-erp/authcore/internal/bootstrap"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := opts.runtime(cmd.Context(), cmd, true, nil)
			if err != nil {
				return err
			}
			defer closeRuntime(cmd, rt)
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "migrations applied (%s)\n", rt.Config.DBDriver)
			return err
		},
	}
}

func newBootstrapCmd(opts *rootOptions) *cobra.Command {
	var identifier string
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Bind SUPER_ADMIN to the configured bootstrap identifier",
		Long:  "Idempotently binds the SUPER_ADMIN role to the user named by --identifier or BOOTSTRAP_ADMIN_IDENTIFIER.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := opts.runtime(cmd.Context(), cmd, false, func(cfg *app.Config) {
				if identifier != "" {
					cfg.BootstrapAdminIdentifier = identifier
				}
			})
			if err != nil {
				return err
			}
			defer closeRuntime(cmd, rt)

			outcome := rt.Bootstrap.Run(cmd.Context())
			result := map[string]string{"outcome": string(outcome)}
			if err := opts.render(cmd.OutOrStdout(), result, func() error {
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "bootstrap: %s\n", outcome)
				return err
			}); err != nil {
				return err
			}
			if outcome == bootstrap.OutcomeFailed {
				return fmt.Errorf("bootstrap failed")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&identifier, "identifier", "", "Username or email of the user to promote")
	return cmd
}
