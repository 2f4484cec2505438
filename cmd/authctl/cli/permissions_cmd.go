package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newPermissionsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "permissions",
		Short: "Inspect effective permissions",
	}

	var expand bool
	resolve := &cobra.Command{
		Use:   "resolve <user>",
		Short: "Print the effective permission set of a user",
		Long:  "Resolves through the permission cache. With --expand, admin:all is expanded to the full catalog.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := opts.runtime(cmd.Context(), cmd, false, nil)
			if err != nil {
				return err
			}
			defer closeRuntime(cmd, rt)

			userID, err := resolveUser(cmd.Context(), rt, args[0])
			if err != nil {
				return err
			}
			resolveFn := rt.Resolver.Resolve
			if expand {
				resolveFn = rt.Resolver.Expand
			}
			perms, err := resolveFn(cmd.Context(), userID)
			if err != nil {
				return err
			}
			if perms == nil {
				perms = []string{}
			}
			result := map[string]any{"user_id": userID, "permissions": perms}
			return opts.render(cmd.OutOrStdout(), result, func() error {
				if len(perms) == 0 {
					_, err := fmt.Fprintln(cmd.OutOrStdout(), "(no permissions)")
					return err
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), strings.Join(perms, "\n"))
				return err
			})
		},
	}
	resolve.Flags().BoolVar(&expand, "expand", false, "Expand admin:all into the catalog")
	cmd.AddCommand(resolve)
	return cmd
}
