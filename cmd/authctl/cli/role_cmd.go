package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/authcore/internal/app"
	"github.com/odyssey-erp/authcore/internal/audit"
	"github.com/odyssey-erp/authcore/internal/roles"
	"github.com/odyssey-erp/authcore/internal/shared"
)

func newRoleCmd(opts *rootOptions) *cobra.Command {
	var actor string
	cmd := &cobra.Command{
		Use:   "role",
		Short: "Manage roles and role bindings",
	}
	cmd.PersistentFlags().StringVar(&actor, "actor", "authctl", "Operator name recorded in the audit trail")
	actorFn := func() audit.Actor {
		return audit.Actor{ID: audit.SystemActor.ID, Username: actor}
	}

	cmd.AddCommand(
		newRoleCreateCmd(opts, actorFn),
		newRoleListCmd(opts),
		newRoleBindingCmd(opts, actorFn, "assign"),
		newRoleBindingCmd(opts, actorFn, "remove"),
	)
	return cmd
}

func newRoleCreateCmd(opts *rootOptions, actor func() audit.Actor) *cobra.Command {
	var description string
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := opts.runtime(cmd.Context(), cmd, false, nil)
			if err != nil {
				return err
			}
			defer closeRuntime(cmd, rt)

			role, err := rt.Roles.CreateRole(cmd.Context(), actor(), args[0], description)
			if err != nil {
				return describeError(err)
			}
			return opts.render(cmd.OutOrStdout(), role, func() error {
				return printRoles(cmd, []roles.Role{role})
			})
		},
	}
	cmd.Flags().StringVarP(&description, "description", "d", "", "Role description")
	return cmd
}

func newRoleListCmd(opts *rootOptions) *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List roles, or the roles bound to --user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := opts.runtime(cmd.Context(), cmd, false, nil)
			if err != nil {
				return err
			}
			defer closeRuntime(cmd, rt)

			var list []roles.Role
			if user != "" {
				userID, err := resolveUser(cmd.Context(), rt, user)
				if err != nil {
					return err
				}
				list, err = rt.Roles.RolesForUser(cmd.Context(), userID)
				if err != nil {
					return describeError(err)
				}
			} else {
				list, err = rt.Roles.ListRoles(cmd.Context())
				if err != nil {
					return describeError(err)
				}
			}
			if list == nil {
				list = []roles.Role{}
			}
			return opts.render(cmd.OutOrStdout(), list, func() error {
				return printRoles(cmd, list)
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "User ID, username or email")
	return cmd
}

func newRoleBindingCmd(opts *rootOptions, actor func() audit.Actor, verb string) *cobra.Command {
	short := "Bind a role to a user"
	if verb == "remove" {
		short = "Unbind a role from a user"
	}
	return &cobra.Command{
		Use:   verb + " <user> <role>",
		Short: short,
		Long:  "The user may be given by ID, username or email; the role by name or ID.",
		Args:  cobra.ExactArgs(2),
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
			roleID, err := resolveRole(cmd.Context(), rt, args[1])
			if err != nil {
				return err
			}
			if verb == "remove" {
				err = rt.Roles.RemoveRole(cmd.Context(), actor(), userID, roleID)
			} else {
				err = rt.Roles.AssignRole(cmd.Context(), actor(), userID, roleID)
			}
			if err != nil {
				return describeError(err)
			}
			result := map[string]string{"action": verb, "user_id": userID, "role_id": roleID}
			return opts.render(cmd.OutOrStdout(), result, func() error {
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s %s for user %s: ok\n", verb, args[1], userID)
				return err
			})
		},
	}
}

func printRoles(cmd *cobra.Command, list []roles.Role) error {
	rows := make([][]string, 0, len(list))
	for _, role := range list {
		rows = append(rows, []string{role.ID, role.Name, role.Description})
	}
	return printTable(cmd.OutOrStdout(), []string{"ID", "NAME", "DESCRIPTION"}, rows)
}

func resolveUser(ctx context.Context, rt *app.Runtime, identifier string) (string, error) {
	user, err := rt.Users.Lookup(ctx, identifier)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return "", fmt.Errorf("user %q not found", identifier)
		}
		return "", err
	}
	return user.ID, nil
}

// resolveRole accepts a role name first, then falls back to treating the
// argument as an ID.
func resolveRole(ctx context.Context, rt *app.Runtime, ref string) (string, error) {
	role, err := rt.Store.GetRoleByName(ctx, ref)
	if err == nil {
		return role.ID, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return "", err
	}
	role, err = rt.Roles.GetRole(ctx, ref)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return "", fmt.Errorf("role %q not found", ref)
		}
		return "", err
	}
	return role.ID, nil
}

func describeError(err error) error {
	var fields interface{ FieldErrors() map[string]string }
	if errors.As(err, &fields) {
		for field, msg := range fields.FieldErrors() {
			err = fmt.Errorf("%w (%s: %s)", err, field, msg)
		}
	}
	return err
}
