package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/authcore/internal/audit"
)

func newAuditCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Read the audit trail",
	}

	var (
		filters     audit.Filters
		action      string
		targetType  string
		since, till string
	)
	query := &cobra.Command{
		Use:   "query",
		Short: "Query audit entries, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filters.Action = audit.Action(action)
			filters.TargetType = audit.TargetType(targetType)
			var err error
			if filters.Start, err = parseTimeFlag("since", since); err != nil {
				return err
			}
			if filters.End, err = parseTimeFlag("until", till); err != nil {
				return err
			}

			rt, err := opts.runtime(cmd.Context(), cmd, false, nil)
			if err != nil {
				return err
			}
			defer closeRuntime(cmd, rt)

			page, err := rt.AuditQuery.Query(cmd.Context(), filters)
			if err != nil {
				return describeError(err)
			}
			return opts.render(cmd.OutOrStdout(), page, func() error {
				rows := make([][]string, 0, len(page.Entries))
				for _, entry := range page.Entries {
					rows = append(rows, []string{
						entry.Timestamp.UTC().Format(time.RFC3339),
						string(entry.Action),
						entry.ActorUsername,
						string(entry.TargetType),
						entry.TargetID,
						entry.TargetName,
					})
				}
				if err := printTable(cmd.OutOrStdout(), []string{"TIME", "ACTION", "ACTOR", "TARGET", "TARGET_ID", "NAME"}, rows); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "%d of %d entries\n", len(page.Entries), page.Total)
				return err
			})
		},
	}
	flags := query.Flags()
	flags.StringVar(&action, "action", "", "Filter by action (e.g. ROLE_ASSIGNED)")
	flags.StringVar(&filters.ActorID, "actor-id", "", "Filter by actor ID")
	flags.StringVar(&filters.ActorUsername, "actor", "", "Filter by actor username")
	flags.StringVar(&targetType, "target-type", "", "Filter by target type (ROLE, USER)")
	flags.StringVar(&filters.TargetID, "target-id", "", "Filter by target ID")
	flags.StringVar(&since, "since", "", "Lower bound, RFC3339")
	flags.StringVar(&till, "until", "", "Upper bound, RFC3339")
	flags.IntVar(&filters.Limit, "limit", 50, "Page size")
	flags.IntVar(&filters.Offset, "offset", 0, "Page offset")
	cmd.AddCommand(query)
	return cmd
}

func parseTimeFlag(name, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s: expected RFC3339 timestamp: %w", name, err)
	}
	return ts, nil
}
