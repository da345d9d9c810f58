package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lockstep-sim/lockstep/internal/journal"
)

// SessionsOptions holds flags for the sessions command.
type SessionsOptions struct {
	*RootOptions
	Database string
}

// NewSessionsCommand creates the sessions command.
func NewSessionsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SessionsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recorded sessions",
		Long: `List every session in the journal database in creation order.
Branches show the parent session and the divergence tick.

Example:
  lockstep sessions --db ./journal.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listSessions(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func listSessions(ctx context.Context, opts *SessionsOptions, cmd *cobra.Command) error {
	st, err := journal.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "cannot open journal database", err)
	}
	defer st.Close()

	sessions, err := st.Sessions(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "cannot list sessions", err)
	}

	if opts.Format == "json" {
		formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
		rows := make([]map[string]any, len(sessions))
		for i, s := range sessions {
			row := map[string]any{"id": s.ID, "created_at": s.CreatedAt}
			if s.ParentID != "" {
				row["parent_id"] = s.ParentID
				row["branch_tick"] = s.BranchTick
			}
			rows[i] = row
		}
		return formatter.Success(rows)
	}

	out := cmd.OutOrStdout()
	for _, s := range sessions {
		if s.ParentID != "" {
			fmt.Fprintf(out, "%s  %s  branch of %s at tick %d\n", s.ID, s.CreatedAt, s.ParentID, s.BranchTick)
		} else {
			fmt.Fprintf(out, "%s  %s\n", s.ID, s.CreatedAt)
		}
	}
	return nil
}
