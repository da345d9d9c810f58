package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lockstep-sim/lockstep/internal/engine"
	"github.com/lockstep-sim/lockstep/internal/journal"
	"github.com/lockstep-sim/lockstep/internal/parser"
	"github.com/lockstep-sim/lockstep/internal/snapshot"
)

// BranchOptions holds flags for the branch command.
type BranchOptions struct {
	*RootOptions
	Database string
	AtTick   int64
	Seed     uint64
	Ticks    int64
}

// NewBranchCommand creates the branch command.
func NewBranchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BranchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "branch <session-id>",
		Short: "Fork a recorded session at a tick",
		Long: `Create a new session that shares a recorded session's history up to
--at-tick and then diverges: the branch replays the shared prefix,
executes the divergence tick with fresh seeded input, and optionally
continues for --ticks more. The parent session is never modified;
shared frames are not copied, only indexed.

Example:
  lockstep branch --db ./journal.db --at-tick 120 --seed 9 01890a5d-...
  lockstep branch --db ./journal.db --at-tick 120 --ticks 60 01890a5d-...`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return branchSession(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (required)")
	cmd.Flags().Int64Var(&opts.AtTick, "at-tick", 0, "tick at which the branch diverges")
	cmd.Flags().Uint64Var(&opts.Seed, "seed", 0, "base rng seed for the divergent timeline")
	cmd.Flags().Int64Var(&opts.Ticks, "ticks", 0, "additional ticks to run after the divergence tick")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("at-tick")

	return cmd
}

func branchSession(ctx context.Context, opts *BranchOptions, parentID string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	st, err := journal.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "cannot open journal database", err)
	}
	defer st.Close()

	frames, meta, err := readSession(ctx, st, parentID)
	if err != nil {
		return err
	}
	if opts.AtTick < 0 || opts.AtTick >= int64(len(frames)) {
		return NewExitError(ExitCommandError,
			fmt.Sprintf("branch tick %d outside recorded range [0, %d)", opts.AtTick, len(frames)))
	}

	reg, err := loadRegistry()
	if err != nil {
		return err
	}
	prog, err := parser.ParseText(meta.Program, reg)
	if err != nil {
		return WrapExitError(ExitCommandError, "session program does not parse", err)
	}

	branchID, err := st.CreateBranch(ctx, parentID, opts.AtTick)
	if err != nil {
		return WrapExitError(ExitCommandError, "cannot create branch session", err)
	}

	parentLog := journal.NewLog()
	for _, f := range frames {
		if err := parentLog.Append(f); err != nil {
			return WrapExitError(ExitCommandError, "cannot rebuild parent journal", err)
		}
	}

	// The divergence tick takes fresh seeded input in place of the
	// recorded snapshot; replay of the shared prefix happens inside.
	inputs := engine.SeededInputs{Base: opts.Seed}
	injected := snapshot.Merge(opts.AtTick, inputs.LocalInput(opts.AtTick), nil)
	eng, err := engine.Branch(ctx, prog, reg, parentLog, opts.AtTick, injected,
		engine.WithLogger(quietLogger(opts.Verbose)),
		engine.WithInputs(inputs))
	if err != nil {
		return WrapExitError(ExitFailure, "branch replay failed", err)
	}

	// Post-divergence frames are new history; persist them under the
	// branch session. The prefix is already indexed by CreateBranch.
	eng.AttachStore(st, branchID)
	divergence, ok := eng.Journal().Frame(opts.AtTick)
	if !ok {
		return NewExitError(ExitFailure, "branch produced no divergence frame")
	}
	if err := st.WriteFrame(ctx, branchID, divergence); err != nil {
		return WrapExitError(ExitCommandError, "cannot persist divergence frame", err)
	}
	if err := eng.Run(ctx, opts.Ticks); err != nil {
		return WrapExitError(ExitFailure, "branch run failed", err)
	}

	total := opts.AtTick + 1 + opts.Ticks
	if opts.Format == "json" {
		return formatter.Success(map[string]any{
			"branch_id":  branchID,
			"parent_id":  parentID,
			"at_tick":    opts.AtTick,
			"ticks":      total,
			"state_hash": divergenceHash(eng),
		})
	}
	fmt.Fprintf(formatter.Writer, "branch %s of %s at tick %d (%d ticks)\n",
		branchID, parentID, opts.AtTick, total)
	fmt.Fprintf(formatter.Writer, "state_hash: %s\n", divergenceHash(eng))
	return nil
}

// divergenceHash returns the newest state hash in the branch journal.
func divergenceHash(eng *engine.Engine) string {
	frames := eng.Journal().Frames()
	if len(frames) == 0 {
		return ""
	}
	return frames[len(frames)-1].StateHash
}
