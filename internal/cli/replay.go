package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/lockstep-sim/lockstep/internal/engine"
	"github.com/lockstep-sim/lockstep/internal/journal"
	"github.com/lockstep-sim/lockstep/internal/parser"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <session-id>",
		Short: "Re-execute a recorded session and verify its hashes",
		Long: `Read a session's frames from the journal database, re-run every
logged snapshot through a fresh engine, and compare the recomputed
state hash of each tick against the recorded one.

Exit code 0 means the session reproduced bit for bit. A mismatch or a
tampered frame exits 1 and names the first diverging tick.

Example:
  lockstep replay --db ./journal.db 01890a5d-ac96-774b-bcce-b302099a8057`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return replaySession(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func replaySession(ctx context.Context, opts *ReplayOptions, sessionID string, cmd *cobra.Command) error {
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

	frames, meta, err := readSession(ctx, st, sessionID)
	if err != nil {
		return err
	}

	reg, err := loadRegistry()
	if err != nil {
		return err
	}
	prog, err := parser.ParseText(meta.Program, reg)
	if err != nil {
		return WrapExitError(ExitCommandError, "session program does not parse", err)
	}

	formatter.VerboseLog("replaying %d frames of session %s", len(frames), sessionID)
	_, err = engine.Replay(ctx, prog, reg, frames, engine.WithLogger(quietLogger(opts.Verbose)))
	if err != nil {
		var mismatch *engine.ReplayMismatch
		if errors.As(err, &mismatch) {
			_ = formatter.Error("E_REPLAY_MISMATCH", mismatch.Error(), map[string]any{
				"tick": mismatch.Tick,
				"want": mismatch.Want,
				"got":  mismatch.Got,
			})
			return WrapExitError(ExitFailure, "replay diverged", err)
		}
		return WrapExitError(ExitFailure, "replay failed", err)
	}

	if opts.Format == "json" {
		return formatter.Success(map[string]any{
			"session_id": sessionID,
			"ticks":      len(frames),
			"verified":   true,
		})
	}
	fmt.Fprintf(formatter.Writer, "session %s: %d ticks verified\n", sessionID, len(frames))
	return nil
}

// readSession loads a session's frames and metadata, distinguishing
// tamper (exit 1) from lookup failures (exit 2).
func readSession(ctx context.Context, st *journal.Store, sessionID string) ([]journal.Frame, journal.Session, error) {
	meta, err := st.ReadSessionMeta(ctx, sessionID)
	if err != nil {
		return nil, journal.Session{}, WrapExitError(ExitCommandError, "cannot read session", err)
	}
	frames, err := st.ReadSession(ctx, sessionID)
	if err != nil {
		var tamper *journal.TamperError
		if errors.As(err, &tamper) {
			return nil, journal.Session{}, WrapExitError(ExitFailure, "journal is corrupt", err)
		}
		return nil, journal.Session{}, WrapExitError(ExitCommandError, "cannot read session frames", err)
	}
	return frames, meta, nil
}

// quietLogger keeps per-tick engine logging out of command output
// unless the user asked for it.
func quietLogger(verbose bool) *slog.Logger {
	if verbose {
		return slog.Default()
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
