package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lockstep-sim/lockstep/internal/engine"
	"github.com/lockstep-sim/lockstep/internal/journal"
	"github.com/lockstep-sim/lockstep/internal/netsync"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
	Ticks    int64
	Seed     uint64
	Trace    string
	Listen   string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <program>",
		Short: "Execute a program tick by tick",
		Long: `Execute a program for a number of ticks and print the final state.

With --db, every frame is also recorded into a SQLite journal under a
fresh session id, so the run can later be replayed or branched. With
--listen, a WebSocket endpoint collects network events; each tick
drains the events whose order key matches it.

Example:
  lockstep run --ticks 60 sim.ls
  lockstep run --db ./journal.db --seed 7 --trace full sim.ls
  lockstep run --listen :8080 --ticks 600 sim.ls`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProgram(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (optional)")
	cmd.Flags().Int64Var(&opts.Ticks, "ticks", 60, "number of ticks to execute")
	cmd.Flags().Uint64Var(&opts.Seed, "seed", 0, "base rng seed")
	cmd.Flags().StringVar(&opts.Trace, "trace", "summary", "trace tier (off|summary|full)")
	cmd.Flags().StringVar(&opts.Listen, "listen", "", "address for the WebSocket event collector")

	return cmd
}

func runProgram(ctx context.Context, opts *RunOptions, path string, cmd *cobra.Command) error {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	tier, err := journal.ParseTraceTier(opts.Trace)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid trace tier", err)
	}

	reg, err := loadRegistry()
	if err != nil {
		return err
	}
	prog, src, err := loadProgram(path, reg)
	if err != nil {
		return err
	}

	engineOpts := []engine.Option{
		engine.WithLogger(log),
		engine.WithTraceTier(tier),
		engine.WithInputs(engine.SeededInputs{Base: opts.Seed}),
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if opts.Database != "" {
		st, err := journal.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "cannot open journal database", err)
		}
		defer st.Close()
		session, err := st.CreateSession(ctx, src)
		if err != nil {
			return WrapExitError(ExitCommandError, "cannot create session", err)
		}
		log.Info("session created", "session_id", session)
		engineOpts = append(engineOpts, engine.WithStore(st, session))
	}

	if opts.Listen != "" {
		collector := netsync.NewCollector(log)
		engineOpts = append(engineOpts, engine.WithCollector(collector))

		srv := &http.Server{Addr: opts.Listen, Handler: netsync.NewHandler(collector, log)}
		go func() {
			log.Info("event collector listening", "addr", opts.Listen)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("event collector failed", "error", err)
			}
		}()
		defer srv.Close()
	}

	eng := engine.New(prog, reg, engineOpts...)
	if err := eng.Run(ctx, opts.Ticks); err != nil {
		if ctx.Err() != nil {
			log.Info("run interrupted", "tick", eng.Clock().Current())
		} else {
			return WrapExitError(ExitFailure, "run failed", err)
		}
	}

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	return reportRun(formatter, eng)
}

// reportRun prints the run summary: ticks executed, final state hash,
// and the state dump.
func reportRun(f *OutputFormatter, eng *engine.Engine) error {
	frames := eng.Journal().Frames()
	var lastHash string
	if len(frames) > 0 {
		lastHash = frames[len(frames)-1].StateHash
	}

	if f.Format == "json" {
		return f.Success(map[string]any{
			"ticks":      len(frames),
			"state_hash": lastHash,
			"state":      eng.World().Dump(),
		})
	}
	fmt.Fprintf(f.Writer, "ticks: %d\n", len(frames))
	fmt.Fprintf(f.Writer, "state_hash: %s\n", lastHash)
	fmt.Fprint(f.Writer, eng.World().Dump())
	return nil
}
