package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lockstep-sim/lockstep/internal/harness"
)

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run YAML scenarios against their expectations",
		Long: `Load every *.yaml scenario in a directory, execute each through the
engine, and check the declared expectations: final resource values,
emitted signal kinds, and hash distinctness.

Exit code 0 means every scenario passed; 1 means at least one failed.

Example:
  lockstep test ./scenarios
  lockstep test --format json ./scenarios`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(cmd.Context(), rootOpts, args[0], cmd)
		},
	}
	return cmd
}

// scenarioResult is one scenario's outcome for reporting.
type scenarioResult struct {
	Name  string `json:"name"`
	Ticks int    `json:"ticks"`
	Pass  bool   `json:"pass"`
	Error string `json:"error,omitempty"`
}

func runScenarios(ctx context.Context, opts *RootOptions, dir string, cmd *cobra.Command) error {
	scenarios, err := harness.LoadDir(dir)
	if err != nil {
		return WrapExitError(ExitCommandError, "cannot load scenarios", err)
	}
	if len(scenarios) == 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("no scenarios in %s", dir))
	}

	results := make([]scenarioResult, 0, len(scenarios))
	failed := 0
	for _, s := range scenarios {
		r := scenarioResult{Name: s.Name, Ticks: len(s.Ticks), Pass: true}
		res, err := harness.Run(ctx, s)
		if err == nil {
			err = res.Check()
		}
		if err != nil {
			r.Pass = false
			r.Error = err.Error()
			failed++
		}
		results = append(results, r)
	}

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	if opts.Format == "json" {
		if err := formatter.Success(map[string]any{
			"scenarios": results,
			"passed":    len(results) - failed,
			"failed":    failed,
		}); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			if r.Pass {
				fmt.Fprintf(formatter.Writer, "PASS %s (%d ticks)\n", r.Name, r.Ticks)
			} else {
				fmt.Fprintf(formatter.Writer, "FAIL %s: %s\n", r.Name, r.Error)
			}
		}
		fmt.Fprintf(formatter.Writer, "%d passed, %d failed\n", len(results)-failed, failed)
	}

	if failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenarios failed", failed, len(results)))
	}
	return nil
}
