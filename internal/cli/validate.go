package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lockstep-sim/lockstep/internal/canon"
	"github.com/lockstep-sim/lockstep/internal/parser"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <program>",
		Short: "Check that a program parses and canonicalizes",
		Long: `Parse a program, render its canonical text, and verify the rendering
is a fixed point: parsing the canonical text and rendering it again
must reproduce it byte for byte.

Exit code 0 means the program is valid. Deprecated spellings do not
fail validation; they are listed so they can be cleaned up.

Example:
  lockstep validate sim.ls
  lockstep validate --format json sim.ls`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return validate(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func validate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	reg, err := loadRegistry()
	if err != nil {
		return err
	}
	prog, _, err := loadProgram(path, reg)
	if err != nil {
		return err
	}

	text, err := canon.Normalize(prog, reg)
	if err != nil {
		return WrapExitError(ExitCommandError, "cannot canonicalize", err)
	}

	// Canonical text must round-trip through the parser unchanged.
	reparsed, err := parser.ParseText(text, reg)
	if err != nil {
		return WrapExitError(ExitFailure, "canonical text does not reparse", err)
	}
	again, err := canon.Normalize(reparsed, reg)
	if err != nil {
		return WrapExitError(ExitFailure, "canonical text does not re-render", err)
	}
	if again != text {
		return NewExitError(ExitFailure, "canonical text is not a fixed point")
	}

	notices := make([]string, len(prog.Notices))
	for i, n := range prog.Notices {
		notices[i] = fmt.Sprintf("%s: %s", n.Span, n.Message)
	}

	if opts.Format == "json" {
		return formatter.Success(map[string]any{
			"valid":      true,
			"statements": len(prog.Stmts),
			"notices":    notices,
		})
	}
	fmt.Fprintf(formatter.Writer, "%s: valid (%d statements)\n", path, len(prog.Stmts))
	for _, n := range notices {
		fmt.Fprintf(formatter.Writer, "notice %s\n", n)
	}
	return nil
}
