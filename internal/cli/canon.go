package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lockstep-sim/lockstep/internal/canon"
)

// CanonOptions holds flags for the canon command.
type CanonOptions struct {
	*RootOptions
	Write bool
}

// NewCanonCommand creates the canon command.
func NewCanonCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CanonOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "canon <program>",
		Short: "Render a program's canonical text",
		Long: `Parse a program and print its one canonical rendering.

Deprecated spellings (if/else, loop ... times, assert) are collapsed
to the approved vocabulary; each collapse is reported on stderr.
With --write the file is rewritten in place.

Example:
  lockstep canon sim.ls
  lockstep canon --write sim.ls`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return canonicalize(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Write, "write", false, "rewrite the file with its canonical text")

	return cmd
}

func canonicalize(opts *CanonOptions, path string, cmd *cobra.Command) error {
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

	for _, n := range prog.Notices {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", n.Span, n.Message)
	}

	if opts.Write {
		if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
			return WrapExitError(ExitCommandError, "cannot rewrite program", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "rewrote %s\n", path)
		return nil
	}

	if opts.Format == "json" {
		formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
		return formatter.Success(map[string]any{
			"canonical": text,
			"notices":   len(prog.Notices),
		})
	}
	fmt.Fprint(cmd.OutOrStdout(), text)
	return nil
}
