package cli

import (
	"fmt"
	"os"

	"github.com/lockstep-sim/lockstep/internal/parser"
	"github.com/lockstep-sim/lockstep/internal/units"
)

// loadProgram reads and parses a program file against the embedded unit
// registry. Returns the parsed program and the raw source text.
func loadProgram(path string, reg *units.Registry) (*parser.Program, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", WrapExitError(ExitCommandError, "cannot read program", err)
	}
	prog, err := parser.ParseText(string(data), reg)
	if err != nil {
		return nil, "", WrapExitError(ExitCommandError, fmt.Sprintf("cannot parse %s", path), err)
	}
	return prog, string(data), nil
}

// loadRegistry compiles the embedded CUE unit document. Failure is a
// build defect, not user input, but the CLI still reports it cleanly.
func loadRegistry() (*units.Registry, error) {
	reg, err := units.Load()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "cannot load unit registry", err)
	}
	return reg, nil
}
