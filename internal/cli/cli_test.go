package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lockstep-sim/lockstep/internal/journal"
)

// execute runs the CLI with args and returns stdout, stderr, and the
// command error.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func writeProgram(t *testing.T, text string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prog.ls")
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
	return path
}

func TestCanonCommand(t *testing.T) {
	path := writeProgram(t, "if $hp > 0 {\n  $x +<- 1.\n} else {\n  $x <- 0.\n}\n")

	out, errOut, err := execute(t, "canon", path)
	require.NoError(t, err)
	assert.Equal(t, "when $hp > 0 {\n  $x <- $x + 1.\n} otherwise {\n  $x <- 0.\n}\n", out)
	assert.Contains(t, errOut, "deprecated spelling")
}

func TestCanonWriteRewritesFile(t *testing.T) {
	path := writeProgram(t, "assert $hp >= 0.\n")

	_, _, err := execute(t, "canon", "--write", path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "expect $hp >= 0 notify.\n", string(data))
}

func TestValidateCommand(t *testing.T) {
	path := writeProgram(t, "$count <- $count + 1.\n")
	out, _, err := execute(t, "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "valid (1 statements)")
}

func TestValidateRejectsMalformedProgram(t *testing.T) {
	path := writeProgram(t, "when {\n")
	_, _, err := execute(t, "validate", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestValidateMissingFile(t *testing.T) {
	_, _, err := execute(t, "validate", filepath.Join(t.TempDir(), "absent.ls"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRunCommand(t *testing.T) {
	path := writeProgram(t, "$count <- $count + 1.\n")
	out, _, err := execute(t, "run", "--ticks", "3", path)
	require.NoError(t, err)
	assert.Contains(t, out, "ticks: 3")
	assert.Contains(t, out, "$count = 3")
	assert.Contains(t, out, "state_hash: ")
}

func TestRunReplaySessionsRoundTrip(t *testing.T) {
	path := writeProgram(t, "$count <- $count + 1.\n")
	db := filepath.Join(t.TempDir(), "journal.db")

	_, _, err := execute(t, "run", "--db", db, "--ticks", "3", path)
	require.NoError(t, err)

	st, err := journal.Open(db)
	require.NoError(t, err)
	sessions, err := st.Sessions(context.Background())
	require.NoError(t, err)
	require.NoError(t, st.Close())
	require.Len(t, sessions, 1)
	sessionID := sessions[0].ID

	out, _, err := execute(t, "sessions", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, sessionID)

	out, _, err = execute(t, "replay", "--db", db, sessionID)
	require.NoError(t, err)
	assert.Contains(t, out, "3 ticks verified")
}

func TestReplayUnknownSession(t *testing.T) {
	db := filepath.Join(t.TempDir(), "journal.db")
	st, err := journal.Open(db)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	_, _, err = execute(t, "replay", "--db", db, "no-such-session")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestBranchCommand(t *testing.T) {
	path := writeProgram(t, "$count <- $count + 1.\n")
	db := filepath.Join(t.TempDir(), "journal.db")

	_, _, err := execute(t, "run", "--db", db, "--ticks", "4", path)
	require.NoError(t, err)

	st, err := journal.Open(db)
	require.NoError(t, err)
	sessions, err := st.Sessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	parentID := sessions[0].ID
	require.NoError(t, st.Close())

	out, _, err := execute(t, "branch", "--db", db, "--at-tick", "2", "--ticks", "1", parentID)
	require.NoError(t, err)
	assert.Contains(t, out, "branch ")
	assert.Contains(t, out, parentID)

	// Branch session holds the shared prefix plus divergence and the
	// extra tick: ticks 0..3.
	st, err = journal.Open(db)
	require.NoError(t, err)
	defer st.Close()
	sessions, err = st.Sessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	var branchID string
	for _, s := range sessions {
		if s.ParentID == parentID {
			branchID = s.ID
			assert.Equal(t, int64(2), s.BranchTick)
		}
	}
	require.NotEmpty(t, branchID)
	frames, err := st.ReadSession(context.Background(), branchID)
	require.NoError(t, err)
	assert.Len(t, frames, 4)
}

func TestBranchTickOutOfRange(t *testing.T) {
	path := writeProgram(t, "$count <- $count + 1.\n")
	db := filepath.Join(t.TempDir(), "journal.db")

	_, _, err := execute(t, "run", "--db", db, "--ticks", "2", path)
	require.NoError(t, err)

	st, err := journal.Open(db)
	require.NoError(t, err)
	sessions, err := st.Sessions(context.Background())
	require.NoError(t, err)
	require.NoError(t, st.Close())

	_, _, err = execute(t, "branch", "--db", db, "--at-tick", "9", sessions[0].ID)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommand(t *testing.T) {
	dir := t.TempDir()
	scenario := `name: counter
program: |
  $count <- $count + 1.
ticks:
  - {}
  - {}
expect:
  resources:
    count: "2"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "counter.yaml"), []byte(scenario), 0o644))

	out, _, err := execute(t, "test", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "PASS counter")
	assert.Contains(t, out, "1 passed, 0 failed")
}

func TestTestCommandReportsFailure(t *testing.T) {
	dir := t.TempDir()
	scenario := `name: wrong
program: |
  $count <- $count + 1.
ticks:
  - {}
expect:
  resources:
    count: "5"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wrong.yaml"), []byte(scenario), 0o644))

	out, _, err := execute(t, "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "FAIL wrong")
}

func TestTestCommandEmptyDir(t *testing.T) {
	_, _, err := execute(t, "test", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
