package journal

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lockstep-sim/lockstep/internal/snapshot"
	"github.com/lockstep-sim/lockstep/internal/value"
)

func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s2.Close())
}

func TestWriteAndReadSession(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	sid, err := s.CreateSession(ctx, "$count <- $count + 1.")
	require.NoError(t, err)

	for tick := int64(0); tick < 3; tick++ {
		snap := snapshot.Empty(uint64(tick))
		snap.NetEvents = []snapshot.NetEvent{
			{Sender: "p1", Seq: tick, OrderKey: tick, Payload: value.Pairs{"n": value.NumInt(tick)}},
		}
		f := Frame{Tick: tick, Snapshot: snap, StateHash: "state-" + string(rune('a'+tick))}
		require.NoError(t, s.WriteFrame(ctx, sid, f))
	}

	frames, err := s.ReadSession(ctx, sid)
	require.NoError(t, err)
	require.Len(t, frames, 3)
	for i, f := range frames {
		assert.Equal(t, int64(i), f.Tick)
		assert.Equal(t, uint64(i), f.Snapshot.Seed)
		require.Len(t, f.Snapshot.NetEvents, 1)
		assert.Equal(t, "p1", f.Snapshot.NetEvents[0].Sender)
	}
}

func TestDuplicateTickRejected(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	sid, err := s.CreateSession(ctx, "")
	require.NoError(t, err)

	f := Frame{Tick: 0, Snapshot: snapshot.Empty(1), StateHash: "h"}
	require.NoError(t, s.WriteFrame(ctx, sid, f))

	f.StateHash = "other"
	err = s.WriteFrame(ctx, sid, f)
	require.Error(t, err, "one session cannot record tick 0 twice")
}

func TestIdenticalFramesShareRows(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	a, err := s.CreateSession(ctx, "")
	require.NoError(t, err)
	b, err := s.CreateSession(ctx, "")
	require.NoError(t, err)

	f := Frame{Tick: 0, Snapshot: snapshot.Empty(1), StateHash: "same"}
	require.NoError(t, s.WriteFrame(ctx, a, f))
	require.NoError(t, s.WriteFrame(ctx, b, f))

	var count int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM frames").Scan(&count))
	assert.Equal(t, 1, count, "content-addressed frames dedupe across sessions")
}

func TestCreateBranchCopiesPrefix(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	parent, err := s.CreateSession(ctx, "prog")
	require.NoError(t, err)
	for tick := int64(0); tick < 4; tick++ {
		f := Frame{Tick: tick, Snapshot: snapshot.Empty(uint64(tick)), StateHash: "h"}
		require.NoError(t, s.WriteFrame(ctx, parent, f))
	}

	branch, err := s.CreateBranch(ctx, parent, 2)
	require.NoError(t, err)

	frames, err := s.ReadSession(ctx, branch)
	require.NoError(t, err)
	assert.Len(t, frames, 2)

	meta, err := s.ReadSessionMeta(ctx, branch)
	require.NoError(t, err)
	assert.Equal(t, parent, meta.ParentID)
	assert.Equal(t, int64(2), meta.BranchTick)
	assert.Equal(t, "prog", meta.Program)

	// Branch diverges from tick 2 without touching the parent.
	require.NoError(t, s.WriteFrame(ctx, branch, Frame{Tick: 2, Snapshot: snapshot.Empty(99), StateHash: "div"}))
	parentFrames, err := s.ReadSession(ctx, parent)
	require.NoError(t, err)
	assert.Len(t, parentFrames, 4)
	assert.Equal(t, "h", parentFrames[2].StateHash)
}

func TestReadDetectsTamperedRow(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	sid, err := s.CreateSession(ctx, "")
	require.NoError(t, err)
	require.NoError(t, s.WriteFrame(ctx, sid, Frame{Tick: 0, Snapshot: snapshot.Empty(1), StateHash: "h"}))

	_, err = s.db.Exec("UPDATE frames SET state_hash = 'rewritten'")
	require.NoError(t, err)

	_, err = s.ReadSession(ctx, sid)
	var tamper *TamperError
	require.ErrorAs(t, err, &tamper)
	assert.Equal(t, int64(0), tamper.Tick)
}

func TestSessionsListedChronologically(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	first, err := s.CreateSession(ctx, "a")
	require.NoError(t, err)
	second, err := s.CreateSession(ctx, "b")
	require.NoError(t, err)

	sessions, err := s.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, first, sessions[0].ID)
	assert.Equal(t, second, sessions[1].ID)
}
