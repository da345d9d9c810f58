package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/lockstep-sim/lockstep/internal/snapshot"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - Initial schema (frames, sessions, session_frames)
const currentSchemaVersion = 1

// Store gives journals durable storage in SQLite. WAL mode keeps
// replay reads cheap while a live session appends.
type Store struct {
	db *sql.DB
}

// Session describes one recorded timeline. ParentID and BranchTick are
// set only for branches.
type Session struct {
	ID         string
	ParentID   string
	BranchTick int64
	Program    string
	CreatedAt  string
}

// Open creates or opens a journal database at the given path. Pragmas
// and schema migrations apply automatically; the call is idempotent.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("journal: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: connect: %w", err)
	}

	// SQLite supports one writer at a time; a single connection
	// avoids SQLITE_BUSY under the tick loop's append cadence.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: apply pragmas: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	// No incremental migrations yet; v1 is the base schema.
	if version < currentSchemaVersion {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	}
	return nil
}

// NewSessionID mints a time-ordered session token.
func NewSessionID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// CreateSession registers a new root timeline and returns its id.
func (s *Store) CreateSession(ctx context.Context, program string) (string, error) {
	id := NewSessionID()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, program) VALUES (?, ?)
	`, id, program)
	if err != nil {
		return "", fmt.Errorf("journal: create session: %w", err)
	}
	return id, nil
}

// CreateBranch registers a branch of an existing session, copying the
// parent's index rows before branchTick. Frame rows are shared by
// content address, so the branch stores no frame data of its own.
func (s *Store) CreateBranch(ctx context.Context, parentID string, branchTick int64) (string, error) {
	parent, err := s.ReadSessionMeta(ctx, parentID)
	if err != nil {
		return "", err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("journal: create branch: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	id := NewSessionID()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, parent_id, branch_tick, program)
		VALUES (?, ?, ?, ?)
	`, id, parentID, branchTick, parent.Program)
	if err != nil {
		return "", fmt.Errorf("journal: create branch: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO session_frames (session_id, tick, frame_hash)
		SELECT ?, tick, frame_hash FROM session_frames
		WHERE session_id = ? AND tick < ?
	`, id, parentID, branchTick)
	if err != nil {
		return "", fmt.Errorf("journal: copy branch prefix: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("journal: create branch: commit: %w", err)
	}
	return id, nil
}

// WriteFrame records one frame under a session. The frame row insert
// is idempotent by content address; writing the same tick twice for
// one session is a producer bug and fails on the index row's primary
// key.
func (s *Store) WriteFrame(ctx context.Context, sessionID string, f Frame) error {
	hash, err := f.Hash()
	if err != nil {
		return err
	}
	snapBytes, err := f.Snapshot.MarshalCanonical()
	if err != nil {
		return fmt.Errorf("journal: serialize snapshot for tick %d: %w", f.Tick, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("journal: write frame: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	_, err = tx.ExecContext(ctx, `
		INSERT INTO frames (hash, tick, snapshot, state_hash)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(hash) DO NOTHING
	`, hash, f.Tick, snapBytes, f.StateHash)
	if err != nil {
		return fmt.Errorf("journal: write frame: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO session_frames (session_id, tick, frame_hash)
		VALUES (?, ?, ?)
	`, sessionID, f.Tick, hash)
	if err != nil {
		return fmt.Errorf("journal: index frame %d: %w", f.Tick, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("journal: write frame: commit: %w", err)
	}
	return nil
}

// ReadSession loads a session's timeline in tick order, verifying
// every frame against its content address. A frame whose recomputed
// hash differs from its row key is reported as a TamperError.
func (s *Store) ReadSession(ctx context.Context, sessionID string) ([]Frame, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.hash, f.tick, f.snapshot, f.state_hash
		FROM session_frames sf
		JOIN frames f ON f.hash = sf.frame_hash
		WHERE sf.session_id = ?
		ORDER BY sf.tick ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("journal: query session %s: %w", sessionID, err)
	}
	defer rows.Close()

	frames := []Frame{}
	hashes := []string{}
	for rows.Next() {
		var hash, stateHash string
		var tick int64
		var snapBytes []byte
		if err := rows.Scan(&hash, &tick, &snapBytes, &stateHash); err != nil {
			return nil, fmt.Errorf("journal: scan frame: %w", err)
		}
		snap, err := snapshot.Unmarshal(snapBytes)
		if err != nil {
			return nil, fmt.Errorf("journal: frame %d: %w", tick, err)
		}
		frames = append(frames, Frame{Tick: tick, Snapshot: snap, StateHash: stateHash})
		hashes = append(hashes, hash)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: iterate session %s: %w", sessionID, err)
	}
	if err := Verify(frames, hashes); err != nil {
		return nil, err
	}
	return frames, nil
}

// ReadSessionMeta returns a session's descriptor row.
func (s *Store) ReadSessionMeta(ctx context.Context, sessionID string) (Session, error) {
	var sess Session
	var parent sql.NullString
	var branchTick sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, parent_id, branch_tick, program, created_at
		FROM sessions WHERE id = ?
	`, sessionID).Scan(&sess.ID, &parent, &branchTick, &sess.Program, &sess.CreatedAt)
	if err != nil {
		return Session{}, fmt.Errorf("journal: read session %s: %w", sessionID, err)
	}
	sess.ParentID = parent.String
	sess.BranchTick = branchTick.Int64
	return sess, nil
}

// Sessions lists all recorded sessions, oldest first. UUIDv7 ids sort
// by creation time, so ordering by id is chronological.
func (s *Store) Sessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, parent_id, branch_tick, program, created_at
		FROM sessions ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("journal: list sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		var sess Session
		var parent sql.NullString
		var branchTick sql.NullInt64
		if err := rows.Scan(&sess.ID, &parent, &branchTick, &sess.Program, &sess.CreatedAt); err != nil {
			return nil, fmt.Errorf("journal: scan session: %w", err)
		}
		sess.ParentID = parent.String
		sess.BranchTick = branchTick.Int64
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: iterate sessions: %w", err)
	}
	return sessions, nil
}
