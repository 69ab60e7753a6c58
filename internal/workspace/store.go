package workspace

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zeebo/blake3"
)

// stateDirName is the workspace subdirectory holding the assistant's
// session-continuation data. Its presence (non-empty) is what makes a
// session resumable.
const stateDirName = ".navvy"

const invocationRecordFile = "last-invocation.json"

// Store owns on-disk workspace directories keyed by ticket and their session
// metadata rows. Directories live under baseDir (data plane); created_at and
// last_used live in SQLite (control plane), so listing never walks the disk.
type Store struct {
	db      *sql.DB
	baseDir string
	now     func() time.Time
}

// NewStore creates a workspace store rooted at baseDir.
func NewStore(db *sql.DB, baseDir string) (*Store, error) {
	trimmed := strings.TrimSpace(baseDir)
	if trimmed == "" {
		return nil, fmt.Errorf("workspace base directory is empty")
	}
	return &Store{
		db:      db,
		baseDir: filepath.Clean(trimmed),
		now:     time.Now,
	}, nil
}

// GetOrCreate returns the handle for key, creating the directory and metadata
// row if absent. isNew reports whether this call created the session.
func (s *Store) GetOrCreate(ctx context.Context, key string) (Handle, bool, error) {
	if err := validateKey(key); err != nil {
		return Handle{}, false, err
	}

	dir := s.dirFor(key)
	h := Handle{Key: key, Dir: dir}

	exists, err := s.Exists(ctx, key)
	if err != nil {
		return Handle{}, false, err
	}
	if exists {
		// Directory may have been lost out-of-band; recreate so the
		// handle is always usable as a working directory.
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Handle{}, false, ioErr("create", key, err)
		}
		return h, false, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Handle{}, false, ioErr("create", key, err)
	}

	now := s.now().UTC().Format(time.RFC3339Nano)
	_, err = s.db.ExecContext(ctx, `
INSERT INTO sessions(ticket_key, created_at, last_used)
VALUES(?, ?, ?)
ON CONFLICT(ticket_key) DO NOTHING;
`, key, now, now)
	if err != nil {
		return Handle{}, false, fmt.Errorf("insert session %q: %w", key, err)
	}

	return h, true, nil
}

// Exists reports whether a session is resident for key.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM sessions WHERE ticket_key = ?;", key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query session %q: %w", key, err)
	}
	return true, nil
}

// HasExistingSession reports whether a prior invocation left
// session-continuation data in the workspace.
func (s *Store) HasExistingSession(h Handle) bool {
	entries, err := os.ReadDir(filepath.Join(h.Dir, stateDirName))
	if err != nil {
		return false
	}
	return len(entries) > 0
}

// Touch sets last_used to now. Called after every invocation attempt,
// success or failure.
func (s *Store) Touch(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	now := s.now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, "UPDATE sessions SET last_used = ? WHERE ticket_key = ?;", now, key)
	if err != nil {
		return fmt.Errorf("touch session %q: %w", key, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("touch session %q: not resident", key)
	}
	return nil
}

// List returns all resident sessions ordered by key.
func (s *Store) List(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT ticket_key, created_at, last_used
FROM sessions
ORDER BY ticket_key ASC;
`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var (
			sess       Session
			createdAtS string
			lastUsedS  string
		)
		if err := rows.Scan(&sess.Key, &createdAtS, &lastUsedS); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, createdAtS); err == nil {
			sess.CreatedAt = t
		}
		if t, err := time.Parse(time.RFC3339Nano, lastUsedS); err == nil {
			sess.LastUsed = t
		}
		sess.HasSessionData = s.HasExistingSession(Handle{Key: sess.Key, Dir: s.dirFor(sess.Key)})
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return out, nil
}

// LeastRecentlyUsed returns the resident session with the smallest last_used,
// ties broken by lexicographic key. ok is false when no sessions are resident.
func (s *Store) LeastRecentlyUsed(ctx context.Context, skip map[string]bool) (Session, bool, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT ticket_key, created_at, last_used
FROM sessions
ORDER BY last_used ASC, ticket_key ASC;
`)
	if err != nil {
		return Session{}, false, fmt.Errorf("query lru session: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			sess       Session
			createdAtS string
			lastUsedS  string
		)
		if err := rows.Scan(&sess.Key, &createdAtS, &lastUsedS); err != nil {
			return Session{}, false, fmt.Errorf("scan lru session: %w", err)
		}
		if skip[sess.Key] {
			continue
		}
		if t, err := time.Parse(time.RFC3339Nano, createdAtS); err == nil {
			sess.CreatedAt = t
		}
		if t, err := time.Parse(time.RFC3339Nano, lastUsedS); err == nil {
			sess.LastUsed = t
		}
		return sess, true, nil
	}
	if err := rows.Err(); err != nil {
		return Session{}, false, fmt.Errorf("query lru session: %w", err)
	}
	return Session{}, false, nil
}

// Count returns the number of resident sessions.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions;").Scan(&n); err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return n, nil
}

// Remove deletes the workspace directory and its metadata. Removing an
// absent key is a no-op.
func (s *Store) Remove(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	if err := os.RemoveAll(s.dirFor(key)); err != nil {
		return ioErr("remove", key, err)
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE ticket_key = ?;", key); err != nil {
		return fmt.Errorf("delete session %q: %w", key, err)
	}
	return nil
}

// RecordInvocation writes the invocation record into the session state dir.
// This is what flips HasExistingSession for a fresh workspace even when the
// assistant itself wrote nothing.
func (s *Store) RecordInvocation(h Handle, rec InvocationRecord) error {
	stateDir := filepath.Join(h.Dir, stateDirName)
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return ioErr("record", h.Key, err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal invocation record: %w", err)
	}
	if err := os.WriteFile(filepath.Join(stateDir, invocationRecordFile), data, 0o644); err != nil {
		return ioErr("record", h.Key, err)
	}
	return nil
}

// StateDir returns the session-continuation directory inside a workspace.
func (s *Store) StateDir(h Handle) string {
	return filepath.Join(h.Dir, stateDirName)
}

// BaseDir returns the data-plane root.
func (s *Store) BaseDir() string { return s.baseDir }

// dirFor maps a key to its workspace directory. Keys may contain characters
// that are unsafe in path components (GitHub keys contain "/" and "#"), so
// the directory name is a sanitized prefix plus a short content hash.
func (s *Store) dirFor(key string) string {
	sanitized := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '_' || r == '-':
			return r
		default:
			return '-'
		}
	}, key)
	if len(sanitized) > 64 {
		sanitized = sanitized[:64]
	}

	sum := blake3.Sum256([]byte(key))
	return filepath.Join(s.baseDir, sanitized+"-"+hex.EncodeToString(sum[:4]))
}

func validateKey(key string) error {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return fmt.Errorf("ticket key is empty")
	}
	if trimmed != key {
		return fmt.Errorf("ticket key %q has surrounding whitespace", key)
	}
	return nil
}
