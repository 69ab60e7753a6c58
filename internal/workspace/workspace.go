package workspace

import "time"

// Session is the metadata record for one resident ticket workspace.
// LastUsed is monotonically non-decreasing; exactly one Session exists per
// resident key, enforced by the sessions table primary key.
type Session struct {
	Key            string    `json:"key"`
	CreatedAt      time.Time `json:"created_at"`
	LastUsed       time.Time `json:"last_used"`
	HasSessionData bool      `json:"has_session_data"`
}

// Handle is the on-disk location bound to a key. Handles are valid for the
// duration of one job; callers re-resolve by key rather than retaining them,
// so removal cannot be bypassed through a stale path.
type Handle struct {
	Key string
	Dir string
}

// SizeInfo is the lazily computed disk footprint of one session. SizeBytes
// covers the assistant's session-continuation data; WorkspaceSizeBytes covers
// the whole workspace tree.
type SizeInfo struct {
	Key                string `json:"key"`
	SizeBytes          int64  `json:"size_bytes"`
	WorkspaceSizeBytes int64  `json:"workspace_size_bytes"`
}

// InvocationRecord is written into the session state dir after every settled
// invocation.
type InvocationRecord struct {
	JobID      string    `json:"job_id"`
	SettledAt  time.Time `json:"settled_at"`
	Success    bool      `json:"success"`
	LastError  string    `json:"last_error,omitempty"`
}
