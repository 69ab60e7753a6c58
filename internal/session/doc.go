// Package session composes the workspace lifecycle per job.
//
// For each job the orchestrator decides reuse vs. create, enforces the soft
// capacity through LRU eviction, runs the supervised assistant invocation,
// and bumps recency afterwards regardless of outcome. A background pruner
// removes sessions idle past the configured threshold, independent of
// capacity.
//
// Key semantics:
//   - Eviction runs in-line before creating a session for an absent key and
//     removes the resident session with the smallest last_used (lexicographic
//     tie-break). A victim that vanished concurrently counts as evicted.
//   - Pruning removes sessions strictly older than the threshold; a session
//     exactly at the threshold is retained. Per-session failures are logged
//     and never abort the tick.
//   - A busy-key set marks sessions with an in-flight invocation; eviction,
//     pruning, and manual deletes never remove a busy session. Job processing
//     is serial in the reference deployment, so the guard covers the latent
//     race rather than an observed one.
//   - Failed jobs keep their workspace for diagnosis and resumption; only
//     eviction, pruning, and manual deletes destroy workspaces.
package session
