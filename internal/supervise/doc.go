// Package supervise runs the assistant CLI as a supervised subprocess.
//
// Invoke spawns the process in the job's workspace, captures combined output
// while teeing it live to the caller, and enforces a bounded execution time:
// when the timeout fires the process gets SIGTERM, and if it has not exited
// after the grace period it gets SIGKILL.
//
// Termination is modeled as an explicit state machine
// (Running -> TerminateRequested -> KillRequested -> Exited) driven from a
// single select loop, so settlement happens exactly once and no timer can
// fire after a result is produced.
//
// Result classification:
//   - exit code 0 and no timeout kill -> success
//   - process could not start        -> SpawnError
//   - non-zero exit, no timeout      -> ExitError
//   - killed after exceeding timeout -> TimeoutError
package supervise
