// Package webhook receives forge events and turns them into queued jobs.
//
// Two listeners share one HTTP server: a GitHub endpoint authenticated by
// HMAC-SHA256 over the raw body, and a Jira endpoint authenticated by a
// shared token header. Both extract a ticket from the payload, derive a
// dedupe key so redelivered events do not double-run the assistant, and
// enqueue. The handler never invokes the assistant itself; acceptance and
// execution are decoupled through the queue.
package webhook
