package webhook

// DefaultMaxBodySize caps webhook payloads when the endpoint config does
// not set its own limit.
const DefaultMaxBodySize int64 = 1 << 20 // 1 MiB

// jiraTokenHeader carries the shared token for the Jira endpoint. Jira's
// native webhooks cannot sign bodies, so a secret header stands in.
const jiraTokenHeader = "X-Webhook-Token"

// AcceptResponse is returned for enqueued (or deduplicated) events.
type AcceptResponse struct {
	JobID     string `json:"job_id"`
	TicketKey string `json:"ticket_key"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

// IgnoreResponse is returned for authenticated events that do not trigger
// a job, such as comments without a bot mention.
type IgnoreResponse struct {
	Status string `json:"status"` // always "ignored"
}

type ErrorResponse struct {
	Error string `json:"error"`
}
