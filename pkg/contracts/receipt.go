package contracts

import "time"

// ReceiptStatus records how an execution attempt ended.
type ReceiptStatus string

const (
	ReceiptSucceeded ReceiptStatus = "succeeded"
	ReceiptFailed    ReceiptStatus = "failed"
	ReceiptDryRun    ReceiptStatus = "dry_run"
)

// Receipt is the immutable record of one execution of an approved request.
// Receipts are append-only on the request.
type Receipt struct {
	ReceiptID   string         `json:"receipt_id"`
	RequestID   string         `json:"request_id"`
	Status      ReceiptStatus  `json:"status"`
	ExecutorID  string         `json:"executor_id,omitempty"`
	ExternalRef string         `json:"external_ref,omitempty"`
	Steps       []ActionStep   `json:"steps"`
	Error       string         `json:"error,omitempty"`
	ContentHash string         `json:"content_hash"`
	PrevHash    string         `json:"prev_hash,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Succeeded reports whether the side effect is confirmed to have run. A dry
// run is recorded but never confirms anything.
func (r Receipt) Succeeded() bool {
	return r.Status == ReceiptSucceeded
}
