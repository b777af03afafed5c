// Package history keeps the append-only audit trail of dispatch outcomes,
// one entry per attempt, sequenced per originating store.
package history

import (
	"fmt"

	"github.com/hookqueue/hookqueue/internal/job"
	"github.com/hookqueue/hookqueue/internal/sender"
)

// Entry is one immutable dispatch record. ID is monotone per StoreID under
// serialized writes; concurrent writers for the same store may collide or
// leave gaps. It is advisory sequencing, not a uniqueness guarantee.
type Entry struct {
	ID         int64  `json:"id"`
	StoreID    int64  `json:"store_id"`
	TriggerID  string `json:"trigger_id"`
	URI        string `json:"uri"`
	Method     string `json:"method,omitempty"`
	Headers    string `json:"headers,omitempty"`
	Body       string `json:"body,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
	Response   string `json:"response,omitempty"`
	Error      string `json:"error,omitempty"`
	RecordedAt string `json:"recorded_at"`
}

// NewEntry maps a job and its outcome to an entry, truncating the response
// and combining the error message with its machine code on failure.
func NewEntry(j job.Job, out sender.Outcome) Entry {
	e := Entry{
		StoreID:   j.StoreID,
		TriggerID: j.TriggerID,
		URI:       j.URI,
		Method:    j.Method,
		Headers:   j.Headers,
		Body:      j.Body,
	}
	if out.NetworkError() {
		e.Error = fmt.Sprintf("%s (%s)", out.Err.Error(), out.ErrCode)
		return e
	}
	e.StatusCode = out.StatusCode
	e.Response = truncate(out.Body, sender.MaxResponseBytes)
	if !out.Success() {
		e.Error = fmt.Sprintf("endpoint returned HTTP %d", out.StatusCode)
	}
	return e
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
