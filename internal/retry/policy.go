// Package retry holds the pure decision function that turns a dispatch
// outcome into either a terminal state or a reschedule delay.
package retry

import (
	"time"

	"github.com/hookqueue/hookqueue/internal/sender"
)

// Reasons reported on decisions, used as metric labels and history detail.
const (
	ReasonDelivered   = "delivered"
	ReasonServerError = "http_5xx"
	ReasonClientError = "http_4xx"
	ReasonExhausted   = "retries_exhausted"
)

// Decision is the policy's verdict for one attempt. When Retry is true the
// job goes back to the queue after Delay with its retry count incremented;
// otherwise the job is removed for good.
type Decision struct {
	Retry     bool
	Delay     time.Duration
	Delivered bool
	Reason    string
}

// Policy decides retries. Only HTTP 5xx responses are retried; client errors
// and bare network failures (timeouts, resets, DNS) are terminal after one
// attempt.
type Policy struct {
	MaxAttempts int           // retries allowed beyond the first attempt
	Step        time.Duration // delay grows linearly: (retry+1) * Step
}

// Default matches the production schedule: up to 3 retries, 5 minutes apart
// per attempt already made (5m, 10m, 15m).
func Default() Policy {
	return Policy{MaxAttempts: 3, Step: 5 * time.Minute}
}

// Decide maps an outcome and the job's current retry count to a decision.
func (p Policy) Decide(out sender.Outcome, retryCount int) Decision {
	if out.Success() {
		return Decision{Delivered: true, Reason: ReasonDelivered}
	}
	if out.NetworkError() {
		// No response at all. Terminal: the endpoint may never have seen the
		// request, and replaying blind risks duplicates on flaky links.
		return Decision{Reason: out.ErrCode}
	}
	if !out.ServerError() {
		return Decision{Reason: ReasonClientError}
	}
	if retryCount >= p.MaxAttempts {
		return Decision{Reason: ReasonExhausted}
	}
	return Decision{
		Retry:  true,
		Delay:  time.Duration(retryCount+1) * p.Step,
		Reason: ReasonServerError,
	}
}
