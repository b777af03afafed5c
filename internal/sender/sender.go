// Package sender builds and executes one bounded outbound HTTP call per job.
package sender

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hookqueue/hookqueue/internal/job"
)

const (
	// Fixed constraints on every outbound call, regardless of job content.
	MaxRedirects     = 3
	RequestTimeout   = 30 * time.Second
	MaxResponseBytes = 8 << 10

	// Injected last on every request, binding the call to its origin.
	StoreIDHeader   = "X-Store-ID"
	TriggerIDHeader = "X-Trigger-Object-ID"
)

// Outcome is the result of one dispatch attempt. Exactly one of the three
// shapes applies: success (2xx), HTTP error (response received, non-2xx), or
// network error (no response, Err set).
type Outcome struct {
	StatusCode int
	Body       string
	Err        error
	ErrCode    string // timeout, connection_refused, dns_error, too_many_redirects, network
}

// Success reports whether the endpoint accepted the delivery.
func (o Outcome) Success() bool {
	return o.Err == nil && o.StatusCode >= 200 && o.StatusCode < 300
}

// NetworkError reports whether no HTTP response was received at all.
func (o Outcome) NetworkError() bool {
	return o.Err != nil
}

// ServerError reports whether the endpoint answered with a 5xx.
func (o Outcome) ServerError() bool {
	return o.Err == nil && o.StatusCode >= 500 && o.StatusCode < 600
}

// Sender executes outbound webhook calls with the fixed constraints above.
type Sender struct {
	client *http.Client
}

// New returns a Sender with the 30s timeout and 3-redirect cap applied.
func New() *Sender {
	return &Sender{
		client: &http.Client{
			Timeout: RequestTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= MaxRedirects {
					return fmt.Errorf("stopped after %d redirects", MaxRedirects)
				}
				return nil
			},
		},
	}
}

// Send performs one delivery attempt. It never mutates the job and never
// fails on malformed job headers; those degrade to an empty header set.
func (s *Sender) Send(ctx context.Context, j job.Job) Outcome {
	method := strings.ToUpper(strings.TrimSpace(j.Method))
	if method == "" {
		method = http.MethodGet
	}

	body := j.Body
	switch {
	case method == http.MethodGet:
		body = ""
	case method == http.MethodPost && body == "":
		// A POST with no payload still needs a JSON body on the wire.
		body = "{}"
	}

	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, j.URI, rdr)
	if err != nil {
		return Outcome{Err: err, ErrCode: "bad_request"}
	}

	for k, v := range parseHeaders(j.Headers) {
		req.Header.Set(k, v)
	}
	if body != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	// Always overwrite the identifier headers, after any caller-supplied ones.
	req.Header.Set(StoreIDHeader, strconv.FormatInt(j.StoreID, 10))
	req.Header.Set(TriggerIDHeader, j.TriggerID)

	resp, err := s.client.Do(req)
	if err != nil {
		return Outcome{Err: err, ErrCode: classify(err)}
	}
	defer resp.Body.Close()

	// Response is opaque text, capped at MaxResponseBytes.
	b, _ := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBytes+1))
	if len(b) > MaxResponseBytes {
		b = b[:MaxResponseBytes]
	}

	return Outcome{StatusCode: resp.StatusCode, Body: string(b)}
}

// parseHeaders decodes the job's raw headers JSON. A malformed value resets
// to an empty map rather than failing the job.
func parseHeaders(raw string) map[string]string {
	if raw == "" {
		return nil
	}
	var h map[string]string
	if err := json.Unmarshal([]byte(raw), &h); err != nil {
		return nil
	}
	return h
}

// classify maps a transport error to a machine-readable code for history
// rows and retry metrics.
func classify(err error) string {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "context deadline exceeded"), strings.Contains(msg, "timeout"):
		return "timeout"
	case strings.Contains(msg, "connection refused"):
		return "connection_refused"
	case strings.Contains(msg, "connection reset"):
		return "connection_reset"
	case strings.Contains(msg, "no such host"), strings.Contains(msg, "dns"):
		return "dns_error"
	case strings.Contains(msg, "stopped after"):
		return "too_many_redirects"
	default:
		return "network"
	}
}
