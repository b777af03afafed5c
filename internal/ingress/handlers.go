package ingress

import (
	"encoding/json"
	"math/rand"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hookqueue/hookqueue/internal/history"
	"github.com/hookqueue/hookqueue/internal/job"
	"github.com/hookqueue/hookqueue/internal/logging"
	"github.com/hookqueue/hookqueue/internal/metrics"
	"github.com/hookqueue/hookqueue/internal/queue"
)

// Stable numeric error codes for each validation failure class. Internal
// error text is never leaked to callers.
const (
	CodeMalformedPayload = 100
	CodeMissingURI       = 101
	CodeInvalidURI       = 102
	CodeInvalidStoreID   = 103
	CodeInternal         = 500
)

const defaultTriggerID = "manual"

var uriPattern = regexp.MustCompile(`^https?://`)

// HTTP layer DTOs, separate from the domain job to keep the wire shape
// lenient: store_id and headers accept more than one JSON type.

type jobRequest struct {
	URI       string          `json:"uri"`
	StoreID   json.RawMessage `json:"store_id"`
	TriggerID string          `json:"trigger_id"`
	Method    string          `json:"method"`
	Headers   json.RawMessage `json:"headers"`
	Body      json.RawMessage `json:"body"`
}

type jobResponse struct {
	ID            string `json:"id"`
	StoreID       int64  `json:"store_id"`
	TriggerID     string `json:"trigger_id"`
	ScheduledTime string `json:"scheduled_time"`
}

type errorResponse struct {
	Status    int    `json:"status"`
	ErrorCode int    `json:"error_code"`
	Message   string `json:"message,omitempty"`
}

// postJob handles POST /v1/jobs
func postJob(store queue.Store, log *logging.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req jobRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, CodeMalformedPayload, "malformed request payload")
			return
		}

		if strings.TrimSpace(req.URI) == "" {
			writeError(w, http.StatusBadRequest, CodeMissingURI, "uri is required")
			return
		}
		if !validURI(req.URI) {
			writeError(w, http.StatusBadRequest, CodeInvalidURI, "uri must be an absolute http(s) URL")
			return
		}

		triggerID := req.TriggerID
		if triggerID == "" {
			triggerID = defaultTriggerID
		}

		j := job.New(triggerID, parseStoreID(req.StoreID), req.URI)
		j.Method = strings.ToUpper(strings.TrimSpace(req.Method))
		j.Headers = normalizeHeaders(req.Headers)
		j.Body = normalizeBody(req.Body)

		if err := store.Enqueue(r.Context(), j); err != nil {
			log.WithContext(r.Context()).WithStore(j.StoreID).WithTrigger(j.TriggerID).
				WithError(err).Error("enqueue failed")
			writeError(w, http.StatusInternalServerError, CodeInternal, "failed to enqueue job")
			return
		}
		metrics.JobsEnqueuedTotal.Inc()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(jobResponse{
			ID:            j.ID,
			StoreID:       j.StoreID,
			TriggerID:     j.TriggerID,
			ScheduledTime: j.ScheduledTime.Format(time.RFC3339Nano),
		})
	})
}

// getHistory handles GET /v1/stores/{store_id}/history
func getHistory(recorder history.Recorder) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		storeID, err := strconv.ParseInt(chi.URLParam(r, "store_id"), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, CodeInvalidStoreID, "store_id must be an integer")
			return
		}

		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		entries, err := recorder.ListByStore(r.Context(), storeID, limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, CodeInternal, "failed to read history")
			return
		}
		if entries == nil {
			entries = []history.Entry{}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(entries)
	})
}

// validURI enforces the ingress contract: absolute http(s) URL with a
// non-empty host. The dispatcher trusts this and does not re-validate.
func validURI(raw string) bool {
	if !uriPattern.MatchString(raw) {
		return false
	}
	u, err := url.Parse(raw)
	return err == nil && u.Host != ""
}

// parseStoreID accepts a JSON number or numeric string. Absent or invalid
// values get a random placeholder, never a null.
func parseStoreID(raw json.RawMessage) int64 {
	if len(raw) > 0 {
		var n int64
		if err := json.Unmarshal(raw, &n); err == nil && n > 0 {
			return n
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if n, err := strconv.ParseInt(s, 10, 64); err == nil && n > 0 {
				return n
			}
		}
	}
	return rand.Int63n(900000) + 100000
}

// normalizeHeaders accepts a JSON object or a JSON string holding one, and
// stores the compact object text on the job. Anything else degrades to
// empty; the sender is equally lenient.
func normalizeHeaders(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var obj map[string]string
	if err := json.Unmarshal(raw, &obj); err == nil {
		b, _ := json.Marshal(obj)
		return string(b)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

// normalizeBody stores strings as-is and any other JSON value as its
// compact encoding.
func normalizeBody(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func writeError(w http.ResponseWriter, status, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Status: status, ErrorCode: code, Message: msg})
}
