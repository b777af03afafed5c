package job

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Job is one pending webhook delivery. It is created by the ingress API with
// Retry=0 and ScheduledTime=now, and only the dispatcher mutates it afterwards
// (advancing Retry and ScheduledTime on reschedule).
type Job struct {
	ID            string    `json:"id"`
	TriggerID     string    `json:"trigger_id"`
	StoreID       int64     `json:"store_id"`
	URI           string    `json:"uri"`
	Method        string    `json:"method,omitempty"`
	Headers       string    `json:"headers,omitempty"` // raw JSON object, parsed leniently at send time
	Body          string    `json:"body,omitempty"`
	Retry         int       `json:"retry"`
	ScheduledTime time.Time `json:"scheduled_time"`
}

// New builds a job ready for its first dispatch. The generated ID is the
// job's stable identity; (TriggerID, ScheduledTime) stays the dedup key for
// idempotent inserts.
func New(triggerID string, storeID int64, uri string) Job {
	return Job{
		ID:            uuid.New().String(),
		TriggerID:     triggerID,
		StoreID:       storeID,
		URI:           uri,
		Retry:         0,
		ScheduledTime: time.Now().UTC(),
	}
}

// DedupKey is the identity used for idempotent enqueue. Two jobs with the
// same trigger and schedule are the same pending delivery.
func (j Job) DedupKey() string {
	return fmt.Sprintf("%s:%d", j.TriggerID, j.ScheduledTime.UnixNano())
}
