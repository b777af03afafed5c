// Package deadletter publishes dropped jobs to an NSQ topic so downstream
// tooling can inspect or replay them. Publishing is best-effort: a failure
// is logged and never blocks the dispatcher.
package deadletter

import (
	"encoding/json"
	"time"

	"github.com/nsqio/go-nsq"

	"github.com/hookqueue/hookqueue/internal/job"
	"github.com/hookqueue/hookqueue/internal/logging"
	"github.com/hookqueue/hookqueue/internal/metrics"
	"github.com/hookqueue/hookqueue/internal/sender"
)

const EnvelopeType = "webhook.dead_letter"

type Envelope struct {
	Type       string  `json:"type"`    // "webhook.dead_letter"
	Version    string  `json:"version"` // schema version
	At         string  `json:"at"`      // RFC3339 time the drop was recorded
	Reason     string  `json:"reason"`  // machine-readable drop reason
	Attempt    int     `json:"attempt"` // retry count when dropped
	HTTPStatus int     `json:"http_status,omitempty"`
	LastError  string  `json:"last_error,omitempty"`
	Job        job.Job `json:"job"` // full job snapshot
}

func NewEnvelope(j job.Job, out sender.Outcome, reason string) Envelope {
	env := Envelope{
		Type:    EnvelopeType,
		Version: "v1",
		At:      time.Now().Format(time.RFC3339Nano),
		Reason:  reason,
		Attempt: j.Retry,
		Job:     j,
	}
	if out.NetworkError() {
		env.LastError = out.Err.Error()
	} else {
		env.HTTPStatus = out.StatusCode
	}
	return env
}

type Publisher struct {
	prod  *nsq.Producer
	topic string
	log   *logging.Logger
}

func NewPublisher(nsqdAddr, topic string, log *logging.Logger) (*Publisher, error) {
	prod, err := nsq.NewProducer(nsqdAddr, nsq.NewConfig())
	if err != nil {
		return nil, err
	}
	return &Publisher{prod: prod, topic: topic, log: log}, nil
}

// Publish sends the dead-letter envelope. Errors are logged and swallowed.
func (p *Publisher) Publish(j job.Job, out sender.Outcome, reason string) {
	env := NewEnvelope(j, out, reason)
	b, err := json.Marshal(env)
	if err != nil {
		p.log.Plain().WithJob(j.ID).WithError(err).Error("dead letter encode failed")
		return
	}
	if err := p.prod.Publish(p.topic, b); err != nil {
		p.log.Plain().WithJob(j.ID).WithError(err).Error("dead letter publish failed")
		return
	}
	metrics.DeadLettersTotal.Inc()
	p.log.Plain().WithJob(j.ID).WithStore(j.StoreID).WithField("topic", p.topic).Info("dead letter published")
}

func (p *Publisher) Stop() {
	p.prod.Stop()
}
