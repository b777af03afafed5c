// Package dispatcher runs the delivery loop: a fixed-interval poll of the
// queue store feeding a bounded worker pool, where each worker runs one
// job's send, retry decision and persistence as a single unit of work.
package dispatcher

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/hookqueue/hookqueue/internal/deadletter"
	"github.com/hookqueue/hookqueue/internal/history"
	"github.com/hookqueue/hookqueue/internal/job"
	"github.com/hookqueue/hookqueue/internal/logging"
	"github.com/hookqueue/hookqueue/internal/metrics"
	"github.com/hookqueue/hookqueue/internal/queue"
	"github.com/hookqueue/hookqueue/internal/retry"
	"github.com/hookqueue/hookqueue/internal/sender"
	"github.com/hookqueue/hookqueue/internal/tracing"
)

type Options struct {
	PollInterval time.Duration
	Workers      int
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = 5 * time.Second
	}
	if o.Workers <= 0 {
		o.Workers = 8
	}
	return o
}

type Dispatcher struct {
	store    queue.Store
	recorder history.Recorder
	sender   *sender.Sender
	policy   retry.Policy
	dlq      *deadletter.Publisher // nil disables dead-letter publishing
	log      *logging.Logger
	opts     Options

	jobs chan job.Job
	wg   sync.WaitGroup
	now  func() time.Time
}

func New(store queue.Store, recorder history.Recorder, snd *sender.Sender,
	policy retry.Policy, dlq *deadletter.Publisher, log *logging.Logger, opts Options) *Dispatcher {
	opts = opts.withDefaults()
	return &Dispatcher{
		store:    store,
		recorder: recorder,
		sender:   snd,
		policy:   policy,
		dlq:      dlq,
		log:      log,
		opts:     opts,
		jobs:     make(chan job.Job, opts.Workers),
		now:      time.Now,
	}
}

// Run blocks until ctx is cancelled, then drains in-flight deliveries. A
// single Run per store is assumed; concurrent dispatcher instances against
// the same queue risk duplicate deliveries (no claim/lease step).
func (d *Dispatcher) Run(ctx context.Context) {
	// In-flight attempts finish on shutdown; each is bounded by the 30s
	// request timeout anyway.
	workCtx := context.WithoutCancel(ctx)

	d.wg.Add(d.opts.Workers)
	for i := 0; i < d.opts.Workers; i++ {
		go d.worker(workCtx)
	}

	d.log.Plain().WithFields(map[string]any{
		"poll_interval": d.opts.PollInterval.String(),
		"workers":       d.opts.Workers,
	}).Info("dispatcher started")

	ticker := time.NewTicker(d.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			close(d.jobs)
			d.wg.Wait()
			d.log.Plain().Info("dispatcher stopped")
			return
		case <-ticker.C:
			d.poll(ctx)
		}
	}
}

// poll fetches due jobs and hands them to the workers. A store failure skips
// the cycle; the next tick retries naturally.
func (d *Dispatcher) poll(ctx context.Context) {
	due, err := d.store.PollDue(ctx, d.now())
	if err != nil {
		d.log.Plain().WithError(err).Error("queue poll failed, skipping cycle")
		return
	}
	metrics.DueJobs.Set(float64(len(due)))

	for _, j := range due {
		select {
		case d.jobs <- j:
		case <-ctx.Done():
			return
		}
	}
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for j := range d.jobs {
		d.process(ctx, j)
	}
}

// process runs one dispatch attempt end to end: send, decide, apply the
// queue mutation, then write history. The queue mutation always lands
// before the history write to keep the duplicate-delivery window small.
func (d *Dispatcher) process(ctx context.Context, j job.Job) {
	ctx, span := tracing.StartSpan(ctx, "dispatcher.process",
		attribute.String("job_id", j.ID),
		attribute.String("trigger_id", j.TriggerID),
		attribute.Int64("store_id", j.StoreID),
		attribute.String("uri", j.URI),
		attribute.Int("retry", j.Retry),
	)
	defer span.End()

	tracing.AddSpanEvent(ctx, "http.send_webhook")
	out := d.sender.Send(ctx, j)
	dec := d.policy.Decide(out, j.Retry)

	span.SetAttributes(
		attribute.Int("http.status_code", out.StatusCode),
		attribute.String("decision", dec.Reason),
	)

	switch {
	case dec.Retry:
		at := d.now().Add(dec.Delay)
		tracing.AddSpanEvent(ctx, "queue.reschedule")
		if err := d.store.Reschedule(ctx, j, at); err != nil {
			// Losing this write silently drops the job, so fail loudly.
			metrics.RescheduleFailuresTotal.Inc()
			tracing.SetSpanError(ctx, err)
			d.log.WithContext(ctx).WithJob(j.ID).WithStore(j.StoreID).WithError(err).
				Error("reschedule failed, job may be lost")
			break
		}
		metrics.DispatchesTotal.WithLabelValues("retried").Inc()
		metrics.RetriesTotal.WithLabelValues(dec.Reason).Inc()
		d.log.WithContext(ctx).WithJob(j.ID).WithStore(j.StoreID).WithFields(map[string]any{
			"attempt": j.Retry + 1,
			"delay":   dec.Delay.String(),
			"status":  out.StatusCode,
		}).Info("delivery rescheduled")

	case dec.Delivered:
		tracing.AddSpanEvent(ctx, "queue.remove")
		if err := d.store.Remove(ctx, j); err != nil {
			tracing.SetSpanError(ctx, err)
			d.log.WithContext(ctx).WithJob(j.ID).WithStore(j.StoreID).WithError(err).
				Error("remove after delivery failed")
		}
		metrics.DispatchesTotal.WithLabelValues("delivered").Inc()
		d.log.WithContext(ctx).WithJob(j.ID).WithStore(j.StoreID).
			WithField("status", out.StatusCode).Info("delivered")

	default: // dropped
		tracing.AddSpanEvent(ctx, "queue.remove")
		if err := d.store.Remove(ctx, j); err != nil {
			tracing.SetSpanError(ctx, err)
			d.log.WithContext(ctx).WithJob(j.ID).WithStore(j.StoreID).WithError(err).
				Error("remove after drop failed")
		}
		metrics.DispatchesTotal.WithLabelValues("dropped").Inc()
		entry := d.log.WithContext(ctx).WithJob(j.ID).WithStore(j.StoreID).
			WithTrigger(j.TriggerID).WithFields(map[string]any{
			"reason": dec.Reason,
			"method": j.Method,
			"uri":    j.URI,
		})
		if out.NetworkError() {
			// Keep the outbound request shape in the log for post-mortems.
			entry = entry.WithError(out.Err).WithField("headers", j.Headers)
		} else {
			entry = entry.WithField("status", out.StatusCode)
		}
		entry.Warn("delivery dropped")
		if d.dlq != nil {
			d.dlq.Publish(j, out, dec.Reason)
		}
	}

	// Best-effort audit: a lost history row never blocks dispatch.
	tracing.AddSpanEvent(ctx, "history.record")
	if err := d.recorder.Record(ctx, j, out); err != nil {
		metrics.HistoryWriteFailuresTotal.Inc()
		tracing.SetSpanError(ctx, err)
		d.log.WithContext(ctx).WithJob(j.ID).WithStore(j.StoreID).WithError(err).
			Warn("history write failed")
	}
}
