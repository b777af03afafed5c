package dispatcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/hookqueue/hookqueue/internal/history"
	"github.com/hookqueue/hookqueue/internal/job"
	"github.com/hookqueue/hookqueue/internal/logging"
	"github.com/hookqueue/hookqueue/internal/queue"
	"github.com/hookqueue/hookqueue/internal/retry"
	"github.com/hookqueue/hookqueue/internal/sender"
)

// memStore is an in-memory queue.Store for exercising the dispatch loop.
type memStore struct {
	mu   sync.Mutex
	jobs map[string]job.Job
}

func newMemStore() *memStore {
	return &memStore{jobs: make(map[string]job.Job)}
}

func (s *memStore) Enqueue(_ context.Context, j job.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.jobs {
		if existing.DedupKey() == j.DedupKey() {
			return nil
		}
	}
	s.jobs[j.ID] = j
	return nil
}

func (s *memStore) PollDue(_ context.Context, now time.Time) ([]job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []job.Job
	for _, j := range s.jobs {
		if !j.ScheduledTime.After(now) {
			due = append(due, j)
		}
	}
	return due, nil
}

func (s *memStore) Remove(_ context.Context, j job.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, j.ID)
	return nil
}

func (s *memStore) Reschedule(_ context.Context, j job.Job, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	updated := j
	updated.Retry++
	updated.ScheduledTime = at
	s.jobs[j.ID] = updated
	return nil
}

func (s *memStore) get(id string) (job.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	return j, ok
}

func (s *memStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// memRecorder captures history writes.
type memRecorder struct {
	mu      sync.Mutex
	entries []history.Entry
}

func (r *memRecorder) Record(_ context.Context, j job.Job, out sender.Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := history.NewEntry(j, out)
	e.ID = int64(len(r.entries) + 1)
	r.entries = append(r.entries, e)
	return nil
}

func (r *memRecorder) ListByStore(_ context.Context, storeID int64, _ int) ([]history.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []history.Entry
	for _, e := range r.entries {
		if e.StoreID == storeID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

var _ queue.Store = (*memStore)(nil)
var _ history.Recorder = (*memRecorder)(nil)

func testDispatcher(store queue.Store, rec history.Recorder) *Dispatcher {
	return New(store, rec, sender.New(), retry.Policy{MaxAttempts: 3, Step: 5 * time.Minute},
		nil, logging.New("dispatcher-test"), Options{})
}

func TestProcessDelivered(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := newMemStore()
	rec := &memRecorder{}
	d := testDispatcher(store, rec)

	j := job.New("order.created", 42, srv.URL)
	if err := store.Enqueue(context.Background(), j); err != nil {
		t.Fatal(err)
	}

	d.process(context.Background(), j)

	if store.len() != 0 {
		t.Errorf("queue length = %d, want 0 after delivery", store.len())
	}
	if rec.count() != 1 {
		t.Fatalf("history entries = %d, want 1", rec.count())
	}
	if e := rec.entries[0]; e.StatusCode != 200 || e.Error != "" {
		t.Errorf("history entry = %+v, want status 200 with no error", e)
	}
}

func TestProcessServerErrorReschedules(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	store := newMemStore()
	rec := &memRecorder{}
	d := testDispatcher(store, rec)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }

	j := job.New("order.created", 42, srv.URL)
	j.Retry = 1
	if err := store.Enqueue(context.Background(), j); err != nil {
		t.Fatal(err)
	}

	d.process(context.Background(), j)

	got, ok := store.get(j.ID)
	if !ok {
		t.Fatal("job missing from queue, want rescheduled")
	}
	if got.Retry != 2 {
		t.Errorf("Retry = %d, want 2", got.Retry)
	}
	wantAt := now.Add(10 * time.Minute) // (retry+1) * step
	if !got.ScheduledTime.Equal(wantAt) {
		t.Errorf("ScheduledTime = %v, want %v", got.ScheduledTime, wantAt)
	}
	if rec.count() != 1 {
		t.Errorf("history entries = %d, want 1 per attempt", rec.count())
	}
}

func TestProcessClientErrorDrops(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	store := newMemStore()
	rec := &memRecorder{}
	d := testDispatcher(store, rec)

	j := job.New("order.created", 42, srv.URL)
	if err := store.Enqueue(context.Background(), j); err != nil {
		t.Fatal(err)
	}

	d.process(context.Background(), j)

	if store.len() != 0 {
		t.Errorf("queue length = %d, want 0 after drop", store.len())
	}
	if rec.count() != 1 {
		t.Fatalf("history entries = %d, want 1", rec.count())
	}
	if e := rec.entries[0]; e.StatusCode != 404 || e.Error == "" {
		t.Errorf("history entry = %+v, want status 404 with error detail", e)
	}
}

func TestProcessExhaustedRetriesDrops(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	store := newMemStore()
	rec := &memRecorder{}
	d := testDispatcher(store, rec)

	j := job.New("order.created", 42, srv.URL)
	j.Retry = 3
	if err := store.Enqueue(context.Background(), j); err != nil {
		t.Fatal(err)
	}

	d.process(context.Background(), j)

	if store.len() != 0 {
		t.Errorf("queue length = %d, want 0 after exhaustion", store.len())
	}
}

func TestProcessNetworkErrorDrops(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening anymore

	store := newMemStore()
	rec := &memRecorder{}
	d := testDispatcher(store, rec)

	j := job.New("order.created", 42, srv.URL)
	if err := store.Enqueue(context.Background(), j); err != nil {
		t.Fatal(err)
	}

	d.process(context.Background(), j)

	if store.len() != 0 {
		t.Errorf("queue length = %d, want 0 after network failure", store.len())
	}
	if rec.count() != 1 {
		t.Fatalf("history entries = %d, want 1", rec.count())
	}
	if e := rec.entries[0]; e.Error == "" || e.StatusCode != 0 {
		t.Errorf("history entry = %+v, want error with no status", e)
	}
}

// TestProcessRetrySequence walks one job through three 503 responses: each
// attempt reschedules with a growing delay, the fourth is dropped, and every
// attempt leaves a history row.
func TestProcessRetrySequence(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	store := newMemStore()
	rec := &memRecorder{}
	d := testDispatcher(store, rec)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }

	j := job.New("order.created", 42, srv.URL)
	j.ScheduledTime = now
	if err := store.Enqueue(context.Background(), j); err != nil {
		t.Fatal(err)
	}

	wantDelays := []time.Duration{5 * time.Minute, 10 * time.Minute, 15 * time.Minute}
	for attempt, delay := range wantDelays {
		due, err := store.PollDue(context.Background(), now)
		if err != nil {
			t.Fatal(err)
		}
		if len(due) != 1 {
			t.Fatalf("attempt %d: due = %d jobs, want 1", attempt+1, len(due))
		}

		d.process(context.Background(), due[0])

		got, ok := store.get(j.ID)
		if !ok {
			t.Fatalf("attempt %d: job missing, want rescheduled", attempt+1)
		}
		if got.Retry != attempt+1 {
			t.Errorf("attempt %d: Retry = %d, want %d", attempt+1, got.Retry, attempt+1)
		}
		if want := now.Add(delay); !got.ScheduledTime.Equal(want) {
			t.Errorf("attempt %d: ScheduledTime = %v, want %v", attempt+1, got.ScheduledTime, want)
		}

		now = got.ScheduledTime
	}

	// Fourth attempt exhausts the budget.
	due, err := store.PollDue(context.Background(), now)
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 1 {
		t.Fatalf("final attempt: due = %d jobs, want 1", len(due))
	}
	d.process(context.Background(), due[0])

	if store.len() != 0 {
		t.Errorf("queue length = %d, want 0 after exhaustion", store.len())
	}
	if rec.count() != 4 {
		t.Errorf("history entries = %d, want one per attempt", rec.count())
	}
	for i, e := range rec.entries {
		if e.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("entry %d: StatusCode = %d, want 503", i, e.StatusCode)
		}
	}
}

func TestRunDeliversAndStops(t *testing.T) {
	var mu sync.Mutex
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := newMemStore()
	rec := &memRecorder{}
	d := New(store, rec, sender.New(), retry.Default(), nil, logging.New("dispatcher-test"),
		Options{PollInterval: 10 * time.Millisecond, Workers: 2})

	for i := 0; i < 3; i++ {
		j := job.New("trigger", int64(i+1), srv.URL)
		j.ScheduledTime = j.ScheduledTime.Add(time.Duration(i) * time.Nanosecond)
		if err := store.Enqueue(context.Background(), j); err != nil {
			t.Fatal(err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	// At-least-once: a slow worker can be polled past, so allow extra
	// attempts but require every job to land and be recorded.
	deadline := time.After(5 * time.Second)
	for {
		if store.len() == 0 && rec.count() >= 3 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("deliveries incomplete: queue=%d history=%d", store.len(), rec.count())
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not stop after cancel")
	}

	mu.Lock()
	defer mu.Unlock()
	if hits < 3 {
		t.Errorf("endpoint hits = %d, want at least 3", hits)
	}
}
