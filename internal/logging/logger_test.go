package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name        string
		serviceName string
	}{
		{name: "create logger with service name", serviceName: "test-service"},
		{name: "create logger with empty service name", serviceName: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := New(tt.serviceName)

			if logger == nil {
				t.Fatal("New() returned nil logger")
			}
			if logger.service != tt.serviceName {
				t.Errorf("New() service = %q, want %q", logger.service, tt.serviceName)
			}
		})
	}
}

func TestWithContextTraceCorrelation(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)

	logger := New("test-service")

	entry := logger.WithContext(context.Background())
	if entry.TraceID != "" {
		t.Errorf("WithContext() TraceID = %q, want empty without a span", entry.TraceID)
	}

	tracer := otel.Tracer("test-tracer")
	ctx, span := tracer.Start(context.Background(), "test-span")
	defer span.End()

	entry = logger.WithContext(ctx)
	if entry.TraceID == "" {
		t.Error("WithContext() TraceID empty, want trace id from active span")
	}
}

func TestFluentFields(t *testing.T) {
	logger := New("test-service")

	entry := logger.Plain().
		WithStore(42).
		WithTrigger("order.created").
		WithJob("job-1").
		WithField("attempt", 2).
		WithFields(map[string]any{"delay": "10m"}).
		WithError(errors.New("boom"))

	if entry.StoreID != 42 {
		t.Errorf("StoreID = %d, want 42", entry.StoreID)
	}
	if entry.TriggerID != "order.created" {
		t.Errorf("TriggerID = %q, want %q", entry.TriggerID, "order.created")
	}
	if entry.JobID != "job-1" {
		t.Errorf("JobID = %q, want %q", entry.JobID, "job-1")
	}
	if entry.Fields["attempt"] != 2 {
		t.Errorf("Fields[attempt] = %v, want 2", entry.Fields["attempt"])
	}
	if entry.Fields["delay"] != "10m" {
		t.Errorf("Fields[delay] = %v, want %q", entry.Fields["delay"], "10m")
	}
	if entry.Fields["error"] != "boom" {
		t.Errorf("Fields[error] = %v, want %q", entry.Fields["error"], "boom")
	}
}

func TestWithErrorNil(t *testing.T) {
	entry := New("test-service").Plain().WithError(nil)
	if _, ok := entry.Fields["error"]; ok {
		t.Error("WithError(nil) set an error field")
	}
}

func TestOutputJSON(t *testing.T) {
	out := captureStdout(t, func() {
		New("test-service").Plain().WithStore(42).WithField("k", "v").Info("hello")
	})

	var got LogEntry
	if err := json.Unmarshal(out, &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if got.Level != LevelInfo {
		t.Errorf("Level = %q, want %q", got.Level, LevelInfo)
	}
	if got.Message != "hello" {
		t.Errorf("Message = %q, want %q", got.Message, "hello")
	}
	if got.Service != "test-service" {
		t.Errorf("Service = %q, want %q", got.Service, "test-service")
	}
	if got.StoreID != 42 {
		t.Errorf("StoreID = %d, want 42", got.StoreID)
	}
	if got.Fields["k"] != "v" {
		t.Errorf("Fields[k] = %v, want %q", got.Fields["k"], "v")
	}
}

func TestOutputOmitsEmptyFields(t *testing.T) {
	out := captureStdout(t, func() {
		New("test-service").Plain().Warn("bare")
	})

	var raw map[string]any
	if err := json.Unmarshal(out, &raw); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	for _, key := range []string{"fields", "store_id", "trigger_id", "job_id", "trace_id"} {
		if _, ok := raw[key]; ok {
			t.Errorf("output contains %q, want omitted", key)
		}
	}
}

// captureStdout redirects os.Stdout for the duration of fn.
func captureStdout(t *testing.T, fn func()) []byte {
	t.Helper()

	orig := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	os.Stdout = w
	defer func() { os.Stdout = orig }()

	fn()

	_ = w.Close()
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}
