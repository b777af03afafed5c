package main

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"
)

var (
	failFirstN = 0
	reqCount   = 0
	respDelay  time.Duration
)

func main() {
	// Parse fail first settings
	if v := os.Getenv("FAIL_FIRST_N"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			failFirstN = n
		}
	}
	// Artificial response delay, for exercising the sender timeout
	if v := os.Getenv("RESPONSE_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			respDelay = d
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte(`{"ok":true}`)) })
	mux.HandleFunc("/hook", handleHook)

	addr := ":8081"
	log.Printf("fake-receiver listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, mux))
}

func handleHook(w http.ResponseWriter, r *http.Request) {
	reqCount++
	b, _ := io.ReadAll(r.Body)
	defer r.Body.Close()

	if respDelay > 0 {
		time.Sleep(respDelay)
	}

	storeID := r.Header.Get("X-Store-ID")
	triggerID := r.Header.Get("X-Trigger-Object-ID")

	// Simulate flakiness: first N requests -> 500
	if reqCount <= failFirstN {
		log.Printf("FAILING (%d/%d) %s %s store=%s trigger=%s body=%s",
			reqCount, failFirstN, r.Method, r.URL.Path, storeID, triggerID, truncate(string(b), 160))
		http.Error(w, "temporary failure", http.StatusInternalServerError)
		return
	}

	log.Printf("fake-receiver OK %s %s store=%s trigger=%s headers=%d body=%q",
		r.Method, r.URL.Path, storeID, triggerID, len(r.Header), truncate(string(b), 160))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`ok`))
}

// truncate truncates a string to the specified length and adds an ellipsis if truncated
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return fmt.Sprintf("%s...", s[:n])
}
