// Package health exposes the liveness probe used by an external supervisor
// to restart a stalled process.
package health

import (
	"encoding/json"
	"log"
	"net/http"
	"time"
)

// LastSuccesser reports when the last clean tick completed; zero means the
// first tick has not completed yet.
type LastSuccesser interface {
	LastSuccess() time.Time
}

// Handler returns healthy while the process is still starting up or the last
// successful tick is recent, and 503 once it goes stale.
func Handler(src LastSuccesser, staleAfter time.Duration) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		last := src.LastSuccess()
		healthy := last.IsZero() || time.Since(last) < staleAfter

		status := http.StatusOK
		state := "ok"
		if !healthy {
			status = http.StatusServiceUnavailable
			state = "stale"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		resp := map[string]any{"status": state}
		if !last.IsZero() {
			resp["last_tick"] = last.UTC().Format(time.RFC3339)
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
}

// Serve starts the probe endpoint in the background.
func Serve(addr string, src LastSuccesser, staleAfter time.Duration) {
	mux := http.NewServeMux()
	mux.Handle("/healthz", Handler(src, staleAfter))

	go func() {
		log.Printf("Health endpoint listening on %s", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Printf("Health endpoint error: %v", err)
		}
	}()
}
