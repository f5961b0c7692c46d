package server

import (
	"fmt"
	"net/http"
	"time"
)

// HandleHealthz responds to liveness probe requests by checking database connectivity.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := h.db.PingContext(r.Context()); err != nil {
		http.Error(w, "unhealthy", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz reports ready once the database answers and the monitor has
// completed a cycle recently.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"database", func() error { return h.db.PingContext(r.Context()) }},
		{"monitor", func() error {
			st := h.stats.Stats()
			if st.At.IsZero() {
				return fmt.Errorf("no cycle completed yet")
			}
			if age := time.Since(st.At); h.staleAfter > 0 && age > h.staleAfter {
				return fmt.Errorf("last cycle %s ago", age.Round(time.Second))
			}
			return nil
		}},
		{"listing", func() error {
			if st := h.stats.Stats(); st.Skipped {
				return fmt.Errorf("last fetch failed: %s", st.Error)
			}
			return nil
		}},
	}

	for _, check := range checks {
		if err := check.fn(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":       "not_ready",
				"failed_check": check.name,
				"error":        err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
