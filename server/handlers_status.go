package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"

	"github.com/onnwee/live-signal/db"
	"github.com/onnwee/live-signal/monitor"
	"github.com/onnwee/live-signal/telemetry"
)

// HandleStatus returns the last cycle summary. Before the first cycle of this
// process it serves the summary persisted by the previous run, if any.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	st := h.stats.Stats()
	if st.Cycle == 0 && h.db != nil {
		if prev, ok := h.persistedStats(r); ok {
			st = prev
		}
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handlers) persistedStats(r *http.Request) (monitor.Stats, bool) {
	var st monitor.Stats
	v, err := db.GetKV(r.Context(), h.db, db.LastCycleKey)
	if err != nil {
		telemetry.LoggerWithCorr(r.Context()).Debug("read persisted stats", slog.Any("err", err), slog.String("component", "http"))
		return st, false
	}
	if v == "" || json.Unmarshal([]byte(v), &st) != nil {
		return st, false
	}
	st.Restored = true
	return st, true
}

// HandleSnapshot serves the cache file exactly as written.
func (h *Handlers) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		http.Error(w, "snapshot cache disabled", http.StatusNotFound)
		return
	}
	b, err := h.cache.Raw()
	if errors.Is(err, os.ErrNotExist) {
		http.Error(w, "no snapshot yet", http.StatusNotFound)
		return
	}
	if err != nil {
		telemetry.LoggerWithCorr(r.Context()).Error("read snapshot cache", slog.Any("err", err), slog.String("component", "http"))
		http.Error(w, "read snapshot failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(b)
}
