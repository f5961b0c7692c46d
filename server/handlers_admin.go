package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/onnwee/live-signal/telemetry"
)

type watchRequest struct {
	ChatID      int64  `json:"chat_id"`
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// HandleListWatches lists the accounts a chat watches.
func (h *Handlers) HandleListWatches(w http.ResponseWriter, r *http.Request) {
	chatID, ok := parseInt64Query(r, "chat_id")
	if !ok {
		http.Error(w, "chat_id required", http.StatusBadRequest)
		return
	}
	ids, err := h.watches.WatchesOf(r.Context(), chatID)
	if err != nil {
		h.internalError(w, r, "list watches", err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"chat_id": chatID, "ids": ids})
}

// HandleAddWatch subscribes a chat to an account.
func (h *Handlers) HandleAddWatch(w http.ResponseWriter, r *http.Request) {
	var req watchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.ID = strings.TrimSpace(req.ID)
	if req.ChatID == 0 || req.ID == "" {
		http.Error(w, "chat_id and id required", http.StatusBadRequest)
		return
	}
	created, err := h.watches.AddWatch(r.Context(), req.ChatID, req.ID, req.DisplayName)
	if err != nil {
		h.internalError(w, r, "add watch", err)
		return
	}
	if created {
		h.refresh()
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]any{"chat_id": req.ChatID, "id": req.ID, "created": created})
}

// HandleRemoveWatch unsubscribes a chat from an account.
func (h *Handlers) HandleRemoveWatch(w http.ResponseWriter, r *http.Request) {
	chatID, ok := parseInt64Query(r, "chat_id")
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if !ok || id == "" {
		http.Error(w, "chat_id and id required", http.StatusBadRequest)
		return
	}
	removed, err := h.watches.RemoveWatch(r.Context(), chatID, id)
	if err != nil {
		h.internalError(w, r, "remove watch", err)
		return
	}
	if !removed {
		http.Error(w, "watch not found", http.StatusNotFound)
		return
	}
	h.refresh()
	writeJSON(w, http.StatusOK, map[string]any{"chat_id": chatID, "id": id, "removed": true})
}

// HandleRefresh asks the monitor to reload the tracked list before its next cycle.
func (h *Handlers) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	h.refresh()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "refresh requested"})
}

func (h *Handlers) internalError(w http.ResponseWriter, r *http.Request, op string, err error) {
	telemetry.LoggerWithCorr(r.Context()).Error(op+" failed", slog.Any("err", err), slog.String("component", "http_admin"))
	http.Error(w, op+" failed", http.StatusInternalServerError)
}
