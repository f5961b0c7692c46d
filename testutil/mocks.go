package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/onnwee/live-signal/listing"
)

// ListingRequest records one page request.
type ListingRequest struct {
	Offset, Limit int
	Cookie        string
	UserAgent     string
}

// MockListingServer serves a fixed room list in listing API pages.
type MockListingServer struct {
	*httptest.Server

	mu       sync.Mutex
	entries  []listing.Entry
	total    int
	failures map[int]int
	requests []ListingRequest
}

// NewMockListingServer serves entries; the reported total is len(entries)
// unless SetTotal overrides it.
func NewMockListingServer(t *testing.T, entries []listing.Entry) *MockListingServer {
	t.Helper()
	m := &MockListingServer{entries: entries, total: len(entries), failures: map[int]int{}}
	m.Server = httptest.NewServer(http.HandlerFunc(m.serve))
	t.Cleanup(m.Close)
	return m
}

// SetTotal overrides the total reported in every page.
func (m *MockListingServer) SetTotal(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.total = n
}

// FailAt answers requests at offset with status. A status of 0 clears it.
func (m *MockListingServer) FailAt(offset, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if status == 0 {
		delete(m.failures, offset)
		return
	}
	m.failures[offset] = status
}

// Requests returns the page requests received so far.
func (m *MockListingServer) Requests() []ListingRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ListingRequest(nil), m.requests...)
}

func (m *MockListingServer) serve(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	offset, _ := strconv.Atoi(q.Get("offset"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	m.mu.Lock()
	m.requests = append(m.requests, ListingRequest{Offset: offset, Limit: limit, Cookie: r.Header.Get("Cookie"), UserAgent: r.Header.Get("User-Agent")})
	status, fail := m.failures[offset]
	total := m.total
	var page []listing.Entry
	if offset < len(m.entries) {
		page = m.entries[offset:min(offset+limit, len(m.entries))]
	}
	m.mu.Unlock()

	if fail {
		http.Error(w, "mock failure", status)
		return
	}
	if page == nil {
		page = []listing.Entry{}
	}
	resp := map[string]any{
		"result": true,
		"page":   map[string]int{"total": total},
		"list":   page,
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp) //nolint:errcheck // test mock response
}

// SentMessage is one sendMessage call seen by MockTelegramServer.
type SentMessage struct {
	ChatID                int64
	Text                  string
	ParseMode             string
	DisableWebPagePreview bool
}

// MockTelegramServer mimics the Bot API endpoints the transport uses.
type MockTelegramServer struct {
	*httptest.Server
	Token string

	mu        sync.Mutex
	sent      []SentMessage
	failChats map[int64]string
}

// NewMockTelegramServer starts a Bot API mock accepting token.
func NewMockTelegramServer(t *testing.T, token string) *MockTelegramServer {
	t.Helper()
	m := &MockTelegramServer{Token: token, failChats: map[int64]string{}}
	m.Server = httptest.NewServer(http.HandlerFunc(m.serve))
	t.Cleanup(m.Close)
	return m
}

// Endpoint is the API endpoint format for tgbotapi.
func (m *MockTelegramServer) Endpoint() string { return m.URL + "/bot%s/%s" }

// FailChat makes deliveries to chatID fail with description.
func (m *MockTelegramServer) FailChat(chatID int64, description string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failChats[chatID] = description
}

// Sent returns delivered messages in arrival order.
func (m *MockTelegramServer) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMessage(nil), m.sent...)
}

func (m *MockTelegramServer) serve(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	prefix := "/bot" + m.Token + "/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":401,"description":"Unauthorized"}`))
		return
	}
	switch strings.TrimPrefix(r.URL.Path, prefix) {
	case "getMe":
		_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Live","username":"live_signal_bot"}}`))
	case "sendMessage":
		_ = r.ParseForm()
		chatID, _ := strconv.ParseInt(r.Form.Get("chat_id"), 10, 64)
		m.mu.Lock()
		desc, fail := m.failChats[chatID]
		if !fail {
			m.sent = append(m.sent, SentMessage{
				ChatID:                chatID,
				Text:                  r.Form.Get("text"),
				ParseMode:             r.Form.Get("parse_mode"),
				DisableWebPagePreview: r.Form.Get("disable_web_page_preview") == "true",
			})
		}
		m.mu.Unlock()
		if fail {
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error_code": 403, "description": desc})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":     true,
			"result": map[string]any{"message_id": 1, "date": 0, "chat": map[string]any{"id": chatID, "type": "private"}},
		})
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":404,"description":"Not Found"}`))
	}
}
