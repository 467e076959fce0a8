package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// MockTwitchServer creates a test server that mocks Twitch Helix API responses
type MockTwitchServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc

	mu       sync.Mutex
	requests map[string]int
}

// NewMockTwitchServer creates a new mock Twitch API server
func NewMockTwitchServer(t *testing.T) *MockTwitchServer {
	t.Helper()
	m := &MockTwitchServer{
		Handlers: make(map[string]http.HandlerFunc),
		requests: make(map[string]int),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path
		m.mu.Lock()
		m.requests[key]++
		handler, ok := m.Handlers[key]
		m.mu.Unlock()
		if ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// HelixURL is the base URL to hand to a Helix client pointed at this server.
func (m *MockTwitchServer) HelixURL() string { return m.URL + "/helix" }

// Requests returns how many requests hit path.
func (m *MockTwitchServer) Requests(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[path]
}

// StreamPage is one page of /helix/streams data.
type StreamPage []map[string]interface{}

// Stream builds a /helix/streams data entry.
func Stream(login, displayName string, viewers int) map[string]interface{} {
	return map[string]interface{}{
		"id":           login + "-stream",
		"user_id":      login + "-id",
		"user_login":   login,
		"user_name":    displayName,
		"type":         "live",
		"viewer_count": viewers,
	}
}

// MockStreamsPages serves pages in order. Page i is returned for the cursor
// "page-<i>" (page 0 without a cursor) and links to the next page until the last.
func (m *MockTwitchServer) MockStreamsPages(pages ...StreamPage) {
	m.Handlers["/helix/streams"] = func(w http.ResponseWriter, r *http.Request) {
		idx := 0
		if after := r.URL.Query().Get("after"); after != "" {
			num, ok := strings.CutPrefix(after, "page-")
			n, err := strconv.Atoi(num)
			if !ok || err != nil || n >= len(pages) {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			idx = n
		}
		cursor := ""
		if idx+1 < len(pages) {
			cursor = "page-" + strconv.Itoa(idx+1)
		}
		data := pages[idx]
		if data == nil {
			data = StreamPage{}
		}
		response := map[string]interface{}{
			"data":       data,
			"pagination": map[string]string{"cursor": cursor},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response) //nolint:errcheck // test mock response
	}
}

// MockStreamsError makes /helix/streams answer with status.
func (m *MockTwitchServer) MockStreamsError(status int, message string) {
	m.Handlers["/helix/streams"] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{ //nolint:errcheck // test mock response
			"error":   http.StatusText(status),
			"status":  status,
			"message": message,
		})
	}
}

// MockOAuthTokenResponse adds a handler for OAuth token endpoint
func (m *MockTwitchServer) MockOAuthTokenResponse(accessToken string, expiresIn int) {
	m.Handlers["/oauth2/token"] = func(w http.ResponseWriter, r *http.Request) {
		response := map[string]interface{}{
			"access_token": accessToken,
			"expires_in":   expiresIn,
			"token_type":   "bearer",
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response) //nolint:errcheck // test mock response
	}
}
