package server

import (
	"encoding/json"
	"net/http"

	"github.com/onnwee/lurker/config"
)

// Handlers serves the ops endpoints.
type Handlers struct {
	deps Deps
}

// HandleHealthz responds to liveness probes. With a database configured it
// also checks connectivity.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if h.deps.DB != nil {
		if err := h.deps.DB.PingContext(r.Context()); err != nil {
			http.Error(w, "unhealthy", http.StatusServiceUnavailable)
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz reports ready once the chat connection is up.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.deps.Sessions.Current(); !ok {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not_ready",
			"state":  h.deps.Sessions.State().String(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	State          string          `json:"state"`
	Epoch          uint64          `json:"epoch,omitempty"`
	ChannelsTotal  int             `json:"channels_total"`
	ChannelsJoined int             `json:"channels_joined"`
	Toggles        *config.Toggles `json:"toggles,omitempty"`
}

// HandleStatus returns a snapshot of the connection and join progress.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{State: h.deps.Sessions.State().String()}
	if epoch, ok := h.deps.Sessions.Current(); ok {
		resp.Epoch = uint64(epoch)
	}
	if h.deps.Channels != nil {
		resp.ChannelsTotal = h.deps.Channels.Len()
	}
	if h.deps.Joined != nil {
		resp.ChannelsJoined = h.deps.Joined.Joined()
	}
	if h.deps.Toggles != nil {
		t := h.deps.Toggles.Toggles()
		resp.Toggles = &t
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
