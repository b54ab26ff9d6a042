package monitor

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/motion-gate/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/motion-gate/internal/metrics"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/motion-gate/internal/motion"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/motion-gate/pkg/types"
)

// StatusSource exposes the controller's current phase.
type StatusSource interface {
	Snapshot() motion.Status
}

// Info is the static configuration echoed on the status endpoint.
type Info struct {
	MotionThreshold int
	MotionTimeout   time.Duration
	Topic           string
	StreamPath      string
}

// Server serves the monitor endpoints.
type Server struct {
	source      StatusSource
	broadcaster *Broadcaster
	info        Info
	m           *metrics.Metrics
}

// NewServer returns a configured monitor server.
func NewServer(source StatusSource, broadcaster *Broadcaster, info Info, m *metrics.Metrics) *Server {
	return &Server{
		source:      source,
		broadcaster: broadcaster,
		info:        info,
		m:           m,
	}
}

// Handler exposes the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/motion/stream", s.handleMotionStream)

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.source.Snapshot()

	var lastMotion any
	if !st.LastMotion.IsZero() {
		lastMotion = unixSeconds(st.LastMotion)
	}

	payload := map[string]any{
		"controller": map[string]any{
			"phase":          st.Phase.String(),
			"stream_enabled": st.Phase == motion.Active,
			"last_motion":    lastMotion,
		},
		"config": map[string]any{
			"motion_threshold": s.info.MotionThreshold,
			"motion_timeout":   s.info.MotionTimeout.Seconds(),
			"topic":            s.info.Topic,
			"stream_path":      s.info.StreamPath,
		},
		"counters": map[string]any{
			"observations_received":  s.m.ObservationsReceived.Load(),
			"observations_malformed": s.m.ObservationsMalformed.Load(),
			"observations_dropped":   s.m.ObservationsDropped.Load(),
			"toggle_success":         s.m.ToggleSuccess.Load(),
			"toggle_failure":         s.m.ToggleFailure.Load(),
			"toggle_dropped":         s.m.ToggleDropped.Load(),
			"activations":            s.m.Activations.Load(),
			"deactivations":          s.m.Deactivations.Load(),
		},
		"timestamp": float64(time.Now().Unix()),
	}
	writeJSON(w, payload)
}

func (s *Server) handleMotionStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	id, eventCh := s.broadcaster.Subscribe()
	defer s.broadcaster.Unsubscribe(id)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// First event carries the current phase so a new client does not
	// wait for the next transition.
	st := s.source.Snapshot()
	initial := types.StateChange{
		Phase:     st.Phase.String(),
		Timestamp: unixSeconds(time.Now()),
	}
	if err := writeSSE(w, initial); err != nil {
		return
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return

		case ev, ok := <-eventCh:
			if !ok {
				return
			}
			if err := writeSSE(w, ev); err != nil {
				logger.Debug("SSE", "Client disconnected during event write: %v", err)
				return
			}
			flusher.Flush()

		case <-time.After(30 * time.Second):
			// Send keepalive comment to prevent timeout
			if _, err := fmt.Fprintf(w, ": keepalive\n\n"); err != nil {
				logger.Debug("SSE", "Client disconnected during keepalive: %v", err)
				return
			}
			flusher.Flush()
		}
	}
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func writeSSE(w io.Writer, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

func writeJSON(w http.ResponseWriter, payload any) {
	writeJSONWithStatus(w, payload, http.StatusOK)
}

func writeJSONWithStatus(w http.ResponseWriter, payload any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		_, _ = fmt.Fprintf(w, `{"error":"%s"}`, err.Error())
	}
}
