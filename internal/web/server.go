// Package web provides the HTTP status and control server for the
// fan-controller daemon.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/mdouchement/logger"
	"github.com/sweeney/fan-controller/internal/command"
	"github.com/sweeney/fan-controller/internal/logic"
	"github.com/sweeney/fan-controller/internal/status"
)

// CommandTimeout bounds how long a request waits for the main loop.
const CommandTimeout = 2 * time.Second

// Commander hands a speed change to the main loop and waits for the result.
type Commander interface {
	Submit(ctx context.Context, channel string, percent int) (command.Result, error)
}

// Server serves the status page and the speed API over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	cmds       Commander
	log        logger.Logger
	mqttScript string
}

// New creates a Server that reads state from the given tracker and sends
// speed changes through cmds. log may be nil.
func New(addr string, tracker *status.Tracker, cmds Commander, log logger.Logger) *Server {
	s := &Server{tracker: tracker, cmds: cmds, log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /", s.handleIndex)
	mux.HandleFunc("GET /index.json", s.handleJSON)
	mux.HandleFunc("GET /status", s.handleLegacyStatus)
	mux.HandleFunc("GET /fans", s.handleFans)
	mux.HandleFunc("GET /fans/{id}", s.handleFan)
	mux.HandleFunc("POST /fans/{id}/speed", s.handleFanSpeed)
	mux.HandleFunc("POST /set_speed", s.handleSetSpeed)
	mux.HandleFunc("POST /set_fan1", s.handleSetFanN(0))
	mux.HandleFunc("POST /set_fan2", s.handleSetFanN(1))
	mux.HandleFunc("GET /mqtt.min.js", s.handleMQTTScript)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// SetMQTTScript sets the local copy of the MQTT.js browser bundle served at
// /mqtt.min.js for live page updates.
func (s *Server) SetMQTTScript(path string) {
	s.mqttScript = path
}

// Handler returns the request router. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap); err != nil && s.log != nil {
		s.log.WithError(err).Error("web: render index")
	}
}

func (s *Server) handleMQTTScript(w http.ResponseWriter, r *http.Request) {
	if s.mqttScript == "" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
	http.ServeFile(w, r, s.mqttScript)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func (s *Server) handleLegacyStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatLegacyJSON(snap))
}

func (s *Server) handleFans(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	fans := make([]status.FanJSON, 0, len(snap.Fans))
	for _, f := range snap.Fans {
		fans = append(fans, status.NewFanJSON(f))
	}
	writeJSON(w, http.StatusOK, fans)
}

func (s *Server) handleFan(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	f, ok := s.tracker.Snapshot().Fan(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("%w: %q", logic.ErrUnknownChannel, id))
		return
	}
	writeJSON(w, http.StatusOK, status.NewFanJSON(f))
}

// SpeedRequest is the body of the speed endpoints.
type SpeedRequest struct {
	Speed *int `json:"speed"`
}

// SpeedResponse reports the applied duty. Speed is the clamped value.
type SpeedResponse struct {
	Success   bool   `json:"success"`
	Fan       string `json:"fan"`
	Requested int    `json:"requested"`
	Speed     int    `json:"speed"`
	Error     string `json:"error,omitempty"`
}

func (s *Server) handleFanSpeed(w http.ResponseWriter, r *http.Request) {
	var req SpeedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
		return
	}
	if req.Speed == nil {
		writeError(w, http.StatusBadRequest, errors.New("missing speed"))
		return
	}

	s.setSpeed(w, r, r.PathValue("id"), r.PathValue("id"), *req.Speed)
}

// handleSetFanN serves /set_fanN, addressing the n-th configured fan.
func (s *Server) handleSetFanN(n int) http.HandlerFunc {
	name := fmt.Sprintf("fan%d", n+1)
	return func(w http.ResponseWriter, r *http.Request) {
		var req SpeedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
			return
		}
		if req.Speed == nil {
			writeError(w, http.StatusBadRequest, errors.New("missing speed"))
			return
		}

		id, ok := s.channelAt(n)
		if !ok {
			writeError(w, http.StatusNotFound, fmt.Errorf("%w: %s", logic.ErrUnknownChannel, name))
			return
		}
		s.setSpeed(w, r, id, name, *req.Speed)
	}
}

func (s *Server) setSpeed(w http.ResponseWriter, r *http.Request, id, name string, percent int) {
	res, err := s.submit(r.Context(), id, percent)
	resp := SpeedResponse{
		Success:   err == nil,
		Fan:       name,
		Requested: percent,
		Speed:     res.Applied,
	}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, statusFor(err), resp)
}

// LegacySetSpeedRequest is the body of /set_speed. "speed" addresses the
// first fan; every field is optional.
type LegacySetSpeedRequest struct {
	Speed     *int `json:"speed"`
	Fan1Speed *int `json:"fan1_speed"`
	Fan2Speed *int `json:"fan2_speed"`
}

// LegacySetSpeedResponse echoes the applied speeds.
type LegacySetSpeedResponse struct {
	Success   bool   `json:"success"`
	Fan       string `json:"fan,omitempty"`
	Speed     *int   `json:"speed,omitempty"`
	Fan1Speed *int   `json:"fan1_speed,omitempty"`
	Fan2Speed *int   `json:"fan2_speed,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (s *Server) handleSetSpeed(w http.ResponseWriter, r *http.Request) {
	var req LegacySetSpeedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
		return
	}

	resp := LegacySetSpeedResponse{Success: true}
	var firstErr error

	apply := func(n int, percent *int) *int {
		if percent == nil || firstErr != nil {
			return nil
		}
		id, ok := s.channelAt(n)
		if !ok {
			firstErr = fmt.Errorf("%w: fan%d", logic.ErrUnknownChannel, n+1)
			return nil
		}
		res, err := s.submit(r.Context(), id, *percent)
		if err != nil {
			firstErr = err
			return nil
		}
		return &res.Applied
	}

	if req.Speed != nil {
		resp.Fan = "fan1"
		resp.Speed = apply(0, req.Speed)
	}
	resp.Fan1Speed = apply(0, req.Fan1Speed)
	resp.Fan2Speed = apply(1, req.Fan2Speed)

	if firstErr != nil {
		resp.Success = false
		resp.Error = firstErr.Error()
	}
	writeJSON(w, statusFor(firstErr), resp)
}

func (s *Server) submit(ctx context.Context, id string, percent int) (command.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, CommandTimeout)
	defer cancel()

	res, err := s.cmds.Submit(ctx, id, percent)
	if err != nil && s.log != nil && !errors.Is(err, logic.ErrUnknownChannel) {
		s.log.WithError(err).Errorf("web: set %s to %d%%", id, percent)
	}
	return res, err
}

func (s *Server) channelAt(n int) (string, bool) {
	channels := s.tracker.Snapshot().Config.Channels
	if n < 0 || n >= len(channels) {
		return "", false
	}
	return channels[n].ID, true
}

func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, logic.ErrUnknownChannel):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, command.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]any{"success": false, "error": err.Error()})
}
