// Package httpapi exposes the relay's REST and live-channel surface.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"nhooyr.io/websocket"

	"github.com/hearthview/hearthview/internal/relayhub"
)

type ServerConfig struct {
	// KeepaliveInterval is how often idle live channels receive a
	// keepalive frame.
	KeepaliveInterval time.Duration
	MaxBodyBytes      int64
}

type Server struct {
	service *relayhub.Service
	cfg     ServerConfig
}

func NewServer(service *relayhub.Service) *Server {
	return NewServerWithConfig(service, ServerConfig{})
}

func NewServerWithConfig(service *relayhub.Service, cfg ServerConfig) *Server {
	if cfg.KeepaliveInterval <= 0 {
		cfg.KeepaliveInterval = 30 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	return &Server{service: service, cfg: cfg}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/health" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case r.URL.Path == "/config" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, s.service.LoadDocument())
	case r.URL.Path == "/config" && r.Method == http.MethodPost:
		s.handleSetConfig(w, r)
	case r.URL.Path == "/config/subscribe" && r.Method == http.MethodGet:
		s.handleSubscribe(w, r)
	case r.URL.Path == "/config/ws" && r.Method == http.MethodGet:
		s.handleSubscribeWebSocket(w, r)
	case r.URL.Path == "/config/brightness" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, s.service.Brightness())
	default:
		writeError(w, http.StatusNotFound, "not_found", "route not found")
	}
}

func (s *Server) handleSetConfig(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large")
		return
	}
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "body must be a JSON object")
		return
	}
	stored, err := s.service.SaveDocument(doc)
	if err != nil {
		if errors.Is(err, relayhub.ErrInvalidDocument) {
			writeError(w, http.StatusBadRequest, "invalid_config", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "internal", "failed to persist config")
		return
	}
	writeJSON(w, http.StatusOK, stored)
}

// handleSubscribe streams config-updated notifications as Server-Sent
// Events. A connected event is sent immediately; idle connections get
// keepalive comments so proxies do not cut them.
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal", "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	sub := s.service.Hub().Subscribe()
	defer sub.Close()

	if !writeSSE(w, flusher, []byte(`{"type":"connected"}`)) {
		return
	}

	keepalive := time.NewTicker(s.cfg.KeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case message, ok := <-sub.Events():
			if !ok {
				return
			}
			if !writeSSE(w, flusher, message) {
				return
			}
		case <-keepalive.C:
			if _, err := io.WriteString(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, payload []byte) bool {
	if _, err := io.WriteString(w, "data: "); err != nil {
		return false
	}
	if _, err := w.Write(payload); err != nil {
		return false
	}
	if _, err := io.WriteString(w, "\n\n"); err != nil {
		return false
	}
	flusher.Flush()
	return true
}

// handleSubscribeWebSocket carries the same notification payloads over
// a WebSocket for clients that cannot hold an SSE stream open.
func (s *Server) handleSubscribeWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusInternalError, "closing")

	// The channel is one-way; CloseRead surfaces disconnects while
	// discarding anything the client sends.
	ctx := conn.CloseRead(r.Context())

	sub := s.service.Hub().Subscribe()
	defer sub.Close()

	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"connected"}`)); err != nil {
		return
	}

	keepalive := time.NewTicker(s.cfg.KeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case message, ok := <-sub.Events():
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			if err := conn.Write(ctx, websocket.MessageText, message); err != nil {
				return
			}
		case <-keepalive.C:
			if err := conn.Ping(ctx); err != nil {
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"code":    code,
		"message": message,
	})
}
