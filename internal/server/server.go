package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	apperrors "github.com/GriffinCanCode/eyeguard/internal/errors"
	"github.com/GriffinCanCode/eyeguard/internal/orchestrator"
	"github.com/GriffinCanCode/eyeguard/internal/trace"
)

// Service is the monitoring lifecycle the API controls.
type Service interface {
	Start(ctx context.Context) error
	Stop()
	Status() orchestrator.Status
}

// Server handles HTTP and WebSocket connections.
type Server struct {
	svc Service
	hub *Hub
}

// New creates a new server.
func New(svc Service, hub *Hub) *Server {
	return &Server{svc: svc, hub: hub}
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// WebSocket endpoint for display clients
	mux.HandleFunc("/ws", s.handleWebSocket)

	// REST API
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("POST /api/service/start", s.handleStart)
	mux.HandleFunc("POST /api/service/stop", s.handleStop)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	// Apply middleware: trace -> CORS
	return corsMiddleware(trace.Middleware(mux))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("websocket accept error", "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	baseCtx := r.Context()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	c := s.hub.register()
	defer s.hub.unregister(c)

	log := trace.Logger(baseCtx).With("client", c.id)
	log.Info("display connected", "remote", r.RemoteAddr)

	go s.writeLoop(ctx, cancel, conn, c)

	rl := newRateLimiter(RateLimitMessages, RateLimitWindow)
	for {
		var msg json.RawMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			log.Debug("websocket read error", "error", err)
			return
		}

		if !rl.allow() {
			log.Warn("rate limit exceeded", "remote", r.RemoteAddr)
			s.hub.enqueue(c, RateLimitedMessage{Type: "error", Message: "rate limit exceeded"})
			continue
		}

		var base Message
		if err := json.Unmarshal(msg, &base); err != nil {
			continue
		}

		switch base.Type {
		case "ping":
			s.hub.enqueue(c, PongMessage{Type: "pong"})
		case "status":
			s.hub.enqueue(c, StatusMessage{Type: "status", Status: s.svc.Status()})
		}
	}
}

// writeLoop is the only writer on conn.
func (s *Server) writeLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, c *client) {
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.send:
			wctx, wcancel := context.WithTimeout(ctx, WriteTimeout)
			err := wsjson.Write(wctx, conn, msg)
			wcancel()
			if err != nil {
				slog.Debug("websocket write error", "client", c.id, "error", err)
				return
			}
		}
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Status())
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	ctx, span := trace.StartSpan(r.Context(), "api_start")
	defer span.End()

	if err := s.svc.Start(ctx); err != nil {
		span.SetAttr("error", err.Error())
		trace.Logger(ctx).Error("start failed", "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": s.svc.Status().State})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.svc.Stop()
	writeJSON(w, http.StatusOK, map[string]string{"status": s.svc.Status().State})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "displays": s.hub.Clients()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	var appErr *apperrors.AppError
	if e, ok := err.(*apperrors.AppError); ok {
		appErr = e
		switch e.Code {
		case apperrors.Unavailable, apperrors.CameraUnavailable:
			code = http.StatusServiceUnavailable
		case apperrors.InvalidArgument, apperrors.ConfigInvalid:
			code = http.StatusBadRequest
		}
	}
	body := map[string]string{"error": err.Error()}
	if appErr != nil {
		body["code"] = appErr.Code.String()
	}
	writeJSON(w, code, body)
}
