package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// HeartbeatInterval is the interval between SSE heartbeat comments.
	HeartbeatInterval = 15 * time.Second

	// MaxRequestBytes bounds one POSTed JSON-RPC message.
	MaxRequestBytes = 1 << 20

	sessionQueueSize = 64
)

// SSEConfig configures an SSEHandler.
type SSEConfig struct {
	// Heartbeat overrides HeartbeatInterval when positive.
	Heartbeat time.Duration
	Logger    *slog.Logger
}

// SSEHandler serves MCP over HTTP.
//
// Routes:
//
//	GET  /sse       event stream; first event "endpoint" names the POST URL
//	POST /messages  ?session_id=…; answered 202, response sent on the stream
//	POST /mcp       answered synchronously with the JSON-RPC response body
//
// Stream events use the SSE wire format:
//
//	event: {endpoint|message}
//	data: {payload}
//
// A heartbeat comment ": ping\n\n" is sent every Heartbeat interval.
type SSEHandler struct {
	server    *Server
	heartbeat time.Duration
	logger    *slog.Logger
	mux       *http.ServeMux

	mu       sync.Mutex
	sessions map[string]*sseSession
}

type sseSession struct {
	id     string
	queue  chan *Message
	done   chan struct{}
	closed sync.Once
}

func (s *sseSession) close() {
	s.closed.Do(func() { close(s.done) })
}

// NewSSEHandler returns an HTTP handler serving server.
func NewSSEHandler(server *Server, cfg SSEConfig) *SSEHandler {
	heartbeat := cfg.Heartbeat
	if heartbeat <= 0 {
		heartbeat = HeartbeatInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &SSEHandler{
		server:    server,
		heartbeat: heartbeat,
		logger:    logger,
		sessions:  make(map[string]*sseSession),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /sse", h.handleStream)
	mux.HandleFunc("POST /messages", h.handleMessage)
	mux.HandleFunc("POST /mcp", h.handleDirect)
	h.mux = mux
	return h
}

// ServeHTTP implements http.Handler.
func (h *SSEHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// Sessions returns the number of open event streams.
func (h *SSEHandler) Sessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// CloseSessions ends every open event stream.
func (h *SSEHandler) CloseSessions() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, session := range h.sessions {
		session.close()
		delete(h.sessions, id)
	}
}

func (h *SSEHandler) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	session := &sseSession{
		id:    uuid.NewString(),
		queue: make(chan *Message, sessionQueueSize),
		done:  make(chan struct{}),
	}
	h.mu.Lock()
	h.sessions[session.id] = session
	h.mu.Unlock()
	defer h.dropSession(session)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	logger := h.logger.With(slog.String("session_id", session.id))
	logger.Info("mcp: sse session opened", slog.String("remote", r.RemoteAddr))
	defer logger.Info("mcp: sse session closed")

	if err := writeEvent(w, "endpoint", "/messages?session_id="+session.id); err != nil {
		return
	}
	flusher.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-session.done:
			return
		case msg := <-session.queue:
			data, err := json.Marshal(msg)
			if err != nil {
				logger.Error("mcp: encode sse message failed", slog.Any("error", err))
				continue
			}
			if err := writeEvent(w, "message", string(data)); err != nil {
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (h *SSEHandler) handleMessage(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if id == "" {
		http.Error(w, "missing session_id", http.StatusBadRequest)
		return
	}
	h.mu.Lock()
	session, ok := h.sessions[id]
	h.mu.Unlock()
	if !ok {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}

	body, ok := readBody(w, r)
	if !ok {
		return
	}

	response := h.server.HandleBytes(r.Context(), body)
	w.WriteHeader(http.StatusAccepted)
	if response == nil {
		return
	}
	if err := h.enqueue(r.Context(), session, response); err != nil {
		h.logger.Warn("mcp: sse response dropped",
			slog.String("session_id", id),
			slog.Any("error", err),
		)
	}
}

func (h *SSEHandler) handleDirect(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}

	response := h.server.HandleBytes(r.Context(), body)
	if response == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Warn("mcp: write response failed", slog.Any("error", err))
	}
}

func (h *SSEHandler) enqueue(ctx context.Context, session *sseSession, msg *Message) error {
	select {
	case session.queue <- msg:
		return nil
	case <-session.done:
		return fmt.Errorf("session %s closed", session.id)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *SSEHandler) dropSession(session *sseSession) {
	session.close()
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sessions[session.id] == session {
		delete(h.sessions, session.id)
	}
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxRequestBytes))
	if err != nil {
		http.Error(w, "request body too large or unreadable", http.StatusRequestEntityTooLarge)
		return nil, false
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		http.Error(w, "empty request body", http.StatusBadRequest)
		return nil, false
	}
	return body, true
}

func writeEvent(w io.Writer, event, data string) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
