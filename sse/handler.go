package sse

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/ggoodman/pipedrive-mcp-server-go/auth"
	"github.com/ggoodman/pipedrive-mcp-server-go/internal/jsonrpc"
	"github.com/ggoodman/pipedrive-mcp-server-go/internal/logctx"
	"github.com/ggoodman/pipedrive-mcp-server-go/sessions"
	"github.com/google/uuid"
)

var _ http.Handler = (*Handler)(nil)

const (
	// StreamPath is the fixed path of the event stream.
	StreamPath = "/sse"
	// HealthPath is the fixed path of the health probe.
	HealthPath = "/health"
	// DefaultEndpoint is the default message path.
	DefaultEndpoint = "/message"
	// DefaultKeepAlive is the default interval between keep-alive comments.
	DefaultKeepAlive = 30 * time.Second

	maxBodyBytes = 4 << 20

	sessionIDHeader = "X-Session-Id"
	transportName   = "sse"
)

var jsonMediaType = contenttype.NewMediaType("application/json")

// Error bodies sent by the front-end.
const (
	MessageMissingSessionID = "Missing sessionId"
	MessageSessionNotFound  = "Session not found"
	MessageInvalidBody      = "Invalid request body"
	MessageInternalError    = "Internal server error"
)

// MessageHandler processes one inbound JSON-RPC message and returns the
// response to deliver on the stream, if any.
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg *jsonrpc.AnyMessage) (*jsonrpc.Response, error)
}

// MessageHandlerFunc adapts a function to MessageHandler.
type MessageHandlerFunc func(ctx context.Context, msg *jsonrpc.AnyMessage) (*jsonrpc.Response, error)

func (f MessageHandlerFunc) HandleMessage(ctx context.Context, msg *jsonrpc.AnyMessage) (*jsonrpc.Response, error) {
	return f(ctx, msg)
}

// Metrics receives one observation per served request.
type Metrics interface {
	ObserveRequest(route string, status int, dur time.Duration)
}

// Option configures the Handler.
type Option func(*Handler)

// WithLogger sets the logger used by the handler. If not provided, logs are discarded.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.log = logctx.Wrap(l)
		}
	}
}

// WithEndpoint sets the message path announced to clients. A missing leading
// slash is added.
func WithEndpoint(path string) Option {
	return func(h *Handler) {
		path = strings.TrimSpace(path)
		if path == "" {
			return
		}
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		h.endpoint = path
	}
}

// WithKeepAlive sets the keep-alive interval. Zero disables keep-alives.
func WithKeepAlive(d time.Duration) Option {
	return func(h *Handler) { h.keepAlive = d }
}

// WithRegistry shares an existing session registry.
func WithRegistry(r *sessions.Registry) Option {
	return func(h *Handler) {
		if r != nil {
			h.registry = r
		}
	}
}

// WithMetrics installs a request observer.
func WithMetrics(m Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// Handler is the HTTP front-end of the SSE transport.
type Handler struct {
	handler   MessageHandler
	gate      *auth.Gate
	registry  *sessions.Registry
	log       *slog.Logger
	metrics   Metrics
	endpoint  string
	keepAlive time.Duration

	closeOnce sync.Once
	closing   chan struct{}
}

// New constructs a Handler. A nil gate or a gate without an authenticator
// admits every request.
func New(handler MessageHandler, gate *auth.Gate, opts ...Option) (*Handler, error) {
	if handler == nil {
		return nil, fmt.Errorf("message handler is required")
	}
	h := &Handler{
		handler:   handler,
		gate:      gate,
		log:       slog.New(slog.DiscardHandler),
		endpoint:  DefaultEndpoint,
		keepAlive: DefaultKeepAlive,
		closing:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.registry == nil {
		h.registry = sessions.NewRegistry(sessions.WithLogger(h.log))
	}
	if h.endpoint == StreamPath || h.endpoint == HealthPath {
		return nil, fmt.Errorf("message endpoint %q collides with a fixed route", h.endpoint)
	}
	return h, nil
}

// Endpoint returns the message path announced to clients.
func (h *Handler) Endpoint() string { return h.endpoint }

// Sessions reports the number of live sessions.
func (h *Handler) Sessions() int { return h.registry.Len() }

// Close ends every open session stream. New streams are refused afterwards.
func (h *Handler) Close() error {
	h.closeOnce.Do(func() { close(h.closing) })
	h.registry.CloseAll()
	return nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	setCORSHeaders(w.Header())

	sw := &statusWriter{ResponseWriter: w}
	r = r.WithContext(logctx.WithRequestData(r.Context(), &logctx.RequestData{
		RequestID:  uuid.NewString(),
		Method:     r.Method,
		UserAgent:  r.UserAgent(),
		RemoteAddr: r.RemoteAddr,
		Path:       r.URL.Path,
	}))

	var route string
	switch {
	case r.Method == http.MethodOptions:
		route = "options"
		sw.WriteHeader(http.StatusNoContent)
	case r.Method == http.MethodGet && r.URL.Path == HealthPath:
		route = "health"
		writeJSON(sw, http.StatusOK, map[string]string{"status": "ok", "transport": transportName})
	case r.Method == http.MethodGet && r.URL.Path == StreamPath:
		route = "stream"
		h.handleStream(sw, r)
	case r.Method == http.MethodPost && r.URL.Path == h.endpoint:
		route = "message"
		h.handlePost(sw, r)
	default:
		route = "not_found"
		sw.Header().Set("Content-Type", "text/plain; charset=utf-8")
		sw.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(sw, "Not found")
	}

	if h.metrics != nil {
		h.metrics.ObserveRequest(route, sw.Status(), time.Since(start))
	}
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	h.log.InfoContext(ctx, "http.stream.start")

	if !h.checkAuthentication(ctx, w, r) {
		return
	}

	select {
	case <-h.closing:
		writeJSONError(w, http.StatusServiceUnavailable, "Server shutting down")
		return
	default:
	}

	f, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, MessageInternalError)
		h.log.ErrorContext(ctx, "sse.flusher.missing")
		return
	}

	streamCtx, cancel := context.WithCancel(ctx)
	wf := &lockedWriteFlusher{Writer: w, Flusher: f, ctx: streamCtx}
	sess := h.registry.Open(transportName, sessionStream{wf: wf})
	defer func() {
		sess.Close()
		cancel()
		wf.drain()
	}()

	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: sess.ID(), Transport: transportName})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	// The session must be addressable before its id reaches the client.
	sess.MarkOpen()
	if err := writeSSEEvent(wf, "endpoint", []byte(h.endpoint+"?sessionId="+sess.ID())); err != nil {
		h.log.WarnContext(ctx, "sse.endpoint.fail", slog.String("err", err.Error()))
		return
	}
	h.log.InfoContext(ctx, "sse.session.open")

	var tick <-chan time.Time
	if h.keepAlive > 0 {
		t := time.NewTicker(h.keepAlive)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-ctx.Done():
			h.log.InfoContext(ctx, "sse.session.disconnect", slog.Duration("dur", time.Since(start)))
			return
		case <-sess.Done():
			h.log.InfoContext(ctx, "sse.session.closed", slog.Duration("dur", time.Since(start)))
			return
		case <-h.closing:
			h.log.InfoContext(ctx, "sse.session.shutdown")
			return
		case <-tick:
			if err := writeComment(wf, "ping"); err != nil {
				h.log.InfoContext(ctx, "sse.keepalive.fail", slog.String("err", err.Error()))
				return
			}
		}
	}
}

func (h *Handler) handlePost(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	h.log.InfoContext(ctx, "http.post.start")

	if !h.checkAuthentication(ctx, w, r) {
		return
	}

	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		sessionID = r.Header.Get(sessionIDHeader)
	}
	if sessionID == "" {
		writeJSONError(w, http.StatusBadRequest, MessageMissingSessionID)
		h.log.InfoContext(ctx, "session.id.missing")
		return
	}

	sess, err := h.registry.Lookup(sessionID)
	if err != nil {
		writeJSONError(w, http.StatusNotFound, MessageSessionNotFound)
		h.log.InfoContext(ctx, "session.load.miss", slog.String("session_id", sessionID))
		return
	}
	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: sess.ID(), Transport: transportName})

	msg, err := readMessage(w, r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, MessageInvalidBody)
		h.log.InfoContext(ctx, "http.post.invalid", slog.String("err", err.Error()))
		return
	}

	// The work outlives the POST: a dropped request or a closed session must
	// not cancel an admitted downstream call.
	work := context.WithoutCancel(ctx)

	res, err := h.handler.HandleMessage(work, msg)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, MessageInternalError)
		h.log.ErrorContext(ctx, "http.post.handle.fail", slog.String("err", err.Error()))
		return
	}

	if res != nil {
		payload, err := json.Marshal(res)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, MessageInternalError)
			h.log.ErrorContext(ctx, "http.post.encode.fail", slog.String("err", err.Error()))
			return
		}
		if err := sess.Send(work, payload); err != nil {
			writeJSONError(w, http.StatusInternalServerError, MessageInternalError)
			h.log.WarnContext(ctx, "sse.message.deliver.fail", slog.String("err", err.Error()))
			return
		}
		h.log.DebugContext(ctx, "sse.message.deliver")
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusAccepted)
	_, _ = io.WriteString(w, "Accepted")
	h.log.InfoContext(ctx, "http.post.ok", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
}

func readMessage(w http.ResponseWriter, r *http.Request) (*jsonrpc.AnyMessage, error) {
	ctype, err := contenttype.GetMediaType(r)
	if err != nil || !ctype.Matches(jsonMediaType) {
		return nil, fmt.Errorf("content-type must be application/json")
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return jsonrpc.Parse(body)
}

// checkAuthentication writes a 401 and reports false when the gate rejects
// the request.
func (h *Handler) checkAuthentication(ctx context.Context, w http.ResponseWriter, r *http.Request) bool {
	res := h.gate.Verify(ctx, r.Header)
	if res.OK {
		return true
	}
	attrs := []any{slog.String("reason", res.Message)}
	if res.Err != nil {
		attrs = append(attrs, slog.String("err", res.Err.Error()))
	}
	h.log.InfoContext(ctx, "auth.fail", attrs...)
	writeJSONError(w, res.Status, res.Message)
	return false
}

func setCORSHeaders(h http.Header) {
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Session-Id")
}

// writeJSONError emits the {"error": msg} body used for every HTTP-level
// rejection.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// sessionStream adapts the locked writer to sessions.Stream, framing each
// payload as a message event.
type sessionStream struct {
	wf *lockedWriteFlusher
}

func (s sessionStream) WriteMessage(_ context.Context, payload []byte) error {
	return writeSSEEvent(s.wf, "message", payload)
}

// lockedWriteFlusher wraps an io.Writer + http.Flusher with a mutex and a context.
// It serializes concurrent writes/flushes and avoids writing after ctx is canceled.
type lockedWriteFlusher struct {
	io.Writer
	http.Flusher
	mu  sync.Mutex
	ctx context.Context
}

var errStreamClosed = errors.New("stream closed")

// writeFrame writes one complete frame and flushes it while holding the lock.
func (l *lockedWriteFlusher) writeFrame(p []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ctx.Err() != nil {
		return errStreamClosed
	}
	if _, err := l.Writer.Write(p); err != nil {
		return err
	}
	l.Flusher.Flush()
	return nil
}

// drain waits for an in-flight frame to finish. Callers cancel ctx first so
// no further frames start.
func (l *lockedWriteFlusher) drain() {
	l.mu.Lock()
	defer l.mu.Unlock()
}

// writeSSEEvent writes a named Server-Sent Event as a single frame. Payload
// lines are split across data fields.
func writeSSEEvent(wf *lockedWriteFlusher, event string, payload []byte) error {
	var buf bytes.Buffer
	if event != "" {
		buf.WriteString("event: ")
		buf.WriteString(event)
		buf.WriteByte('\n')
	}
	for _, line := range bytes.Split(payload, []byte("\n")) {
		buf.WriteString("data: ")
		buf.Write(bytes.TrimSuffix(line, []byte("\r")))
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	if err := wf.writeFrame(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write SSE event: %w", err)
	}
	return nil
}

func writeComment(wf *lockedWriteFlusher, text string) error {
	return wf.writeFrame([]byte(": " + text + "\n\n"))
}

// statusWriter records the status code while keeping http.Flusher available.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (s *statusWriter) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusWriter) Write(p []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(p)
}

func (s *statusWriter) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *statusWriter) Unwrap() http.ResponseWriter { return s.ResponseWriter }

func (s *statusWriter) Status() int {
	if s.status == 0 {
		return http.StatusOK
	}
	return s.status
}
