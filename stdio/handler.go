package stdio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/ggoodman/pipedrive-mcp-server-go/internal/jsonrpc"
	"github.com/ggoodman/pipedrive-mcp-server-go/internal/logctx"
)

// ErrAlreadyServing is returned when Serve is called twice.
var ErrAlreadyServing = errors.New("stdio: already serving")

const transportName = "stdio"

// MessageHandler processes one inbound JSON-RPC message and returns the
// response to write, if any.
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg *jsonrpc.AnyMessage) (*jsonrpc.Response, error)
}

// Handler is a single-connection stdio transport that reads JSON-RPC messages
// from an io.Reader and writes responses to an io.Writer. By default, it uses
// os.Stdin and os.Stdout.
type Handler struct {
	handler MessageHandler
	r       io.Reader
	w       io.Writer
	log     *slog.Logger
	maxLine int

	writeMu sync.Mutex
	served  sync.Once
}

// NewHandler constructs a stdio Handler with defaults and applies options.
func NewHandler(handler MessageHandler, opts ...Option) *Handler {
	h := &Handler{
		handler: handler,
		r:       os.Stdin,
		w:       os.Stdout,
		log:     slog.New(slog.DiscardHandler),
		maxLine: DefaultMaxMessageBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.log = logctx.Wrap(h.log)
	return h
}

// Serve runs the stdio event loop. It returns nil on EOF once in-flight
// requests have finished, nil when ctx is canceled, and an error when reading
// or writing fails. It may be called at most once.
func (h *Handler) Serve(ctx context.Context) error {
	err := ErrAlreadyServing
	h.served.Do(func() { err = h.serve(ctx) })
	return err
}

func (h *Handler) serve(ctx context.Context) error {
	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: transportName, Transport: transportName})
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	lines := make(chan frame)
	readErr := make(chan error, 1)
	go func() {
		br := bufio.NewReader(h.r)
		for {
			line, oversized, err := readLine(br, h.maxLine)
			if oversized || len(bytes.TrimSpace(line)) > 0 {
				select {
				case lines <- frame{data: line, oversized: oversized}:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				readErr <- err
				return
			}
		}
	}()

	h.log.InfoContext(ctx, "stdio.serve.start")

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
				return cause
			}
			h.log.InfoContext(ctx, "stdio.serve.cancelled")
			return nil
		case err := <-readErr:
			wg.Wait()
			if errors.Is(err, io.EOF) {
				h.log.InfoContext(ctx, "stdio.serve.eof")
				if cause := context.Cause(ctx); cause != nil {
					return cause
				}
				return nil
			}
			h.log.ErrorContext(ctx, "stdio.read.fail", slog.String("err", err.Error()))
			return fmt.Errorf("stdio: read: %w", err)
		case f := <-lines:
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := h.handleFrame(ctx, f); err != nil {
					cancel(err)
				}
			}()
		}
	}
}

// frame is one inbound line. An oversized frame carries no data.
type frame struct {
	data      []byte
	oversized bool
}

// readLine reads up to and including the next newline. Once a line exceeds
// limit bytes the rest of it is consumed and dropped.
func readLine(br *bufio.Reader, limit int) ([]byte, bool, error) {
	var (
		line      []byte
		oversized bool
	)
	for {
		frag, err := br.ReadSlice('\n')
		if !oversized {
			if len(line)+len(frag) > limit {
				oversized, line = true, nil
			} else {
				line = append(line, frag...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return line, oversized, err
	}
}

// handleFrame processes one framed message. The returned error is a write
// failure, which ends the connection.
func (h *Handler) handleFrame(ctx context.Context, f frame) error {
	if f.oversized {
		h.log.WarnContext(ctx, "stdio.message.too_large", slog.Int("limit", h.maxLine))
		return h.write(ctx, jsonrpc.NewErrorResponse(nil, jsonrpc.ErrorCodeInvalidRequest, "message too large", nil))
	}
	line := f.data
	msg, err := jsonrpc.Parse(line)
	if err != nil {
		code, text := jsonrpc.ErrorCodeParseError, "parse error"
		if json.Valid(line) {
			code, text = jsonrpc.ErrorCodeInvalidRequest, "invalid request"
		}
		h.log.InfoContext(ctx, "stdio.message.invalid", slog.String("err", err.Error()))
		return h.write(ctx, jsonrpc.NewErrorResponse(nil, code, text, nil))
	}

	res, err := h.handler.HandleMessage(ctx, msg)
	if err != nil {
		h.log.ErrorContext(ctx, "stdio.message.handle.fail", slog.String("err", err.Error()))
		if msg.Type() != jsonrpc.KindRequest {
			return nil
		}
		res = jsonrpc.NewErrorResponse(msg.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil)
	}
	if res == nil {
		return nil
	}
	return h.write(ctx, res)
}

func (h *Handler) write(ctx context.Context, res *jsonrpc.Response) error {
	b, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("stdio: encode: %w", err)
	}
	b = append(b, '\n')

	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	if _, err := h.w.Write(b); err != nil {
		h.log.ErrorContext(ctx, "stdio.write.fail", slog.String("err", err.Error()))
		return fmt.Errorf("stdio: write: %w", err)
	}
	return nil
}
