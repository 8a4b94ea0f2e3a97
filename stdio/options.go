package stdio

import (
	"io"
	"log/slog"
)

// DefaultMaxMessageBytes bounds a single inbound line, matching the body
// limit of the SSE transport.
const DefaultMaxMessageBytes = 4 << 20

// Option customizes a Handler.
type Option func(*Handler)

// WithIO sets the protocol streams. A nil argument keeps the process default
// (os.Stdin or os.Stdout).
func WithIO(r io.Reader, w io.Writer) Option {
	return func(h *Handler) {
		if r != nil {
			h.r = r
		}
		if w != nil {
			h.w = w
		}
	}
}

// WithLogger overrides the logger. It must not write to the protocol output
// stream; the server points it at stderr.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.log = l
		}
	}
}

// WithMaxMessageBytes caps the length of one inbound line. Longer lines are
// discarded and answered with an invalid-request error; the connection stays
// up. Non-positive values keep DefaultMaxMessageBytes.
func WithMaxMessageBytes(n int) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxLine = n
		}
	}
}
