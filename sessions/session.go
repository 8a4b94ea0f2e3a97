package sessions

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrSessionNotFound is returned by Registry.Lookup for unknown or closed sessions.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionClosed is returned when writing to a closed session.
	ErrSessionClosed = errors.New("session closed")
)

// State is the lifecycle state of a Session.
type State int

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Stream is the outbound half of a session's transport. Implementations need
// not be safe for concurrent use; Session serializes calls.
type Stream interface {
	WriteMessage(ctx context.Context, payload []byte) error
}

// StreamFunc adapts a function to the Stream interface.
type StreamFunc func(ctx context.Context, payload []byte) error

func (f StreamFunc) WriteMessage(ctx context.Context, payload []byte) error { return f(ctx, payload) }

// Session is a single client connection.
type Session struct {
	id        string
	transport string
	createdAt time.Time
	stream    Stream

	stateMu sync.Mutex
	state   State

	writeMu sync.Mutex

	closeOnce sync.Once
	done      chan struct{}
	onClose   func(*Session)
}

func newSession(id, transport string, stream Stream, onClose func(*Session)) *Session {
	return &Session{
		id:        id,
		transport: transport,
		createdAt: time.Now(),
		stream:    stream,
		state:     StateConnecting,
		done:      make(chan struct{}),
		onClose:   onClose,
	}
}

func (s *Session) ID() string           { return s.id }
func (s *Session) Transport() string    { return s.transport }
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Done is closed once the session is closed.
func (s *Session) Done() <-chan struct{} { return s.done }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

// MarkOpen moves a connecting session to Open. It reports false if the
// session was already closed.
func (s *Session) MarkOpen() bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.state != StateConnecting {
		return s.state == StateOpen
	}
	s.state = StateOpen
	return true
}

// Send writes one payload to the session stream. Writes are serialized. If
// the write fails the session is closed and the write error is returned.
func (s *Session) Send(ctx context.Context, payload []byte) error {
	if s.State() == StateClosed {
		return ErrSessionClosed
	}

	s.writeMu.Lock()
	err := s.stream.WriteMessage(ctx, payload)
	s.writeMu.Unlock()

	if err != nil {
		s.Close()
		return fmt.Errorf("session %s: write: %w", s.id, err)
	}
	return nil
}

// Close transitions the session to Closed and removes it from its registry.
// It is idempotent.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.stateMu.Lock()
		s.state = StateClosed
		s.stateMu.Unlock()
		if s.onClose != nil {
			s.onClose(s)
		}
		close(s.done)
	})
}
