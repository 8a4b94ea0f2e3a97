package sessions

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Registry maps session ids to live sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	newID func() string
	log   *slog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the logger used for lifecycle events.
func WithLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.log = l
		}
	}
}

// WithIDGenerator overrides the session id generator. The default produces
// random UUIDs.
func WithIDGenerator(fn func() string) RegistryOption {
	return func(r *Registry) {
		if fn != nil {
			r.newID = fn
		}
	}
}

// NewRegistry creates an empty Registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		sessions: make(map[string]*Session),
		newID:    uuid.NewString,
		log:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Open registers a new session in the Connecting state.
func (r *Registry) Open(transport string, stream Stream) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.newID()
	for _, taken := r.sessions[id]; taken; _, taken = r.sessions[id] {
		id = r.newID()
	}
	s := newSession(id, transport, stream, r.remove)
	r.sessions[id] = s
	r.log.Debug("sessions.open", slog.String("session_id", id), slog.String("transport", transport))
	return s
}

// Lookup returns the Open session with the given id, or ErrSessionNotFound.
func (r *Registry) Lookup(id string) (*Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok || s.State() != StateOpen {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Len reports the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CloseAll closes every registered session.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	all := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.mu.RUnlock()

	for _, s := range all {
		s.Close()
	}
}

func (r *Registry) remove(s *Session) {
	r.mu.Lock()
	if cur, ok := r.sessions[s.id]; ok && cur == s {
		delete(r.sessions, s.id)
	}
	r.mu.Unlock()
	r.log.Debug("sessions.close", slog.String("session_id", s.id))
}
