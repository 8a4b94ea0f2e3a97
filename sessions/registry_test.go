package sessions

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

type recordingStream struct {
	mu   sync.Mutex
	msgs []string
	err  error
}

func (s *recordingStream) WriteMessage(ctx context.Context, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.msgs = append(s.msgs, string(payload))
	return nil
}

func TestRegistry_LookupOnlyFindsOpenSessions(t *testing.T) {
	reg := NewRegistry()
	s := reg.Open("test", &recordingStream{})

	if s.State() != StateConnecting {
		t.Fatalf("expected connecting, got %s", s.State())
	}
	if _, err := reg.Lookup(s.ID()); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("connecting session should not be found, got %v", err)
	}

	if !s.MarkOpen() {
		t.Fatalf("MarkOpen returned false")
	}
	got, err := reg.Lookup(s.ID())
	if err != nil || got != s {
		t.Fatalf("Lookup: %v %v", got, err)
	}

	s.Close()
	if _, err := reg.Lookup(s.ID()); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("closed session should not be found, got %v", err)
	}
	if reg.Len() != 0 {
		t.Fatalf("expected empty registry, got %d", reg.Len())
	}
	if s.MarkOpen() {
		t.Fatalf("MarkOpen after close should fail")
	}
}

func TestRegistry_UniqueIDs(t *testing.T) {
	ids := []string{"a", "a", "b"}
	i := 0
	reg := NewRegistry(WithIDGenerator(func() string {
		id := ids[i]
		i++
		return id
	}))
	s1 := reg.Open("test", &recordingStream{})
	s2 := reg.Open("test", &recordingStream{})
	if s1.ID() != "a" || s2.ID() != "b" {
		t.Fatalf("unexpected ids %s %s", s1.ID(), s2.ID())
	}
}

func TestSession_SendSerializesWrites(t *testing.T) {
	reg := NewRegistry()
	st := &recordingStream{}
	s := reg.Open("test", st)
	s.MarkOpen()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := s.Send(context.Background(), []byte(fmt.Sprint(i))); err != nil {
				t.Errorf("Send: %v", err)
			}
		}(i)
	}
	wg.Wait()
	if len(st.msgs) != 50 {
		t.Fatalf("expected 50 writes, got %d", len(st.msgs))
	}
}

func TestSession_WriteFailureClosesAndRemoves(t *testing.T) {
	reg := NewRegistry()
	boom := errors.New("broken pipe")
	s := reg.Open("test", &recordingStream{err: boom})
	s.MarkOpen()

	err := s.Send(context.Background(), []byte("x"))
	if !errors.Is(err, boom) {
		t.Fatalf("expected write error, got %v", err)
	}
	if s.State() != StateClosed {
		t.Fatalf("expected closed, got %s", s.State())
	}
	select {
	case <-s.Done():
	default:
		t.Fatalf("Done not closed")
	}
	if _, err := reg.Lookup(s.ID()); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := s.Send(context.Background(), []byte("y")); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
}

func TestRegistry_CloseAll(t *testing.T) {
	reg := NewRegistry()
	var all []*Session
	for i := 0; i < 3; i++ {
		s := reg.Open("test", &recordingStream{})
		s.MarkOpen()
		all = append(all, s)
	}
	reg.CloseAll()
	if reg.Len() != 0 {
		t.Fatalf("expected empty registry, got %d", reg.Len())
	}
	for _, s := range all {
		if s.State() != StateClosed {
			t.Fatalf("session %s not closed", s.ID())
		}
		s.Close() // idempotent
	}
}
