package conn

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/vovakirdan/medichat/internal/proto"
)

func testLogger() *zerolog.Logger {
	logger := zerolog.Nop()
	return &logger
}

func testSettings() Settings {
	return Settings{
		EventURL:         "http://chat.test",
		Transports:       []string{TransportPolling},
		ReconnectDelay:   time.Millisecond,
		RetryBackoff:     time.Millisecond,
		HandshakeTimeout: time.Second,
	}
}

// script drives fake transports from a test: connect outcomes per attempt,
// server events, and forced drops.
type script struct {
	mu         sync.Mutex
	connects   int
	emits      []proto.Inbound
	connectErr func(name string, attempt int) error

	events  chan proto.Outbound
	readErr chan error
}

func newScript() *script {
	return &script{
		events:  make(chan proto.Outbound, 16),
		readErr: make(chan error, 1),
	}
}

func (s *script) factory(name string) (Transport, error) {
	return &fakeTransport{s: s, name: name}, nil
}

func (s *script) connectCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connects
}

func (s *script) emitted() []proto.Inbound {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]proto.Inbound, len(s.emits))
	copy(out, s.emits)
	return out
}

func (s *script) emittedOfType(kind string) int {
	n := 0
	for _, in := range s.emitted() {
		if in.Type == kind {
			n++
		}
	}
	return n
}

func (s *script) drop(err error) {
	s.readErr <- err
}

type fakeTransport struct {
	s    *script
	name string
}

func (t *fakeTransport) Name() string { return t.name }

func (t *fakeTransport) Connect(_ context.Context) error {
	t.s.mu.Lock()
	t.s.connects++
	attempt := t.s.connects
	fn := t.s.connectErr
	t.s.mu.Unlock()

	if fn != nil {
		return fn(t.name, attempt)
	}
	return nil
}

func (t *fakeTransport) Read(ctx context.Context) (proto.Outbound, error) {
	select {
	case out := <-t.s.events:
		return out, nil
	case err := <-t.s.readErr:
		return proto.Outbound{}, err
	case <-ctx.Done():
		return proto.Outbound{}, ctx.Err()
	}
}

func (t *fakeTransport) Emit(_ context.Context, in proto.Inbound) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	t.s.emits = append(t.s.emits, in)
	return nil
}

func (t *fakeTransport) Close() error { return nil }

func openWith(t *testing.T, s *script, settings Settings) *Handle {
	t.Helper()

	m := NewManager(settings, testLogger()).WithTransportFactory(s.factory)
	h := m.Open(context.Background())
	t.Cleanup(h.Close)
	return h
}

func waitState(t *testing.T, h *Handle, want State) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.State() == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("state %s not reached, current %s", want, h.State())
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met: %s", msg)
}
