package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testLogger() *zerolog.Logger {
	logger := zerolog.Nop()
	return &logger
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met: %s", msg)
}

type fakeSubmitter struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (f *fakeSubmitter) Submit(_ context.Context, _, _ string, _ Kind, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

func (f *fakeSubmitter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type notices struct {
	mu   sync.Mutex
	msgs []string
}

func (n *notices) add(text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, text)
}

func (n *notices) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.msgs))
	copy(out, n.msgs)
	return out
}

func newTestLog(submit Submitter, cfg LogConfig) *MessageLog {
	return NewMessageLog("room-1", Participant{ID: "u1", Name: "Alice", Role: RolePatient}, submit, cfg, testLogger())
}

func confirmed(id, sender, content string, ts time.Time) Message {
	return Message{
		ID:         id,
		RoomID:     "room-1",
		SenderID:   sender,
		SenderRole: RoleDoctor,
		Kind:       KindText,
		Content:    content,
		Timestamp:  ts,
	}
}
