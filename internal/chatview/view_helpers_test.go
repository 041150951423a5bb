package chatview

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/vovakirdan/medichat/internal/chat"
	"github.com/vovakirdan/medichat/internal/collab"
	"github.com/vovakirdan/medichat/internal/conn"
	"github.com/vovakirdan/medichat/internal/proto"
)

func testLogger() *zerolog.Logger {
	logger := zerolog.Nop()
	return &logger
}

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

type submitCall struct {
	RoomID  string
	Content string
	Kind    chat.Kind
	FileURL string
}

// fakeAPI stands in for the portal backend: booking lookup, message store
// and file storage in one.
type fakeAPI struct {
	mu sync.Mutex

	consultation collab.Consultation
	consultErr   error

	history    []chat.Message
	historyErr error

	submitErr error
	submits   []submitCall

	uploadRes  collab.UploadResult
	uploadErr  error
	uploads    int
	uploadGate chan struct{}
}

func (f *fakeAPI) Consultation(_ context.Context, _ string) (collab.Consultation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.consultation, f.consultErr
}

func (f *fakeAPI) History(_ context.Context, _ string) ([]chat.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.history, f.historyErr
}

func (f *fakeAPI) Submit(_ context.Context, roomID, content string, kind chat.Kind, fileURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits = append(f.submits, submitCall{RoomID: roomID, Content: content, Kind: kind, FileURL: fileURL})
	return f.submitErr
}

func (f *fakeAPI) Upload(_ context.Context, _, _ string, _ io.Reader) (collab.UploadResult, error) {
	f.mu.Lock()
	gate := f.uploadGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads++
	return f.uploadRes, f.uploadErr
}

func (f *fakeAPI) submitCalls() []submitCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]submitCall, len(f.submits))
	copy(out, f.submits)
	return out
}

func (f *fakeAPI) uploadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.uploads
}

// fakeWire is a scripted transport shared by every dial of one manager.
type fakeWire struct {
	mu         sync.Mutex
	dials      int
	emits      []proto.Inbound
	connectErr error

	events chan proto.Outbound
}

func newFakeWire() *fakeWire {
	return &fakeWire{events: make(chan proto.Outbound, 16)}
}

func (w *fakeWire) factory(name string) (conn.Transport, error) {
	return &fakeWireTransport{w: w, name: name}, nil
}

func (w *fakeWire) dialCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dials
}

func (w *fakeWire) emittedOfType(kind string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, in := range w.emits {
		if in.Type == kind {
			n++
		}
	}
	return n
}

func (w *fakeWire) push(t *testing.T, event string, payload any) {
	t.Helper()
	w.events <- outboundEvent(t, event, payload)
}

type fakeWireTransport struct {
	w    *fakeWire
	name string
}

func (t *fakeWireTransport) Name() string { return t.name }

func (t *fakeWireTransport) Connect(_ context.Context) error {
	t.w.mu.Lock()
	defer t.w.mu.Unlock()
	t.w.dials++
	return t.w.connectErr
}

func (t *fakeWireTransport) Read(ctx context.Context) (proto.Outbound, error) {
	select {
	case out := <-t.w.events:
		return out, nil
	case <-ctx.Done():
		return proto.Outbound{}, ctx.Err()
	}
}

func (t *fakeWireTransport) Emit(_ context.Context, in proto.Inbound) error {
	t.w.mu.Lock()
	defer t.w.mu.Unlock()
	t.w.emits = append(t.w.emits, in)
	return nil
}

func (t *fakeWireTransport) Close() error { return nil }

type notices struct {
	mu   sync.Mutex
	msgs []string
}

func (n *notices) add(text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, text)
}

func (n *notices) contains(text string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, msg := range n.msgs {
		if msg == text {
			return true
		}
	}
	return false
}

func testManager(w *fakeWire) *conn.Manager {
	return conn.NewManager(conn.Settings{
		EventURL:         "http://chat.test",
		ReconnectDelay:   time.Millisecond,
		RetryBackoff:     time.Millisecond,
		HandshakeTimeout: time.Second,
	}, testLogger()).WithTransportFactory(w.factory)
}

func openTestView(t *testing.T, api *fakeAPI, w *fakeWire, n *notices) *View {
	t.Helper()

	historyDone := make(chan struct{})
	v, err := Open(context.Background(), Deps{
		Manager:       testManager(w),
		Messages:      api,
		Files:         api,
		Consultations: api,
	}, Options{
		User:           chat.Participant{ID: "u1", Name: "Alice", Role: chat.RolePatient},
		ConsultationID: "c1",
		Notify:         n.add,
		OnHistory:      func([]chat.Message) { close(historyDone) },
	}, testLogger())
	if err != nil {
		t.Fatalf("open view: %v", err)
	}
	t.Cleanup(v.Close)

	// The initial history load replaces the log; let it finish before the
	// test starts mutating.
	select {
	case <-historyDone:
	case <-time.After(2 * time.Second):
		t.Fatal("history load never completed")
	}
	return v
}

func bookedConsultation() collab.Consultation {
	return collab.Consultation{
		ID:          "c1",
		ChatRoomID:  "room-1",
		PatientName: "Alice",
		DoctorName:  "Dr. Bell",
		Status:      "active",
	}
}

func wireMessage(id, sender, content string) proto.MessagePayload {
	return proto.MessagePayload{
		ID:         id,
		ChatRoomID: "room-1",
		SenderID:   sender,
		SenderType: "doctor",
		Type:       "text",
		Content:    content,
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
	}
}

func outboundEvent(t *testing.T, event string, payload any) proto.Outbound {
	t.Helper()

	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal %s payload: %v", event, err)
	}
	return proto.Outbound{Event: event, Data: data}
}
