package collab

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/vovakirdan/medichat/internal/chat"
)

func testLogger() *zerolog.Logger {
	logger := zerolog.Nop()
	return &logger
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "token-1", testLogger())
}

func TestHistoryMapsMessages(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat/rooms/room-1/messages" || r.Method != http.MethodGet {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer token-1" {
			t.Errorf("missing bearer token, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"success": true,
			"messages": [
				{"id":"m1","chat_room_id":"room-1","sender_id":"doc","sender_type":"doctor","message_type":"text","content":"hello","timestamp":"2026-03-01T10:15:30Z"}
			]
		}`))
	})

	msgs, err := c.History(context.Background(), "room-1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	m := msgs[0]
	if m.ID != "m1" || m.SenderRole != chat.RoleDoctor || m.Kind != chat.KindText {
		t.Fatalf("unexpected message: %+v", m)
	}
	if m.Timestamp.IsZero() {
		t.Fatal("timestamp not parsed")
	}
}

func TestHistoryRejectedByServer(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"success": false, "error": "room not found"}`))
	})

	if _, err := c.History(context.Background(), "room-1"); err == nil || !strings.Contains(err.Error(), "room not found") {
		t.Fatalf("expected server error text, got %v", err)
	}
}

func TestSubmitSendsPayload(t *testing.T) {
	var got submitRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode submit body: %v", err)
		}
		_, _ = w.Write([]byte(`{"success": true}`))
	})

	err := c.Submit(context.Background(), "room-1", "📎 Medical document: scan.pdf", chat.KindFile, "/files/room-1/scan.pdf")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if got.Type != "file" || got.FileURL != "/files/room-1/scan.pdf" {
		t.Fatalf("unexpected submit payload: %+v", got)
	}
}

func TestSubmitRejectionBecomesCoreError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"success": false, "error": "message too long"}`))
	})

	err := c.Submit(context.Background(), "room-1", "hello", chat.KindText, "")
	var ce *chat.CoreError
	if !errors.As(err, &ce) {
		t.Fatalf("expected CoreError, got %v", err)
	}
	if ce.Code != chat.ErrCodeSendFailed || ce.Message != "message too long" {
		t.Fatalf("unexpected core error: %+v", ce)
	}
}

func TestUploadParsesResult(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		f, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("missing file part: %v", err)
		} else {
			_ = f.Close()
			if header.Filename != "scan.pdf" {
				t.Errorf("unexpected filename %q", header.Filename)
			}
		}
		_, _ = w.Write([]byte(`{"success": true, "filename": "scan.pdf", "file_url": "/files/room-1/scan.pdf"}`))
	})

	res, err := c.Upload(context.Background(), "room-1", "scan.pdf", strings.NewReader("%PDF"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if res.Filename != "scan.pdf" || res.FileURL != "/files/room-1/scan.pdf" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestUploadRejectionBecomesCoreError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"success": false, "error": "file too large"}`))
	})

	_, err := c.Upload(context.Background(), "room-1", "scan.pdf", strings.NewReader("%PDF"))
	var ce *chat.CoreError
	if !errors.As(err, &ce) {
		t.Fatalf("expected CoreError, got %v", err)
	}
	if ce.Code != chat.ErrCodeUploadFailed || ce.Message != "file too large" {
		t.Fatalf("unexpected core error: %+v", ce)
	}
}

func TestConsultationLookup(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/consultations/c1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"success": true, "consultation": {"id":"c1","chat_room_id":"room-1","status":"active"}}`))
	})

	got, err := c.Consultation(context.Background(), "c1")
	if err != nil {
		t.Fatalf("consultation: %v", err)
	}
	if got.ID != "c1" || got.ChatRoomID != "room-1" {
		t.Fatalf("unexpected consultation: %+v", got)
	}
}

func TestUnexpectedStatusIsError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	if _, err := c.Consultation(context.Background(), "c1"); err == nil || !strings.Contains(err.Error(), "502") {
		t.Fatalf("expected status error, got %v", err)
	}
}
