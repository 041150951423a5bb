package conn

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/vovakirdan/medichat/internal/proto"
)

func TestRoomJoinsOnConnect(t *testing.T) {
	s := newScript()
	h := openWith(t, s, testSettings())

	rc := NewRoomController(h, "room-1", testLogger())
	defer rc.Leave()

	waitFor(t, func() bool {
		return s.emittedOfType(proto.InboundTypeJoin) >= 1
	}, "join emitted after connect")

	for _, in := range s.emitted() {
		if in.Type != proto.InboundTypeJoin {
			continue
		}
		var data proto.JoinData
		if err := decodeInbound(in, &data); err != nil {
			t.Fatalf("decode join payload: %v", err)
		}
		if data.RoomID != "room-1" {
			t.Fatalf("joined wrong room: %q", data.RoomID)
		}
	}
}

func TestRoomRejoinsAfterDrop(t *testing.T) {
	s := newScript()
	h := openWith(t, s, testSettings())

	rc := NewRoomController(h, "room-1", testLogger())
	defer rc.Leave()

	waitFor(t, func() bool {
		return s.emittedOfType(proto.InboundTypeJoin) >= 1
	}, "initial join emitted")
	before := s.emittedOfType(proto.InboundTypeJoin)

	s.drop(errors.New("poll stream closed"))

	// Membership does not survive a drop; the controller must join again.
	waitFor(t, func() bool {
		return s.emittedOfType(proto.InboundTypeJoin) > before
	}, "re-join emitted after reconnect")
}

func TestLeaveEmitsWhileConnected(t *testing.T) {
	s := newScript()
	h := openWith(t, s, testSettings())

	rc := NewRoomController(h, "room-1", testLogger())
	waitState(t, h, StateConnected)
	waitFor(t, func() bool {
		return s.emittedOfType(proto.InboundTypeJoin) >= 1
	}, "join emitted")

	rc.Leave()
	if got := s.emittedOfType(proto.InboundTypeLeave); got != 1 {
		t.Fatalf("expected 1 leave emit, got %d", got)
	}
}

func TestLeaveSkippedWhenNotConnected(t *testing.T) {
	s := newScript()
	s.connectErr = func(_ string, _ int) error {
		return errors.New("connection refused")
	}
	h := openWith(t, s, testSettings())

	rc := NewRoomController(h, "room-1", testLogger())
	waitState(t, h, StateError)

	rc.Leave()
	if got := s.emittedOfType(proto.InboundTypeLeave); got != 0 {
		t.Fatalf("leave emitted without a connection, %d emits", got)
	}
}

func decodeInbound(in proto.Inbound, v any) error {
	return json.Unmarshal(in.Data, v)
}
