package proto

import "encoding/json"

// Inbound is the envelope for payloads emitted by the client to the event channel.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	ProtocolVersion = 1

	InboundTypeJoin   = "join_chat_room"
	InboundTypeLeave  = "leave_chat_room"
	InboundTypeTyping = "typing"

	EventNewMessage = "new_message"
	EventUserTyping = "user_typing"
	EventUserJoined = "user_joined"
	EventUserLeft   = "user_left"
	EventError      = "error"
)

// Outbound is the envelope for server-broadcast events.
type Outbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// HandshakeData opens an event-channel session. Version lets the server
// reject clients speaking an incompatible envelope format.
type HandshakeData struct {
	Version int `json:"version"`
}

// JoinData requests membership in a consultation chat room.
type JoinData struct {
	RoomID string `json:"room_id"`
}

// TypingData broadcasts the local user's typing state to the room.
type TypingData struct {
	RoomID string `json:"room_id"`
	Typing bool   `json:"typing"`
}

// MessagePayload is a chat message as it travels on the wire.
// Timestamps are ISO instants; the id is always server-assigned.
type MessagePayload struct {
	ID         string   `json:"id"`
	ChatRoomID string   `json:"chat_room_id"`
	SenderID   string   `json:"sender_id"`
	SenderType string   `json:"sender_type"`
	Type       string   `json:"message_type"`
	Content    string   `json:"content"`
	FileURL    string   `json:"file_url,omitempty"`
	Timestamp  string   `json:"timestamp"`
	ReadBy     []string `json:"read_by,omitempty"`
	Edited     bool     `json:"edited"`
}

// TypingPayload reports another participant's typing state.
type TypingPayload struct {
	UserID string `json:"user_id"`
	Typing bool   `json:"typing"`
}

// PresencePayload reports a participant joining or leaving the room.
type PresencePayload struct {
	UserID string `json:"user_id"`
}

// ErrorPayload is a domain error pushed by the server, e.g. a denied room join.
type ErrorPayload struct {
	Message string `json:"message"`
}

// Join builds the inbound envelope for joining a room.
func Join(roomID string) Inbound {
	return inbound(InboundTypeJoin, JoinData{RoomID: roomID})
}

// Leave builds the inbound envelope for leaving a room.
func Leave(roomID string) Inbound {
	return inbound(InboundTypeLeave, JoinData{RoomID: roomID})
}

// Typing builds the inbound envelope broadcasting the typing state.
func Typing(roomID string, typing bool) Inbound {
	return inbound(InboundTypeTyping, TypingData{RoomID: roomID, Typing: typing})
}

func inbound(kind string, data any) Inbound {
	raw, err := json.Marshal(data)
	if err != nil {
		// All inbound payloads are plain structs; marshal cannot fail.
		panic(err)
	}
	return Inbound{Type: kind, Data: raw}
}
