package proto

import (
	"time"

	"github.com/vovakirdan/medichat/internal/chat"
)

// Model converts a wire message into the domain model. A malformed timestamp
// maps to the zero time rather than failing the whole event.
func (p MessagePayload) Model() chat.Message {
	ts, err := time.Parse(time.RFC3339, p.Timestamp)
	if err != nil {
		ts = time.Time{}
	}
	return chat.Message{
		ID:         p.ID,
		RoomID:     p.ChatRoomID,
		SenderID:   p.SenderID,
		SenderRole: chat.Role(p.SenderType),
		Kind:       chat.Kind(p.Type),
		Content:    p.Content,
		FileURL:    p.FileURL,
		Timestamp:  ts,
		ReadBy:     p.ReadBy,
		Edited:     p.Edited,
	}
}

// Wire converts a domain message into its wire form.
func Wire(m chat.Message) MessagePayload {
	return MessagePayload{
		ID:         m.ID,
		ChatRoomID: m.RoomID,
		SenderID:   m.SenderID,
		SenderType: string(m.SenderRole),
		Type:       string(m.Kind),
		Content:    m.Content,
		FileURL:    m.FileURL,
		Timestamp:  m.Timestamp.UTC().Format(time.RFC3339Nano),
		ReadBy:     m.ReadBy,
		Edited:     m.Edited,
	}
}
