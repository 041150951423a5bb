package chat

import "time"

// Role identifies which side of the consultation a participant is on.
type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
)

// Kind is the message content kind.
type Kind string

const (
	KindText Kind = "text"
	KindFile Kind = "file"
)

// Message is the domain model for a consultation chat message.
//
// A message is either confirmed (server-assigned ID, Pending false) or
// pending (local TempID only, Pending true), never both. TempID and Pending
// are local-only state and are never sent to the server.
type Message struct {
	ID         string
	RoomID     string
	SenderID   string
	SenderRole Role
	Kind       Kind
	Content    string
	FileURL    string
	Timestamp  time.Time
	ReadBy     []string
	Edited     bool

	Pending bool
	TempID  string
}

// Confirmed reports whether the message carries a server identifier.
func (m Message) Confirmed() bool {
	return !m.Pending && m.ID != ""
}
