package chat

import "errors"

// Error codes for domain errors.
const (
	ErrCodeChatUnavailable  = "chat_unavailable"
	ErrCodeRoomAccessDenied = "room_access_denied"
	ErrCodeSendFailed       = "send_failed"
	ErrCodeUploadFailed     = "upload_failed"
	ErrCodeConnectionLost   = "connection_lost"
)

var (
	// ErrChatUnavailable means the consultation has no chat room bound to it.
	ErrChatUnavailable = errors.New("chat room not available for this consultation")
)

// User-facing fallback texts, matching the portal's notifications.
const (
	NoticeSendFailed     = "Failed to send message. Please try again."
	NoticeUploadFailed   = "Failed to upload file. Please try again."
	NoticeConnectionLost = "Unable to connect to chat server. Please refresh the page."
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}
