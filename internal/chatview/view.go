// Package chatview owns the lifecycle of one open consultation chat view:
// connection, room membership, message reconciliation, presence, and
// attachment dispatch, torn down together when the view closes.
package chatview

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/vovakirdan/medichat/internal/chat"
	"github.com/vovakirdan/medichat/internal/collab"
	"github.com/vovakirdan/medichat/internal/conn"
	"github.com/vovakirdan/medichat/internal/proto"
)

// MessageStore is the external message-store collaborator.
type MessageStore interface {
	History(ctx context.Context, roomID string) ([]chat.Message, error)
	Submit(ctx context.Context, roomID, content string, kind chat.Kind, fileURL string) error
}

// FileStore is the external file-storage collaborator.
type FileStore interface {
	Upload(ctx context.Context, roomID, filename string, r io.Reader) (collab.UploadResult, error)
}

// ConsultationSource is the external booking collaborator supplying the
// chat room binding.
type ConsultationSource interface {
	Consultation(ctx context.Context, id string) (collab.Consultation, error)
}

// Deps are the collaborators one view consumes.
type Deps struct {
	Manager       *conn.Manager
	Messages      MessageStore
	Files         FileStore
	Consultations ConsultationSource
}

// Options configure one view instance. All callbacks are optional.
type Options struct {
	User           chat.Participant
	ConsultationID string

	PendingExpiry   time.Duration
	DuplicateWindow time.Duration

	// Notify receives all user-visible notification text.
	Notify chat.Notifier
	// OnAppend fires for every message appended to the log (scroll hook).
	OnAppend func(chat.Message)
	// OnHistory fires once the initial history load replaces the log.
	OnHistory func([]chat.Message)
	// OnPresence fires after every typing/roster change.
	OnPresence func()
	// OnState fires on every connection state transition.
	OnState func(conn.StateChange)
}

// View is one open consultation chat. It exclusively owns its message log
// and presence state; both are discarded on Close.
type View struct {
	log  *zerolog.Logger
	user chat.Participant

	consultation collab.Consultation
	roomID       string

	files  FileStore
	notify chat.Notifier

	msgLog   *chat.MessageLog
	presence *chat.Presence
	handle   *conn.Handle
	room     *conn.RoomController

	unsubs    []func()
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// Open resolves the consultation's chat room and brings the view up. A
// consultation without a chat room yields chat.ErrChatUnavailable before
// any connection attempt is made.
func Open(ctx context.Context, deps Deps, opts Options, logger *zerolog.Logger) (*View, error) {
	consultation, err := deps.Consultations.Consultation(ctx, opts.ConsultationID)
	if err != nil {
		return nil, fmt.Errorf("load consultation: %w", err)
	}
	if consultation.ChatRoomID == "" {
		return nil, chat.ErrChatUnavailable
	}

	notify := opts.Notify
	if notify == nil {
		notify = func(string) {}
	}

	viewCtx, cancel := context.WithCancel(ctx)

	roomID := consultation.ChatRoomID
	msgLog := chat.NewMessageLog(roomID, opts.User, deps.Messages, chat.LogConfig{
		PendingExpiry:   opts.PendingExpiry,
		DuplicateWindow: opts.DuplicateWindow,
		Notify:          notify,
		OnAppend:        opts.OnAppend,
	}, logger)
	presence := chat.NewPresence(opts.User.ID, opts.OnPresence)

	handle := deps.Manager.Open(viewCtx)

	v := &View{
		log:          logger,
		user:         opts.User,
		consultation: consultation,
		roomID:       roomID,
		files:        deps.Files,
		notify:       notify,
		msgLog:       msgLog,
		presence:     presence,
		handle:       handle,
		cancel:       cancel,
	}

	v.unsubs = append(v.unsubs,
		handle.SubscribeState(func(sc conn.StateChange) {
			if opts.OnState != nil {
				opts.OnState(sc)
			}
			if sc.State == conn.StateError {
				notify(chat.NoticeConnectionLost)
			}
		}),
		handle.SubscribeMessages(func(p proto.MessagePayload) {
			if p.ChatRoomID != roomID {
				return
			}
			msgLog.Receive(p.Model())
		}),
		handle.SubscribeTyping(func(p proto.TypingPayload) {
			presence.ApplyTyping(p.UserID, p.Typing)
		}),
		handle.SubscribeJoined(func(p proto.PresencePayload) {
			presence.ApplyJoined(p.UserID)
		}),
		handle.SubscribeLeft(func(p proto.PresencePayload) {
			presence.ApplyLeft(p.UserID)
		}),
		handle.SubscribeErrors(func(p proto.ErrorPayload) {
			logger.Warn().Str("message", p.Message).Msg("server error")
			if p.Message != "" {
				notify(p.Message)
			}
		}),
	)

	v.room = conn.NewRoomController(handle, roomID, logger)

	go v.loadHistory(viewCtx, deps.Messages, opts.OnHistory)

	return v, nil
}

func (v *View) loadHistory(ctx context.Context, store MessageStore, onHistory func([]chat.Message)) {
	msgs, err := store.History(ctx, v.roomID)
	if err != nil {
		v.log.Warn().Err(err).Str("room_id", v.roomID).Msg("failed to load message history")
		return
	}
	v.msgLog.LoadHistory(msgs)
	if onHistory != nil {
		onHistory(v.msgLog.Messages())
	}
}

// Send appends the text optimistically and dispatches it to the message
// store; it also clears the local typing state, mirroring the input box
// emptying out.
func (v *View) Send(ctx context.Context, content string) {
	v.msgLog.Send(ctx, content, chat.KindText, "")
	v.SetTyping(ctx, false)
}

// SetTyping broadcasts the local typing state. Best-effort and lossy: a
// dead connection just drops it.
func (v *View) SetTyping(ctx context.Context, typing bool) {
	err := v.handle.Emit(ctx, proto.Typing(v.roomID, typing))
	if err != nil && !errors.Is(err, conn.ErrNotConnected) {
		v.log.Debug().Err(err).Msg("typing emit failed")
	}
}

// SendFile uploads the attachment in the background and, on success, routes
// a file message through the reconciliation engine. It returns immediately;
// on failure nothing is sent and the user is notified like a send failure.
// SendFile takes ownership of r until the upload finishes.
func (v *View) SendFile(ctx context.Context, filename string, r io.Reader) {
	go func() {
		res, err := v.files.Upload(ctx, v.roomID, filename, r)
		if err != nil {
			v.log.Warn().Err(err).Str("room_id", v.roomID).Msg("file upload failed")
			v.notify(uploadNotice(err))
			return
		}
		// Send is a no-op once the view is closed.
		v.msgLog.Send(ctx, "📎 Medical document: "+res.Filename, chat.KindFile, res.FileURL)
	}()
}

// Messages returns a snapshot of the reconciled log.
func (v *View) Messages() []chat.Message {
	return v.msgLog.Messages()
}

// TypingUsers returns the participants currently typing.
func (v *View) TypingUsers() []string {
	return v.presence.TypingUsers()
}

// OnlineUsers returns the room's online roster.
func (v *View) OnlineUsers() []string {
	return v.presence.OnlineUsers()
}

// ConnectionState returns the current state and negotiated transport.
func (v *View) ConnectionState() (conn.State, string) {
	return v.handle.State(), v.handle.TransportName()
}

// Consultation returns the booking collaborator's consultation record.
func (v *View) Consultation() collab.Consultation {
	return v.consultation
}

// Close tears the view down: cancels all pending-message timers, leaves the
// room if still connected, and closes the connection. Idempotent.
func (v *View) Close() {
	v.closeOnce.Do(func() {
		for _, unsub := range v.unsubs {
			unsub()
		}
		v.msgLog.Close()
		v.room.Leave()
		v.cancel()
		v.handle.Close()
	})
}

func uploadNotice(err error) string {
	var ce *chat.CoreError
	if errors.As(err, &ce) && ce.Message != "" {
		return ce.Message
	}
	return chat.NoticeUploadFailed
}
