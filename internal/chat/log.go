package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	defaultPendingExpiry   = 5 * time.Second
	defaultDuplicateWindow = time.Second
)

// Submitter dispatches a message to the external message-store collaborator.
type Submitter interface {
	Submit(ctx context.Context, roomID, content string, kind Kind, fileURL string) error
}

// Notifier receives user-visible notification text.
type Notifier func(text string)

// Participant is the read-only identity of a chat participant.
type Participant struct {
	ID   string
	Name string
	Role Role
}

// LogConfig tunes the reconciliation behaviour. Zero durations fall back to
// the portal defaults (5s pending expiry, 1s duplicate window).
type LogConfig struct {
	PendingExpiry   time.Duration
	DuplicateWindow time.Duration
	Notify          Notifier
	OnAppend        func(Message)
}

// MessageLog owns the ordered message log for one open chat view.
//
// It merges locally-originated optimistic messages with server-confirmed
// ones: a send appends a pending message immediately, and the server echo
// replaces it. Pending messages that see no echo within the expiry window
// are dropped. The log is discarded with the view; there is no cross-view
// cache.
type MessageLog struct {
	roomID string
	self   Participant

	submit   Submitter
	notify   Notifier
	onAppend func(Message)

	expiry    time.Duration
	dupWindow time.Duration
	log       *zerolog.Logger

	mu     sync.Mutex
	msgs   []Message
	timers map[string]*time.Timer
	closed bool
}

// NewMessageLog builds the log for one room on behalf of self.
func NewMessageLog(roomID string, self Participant, submit Submitter, cfg LogConfig, logger *zerolog.Logger) *MessageLog {
	if cfg.PendingExpiry <= 0 {
		cfg.PendingExpiry = defaultPendingExpiry
	}
	if cfg.DuplicateWindow <= 0 {
		cfg.DuplicateWindow = defaultDuplicateWindow
	}
	if cfg.Notify == nil {
		cfg.Notify = func(string) {}
	}
	return &MessageLog{
		roomID:    roomID,
		self:      self,
		submit:    submit,
		notify:    cfg.Notify,
		onAppend:  cfg.OnAppend,
		expiry:    cfg.PendingExpiry,
		dupWindow: cfg.DuplicateWindow,
		log:       logger,
		timers:    make(map[string]*time.Timer),
	}
}

// LoadHistory replaces the entire in-memory log with server-ordered history
// (oldest first). Outstanding pending messages and their timers are dropped.
func (l *MessageLog) LoadHistory(msgs []Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.drainTimersLocked()
	l.msgs = make([]Message, len(msgs))
	copy(l.msgs, msgs)
	for i := range l.msgs {
		l.msgs[i].Pending = false
		l.msgs[i].TempID = ""
	}
}

// Send appends a pending message synchronously and dispatches it to the
// message store in the background. The pending copy lives until the server
// echo confirms it, the submission fails, or the expiry timer fires.
func (l *MessageLog) Send(ctx context.Context, content string, kind Kind, fileURL string) {
	content = strings.TrimSpace(content)
	if content == "" {
		return
	}

	msg := Message{
		RoomID:     l.roomID,
		SenderID:   l.self.ID,
		SenderRole: l.self.Role,
		Kind:       kind,
		Content:    content,
		FileURL:    fileURL,
		Timestamp:  time.Now(),
		ReadBy:     []string{l.self.ID},
		Pending:    true,
		TempID:     "temp_" + uuid.NewString(),
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.msgs = append(l.msgs, msg)
	l.timers[msg.TempID] = time.AfterFunc(l.expiry, func() {
		l.expirePending(msg.TempID)
	})
	onAppend := l.onAppend
	l.mu.Unlock()

	if onAppend != nil {
		onAppend(msg)
	}

	go func() {
		if err := l.submit.Submit(ctx, l.roomID, content, kind, fileURL); err != nil {
			l.removePending(msg.TempID)
			l.log.Warn().Err(err).Str("room_id", l.roomID).Msg("message submit failed")
			l.notify(noticeFor(err, NoticeSendFailed))
		}
	}()
}

// Receive folds one server-broadcast message into the log: it removes the
// matching pending counterpart, drops duplicates, and otherwise appends the
// message ahead of any remaining pendings.
func (l *MessageLog) Receive(msg Message) {
	content := strings.TrimSpace(msg.Content)

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}

	for i, m := range l.msgs {
		if m.Pending && m.SenderID == msg.SenderID && m.Kind == msg.Kind && strings.TrimSpace(m.Content) == content {
			l.stopTimerLocked(m.TempID)
			l.msgs = append(l.msgs[:i], l.msgs[i+1:]...)
			break
		}
	}

	for _, m := range l.msgs {
		if !m.Confirmed() {
			continue
		}
		sameID := msg.ID != "" && m.ID == msg.ID
		sameContent := m.SenderID == msg.SenderID && strings.TrimSpace(m.Content) == content &&
			absDuration(m.Timestamp.Sub(msg.Timestamp)) < l.dupWindow
		if sameID || sameContent {
			l.mu.Unlock()
			l.log.Debug().Str("message_id", msg.ID).Msg("duplicate message dropped")
			return
		}
	}

	msg.Pending = false
	msg.TempID = ""
	msg.Content = content

	// Confirmed messages keep server arrival order; pendings always trail.
	idx := len(l.msgs)
	for idx > 0 && l.msgs[idx-1].Pending {
		idx--
	}
	l.msgs = append(l.msgs, Message{})
	copy(l.msgs[idx+1:], l.msgs[idx:])
	l.msgs[idx] = msg

	onAppend := l.onAppend
	l.mu.Unlock()

	if onAppend != nil {
		onAppend(msg)
	}
}

// Messages returns a snapshot of the log in display order.
func (l *MessageLog) Messages() []Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Message, len(l.msgs))
	copy(out, l.msgs)
	return out
}

// Close cancels all outstanding pending-message timers. The log keeps its
// contents but accepts no further mutations.
func (l *MessageLog) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	l.drainTimersLocked()
}

func (l *MessageLog) expirePending(tempID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	delete(l.timers, tempID)
	for i, m := range l.msgs {
		if m.Pending && m.TempID == tempID {
			l.msgs = append(l.msgs[:i], l.msgs[i+1:]...)
			l.log.Debug().Str("room_id", l.roomID).Msg("pending message expired without confirmation")
			return
		}
	}
}

func (l *MessageLog) removePending(tempID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.stopTimerLocked(tempID)
	for i, m := range l.msgs {
		if m.Pending && m.TempID == tempID {
			l.msgs = append(l.msgs[:i], l.msgs[i+1:]...)
			return
		}
	}
}

func (l *MessageLog) stopTimerLocked(tempID string) {
	if t, ok := l.timers[tempID]; ok {
		t.Stop()
		delete(l.timers, tempID)
	}
}

func (l *MessageLog) drainTimersLocked() {
	for id, t := range l.timers {
		t.Stop()
		delete(l.timers, id)
	}
	for i := 0; i < len(l.msgs); {
		if l.msgs[i].Pending {
			l.msgs = append(l.msgs[:i], l.msgs[i+1:]...)
			continue
		}
		i++
	}
}

// noticeFor prefers server-provided error text over the generic fallback.
func noticeFor(err error, fallback string) string {
	var ce *CoreError
	if errors.As(err, &ce) && ce.Message != "" {
		return ce.Message
	}
	return fallback
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
