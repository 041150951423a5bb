package chat

import (
	"sort"
	"sync"
)

// Presence tracks ephemeral typing and online state for one open chat view.
// It is rebuilt from incoming events and never persisted; events about the
// local user are suppressed.
type Presence struct {
	selfID   string
	onChange func()

	mu     sync.Mutex
	typing map[string]struct{}
	online map[string]struct{}
}

// NewPresence builds a tracker for the given local user. onChange, if
// non-nil, fires after every state change (the UI redraw hook).
func NewPresence(selfID string, onChange func()) *Presence {
	return &Presence{
		selfID:   selfID,
		onChange: onChange,
		typing:   make(map[string]struct{}),
		online:   make(map[string]struct{}),
	}
}

// ApplyTyping updates the typing state for a participant. Self-notifications
// are ignored; a false state removes the entry entirely.
func (p *Presence) ApplyTyping(userID string, typing bool) {
	if userID == p.selfID {
		return
	}
	p.mu.Lock()
	if typing {
		p.typing[userID] = struct{}{}
	} else {
		delete(p.typing, userID)
	}
	p.mu.Unlock()
	p.changed()
}

// ApplyJoined adds a participant to the online roster.
func (p *Presence) ApplyJoined(userID string) {
	p.mu.Lock()
	p.online[userID] = struct{}{}
	p.mu.Unlock()
	p.changed()
}

// ApplyLeft removes a participant from the roster and clears any stale
// typing entry for them.
func (p *Presence) ApplyLeft(userID string) {
	p.mu.Lock()
	delete(p.online, userID)
	delete(p.typing, userID)
	p.mu.Unlock()
	p.changed()
}

// TypingUsers returns the participants currently typing, sorted.
func (p *Presence) TypingUsers() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return sortedKeys(p.typing)
}

// OnlineUsers returns the current roster, sorted.
func (p *Presence) OnlineUsers() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return sortedKeys(p.online)
}

func (p *Presence) changed() {
	if p.onChange != nil {
		p.onChange()
	}
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
