package conn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/vovakirdan/medichat/internal/proto"
)

// ErrNotConnected is returned by Emit when the handle has no live transport.
var ErrNotConnected = errors.New("not connected to chat server")

// Manager establishes and supervises event-channel connections. Each Open
// call yields an independent Handle; there is no ambient shared connection.
type Manager struct {
	settings Settings
	log      *zerolog.Logger

	// factory builds a transport by name. Tests swap in scripted fakes.
	factory func(name string) (Transport, error)
}

// NewManager builds a manager with the given settings.
func NewManager(s Settings, logger *zerolog.Logger) *Manager {
	m := &Manager{
		settings: s.withDefaults(),
		log:      logger,
	}
	m.factory = m.newTransport
	return m
}

// WithTransportFactory overrides transport construction, for embedders with
// custom transports and for tests.
func (m *Manager) WithTransportFactory(f func(name string) (Transport, error)) *Manager {
	m.factory = f
	return m
}

func (m *Manager) newTransport(name string) (Transport, error) {
	switch name {
	case TransportPolling:
		return newPollingTransport(m.settings.EventURL, m.settings.Token, m.settings.HandshakeTimeout, m.log), nil
	case TransportWebSocket:
		return newWebsocketTransport(m.settings.EventURL, m.settings.Token, m.settings.HandshakeTimeout, m.log), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", name)
	}
}

// Handle is one live connection to the event channel. It exposes the state
// machine and typed per-event subscriptions; all traffic for the view flows
// through it.
type Handle struct {
	log *zerolog.Logger

	stateSubs   *subscription[StateChange]
	messageSubs *subscription[proto.MessagePayload]
	typingSubs  *subscription[proto.TypingPayload]
	joinedSubs  *subscription[proto.PresencePayload]
	leftSubs    *subscription[proto.PresencePayload]
	errorSubs   *subscription[proto.ErrorPayload]

	mu            sync.Mutex
	state         State
	transport     Transport
	transportName string
	lastErr       error

	cancel context.CancelFunc
	done   chan struct{}
}

// Open starts connecting and returns immediately; progress is reported
// through state subscriptions. The caller must Close the handle.
func (m *Manager) Open(ctx context.Context) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{
		log:         m.log,
		stateSubs:   newSubscription[StateChange](),
		messageSubs: newSubscription[proto.MessagePayload](),
		typingSubs:  newSubscription[proto.TypingPayload](),
		joinedSubs:  newSubscription[proto.PresencePayload](),
		leftSubs:    newSubscription[proto.PresencePayload](),
		errorSubs:   newSubscription[proto.ErrorPayload](),
		state:       StateConnecting,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	go m.run(ctx, h)
	return h
}

// run drives the connection state machine:
// connecting -> connected -> disconnected -> connecting, with a terminal
// error state once a retry budget is exhausted. A drop never goes straight
// to error; it always passes through disconnected first.
func (m *Manager) run(ctx context.Context, h *Handle) {
	defer close(h.done)

	candidates := m.settings.candidates()
	upgradeRetries := 0
	reconnects := 0

	for {
		h.setState(StateConnecting, "", nil)

		t, err := m.factory(candidates[0])
		if err == nil {
			err = t.Connect(ctx)
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if isUpgradeError(err) {
				upgradeRetries++
				if upgradeRetries > m.settings.RetryAttempts {
					m.log.Error().Err(err).Int("attempts", upgradeRetries).Msg("connection retry budget exhausted")
					h.setState(StateError, "", err)
					return
				}
				// Pin to polling for the rest of this handle's lifetime.
				candidates = []string{TransportPolling}
				backoff := m.settings.RetryBackoff << uint(upgradeRetries)
				m.log.Warn().Err(err).Int("attempt", upgradeRetries).Dur("backoff", backoff).
					Msg("websocket transport failed, retrying with polling")
				if !sleep(ctx, backoff) {
					return
				}
				continue
			}

			reconnects++
			if reconnects > m.settings.ReconnectAttempts {
				m.log.Error().Err(err).Int("attempts", reconnects).Msg("reconnect budget exhausted")
				h.setState(StateError, "", err)
				return
			}
			m.log.Warn().Err(err).Int("attempt", reconnects).Msg("connect failed, retrying")
			if !sleep(ctx, m.settings.ReconnectDelay) {
				return
			}
			continue
		}

		upgradeRetries = 0
		reconnects = 0
		h.attach(t)
		m.log.Info().Str("transport", t.Name()).Msg("connected to chat server")

		readErr := m.readLoop(ctx, h, t)
		h.detach()
		_ = t.Close()

		if ctx.Err() != nil {
			return
		}
		m.log.Warn().Err(readErr).Msg("transport dropped")
		h.setState(StateDisconnected, "", readErr)
	}
}

func (m *Manager) readLoop(ctx context.Context, h *Handle, t Transport) error {
	for {
		out, err := t.Read(ctx)
		if err != nil {
			return err
		}
		h.dispatch(out)
	}
}

// State returns the current connection state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// TransportName returns the negotiated transport while connected.
func (h *Handle) TransportName() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.transportName
}

// Err returns the error that drove the last disconnected or error state.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastErr
}

// Emit sends one client envelope over the live transport.
func (h *Handle) Emit(ctx context.Context, in proto.Inbound) error {
	h.mu.Lock()
	t := h.transport
	st := h.state
	h.mu.Unlock()

	if st != StateConnected || t == nil {
		return ErrNotConnected
	}
	return t.Emit(ctx, in)
}

// SubscribeState registers fn for state transitions; returns unsubscribe.
func (h *Handle) SubscribeState(fn func(StateChange)) func() {
	return h.stateSubs.add(fn)
}

// SubscribeMessages registers fn for new_message events.
func (h *Handle) SubscribeMessages(fn func(proto.MessagePayload)) func() {
	return h.messageSubs.add(fn)
}

// SubscribeTyping registers fn for user_typing events.
func (h *Handle) SubscribeTyping(fn func(proto.TypingPayload)) func() {
	return h.typingSubs.add(fn)
}

// SubscribeJoined registers fn for user_joined events.
func (h *Handle) SubscribeJoined(fn func(proto.PresencePayload)) func() {
	return h.joinedSubs.add(fn)
}

// SubscribeLeft registers fn for user_left events.
func (h *Handle) SubscribeLeft(fn func(proto.PresencePayload)) func() {
	return h.leftSubs.add(fn)
}

// SubscribeErrors registers fn for server-pushed domain errors.
func (h *Handle) SubscribeErrors(fn func(proto.ErrorPayload)) func() {
	return h.errorSubs.add(fn)
}

// Close tears the connection down and waits for the supervisor to stop.
func (h *Handle) Close() {
	h.cancel()
	<-h.done
}

func (h *Handle) attach(t Transport) {
	h.mu.Lock()
	h.transport = t
	h.transportName = t.Name()
	h.state = StateConnected
	h.lastErr = nil
	h.mu.Unlock()

	h.stateSubs.publish(StateChange{State: StateConnected, Transport: t.Name()})
}

func (h *Handle) detach() {
	h.mu.Lock()
	h.transport = nil
	h.transportName = ""
	h.mu.Unlock()
}

func (h *Handle) setState(st State, transport string, err error) {
	h.mu.Lock()
	h.state = st
	h.transportName = transport
	if err != nil {
		h.lastErr = err
	}
	h.mu.Unlock()

	h.stateSubs.publish(StateChange{State: st, Transport: transport, Err: err})
}

// dispatch routes one server event to its subscribers, in receipt order.
func (h *Handle) dispatch(out proto.Outbound) {
	switch out.Event {
	case proto.EventNewMessage:
		var p proto.MessagePayload
		if h.decode(out, &p) {
			h.messageSubs.publish(p)
		}
	case proto.EventUserTyping:
		var p proto.TypingPayload
		if h.decode(out, &p) {
			h.typingSubs.publish(p)
		}
	case proto.EventUserJoined:
		var p proto.PresencePayload
		if h.decode(out, &p) {
			h.joinedSubs.publish(p)
		}
	case proto.EventUserLeft:
		var p proto.PresencePayload
		if h.decode(out, &p) {
			h.leftSubs.publish(p)
		}
	case proto.EventError:
		var p proto.ErrorPayload
		if h.decode(out, &p) {
			h.errorSubs.publish(p)
		}
	default:
		h.log.Debug().Str("event", out.Event).Msg("unknown event ignored")
	}
}

func (h *Handle) decode(out proto.Outbound, v any) bool {
	if err := json.Unmarshal(out.Data, v); err != nil {
		h.log.Warn().Err(err).Str("event", out.Event).Msg("malformed event payload")
		return false
	}
	return true
}

// sleep waits for d or context cancellation; returns false when cancelled.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
