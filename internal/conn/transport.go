package conn

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vovakirdan/medichat/internal/proto"
)

// Transport names negotiated with the event channel.
const (
	TransportPolling   = "polling"
	TransportWebSocket = "websocket"
)

// Transport carries the duplex event channel over one concrete mechanism.
// Read blocks until the next server event; Emit pushes one client envelope.
type Transport interface {
	Name() string
	Connect(ctx context.Context) error
	Read(ctx context.Context) (proto.Outbound, error)
	Emit(ctx context.Context, in proto.Inbound) error
	Close() error
}

// HandshakeError marks a failure to establish a transport connection.
type HandshakeError struct {
	Transport string
	Err       error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("%s handshake: %v", e.Transport, e.Err)
}

func (e *HandshakeError) Unwrap() error {
	return e.Err
}

// isUpgradeError reports whether a failure is attributable to the websocket
// transport. This class gets the application-level exponential retry before
// the manager pins the connection to polling.
func isUpgradeError(err error) bool {
	var he *HandshakeError
	if errors.As(err, &he) && he.Transport == TransportWebSocket {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "websocket") ||
		strings.Contains(msg, "WebSocket") ||
		strings.Contains(msg, "Invalid frame header")
}

// Settings configures the connection manager for one chat view.
type Settings struct {
	EventURL string
	Token    string

	// Transports is the ordered preference list; polling first avoids
	// upgrade failures on restrictive networks.
	Transports []string
	// Upgrade tries the websocket transport ahead of the configured list.
	Upgrade bool

	// ReconnectAttempts bounds transport-level reconnects after drops and
	// generic connect failures.
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	// RetryAttempts bounds the application-level retry of
	// websocket-attributable handshake failures.
	RetryAttempts int
	// RetryBackoff is the backoff base: attempt n waits base * 2^n.
	RetryBackoff     time.Duration
	HandshakeTimeout time.Duration
}

func (s Settings) withDefaults() Settings {
	if len(s.Transports) == 0 {
		s.Transports = []string{TransportPolling}
	}
	if s.ReconnectAttempts == 0 {
		s.ReconnectAttempts = 5
	}
	if s.ReconnectDelay == 0 {
		s.ReconnectDelay = time.Second
	}
	if s.RetryAttempts == 0 {
		s.RetryAttempts = 3
	}
	if s.RetryBackoff == 0 {
		s.RetryBackoff = time.Second
	}
	if s.HandshakeTimeout == 0 {
		s.HandshakeTimeout = 10 * time.Second
	}
	return s
}

// candidates resolves the transport order for a fresh connection cycle.
func (s Settings) candidates() []string {
	if s.Upgrade {
		out := []string{TransportWebSocket}
		for _, t := range s.Transports {
			if t != TransportWebSocket {
				out = append(out, t)
			}
		}
		return out
	}
	out := make([]string, len(s.Transports))
	copy(out, s.Transports)
	return out
}
