package conn

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"
	"github.com/vovakirdan/medichat/internal/proto"
)

// websocketTransport carries the event channel over an upgraded duplex
// connection. Only attempted when upgrade is enabled; handshake failures
// here are what the manager's exponential retry policy is for.
type websocketTransport struct {
	base             string
	token            string
	handshakeTimeout time.Duration
	log              *zerolog.Logger

	conn *websocket.Conn
}

func newWebsocketTransport(base, token string, handshakeTimeout time.Duration, logger *zerolog.Logger) *websocketTransport {
	return &websocketTransport{
		base:             base,
		token:            token,
		handshakeTimeout: handshakeTimeout,
		log:              logger,
	}
}

func (t *websocketTransport) Name() string {
	return TransportWebSocket
}

func (t *websocketTransport) Connect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, t.handshakeTimeout)
	defer cancel()

	opts := &websocket.DialOptions{}
	if t.token != "" {
		opts.HTTPHeader = http.Header{"Authorization": {"Bearer " + t.token}}
	}

	conn, _, err := websocket.Dial(ctx, wsURL(t.base)+"/events/ws?v="+strconv.Itoa(proto.ProtocolVersion), opts)
	if err != nil {
		return &HandshakeError{Transport: TransportWebSocket, Err: err}
	}
	t.conn = conn
	return nil
}

func (t *websocketTransport) Read(ctx context.Context) (proto.Outbound, error) {
	var out proto.Outbound
	if err := wsjson.Read(ctx, t.conn, &out); err != nil {
		return proto.Outbound{}, err
	}
	return out, nil
}

func (t *websocketTransport) Emit(ctx context.Context, in proto.Inbound) error {
	return wsjson.Write(ctx, t.conn, in)
}

func (t *websocketTransport) Close() error {
	if t.conn == nil {
		return nil
	}
	return t.conn.Close(websocket.StatusNormalClosure, "closing")
}

func wsURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return base
	}
}
