package conn

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/vovakirdan/medichat/internal/proto"
)

// pollingTransport cycles HTTP long-poll requests against the event channel.
// It is the most restrictive transport and therefore the default: no frames,
// no upgrades, works through any proxy that speaks plain HTTP.
type pollingTransport struct {
	base   string
	token  string
	client *http.Client
	log    *zerolog.Logger

	handshakeTimeout time.Duration

	sid string
	buf []proto.Outbound
}

func newPollingTransport(base, token string, handshakeTimeout time.Duration, logger *zerolog.Logger) *pollingTransport {
	return &pollingTransport{
		base:             base,
		token:            token,
		client:           &http.Client{},
		log:              logger,
		handshakeTimeout: handshakeTimeout,
	}
}

func (t *pollingTransport) Name() string {
	return TransportPolling
}

func (t *pollingTransport) Connect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, t.handshakeTimeout)
	defer cancel()

	payload, err := json.Marshal(proto.HandshakeData{Version: proto.ProtocolVersion})
	if err != nil {
		return &HandshakeError{Transport: TransportPolling, Err: err}
	}
	req, err := t.request(ctx, http.MethodPost, "/events/handshake", bytes.NewReader(payload))
	if err != nil {
		return &HandshakeError{Transport: TransportPolling, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return &HandshakeError{Transport: TransportPolling, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &HandshakeError{Transport: TransportPolling, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	var body struct {
		SID string `json:"sid"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return &HandshakeError{Transport: TransportPolling, Err: fmt.Errorf("decode handshake: %w", err)}
	}
	if body.SID == "" {
		return &HandshakeError{Transport: TransportPolling, Err: fmt.Errorf("handshake returned empty session id")}
	}

	t.sid = body.SID
	return nil
}

func (t *pollingTransport) Read(ctx context.Context) (proto.Outbound, error) {
	for {
		if len(t.buf) > 0 {
			out := t.buf[0]
			t.buf = t.buf[1:]
			return out, nil
		}

		req, err := t.request(ctx, http.MethodGet, "/events/poll?sid="+t.sid, nil)
		if err != nil {
			return proto.Outbound{}, err
		}
		resp, err := t.client.Do(req)
		if err != nil {
			return proto.Outbound{}, fmt.Errorf("poll: %w", err)
		}

		switch resp.StatusCode {
		case http.StatusOK:
			var batch []proto.Outbound
			err = json.NewDecoder(resp.Body).Decode(&batch)
			resp.Body.Close()
			if err != nil {
				return proto.Outbound{}, fmt.Errorf("decode poll batch: %w", err)
			}
			t.buf = batch
		case http.StatusNoContent:
			resp.Body.Close()
		default:
			resp.Body.Close()
			return proto.Outbound{}, fmt.Errorf("poll: unexpected status %d", resp.StatusCode)
		}
	}
}

func (t *pollingTransport) Emit(ctx context.Context, in proto.Inbound) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal emit: %w", err)
	}

	req, err := t.request(ctx, http.MethodPost, "/events/emit?sid="+t.sid, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("emit: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("emit: unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (t *pollingTransport) Close() error {
	if t.sid == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := t.request(ctx, http.MethodPost, "/events/close?sid="+t.sid, nil)
	if err != nil {
		return nil
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil // best-effort: the session expires server-side anyway
	}
	io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

func (t *pollingTransport) request(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, t.base+path, body)
	if err != nil {
		return nil, err
	}
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}
	return req, nil
}
