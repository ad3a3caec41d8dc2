// Package natstransport binds the state-store transport capabilities to
// NATS: correlated invocations over request/reply, key change notifications
// over a per-client subject subscription, and connection monitoring from the
// nats.go connection callbacks. Payloads are JSON; the key segment of a
// notification subject carries the canonical upper-hex key token.
package natstransport

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"pkt.systems/statestore/api"
	"pkt.systems/statestore/hlc"
	"pkt.systems/statestore/internal/keycodec"
	"pkt.systems/statestore/transport"
)

const (
	// DefaultCommandSubject is the service's command invocation subject.
	DefaultCommandSubject = "statestore.v1.command"
	// DefaultNotifyPrefix is the subject prefix notifications are published
	// under. The full subject is <prefix>.<encodedClientID>.<encodedKey>.
	DefaultNotifyPrefix = "statestore.v1.notify"
	// VersionHeader carries the serialized service version stamp.
	VersionHeader = "Statestore-Version"
)

// Config describes one NATS transport connection.
type Config struct {
	// URL is the NATS server URL, for example "nats://127.0.0.1:4222".
	URL string
	// ClientID identifies this client to the service. Notifications for
	// observed keys are published to this client's notify subject. Empty
	// generates a random identifier.
	ClientID string
	// CommandSubject overrides DefaultCommandSubject.
	CommandSubject string
	// NotifyPrefix overrides DefaultNotifyPrefix.
	NotifyPrefix string
	// Username and Password authenticate against the server when set.
	Username string
	Password string
	// Token authenticates against the server when set.
	Token string
	// TLS enables TLS with the given configuration.
	TLS *tls.Config
	// DialTimeout bounds the initial connect. Zero uses nats.go's default.
	DialTimeout time.Duration
}

// Transport owns a NATS connection and exposes the capabilities a
// state-store client consumes.
type Transport struct {
	conn       *nats.Conn
	clientID   string
	invoker    *Invoker
	subscriber *Subscriber
	monitor    *Monitor
}

// Dial connects to NATS and prepares the invoker, subscriber, and monitor.
func Dial(ctx context.Context, cfg Config) (*Transport, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("natstransport: url is required")
	}
	clientID := strings.TrimSpace(cfg.ClientID)
	if clientID == "" {
		clientID = uuid.NewString()
	}
	commandSubject := cfg.CommandSubject
	if commandSubject == "" {
		commandSubject = DefaultCommandSubject
	}
	notifyPrefix := cfg.NotifyPrefix
	if notifyPrefix == "" {
		notifyPrefix = DefaultNotifyPrefix
	}

	monitor := newMonitor()
	opts := []nats.Option{
		nats.Name(clientID),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, _ error) {
			monitor.setConnected(false)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			monitor.setConnected(true)
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			monitor.setConnected(false)
		}),
	}
	if cfg.DialTimeout > 0 {
		opts = append(opts, nats.Timeout(cfg.DialTimeout))
	}
	if cfg.Username != "" || cfg.Password != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}
	if cfg.TLS != nil {
		opts = append(opts, nats.Secure(cfg.TLS))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("natstransport: connect: %w", err)
	}
	monitor.setConnected(true)

	notifySubject := fmt.Sprintf("%s.%s.*", notifyPrefix, keycodec.Encode([]byte(clientID)))
	sub, err := conn.SubscribeSync(notifySubject)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("natstransport: subscribe %q: %w", notifySubject, err)
	}

	return &Transport{
		conn:       conn,
		clientID:   clientID,
		invoker:    &Invoker{conn: conn, subject: commandSubject},
		subscriber: &Subscriber{sub: sub},
		monitor:    monitor,
	}, nil
}

// ClientID returns the identifier this transport connected with.
func (t *Transport) ClientID() string { return t.clientID }

// Binding returns the invoker/subscriber pair for client construction.
func (t *Transport) Binding() transport.Binding {
	return transport.Binding{Invoker: t.invoker, Subscriber: t.subscriber}
}

// Monitor returns the connection monitor for client construction.
func (t *Transport) Monitor() transport.ConnectionMonitor { return t.monitor }

// Close drains and closes the underlying connection.
func (t *Transport) Close() error {
	if err := t.conn.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		t.conn.Close()
		return fmt.Errorf("natstransport: drain: %w", err)
	}
	return nil
}

// Invoker performs request/reply invocations over the command subject.
type Invoker struct {
	conn     *nats.Conn
	subject  string
	shutdown atomic.Bool
}

type responseEnvelope struct {
	// Response is the decoded service response.
	Response api.Response `json:"response"`
	// Version is the serialized version stamp for the operation, if any.
	Version string `json:"version,omitempty"`
}

// Invoke publishes one request and waits for the correlated reply.
func (i *Invoker) Invoke(ctx context.Context, req transport.Request) (transport.Response, error) {
	if i.shutdown.Load() {
		return transport.Response{}, fmt.Errorf("natstransport: invoker is shut down")
	}
	data, err := json.Marshal(req.Payload)
	if err != nil {
		return transport.Response{}, fmt.Errorf("natstransport: encode request: %w", err)
	}
	msg := nats.NewMsg(i.subject)
	msg.Data = data
	for k, v := range req.Metadata {
		msg.Header.Set(k, v)
	}
	reqCtx := ctx
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}
	reply, err := i.conn.RequestMsgWithContext(reqCtx, msg)
	if err != nil {
		return transport.Response{}, fmt.Errorf("natstransport: invoke: %w", err)
	}
	var envelope responseEnvelope
	if err := json.Unmarshal(reply.Data, &envelope); err != nil {
		return transport.Response{}, fmt.Errorf("natstransport: decode response: %w", err)
	}
	out := transport.Response{Payload: envelope.Response}
	version := envelope.Version
	if version == "" {
		version = reply.Header.Get(VersionHeader)
	}
	if version != "" {
		ts, err := hlc.Parse(version)
		if err != nil {
			return transport.Response{}, fmt.Errorf("natstransport: malformed version stamp: %w", err)
		}
		out.Version = &ts
	}
	return out, nil
}

// Shutdown flushes outstanding traffic and marks the invoker unusable. The
// shared connection stays open for the subscriber until Transport.Close.
func (i *Invoker) Shutdown(ctx context.Context) error {
	if i.shutdown.Swap(true) {
		return nil
	}
	if err := i.conn.FlushWithContext(ctx); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return fmt.Errorf("natstransport: flush: %w", err)
	}
	return nil
}

// Subscriber yields key change notifications from the per-client subject.
type Subscriber struct {
	sub *nats.Subscription
}

// Recv returns the next notification. It reports io.EOF once the
// subscription or connection has been closed permanently.
func (s *Subscriber) Recv(ctx context.Context) (transport.Delivery, error) {
	msg, err := s.sub.NextMsgWithContext(ctx)
	if err != nil {
		if errors.Is(err, nats.ErrBadSubscription) || errors.Is(err, nats.ErrConnectionClosed) {
			return transport.Delivery{}, io.EOF
		}
		return transport.Delivery{}, err
	}
	return deliveryFromMsg(msg)
}

// Shutdown drains the subscription. Pending notifications remain receivable
// until the drain completes, after which Recv reports io.EOF.
func (s *Subscriber) Shutdown(ctx context.Context) error {
	if err := s.sub.Drain(); err != nil && !errors.Is(err, nats.ErrBadSubscription) && !errors.Is(err, nats.ErrConnectionClosed) {
		return fmt.Errorf("natstransport: drain subscription: %w", err)
	}
	return nil
}

func deliveryFromMsg(msg *nats.Msg) (transport.Delivery, error) {
	var op api.Operation
	if err := json.Unmarshal(msg.Data, &op); err != nil {
		return transport.Delivery{}, fmt.Errorf("natstransport: decode notification: %w", err)
	}
	n := transport.Notification{
		TopicTokens: map[string]string{transport.TokenKeyName: keyTokenFromSubject(msg.Subject)},
		Payload:     op,
	}
	if v := msg.Header.Get(VersionHeader); v != "" {
		ts, err := hlc.Parse(v)
		if err != nil {
			return transport.Delivery{}, fmt.Errorf("natstransport: malformed notification version: %w", err)
		}
		n.Timestamp = &ts
	}
	d := transport.Delivery{Notification: n}
	if msg.Reply != "" {
		d.Ack = &ackHandle{msg: msg}
	}
	return d, nil
}

// keyTokenFromSubject extracts the trailing key segment of a notification
// subject. It returns "" when the subject has no dot-separated segments.
func keyTokenFromSubject(subject string) string {
	idx := strings.LastIndexByte(subject, '.')
	if idx < 0 || idx == len(subject)-1 {
		return ""
	}
	return subject[idx+1:]
}

type ackHandle struct {
	msg *nats.Msg
}

// Ack confirms the delivery by responding on the message's reply subject.
func (a *ackHandle) Ack(ctx context.Context) error {
	if err := a.msg.Respond(nil); err != nil {
		return fmt.Errorf("natstransport: ack: %w", err)
	}
	return nil
}
