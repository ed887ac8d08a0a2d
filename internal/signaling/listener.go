package signaling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const DefaultReconnectDelay = 5 * time.Second

// Observer receives call status changes. calls.Controller implements it.
type Observer interface {
	ObserveStatus(ctx context.Context, callID, status string)
}

// TokenSource supplies the bearer token for the handshake.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

type Options struct {
	URL            string
	Tokens         TokenSource
	Observer       Observer
	Logger         *slog.Logger
	Dialer         *websocket.Dialer
	ReconnectDelay time.Duration
}

// Listener keeps a websocket open to the backend's call status channel and
// forwards every status frame to the Observer.
type Listener struct {
	url      string
	tokens   TokenSource
	observer Observer
	log      *slog.Logger
	dialer   *websocket.Dialer
	delay    time.Duration
}

func NewListener(opts Options) (*Listener, error) {
	if opts.URL == "" {
		return nil, errors.New("signaling: url is required")
	}
	if opts.Observer == nil {
		return nil, errors.New("signaling: observer is required")
	}
	l := &Listener{
		url:      opts.URL,
		tokens:   opts.Tokens,
		observer: opts.Observer,
		log:      opts.Logger,
		dialer:   opts.Dialer,
		delay:    opts.ReconnectDelay,
	}
	if l.log == nil {
		l.log = slog.Default()
	}
	if l.dialer == nil {
		l.dialer = websocket.DefaultDialer
	}
	if l.delay <= 0 {
		l.delay = DefaultReconnectDelay
	}
	return l, nil
}

// Run connects and reconnects until ctx ends. It always returns ctx.Err().
func (l *Listener) Run(ctx context.Context) error {
	for {
		err := l.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		l.log.Warn("signaling connection lost", "err", err, "retry_in", l.delay)

		t := time.NewTimer(l.delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (l *Listener) session(ctx context.Context) error {
	header := http.Header{}
	if l.tokens != nil {
		tok, err := l.tokens.AccessToken(ctx)
		if err != nil {
			return fmt.Errorf("access token: %w", err)
		}
		if tok != "" {
			header.Set("Authorization", "Bearer "+tok)
		}
	}

	conn, resp, err := l.dialer.DialContext(ctx, l.url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	l.log.Info("signaling connected", "url", l.url)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			conn.Close()
		case <-done:
			conn.Close()
		}
	}()

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return errors.New("closed by server")
			}
			return fmt.Errorf("read: %w", err)
		}
		p, ok := decode(msg)
		if !ok {
			l.log.Debug("signaling frame ignored", "type", msg.Type)
			continue
		}
		l.log.Debug("call status received", "call_id", p.CallID, "status", p.Status)
		l.observer.ObserveStatus(ctx, p.CallID, p.Status)
	}
}
