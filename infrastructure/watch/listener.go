// Package watch listens for catalog drop notifications raised by the
// ai._vectorizer_handle_drops event trigger.
package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
)

// Channel is the notification channel of the drop event trigger.
const Channel = "ai_vectorizer_drop"

// DefaultReconnectDelay is the initial wait before reconnecting a lost listener.
const DefaultReconnectDelay = time.Second

const maxReconnectDelay = time.Minute

// Drop reports that a table backing a vectorizer was dropped.
type Drop struct {
	VectorizerID int64  `json:"id"`
	Schema       string `json:"schema"`
	Name         string `json:"name"`
}

// ParseDrop decodes a notification payload.
func ParseDrop(payload string) (Drop, error) {
	var d Drop
	if err := json.Unmarshal([]byte(payload), &d); err != nil {
		return Drop{}, fmt.Errorf("decode drop notification: %w", err)
	}
	if d.VectorizerID <= 0 {
		return Drop{}, fmt.Errorf("decode drop notification: missing vectorizer id in %q", payload)
	}
	return d, nil
}

// HandlerFunc receives drop notifications.
type HandlerFunc func(ctx context.Context, d Drop)

// Listener holds a dedicated connection on Channel and reconnects with
// exponential backoff when it is lost.
type Listener struct {
	url            string
	reconnectDelay time.Duration
	logger         *slog.Logger
}

// NewListener creates a Listener for the database at url.
func NewListener(url string, logger *slog.Logger) Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return Listener{
		url:            url,
		reconnectDelay: DefaultReconnectDelay,
		logger:         logger.With("component", "watch"),
	}
}

// Listen blocks, passing each notification to handle, until ctx is done.
func (l Listener) Listen(ctx context.Context, handle HandlerFunc) error {
	delay := l.reconnectDelay
	for {
		err := l.session(ctx, handle, func() { delay = l.reconnectDelay })
		if ctx.Err() != nil {
			return ctx.Err()
		}
		l.logger.Warn("drop listener disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("delay", delay),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = min(delay*2, maxReconnectDelay)
	}
}

// session runs one connection until it fails. connected is called once LISTEN
// succeeds.
func (l Listener) session(ctx context.Context, handle HandlerFunc, connected func()) error {
	conn, err := pgx.Connect(ctx, l.url)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer func() { _ = conn.Close(context.WithoutCancel(ctx)) }()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{Channel}.Sanitize()); err != nil {
		return fmt.Errorf("listen %s: %w", Channel, err)
	}
	connected()
	l.logger.Info("listening for drops", slog.String("channel", Channel))

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		d, err := ParseDrop(n.Payload)
		if err != nil {
			l.logger.Warn("ignoring notification", slog.String("error", err.Error()))
			continue
		}
		handle(ctx, d)
	}
}
