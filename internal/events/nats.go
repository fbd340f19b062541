package events

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSChannel implements Channel over a NATS connection.
//
// The connection reconnects forever with a fixed wait; NATS re-establishes
// all subscriptions after a reconnect, which gives every joined identity its
// "rejoin on reconnect" semantics without bookkeeping here.
type NATSChannel struct {
	conn *nats.Conn
}

var _ Channel = (*NATSChannel)(nil)

// NewNATSChannel connects to NATS with automatic reconnection support.
// Extra nats.Option values (e.g. credentials) can be appended.
func NewNATSChannel(url string, opts ...nats.Option) (*NATSChannel, error) {
	defaults := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("push channel disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("push channel reconnected", "url", nc.ConnectedUrl())
		}),
	}
	nc, err := nats.Connect(url, append(defaults, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return &NATSChannel{conn: nc}, nil
}

// Join subscribes to the identity's resolved and cancelled subjects and fans
// both into one typed channel. Call the returned cancel function to leave.
func (c *NATSChannel) Join(identity string) (<-chan Event, func(), error) {
	ch := make(chan Event, 16)

	var (
		mu     sync.Mutex
		closed bool
		once   sync.Once
	)

	deliver := func(kind Kind) func(*nats.Msg) {
		return func(_ *nats.Msg) {
			mu.Lock()
			defer mu.Unlock()
			if closed {
				return
			}
			select {
			case ch <- Event{Kind: kind, Identity: identity, ReceivedAt: time.Now()}:
			default:
				// Drop if the consumer is behind; the fallback poll covers
				// a missed signal.
			}
		}
	}

	subResolved, err := c.conn.Subscribe(ResolvedSubject(identity), deliver(KindResolved))
	if err != nil {
		close(ch)
		return nil, nil, fmt.Errorf("subscribing to %s: %w", ResolvedSubject(identity), err)
	}
	subCancelled, err := c.conn.Subscribe(CancelledSubject(identity), deliver(KindCancelled))
	if err != nil {
		_ = subResolved.Unsubscribe()
		close(ch)
		return nil, nil, fmt.Errorf("subscribing to %s: %w", CancelledSubject(identity), err)
	}
	// Flush ensures the subscriptions are registered on the server before
	// returning, so that events published on other connections are routed.
	if err := c.conn.Flush(); err != nil {
		_ = subResolved.Unsubscribe()
		_ = subCancelled.Unsubscribe()
		close(ch)
		return nil, nil, fmt.Errorf("flushing subscriptions: %w", err)
	}

	cancel := func() {
		once.Do(func() {
			_ = subResolved.Unsubscribe()
			_ = subCancelled.Unsubscribe()
			mu.Lock()
			closed = true
			mu.Unlock()
			// Drain remaining events so senders don't block, then close.
			for {
				select {
				case <-ch:
				default:
					close(ch)
					return
				}
			}
		})
	}

	return ch, cancel, nil
}

func (c *NATSChannel) Close() error {
	c.conn.Close()
	return nil
}
