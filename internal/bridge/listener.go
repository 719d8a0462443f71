// Package bridge subscribes to row-change notifications on the datastore
// and forwards each one, best-effort, to the hub's ingestion endpoint.
package bridge

import (
	"context"
	"errors"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// pingInterval bounds how long a dead connection can go unnoticed when no
// notifications arrive.
const pingInterval = 90 * time.Second

var errMissingForwarder = errors.New("forwarder dependency is required")

// ListenerConfig carries the subscription settings.
type ListenerConfig struct {
	DSN           string
	NotifyChannel string
	MinReconnect  time.Duration
	MaxReconnect  time.Duration
	Forwarder     *Forwarder
	Logger        *zap.Logger
}

// Listener holds the long-lived LISTEN subscription. Reconnects after a
// drop are handled by the underlying pq listener; events missed while
// disconnected are lost, which the relay accepts.
type Listener struct {
	pq        *pq.Listener
	channel   string
	forwarder *Forwarder
	logger    *zap.Logger
}

// NewListener establishes the subscription. An unreachable datastore is
// fatal here at startup; drops after this point are logged and survived.
func NewListener(cfg ListenerConfig) (*Listener, error) {
	if cfg.Forwarder == nil {
		return nil, errMissingForwarder
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	minReconnect := cfg.MinReconnect
	if minReconnect <= 0 {
		minReconnect = 10 * time.Second
	}
	maxReconnect := cfg.MaxReconnect
	if maxReconnect < minReconnect {
		maxReconnect = time.Minute
	}

	pqListener := pq.NewListener(cfg.DSN, minReconnect, maxReconnect, func(eventType pq.ListenerEventType, err error) {
		switch eventType {
		case pq.ListenerEventDisconnected:
			logger.Warn("notification connection lost", zap.Error(err))
		case pq.ListenerEventReconnected:
			logger.Info("notification connection restored")
		case pq.ListenerEventConnectionAttemptFailed:
			logger.Warn("notification reconnect attempt failed", zap.Error(err))
		}
	})
	if err := pqListener.Listen(cfg.NotifyChannel); err != nil {
		_ = pqListener.Close()
		return nil, err
	}

	logger.Info("subscribed to change notifications", zap.String("channel", cfg.NotifyChannel))
	return &Listener{
		pq:        pqListener,
		channel:   cfg.NotifyChannel,
		forwarder: cfg.Forwarder,
		logger:    logger,
	}, nil
}

// Run consumes notifications until ctx is cancelled. Each payload is handed
// to the forwarder on its own goroutine; in-flight posts may complete out of
// order at the hub, which the pipeline tolerates.
func (l *Listener) Run(ctx context.Context) error {
	defer l.pq.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case notification := <-l.pq.Notify:
			if notification == nil {
				// Emitted after a reconnect; the channel subscription is
				// re-established automatically, nothing to replay.
				l.logger.Info("notification stream resumed")
				continue
			}
			payload := []byte(notification.Extra)
			l.logger.Debug("change notification received",
				zap.String("channel", notification.Channel),
				zap.Int("bytes", len(payload)))
			go l.deliver(ctx, payload)
		case <-time.After(pingInterval):
			go func() {
				if err := l.pq.Ping(); err != nil {
					l.logger.Warn("notification ping failed", zap.Error(err))
				}
			}()
		}
	}
}

func (l *Listener) deliver(ctx context.Context, payload []byte) {
	if err := l.forwarder.Forward(ctx, payload); err != nil {
		l.logger.Warn("event dropped", zap.Error(err))
	}
}
