// Package client consumes the hub's push channel: one shared websocket
// connection per process, a reference-counted listener registry, and a
// collection reconciler that keeps a loaded snapshot current.
package client

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/munkholm-systems/lagerpuls/internal/event"
	"go.uber.org/zap"
)

const defaultReconnectWait = 2 * time.Second

// Handler receives one decoded push frame.
type Handler func(event.Frame)

// Config carries the connection settings for a Channel.
type Config struct {
	// URL is the hub's subscription endpoint (ws:// or wss://).
	URL string
	// ReconnectWait is the pause between redial attempts after a drop.
	ReconnectWait time.Duration
	Dialer        *websocket.Dialer
	Logger        *zap.Logger
}

// Channel is a long-lived push-channel connection shared by any number of
// listeners. The underlying websocket is dialed lazily on the first On call
// and redialed automatically after a drop; events sent while disconnected
// are lost, never replayed.
type Channel struct {
	url           string
	reconnectWait time.Duration
	dialer        *websocket.Dialer
	logger        *zap.Logger

	mu        sync.Mutex
	listeners map[string]map[int64]Handler
	nextID    int64
	started   bool
	closed    bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewChannel returns an unconnected Channel.
func NewChannel(cfg Config) *Channel {
	reconnectWait := cfg.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = defaultReconnectWait
	}
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Channel{
		url:           cfg.URL,
		reconnectWait: reconnectWait,
		dialer:        dialer,
		logger:        logger,
		listeners:     make(map[string]map[int64]Handler),
	}
}

var (
	sharedMu      sync.Mutex
	sharedChannel *Channel
)

// Shared returns the process-wide Channel, constructing it on first use.
// Later calls return the existing channel and ignore cfg.
func Shared(cfg Config) *Channel {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if sharedChannel == nil {
		sharedChannel = NewChannel(cfg)
	}
	return sharedChannel
}

// CloseShared tears down the process-wide Channel if one exists.
func CloseShared() {
	sharedMu.Lock()
	channel := sharedChannel
	sharedChannel = nil
	sharedMu.Unlock()
	if channel != nil {
		channel.Close()
	}
}

// On registers a handler for a named push event and returns its removal
// function. Any number of listeners share the single connection; the first
// registration starts it.
func (c *Channel) On(eventName string, handler Handler) func() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return func() {}
	}
	c.nextID++
	id := c.nextID
	if _, ok := c.listeners[eventName]; !ok {
		c.listeners[eventName] = make(map[int64]Handler)
	}
	c.listeners[eventName][id] = handler
	c.startLocked()
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			if handlers, ok := c.listeners[eventName]; ok {
				delete(handlers, id)
				if len(handlers) == 0 {
					delete(c.listeners, eventName)
				}
			}
			c.mu.Unlock()
		})
	}
}

// Close stops the connection loop and waits for it to exit. Registered
// listeners are discarded.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.listeners = make(map[string]map[int64]Handler)
	cancel := c.cancel
	done := c.done
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (c *Channel) startLocked() {
	if c.started {
		return
	}
	c.started = true
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(ctx)
}

// run dials, reads frames, and redials after any failure until Close.
func (c *Channel) run(ctx context.Context) {
	defer close(c.done)

	for {
		if ctx.Err() != nil {
			return
		}
		conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
		if err != nil {
			c.logger.Warn("push channel dial failed", zap.Error(err))
			if !c.sleep(ctx) {
				return
			}
			continue
		}
		c.logger.Info("push channel connected", zap.String("url", c.url))

		c.readFrames(ctx, conn)
		conn.Close()

		if ctx.Err() != nil {
			return
		}
		c.logger.Warn("push channel disconnected, reconnecting")
		if !c.sleep(ctx) {
			return
		}
	}
}

func (c *Channel) readFrames(ctx context.Context, conn *websocket.Conn) {
	// Unblock the read when Close is called mid-connection.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	for {
		var frame event.Frame
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		c.dispatch(frame)
	}
}

func (c *Channel) dispatch(frame event.Frame) {
	c.mu.Lock()
	handlers := make([]Handler, 0, len(c.listeners[frame.Event]))
	for _, handler := range c.listeners[frame.Event] {
		handlers = append(handlers, handler)
	}
	c.mu.Unlock()

	for _, handler := range handlers {
		c.invoke(frame, handler)
	}
}

// invoke shields the connection loop from handler bugs: a panicking handler
// loses its one frame, not the shared connection.
func (c *Channel) invoke(frame event.Frame, handler Handler) {
	defer func() {
		if recovered := recover(); recovered != nil {
			c.logger.Error("push handler panicked",
				zap.String("event", frame.Event),
				zap.Any("panic", recovered))
		}
	}()
	handler(frame)
}

func (c *Channel) sleep(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(c.reconnectWait):
		return true
	}
}
