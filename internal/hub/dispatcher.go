// Package hub receives forwarded change events over HTTP and fans them out
// to every connected push-channel client.
package hub

import (
	"context"
	"sync"

	"github.com/munkholm-systems/lagerpuls/internal/event"
)

// Dispatcher is the in-process broadcast registry. Every frame goes to every
// subscriber; there is no topic partitioning. Sends are non-blocking, so a
// subscriber that stops draining its stream loses frames instead of delaying
// the rest.
type Dispatcher struct {
	mu          sync.RWMutex
	subscribers map[int64]*subscriber
	nextID      int64
	bufferSize  int
}

type subscriber struct {
	id     int64
	stream chan event.Frame
}

// NewDispatcher returns an empty broadcast registry.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		subscribers: make(map[int64]*subscriber),
		bufferSize:  16,
	}
}

// Subscribe registers a new broadcast consumer. The stream is torn down when
// ctx is cancelled or the returned cleanup runs.
func (d *Dispatcher) Subscribe(ctx context.Context) (<-chan event.Frame, func()) {
	sub := &subscriber{
		id:     d.nextSequence(),
		stream: make(chan event.Frame, d.bufferSize),
	}
	d.register(sub)
	cleanup := func() {
		d.unregister(sub.id)
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return sub.stream, cleanup
}

// Broadcast delivers the frame to all current subscribers, fire-and-forget.
func (d *Dispatcher) Broadcast(frame event.Frame) {
	d.mu.RLock()
	copies := make([]*subscriber, 0, len(d.subscribers))
	for _, sub := range d.subscribers {
		copies = append(copies, sub)
	}
	d.mu.RUnlock()

	for _, sub := range copies {
		select {
		case sub.stream <- frame:
		default:
		}
	}
}

// SubscriberCount reports the number of connected consumers.
func (d *Dispatcher) SubscriberCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers)
}

func (d *Dispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *Dispatcher) register(sub *subscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subscribers[sub.id] = sub
}

func (d *Dispatcher) unregister(id int64) {
	d.mu.Lock()
	delete(d.subscribers, id)
	d.mu.Unlock()
}
