package client

import (
	"encoding/json"
	"sync"

	"github.com/munkholm-systems/lagerpuls/internal/event"
)

// Collection is the in-memory materialized view of the beholdning table:
// an ordered list of rows unique by id, seeded from a full snapshot and
// mutated only by applying push events afterwards.
//
// Reconciliation is last-event-wins by row id. An update for an unknown id
// is dropped rather than upserted, so an update arriving before its insert
// is lost instead of corrupting the view; duplicate inserts are appended as
// received.
type Collection struct {
	mu    sync.Mutex
	items []event.Item
}

// NewCollection seeds the view from an initial snapshot.
func NewCollection(snapshot []event.Item) *Collection {
	items := make([]event.Item, len(snapshot))
	copy(items, snapshot)
	return &Collection{items: items}
}

// Apply mutates the view for one event. Unknown kinds are ignored.
func (c *Collection) Apply(kind event.Kind, item event.Item) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch kind {
	case event.KindInsert:
		c.items = append(c.items, item)
	case event.KindUpdate:
		for i := range c.items {
			if c.items[i].ID == item.ID {
				c.items[i] = item
				return
			}
		}
	case event.KindDelete:
		for i := range c.items {
			if c.items[i].ID == item.ID {
				c.items = append(c.items[:i], c.items[i+1:]...)
				return
			}
		}
	}
}

// ApplyFrame decodes a push frame and applies it. Under the enrich policy
// the payload is the flat item; under passthrough it is the raw change
// envelope, recognized by its record/old_record maps and mapped through the
// same column translation (display names stay empty, ids still reconcile).
// Decoding is best-effort: fields absent from the payload stay zero-valued,
// matching the view's tolerance for sparse events.
func (c *Collection) ApplyFrame(frame event.Frame) {
	var item event.Item
	if len(frame.Data) > 0 {
		var envelope event.ChangeEvent
		if err := json.Unmarshal(frame.Data, &envelope); err == nil && (envelope.Record != nil || envelope.OldRecord != nil) {
			item = event.ItemFromRow(envelope.Row())
		} else {
			_ = json.Unmarshal(frame.Data, &item)
		}
	}
	c.Apply(frame.Kind, item)
}

// Bind subscribes the collection to a named push event on the channel and
// returns the unsubscribe function for the host's teardown.
func (c *Collection) Bind(channel *Channel, eventName string) func() {
	return channel.On(eventName, c.ApplyFrame)
}

// Items returns a copy of the current view.
func (c *Collection) Items() []event.Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	items := make([]event.Item, len(c.items))
	copy(items, c.items)
	return items
}

// Len reports the current number of rows.
func (c *Collection) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Get returns the row with the given id, if present.
func (c *Collection) Get(id int64) (event.Item, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, item := range c.items {
		if item.ID == id {
			return item, true
		}
	}
	return event.Item{}, false
}
