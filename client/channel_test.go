package client

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/munkholm-systems/lagerpuls/internal/event"
)

type pushServer struct {
	server *httptest.Server
	conns  chan *websocket.Conn
	dials  atomic.Int64
}

func newPushServer(t *testing.T) *pushServer {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	ps := &pushServer{conns: make(chan *websocket.Conn, 8)}
	ps.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ps.dials.Add(1)
		ps.conns <- conn
		// Hold the connection open until the peer goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(ps.server.Close)
	return ps
}

func (ps *pushServer) url() string {
	return "ws" + strings.TrimPrefix(ps.server.URL, "http")
}

func (ps *pushServer) nextConn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-ps.conns:
		return conn
	case <-time.After(5 * time.Second):
		t.Fatal("client never connected")
		return nil
	}
}

func mustFrame(t *testing.T, kind event.Kind, item event.Item) event.Frame {
	t.Helper()
	data, err := json.Marshal(item)
	if err != nil {
		t.Fatalf("failed to encode item: %v", err)
	}
	return event.Frame{Event: "ReceiveUpdate", Kind: kind, Data: data}
}

func TestListenersShareOneConnection(t *testing.T) {
	ps := newPushServer(t)
	channel := NewChannel(Config{URL: ps.url(), ReconnectWait: 50 * time.Millisecond})
	t.Cleanup(channel.Close)

	first := make(chan event.Frame, 1)
	second := make(chan event.Frame, 1)
	removeFirst := channel.On("ReceiveUpdate", func(frame event.Frame) { first <- frame })
	defer removeFirst()
	removeSecond := channel.On("ReceiveUpdate", func(frame event.Frame) { second <- frame })
	defer removeSecond()

	conn := ps.nextConn(t)
	if err := conn.WriteJSON(mustFrame(t, event.KindInsert, event.Item{ID: 7})); err != nil {
		t.Fatalf("failed to push frame: %v", err)
	}

	for _, stream := range []chan event.Frame{first, second} {
		select {
		case frame := <-stream:
			if frame.Kind != event.KindInsert {
				t.Fatalf("unexpected frame: %#v", frame)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("listener did not receive frame")
		}
	}

	if ps.dials.Load() != 1 {
		t.Fatalf("expected one shared connection, got %d dials", ps.dials.Load())
	}
}

func TestRemovedListenerStopsReceiving(t *testing.T) {
	ps := newPushServer(t)
	channel := NewChannel(Config{URL: ps.url(), ReconnectWait: 50 * time.Millisecond})
	t.Cleanup(channel.Close)

	removed := make(chan event.Frame, 1)
	kept := make(chan event.Frame, 1)
	removeRemoved := channel.On("ReceiveUpdate", func(frame event.Frame) { removed <- frame })
	removeKept := channel.On("ReceiveUpdate", func(frame event.Frame) { kept <- frame })
	defer removeKept()

	conn := ps.nextConn(t)
	removeRemoved()

	if err := conn.WriteJSON(mustFrame(t, event.KindInsert, event.Item{ID: 1})); err != nil {
		t.Fatalf("failed to push frame: %v", err)
	}

	select {
	case <-kept:
	case <-time.After(5 * time.Second):
		t.Fatal("remaining listener did not receive frame")
	}
	select {
	case <-removed:
		t.Fatal("removed listener still received a frame")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestChannelReconnectsAfterDrop(t *testing.T) {
	ps := newPushServer(t)
	channel := NewChannel(Config{URL: ps.url(), ReconnectWait: 20 * time.Millisecond})
	t.Cleanup(channel.Close)

	frames := make(chan event.Frame, 4)
	remove := channel.On("ReceiveUpdate", func(frame event.Frame) { frames <- frame })
	defer remove()

	first := ps.nextConn(t)
	if err := first.WriteJSON(mustFrame(t, event.KindInsert, event.Item{ID: 1})); err != nil {
		t.Fatalf("failed to push first frame: %v", err)
	}
	select {
	case <-frames:
	case <-time.After(5 * time.Second):
		t.Fatal("did not receive frame before drop")
	}

	// Drop the connection; the client must redial on its own.
	first.Close()

	second := ps.nextConn(t)
	if err := second.WriteJSON(mustFrame(t, event.KindUpdate, event.Item{ID: 1, Maengde: 2})); err != nil {
		t.Fatalf("failed to push frame after reconnect: %v", err)
	}
	select {
	case frame := <-frames:
		if frame.Kind != event.KindUpdate {
			t.Fatalf("unexpected frame after reconnect: %#v", frame)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("did not receive frame after reconnect")
	}

	if ps.dials.Load() != 2 {
		t.Fatalf("expected exactly two dials, got %d", ps.dials.Load())
	}
}

func TestReconnectDoesNotCorruptBoundCollection(t *testing.T) {
	ps := newPushServer(t)
	channel := NewChannel(Config{URL: ps.url(), ReconnectWait: 20 * time.Millisecond})
	t.Cleanup(channel.Close)

	collection := NewCollection(nil)
	unbind := collection.Bind(channel, "ReceiveUpdate")
	defer unbind()

	first := ps.nextConn(t)
	if err := first.WriteJSON(mustFrame(t, event.KindInsert, event.Item{ID: 7, Navn: "Mælk"})); err != nil {
		t.Fatalf("failed to push frame: %v", err)
	}
	waitForLen(t, collection, 1)

	first.Close()

	second := ps.nextConn(t)
	if err := second.WriteJSON(mustFrame(t, event.KindDelete, event.Item{ID: 7})); err != nil {
		t.Fatalf("failed to push frame after reconnect: %v", err)
	}
	waitForLen(t, collection, 0)

	if _, ok := collection.Get(7); ok {
		t.Fatal("expected row removed after reconnect")
	}
}

func TestCloseStopsConnectionLoop(t *testing.T) {
	ps := newPushServer(t)
	channel := NewChannel(Config{URL: ps.url(), ReconnectWait: 10 * time.Millisecond})

	remove := channel.On("ReceiveUpdate", func(event.Frame) {})
	defer remove()
	ps.nextConn(t)

	channel.Close()

	// No redial after close.
	time.Sleep(100 * time.Millisecond)
	if ps.dials.Load() != 1 {
		t.Fatalf("expected no redial after close, got %d dials", ps.dials.Load())
	}
}

func waitForLen(t *testing.T, collection *Collection, expected int) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for collection.Len() != expected {
		select {
		case <-deadline:
			t.Fatalf("collection never reached %d rows, has %d", expected, collection.Len())
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestPanickingHandlerDoesNotKillConnection(t *testing.T) {
	ps := newPushServer(t)
	channel := NewChannel(Config{URL: ps.url(), ReconnectWait: 20 * time.Millisecond})
	t.Cleanup(channel.Close)

	frames := make(chan event.Frame, 2)
	removeBroken := channel.On("ReceiveUpdate", func(event.Frame) { panic("handler bug") })
	defer removeBroken()
	removeHealthy := channel.On("ReceiveUpdate", func(frame event.Frame) { frames <- frame })
	defer removeHealthy()

	conn := ps.nextConn(t)
	if err := conn.WriteJSON(mustFrame(t, event.KindInsert, event.Item{ID: 1})); err != nil {
		t.Fatalf("failed to push first frame: %v", err)
	}
	select {
	case <-frames:
	case <-time.After(5 * time.Second):
		t.Fatal("healthy listener did not receive first frame")
	}

	// The connection must have survived the panic: a second frame over the
	// same connection still reaches the healthy listener.
	if err := conn.WriteJSON(mustFrame(t, event.KindUpdate, event.Item{ID: 1, Maengde: 2})); err != nil {
		t.Fatalf("failed to push second frame: %v", err)
	}
	select {
	case frame := <-frames:
		if frame.Kind != event.KindUpdate {
			t.Fatalf("unexpected second frame: %#v", frame)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("connection did not survive the panicking handler")
	}

	if ps.dials.Load() != 1 {
		t.Fatalf("expected the original connection to survive, got %d dials", ps.dials.Load())
	}
}

func TestSharedChannelIsConstructedOnce(t *testing.T) {
	ps := newPushServer(t)
	t.Cleanup(CloseShared)
	CloseShared()

	first := Shared(Config{URL: ps.url(), ReconnectWait: 20 * time.Millisecond})
	// A later call returns the existing channel and ignores its config.
	second := Shared(Config{URL: "ws://other-host/realtime/beholdning"})
	if first != second {
		t.Fatal("expected the same shared channel instance")
	}

	frames := make(chan event.Frame, 1)
	remove := second.On("ReceiveUpdate", func(frame event.Frame) { frames <- frame })
	defer remove()

	conn := ps.nextConn(t)
	if err := conn.WriteJSON(mustFrame(t, event.KindInsert, event.Item{ID: 7})); err != nil {
		t.Fatalf("failed to push frame: %v", err)
	}
	select {
	case <-frames:
	case <-time.After(5 * time.Second):
		t.Fatal("shared channel kept the later config instead of the first")
	}
}

func TestCloseSharedAllowsRebuild(t *testing.T) {
	ps := newPushServer(t)
	t.Cleanup(CloseShared)
	CloseShared()

	first := Shared(Config{URL: ps.url(), ReconnectWait: 20 * time.Millisecond})
	CloseShared()

	rebuilt := Shared(Config{URL: ps.url(), ReconnectWait: 20 * time.Millisecond})
	if rebuilt == first {
		t.Fatal("expected a fresh channel after CloseShared")
	}

	frames := make(chan event.Frame, 1)
	remove := rebuilt.On("ReceiveUpdate", func(frame event.Frame) { frames <- frame })
	defer remove()

	conn := ps.nextConn(t)
	if err := conn.WriteJSON(mustFrame(t, event.KindInsert, event.Item{ID: 1})); err != nil {
		t.Fatalf("failed to push frame: %v", err)
	}
	select {
	case <-frames:
	case <-time.After(5 * time.Second):
		t.Fatal("rebuilt shared channel never delivered")
	}
}
