package hub

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/munkholm-systems/lagerpuls/internal/event"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// The peer must answer a ping within this window.
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 4 * 1024
)

var upgrader = websocket.Upgrader{
	// The channel carries no credentials and the ingest side is trusted
	// infrastructure; cross-origin browsers are expected subscribers.
	CheckOrigin: func(*http.Request) bool { return true },
}

// serveSubscriber upgrades the request and pumps broadcast frames to the
// peer until it disconnects or stops answering pings.
func (h *httpHandler) serveSubscriber(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	connectionID := uuid.NewString()
	logger := h.logger.With(
		zap.String("connection_id", connectionID),
		zap.String("remote_addr", r.RemoteAddr))
	logger.Info("push client connected")
	defer logger.Info("push client disconnected")

	stream, cleanup := h.dispatcher.Subscribe(r.Context())
	defer cleanup()

	// Reader goroutine: consume control frames and surface the close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(maxMessageSize)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	pingTicker := time.NewTicker(pingPeriod)
	defer pingTicker.Stop()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case frame, ok := <-stream:
			if !ok {
				return
			}
			if err := writeFrame(conn, frame); err != nil {
				logger.Debug("push write failed", zap.Error(err))
				return
			}
		case <-pingTicker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeFrame(conn *websocket.Conn, frame event.Frame) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(frame)
}
