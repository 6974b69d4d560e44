package ws

import (
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ConnConfig tunes socket keepalive behaviour.
type ConnConfig struct {
	WriteTimeout time.Duration
	PongTimeout  time.Duration
	PingInterval time.Duration
}

func (c ConnConfig) withDefaults() ConnConfig {
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = 60 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 25 * time.Second
	}
	return c
}

// ServeConn drives one websocket session: a write pump delivering hub events
// and pings, and a read loop handling subscribe/unsubscribe control messages.
// Blocks until the connection drops, then tears the client down.
func (h *Hub) ServeConn(conn *websocket.Conn, client *Client, cfg ConnConfig) {
	cfg = cfg.withDefaults()

	go h.writePump(conn, client, cfg)
	h.readPump(conn, client, cfg)
}

func (h *Hub) readPump(conn *websocket.Conn, client *Client, cfg ConnConfig) {
	defer func() {
		h.Close(client)
		_ = conn.Close()
	}()

	_ = conn.SetReadDeadline(time.Now().Add(cfg.PongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(cfg.PongTimeout))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("progress socket closed unexpectedly", zap.String("client_id", client.ID), zap.Error(err))
			}
			return
		}

		msg, err := ParseClientMessage(data)
		if err != nil {
			h.logger.Debug("ignoring malformed client message", zap.String("client_id", client.ID), zap.Error(err))
			continue
		}

		switch msg.Type {
		case MessageSubscribe:
			h.Subscribe(client, msg.JobID)
		case MessageUnsubscribe:
			h.Unsubscribe(client, msg.JobID)
		default:
			// Unknown message types are ignored per the channel contract.
		}
	}
}

func (h *Hub) writePump(conn *websocket.Conn, client *Client, cfg ConnConfig) {
	ticker := time.NewTicker(cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case <-client.done:
			_ = conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case evt, ok := <-client.Outbound:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if err := conn.WriteJSON(evt); err != nil {
				h.logger.Debug("progress write failed", zap.String("client_id", client.ID), zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
