package server

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"secure_chat/internal/model"
	"secure_chat/internal/utils/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 30 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBufSize    = 128
	sendTimeout    = 2 * time.Second
)

// wsConn is one live device socket: a read pump dispatching inbound
// events and a write pump draining the egress buffer.
type wsConn struct {
	id     string
	userID string
	conn   *websocket.Conn
	egress chan model.WsEvent
	done   chan struct{}
	once   sync.Once
}

func newWSConn(id, userID string, conn *websocket.Conn) *wsConn {
	return &wsConn{
		id:     id,
		userID: userID,
		conn:   conn,
		egress: make(chan model.WsEvent, sendBufSize),
		done:   make(chan struct{}),
	}
}

// Send enqueues an event for delivery. Non-blocking beyond the send
// timeout: a stalled socket drops the event rather than holding up the
// broadcaster.
func (c *wsConn) Send(ev model.WsEvent) bool {
	select {
	case <-c.done:
		return false
	case c.egress <- ev:
		return true
	case <-time.After(sendTimeout):
		return false
	}
}

func (c *wsConn) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

func (c *wsConn) readPump(s *HttpServer) {
	defer func() {
		s.dropConnection(c)
		c.close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var ev model.WsEvent
		if err := c.conn.ReadJSON(&ev); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
			) {
				log.Debug("unexpected websocket close",
					zap.String("connID", c.id),
					zap.Error(err),
				)
			}
			return
		}
		s.handleClientEvent(c, ev)
	}
}

func (c *wsConn) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			return
		case ev := <-c.egress:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(ev); err != nil {
				log.Debug("websocket write failed",
					zap.String("connID", c.id),
					zap.Error(err),
				)
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
