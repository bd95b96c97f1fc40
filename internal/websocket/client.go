// internal/websocket/client.go
package websocket

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait       = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod     = (pongWait * 9) / 10 // Must be less than pongWait.
	maxMessageSize = 512
	sendBuffer     = 256
)

// ErrBufferFull is returned when a client's send buffer cannot take another frame.
var ErrBufferFull = errors.New("websocket: send buffer full")

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	Hub       *Hub
	Conn      *websocket.Conn
	Namespace string
	Send      chan []byte
}

func NewClient(hub *Hub, conn *websocket.Conn, namespace string) *Client {
	return &Client{Hub: hub, Conn: conn, Namespace: namespace, Send: make(chan []byte, sendBuffer)}
}

// Queue encodes an event into the client's send buffer without blocking.
// It is meant for replaying state before RegisterClient hands the channel
// to the hub.
func (c *Client) Queue(event string, payload any) error {
	msg, err := json.Marshal(Envelope{Type: event, Payload: payload})
	if err != nil {
		return err
	}
	select {
	case c.Send <- msg:
		return nil
	default:
		return ErrBufferFull
	}
}

func (c *Client) remote() string {
	if c.Conn == nil {
		return "local"
	}
	return c.Conn.RemoteAddr().String()
}

// ReadPump drains the connection so control frames (close, pong) are
// processed. Dashboards never send data frames; any that arrive are ignored.
func (c *Client) ReadPump() {
	defer func() {
		select {
		case c.Hub.unregister <- c:
		case <-c.Hub.done:
		}
		c.Conn.Close()
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error { return c.Conn.SetReadDeadline(time.Now().Add(pongWait)) })
	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Warn("read error", zap.String("remote", c.remote()), zap.Error(err))
			}
			return
		}
	}
}

// WritePump writes queued frames to the connection, one frame per event.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.Hub.logger.Debug("write error", zap.String("remote", c.remote()), zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
