package realtime

import (
	"bytes"
	"errors"
	"sync"
	"time"

	"flowtrack/backend/internal/logging"

	"github.com/gorilla/websocket"
)

const (
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
)

var ErrConnClosed = errors.New("connection closed")

var pongFrame = []byte(`{"type":"pong"}`)

// Conn adapts a gorilla websocket connection to Channel. Writes are
// serialised; reads happen only in ReadPump.
type Conn struct {
	ws        *websocket.Conn
	writeWait time.Duration

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

func NewConn(ws *websocket.Conn, writeWait time.Duration) *Conn {
	if writeWait <= 0 {
		writeWait = 10 * time.Second
	}
	return &Conn{ws: ws, writeWait: writeWait, done: make(chan struct{})}
}

func (c *Conn) Send(payload []byte) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}

func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Close marks the connection done and closes the socket. Safe to call more
// than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)

		c.writeMu.Lock()
		_ = c.ws.SetWriteDeadline(time.Now().Add(time.Second))
		_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()

		err = c.ws.Close()
	})
	return err
}

// ReadPump consumes client frames until the peer goes away, answering
// {"type":"ping"} with {"type":"pong"}. It closes the connection on exit.
func (c *Conn) ReadPump() {
	defer c.Close()

	c.ws.SetReadLimit(maxMessageSize)
	if err := c.ws.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logging.Warn().Err(err).Msg("unexpected websocket close")
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))

		if isPing(data) {
			if err := c.Send(pongFrame); err != nil {
				return
			}
		}
	}
}

// KeepAlive sends protocol pings until the connection is done.
func (c *Conn) KeepAlive() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeWait))
			c.writeMu.Unlock()
			if err != nil {
				_ = c.Close()
				return
			}
		}
	}
}

func isPing(data []byte) bool {
	compact := bytes.ReplaceAll(bytes.TrimSpace(data), []byte(" "), nil)
	return bytes.Equal(compact, []byte(`{"type":"ping"}`)) || bytes.Equal(bytes.TrimSpace(data), []byte("ping"))
}
