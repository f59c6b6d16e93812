package signal

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"ring_home/native/internal/domain"

	"github.com/gorilla/websocket"
)

const writeTimeout = 5 * time.Second

// WSDialer opens signalling connections with gorilla/websocket.
type WSDialer struct {
	Dialer *websocket.Dialer
}

// NewWSDialer returns a dialer using the gorilla default settings.
func NewWSDialer() *WSDialer {
	return &WSDialer{Dialer: websocket.DefaultDialer}
}

// Dial connects to url and returns a text-frame connection.
func (d *WSDialer) Dial(ctx context.Context, url string, header http.Header) (domain.Conn, error) {
	conn, resp, err := d.Dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial: %w (http %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	return &wsConn{conn: conn}, nil
}

// wsConn serializes writes; gorilla allows one concurrent writer.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *wsConn) WriteMessage(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	c.mu.Lock()
	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	c.mu.Unlock()
	return c.conn.Close()
}
