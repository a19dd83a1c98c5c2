// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package push

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// conn adapts a WebSocket connection to session.Conn. Writes are
// serialised so a client sees its messages in send order.
type conn struct {
	sync.Mutex

	ws      *websocket.Conn
	addr    string
	timeout time.Duration
	missed  int32
	once    sync.Once
}

func newConn(ws *websocket.Conn, timeout time.Duration) *conn {
	return &conn{
		ws:      ws,
		addr:    ws.RemoteAddr().String(),
		timeout: timeout,
	}
}

func (c *conn) Send(v interface{}) error {
	c.Lock()
	defer c.Unlock()

	if err := c.ws.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return err
	}
	return c.ws.WriteJSON(v)
}

func (c *conn) RemoteAddr() string {
	return c.addr
}

func (c *conn) ping() error {
	c.Lock()
	defer c.Unlock()

	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.timeout))
}

func (c *conn) Close() error {
	return c.closeWith(websocket.CloseNormalClosure, "")
}

// closeWith sends a close frame with code and closes the socket, once
func (c *conn) closeWith(code int, reason string) error {
	var err error
	c.once.Do(func() {
		c.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason), time.Now().Add(c.timeout))
		c.Unlock()
		err = c.ws.Close()
	})
	return err
}
