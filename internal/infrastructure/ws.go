package infra

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

var (
	writeWait    = 10 * time.Second
	pongWait     = 30 * time.Second
	pingInterval = pongWait * 9 / 10
)

// MessageHandler handles one inbound message, returning an error closes the connection
type MessageHandler func(conn *websocket.Conn, messageType int, payload []byte) error

// Websocket upgrades requests and keeps connections alive with ping/pong
type Websocket struct {
	upgrader     websocket.Upgrader
	maxReadBytes int64
}

// NewWebsocket create a Websocket, inbound messages larger than maxReadBytes close the connection
func NewWebsocket(maxReadBytes int64) *Websocket {
	return &Websocket{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			HandshakeTimeout: 3 * time.Second,
		},
		maxReadBytes: maxReadBytes,
	}
}

// Serve upgrades the request and feeds every message to handler until the peer
// goes away. It blocks for the lifetime of the connection, so anything handler
// needs from the echo context must be resolved before calling Serve.
func (ws *Websocket) Serve(c echo.Context, handler MessageHandler) error {
	conn, err := ws.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader already replied with an error status
		return nil
	}
	defer conn.Close()

	if ws.maxReadBytes > 0 {
		conn.SetReadLimit(ws.maxReadBytes)
	}
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go heartbeatRoutine(conn, done)

	for {
		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			return nil
		}
		if err := handler(conn, messageType, payload); err != nil {
			return nil
		}
		// a long running handler must not starve the pong deadline
		conn.SetReadDeadline(time.Now().Add(pongWait))
	}
}

// WriteJSON write v with the default write deadline
func WriteJSON(conn *websocket.Conn, v interface{}) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

func heartbeatRoutine(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
