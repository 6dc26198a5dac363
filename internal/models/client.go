// internal/models/client.go
package models

import (
	log "github.com/sirupsen/logrus"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// Client is a connection identity: one authenticated (or guest) websocket
// peer. The protocol dispatcher owns the transport half (Conn, OutChan); game
// sessions reference clients by ID only and never touch the connection.
type Client struct {
	ID            uuid.UUID `json:"id"`
	Username      string    `json:"username"`
	Authenticated bool      `json:"authenticated"`
	Guest         bool      `json:"guest"`
	Connected     bool      `json:"connected"`

	Conn *websocket.Conn `json:"-"`

	// OutChan carries outbound payloads to the client's write pump. Writes
	// are non-blocking; a full or closed channel drops the message.
	OutChan chan interface{} `json:"-"`

	// Cancel tears down the goroutines attached to this connection.
	Cancel func() `json:"-"`
}

// Write pushes a payload onto the client's OutChan without blocking. Logs if
// the message had to be dropped because the channel is closed or full.
func (c *Client) Write(payload interface{}) {
	if c.OutChan == nil {
		return
	}
	select {
	case c.OutChan <- payload:
	default:
		log.Printf("Client %s (%s): OutChan closed or full, dropped outbound message.", c.ID, c.Username)
	}
}

// WriteError is a convenience for sending a structured error reply.
func (c *Client) WriteError(msg string) {
	c.Write(map[string]interface{}{
		"type":    "error",
		"message": msg,
	})
}
