// internal/room/conn.go
package room

import (
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/sixdegrees/wikirace/internal/protocol"
)

// outBufferSize bounds how many frames may queue per connection before drops.
const outBufferSize = 16

// Conn is a single client's presence on the race server. The transport layer
// owns the socket; room code only ever pushes frames onto Out.
type Conn struct {
	ID uuid.UUID

	// Out feeds the connection's write pump. Sends are non-blocking: a slow
	// or dead peer drops frames instead of stalling delivery to others.
	Out chan any
}

// NewConn builds a connection handle with a buffered outbound queue.
func NewConn() *Conn {
	return &Conn{
		ID:  uuid.New(),
		Out: make(chan any, outBufferSize),
	}
}

// Send pushes a frame onto the outbound queue without blocking. Frames for a
// full or abandoned queue are dropped and logged.
func (c *Conn) Send(msg any) {
	select {
	case c.Out <- msg:
	default:
		log.Warnf("conn %s: outbound queue full, dropped frame %T", c.ID, msg)
	}
}

// SendError sends an error frame to this connection only.
func (c *Conn) SendError(message string) {
	c.Send(protocol.NewError(message))
}

// Session is the application-side metadata attached to a connection: which
// room it currently occupies and under what display name. It lives beside the
// transport handle rather than on it, and is owned by the connection's reader
// goroutine.
type Session struct {
	RoomCode   string
	PlayerName string
}

// Clear resets the session after a room membership ends.
func (s *Session) Clear() {
	s.RoomCode = ""
	s.PlayerName = ""
}
