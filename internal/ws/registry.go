// internal/ws/registry.go
package ws

import (
	"context"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"

	"github.com/sixdegrees/wikirace/internal/room"
)

// PingInterval is how often the liveness monitor probes every connection.
// A peer that cannot answer within one interval is pruned, which bounds how
// long a dead room member can silently miss broadcasts.
const PingInterval = 30 * time.Second

// Client binds a websocket to its room-facing connection handle. Session
// state stays with the read pump that owns it; the pinger never touches it.
type Client struct {
	sock   *websocket.Conn
	conn   *room.Conn
	remote string
}

// Registry tracks every live connection so the liveness monitor can probe
// them.
type Registry struct {
	mu      sync.Mutex
	log     *logrus.Logger
	clients map[*Client]struct{}
}

// NewRegistry returns an empty connection registry.
func NewRegistry(logger *logrus.Logger) *Registry {
	return &Registry{
		log:     logger,
		clients: make(map[*Client]struct{}),
	}
}

// Add registers a freshly accepted connection.
func (reg *Registry) Add(c *Client) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.clients[c] = struct{}{}
}

// Remove drops a connection; called when its handler exits.
func (reg *Registry) Remove(c *Client) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	delete(reg.clients, c)
}

// Len reports how many connections are live.
func (reg *Registry) Len() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.clients)
}

func (reg *Registry) snapshot() []*Client {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	clients := make([]*Client, 0, len(reg.clients))
	for c := range reg.clients {
		clients = append(clients, c)
	}
	return clients
}

// Run probes every registered connection on each tick until ctx is done.
// A failed ping force-closes the socket; the connection's read pump then
// errors out and cascades into the normal disconnect path.
func (reg *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, c := range reg.snapshot() {
				go reg.ping(ctx, c, interval/2)
			}
		}
	}
}

func (reg *Registry) ping(ctx context.Context, c *Client, timeout time.Duration) {
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := c.sock.Ping(pingCtx); err != nil {
		reg.log.WithFields(logrus.Fields{
			"remote": c.remote,
			"conn":   c.conn.ID,
		}).Warnf("ping failed, closing connection: %v", err)
		_ = c.sock.Close(websocket.StatusGoingAway, "ping timeout")
	}
}
