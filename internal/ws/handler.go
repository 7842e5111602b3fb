// internal/ws/handler.go
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"

	"github.com/sixdegrees/wikirace/internal/room"
)

const writeTimeout = 5 * time.Second

// Handler upgrades HTTP requests to the race WebSocket and runs the
// connection's read loop until the peer goes away. No authentication: rooms
// are anonymous and addressed by code alone.
func Handler(logger *logrus.Logger, router *Router, reg *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sock, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: []string{"*"}, // Adjust in production
		})
		if err != nil {
			logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer sock.Close(websocket.StatusInternalError, "handler finished")

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		conn := room.NewConn()
		sess := &room.Session{}

		client := &Client{
			sock:   sock,
			conn:   conn,
			remote: r.RemoteAddr,
		}
		reg.Add(client)
		defer reg.Remove(client)

		logger.WithField("remote", r.RemoteAddr).Info("websocket connected")

		go writePump(ctx, sock, conn, logger)

		readPump(ctx, sock, router, conn, sess, logger)

		// Closing the connection is the only cancellation primitive: it
		// cascades synchronously into room cleanup.
		router.Disconnect(conn, sess)
		logger.WithField("remote", r.RemoteAddr).Info("websocket disconnected")
	}
}

// readPump consumes inbound frames until the connection closes or errors.
func readPump(ctx context.Context, sock *websocket.Conn, router *Router, conn *room.Conn, sess *room.Session, logger *logrus.Logger) {
	for {
		typ, data, err := sock.Read(ctx)
		if err != nil {
			closeStatus := websocket.CloseStatus(err)
			switch {
			case closeStatus == websocket.StatusNormalClosure || closeStatus == websocket.StatusGoingAway:
			case strings.Contains(err.Error(), "context canceled"):
			default:
				logger.Warnf("read error for conn %s: %v", conn.ID, err)
			}
			return
		}
		if typ != websocket.MessageText {
			logger.Warnf("ignoring non-text message from conn %s", conn.ID)
			continue
		}
		router.Dispatch(conn, sess, data)
	}
}

// writePump drains the connection's outbound queue onto the wire.
func writePump(ctx context.Context, sock *websocket.Conn, conn *room.Conn, logger *logrus.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-conn.Out:
			if !ok {
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				logger.Warnf("failed to marshal outbound %T for conn %s: %v", msg, conn.ID, err)
				continue
			}

			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err = sock.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				logger.Warnf("write failed for conn %s: %v", conn.ID, err)
				return
			}
		}
	}
}
