// internal/ws/router.go
package ws

import (
	"encoding/json"

	"github.com/sirupsen/logrus"

	"github.com/sixdegrees/wikirace/internal/protocol"
	"github.com/sixdegrees/wikirace/internal/room"
)

// Router deserializes inbound frames and dispatches them by kind to the room
// manager. Unknown kinds are ignored so older servers tolerate newer clients;
// undecodable frames are logged and dropped, never fatal to the connection.
type Router struct {
	mgr *room.Manager
	log *logrus.Logger
}

// NewRouter builds a Router around the given manager.
func NewRouter(mgr *room.Manager, logger *logrus.Logger) *Router {
	return &Router{mgr: mgr, log: logger}
}

// Dispatch handles one inbound frame on behalf of conn.
func (rt *Router) Dispatch(conn *room.Conn, sess *room.Session, data []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		rt.log.Warnf("dropping malformed frame from conn %s: %v", conn.ID, err)
		return
	}

	switch env.Type {
	case protocol.MsgCreateRoom:
		var p protocol.CreateRoom
		if !rt.decode(conn, data, &p) {
			return
		}
		rt.mgr.CreateRoom(conn, sess, p)

	case protocol.MsgJoinRoom:
		var p protocol.JoinRoom
		if !rt.decode(conn, data, &p) {
			return
		}
		// Join failures already answered the caller with an error frame.
		_ = rt.mgr.JoinRoom(conn, sess, p)

	case protocol.MsgStartGame:
		var p protocol.StartGame
		if !rt.decode(conn, data, &p) {
			return
		}
		rt.mgr.StartGame(conn, sess, p)

	case protocol.MsgPlayerFinished:
		var p protocol.PlayerFinished
		if !rt.decode(conn, data, &p) {
			return
		}
		rt.mgr.Finish(conn, sess, p)

	case protocol.MsgPlayerProgress:
		var p protocol.PlayerProgress
		if !rt.decode(conn, data, &p) {
			return
		}
		rt.mgr.Progress(conn, sess, p)

	case protocol.MsgPlayerReady:
		rt.mgr.PlayerReady(conn, sess)

	case protocol.MsgPlayerToLobby:
		rt.mgr.ReturnToLobby(conn, sess)

	case protocol.MsgRoomSettings:
		var p protocol.RoomSettings
		if !rt.decode(conn, data, &p) {
			return
		}
		rt.mgr.UpdateSettings(conn, sess, p)

	case protocol.MsgLobbyReady:
		var p protocol.LobbyReady
		if !rt.decode(conn, data, &p) {
			return
		}
		rt.mgr.LobbyReady(conn, sess, p)

	case protocol.MsgProfileUpdate:
		var p protocol.ProfileUpdate
		if !rt.decode(conn, data, &p) {
			return
		}
		rt.mgr.UpdateProfile(conn, sess, p)

	case protocol.MsgUpdateMaxPlayers:
		var p protocol.UpdateMaxPlayers
		if !rt.decode(conn, data, &p) {
			return
		}
		rt.mgr.UpdateMaxPlayers(conn, sess, p)

	default:
		rt.log.Debugf("ignoring unknown frame type %q from conn %s", env.Type, conn.ID)
	}
}

// Disconnect cascades a closed connection into room cleanup.
func (rt *Router) Disconnect(conn *room.Conn, sess *room.Session) {
	rt.mgr.Disconnect(conn, sess)
}

func (rt *Router) decode(conn *room.Conn, data []byte, v any) bool {
	if err := json.Unmarshal(data, v); err != nil {
		rt.log.Warnf("dropping malformed %T from conn %s: %v", v, conn.ID, err)
		return false
	}
	return true
}
