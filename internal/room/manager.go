// internal/room/manager.go
package room

import (
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sixdegrees/wikirace/internal/protocol"
)

// Join-time failures, surfaced to the offending client only as error frames.
var (
	ErrRoomNotFound       = errors.New("room not found")
	ErrGameAlreadyStarted = errors.New("game already started")
	ErrRoomFull           = errors.New("room is full")
	ErrDuplicateName      = errors.New("a player with that name is already in the room")
)

// DefaultGraceDelay is how long a room survives after its host leaves, and how
// long the host's return-to-lobby countdown runs.
const DefaultGraceDelay = 5 * time.Second

// Manager owns room lifecycle and game session coordination. Each operation
// resolves the caller's room, takes that room's lock, mutates, and broadcasts
// the resulting state. Privileged operations re-check host identity inline;
// non-host callers are silently ignored rather than answered with errors.
type Manager struct {
	store *Store
	log   *logrus.Logger

	// CloseGrace delays room teardown after a host disconnect; LobbyDelay
	// delays the reset after a host returns to the lobby. Both default to
	// DefaultGraceDelay and are shortened in tests.
	CloseGrace time.Duration
	LobbyDelay time.Duration

	// OnResult, when set, receives a record of every finished round.
	OnResult func(ResultRecord)
}

// NewManager wires a Manager around an injected store.
func NewManager(store *Store, logger *logrus.Logger) *Manager {
	return &Manager{
		store:      store,
		log:        logger,
		CloseGrace: DefaultGraceDelay,
		LobbyDelay: DefaultGraceDelay,
	}
}

// Store exposes the underlying room store.
func (m *Manager) Store() *Store { return m.store }

// roomFor resolves the caller's current room from its session.
func (m *Manager) roomFor(sess *Session) (*Room, bool) {
	if sess.RoomCode == "" {
		return nil, false
	}
	return m.store.Get(sess.RoomCode)
}

// CreateRoom builds a fresh room with the caller as sole member and host.
// It cannot fail: codes are regenerated until unique.
func (m *Manager) CreateRoom(conn *Conn, sess *Session, p protocol.CreateRoom) {
	r := m.store.Create(p.MaxPlayers)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.Host = conn
	host := newPlayer(conn, p.PlayerName, p.Color, p.BorderStyle, p.AvatarURL, p.Level, p.XP, p.Title)
	r.Players = append(r.Players, host)

	sess.RoomCode = r.Code
	sess.PlayerName = p.PlayerName

	m.log.WithFields(logrus.Fields{"room": r.Code, "player": p.PlayerName}).Info("room created")

	conn.Send(protocol.RoomCreated{
		Type:    protocol.MsgRoomCreated,
		Code:    r.Code,
		Players: r.roster(),
	})
}

// JoinRoom adds the caller to an existing room. The joiner's own confirmation
// is sent before other members are notified.
func (m *Manager) JoinRoom(conn *Conn, sess *Session, p protocol.JoinRoom) error {
	r, ok := m.store.Get(p.Code)
	if !ok {
		conn.SendError(ErrRoomNotFound.Error())
		return ErrRoomNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// A room whose host already left is torn down shortly; treat it as gone.
	if r.closing {
		conn.SendError(ErrRoomNotFound.Error())
		return ErrRoomNotFound
	}
	if r.GameStarted {
		conn.SendError(ErrGameAlreadyStarted.Error())
		return ErrGameAlreadyStarted
	}
	if len(r.Players) >= r.MaxPlayers {
		conn.SendError(ErrRoomFull.Error())
		return ErrRoomFull
	}
	if r.hasName(p.PlayerName) {
		conn.SendError(ErrDuplicateName.Error())
		return ErrDuplicateName
	}

	player := newPlayer(conn, p.PlayerName, p.Color, p.BorderStyle, p.AvatarURL, p.Level, p.XP, p.Title)
	r.Players = append(r.Players, player)

	sess.RoomCode = r.Code
	sess.PlayerName = p.PlayerName

	roster := r.roster()

	// Joiner first: its confirmation and the room's configured settings, then
	// the announcement to everyone else.
	conn.Send(protocol.RoomJoined{
		Type:    protocol.MsgRoomJoined,
		Code:    r.Code,
		Players: roster,
	})
	conn.Send(r.settingsState())
	r.broadcastExcept(conn, protocol.Roster{Type: protocol.MsgPlayerJoined, Players: roster})

	m.log.WithFields(logrus.Fields{"room": r.Code, "player": p.PlayerName}).Info("player joined")
	return nil
}

// UpdateSettings applies a sparse settings update. Host-only; calls from other
// members are silent no-ops. The merged settings go to every member except the
// sender, who already has them.
func (m *Manager) UpdateSettings(conn *Conn, sess *Session, p protocol.RoomSettings) {
	r, ok := m.roomFor(sess)
	if !ok {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Host != conn {
		return
	}

	if p.Death404Mode != nil {
		r.Death404Mode = *p.Death404Mode
	}
	if p.Modifiers != nil {
		r.Modifiers = p.Modifiers
	}
	if p.TimeLimitSeconds != nil {
		r.TimeLimitSeconds = *p.TimeLimitSeconds
	}
	if p.MaxPlayers != nil && *p.MaxPlayers >= MinPlayers && *p.MaxPlayers <= MaxPlayersCap {
		r.MaxPlayers = *p.MaxPlayers
	}

	r.broadcastExcept(conn, r.settingsState())
}

// UpdateMaxPlayers changes the room capacity. Host-only; values outside
// [MinPlayers, MaxPlayersCap] are ignored. Lowering the cap never evicts
// current members; it only gates future joins.
func (m *Manager) UpdateMaxPlayers(conn *Conn, sess *Session, p protocol.UpdateMaxPlayers) {
	r, ok := m.roomFor(sess)
	if !ok {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Host != conn {
		return
	}
	if p.MaxPlayers < MinPlayers || p.MaxPlayers > MaxPlayersCap {
		return
	}

	r.MaxPlayers = p.MaxPlayers
	r.broadcast(protocol.MaxPlayersUpdated{
		Type:       protocol.MsgMaxPlayersUpdated,
		MaxPlayers: p.MaxPlayers,
	})
}

// LobbyReady flips the caller's ready flag (or sets it explicitly) and
// broadcasts the full roster so every lobby shows the same checkmarks.
func (m *Manager) LobbyReady(conn *Conn, sess *Session, p protocol.LobbyReady) {
	r, ok := m.roomFor(sess)
	if !ok {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	player := r.playerByConn(conn)
	if player == nil {
		return
	}
	if p.Ready != nil {
		player.Ready = *p.Ready
	} else {
		player.Ready = !player.Ready
	}

	r.broadcast(protocol.Roster{Type: protocol.MsgLobbyReadyUpdate, Players: r.roster()})
}

// UpdateProfile changes the caller's cosmetic fields and rebroadcasts the
// roster to everyone, sender included.
func (m *Manager) UpdateProfile(conn *Conn, sess *Session, p protocol.ProfileUpdate) {
	r, ok := m.roomFor(sess)
	if !ok {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	player := r.playerByConn(conn)
	if player == nil {
		return
	}
	if p.Color != "" {
		player.Color = p.Color
	}
	if p.BorderStyle != "" {
		player.BorderStyle = p.BorderStyle
	}
	player.AvatarURL = p.AvatarURL

	r.broadcast(protocol.Roster{Type: protocol.MsgPlayersUpdate, Players: r.roster()})
}

// Disconnect removes the caller from its room. An emptied room is deleted
// immediately. A departing host notifies the remaining members and schedules
// teardown after the grace delay; departure of any other member just shrinks
// the roster.
func (m *Manager) Disconnect(conn *Conn, sess *Session) {
	r, ok := m.roomFor(sess)
	code := sess.RoomCode
	sess.Clear()
	if !ok {
		return
	}

	r.mu.Lock()

	removed := false
	for i, p := range r.Players {
		if p.Conn == conn {
			r.Players = append(r.Players[:i], r.Players[i+1:]...)
			removed = true
			break
		}
	}
	if !removed {
		r.mu.Unlock()
		return
	}

	if len(r.Players) == 0 {
		r.mu.Unlock()
		m.store.Delete(code)
		return
	}

	if r.Host == conn {
		// Host departure ends the race: warn survivors now, close the room
		// after the grace delay.
		r.closing = true
		r.broadcast(protocol.Signal{Type: protocol.MsgHostLeft})
		r.mu.Unlock()

		m.log.WithField("room", code).Info("host left, room closing after grace period")
		time.AfterFunc(m.CloseGrace, func() { m.closeRoom(code, r) })
		return
	}

	r.broadcast(protocol.Roster{Type: protocol.MsgPlayerLeft, Players: r.roster()})
	r.mu.Unlock()
}

// closeRoom finishes a host-left teardown. The code must still resolve to the
// same room: it may have been deleted during the grace window, and its code
// may even have been reissued to a brand-new room.
func (m *Manager) closeRoom(code string, r *Room) {
	got, ok := m.store.Get(code)
	if !ok || got != r {
		return
	}

	r.mu.Lock()
	r.broadcast(protocol.Signal{Type: protocol.MsgRoomClosed})
	r.mu.Unlock()

	m.store.Delete(code)
	m.log.WithField("room", code).Info("room closed")
}
