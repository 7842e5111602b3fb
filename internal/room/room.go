// internal/room/room.go
package room

import (
	"sync"

	"github.com/google/uuid"
	"github.com/sixdegrees/wikirace/internal/models"
	"github.com/sixdegrees/wikirace/internal/protocol"
)

// Default room settings, applied at creation and overridable by the host.
const (
	DefaultMaxPlayers       = 8
	MinPlayers              = 2
	MaxPlayersCap           = 16
	DefaultTimeLimitSeconds = 120
	DefaultColor            = "#b45328"
	DefaultBorderStyle      = "none"
)

// Player is a membership record scoped to one room, not a global identity.
type Player struct {
	Conn *Conn

	Name        string
	ID          string
	Color       string
	BorderStyle string
	AvatarURL   string

	Score       int
	Wins        int
	GamesPlayed int

	Ready   bool
	InLobby bool

	Level int
	XP    int
	Title *models.Title
}

// Winner records who took the current round.
type Winner struct {
	Name          string
	Time          string
	TargetArticle string
}

// Room is an ephemeral multiplayer session addressed by a short code.
// All mutation happens under mu; handlers for different connections may race
// to touch the same room.
type Room struct {
	mu sync.Mutex

	Code string
	Host *Conn

	// Players keeps insertion order; index 0 is the creator.
	Players []*Player

	MaxPlayers       int
	Death404Mode     bool
	Modifiers        map[string]bool
	TimeLimitSeconds int

	GameStarted  bool
	GameFinished bool

	StartArticle  string
	TargetArticle string
	Winner        *Winner

	// closing is set once the host has left; the room refuses joins while it
	// waits out the teardown grace period.
	closing bool
}

func newRoom(code string, maxPlayers int) *Room {
	if maxPlayers < MinPlayers || maxPlayers > MaxPlayersCap {
		maxPlayers = DefaultMaxPlayers
	}
	return &Room{
		Code:             code,
		Players:          make([]*Player, 0, maxPlayers),
		MaxPlayers:       maxPlayers,
		Modifiers:        map[string]bool{},
		TimeLimitSeconds: DefaultTimeLimitSeconds,
	}
}

// newPlayer normalizes client-supplied profile fields into a membership record.
func newPlayer(conn *Conn, name, color, borderStyle, avatarURL string, level, xp int, title *models.Title) *Player {
	if color == "" {
		color = DefaultColor
	}
	if borderStyle == "" {
		borderStyle = DefaultBorderStyle
	}
	if level < 1 {
		level = 1
	}
	if xp < 0 {
		xp = 0
	}
	return &Player{
		Conn:        conn,
		Name:        name,
		ID:          uuid.NewString(),
		Color:       color,
		BorderStyle: borderStyle,
		AvatarURL:   avatarURL,
		Level:       level,
		XP:          xp,
		Title:       title,
	}
}

// playerByConn finds the membership owned by conn. Assumes mu is held.
func (r *Room) playerByConn(conn *Conn) *Player {
	for _, p := range r.Players {
		if p.Conn == conn {
			return p
		}
	}
	return nil
}

// hasName reports whether any current member uses the exact name.
// Assumes mu is held.
func (r *Room) hasName(name string) bool {
	for _, p := range r.Players {
		if p.Name == name {
			return true
		}
	}
	return false
}

// roster snapshots the player list as wire rows. Assumes mu is held.
func (r *Room) roster() []protocol.PlayerInfo {
	infos := make([]protocol.PlayerInfo, 0, len(r.Players))
	for _, p := range r.Players {
		infos = append(infos, protocol.PlayerInfo{
			Name:        p.Name,
			ID:          p.ID,
			Color:       p.Color,
			BorderStyle: p.BorderStyle,
			AvatarURL:   p.AvatarURL,
			Ready:       p.Ready,
			Score:       p.Score,
			Wins:        p.Wins,
			Level:       p.Level,
			XP:          p.XP,
			Title:       p.Title,
		})
	}
	return infos
}

// settingsState snapshots the room settings as a wire frame. Assumes mu is held.
func (r *Room) settingsState() protocol.RoomSettingsState {
	return protocol.RoomSettingsState{
		Type:             protocol.MsgRoomSettings,
		Death404Mode:     r.Death404Mode,
		Modifiers:        r.Modifiers,
		TimeLimitSeconds: r.TimeLimitSeconds,
		MaxPlayers:       r.MaxPlayers,
	}
}

// broadcast sends msg to every member. Sends are non-blocking, so holding mu
// while broadcasting cannot stall the room. Assumes mu is held.
func (r *Room) broadcast(msg any) {
	for _, p := range r.Players {
		p.Conn.Send(msg)
	}
}

// broadcastExcept sends msg to every member but the given connection.
// Assumes mu is held.
func (r *Room) broadcastExcept(conn *Conn, msg any) {
	for _, p := range r.Players {
		if p.Conn != conn {
			p.Conn.Send(msg)
		}
	}
}

// allReady reports whether every member has confirmed for a rematch. A lone
// player never counts as "all ready". Assumes mu is held.
func (r *Room) allReady() bool {
	if len(r.Players) <= 1 {
		return false
	}
	for _, p := range r.Players {
		if !p.Ready {
			return false
		}
	}
	return true
}
