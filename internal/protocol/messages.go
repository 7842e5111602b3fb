// Package protocol defines the JSON frames exchanged over the race WebSocket.
// Every frame carries a "type" discriminant; payload shapes are fixed per kind
// so handlers never poke at untyped maps.
package protocol

import "github.com/sixdegrees/wikirace/internal/models"

// Inbound message kinds (client -> server).
const (
	MsgCreateRoom       = "create_room"
	MsgJoinRoom         = "join_room"
	MsgStartGame        = "start_game"
	MsgPlayerFinished   = "player_finished"
	MsgPlayerProgress   = "player_progress"
	MsgPlayerReady      = "player_ready"
	MsgPlayerToLobby    = "player_to_lobby"
	MsgRoomSettings     = "room_settings"
	MsgLobbyReady       = "lobby_ready"
	MsgProfileUpdate    = "profile_update"
	MsgUpdateMaxPlayers = "update_max_players"
)

// Outbound message kinds (server -> client).
const (
	MsgRoomCreated       = "room_created"
	MsgRoomJoined        = "room_joined"
	MsgPlayerJoined      = "player_joined"
	MsgPlayerLeft        = "player_left"
	MsgHostLeft          = "host_left"
	MsgRoomClosed        = "room_closed"
	MsgLobbyReadyUpdate  = "lobby_ready_update"
	MsgPlayersUpdate     = "players_update"
	MsgGameStarted       = "game_started"
	MsgGameFinished      = "game_finished"
	MsgAllReady          = "all_ready"
	MsgHostToLobby       = "host_to_lobby"
	MsgReturnToLobby     = "return_to_lobby"
	MsgMaxPlayersUpdated = "max_players_updated"
	MsgError             = "error"
)

// Envelope carries the discriminant; the payload is re-decoded per kind.
type Envelope struct {
	Type string `json:"type"`
}

// --- inbound payloads ---

type CreateRoom struct {
	PlayerName  string        `json:"playerName"`
	Color       string        `json:"color"`
	BorderStyle string        `json:"borderStyle"`
	AvatarURL   string        `json:"avatarUrl"`
	Level       int           `json:"level"`
	XP          int           `json:"xp"`
	Title       *models.Title `json:"title"`
	MaxPlayers  int           `json:"maxPlayers"`
}

type JoinRoom struct {
	Code        string        `json:"code"`
	PlayerName  string        `json:"playerName"`
	Color       string        `json:"color"`
	BorderStyle string        `json:"borderStyle"`
	AvatarURL   string        `json:"avatarUrl"`
	Level       int           `json:"level"`
	XP          int           `json:"xp"`
	Title       *models.Title `json:"title"`
}

type StartGame struct {
	StartArticle  string `json:"startArticle"`
	TargetArticle string `json:"targetArticle"`
}

type PlayerFinished struct {
	Time          string `json:"time"`
	TargetArticle string `json:"targetArticle"`
}

type PlayerProgress struct {
	CurrentArticle string `json:"currentArticle"`
	Clicks         int    `json:"clicks"`
}

// RoomSettings is a sparse update: nil fields keep their prior value.
type RoomSettings struct {
	Death404Mode     *bool           `json:"death404Mode"`
	Modifiers        map[string]bool `json:"modifiers"`
	TimeLimitSeconds *int            `json:"timeLimitSeconds"`
	MaxPlayers       *int            `json:"maxPlayers"`
}

// LobbyReady toggles when Ready is nil, otherwise sets the given value.
type LobbyReady struct {
	Ready *bool `json:"ready"`
}

type ProfileUpdate struct {
	Color       string `json:"color"`
	BorderStyle string `json:"borderStyle"`
	AvatarURL   string `json:"avatarUrl"`
}

type UpdateMaxPlayers struct {
	MaxPlayers int `json:"maxPlayers"`
}

// --- outbound payloads ---

// PlayerInfo is one roster row as shown to clients.
type PlayerInfo struct {
	Name        string        `json:"name"`
	ID          string        `json:"id"`
	Color       string        `json:"color"`
	BorderStyle string        `json:"borderStyle"`
	AvatarURL   string        `json:"avatarUrl"`
	Ready       bool          `json:"ready"`
	Score       int           `json:"score"`
	Wins        int           `json:"wins"`
	Level       int           `json:"level"`
	XP          int           `json:"xp"`
	Title       *models.Title `json:"title"`
}

// LeaderboardEntry is one row of a finished round's score table.
type LeaderboardEntry struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
	Wins  int    `json:"wins"`
	Color string `json:"color"`
}

type RoomCreated struct {
	Type    string       `json:"type"`
	Code    string       `json:"code"`
	Players []PlayerInfo `json:"players"`
}

type RoomJoined struct {
	Type    string       `json:"type"`
	Code    string       `json:"code"`
	Players []PlayerInfo `json:"players"`
}

// Roster carries the current player list; used for player_joined, player_left,
// lobby_ready_update, players_update and player_ready frames.
type Roster struct {
	Type    string       `json:"type"`
	Players []PlayerInfo `json:"players"`
}

// Signal is a bare frame with no payload (host_left, room_closed, all_ready).
type Signal struct {
	Type string `json:"type"`
}

type RoomSettingsState struct {
	Type             string          `json:"type"`
	Death404Mode     bool            `json:"death404Mode"`
	Modifiers        map[string]bool `json:"modifiers"`
	TimeLimitSeconds int             `json:"timeLimitSeconds"`
	MaxPlayers       int             `json:"maxPlayers"`
}

type GameStarted struct {
	Type             string          `json:"type"`
	StartArticle     string          `json:"startArticle"`
	TargetArticle    string          `json:"targetArticle"`
	Death404Mode     bool            `json:"death404Mode"`
	Modifiers        map[string]bool `json:"modifiers"`
	TimeLimitSeconds int             `json:"timeLimitSeconds"`
}

type GameFinished struct {
	Type          string             `json:"type"`
	Winner        string             `json:"winner"`
	Time          string             `json:"time"`
	TargetArticle string             `json:"targetArticle"`
	Leaderboard   []LeaderboardEntry `json:"leaderboard"`
	Players       []PlayerInfo       `json:"players"`
}

type ProgressUpdate struct {
	Type           string `json:"type"`
	PlayerName     string `json:"playerName"`
	CurrentArticle string `json:"currentArticle"`
	Clicks         int    `json:"clicks"`
}

type HostToLobby struct {
	Type      string `json:"type"`
	Countdown int    `json:"countdown"`
}

type ReturnToLobby struct {
	Type    string       `json:"type"`
	Code    string       `json:"code"`
	Players []PlayerInfo `json:"players"`
}

type MaxPlayersUpdated struct {
	Type       string `json:"type"`
	MaxPlayers int    `json:"maxPlayers"`
}

type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewError wraps a message in an error frame.
func NewError(message string) Error {
	return Error{Type: MsgError, Message: message}
}
