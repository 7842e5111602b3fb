// internal/room/game.go
//
// Game session coordination: start broadcast, progress relay, win detection
// and scoring, rematch gating, return-to-lobby reset. The server never reads
// encyclopedia content itself; whichever player_finished frame arrives first
// wins, and the server is only the arbiter of arrival order.
package room

import (
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sixdegrees/wikirace/internal/protocol"
)

// Round scoring: the winner takes winScore and a win, everyone else present
// takes participationScore; all members' games-played counters advance.
const (
	winScore           = 100
	participationScore = 10
)

// ResultRecord summarizes a finished round for downstream consumers.
type ResultRecord struct {
	RoomCode      string
	Winner        string
	Time          string
	TargetArticle string
	Leaderboard   []protocol.LeaderboardEntry
}

// StartGame begins a round. Host-only; non-host calls are silent no-ops.
// Ready flags reset so rematch gating starts clean, and every member receives
// the same game_started frame.
func (m *Manager) StartGame(conn *Conn, sess *Session, p protocol.StartGame) {
	r, ok := m.roomFor(sess)
	if !ok {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Host != conn {
		return
	}

	r.GameStarted = true
	r.GameFinished = false
	r.Winner = nil
	r.StartArticle = p.StartArticle
	r.TargetArticle = p.TargetArticle
	for _, player := range r.Players {
		player.Ready = false
	}

	m.log.WithFields(logrus.Fields{
		"room":   r.Code,
		"start":  p.StartArticle,
		"target": p.TargetArticle,
	}).Info("game started")

	r.broadcast(protocol.GameStarted{
		Type:             protocol.MsgGameStarted,
		StartArticle:     r.StartArticle,
		TargetArticle:    r.TargetArticle,
		Death404Mode:     r.Death404Mode,
		Modifiers:        r.Modifiers,
		TimeLimitSeconds: r.TimeLimitSeconds,
	})
}

// Progress relays the caller's live location to every other member. Nothing
// is retained server-side.
func (m *Manager) Progress(conn *Conn, sess *Session, p protocol.PlayerProgress) {
	r, ok := m.roomFor(sess)
	if !ok {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.broadcastExcept(conn, protocol.ProgressUpdate{
		Type:           protocol.MsgPlayerProgress,
		PlayerName:     sess.PlayerName,
		CurrentArticle: p.CurrentArticle,
		Clicks:         p.Clicks,
	})
}

// Finish handles a player_finished claim. The first claim of a round wins;
// later claims for the same round are no-ops so scores are never awarded
// twice. Broadcasts game_finished with the round leaderboard (score
// descending, ties keeping roster order) and the updated roster.
func (m *Manager) Finish(conn *Conn, sess *Session, p protocol.PlayerFinished) {
	r, ok := m.roomFor(sess)
	if !ok {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.GameStarted || r.GameFinished {
		return
	}

	r.GameFinished = true
	r.Winner = &Winner{
		Name:          sess.PlayerName,
		Time:          p.Time,
		TargetArticle: p.TargetArticle,
	}

	for _, player := range r.Players {
		player.GamesPlayed++
		if player.Conn == conn {
			player.Wins++
			player.Score += winScore
		} else {
			player.Score += participationScore
		}
	}

	leaderboard := make([]protocol.LeaderboardEntry, 0, len(r.Players))
	for _, player := range r.Players {
		leaderboard = append(leaderboard, protocol.LeaderboardEntry{
			Name:  player.Name,
			Score: player.Score,
			Wins:  player.Wins,
			Color: player.Color,
		})
	}
	sort.SliceStable(leaderboard, func(i, j int) bool {
		return leaderboard[i].Score > leaderboard[j].Score
	})

	m.log.WithFields(logrus.Fields{
		"room":   r.Code,
		"winner": r.Winner.Name,
		"time":   r.Winner.Time,
	}).Info("game finished")

	r.broadcast(protocol.GameFinished{
		Type:          protocol.MsgGameFinished,
		Winner:        r.Winner.Name,
		Time:          r.Winner.Time,
		TargetArticle: r.Winner.TargetArticle,
		Leaderboard:   leaderboard,
		Players:       r.roster(),
	})

	if m.OnResult != nil {
		rec := ResultRecord{
			RoomCode:      r.Code,
			Winner:        r.Winner.Name,
			Time:          r.Winner.Time,
			TargetArticle: r.Winner.TargetArticle,
			Leaderboard:   leaderboard,
		}
		go m.OnResult(rec)
	}
}

// PlayerReady marks the caller ready for a rematch. Readiness here is
// one-directional: there is no un-ready between rounds. Once everyone in a
// multi-player room is ready, the host gets an all_ready signal enabling the
// next StartGame.
func (m *Manager) PlayerReady(conn *Conn, sess *Session) {
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
	player.Ready = true

	r.broadcast(protocol.Roster{Type: protocol.MsgPlayerReady, Players: r.roster()})

	if r.allReady() {
		r.Host.Send(protocol.Signal{Type: protocol.MsgAllReady})
	}
}

// ReturnToLobby signals intent to leave the game screen. A non-host caller is
// only marked as back in the lobby. The host broadcasts a 5-second advisory
// countdown, after which the whole room unconditionally resets to the lobby
// state.
func (m *Manager) ReturnToLobby(conn *Conn, sess *Session) {
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
	player.InLobby = true

	if r.Host != conn {
		return
	}

	countdown := int(m.LobbyDelay / time.Second)
	r.broadcast(protocol.HostToLobby{Type: protocol.MsgHostToLobby, Countdown: countdown})

	code := r.Code
	time.AfterFunc(m.LobbyDelay, func() { m.resetToLobby(code, r) })
}

// resetToLobby performs the delayed lobby reset. The code must still resolve
// to the same room: it may have been torn down while the countdown ran, and
// its code may even have been reissued to a brand-new room.
func (m *Manager) resetToLobby(code string, r *Room) {
	got, ok := m.store.Get(code)
	if !ok || got != r {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.GameStarted = false
	r.GameFinished = false
	r.Winner = nil
	for _, player := range r.Players {
		player.Ready = false
		player.InLobby = true
	}

	r.broadcast(protocol.ReturnToLobby{
		Type:    protocol.MsgReturnToLobby,
		Code:    r.Code,
		Players: r.roster(),
	})
}
