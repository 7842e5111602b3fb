// internal/room/manager_test.go
package room

import (
	"io"
	"regexp"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sixdegrees/wikirace/internal/protocol"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestManager() *Manager {
	m := NewManager(NewStore(), testLogger())
	m.CloseGrace = 20 * time.Millisecond
	m.LobbyDelay = 20 * time.Millisecond
	return m
}

// testClient pairs a connection handle with its session metadata.
type testClient struct {
	conn *Conn
	sess *Session
}

func newTestClient() *testClient {
	return &testClient{conn: NewConn(), sess: &Session{}}
}

// recv pops the next queued frame, failing the test if none is pending.
func recv(t *testing.T, c *testClient) any {
	t.Helper()
	select {
	case msg := <-c.conn.Out:
		return msg
	default:
		t.Fatal("expected a queued frame, got none")
		return nil
	}
}

// recvAs pops the next frame and asserts its concrete type.
func recvAs[T any](t *testing.T, c *testClient) T {
	t.Helper()
	msg := recv(t, c)
	v, ok := msg.(T)
	if !ok {
		t.Fatalf("expected frame of type %T, got %T", v, msg)
	}
	return v
}

// drain discards everything queued on the client.
func drain(c *testClient) {
	for {
		select {
		case <-c.conn.Out:
		default:
			return
		}
	}
}

func assertNoFrames(t *testing.T, c *testClient) {
	t.Helper()
	select {
	case msg := <-c.conn.Out:
		t.Fatalf("expected no frames, got %T", msg)
	default:
	}
}

// createRoom runs a create_room flow and returns the new room's code.
func createRoom(t *testing.T, m *Manager, c *testClient, name string, maxPlayers int) string {
	t.Helper()
	m.CreateRoom(c.conn, c.sess, protocol.CreateRoom{PlayerName: name, MaxPlayers: maxPlayers})
	created := recvAs[protocol.RoomCreated](t, c)
	require.Equal(t, protocol.MsgRoomCreated, created.Type)
	return created.Code
}

// joinRoom runs a successful join flow and drains the joiner's confirmations.
func joinRoom(t *testing.T, m *Manager, c *testClient, code, name string) {
	t.Helper()
	require.NoError(t, m.JoinRoom(c.conn, c.sess, protocol.JoinRoom{Code: code, PlayerName: name}))
	drain(c)
}

var codePattern = regexp.MustCompile(`^[A-Z0-9]{6}$`)

func TestCreateRoomCodesAreUniqueAndWellFormed(t *testing.T) {
	m := newTestManager()

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		c := newTestClient()
		code := createRoom(t, m, c, "host", 0)
		assert.Regexp(t, codePattern, code)
		assert.False(t, seen[code], "code %s issued twice", code)
		seen[code] = true
	}
	assert.Equal(t, 50, m.Store().Len())
}

func TestCreateRoomDefaults(t *testing.T) {
	m := newTestManager()
	c := newTestClient()
	code := createRoom(t, m, c, "Ann", 0)

	r, ok := m.Store().Get(code)
	require.True(t, ok)
	assert.Equal(t, DefaultMaxPlayers, r.MaxPlayers)
	assert.Equal(t, DefaultTimeLimitSeconds, r.TimeLimitSeconds)
	require.Len(t, r.Players, 1)
	assert.Equal(t, "Ann", r.Players[0].Name)
	assert.Equal(t, DefaultColor, r.Players[0].Color)
	assert.Equal(t, c.conn, r.Host)
	assert.Equal(t, code, c.sess.RoomCode)
	assert.Equal(t, "Ann", c.sess.PlayerName)
}

func TestCreateRoomMaxPlayersOutOfRangeFallsBack(t *testing.T) {
	m := newTestManager()

	c := newTestClient()
	code := createRoom(t, m, c, "Ann", 40)
	r, _ := m.Store().Get(code)
	assert.Equal(t, DefaultMaxPlayers, r.MaxPlayers)

	c2 := newTestClient()
	code2 := createRoom(t, m, c2, "Ann", 2)
	r2, _ := m.Store().Get(code2)
	assert.Equal(t, 2, r2.MaxPlayers)
}

func TestJoinRoomOrderingAndRoster(t *testing.T) {
	m := newTestManager()
	host := newTestClient()
	code := createRoom(t, m, host, "Ann", 0)

	joiner := newTestClient()
	require.NoError(t, m.JoinRoom(joiner.conn, joiner.sess, protocol.JoinRoom{Code: code, PlayerName: "Bob"}))

	// Joiner hears its own confirmation first, then the settings snapshot.
	joined := recvAs[protocol.RoomJoined](t, joiner)
	assert.Equal(t, code, joined.Code)
	require.Len(t, joined.Players, 2)
	assert.Equal(t, "Ann", joined.Players[0].Name)
	assert.Equal(t, "Bob", joined.Players[1].Name)

	settings := recvAs[protocol.RoomSettingsState](t, joiner)
	assert.Equal(t, protocol.MsgRoomSettings, settings.Type)
	assert.Equal(t, DefaultMaxPlayers, settings.MaxPlayers)

	// Existing members get the announcement, not the join confirmation.
	announce := recvAs[protocol.Roster](t, host)
	assert.Equal(t, protocol.MsgPlayerJoined, announce.Type)
	require.Len(t, announce.Players, 2)
}

func TestJoinRoomUnknownCode(t *testing.T) {
	m := newTestManager()
	c := newTestClient()

	err := m.JoinRoom(c.conn, c.sess, protocol.JoinRoom{Code: "NOSUCH", PlayerName: "Bob"})
	assert.ErrorIs(t, err, ErrRoomNotFound)

	frame := recvAs[protocol.Error](t, c)
	assert.Equal(t, ErrRoomNotFound.Error(), frame.Message)
	assert.Empty(t, c.sess.RoomCode)
}

func TestJoinRoomDuplicateName(t *testing.T) {
	m := newTestManager()
	host := newTestClient()
	code := createRoom(t, m, host, "Ann", 0)

	dup := newTestClient()
	err := m.JoinRoom(dup.conn, dup.sess, protocol.JoinRoom{Code: code, PlayerName: "Ann"})
	assert.ErrorIs(t, err, ErrDuplicateName)

	frame := recvAs[protocol.Error](t, dup)
	assert.Equal(t, ErrDuplicateName.Error(), frame.Message)

	r, _ := m.Store().Get(code)
	assert.Len(t, r.Players, 1)
	assertNoFrames(t, host)
}

func TestJoinRoomFull(t *testing.T) {
	m := newTestManager()
	host := newTestClient()
	code := createRoom(t, m, host, "Ann", 2)
	joinRoom(t, m, newTestClient(), code, "Bob")

	third := newTestClient()
	err := m.JoinRoom(third.conn, third.sess, protocol.JoinRoom{Code: code, PlayerName: "Cy"})
	assert.ErrorIs(t, err, ErrRoomFull)

	r, _ := m.Store().Get(code)
	assert.Len(t, r.Players, 2)
}

func TestJoinRoomAfterStart(t *testing.T) {
	m := newTestManager()
	host := newTestClient()
	code := createRoom(t, m, host, "Ann", 0)
	m.StartGame(host.conn, host.sess, protocol.StartGame{StartArticle: "A", TargetArticle: "B"})
	drain(host)

	late := newTestClient()
	err := m.JoinRoom(late.conn, late.sess, protocol.JoinRoom{Code: code, PlayerName: "Bob"})
	assert.ErrorIs(t, err, ErrGameAlreadyStarted)
}

func TestUpdateSettingsNonHostIgnored(t *testing.T) {
	m := newTestManager()
	host := newTestClient()
	code := createRoom(t, m, host, "Ann", 0)
	bob := newTestClient()
	joinRoom(t, m, bob, code, "Bob")
	drain(host)

	death := true
	limit := 60
	m.UpdateSettings(bob.conn, bob.sess, protocol.RoomSettings{
		Death404Mode:     &death,
		TimeLimitSeconds: &limit,
		Modifiers:        map[string]bool{"randomStart": true},
	})

	r, _ := m.Store().Get(code)
	assert.False(t, r.Death404Mode)
	assert.Empty(t, r.Modifiers)
	assert.Equal(t, DefaultTimeLimitSeconds, r.TimeLimitSeconds)
	assertNoFrames(t, host)
	assertNoFrames(t, bob)
}

func TestUpdateSettingsSparseMerge(t *testing.T) {
	m := newTestManager()
	host := newTestClient()
	code := createRoom(t, m, host, "Ann", 0)
	bob := newTestClient()
	joinRoom(t, m, bob, code, "Bob")
	drain(host)

	death := true
	m.UpdateSettings(host.conn, host.sess, protocol.RoomSettings{Death404Mode: &death})

	r, _ := m.Store().Get(code)
	assert.True(t, r.Death404Mode)
	assert.Equal(t, DefaultTimeLimitSeconds, r.TimeLimitSeconds, "unspecified fields keep prior values")

	// Settings go to everyone except the sender.
	state := recvAs[protocol.RoomSettingsState](t, bob)
	assert.True(t, state.Death404Mode)
	assertNoFrames(t, host)

	// A later sparse update keeps the earlier change.
	limit := 90
	m.UpdateSettings(host.conn, host.sess, protocol.RoomSettings{TimeLimitSeconds: &limit})
	state = recvAs[protocol.RoomSettingsState](t, bob)
	assert.True(t, state.Death404Mode)
	assert.Equal(t, 90, state.TimeLimitSeconds)
}

func TestUpdateMaxPlayersBoundsAndBroadcast(t *testing.T) {
	m := newTestManager()
	host := newTestClient()
	code := createRoom(t, m, host, "Ann", 0)
	bob := newTestClient()
	joinRoom(t, m, bob, code, "Bob")
	drain(host)

	m.UpdateMaxPlayers(host.conn, host.sess, protocol.UpdateMaxPlayers{MaxPlayers: 17})
	r, _ := m.Store().Get(code)
	assert.Equal(t, DefaultMaxPlayers, r.MaxPlayers)
	assertNoFrames(t, host)

	m.UpdateMaxPlayers(host.conn, host.sess, protocol.UpdateMaxPlayers{MaxPlayers: 4})
	assert.Equal(t, 4, r.MaxPlayers)

	// Unlike settings updates, this one echoes back to the host too.
	hostMsg := recvAs[protocol.MaxPlayersUpdated](t, host)
	assert.Equal(t, 4, hostMsg.MaxPlayers)
	bobMsg := recvAs[protocol.MaxPlayersUpdated](t, bob)
	assert.Equal(t, 4, bobMsg.MaxPlayers)
}

func TestLobbyReadyToggleAndExplicit(t *testing.T) {
	m := newTestManager()
	host := newTestClient()
	code := createRoom(t, m, host, "Ann", 0)
	bob := newTestClient()
	joinRoom(t, m, bob, code, "Bob")
	drain(host)

	m.LobbyReady(bob.conn, bob.sess, protocol.LobbyReady{})
	update := recvAs[protocol.Roster](t, bob)
	assert.Equal(t, protocol.MsgLobbyReadyUpdate, update.Type)
	assert.True(t, update.Players[1].Ready)
	drain(host)

	m.LobbyReady(bob.conn, bob.sess, protocol.LobbyReady{})
	update = recvAs[protocol.Roster](t, bob)
	assert.False(t, update.Players[1].Ready, "second toggle flips back")
	drain(host)

	off := false
	m.LobbyReady(bob.conn, bob.sess, protocol.LobbyReady{Ready: &off})
	update = recvAs[protocol.Roster](t, bob)
	assert.False(t, update.Players[1].Ready, "explicit value wins over toggle")
}

func TestUpdateProfileBroadcastsToEveryone(t *testing.T) {
	m := newTestManager()
	host := newTestClient()
	code := createRoom(t, m, host, "Ann", 0)
	bob := newTestClient()
	joinRoom(t, m, bob, code, "Bob")
	drain(host)

	m.UpdateProfile(bob.conn, bob.sess, protocol.ProfileUpdate{Color: "#123456", BorderStyle: "glow"})

	for _, c := range []*testClient{host, bob} {
		update := recvAs[protocol.Roster](t, c)
		assert.Equal(t, protocol.MsgPlayersUpdate, update.Type)
		assert.Equal(t, "#123456", update.Players[1].Color)
		assert.Equal(t, "glow", update.Players[1].BorderStyle)
	}
}

func TestDisconnectLastPlayerDeletesRoom(t *testing.T) {
	m := newTestManager()
	host := newTestClient()
	code := createRoom(t, m, host, "Ann", 0)

	m.Disconnect(host.conn, host.sess)

	_, ok := m.Store().Get(code)
	assert.False(t, ok)
	assert.Empty(t, host.sess.RoomCode)

	// The code is unknown from now on.
	c := newTestClient()
	err := m.JoinRoom(c.conn, c.sess, protocol.JoinRoom{Code: code, PlayerName: "Bob"})
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestNonHostDisconnectShrinksRoster(t *testing.T) {
	m := newTestManager()
	host := newTestClient()
	code := createRoom(t, m, host, "Ann", 0)
	bob := newTestClient()
	joinRoom(t, m, bob, code, "Bob")
	drain(host)

	m.Disconnect(bob.conn, bob.sess)

	left := recvAs[protocol.Roster](t, host)
	assert.Equal(t, protocol.MsgPlayerLeft, left.Type)
	require.Len(t, left.Players, 1)
	assert.Equal(t, "Ann", left.Players[0].Name)

	r, ok := m.Store().Get(code)
	require.True(t, ok, "room survives a non-host departure")
	assert.Equal(t, host.conn, r.Host)
}

func TestHostDisconnectTearsRoomDownAfterGrace(t *testing.T) {
	m := newTestManager()
	host := newTestClient()
	code := createRoom(t, m, host, "Ann", 0)
	bob := newTestClient()
	joinRoom(t, m, bob, code, "Bob")
	drain(host)

	m.Disconnect(host.conn, host.sess)

	warning := recvAs[protocol.Signal](t, bob)
	assert.Equal(t, protocol.MsgHostLeft, warning.Type)

	// The dying room refuses joins during the grace window.
	late := newTestClient()
	err := m.JoinRoom(late.conn, late.sess, protocol.JoinRoom{Code: code, PlayerName: "Cy"})
	assert.ErrorIs(t, err, ErrRoomNotFound)

	require.Eventually(t, func() bool {
		_, ok := m.Store().Get(code)
		return !ok
	}, time.Second, 5*time.Millisecond)

	closed := recvAs[protocol.Signal](t, bob)
	assert.Equal(t, protocol.MsgRoomClosed, closed.Type)
}

func TestCloseTimerIgnoresReplacementRoom(t *testing.T) {
	m := newTestManager()
	host := newTestClient()
	code := createRoom(t, m, host, "Ann", 0)
	bob := newTestClient()
	joinRoom(t, m, bob, code, "Bob")
	drain(host)

	// Host leaves (scheduling teardown), then the survivor empties the room.
	m.Disconnect(host.conn, host.sess)
	m.Disconnect(bob.conn, bob.sess)
	_, ok := m.Store().Get(code)
	require.False(t, ok)

	// The code gets reissued to a brand-new room before the timer fires.
	replacement := newRoom(code, DefaultMaxPlayers)
	occupant := newTestClient()
	replacement.Host = occupant.conn
	replacement.Players = append(replacement.Players, newPlayer(occupant.conn, "Cy", "", "", "", 1, 0, nil))
	m.store.mu.Lock()
	m.store.rooms[code] = replacement
	m.store.mu.Unlock()

	time.Sleep(3 * m.CloseGrace)

	r, ok := m.Store().Get(code)
	require.True(t, ok, "the replacement room must survive the stale timer")
	assert.Same(t, replacement, r)
	assertNoFrames(t, occupant)
}

func TestHostDisconnectEmptiedRoomDuringGrace(t *testing.T) {
	m := newTestManager()
	host := newTestClient()
	code := createRoom(t, m, host, "Ann", 0)
	bob := newTestClient()
	joinRoom(t, m, bob, code, "Bob")
	drain(host)

	m.Disconnect(host.conn, host.sess)
	m.Disconnect(bob.conn, bob.sess)

	_, ok := m.Store().Get(code)
	assert.False(t, ok, "room deleted when the last survivor leaves")

	// The grace timer fires against a deleted room and must stay quiet.
	time.Sleep(3 * m.CloseGrace)
	assert.False(t, func() bool { _, ok := m.Store().Get(code); return ok }())
}
