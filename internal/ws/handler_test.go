// internal/ws/handler_test.go
package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sixdegrees/wikirace/internal/protocol"
)

// Runs a real socket against the handler with the liveness monitor active, so
// probe rounds overlap the read pump's session writes (create_room sets it,
// the disconnect cascade clears it).
func TestHandlerLifecycleUnderLivenessProbes(t *testing.T) {
	rt := newTestRouter()
	reg := NewRegistry(rt.log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go reg.Run(ctx, 50*time.Millisecond)

	srv := httptest.NewServer(Handler(rt.log, rt, reg))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	sock, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer sock.Close(websocket.StatusNormalClosure, "")

	// Keep a read in flight so pings are answered, and collect frames.
	frames := make(chan []byte, 64)
	go func() {
		defer close(frames)
		for {
			_, data, err := sock.Read(ctx)
			if err != nil {
				return
			}
			frames <- data
		}
	}()

	require.NoError(t, sock.Write(ctx, websocket.MessageText,
		[]byte(`{"type":"create_room","playerName":"Ann"}`)))

	var created protocol.RoomCreated
	select {
	case data := <-frames:
		require.NoError(t, json.Unmarshal(data, &created))
	case <-time.After(2 * time.Second):
		t.Fatal("no room_created frame arrived")
	}
	assert.Equal(t, protocol.MsgRoomCreated, created.Type)

	// Traffic through several probe rounds.
	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		require.NoError(t, sock.Write(ctx, websocket.MessageText,
			[]byte(`{"type":"profile_update","color":"#123456"}`)))
		time.Sleep(20 * time.Millisecond)
	}
	assert.Equal(t, 1, reg.Len())

	require.NoError(t, sock.Close(websocket.StatusNormalClosure, ""))

	// The disconnect cascade unregisters the client and empties the room.
	require.Eventually(t, func() bool {
		if reg.Len() != 0 {
			return false
		}
		_, ok := rt.mgr.Store().Get(created.Code)
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}
