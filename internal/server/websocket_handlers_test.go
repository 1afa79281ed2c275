package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/instantwaste/formscan/internal/session"
)

func dialProgress(t *testing.T, httpURL string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(httpURL, "http") + "/ws/progress"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestProgressWebSocket_StreamsToCompletion(t *testing.T) {
	_, ts := newTestServer(t, nil)

	body, contentType := pngUpload(t)
	resp, err := http.Post(ts.URL+"/scan/async", contentType, body)
	require.NoError(t, err)
	var async AsyncScanResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&async))
	_ = resp.Body.Close()

	conn := dialProgress(t, ts.URL)
	require.NoError(t, conn.WriteJSON(watchRequest{SessionID: async.SessionID}))

	// Read progress pushes until the terminal one.
	deadline := time.Now().Add(10 * time.Second)
	var last progressMessage
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		var msg progressMessage
		require.NoError(t, conn.ReadJSON(&msg))
		require.Equal(t, "progress", msg.Type)
		assert.Equal(t, async.SessionID, msg.SessionID)

		last = msg
		if msg.Status == string(session.StatusComplete) || msg.Status == string(session.StatusFailed) {
			break
		}
	}
	assert.Equal(t, string(session.StatusComplete), last.Status)
	assert.Equal(t, 100, last.Percent)
}

func TestProgressWebSocket_UnknownSession(t *testing.T) {
	_, ts := newTestServer(t, nil)

	conn := dialProgress(t, ts.URL)
	require.NoError(t, conn.WriteJSON(watchRequest{SessionID: "nope"}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg progressMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "error", msg.Type)
	assert.Contains(t, msg.Error, "unknown or expired")
}

func TestProgressWebSocket_BadFirstMessage(t *testing.T) {
	_, ts := newTestServer(t, nil)

	conn := dialProgress(t, ts.URL)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{}")))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg progressMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "error", msg.Type)
}
