package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/padlink-dev/padlink/config"
	"github.com/padlink-dev/padlink/registry"
	"github.com/padlink-dev/padlink/relay"
	"github.com/padlink-dev/padlink/session"
)

func testConfig() *config.WebSocketConfig {
	return &config.WebSocketConfig{
		MaxConnections:   100,
		MessageSizeLimit: 4096,
		HandshakeTimeout: 5,
		PingInterval:     60,
		PongTimeout:      120,
		WriteTimeout:     5,
		MaxWriteRetries:  1,
	}
}

func startTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	hub := NewHub()
	router := relay.NewRouter(registry.New(), session.NewStore(), relay.MultiSink{hub})
	handler := NewHandler(hub, router, testConfig())

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", handler.HandleController)
	mux.HandleFunc("/ws/engine", handler.HandleEngine)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func TestEndToEnd_RegisterAndRelay(t *testing.T) {
	srv := startTestServer(t)

	engine := dial(t, srv, "/ws/engine")
	controller := dial(t, srv, "/ws")

	// Register and read the identity reply.
	require.NoError(t, controller.WriteJSON(map[string]string{"kind": "register"}))

	var reply struct {
		PlayerID       string `json:"playerId"`
		IsReconnection bool   `json:"isReconnection"`
	}
	require.NoError(t, controller.ReadJSON(&reply))
	assert.Equal(t, "player_1", reply.PlayerID)
	assert.False(t, reply.IsReconnection)

	// The engine sees the join announcement.
	var joined map[string]interface{}
	require.NoError(t, engine.ReadJSON(&joined))
	assert.Equal(t, "connected", joined["kind"])
	assert.Equal(t, "player_1", joined["playerId"])

	// Input arrives at the engine stamped with the identity.
	require.NoError(t, controller.WriteJSON(map[string]string{"action": "UP"}))

	var input map[string]interface{}
	require.NoError(t, engine.ReadJSON(&input))
	assert.Equal(t, "UP", input["action"])
	assert.Equal(t, "player_1", input["playerId"])
	assert.NotEmpty(t, input["connectionId"])
}

func TestEndToEnd_DisconnectAndReclaim(t *testing.T) {
	srv := startTestServer(t)

	engine := dial(t, srv, "/ws/engine")

	first := dial(t, srv, "/ws")
	require.NoError(t, first.WriteJSON(map[string]string{"kind": "register"}))

	var reply struct {
		PlayerID       string `json:"playerId"`
		IsReconnection bool   `json:"isReconnection"`
	}
	require.NoError(t, first.ReadJSON(&reply))
	playerID := reply.PlayerID

	var joined map[string]interface{}
	require.NoError(t, engine.ReadJSON(&joined))

	// Drop the connection and wait for the disconnect announcement.
	first.Close()

	var disconnected map[string]interface{}
	require.NoError(t, engine.ReadJSON(&disconnected))
	assert.Equal(t, "disconnected", disconnected["kind"])
	assert.Equal(t, playerID, disconnected["playerId"])
	assert.Equal(t, true, disconnected["reconnectable"])

	// Reclaim the identity from a new connection.
	second := dial(t, srv, "/ws")
	require.NoError(t, second.WriteJSON(map[string]string{
		"kind":              "register",
		"requestedPlayerId": playerID,
	}))
	require.NoError(t, second.ReadJSON(&reply))
	assert.Equal(t, playerID, reply.PlayerID)
	assert.True(t, reply.IsReconnection)

	var rejoined map[string]interface{}
	require.NoError(t, engine.ReadJSON(&rejoined))
	assert.Equal(t, "reconnected", rejoined["kind"])
	assert.Equal(t, playerID, rejoined["playerId"])
}

func TestEndToEnd_EngineFeedbackReachesController(t *testing.T) {
	srv := startTestServer(t)

	engine := dial(t, srv, "/ws/engine")
	controller := dial(t, srv, "/ws")

	require.NoError(t, controller.WriteJSON(map[string]string{"kind": "register"}))

	var reply struct {
		PlayerID string `json:"playerId"`
	}
	require.NoError(t, controller.ReadJSON(&reply))

	var joined map[string]interface{}
	require.NoError(t, engine.ReadJSON(&joined))

	require.NoError(t, engine.WriteJSON(map[string]interface{}{
		"playerId": reply.PlayerID,
		"data":     map[string]string{"rumble": "on"},
	}))

	var feedback map[string]interface{}
	require.NoError(t, controller.ReadJSON(&feedback))
	assert.Equal(t, "on", feedback["rumble"])
}

func TestEndToEnd_OrphanInputProducesNoBroadcast(t *testing.T) {
	srv := startTestServer(t)

	engine := dial(t, srv, "/ws/engine")
	controller := dial(t, srv, "/ws")

	// Input before registering must never reach the engine.
	require.NoError(t, controller.WriteJSON(map[string]string{"action": "UP"}))

	engine.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	var msg map[string]interface{}
	err := engine.ReadJSON(&msg)
	assert.Error(t, err, "engine should receive nothing for orphan input")
}

func TestHub_SendToUnknownConnection(t *testing.T) {
	hub := NewHub()
	assert.Error(t, hub.SendTo("missing", "payload"))
}
