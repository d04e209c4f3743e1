package websocket

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/padlink-dev/padlink/config"
	"github.com/padlink-dev/padlink/relay"
)

// Handler adapts HTTP upgrade requests into relay events. Controllers
// connect on the controller endpoint; game engines attach on the engine
// endpoint to consume the enriched stream and push feedback back.
type Handler struct {
	hub    *Hub
	router *relay.Router
	cfg    *config.WebSocketConfig

	upgrader websocket.Upgrader
}

// feedbackMessage is what an engine sends to reach a specific player.
type feedbackMessage struct {
	PlayerID string          `json:"playerId"`
	Data     json.RawMessage `json:"data"`
}

func NewHandler(hub *Hub, router *relay.Router, cfg *config.WebSocketConfig) *Handler {
	return &Handler{
		hub:    hub,
		router: router,
		cfg:    cfg,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: time.Duration(cfg.HandshakeTimeout) * time.Second,
			CheckOrigin:      func(r *http.Request) bool { return true },
		},
	}
}

// HandleController serves the controller websocket endpoint. Each accepted
// connection gets a fresh connection id; the player identity is established
// later by the register message.
func (h *Handler) HandleController(w http.ResponseWriter, r *http.Request) {
	if h.hub.ControllerCount() >= h.cfg.MaxConnections {
		http.Error(w, "Too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn.SetReadLimit(h.cfg.MessageSizeLimit)

	connectionID := uuid.New().String()
	client := NewClient(connectionID, conn, h.cfg)
	client.StartPinging()

	h.hub.AddController(client)
	h.router.HandleConnect(connectionID)
	defer func() {
		h.router.HandleDisconnect(connectionID)
		h.hub.RemoveController(connectionID)
		client.Close(websocket.CloseNormalClosure, "Connection closed")
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			logReadError(connectionID, err)
			return
		}
		h.router.HandleMessage(connectionID, msg)
	}
}

// HandleEngine serves the consumer websocket endpoint. Inbound messages are
// feedback addressed to a player; anything unparseable is dropped.
func (h *Handler) HandleEngine(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	connectionID := uuid.New().String()
	client := NewClient(connectionID, conn, h.cfg)
	client.StartPinging()

	h.hub.AddConsumer(client)
	defer func() {
		h.hub.RemoveConsumer(connectionID)
		client.Close(websocket.CloseNormalClosure, "Connection closed")
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			logReadError(connectionID, err)
			return
		}

		var feedback feedbackMessage
		if err := json.Unmarshal(msg, &feedback); err != nil || feedback.PlayerID == "" {
			log.Warn().Str("connection_id", connectionID).
				Msg("Dropping malformed engine feedback")
			continue
		}
		if err := h.router.HandleFeedback(feedback.PlayerID, feedback.Data); err != nil {
			log.Debug().Str("player_id", feedback.PlayerID).Err(err).
				Msg("Feedback not delivered")
		}
	}
}

func logReadError(connectionID string, err error) {
	if websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) ||
		errors.Is(err, net.ErrClosed) {
		return
	}
	log.Warn().Str("connection_id", connectionID).Err(err).Msg("WebSocket read error")
}
