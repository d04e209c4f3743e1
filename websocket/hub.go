package websocket

import (
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/padlink-dev/padlink/metrics"
)

// Hub holds the live connections for this instance: controllers feeding
// input in, and engine consumers receiving the enriched event stream. It is
// the primary relay.Sink implementation.
type Hub struct {
	controllers sync.Map // connectionId -> *Client
	consumers   sync.Map // connectionId -> *Client
}

func NewHub() *Hub {
	return &Hub{}
}

// AddController stores a controller connection.
func (h *Hub) AddController(client *Client) {
	h.controllers.Store(client.ID, client)
}

// RemoveController drops a controller connection from the hub.
func (h *Hub) RemoveController(connectionID string) {
	h.controllers.Delete(connectionID)
}

// AddConsumer attaches an engine consumer to the broadcast stream.
func (h *Hub) AddConsumer(client *Client) {
	h.consumers.Store(client.ID, client)
	metrics.ActiveConsumers.Inc()
	log.Info().Str("connection_id", client.ID).Msg("Engine consumer attached")
}

// RemoveConsumer detaches an engine consumer.
func (h *Hub) RemoveConsumer(connectionID string) {
	if _, ok := h.consumers.LoadAndDelete(connectionID); ok {
		metrics.ActiveConsumers.Dec()
		log.Info().Str("connection_id", connectionID).Msg("Engine consumer detached")
	}
}

// ControllerCount returns the number of controller connections on this hub.
func (h *Hub) ControllerCount() int {
	count := 0
	h.controllers.Range(func(_, _ interface{}) bool {
		count++
		return true
	})
	return count
}

// SendTo delivers a payload to one controller connection.
func (h *Hub) SendTo(connectionID string, payload interface{}) error {
	value, ok := h.controllers.Load(connectionID)
	if !ok {
		return fmt.Errorf("connection %s not attached to this hub", connectionID)
	}
	return value.(*Client).SafeWriteJSON(payload)
}

// Broadcast fans a payload out to every attached consumer, best effort. A
// consumer that cannot be written to is closed and detached.
func (h *Hub) Broadcast(payload interface{}) {
	h.consumers.Range(func(key, value interface{}) bool {
		client := value.(*Client)
		if err := client.SafeWriteJSON(payload); err != nil {
			log.Warn().Str("connection_id", client.ID).Err(err).
				Msg("Dropping unresponsive engine consumer")
			client.Close(websocket.CloseInternalServerErr, "Failed to deliver event")
			h.RemoveConsumer(client.ID)
		}
		return true
	})
}

// CloseAll sends close frames to every connection, used during shutdown.
func (h *Hub) CloseAll(reason string) {
	h.controllers.Range(func(key, value interface{}) bool {
		value.(*Client).Close(websocket.CloseGoingAway, reason)
		h.controllers.Delete(key)
		return true
	})
	h.consumers.Range(func(key, value interface{}) bool {
		value.(*Client).Close(websocket.CloseGoingAway, reason)
		h.RemoveConsumer(key.(string))
		return true
	})
}
