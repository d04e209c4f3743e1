// Package relay classifies inbound controller messages and drives the
// session store, stamping everything it forwards with the player identity
// that owns the connection. It is transport-agnostic: the websocket layer
// calls into it with raw payloads and it answers through the Sink.
package relay

import (
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/padlink-dev/padlink/metrics"
	"github.com/padlink-dev/padlink/registry"
	"github.com/padlink-dev/padlink/session"
)

// ErrUnknownPlayer is returned when feedback targets an identity with no
// live connection.
var ErrUnknownPlayer = errors.New("no live connection for player")

// Router owns no state of its own; all state lives in the injected store
// and registry, so a fresh Router per test is cheap.
type Router struct {
	registry *registry.Registry
	store    *session.Store
	sink     Sink
}

func NewRouter(reg *registry.Registry, store *session.Store, sink Sink) *Router {
	return &Router{
		registry: reg,
		store:    store,
		sink:     sink,
	}
}

// HandleConnect registers a freshly opened transport connection. The player
// is announced to consumers only once it completes an identity request.
func (r *Router) HandleConnect(connectionID string) {
	r.registry.OnConnect(connectionID)
	// Derived from the registry so a duplicate-connect overwrite cannot
	// drift the gauge.
	metrics.ActiveConnections.Set(float64(r.registry.Len()))
	metrics.TotalConnections.Inc()
	log.Info().Str("connection_id", connectionID).Msg("Controller connected")
}

// HandleMessage classifies one inbound payload and routes it. Malformed or
// out-of-order messages are dropped and logged, never fatal to the
// connection.
func (r *Router) HandleMessage(connectionID string, payload []byte) {
	r.registry.Touch(connectionID)

	var fields map[string]interface{}
	if err := json.Unmarshal(payload, &fields); err != nil {
		log.Warn().Str("connection_id", connectionID).Err(err).
			Msg("Dropping malformed message")
		return
	}

	kind, _ := fields["kind"].(string)
	switch kind {
	case KindRegister:
		r.handleRegister(connectionID, payload)
	case KindPing:
		r.handlePing(connectionID)
	default:
		// Unknown kinds are forwarded as input; the relay stays
		// agnostic of the gameplay schema.
		r.handleInput(connectionID, fields)
	}
}

func (r *Router) handleRegister(connectionID string, payload []byte) {
	var req registerRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		log.Warn().Str("connection_id", connectionID).Err(err).
			Msg("Dropping malformed register request")
		return
	}

	playerID, isReconnection := r.store.ResolveOrCreate(connectionID, req.RequestedPlayerID)
	metrics.ActiveSessions.Set(float64(r.store.Len()))
	if isReconnection {
		metrics.Reconnections.Inc()
	}

	if err := r.sink.SendTo(connectionID, RegisterReply{
		PlayerID:       playerID,
		IsReconnection: isReconnection,
	}); err != nil {
		log.Warn().Str("connection_id", connectionID).Err(err).
			Msg("Failed to deliver register reply")
	}

	kind := KindConnected
	if isReconnection {
		kind = KindReconnected
	}
	r.sink.Broadcast(PresenceEvent{
		Kind:         kind,
		PlayerID:     playerID,
		ConnectionID: connectionID,
	})
	log.Info().Str("player_id", playerID).Str("connection_id", connectionID).
		Bool("reconnection", isReconnection).Msg("Player registered")
}

func (r *Router) handlePing(connectionID string) {
	metrics.PingsReceived.Inc()

	playerID, ok := r.store.SessionFor(connectionID)
	if ok {
		r.store.RecordActivity(playerID)
	}
	// Pings are surfaced to consumers as presence, never as input.
	r.sink.Broadcast(PresenceEvent{
		Kind:         KindPing,
		PlayerID:     playerID,
		ConnectionID: connectionID,
	})
}

func (r *Router) handleInput(connectionID string, fields map[string]interface{}) {
	playerID, ok := r.store.SessionFor(connectionID)
	if !ok {
		// A controller must register before its input means anything.
		metrics.OrphanInputsDropped.Inc()
		log.Warn().Str("connection_id", connectionID).
			Msg("Dropping input from connection with no player session")
		return
	}
	r.store.RecordActivity(playerID)

	// Stamp identity onto the payload; every other field passes through
	// untouched.
	fields["playerId"] = playerID
	fields["connectionId"] = connectionID
	r.sink.Broadcast(fields)
	metrics.InputsRelayed.Inc()
}

// HandleDisconnect releases the connection while retaining the player's
// session for reconnection. Safe to call more than once per connection.
func (r *Router) HandleDisconnect(connectionID string) {
	playerID, hadSession := r.store.MarkDisconnected(connectionID)
	wasOpen := r.registry.IsOpen(connectionID)
	r.registry.OnDisconnect(connectionID)
	metrics.ActiveConnections.Set(float64(r.registry.Len()))
	if !wasOpen {
		return
	}

	event := DisconnectEvent{
		Kind:          KindDisconnected,
		ConnectionID:  connectionID,
		Reconnectable: true,
	}
	if hadSession {
		event.PlayerID = playerID
	}
	r.sink.Broadcast(event)
	log.Info().Str("connection_id", connectionID).Str("player_id", playerID).
		Msg("Controller disconnected")
}

// HandleFeedback routes an engine-originated payload back to the connection
// currently carrying the player.
func (r *Router) HandleFeedback(playerID string, payload interface{}) error {
	connectionID, ok := r.store.ConnectionFor(playerID)
	if !ok {
		return ErrUnknownPlayer
	}
	return r.sink.SendTo(connectionID, payload)
}

// Counts exposes the registry and store sizes for the status endpoint. Read
// only; performs no mutation.
func (r *Router) Counts() (connections, sessions int) {
	return r.registry.Len(), r.store.Len()
}
