package relay

// Inbound message discriminants. Anything else, including kinds this relay
// has never heard of, is treated as gameplay input and passed through.
const (
	KindRegister = "register"
	KindPing     = "ping"
)

// Outbound event kinds.
const (
	KindConnected    = "connected"
	KindReconnected  = "reconnected"
	KindDisconnected = "disconnected"
)

// registerRequest is the identity request a controller sends once per
// connection. RequestedPlayerID is set when the client is trying to reclaim
// an identity from a previous connection.
type registerRequest struct {
	Kind              string `json:"kind"`
	RequestedPlayerID string `json:"requestedPlayerId"`
}

// RegisterReply is sent back to the requesting connection only.
type RegisterReply struct {
	PlayerID       string `json:"playerId"`
	IsReconnection bool   `json:"isReconnection"`
}

// PresenceEvent announces a player joining ("connected"/"reconnected") or a
// keep-alive ping to all consumers.
type PresenceEvent struct {
	Kind         string `json:"kind"`
	PlayerID     string `json:"playerId,omitempty"`
	ConnectionID string `json:"connectionId"`
}

// DisconnectEvent announces a connection going away. Reconnectable stays
// true for as long as the player's session has not been evicted, which is
// always the case at the moment this event is emitted.
type DisconnectEvent struct {
	Kind          string `json:"kind"`
	PlayerID      string `json:"playerId,omitempty"`
	ConnectionID  string `json:"connectionId"`
	Reconnectable bool   `json:"reconnectable"`
}
