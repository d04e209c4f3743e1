package relay

// Sink is the fan-out target for enriched relay events. The websocket hub
// is the primary implementation; the broker mirror is a secondary one.
type Sink interface {
	// SendTo delivers a payload to one specific controller connection.
	SendTo(connectionID string, payload interface{}) error
	// Broadcast delivers a payload to every attached consumer.
	Broadcast(payload interface{})
}

// MultiSink fans every event out to several sinks. SendTo stops at the
// first sink that claims the connection.
type MultiSink []Sink

func (m MultiSink) SendTo(connectionID string, payload interface{}) error {
	var firstErr error
	for _, s := range m {
		if err := s.SendTo(connectionID, payload); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		return nil
	}
	return firstErr
}

func (m MultiSink) Broadcast(payload interface{}) {
	for _, s := range m {
		s.Broadcast(payload)
	}
}
