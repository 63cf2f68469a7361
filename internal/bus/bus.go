// Package bus defines the message-bus contract the core components
// publish through, and a gorilla/websocket-backed implementation for
// local/demo deployment. Production deployments may swap in any
// MessageBus (a real pub/sub broker, for instance) without touching
// the session, tournament, betting, or challenge packages (spec §2,
// §6: "the transport is injected").
package bus

// MessageBus is the fan-out contract every orchestration component
// depends on. Broadcast is best-effort: a slow or gone subscriber must
// never block the caller (spec §5: "broadcast calls are assumed
// non-blocking best-effort and may drop").
type MessageBus interface {
	Broadcast(room, event string, payload any)
	Join(room string, subscriberID string)
	Leave(room string, subscriberID string)
}

// NopBus discards every event. Useful for unit tests that don't care
// about fan-out.
type NopBus struct{}

func (NopBus) Broadcast(string, string, any) {}
func (NopBus) Join(string, string)           {}
func (NopBus) Leave(string, string)          {}
