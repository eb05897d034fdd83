package interfaces

import (
	"context"
	"time"
)

const (
	EventAgentRegistered = "agent_registered"
	EventAgentRemoved    = "agent_removed"
	EventSignatureResult = "signature_result"
)

// Event is the envelope emitted to sinks. Data is one of the *Event payload
// types below.
type Event struct {
	Name string    `json:"event"`
	Time time.Time `json:"time"`
	Data any       `json:"data"`
}

type AgentRegisteredEvent struct {
	Account      AccountID         `json:"account"`
	Measurements MeasurementBundle `json:"measurements"`
	PlatformID   PlatformID        `json:"platform_id"`
	ValidUntil   time.Time         `json:"valid_until"`
}

type AgentRemovedEvent struct {
	Account AccountID       `json:"account"`
	Reasons []RemovalReason `json:"reasons"`
}

type SignatureResultEvent struct {
	RequestID string    `json:"request_id"`
	Caller    AccountID `json:"caller"`
	Path      string    `json:"path"`
	Domain    uint32    `json:"domain"`
	Signature HexBytes  `json:"signature,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// EventSink receives registry events. Emit must not block on slow consumers.
type EventSink interface {
	Emit(ctx context.Context, event Event)
}
