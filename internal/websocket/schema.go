package websocket

import "github.com/stemsi/exstem-session/internal/session"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionPing   Action = "ping"
	ActionSubmit Action = "submit"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventTick      Event = Event(session.EventTick)
	EventPhase     Event = Event(session.EventPhase)
	EventFinalized Event = Event(session.EventFinalized)
	EventError     Event = Event(session.EventError)
	EventPong      Event = "pong"
)

// SessionEventResponse forwards a session event to the client.
type SessionEventResponse struct {
	Event            Event  `json:"event"`
	Phase            string `json:"phase"`
	SecondsRemaining int    `json:"seconds_remaining"`
	Trigger          string `json:"trigger,omitempty"`
	Verdict          string `json:"verdict,omitempty"`
	Error            string `json:"error,omitempty"`
}

// FromSessionEvent converts a session event to its wire form.
func FromSessionEvent(ev session.Event) SessionEventResponse {
	return SessionEventResponse{
		Event:            Event(ev.Type),
		Phase:            string(ev.Phase),
		SecondsRemaining: ev.SecondsRemaining,
		Trigger:          string(ev.Trigger),
		Verdict:          string(ev.Verdict),
		Error:            ev.Error,
	}
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
