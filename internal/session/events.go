package session

import "github.com/stemsi/exstem-session/internal/model"

// EventType identifies a session event pushed to subscribers.
type EventType string

const (
	EventTick      EventType = "tick"
	EventPhase     EventType = "phase"
	EventFinalized EventType = "finalized"
	EventError     EventType = "error"
)

// Event is a push notification for transports such as the WebSocket stream.
type Event struct {
	Type             EventType     `json:"type"`
	Phase            Phase         `json:"phase"`
	SecondsRemaining int           `json:"seconds_remaining"`
	Trigger          Trigger       `json:"trigger,omitempty"`
	Verdict          model.Verdict `json:"verdict,omitempty"`
	Error            string        `json:"error,omitempty"`
}

const subscriberBuffer = 16

// Subscribe registers a listener. Events are dropped for a listener whose
// buffer is full, so slow readers never stall the timer. The returned func
// unsubscribes; the channel is closed on unsubscribe or Close.
func (s *Session) Subscribe() (<-chan Event, func()) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	if s.subsClosed {
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch

	return ch, func() {
		s.subsMu.Lock()
		defer s.subsMu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

func (s *Session) publish(ev Event) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (s *Session) closeSubscribers() {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
	s.subsClosed = true
}
