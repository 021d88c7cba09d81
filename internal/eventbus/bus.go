// Package eventbus implements the per-session progress channel agents and
// UIs subscribe to: publish/subscribe with a bounded, replayable history
// and automatic termination once a session's terminal agent_done event has
// been delivered.
package eventbus

import (
	"log/slog"
	"sync"

	"github.com/haasonsaas/nexus/pkg/models"
)

const (
	// maxHistory is the ring buffer capacity per session.
	maxHistory = 100

	// subscriberBuffer sizes each subscriber's channel so that a full
	// history replay plus a burst of live events never has to block the
	// publisher under the bus lock; once full, further events are dropped
	// for that subscriber (and logged), matching the teacher's channel
	// sinks' non-blocking-under-backpressure convention.
	subscriberBuffer = maxHistory + 64
)

type subscriber struct {
	ch chan models.SessionEvent
}

type sessionState struct {
	history     []models.SessionEvent
	subscribers []*subscriber
}

// Bus is a per-process event bus keyed by session id.
type Bus struct {
	mu       sync.Mutex
	sessions map[string]*sessionState
	logger   *slog.Logger
}

// New returns an empty Bus.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{sessions: make(map[string]*sessionState), logger: logger}
}

func (b *Bus) sessionLocked(sessionID string) *sessionState {
	s, ok := b.sessions[sessionID]
	if !ok {
		s = &sessionState{}
		b.sessions[sessionID] = s
	}
	return s
}

// Publish appends the event to the session's history (evicting the oldest
// entry beyond maxHistory) and enqueues it to every current subscriber.
// Events published from a single goroutine are delivered to each subscriber
// in publish order; concurrent publishers to the same session may
// interleave.
func (b *Bus) Publish(event models.SessionEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.sessionLocked(event.SessionID)
	s.history = append(s.history, event)
	if len(s.history) > maxHistory {
		s.history = s.history[len(s.history)-maxHistory:]
	}

	remaining := s.subscribers[:0]
	for _, sub := range s.subscribers {
		b.deliverLocked(sub, event)
		if event.Type != models.SessionEventAgentDone {
			remaining = append(remaining, sub)
		}
	}
	s.subscribers = remaining
}

// deliverLocked sends event to sub's channel without blocking; if the
// channel is full the event is dropped and logged. If event is the session's
// terminal agent_done, the channel is closed after delivery — callers must
// have already excluded sub from future delivery before or as part of this
// call (Publish and Subscribe both do this by not re-adding a done
// subscriber to the live list).
func (b *Bus) deliverLocked(sub *subscriber, event models.SessionEvent) {
	select {
	case sub.ch <- event:
	default:
		b.logger.Warn("eventbus: dropping event, subscriber queue full",
			slog.String("session_id", event.SessionID),
			slog.String("type", string(event.Type)),
		)
	}
	if event.Type == models.SessionEventAgentDone {
		close(sub.ch)
	}
}

// Subscribe registers a new subscriber for sessionID and returns a
// receive-only channel. The history accumulated so far is replayed first
// (late subscribers see past events), followed by live events as they are
// published. The channel is closed once an agent_done event has been
// delivered for this session — whether that event was already in history
// or arrives later — and the subscriber is then automatically removed.
func (b *Bus) Subscribe(sessionID string) <-chan models.SessionEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.sessionLocked(sessionID)
	sub := &subscriber{ch: make(chan models.SessionEvent, subscriberBuffer)}

	done := false
	for _, e := range s.history {
		b.deliverLocked(sub, e)
		if e.Type == models.SessionEventAgentDone {
			done = true
			break
		}
	}
	if !done {
		s.subscribers = append(s.subscribers, sub)
	}
	return sub.ch
}

// Unsubscribe removes ch from its session's subscriber list and closes it,
// without waiting for an agent_done event. Safe to call more than once or
// on an already-terminated channel.
func (b *Bus) Unsubscribe(sessionID string, ch <-chan models.SessionEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.sessions[sessionID]
	if !ok {
		return
	}
	remaining := s.subscribers[:0]
	for _, sub := range s.subscribers {
		if (<-chan models.SessionEvent)(sub.ch) == ch {
			close(sub.ch)
			continue
		}
		remaining = append(remaining, sub)
	}
	s.subscribers = remaining
}

// GetRecent returns a copy of the session's current history buffer.
func (b *Bus) GetRecent(sessionID string) []models.SessionEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sessions[sessionID]
	if !ok {
		return nil
	}
	return append([]models.SessionEvent(nil), s.history...)
}

// CleanupSession removes a session's history and closes all of its
// remaining subscriber channels.
func (b *Bus) CleanupSession(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sessions[sessionID]
	if !ok {
		return
	}
	for _, sub := range s.subscribers {
		close(sub.ch)
	}
	delete(b.sessions, sessionID)
}
