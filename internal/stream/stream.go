// Package stream fans ledger events out to live subscribers of a group.
package stream

import (
	"context"
	"sync"
	"time"

	"sharedledger.org/internal/ledger"
)

const EventExpenseAdded = "expense.added"

// Event is one change to a group.
type Event struct {
	Type      string          `json:"type"`
	GroupID   int64           `json:"groupId"`
	Expense   *ledger.Expense `json:"expense,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

type subscriber struct {
	group int64
	ch    chan Event
}

// Stream fan-outs events to all active subscribers of the event's group.
type Stream struct {
	mu   sync.RWMutex
	subs map[int]subscriber
	next int
}

func New() *Stream {
	return &Stream{subs: make(map[int]subscriber)}
}

// Subscribe registers a subscriber for groupID and returns a channel which
// will receive its events. The channel is closed when ctx ends.
func (s *Stream) Subscribe(ctx context.Context, groupID int64) <-chan Event {
	ch := make(chan Event, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = subscriber{group: groupID, ch: ch}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish delivers evt to the group's subscribers. Slow subscribers miss
// events rather than block the publisher.
func (s *Stream) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sub := range s.subs {
		if sub.group != evt.GroupID {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
		}
	}
}

// Subscribers reports how many subscriptions are open.
func (s *Stream) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}
