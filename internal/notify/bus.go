// Package notify fans events out to the live sessions of a user.
package notify

import (
	"sync"

	"messer/internal/metrics"
)

// Event types pushed to clients.
const (
	ReceivedMessage   = "received_message"
	NewFriendRequest  = "new_friend_request"
	NewFriend         = "new_friend"
	RemovedFriend     = "removed_friend"
	ConnectionClosing = "connection_closing"
)

// Event is addressed to every live session of Recipient.
type Event struct {
	Recipient string
	Type      string
	Content   any
}

// Subscriber is a live session handle. Deliver must not block; it reports
// whether the event was accepted.
type Subscriber interface {
	Deliver(Event) bool
}

// Bus maps user IDs to their subscribed sessions.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]map[Subscriber]struct{}
}

func NewBus() *Bus {
	return &Bus{subs: make(map[string]map[Subscriber]struct{})}
}

func (b *Bus) Subscribe(userID string, s Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	set, ok := b.subs[userID]
	if !ok {
		set = make(map[Subscriber]struct{})
		b.subs[userID] = set
	}
	set[s] = struct{}{}
}

func (b *Bus) Unsubscribe(userID string, s Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	set, ok := b.subs[userID]
	if !ok {
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(b.subs, userID)
	}
}

// Sessions reports how many sessions userID has subscribed.
func (b *Bus) Sessions(userID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[userID])
}

// Publish delivers each event to every session of its recipient. Delivery
// happens outside the registry lock, so a subscriber may unsubscribe from
// inside Deliver.
func (b *Bus) Publish(events ...Event) {
	for _, ev := range events {
		for _, s := range b.snapshot(ev.Recipient) {
			if s.Deliver(ev) {
				metrics.EventsPublished.WithLabelValues(ev.Type).Inc()
			} else {
				metrics.EventsDropped.WithLabelValues(ev.Type).Inc()
			}
		}
	}
}

func (b *Bus) snapshot(userID string) []Subscriber {
	b.mu.RLock()
	defer b.mu.RUnlock()

	set := b.subs[userID]
	if len(set) == 0 {
		return nil
	}
	out := make([]Subscriber, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	return out
}
