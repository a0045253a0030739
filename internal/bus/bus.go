// Package bus is the process-wide broadcast layer: named channels with
// dynamic per-connection subscriptions and best-effort event delivery.
// For a multi-instance deployment this is the seam where an external
// message broker would be substituted.
package bus

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Event is a named frame delivered to every current subscriber of a
// channel. Payload is the pre-marshaled outbound JSON.
type Event struct {
	Name    string
	Payload []byte
}

// NewEvent marshals v as the event payload.
func NewEvent(name string, v any) (Event, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return Event{}, err
	}
	return Event{Name: name, Payload: b}, nil
}

// Subscription is one receiver's inbox. A single subscription may be
// attached to any number of channels.
type Subscription struct {
	events chan Event
}

func NewSubscription(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 64
	}
	return &Subscription{events: make(chan Event, buffer)}
}

func (s *Subscription) Events() <-chan Event { return s.events }

// Deliver hands an event to this subscription directly, with the same
// drop-on-full semantics as a channel publish.
func (s *Subscription) Deliver(evt Event) bool {
	select {
	case s.events <- evt:
		return true
	default:
		return false
	}
}

type Bus struct {
	mu       sync.RWMutex
	channels map[string]map[*Subscription]struct{}
}

func New() *Bus {
	return &Bus{channels: make(map[string]map[*Subscription]struct{})}
}

func (b *Bus) Subscribe(channel string, sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs, ok := b.channels[channel]
	if !ok {
		subs = make(map[*Subscription]struct{})
		b.channels[channel] = subs
	}
	subs[sub] = struct{}{}
}

func (b *Bus) Unsubscribe(channel string, sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs, ok := b.channels[channel]
	if !ok {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(b.channels, channel)
	}
}

// Publish delivers evt to every current subscriber of channel. Delivery
// is at-most-once: a subscriber whose buffer is full misses the event.
// Publishing to a channel with no subscribers is a no-op. Returns the
// number of subscribers the event was handed to.
func (b *Bus) Publish(channel string, evt Event) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for sub := range b.channels[channel] {
		select {
		case sub.events <- evt:
			delivered++
		default:
		}
	}
	return delivered
}

// Subscribers reports the current subscriber count of a channel.
func (b *Bus) Subscribers(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.channels[channel])
}

// Channel naming scheme shared by the routers and the socket handlers.

func DirectRoomChannel(room string) string { return "chat_" + room }

func GroupChannel(groupID uint64) string { return fmt.Sprintf("group_%d", groupID) }

// UserChannel is the private per-user notification channel. It exists
// implicitly for every user id; nobody has to create it before publishing.
func UserChannel(userID uint64) string { return fmt.Sprintf("user_%d", userID) }

const OnlineChannel = "online"
