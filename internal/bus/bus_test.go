package bus

import "testing"

func TestPublishReachesAllSubscribers(t *testing.T) {
	b := New()
	s1 := NewSubscription(4)
	s2 := NewSubscription(4)
	b.Subscribe("room", s1)
	b.Subscribe("room", s2)

	evt, err := NewEvent("chat_message", map[string]string{"message": "hi"})
	if err != nil {
		t.Fatalf("new event: %v", err)
	}
	if n := b.Publish("room", evt); n != 2 {
		t.Fatalf("expected delivery to 2 subscribers, got %d", n)
	}

	for i, s := range []*Subscription{s1, s2} {
		select {
		case got := <-s.Events():
			if got.Name != "chat_message" {
				t.Fatalf("subscriber %d: unexpected event name %q", i, got.Name)
			}
		default:
			t.Fatalf("subscriber %d: no event buffered", i)
		}
	}
}

func TestPublishToEmptyChannelIsDropped(t *testing.T) {
	b := New()
	evt, _ := NewEvent("chat_message", map[string]string{"message": "hi"})
	if n := b.Publish("nobody-here", evt); n != 0 {
		t.Fatalf("expected 0 deliveries, got %d", n)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()
	s := NewSubscription(4)
	b.Subscribe("room", s)
	b.Unsubscribe("room", s)

	if got := b.Subscribers("room"); got != 0 {
		t.Fatalf("expected 0 subscribers after unsubscribe, got %d", got)
	}
	evt, _ := NewEvent("typing", nil)
	if n := b.Publish("room", evt); n != 0 {
		t.Fatalf("expected 0 deliveries after unsubscribe, got %d", n)
	}
}

func TestFullBufferDropsInsteadOfBlocking(t *testing.T) {
	b := New()
	s := NewSubscription(1)
	b.Subscribe("room", s)

	evt, _ := NewEvent("chat_message", map[string]string{"message": "a"})
	if n := b.Publish("room", evt); n != 1 {
		t.Fatalf("first publish should deliver, got %d", n)
	}
	// Buffer now full; this one must be dropped without blocking.
	if n := b.Publish("room", evt); n != 0 {
		t.Fatalf("second publish should drop, got %d", n)
	}
}

func TestChannelNames(t *testing.T) {
	if got := DirectRoomChannel("5-3"); got != "chat_5-3" {
		t.Fatalf("direct channel: %q", got)
	}
	if got := GroupChannel(7); got != "group_7" {
		t.Fatalf("group channel: %q", got)
	}
	if got := UserChannel(42); got != "user_42" {
		t.Fatalf("user channel: %q", got)
	}
}
