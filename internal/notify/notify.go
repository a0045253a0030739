// Package notify implements the notification fan-out protocol shared by
// the direct-chat and group-chat routers: unseen-list pushes and compact
// single-item pushes onto a user's private channel, with an optional
// relay of single pushes to the external push-delivery queue.
package notify

import (
	"context"
	"log"

	"github.com/suPer8Hu/gopherchat/internal/bus"
	"github.com/suPer8Hu/gopherchat/internal/store/rabbitmq"
)

const (
	EventList   = "notify-list"
	EventSingle = "notify-one"
)

// PreviewLimit is the number of body characters shown in a notification.
const PreviewLimit = 50

// Preview returns the first 50 characters of body, with an ellipsis
// marker when truncated.
func Preview(body string) string {
	runes := []rune(body)
	if len(runes) <= PreviewLimit {
		return body
	}
	return string(runes[:PreviewLimit]) + "..."
}

// Item is one unseen notification as shown to the client.
type Item struct {
	SenderUsername string `json:"sender_username"`
	Timestamp      string `json:"timestamp"`
	MessagePreview string `json:"message_preview"`
	GroupID        uint64 `json:"group_id,omitempty"`
	GroupName      string `json:"group_name,omitempty"`
}

type listFrame struct {
	UnseenNotifications []Item `json:"unseen_notifications"`
	UnseenCount         int    `json:"unseen_count"`
}

type singleFrame struct {
	Notification Item `json:"notification"`
}

// Notifier pushes onto private per-user channels. Relay may be nil; the
// in-process fan-out never depends on it.
type Notifier struct {
	Bus   *bus.Bus
	Relay *rabbitmq.Publisher
}

func New(b *bus.Bus) *Notifier { return &Notifier{Bus: b} }

// ListEvent builds the list-push frame. items may be empty, which
// signals the client to clear its badge.
func ListEvent(items []Item) (bus.Event, error) {
	if items == nil {
		items = []Item{}
	}
	return bus.NewEvent(EventList, listFrame{UnseenNotifications: items, UnseenCount: len(items)})
}

// PushList sends the user's full unseen list.
func (n *Notifier) PushList(userID uint64, items []Item) {
	evt, err := ListEvent(items)
	if err != nil {
		log.Printf("notify: marshal list for user %d: %v", userID, err)
		return
	}
	n.Bus.Publish(bus.UserChannel(userID), evt)
}

// PushOne sends the compact toast notification and, when a relay is
// configured, hands the same payload to the push-delivery queue. Relay
// failures are logged and never affect the in-process push.
func (n *Notifier) PushOne(ctx context.Context, userID uint64, item Item) {
	evt, err := bus.NewEvent(EventSingle, singleFrame{Notification: item})
	if err != nil {
		log.Printf("notify: marshal single for user %d: %v", userID, err)
		return
	}
	n.Bus.Publish(bus.UserChannel(userID), evt)

	if n.Relay != nil {
		msg := rabbitmq.PushMessage{
			UserID:         userID,
			SenderUsername: item.SenderUsername,
			MessagePreview: item.MessagePreview,
			GroupID:        item.GroupID,
			GroupName:      item.GroupName,
		}
		if err := n.Relay.PublishPush(ctx, msg); err != nil {
			log.Printf("notify: push relay for user %d: %v", userID, err)
		}
	}
}
