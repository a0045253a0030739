package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/suPer8Hu/gopherchat/internal/bus"
	"github.com/suPer8Hu/gopherchat/internal/notify"
)

const (
	EventMessage    = "chat_message"
	EventTyping     = "typing"
	EventReadStatus = "read_status"
)

// RoomID computes the deterministic direct-room identifier for a pair of
// user ids. Symmetric: RoomID(a, b) == RoomID(b, a).
func RoomID(a, b uint64) string {
	if a > b {
		return fmt.Sprintf("%d-%d", a, b)
	}
	return fmt.Sprintf("%d-%d", b, a)
}

type messageFrame struct {
	Message     string       `json:"message"`
	Username    string       `json:"username"`
	MessageType string       `json:"message_type"`
	FileData    *FilePayload `json:"file_data,omitempty"`
	MessageID   uint64       `json:"message_id"`
	Timestamp   string       `json:"timestamp"`
}

type typingFrame struct {
	Username string `json:"username"`
	IsTyping bool   `json:"is_typing"`
}

type readStatusFrame struct {
	Thread string `json:"thread"`
	ReadBy string `json:"read_by"`
}

// Service is the direct-message room router: persistence, room
// broadcast, and recipient notification fan-out for 1:1 chat.
type Service struct {
	repo     *Repo
	bus      *bus.Bus
	notifier *notify.Notifier
}

func NewService(repo *Repo, b *bus.Bus, n *notify.Notifier) *Service {
	return &Service{repo: repo, bus: b, notifier: n}
}

func (s *Service) Repo() *Repo { return s.repo }

// SendText persists the message, broadcasts it to the room, and, when
// the declared receiver matches the resolved route peer, creates the
// recipient's notification row and pushes both notification shapes to
// their private channel. A persistence failure aborts the send before
// any broadcast.
func (s *Service) SendText(ctx context.Context, room string, peerID uint64, sender, receiver, body string) (*Message, error) {
	return s.send(ctx, room, peerID, sender, receiver, body, nil)
}

// SendFile records the attachment reference if the uploader did not
// already register it over HTTP, then sends a placeholder message that
// carries the original file descriptor in the broadcast payload.
func (s *Service) SendFile(ctx context.Context, room string, peerID uint64, sender, receiver string, fd FilePayload) (*Message, error) {
	if fd.FileID == "" {
		return nil, errors.New("chat: file_data.file_id required")
	}

	if _, err := s.repo.GetFile(ctx, fd.FileID); err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		// Upload happened outside our HTTP surface; keep the reference.
		senderUser, uerr := s.repo.GetUserByUsername(ctx, sender)
		var uploaderID uint64
		if uerr == nil {
			uploaderID = senderUser.ID
		}
		f := &File{
			ID:         fd.FileID,
			StorageKey: fd.FileURL,
			Filename:   fd.Filename,
			FileType:   fd.FileType,
			UploaderID: uploaderID,
			Thread:     room,
		}
		if err := s.repo.CreateFile(ctx, f); err != nil {
			return nil, err
		}
	}

	body := "Sent a file: " + fd.Filename
	return s.send(ctx, room, peerID, sender, receiver, body, &fd)
}

func (s *Service) send(ctx context.Context, room string, peerID uint64, sender, receiver, body string, fd *FilePayload) (*Message, error) {
	msg := &Message{Sender: sender, Body: body, Thread: room}
	if fd != nil {
		msg.FileID = &fd.FileID
	}
	if err := s.repo.CreateMessage(ctx, msg); err != nil {
		return nil, err
	}

	// Notification targeting: the declared receiver must match the
	// resolved identity of the route peer and differ from the sender.
	// A peer that vanished between check and use means no notification.
	var recipient uint64
	peer, err := s.repo.GetUser(ctx, peerID)
	if err == nil && peer.Username == receiver && peer.Username != sender {
		if err := s.repo.CreateNotification(ctx, msg.ID, peer.ID); err != nil {
			return nil, err
		}
		recipient = peer.ID
	}

	s.broadcastMessage(room, msg, fd)

	if recipient != 0 {
		s.pushToRecipient(ctx, recipient, sender, body)
	}
	return msg, nil
}

func (s *Service) broadcastMessage(room string, msg *Message, fd *FilePayload) {
	kind := "text"
	if fd != nil {
		kind = "file"
	}
	frame := messageFrame{
		Message:     msg.Body,
		Username:    msg.Sender,
		MessageType: kind,
		FileData:    fd,
		MessageID:   msg.ID,
		Timestamp:   msg.CreatedAt.Format(time.RFC3339),
	}
	evt, err := bus.NewEvent(EventMessage, frame)
	if err != nil {
		log.Printf("chat: marshal message frame: %v", err)
		return
	}
	s.bus.Publish(bus.DirectRoomChannel(room), evt)
}

func (s *Service) pushToRecipient(ctx context.Context, userID uint64, sender, body string) {
	items, err := s.repo.UnseenItems(ctx, userID)
	if err != nil {
		log.Printf("chat: unseen list for user %d: %v", userID, err)
	} else {
		s.notifier.PushList(userID, items)
	}
	s.notifier.PushOne(ctx, userID, notify.Item{
		SenderUsername: sender,
		MessagePreview: notify.Preview(body),
	})
}

// Typing broadcasts the ephemeral typing indicator; nothing is persisted.
func (s *Service) Typing(room, username string, isTyping bool) {
	evt, err := bus.NewEvent(EventTyping, typingFrame{Username: username, IsTyping: isTyping})
	if err != nil {
		log.Printf("chat: marshal typing frame: %v", err)
		return
	}
	s.bus.Publish(bus.DirectRoomChannel(room), evt)
}

// MarkRead flips the reader's unseen notifications for the room,
// broadcasts the read receipt, and refreshes the reader's own list.
// Idempotent.
func (s *Service) MarkRead(ctx context.Context, room string, readerID uint64, readerUsername string) error {
	if err := s.repo.MarkThreadSeen(ctx, room, readerID); err != nil {
		return err
	}

	evt, err := bus.NewEvent(EventReadStatus, readStatusFrame{Thread: room, ReadBy: readerUsername})
	if err != nil {
		log.Printf("chat: marshal read_status frame: %v", err)
	} else {
		s.bus.Publish(bus.DirectRoomChannel(room), evt)
	}

	items, err := s.repo.UnseenItems(ctx, readerID)
	if err != nil {
		log.Printf("chat: unseen list for user %d: %v", readerID, err)
		return nil
	}
	s.notifier.PushList(readerID, items)
	return nil
}
