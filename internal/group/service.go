package group

import (
	"context"
	"log"
	"time"

	"github.com/suPer8Hu/gopherchat/internal/bus"
	"github.com/suPer8Hu/gopherchat/internal/chat"
	"github.com/suPer8Hu/gopherchat/internal/models"
	"github.com/suPer8Hu/gopherchat/internal/notify"
)

type senderRef struct {
	ID       uint64 `json:"id"`
	Username string `json:"username"`
}

type messageFrame struct {
	Message     string            `json:"message"`
	Sender      senderRef         `json:"sender"`
	MessageType string            `json:"message_type"`
	FileData    *chat.FilePayload `json:"file_data,omitempty"`
	MessageID   uint64            `json:"message_id"`
	Timestamp   string            `json:"timestamp"`
}

type typingFrame struct {
	Username string `json:"username"`
	IsTyping bool   `json:"is_typing"`
}

type readStatusFrame struct {
	GroupID uint64 `json:"group_id"`
	ReadBy  string `json:"read_by"`
}

// Service is the group chat router: membership-gated rooms with bulk
// notification fan-out to every member except the sender.
type Service struct {
	repo     *Repo
	bus      *bus.Bus
	notifier *notify.Notifier
}

func NewService(repo *Repo, b *bus.Bus, n *notify.Notifier) *Service {
	return &Service{repo: repo, bus: b, notifier: n}
}

func (s *Service) Repo() *Repo { return s.repo }

// JoinCheck gates room entry; non-members never reach subscription.
func (s *Service) JoinCheck(ctx context.Context, userID, groupID uint64) (bool, error) {
	return s.repo.IsMember(ctx, groupID, userID)
}

// SendText persists the message, fans notifications out to the
// membership snapshot, and broadcasts to the group room. Broadcast and
// fan-out both happen strictly after the durable write.
func (s *Service) SendText(ctx context.Context, groupID uint64, sender *models.User, content string) (*Message, error) {
	return s.send(ctx, groupID, sender, content, nil)
}

// SendFile mirrors direct chat: register the attachment if unknown,
// then send the placeholder message carrying the descriptor.
func (s *Service) SendFile(ctx context.Context, groupID uint64, sender *models.User, fd chat.FilePayload) (*Message, error) {
	if fd.FileID != "" {
		if _, err := s.repo.GetFile(ctx, fd.FileID); err != nil {
			f := &File{
				ID:         fd.FileID,
				StorageKey: fd.FileURL,
				Filename:   fd.Filename,
				FileType:   fd.FileType,
				UploaderID: sender.ID,
				GroupID:    groupID,
			}
			if cerr := s.repo.CreateFile(ctx, f); cerr != nil {
				return nil, cerr
			}
		}
	}
	content := "Sent a file: " + fd.Filename
	return s.send(ctx, groupID, sender, content, &fd)
}

func (s *Service) send(ctx context.Context, groupID uint64, sender *models.User, content string, fd *chat.FilePayload) (*Message, error) {
	msg := &Message{GroupID: groupID, SenderID: sender.ID, Content: content}
	if fd != nil && fd.FileID != "" {
		msg.FileID = &fd.FileID
	}
	if err := s.repo.CreateMessage(ctx, msg); err != nil {
		return nil, err
	}

	// One membership snapshot, taken after the durable write, reused by
	// both the bulk insert and the per-member push loop.
	memberIDs, err := s.repo.MemberIDs(ctx, groupID)
	if err != nil {
		log.Printf("group %d: membership snapshot: %v", groupID, err)
		memberIDs = nil
	}
	recipients := make([]uint64, 0, len(memberIDs))
	for _, id := range memberIDs {
		if id != sender.ID {
			recipients = append(recipients, id)
		}
	}

	if err := s.repo.BulkCreateNotifications(ctx, groupID, msg.ID, recipients); err != nil {
		log.Printf("group %d: bulk notifications: %v", groupID, err)
		recipients = nil
	}

	s.broadcastMessage(groupID, sender, msg, fd)
	s.fanOut(ctx, groupID, sender.Username, content, recipients)

	return msg, nil
}

func (s *Service) broadcastMessage(groupID uint64, sender *models.User, msg *Message, fd *chat.FilePayload) {
	kind := "text"
	if fd != nil {
		kind = "file"
	}
	frame := messageFrame{
		Message:     msg.Content,
		Sender:      senderRef{ID: sender.ID, Username: sender.Username},
		MessageType: kind,
		FileData:    fd,
		MessageID:   msg.ID,
		Timestamp:   msg.CreatedAt.Format(time.RFC3339),
	}
	evt, err := bus.NewEvent(chat.EventMessage, frame)
	if err != nil {
		log.Printf("group %d: marshal message frame: %v", groupID, err)
		return
	}
	s.bus.Publish(bus.GroupChannel(groupID), evt)
}

// fanOut pushes the dual notification shapes to each recipient. A
// failure for one member never blocks the rest.
func (s *Service) fanOut(ctx context.Context, groupID uint64, senderUsername, content string, recipients []uint64) {
	if len(recipients) == 0 {
		return
	}

	var groupName string
	if g, err := s.repo.GetGroup(ctx, groupID); err == nil {
		groupName = g.Name
	}

	preview := notify.Preview(content)
	for _, uid := range recipients {
		items, err := s.repo.UnseenItems(ctx, uid)
		if err != nil {
			log.Printf("group %d: unseen list for user %d: %v", groupID, uid, err)
		} else {
			s.notifier.PushList(uid, items)
		}
		s.notifier.PushOne(ctx, uid, notify.Item{
			SenderUsername: senderUsername,
			MessagePreview: preview,
			GroupID:        groupID,
			GroupName:      groupName,
		})
	}
}

// Typing broadcasts the ephemeral typing indicator to the group room.
func (s *Service) Typing(groupID uint64, username string, isTyping bool) {
	evt, err := bus.NewEvent(chat.EventTyping, typingFrame{Username: username, IsTyping: isTyping})
	if err != nil {
		log.Printf("group %d: marshal typing frame: %v", groupID, err)
		return
	}
	s.bus.Publish(bus.GroupChannel(groupID), evt)
}

// MarkRead flips the reader's unseen notifications for the group and
// broadcasts the read receipt. Idempotent.
func (s *Service) MarkRead(ctx context.Context, groupID, readerID uint64, readerUsername string) error {
	if err := s.repo.MarkGroupSeen(ctx, groupID, readerID); err != nil {
		return err
	}

	evt, err := bus.NewEvent(chat.EventReadStatus, readStatusFrame{GroupID: groupID, ReadBy: readerUsername})
	if err != nil {
		log.Printf("group %d: marshal read_status frame: %v", groupID, err)
	} else {
		s.bus.Publish(bus.GroupChannel(groupID), evt)
	}

	items, err := s.repo.UnseenItems(ctx, readerID)
	if err != nil {
		log.Printf("group %d: unseen list for user %d: %v", groupID, readerID, err)
		return nil
	}
	s.notifier.PushList(readerID, items)
	return nil
}
