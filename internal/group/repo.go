package group

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/suPer8Hu/gopherchat/internal/models"
	"github.com/suPer8Hu/gopherchat/internal/notify"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// CreateGroup creates the group, its membership rows, and the welcome
// message in one transaction. The creator is always a member.
func (r *Repo) CreateGroup(ctx context.Context, name string, creator *models.User, memberIDs []uint64) (*Group, error) {
	g := &Group{Name: name, CreatedByID: creator.ID}

	seen := map[uint64]struct{}{creator.ID: {}}
	ids := []uint64{creator.ID}
	for _, id := range memberIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(g).Error; err != nil {
			return err
		}
		members := make([]Member, 0, len(ids))
		for _, id := range ids {
			members = append(members, Member{GroupID: g.ID, UserID: id})
		}
		if err := tx.Create(&members).Error; err != nil {
			return err
		}
		welcome := &Message{
			GroupID:  g.ID,
			SenderID: creator.ID,
			Content:  creator.Username + " created this group",
		}
		return tx.Create(welcome).Error
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

func (r *Repo) GetGroup(ctx context.Context, id uint64) (*Group, error) {
	var g Group
	if err := r.db.WithContext(ctx).First(&g, id).Error; err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *Repo) ListUserGroups(ctx context.Context, userID uint64) ([]Group, error) {
	var groups []Group
	if err := r.db.WithContext(ctx).
		Joins("JOIN group_members ON group_members.group_id = groups.id").
		Where("group_members.user_id = ?", userID).
		Find(&groups).Error; err != nil {
		return nil, err
	}
	return groups, nil
}

func (r *Repo) IsMember(ctx context.Context, groupID, userID uint64) (bool, error) {
	var cnt int64
	if err := r.db.WithContext(ctx).
		Model(&Member{}).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Count(&cnt).Error; err != nil {
		return false, err
	}
	return cnt > 0, nil
}

// MemberIDs is the membership snapshot: captured once per send and
// reused for both the bulk insert and the per-member push loop.
func (r *Repo) MemberIDs(ctx context.Context, groupID uint64) ([]uint64, error) {
	var ids []uint64
	if err := r.db.WithContext(ctx).
		Model(&Member{}).
		Where("group_id = ?", groupID).
		Order("user_id ASC").
		Pluck("user_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *Repo) CreateMessage(ctx context.Context, m *Message) error {
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *Repo) GetUser(ctx context.Context, id uint64) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// ListMessages returns a group's history, timestamp ascending, with the
// sender loaded for display.
func (r *Repo) ListMessages(ctx context.Context, groupID uint64) ([]Message, error) {
	var msgs []Message
	if err := r.db.WithContext(ctx).
		Preload("Sender").
		Where("group_id = ?", groupID).
		Order("id ASC").
		Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

// BulkCreateNotifications inserts one notification per recipient in a
// single batch so an interrupted send never leaves a partial fan-out.
func (r *Repo) BulkCreateNotifications(ctx context.Context, groupID, messageID uint64, recipientIDs []uint64) error {
	if len(recipientIDs) == 0 {
		return nil
	}
	notifs := make([]Notification, 0, len(recipientIDs))
	for _, uid := range recipientIDs {
		notifs = append(notifs, Notification{GroupID: groupID, UserID: uid, MessageID: messageID})
	}
	return r.db.WithContext(ctx).Create(&notifs).Error
}

// UnseenItems builds the user's unseen group-notification list across
// all their groups, creation ascending.
func (r *Repo) UnseenItems(ctx context.Context, userID uint64) ([]notify.Item, error) {
	var notifs []Notification
	if err := r.db.WithContext(ctx).
		Preload("Message.Sender").
		Preload("Group").
		Where("user_id = ? AND seen = ?", userID, false).
		Order("id ASC").
		Find(&notifs).Error; err != nil {
		return nil, err
	}

	items := make([]notify.Item, 0, len(notifs))
	for _, n := range notifs {
		ts := ""
		if !n.Message.CreatedAt.IsZero() {
			ts = n.Message.CreatedAt.Format(time.RFC3339)
		}
		items = append(items, notify.Item{
			SenderUsername: n.Message.Sender.Username,
			Timestamp:      ts,
			MessagePreview: notify.Preview(n.Message.Content),
			GroupID:        n.GroupID,
			GroupName:      n.Group.Name,
		})
	}
	return items, nil
}

// MarkGroupSeen flips the reader's unseen notifications for one group.
// Idempotent.
func (r *Repo) MarkGroupSeen(ctx context.Context, groupID, userID uint64) error {
	return r.db.WithContext(ctx).
		Model(&Notification{}).
		Where("group_id = ? AND user_id = ? AND seen = ?", groupID, userID, false).
		Update("seen", true).Error
}

func (r *Repo) CreateFile(ctx context.Context, f *File) error {
	return r.db.WithContext(ctx).Create(f).Error
}

func (r *Repo) GetFile(ctx context.Context, id string) (*File, error) {
	var f File
	if err := r.db.WithContext(ctx).First(&f, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &f, nil
}
