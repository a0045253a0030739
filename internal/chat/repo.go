package chat

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

func (r *Repo) GetUser(ctx context.Context, id uint64) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *Repo) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *Repo) CreateMessage(ctx context.Context, m *Message) error {
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *Repo) CreateNotification(ctx context.Context, messageID, userID uint64) error {
	return r.db.WithContext(ctx).Create(&Notification{MessageID: messageID, UserID: userID}).Error
}

// ListThreadMessages returns a room's history in creation order.
func (r *Repo) ListThreadMessages(ctx context.Context, thread string) ([]Message, error) {
	var msgs []Message
	if err := r.db.WithContext(ctx).
		Where("thread = ?", thread).
		Order("id ASC").
		Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

// UnseenItems builds the user's unseen notification list, creation
// ascending for determinism.
func (r *Repo) UnseenItems(ctx context.Context, userID uint64) ([]notify.Item, error) {
	var notifs []Notification
	if err := r.db.WithContext(ctx).
		Preload("Message").
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
			SenderUsername: n.Message.Sender,
			Timestamp:      ts,
			MessagePreview: notify.Preview(n.Message.Body),
		})
	}
	return items, nil
}

// MarkThreadSeen flips the reader's unseen notifications for one room.
// Re-marking already-seen rows is a no-op.
func (r *Repo) MarkThreadSeen(ctx context.Context, thread string, userID uint64) error {
	sub := r.db.Model(&Message{}).Select("id").Where("thread = ?", thread)
	return r.db.WithContext(ctx).
		Model(&Notification{}).
		Where("user_id = ? AND seen = ? AND message_id IN (?)", userID, false, sub).
		Update("seen", true).Error
}

// MarkAllSeen clears every direct-chat notification the user has.
func (r *Repo) MarkAllSeen(ctx context.Context, userID uint64) error {
	return r.db.WithContext(ctx).
		Model(&Notification{}).
		Where("user_id = ? AND seen = ?", userID, false).
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
