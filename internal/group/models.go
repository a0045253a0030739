package group

import (
	"time"

	"github.com/suPer8Hu/gopherchat/internal/models"
)

type Group struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string    `gorm:"type:varchar(100);not null" json:"name"`
	CreatedByID uint64    `gorm:"index;not null" json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Group) TableName() string { return "groups" }

// Member is one row of the group/user many-to-many join.
type Member struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	GroupID   uint64    `gorm:"not null;index:idx_group_member,unique,priority:1" json:"group_id"`
	UserID    uint64    `gorm:"not null;index:idx_group_member,unique,priority:2" json:"user_id"`
	CreatedAt time.Time `json:"-"`
}

func (Member) TableName() string { return "group_members" }

// Message is append-only; group history is ordered by creation within a
// group. Sender is a verified FK, unlike direct chat's free-text sender.
type Message struct {
	ID        uint64      `gorm:"primaryKey;autoIncrement" json:"id"`
	GroupID   uint64      `gorm:"index;not null" json:"group_id"`
	SenderID  uint64      `gorm:"index;not null" json:"sender_id"`
	Sender    models.User `gorm:"foreignKey:SenderID" json:"sender"`
	Content   string      `gorm:"type:text;not null" json:"content"`
	FileID    *string     `gorm:"type:varchar(26);index" json:"file_id,omitempty"`
	CreatedAt time.Time   `json:"timestamp"`
}

func (Message) TableName() string { return "group_messages" }

type Notification struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	GroupID   uint64    `gorm:"index;not null" json:"group_id"`
	Group     Group     `gorm:"foreignKey:GroupID" json:"-"`
	UserID    uint64    `gorm:"index;not null" json:"user_id"`
	MessageID uint64    `gorm:"index;not null" json:"message_id"`
	Message   Message   `gorm:"foreignKey:MessageID" json:"-"`
	Seen      bool      `gorm:"not null;default:false" json:"is_seen"`
	CreatedAt time.Time `json:"created_at"`
}

func (Notification) TableName() string { return "group_notifications" }

// File is a group-chat attachment, owned by the group rather than a
// direct-room thread.
type File struct {
	ID         string    `gorm:"primaryKey;size:26" json:"file_id"`
	StorageKey string    `gorm:"type:varchar(255);not null" json:"-"`
	Filename   string    `gorm:"type:varchar(255);not null" json:"filename"`
	FileType   string    `gorm:"type:varchar(100)" json:"file_type"`
	UploaderID uint64    `gorm:"index;not null" json:"uploader_id"`
	GroupID    uint64    `gorm:"index;not null" json:"group_id"`
	CreatedAt  time.Time `json:"uploaded_at"`
}

func (File) TableName() string { return "group_files" }
