package chat

import "time"

// Message is one direct-chat message. Sender is the username string the
// client declared, not a foreign key; direct chat predates verified
// sender ids and the wire format keeps it that way.
type Message struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Sender    string    `gorm:"type:varchar(100);not null" json:"sender"`
	Body      string    `gorm:"type:text" json:"message"`
	Thread    string    `gorm:"type:varchar(50);index;not null" json:"thread"`
	FileID    *string   `gorm:"type:varchar(26);index" json:"file_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (Message) TableName() string { return "chat_messages" }

// Notification marks a message as unseen for its recipient. Seen only
// ever flips false -> true.
type Notification struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	MessageID uint64    `gorm:"index;not null" json:"message_id"`
	Message   Message   `gorm:"foreignKey:MessageID" json:"-"`
	UserID    uint64    `gorm:"index;not null" json:"user_id"`
	Seen      bool      `gorm:"not null;default:false" json:"is_seen"`
	CreatedAt time.Time `json:"created_at"`
}

func (Notification) TableName() string { return "chat_notifications" }

// File is a direct-chat attachment. ULID-keyed so the id doubles as the
// storage key prefix.
type File struct {
	ID         string    `gorm:"primaryKey;size:26" json:"file_id"`
	StorageKey string    `gorm:"type:varchar(255);not null" json:"-"`
	Filename   string    `gorm:"type:varchar(255);not null" json:"filename"`
	FileType   string    `gorm:"type:varchar(100)" json:"file_type"`
	UploaderID uint64    `gorm:"index;not null" json:"uploader_id"`
	Thread     string    `gorm:"type:varchar(50);index;not null" json:"thread"`
	CreatedAt  time.Time `json:"uploaded_at"`
}

func (File) TableName() string { return "chat_files" }

// FilePayload is the file_data object carried on the wire, both in the
// inbound envelope and inside chat_message broadcasts.
type FilePayload struct {
	FileID   string `json:"file_id,omitempty"`
	Filename string `json:"filename"`
	FileURL  string `json:"file_url"`
	FileType string `json:"file_type"`
}
