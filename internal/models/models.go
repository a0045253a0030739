package models

import "time"

type User struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string    `gorm:"type:varchar(100);uniqueIndex;not null" json:"username"`
	Email        string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"type:varchar(100);not null" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"-"`
}

func (User) TableName() string { return "users" }

// UserProfile carries the online flag. Created lazily on the first
// presence change; absent row means offline.
type UserProfile struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	UserID    uint64    `gorm:"uniqueIndex;not null" json:"user_id"`
	Name      string    `gorm:"type:varchar(100)" json:"name"`
	Online    bool      `gorm:"not null;default:false" json:"online"`
	UpdatedAt time.Time `json:"-"`
}

func (UserProfile) TableName() string { return "user_profiles" }
