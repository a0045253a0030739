// Package presence maintains the per-user online flag under concurrent
// mutation from many sessions. Every write goes through a short
// row-locked transaction; there is no in-memory shadow state to desync.
package presence

import (
	"context"
	"errors"
	"log"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/suPer8Hu/gopherchat/internal/models"
)

type Tracker struct {
	db *gorm.DB
}

func NewTracker(db *gorm.DB) *Tracker {
	return &Tracker{db: db}
}

// lockRow scopes an exclusive row lock to the single user/profile pair.
// sqlite has no FOR UPDATE syntax; its single-writer engine serializes
// these transactions anyway.
func (t *Tracker) lockRow(tx *gorm.DB) *gorm.DB {
	if t.db.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// SetOnline flips the user's online flag. Concurrent calls for the same
// user serialize on the row lock; different users proceed independently.
// Failures are logged and swallowed: a presence update must never crash
// or block the surrounding connect/send flow.
func (t *Tracker) SetOnline(ctx context.Context, username string, online bool) {
	err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := t.lockRow(tx).Where("username = ?", username).First(&user).Error; err != nil {
			return err
		}

		var profile models.UserProfile
		err := t.lockRow(tx).Where("user_id = ?", user.ID).First(&profile).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			profile = models.UserProfile{UserID: user.ID, Name: user.Username, Online: online}
			return tx.Create(&profile).Error
		}
		if err != nil {
			return err
		}
		return tx.Model(&profile).Update("online", online).Error
	})
	if err != nil {
		log.Printf("presence: update for %q: %v", username, err)
	}
}

// Online reports the stored flag. A user without a profile row has never
// been online.
func (t *Tracker) Online(ctx context.Context, username string) (bool, error) {
	var user models.User
	if err := t.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return false, err
	}
	var profile models.UserProfile
	err := t.db.WithContext(ctx).Where("user_id = ?", user.ID).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return profile.Online, nil
}
