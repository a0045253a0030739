package db

import (
	"log"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/suPer8Hu/gopherchat/internal/chat"
	"github.com/suPer8Hu/gopherchat/internal/group"
	"github.com/suPer8Hu/gopherchat/internal/models"
)

func Connect(dsn string) *gorm.DB {
	gdb, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	if err := Migrate(gdb); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	return gdb
}

// Migrate is shared with the sqlite-backed tests.
func Migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&models.User{},
		&models.UserProfile{},
		&chat.Message{},
		&chat.Notification{},
		&chat.File{},
		&group.Group{},
		&group.Member{},
		&group.Message{},
		&group.Notification{},
		&group.File{},
	)
}
