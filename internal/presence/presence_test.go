package presence

import (
	"context"
	"sync"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/suPer8Hu/gopherchat/internal/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(gormsqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// sqlite has one writer; funneling through one connection avoids
	// spurious SQLITE_BUSY under the concurrent tests.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&models.User{}, &models.UserProfile{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func seedUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()
	u := &models.User{Username: username, Email: username + "@example.com", PasswordHash: "x"}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("seed user %s: %v", username, err)
	}
	return u
}

func TestSetOnline_CreatesProfileLazily(t *testing.T) {
	db := openTestDB(t)
	tr := NewTracker(db)
	seedUser(t, db, "alice")

	online, err := tr.Online(context.Background(), "alice")
	if err != nil {
		t.Fatalf("online before any update: %v", err)
	}
	if online {
		t.Fatalf("user online before first update")
	}

	tr.SetOnline(context.Background(), "alice", true)

	online, err = tr.Online(context.Background(), "alice")
	if err != nil {
		t.Fatalf("online: %v", err)
	}
	if !online {
		t.Fatalf("expected online after update")
	}

	var cnt int64
	if err := db.Model(&models.UserProfile{}).Count(&cnt).Error; err != nil {
		t.Fatalf("count profiles: %v", err)
	}
	if cnt != 1 {
		t.Fatalf("profile rows = %d, want 1", cnt)
	}
}

func TestSetOnline_ConcurrentFlips(t *testing.T) {
	db := openTestDB(t)
	tr := NewTracker(db)
	alice := seedUser(t, db, "alice")

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				tr.SetOnline(context.Background(), "alice", (g+i)%2 == 0)
			}
		}(g)
	}
	wg.Wait()

	// The racing flips must not duplicate the lazily created row.
	var cnt int64
	if err := db.Model(&models.UserProfile{}).Where("user_id = ?", alice.ID).Count(&cnt).Error; err != nil {
		t.Fatalf("count profiles: %v", err)
	}
	if cnt != 1 {
		t.Fatalf("profile rows = %d, want 1", cnt)
	}

	tr.SetOnline(context.Background(), "alice", true)
	online, err := tr.Online(context.Background(), "alice")
	if err != nil {
		t.Fatalf("online: %v", err)
	}
	if !online {
		t.Fatalf("final state lost")
	}
}

func TestSetOnline_UnknownUserIsSwallowed(t *testing.T) {
	db := openTestDB(t)
	tr := NewTracker(db)

	// Must neither panic nor create anything.
	tr.SetOnline(context.Background(), "ghost", true)

	var cnt int64
	if err := db.Model(&models.UserProfile{}).Count(&cnt).Error; err != nil {
		t.Fatalf("count profiles: %v", err)
	}
	if cnt != 0 {
		t.Fatalf("profile rows = %d, want 0", cnt)
	}
	if _, err := tr.Online(context.Background(), "ghost"); err == nil {
		t.Fatalf("expected lookup error for unknown user")
	}
}
