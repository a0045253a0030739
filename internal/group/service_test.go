package group

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/suPer8Hu/gopherchat/internal/bus"
	"github.com/suPer8Hu/gopherchat/internal/chat"
	"github.com/suPer8Hu/gopherchat/internal/models"
	"github.com/suPer8Hu/gopherchat/internal/notify"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(gormsqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}, &Group{}, &Member{}, &Message{}, &Notification{}, &File{}); err != nil {
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

func newTestService(db *gorm.DB) (*Service, *bus.Bus) {
	b := bus.New()
	return NewService(NewRepo(db), b, notify.New(b)), b
}

func TestCreateGroup_CreatorMemberAndWelcome(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)

	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")
	carol := seedUser(t, db, "carol")

	// Duplicates and the creator's own id collapse into one row each.
	g, err := repo.CreateGroup(context.Background(), "weekend", alice, []uint64{bob.ID, carol.ID, bob.ID, alice.ID})
	if err != nil {
		t.Fatalf("create group: %v", err)
	}

	ids, err := repo.MemberIDs(context.Background(), g.ID)
	if err != nil {
		t.Fatalf("member ids: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("member rows = %d, want 3", len(ids))
	}

	msgs, err := repo.ListMessages(context.Background(), g.ID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Content != "alice created this group" {
		t.Fatalf("unexpected welcome history: %+v", msgs)
	}
}

func TestSendText_FanOutExcludesSender(t *testing.T) {
	db := openTestDB(t)
	svc, b := newTestService(db)
	repo := svc.Repo()

	users := make([]*models.User, 0, 5)
	memberIDs := make([]uint64, 0, 4)
	for i := 0; i < 5; i++ {
		u := seedUser(t, db, fmt.Sprintf("user%d", i))
		users = append(users, u)
		if i > 0 {
			memberIDs = append(memberIDs, u.ID)
		}
	}
	sender := users[0]

	g, err := repo.CreateGroup(context.Background(), "standup", sender, memberIDs)
	if err != nil {
		t.Fatalf("create group: %v", err)
	}

	roomSub := bus.NewSubscription(8)
	b.Subscribe(bus.GroupChannel(g.ID), roomSub)

	subs := make(map[uint64]*bus.Subscription, len(users))
	for _, u := range users {
		sub := bus.NewSubscription(8)
		b.Subscribe(bus.UserChannel(u.ID), sub)
		subs[u.ID] = sub
	}

	msg, err := svc.SendText(context.Background(), g.ID, sender, "shipping today")
	if err != nil {
		t.Fatalf("send text: %v", err)
	}

	select {
	case evt := <-roomSub.Events():
		if evt.Name != chat.EventMessage {
			t.Fatalf("room event = %q", evt.Name)
		}
		var frame struct {
			Message string `json:"message"`
			Sender  struct {
				ID       uint64 `json:"id"`
				Username string `json:"username"`
			} `json:"sender"`
		}
		if err := json.Unmarshal(evt.Payload, &frame); err != nil {
			t.Fatalf("unmarshal frame: %v", err)
		}
		if frame.Sender.ID != sender.ID || frame.Message != "shipping today" {
			t.Fatalf("unexpected frame: %+v", frame)
		}
	default:
		t.Fatalf("no room broadcast")
	}

	var cnt int64
	if err := db.Model(&Notification{}).Where("message_id = ?", msg.ID).Count(&cnt).Error; err != nil {
		t.Fatalf("count notifications: %v", err)
	}
	if cnt != 4 {
		t.Fatalf("notification rows for send = %d, want 4", cnt)
	}

	for _, u := range users[1:] {
		sub := subs[u.ID]
		gotList, gotOne := false, false
		for {
			select {
			case evt := <-sub.Events():
				switch evt.Name {
				case notify.EventList:
					gotList = true
				case notify.EventSingle:
					gotOne = true
					var single struct {
						Notification notify.Item `json:"notification"`
					}
					if err := json.Unmarshal(evt.Payload, &single); err != nil {
						t.Fatalf("unmarshal single: %v", err)
					}
					n := single.Notification
					if n.SenderUsername != sender.Username || n.GroupID != g.ID || n.GroupName != "standup" {
						t.Fatalf("unexpected single push: %+v", n)
					}
				}
				continue
			default:
			}
			break
		}
		if !gotList || !gotOne {
			t.Fatalf("member %d: list=%v one=%v", u.ID, gotList, gotOne)
		}
	}

	select {
	case evt := <-subs[sender.ID].Events():
		t.Fatalf("sender received push %q", evt.Name)
	default:
	}
}

func TestJoinCheck(t *testing.T) {
	db := openTestDB(t)
	svc, _ := newTestService(db)

	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")
	outsider := seedUser(t, db, "mallory")

	g, err := svc.Repo().CreateGroup(context.Background(), "core", alice, []uint64{bob.ID})
	if err != nil {
		t.Fatalf("create group: %v", err)
	}

	for _, tc := range []struct {
		uid  uint64
		want bool
	}{
		{alice.ID, true},
		{bob.ID, true},
		{outsider.ID, false},
	} {
		got, err := svc.JoinCheck(context.Background(), tc.uid, g.ID)
		if err != nil {
			t.Fatalf("join check %d: %v", tc.uid, err)
		}
		if got != tc.want {
			t.Fatalf("join check %d = %v, want %v", tc.uid, got, tc.want)
		}
	}
}

func TestMarkRead_Idempotent(t *testing.T) {
	db := openTestDB(t)
	svc, _ := newTestService(db)

	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")

	g, err := svc.Repo().CreateGroup(context.Background(), "pair", alice, []uint64{bob.ID})
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	if _, err := svc.SendText(context.Background(), g.ID, alice, "ping"); err != nil {
		t.Fatalf("send: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := svc.MarkRead(context.Background(), g.ID, bob.ID, "bob"); err != nil {
			t.Fatalf("mark read pass %d: %v", i, err)
		}
	}

	items, err := svc.Repo().UnseenItems(context.Background(), bob.ID)
	if err != nil {
		t.Fatalf("unseen items: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("unseen after mark read = %d", len(items))
	}
}
