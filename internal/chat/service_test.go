package chat

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/suPer8Hu/gopherchat/internal/bus"
	"github.com/suPer8Hu/gopherchat/internal/models"
	"github.com/suPer8Hu/gopherchat/internal/notify"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(gormsqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}, &Message{}, &Notification{}, &File{}); err != nil {
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

func recvEvent(t *testing.T, sub *bus.Subscription) bus.Event {
	t.Helper()
	select {
	case evt := <-sub.Events():
		return evt
	default:
		t.Fatalf("expected a buffered event")
		return bus.Event{}
	}
}

func TestRoomID_Symmetric(t *testing.T) {
	if got := RoomID(5, 3); got != "5-3" {
		t.Fatalf("RoomID(5,3) = %q", got)
	}
	if RoomID(3, 5) != RoomID(5, 3) {
		t.Fatalf("room id not symmetric")
	}
	if got := RoomID(7, 7); got != "7-7" {
		t.Fatalf("RoomID(7,7) = %q", got)
	}
}

func TestSendText_BroadcastsAndNotifies(t *testing.T) {
	db := openTestDB(t)
	svc, b := newTestService(db)

	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")

	room := RoomID(alice.ID, bob.ID)
	roomSub := bus.NewSubscription(8)
	b.Subscribe(bus.DirectRoomChannel(room), roomSub)
	bobSub := bus.NewSubscription(8)
	b.Subscribe(bus.UserChannel(bob.ID), bobSub)

	body := strings.Repeat("a", 60)
	msg, err := svc.SendText(context.Background(), room, bob.ID, "alice", "bob", body)
	if err != nil {
		t.Fatalf("send text: %v", err)
	}
	if msg.ID == 0 || msg.Thread != room {
		t.Fatalf("unexpected message row: %+v", msg)
	}

	evt := recvEvent(t, roomSub)
	if evt.Name != EventMessage {
		t.Fatalf("room event = %q, want %q", evt.Name, EventMessage)
	}
	var frame struct {
		Message  string `json:"message"`
		Username string `json:"username"`
	}
	if err := json.Unmarshal(evt.Payload, &frame); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	if frame.Username != "alice" || frame.Message != body {
		t.Fatalf("unexpected frame: %+v", frame)
	}

	// Recipient gets the full list and the compact push, in that order.
	listEvt := recvEvent(t, bobSub)
	if listEvt.Name != notify.EventList {
		t.Fatalf("first push = %q, want %q", listEvt.Name, notify.EventList)
	}
	var list struct {
		UnseenCount         int `json:"unseen_count"`
		UnseenNotifications []struct {
			MessagePreview string `json:"message_preview"`
		} `json:"unseen_notifications"`
	}
	if err := json.Unmarshal(listEvt.Payload, &list); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if list.UnseenCount != 1 {
		t.Fatalf("unseen count = %d, want 1", list.UnseenCount)
	}
	if got := list.UnseenNotifications[0].MessagePreview; got != strings.Repeat("a", 50)+"..." {
		t.Fatalf("preview = %q", got)
	}

	oneEvt := recvEvent(t, bobSub)
	if oneEvt.Name != notify.EventSingle {
		t.Fatalf("second push = %q, want %q", oneEvt.Name, notify.EventSingle)
	}

	var cnt int64
	if err := db.Model(&Notification{}).Where("user_id = ?", bob.ID).Count(&cnt).Error; err != nil {
		t.Fatalf("count notifications: %v", err)
	}
	if cnt != 1 {
		t.Fatalf("notification rows = %d, want 1", cnt)
	}
}

func TestSendText_NoNotificationOnReceiverMismatch(t *testing.T) {
	db := openTestDB(t)
	svc, b := newTestService(db)

	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")

	room := RoomID(alice.ID, bob.ID)
	bobSub := bus.NewSubscription(8)
	b.Subscribe(bus.UserChannel(bob.ID), bobSub)

	// Declared receiver does not match the route peer.
	if _, err := svc.SendText(context.Background(), room, bob.ID, "alice", "carol", "hi"); err != nil {
		t.Fatalf("send text: %v", err)
	}
	// Self send: receiver equals sender.
	if _, err := svc.SendText(context.Background(), RoomID(alice.ID, alice.ID), alice.ID, "alice", "alice", "note"); err != nil {
		t.Fatalf("self send: %v", err)
	}

	var cnt int64
	if err := db.Model(&Notification{}).Count(&cnt).Error; err != nil {
		t.Fatalf("count notifications: %v", err)
	}
	if cnt != 0 {
		t.Fatalf("notification rows = %d, want 0", cnt)
	}
	select {
	case evt := <-bobSub.Events():
		t.Fatalf("unexpected push %q to recipient", evt.Name)
	default:
	}
}

func TestMarkRead_Idempotent(t *testing.T) {
	db := openTestDB(t)
	svc, b := newTestService(db)

	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")
	room := RoomID(alice.ID, bob.ID)

	for i := 0; i < 3; i++ {
		if _, err := svc.SendText(context.Background(), room, bob.ID, "alice", "bob", "msg"); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}

	roomSub := bus.NewSubscription(8)
	b.Subscribe(bus.DirectRoomChannel(room), roomSub)

	for i := 0; i < 2; i++ {
		if err := svc.MarkRead(context.Background(), room, bob.ID, "bob"); err != nil {
			t.Fatalf("mark read pass %d: %v", i, err)
		}
	}

	var unseen int64
	if err := db.Model(&Notification{}).Where("user_id = ? AND seen = ?", bob.ID, false).Count(&unseen).Error; err != nil {
		t.Fatalf("count unseen: %v", err)
	}
	if unseen != 0 {
		t.Fatalf("unseen = %d after mark read", unseen)
	}

	evt := recvEvent(t, roomSub)
	if evt.Name != EventReadStatus {
		t.Fatalf("room event = %q, want %q", evt.Name, EventReadStatus)
	}
	var rs struct {
		Thread string `json:"thread"`
		ReadBy string `json:"read_by"`
	}
	if err := json.Unmarshal(evt.Payload, &rs); err != nil {
		t.Fatalf("unmarshal read_status: %v", err)
	}
	if rs.Thread != room || rs.ReadBy != "bob" {
		t.Fatalf("unexpected read_status: %+v", rs)
	}
}

func TestSendFile_RegistersUnknownAttachment(t *testing.T) {
	db := openTestDB(t)
	svc, b := newTestService(db)

	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")
	room := RoomID(alice.ID, bob.ID)

	roomSub := bus.NewSubscription(8)
	b.Subscribe(bus.DirectRoomChannel(room), roomSub)

	fd := FilePayload{
		FileID:   "01HZZZZZZZZZZZZZZZZZZZZZZZ",
		Filename: "photo.png",
		FileURL:  "http://localhost:8080/media/photo.png",
		FileType: "image/png",
	}
	msg, err := svc.SendFile(context.Background(), room, bob.ID, "alice", "bob", fd)
	if err != nil {
		t.Fatalf("send file: %v", err)
	}
	if msg.Body != "Sent a file: photo.png" {
		t.Fatalf("placeholder body = %q", msg.Body)
	}
	if msg.FileID == nil || *msg.FileID != fd.FileID {
		t.Fatalf("message not linked to file: %+v", msg)
	}

	f, err := NewRepo(db).GetFile(context.Background(), fd.FileID)
	if err != nil {
		t.Fatalf("file row not created: %v", err)
	}
	if f.UploaderID != alice.ID || f.Thread != room {
		t.Fatalf("unexpected file row: %+v", f)
	}

	evt := recvEvent(t, roomSub)
	var frame struct {
		MessageType string       `json:"message_type"`
		FileData    *FilePayload `json:"file_data"`
	}
	if err := json.Unmarshal(evt.Payload, &frame); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	if frame.MessageType != "file" || frame.FileData == nil || frame.FileData.Filename != "photo.png" {
		t.Fatalf("unexpected file frame: %+v", frame)
	}
}

func TestSendText_PersistFailureAbortsBroadcast(t *testing.T) {
	db := openTestDB(t)
	svc, b := newTestService(db)

	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")
	room := RoomID(alice.ID, bob.ID)

	roomSub := bus.NewSubscription(8)
	b.Subscribe(bus.DirectRoomChannel(room), roomSub)

	// Dropping the table forces the durable write to fail.
	if err := db.Migrator().DropTable(&Message{}); err != nil {
		t.Fatalf("drop table: %v", err)
	}
	if _, err := svc.SendText(context.Background(), room, bob.ID, "alice", "bob", "hi"); err == nil {
		t.Fatalf("expected persistence error")
	}
	select {
	case evt := <-roomSub.Events():
		t.Fatalf("broadcast %q leaked after failed persist", evt.Name)
	default:
	}
}
