package repository

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"lanchat/config"
	"lanchat/internal/model"
	"lanchat/pkg/db"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	orm, err := db.Open(config.DatabaseConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "chat.db"),
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(orm) })
	return NewStore(orm)
}

func mustUser(t *testing.T, s *Store, username, nickname string) *model.User {
	t.Helper()
	u, err := s.InsertUser(context.Background(), username, "pw-"+username, nickname, model.DefaultAvatar)
	if err != nil {
		t.Fatalf("insert %s: %v", username, err)
	}
	return u
}

func TestInsertAndFindUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := mustUser(t, s, "alice", "Alice")

	if alice.ID == 0 {
		t.Fatal("expected assigned id")
	}
	if alice.PasswordHash == "pw-alice" {
		t.Fatal("password stored in plaintext")
	}

	got, err := s.FindUserByCredentials(ctx, "alice", "pw-alice")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.ID != alice.ID || got.Nickname != "Alice" || got.Status != model.StatusOffline {
		t.Errorf("unexpected user %+v", got)
	}

	if _, err := s.FindUserByCredentials(ctx, "alice", "wrong"); !errors.Is(err, ErrNotFound) {
		t.Errorf("wrong password: err = %v", err)
	}
	if _, err := s.FindUserByCredentials(ctx, "nobody", "pw"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown user: err = %v", err)
	}
}

func TestInsertUserDuplicate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustUser(t, s, "alice", "Alice")

	_, err := s.InsertUser(ctx, "alice", "other", "Alice2", "")
	if !errors.Is(err, ErrDuplicateUsername) {
		t.Fatalf("err = %v, want ErrDuplicateUsername", err)
	}
	n, err := s.CountUsersByUsername(ctx, "alice")
	if err != nil || n != 1 {
		t.Errorf("count = %d, %v", n, err)
	}
}

func TestConcurrentRegistrationSingleWinner(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const workers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		success  int
		conflict int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.InsertUser(ctx, "race", "pw", "Race", "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				success++
			case errors.Is(err, ErrDuplicateUsername):
				conflict++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if success != 1 || conflict != workers-1 {
		t.Errorf("success=%d conflict=%d", success, conflict)
	}
}

func TestStatusAndLastLogin(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := mustUser(t, s, "alice", "Alice")

	if err := s.UpdateUserStatus(ctx, alice.ID, model.StatusOnline); err != nil {
		t.Fatal(err)
	}
	now := time.Now()
	if err := s.UpdateLastLogin(ctx, alice.ID, now); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetByID(ctx, alice.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Online() || got.LastLogin == nil {
		t.Errorf("status/last login not persisted: %+v", got)
	}

	online, err := s.ListOnline(ctx)
	if err != nil || len(online) != 1 {
		t.Fatalf("online = %v, %v", online, err)
	}

	// 不存在的用户不算错误
	if err := s.UpdateUserStatus(ctx, 9999, model.StatusOffline); err != nil {
		t.Errorf("unknown user status update: %v", err)
	}

	n, err := s.ResetStatuses(ctx)
	if err != nil || n != 1 {
		t.Errorf("reset = %d, %v", n, err)
	}
}

func TestFriendshipSymmetry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := mustUser(t, s, "alice", "Alice")
	b := mustUser(t, s, "bob", "Bob")

	if err := s.InsertFriendship(ctx, b.ID, a.ID, ""); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertFriendship(ctx, a.ID, b.ID, ""); !errors.Is(err, ErrAlreadyFriends) {
		t.Fatalf("mirror insert: err = %v", err)
	}

	for _, pair := range [][2]uint{{a.ID, b.ID}, {b.ID, a.ID}} {
		ok, err := s.IsFriend(ctx, pair[0], pair[1])
		if err != nil || !ok {
			t.Errorf("IsFriend(%d,%d) = %v, %v", pair[0], pair[1], ok, err)
		}
	}

	fa, err := s.ListFriends(ctx, a.ID)
	if err != nil || len(fa) != 1 || fa[0].ID != b.ID {
		t.Fatalf("friends of a = %+v, %v", fa, err)
	}
	fb, err := s.ListFriends(ctx, b.ID)
	if err != nil || len(fb) != 1 || fb[0].ID != a.ID {
		t.Fatalf("friends of b = %+v, %v", fb, err)
	}

	var stored model.Friendship
	if err := s.db.First(&stored).Error; err != nil {
		t.Fatal(err)
	}
	if stored.UserID1 >= stored.UserID2 {
		t.Errorf("pair not canonical: %d,%d", stored.UserID1, stored.UserID2)
	}
}

func TestListFriendsOrderAndRemark(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	me := mustUser(t, s, "me", "Me")
	zed := mustUser(t, s, "zed", "Zed")
	amy := mustUser(t, s, "amy", "Amy")
	bob := mustUser(t, s, "bob", "Bob")

	for _, f := range []*model.User{zed, amy, bob} {
		remark := ""
		if f == bob {
			remark = "Bobby"
		}
		if err := s.InsertFriendship(ctx, me.ID, f.ID, remark); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.UpdateUserStatus(ctx, zed.ID, model.StatusOnline); err != nil {
		t.Fatal(err)
	}

	friends, err := s.ListFriends(ctx, me.ID)
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, f := range friends {
		u := f.DisplayUser()
		got = append(got, u.Nickname)
	}
	want := []string{"Zed", "Amy", "Bobby"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestDeleteFriendship(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := mustUser(t, s, "alice", "Alice")
	b := mustUser(t, s, "bob", "Bob")

	if err := s.DeleteFriendship(ctx, a.ID, b.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("delete absent: err = %v", err)
	}
	if err := s.InsertFriendship(ctx, a.ID, b.ID, ""); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteFriendship(ctx, b.ID, a.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ok, _ := s.IsFriend(ctx, a.ID, b.ID); ok {
		t.Error("still friends after delete")
	}
}

func TestSearchUsersByNickname(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	me := mustUser(t, s, "me", "Alina")
	alice := mustUser(t, s, "alice", "Alice")
	mustUser(t, s, "bob", "Bob")
	mustUser(t, s, "pct", "100%_real")

	users, err := s.SearchUsersByNickname(ctx, me.ID, "ALI", true)
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 1 || users[0].ID != alice.ID {
		t.Fatalf("search = %+v", users)
	}

	if err := s.InsertFriendship(ctx, me.ID, alice.ID, ""); err != nil {
		t.Fatal(err)
	}
	users, err = s.SearchUsersByNickname(ctx, me.ID, "ali", true)
	if err != nil || len(users) != 0 {
		t.Fatalf("exclude friends: %+v, %v", users, err)
	}
	users, err = s.SearchUsersByNickname(ctx, me.ID, "ali", false)
	if err != nil || len(users) != 1 {
		t.Fatalf("include friends: %+v, %v", users, err)
	}

	// 通配符按字面匹配
	users, err = s.SearchUsersByNickname(ctx, me.ID, "%_", true)
	if err != nil || len(users) != 1 || users[0].Username != "pct" {
		t.Fatalf("literal wildcard: %+v, %v", users, err)
	}
}

func TestMessagesOrderedBothDirections(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := mustUser(t, s, "alice", "Alice")
	b := mustUser(t, s, "bob", "Bob")
	c := mustUser(t, s, "carol", "Carol")

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.Local)
	msgs := []model.Message{
		{SenderID: a.ID, ReceiverID: b.ID, ContentType: model.ContentText, Content: "hi", SendTime: base},
		{SenderID: b.ID, ReceiverID: a.ID, ContentType: model.ContentText, Content: "hello", SendTime: base},
		{SenderID: a.ID, ReceiverID: c.ID, ContentType: model.ContentText, Content: "other", SendTime: base},
		{SenderID: a.ID, ReceiverID: b.ID, ContentType: model.ContentFile, Content: "/tmp/x", FileName: "x.txt", FileSize: 3, SendTime: base.Add(time.Second)},
	}
	for i := range msgs {
		if err := s.InsertMessage(ctx, &msgs[i]); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.ListMessages(ctx, b.ID, a.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"hi", "hello", "/tmp/x"}
	if len(got) != len(want) {
		t.Fatalf("got %d messages, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Content != want[i] {
			t.Errorf("message %d = %q, want %q", i, got[i].Content, want[i])
		}
		if i > 0 && got[i].SendTime.Before(got[i-1].SendTime) {
			t.Errorf("message %d out of order", i)
		}
	}

	latest, err := s.ListMessages(ctx, a.ID, b.ID, 2)
	if err != nil || len(latest) != 2 || latest[0].Content != "hello" || latest[1].Content != "/tmp/x" {
		t.Fatalf("limit 2 = %+v, %v", latest, err)
	}

	none, err := s.ListMessages(ctx, b.ID, c.ID, 0)
	if err != nil || len(none) != 0 {
		t.Fatalf("empty history = %+v, %v", none, err)
	}
}

func TestUnreadAndMarkRead(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := mustUser(t, s, "alice", "Alice")
	b := mustUser(t, s, "bob", "Bob")

	for _, text := range []string{"1", "2", "3"} {
		m := &model.Message{SenderID: a.ID, ReceiverID: b.ID, ContentType: model.ContentText, Content: text}
		if err := s.InsertMessage(ctx, m); err != nil {
			t.Fatal(err)
		}
	}

	n, err := s.CountUnread(ctx, b.ID, a.ID)
	if err != nil || n != 3 {
		t.Fatalf("unread = %d, %v", n, err)
	}
	if n, _ := s.CountUnread(ctx, a.ID, b.ID); n != 0 {
		t.Errorf("reverse unread = %d", n)
	}

	marked, err := s.MarkMessagesRead(ctx, b.ID, a.ID)
	if err != nil || marked != 3 {
		t.Fatalf("marked = %d, %v", marked, err)
	}
	if n, _ := s.CountUnread(ctx, b.ID, a.ID); n != 0 {
		t.Errorf("unread after mark = %d", n)
	}
}
