package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return Wrap(rdb, time.Minute), mr
}

func TestPresenceLifecycle(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	if err := c.Online(ctx, 1, "alice"); err != nil {
		t.Fatal(err)
	}
	if !mr.Exists(presenceKey(1)) {
		t.Fatal("presence key not written")
	}

	users, err := c.OnlineUsers(ctx)
	if err != nil || len(users) != 1 || users[0].Username != "alice" {
		t.Fatalf("OnlineUsers = %+v, %v", users, err)
	}

	if err := c.Offline(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if mr.Exists(presenceKey(1)) {
		t.Error("still online after Offline")
	}
	if users, _ := c.OnlineUsers(ctx); len(users) != 0 {
		t.Errorf("OnlineUsers after Offline = %+v", users)
	}
}

func TestPresenceExpiresWithoutHeartbeat(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	if err := c.Online(ctx, 1, "alice"); err != nil {
		t.Fatal(err)
	}
	if err := c.Online(ctx, 2, "bob"); err != nil {
		t.Fatal(err)
	}

	mr.FastForward(40 * time.Second)
	if err := c.Refresh(ctx, 2, "bob"); err != nil {
		t.Fatal(err)
	}
	mr.FastForward(40 * time.Second)

	users, err := c.OnlineUsers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 1 || users[0].UserID != 2 {
		t.Fatalf("OnlineUsers = %+v", users)
	}
	if ok, _ := mr.SIsMember(OnlineUsersKey, "1"); ok {
		t.Error("expired member not pruned from online set")
	}
}

func TestRefreshRecreatesExpiredPresence(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	if err := c.Online(ctx, 3, "carol"); err != nil {
		t.Fatal(err)
	}
	mr.FastForward(2 * time.Minute)

	if err := c.Refresh(ctx, 3, "carol"); err != nil {
		t.Fatal(err)
	}
	if !mr.Exists(presenceKey(3)) {
		t.Error("refresh did not restore presence")
	}
}

func TestOfflineMessagesDrainInOrder(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	for _, p := range []string{"a", "b", "c"} {
		if err := c.AddOfflineMessage(ctx, 9, []byte(p)); err != nil {
			t.Fatal(err)
		}
	}
	if items, err := mr.List(offlineKey(9)); err != nil || len(items) != 3 {
		t.Fatalf("queued = %q, %v", items, err)
	}

	got, err := c.DrainOfflineMessages(ctx, 9)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || string(got[0]) != "a" || string(got[2]) != "c" {
		t.Fatalf("drained %q", got)
	}

	again, err := c.DrainOfflineMessages(ctx, 9)
	if err != nil || len(again) != 0 {
		t.Fatalf("second drain = %q, %v", again, err)
	}
}

func TestOfflineMessagesCapped(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	for i := 0; i < OfflineMessagesMax+5; i++ {
		if err := c.AddOfflineMessage(ctx, 1, []byte{byte(i)}); err != nil {
			t.Fatal(err)
		}
	}
	got, err := c.DrainOfflineMessages(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != OfflineMessagesMax || got[0][0] != 5 {
		t.Fatalf("kept %d items, first = %d", len(got), got[0][0])
	}
}
