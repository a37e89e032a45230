package realtime

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

func TestRedisFeedRoundTrip(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set; skipping redis integration test")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	feed := NewRedisFeed(client, "evalboard:test:"+uuid.NewString(), nil)
	projectID := uuid.NewString()

	received := make(chan Event, 1)
	ch, err := feed.Open(context.Background(), Filter{Kind: KindQuestion, ProjectID: projectID}, func(ev Event) {
		received <- ev
	})
	if err != nil {
		t.Fatalf("open redis feed: %v", err)
	}
	defer ch.Close()

	ev, _ := NewEvent(KindQuestion, OpUpdate, projectID, "q1", nil)
	if err := feed.Publish(context.Background(), ev); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case got := <-received:
		if got.RecordID != "q1" {
			t.Fatalf("unexpected event %+v", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for redis event")
	}
}

func TestPostgresFeedRoundTrip(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}

	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	feed := NewPostgresFeed(pool, "evalboard_test_changes", nil)
	defer feed.Close()
	projectID := uuid.NewString()

	received := make(chan Event, 1)
	ch, err := feed.Open(context.Background(), Filter{Kind: KindNotification, ProjectID: projectID}, func(ev Event) {
		received <- ev
	})
	if err != nil {
		t.Fatalf("open postgres feed: %v", err)
	}
	defer ch.Close()

	ev, _ := NewEvent(KindNotification, OpInsert, projectID, "n1", map[string]string{"id": "n1"})
	if err := feed.Publish(context.Background(), ev); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case got := <-received:
		if got.RecordID != "n1" || got.Op != OpInsert {
			t.Fatalf("unexpected event %+v", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for postgres notification")
	}
}
