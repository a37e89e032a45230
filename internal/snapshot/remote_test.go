package snapshot

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
)

func TestRedisBackendRoundTrip(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set; skipping redis integration test")
	}

	ctx := context.Background()
	backend, err := Open(ctx, "redis://"+addr+"/0?key=evalboard:test:"+uuid.NewString())
	if err != nil {
		t.Fatalf("open redis backend: %v", err)
	}
	defer backend.Close()

	roundTrip(t, backend)
}

func TestMongoBackendRoundTrip(t *testing.T) {
	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		t.Skip("TEST_MONGO_URI not set; skipping mongo integration test")
	}

	ctx := context.Background()
	backend, err := Open(ctx, uri+"/evalboard_test?key="+uuid.NewString())
	if err != nil {
		t.Fatalf("open mongo backend: %v", err)
	}
	defer backend.Close()

	roundTrip(t, backend)
}

func roundTrip(t *testing.T, backend Backend) {
	t.Helper()
	ctx := context.Background()

	loaded, err := backend.Load(ctx)
	if err != nil {
		t.Fatalf("load before save: %v", err)
	}
	if loaded != nil {
		t.Fatalf("expected no snapshot under a fresh key")
	}

	if err := backend.Save(ctx, sampleSnapshot()); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err = backend.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded == nil || loaded.ProjectID != "p1" || len(loaded.Active.Messages) != 2 {
		t.Fatalf("unexpected snapshot: %+v", loaded)
	}
}
