package snapshot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/wuwenbin0122/evalboard/internal/models"
)

func sampleSnapshot() *Snapshot {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return &Snapshot{
		ProjectID: "p1",
		Active: Thread{
			Messages: []models.Message{
				{ID: "m1", Role: models.RoleUser, Content: "hello", Timestamp: now},
				{ID: "m2", Role: models.RoleAssistant, Content: "hi there", Timestamp: now},
			},
			SessionID:     "s1",
			HistoryLoaded: true,
			UpdatedAt:     now,
		},
		Saved: map[string]Thread{
			"p2": {Messages: []models.Message{{ID: "m3", Role: models.RoleUser, Content: "other", Timestamp: now}}, UpdatedAt: now},
		},
		Modules: map[string]ModuleMark{"qa": {LastViewed: &now}},
		SavedAt: now,
	}
}

func TestDecodeDropsInvalidRecords(t *testing.T) {
	doc := `{
		"version": 1,
		"projectId": "p1",
		"active": {
			"messages": [
				{"id": "m1", "role": "user", "content": "valid", "timestamp": "2024-05-01T12:00:00Z"},
				{"id": "m2", "role": "robot", "content": "bad role"},
				{"id": "m3", "role": "assistant", "content": "   "},
				{"id": "m4", "role": "assistant", "content": "bad time", "timestamp": "yesterday"},
				"garbage"
			],
			"sessionId": "s1"
		},
		"saved": {
			"": {"messages": [{"id": "x", "role": "user", "content": "no key"}]},
			"p2": {"messages": [{"id": "y", "role": "user", "content": "kept"}]},
			"p3": {"messages": "not a list"},
			"p4": {"messages": []}
		},
		"modules": {
			"qa": {"lastViewed": "2024-05-01T12:00:00Z"},
			"chat": {},
			"docs": 42
		}
	}`

	snap, err := Decode([]byte(doc))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if len(snap.Active.Messages) != 1 || snap.Active.Messages[0].ID != "m1" {
		t.Fatalf("expected only m1 to survive, got %+v", snap.Active.Messages)
	}
	if snap.Active.SessionID != "s1" {
		t.Fatalf("expected session s1, got %q", snap.Active.SessionID)
	}
	if len(snap.Saved) != 1 {
		t.Fatalf("expected one saved thread, got %d", len(snap.Saved))
	}
	if _, ok := snap.Saved["p2"]; !ok {
		t.Fatalf("expected p2 to be kept")
	}
	if len(snap.Modules) != 1 {
		t.Fatalf("expected one module mark, got %d", len(snap.Modules))
	}
}

func TestDecodeRejectsUnreadableDocument(t *testing.T) {
	for _, doc := range []string{"{not json", `"a string"`, `{"version": 99}`} {
		if _, err := Decode([]byte(doc)); !errors.Is(err, ErrCorrupt) {
			t.Fatalf("expected ErrCorrupt for %q, got %v", doc, err)
		}
	}
}

func TestFileBackendRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "snapshot.json")
	backend := NewFileBackend(path)
	ctx := context.Background()

	loaded, err := backend.Load(ctx)
	if err != nil {
		t.Fatalf("load missing file: %v", err)
	}
	if loaded != nil {
		t.Fatalf("expected nil snapshot before first save")
	}

	if err := backend.Save(ctx, sampleSnapshot()); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err = backend.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.ProjectID != "p1" || len(loaded.Active.Messages) != 2 || loaded.Active.SessionID != "s1" {
		t.Fatalf("unexpected snapshot: %+v", loaded)
	}
	if _, ok := loaded.Saved["p2"]; !ok {
		t.Fatalf("expected saved thread p2")
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected no temp files left behind, got %d entries", len(entries))
	}
}

func TestFileBackendCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	if err := os.WriteFile(path, []byte("{{{"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	_, err := NewFileBackend(path).Load(context.Background())
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}

func TestMemoryBackendReturnsCopies(t *testing.T) {
	backend := NewMemoryBackend()
	ctx := context.Background()

	if err := backend.Save(ctx, sampleSnapshot()); err != nil {
		t.Fatalf("save: %v", err)
	}

	first, _ := backend.Load(ctx)
	first.Active.Messages[0].Content = "mutated"

	second, _ := backend.Load(ctx)
	if second.Active.Messages[0].Content != "hello" {
		t.Fatalf("expected stored snapshot to be isolated from callers")
	}
}

func TestOpenSelectsBackendByScheme(t *testing.T) {
	ctx := context.Background()

	backend, err := Open(ctx, "")
	if err != nil {
		t.Fatalf("open empty: %v", err)
	}
	if _, ok := backend.(*MemoryBackend); !ok {
		t.Fatalf("expected memory backend for empty dsn, got %T", backend)
	}

	backend, err = Open(ctx, "file://"+filepath.Join(t.TempDir(), "s.json"))
	if err != nil {
		t.Fatalf("open file: %v", err)
	}
	if _, ok := backend.(*FileBackend); !ok {
		t.Fatalf("expected file backend, got %T", backend)
	}

	if _, err := Open(ctx, "ftp://example.com/x"); !errors.Is(err, ErrUnsupportedScheme) {
		t.Fatalf("expected ErrUnsupportedScheme, got %v", err)
	}
}
