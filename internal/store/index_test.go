package store

import (
	"encoding/json"
	"path"
	"reflect"
	"testing"
	"time"

	"github.com/maruel/chatdb/internal/models"
)

var (
	t1 = time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)
	t2 = time.Date(2026, 1, 11, 8, 0, 0, 0, time.UTC)
	t3 = time.Date(2026, 1, 12, 8, 0, 0, 0, time.UTC)
)

func TestIndexUpsertAndOrdering(t *testing.T) {
	s := newTestStore(t)
	for _, e := range []models.IndexEntry{
		{ID: "old", Title: "Old", Updated: t1},
		{ID: "new", Title: "New", Updated: t3},
		{ID: "mid", Title: "Mid", Updated: t2},
	} {
		if err := s.UpsertIndexEntry("chats", e); err != nil {
			t.Fatal(err)
		}
	}
	entries, err := s.ReadIndex("chats")
	if err != nil {
		t.Fatal(err)
	}
	got := []string{entries[0].ID, entries[1].ID, entries[2].ID}
	if want := []string{"new", "mid", "old"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}

	// Upserting an existing ID replaces, never duplicates.
	if err := s.UpsertIndexEntry("chats", models.IndexEntry{ID: "old", Title: "Renamed", Updated: t3.Add(time.Hour)}); err != nil {
		t.Fatal(err)
	}
	entries, err = s.ReadIndex("chats")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("len = %d, want 3", len(entries))
	}
	if entries[0].ID != "old" || entries[0].Title != "Renamed" {
		t.Fatalf("entries[0] = %+v", entries[0])
	}
}

func TestIndexTimestampTiesBreakByID(t *testing.T) {
	s := newTestStore(t)
	for _, id := range []string{"bbb", "aaa", "ccc"} {
		if err := s.UpsertIndexEntry("chats", models.IndexEntry{ID: id, Updated: t1}); err != nil {
			t.Fatal(err)
		}
	}
	entries, err := s.ReadIndex("chats")
	if err != nil {
		t.Fatal(err)
	}
	got := []string{entries[0].ID, entries[1].ID, entries[2].ID}
	if want := []string{"aaa", "bbb", "ccc"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
}

func TestIndexRemove(t *testing.T) {
	s := newTestStore(t)
	if err := s.UpsertIndexEntry("chats", models.IndexEntry{ID: "keep", Updated: t1}); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertIndexEntry("chats", models.IndexEntry{ID: "drop", Updated: t2}); err != nil {
		t.Fatal(err)
	}
	if err := s.RemoveIndexEntry("chats", "drop"); err != nil {
		t.Fatal(err)
	}
	// Removing an absent ID is a no-op.
	if err := s.RemoveIndexEntry("chats", "never"); err != nil {
		t.Fatal(err)
	}
	entries, err := s.ReadIndex("chats")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].ID != "keep" {
		t.Fatalf("entries = %+v", entries)
	}
}

func TestReadIndexAbsentOrCorrupt(t *testing.T) {
	s := newTestStore(t)
	entries, err := s.ReadIndex("chats")
	if err != nil {
		t.Fatal(err)
	}
	if entries == nil || len(entries) != 0 {
		t.Fatalf("absent index must read as empty list, got %v", entries)
	}

	if err := s.fs.WriteText("chats/index.json", "{{{{"); err != nil {
		t.Fatal(err)
	}
	entries, err = s.ReadIndex("chats")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("corrupt index must read as empty list, got %v", entries)
	}
}

func TestRebuildFolderIndexRecoversFromCorruption(t *testing.T) {
	s := newTestStore(t)
	chat := &models.Chat{ID: "c1", Title: "First", Updated: t1}
	if err := s.SaveChat(chat); err != nil {
		t.Fatal(err)
	}
	chat2 := &models.Chat{ID: "c2", Title: "Second", Updated: t2}
	if err := s.SaveChat(chat2); err != nil {
		t.Fatal(err)
	}

	if err := s.fs.WriteText("chats/index.json", "garbage"); err != nil {
		t.Fatal(err)
	}
	if err := s.RebuildFolderIndex("chats"); err != nil {
		t.Fatal(err)
	}
	entries, err := s.ReadIndex("chats")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %+v", entries)
	}
	if entries[0].ID != "c2" || entries[0].Title != "Second" || !entries[0].Updated.Equal(t2) {
		t.Fatalf("entries[0] = %+v", entries[0])
	}
	if entries[1].ID != "c1" || entries[1].Title != "First" {
		t.Fatalf("entries[1] = %+v", entries[1])
	}
}

func TestRebuildFolderIndexIsFixedPoint(t *testing.T) {
	s := newTestStore(t)
	if err := s.SaveChat(&models.Chat{ID: "c1", Title: "One", Updated: t1}); err != nil {
		t.Fatal(err)
	}
	if err := s.RebuildFolderIndex("chats"); err != nil {
		t.Fatal(err)
	}
	first, err := s.ReadIndex("chats")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.RebuildFolderIndex("chats"); err != nil {
		t.Fatal(err)
	}
	second, err := s.ReadIndex("chats")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("rebuild not stable: %+v vs %+v", first, second)
	}
}

func TestRebuildFolderIndexUnknownFolder(t *testing.T) {
	s := newTestStore(t)
	// A folder with no recognizable metadata still gets listed.
	if err := s.fs.WriteText("chats/stray/notes.txt", "hello"); err != nil {
		t.Fatal(err)
	}
	if err := s.RebuildFolderIndex("chats"); err != nil {
		t.Fatal(err)
	}
	entries, err := s.ReadIndex("chats")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].ID != "stray" || entries[0].Title != "stray" {
		t.Fatalf("entries = %+v", entries)
	}
	if entries[0].Updated.IsZero() {
		t.Fatal("fallback entry must carry a timestamp")
	}
}

func TestRebuildFolderIndexTitleFallbacks(t *testing.T) {
	s := newTestStore(t)
	if err := s.fs.WriteJSON("repositories/r1/repository.json", map[string]any{"id": "r1", "name": "Docs", "updated": t1}); err != nil {
		t.Fatal(err)
	}
	if err := s.fs.WriteJSON("images/i1/image.json", map[string]any{"id": "i1", "prompt": "a cat", "created": t2}); err != nil {
		t.Fatal(err)
	}
	for _, tc := range []struct {
		collection, wantTitle string
		wantUpdated           time.Time
	}{
		{"repositories", "Docs", t1},
		{"images", "a cat", t2},
	} {
		if err := s.RebuildFolderIndex(tc.collection); err != nil {
			t.Fatal(err)
		}
		entries, err := s.ReadIndex(tc.collection)
		if err != nil {
			t.Fatal(err)
		}
		if len(entries) != 1 || entries[0].Title != tc.wantTitle || !entries[0].Updated.Equal(tc.wantUpdated) {
			t.Fatalf("%s entries = %+v", tc.collection, entries)
		}
	}
}

func TestRebuildIndexFlatFiles(t *testing.T) {
	s := newTestStore(t)
	for _, name := range []string{"a.json", "b.json"} {
		if err := s.fs.WriteJSON(path.Join("flat", name), map[string]string{"id": name}); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.fs.WriteText("flat/skip.txt", "not an entry"); err != nil {
		t.Fatal(err)
	}
	err := s.RebuildIndex("flat", func(data []byte) (models.IndexEntry, bool) {
		var v struct {
			ID string `json:"id"`
		}
		if json.Unmarshal(data, &v) != nil || v.ID == "" {
			return models.IndexEntry{}, false
		}
		return models.IndexEntry{ID: v.ID, Updated: t1}, true
	})
	if err != nil {
		t.Fatal(err)
	}
	entries, err := s.ReadIndex("flat")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %+v", entries)
	}
}

func TestEmptyCollectionRejected(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.ReadIndex(""); err == nil {
		t.Fatal("expected error")
	}
	if err := s.RebuildFolderIndex(""); err == nil {
		t.Fatal("expected error")
	}
}
