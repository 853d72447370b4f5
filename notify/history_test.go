package notify

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/always-cache/profile-cache/cache"
	"github.com/rs/zerolog"
)

var testLogger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout})

func TestHistoryPersists(t *testing.T) {
	store, err := cache.NewSQLiteCache(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Could not open db: %v", err)
	}
	defer store.Close()

	var forwarded []Notification
	h := NewHistory(HistoryConfig{
		Store:  store,
		Next:   EmitterFunc(func(n Notification) { forwarded = append(forwarded, n) }),
		Logger: &testLogger,
	})
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	h.Notify(New(KindSuccess, "Profile updated", now))
	h.Notify(New(KindError, "User not found", now.Add(time.Second)))

	if len(forwarded) != 2 {
		t.Fatalf("Forwarded %d notifications", len(forwarded))
	}

	reloaded := NewHistory(HistoryConfig{Store: store, Logger: &testLogger})
	items := reloaded.Items()
	if len(items) != 2 {
		t.Fatalf("Reloaded %d notifications", len(items))
	}
	if items[0].Message != "Profile updated" || items[1].Kind != KindError {
		t.Fatalf("Reloaded %+v", items)
	}
	if items[0].ID == "" || items[0].ID == items[1].ID {
		t.Fatalf("IDs are not unique: %q %q", items[0].ID, items[1].ID)
	}
	if !items[1].CreatedAt.Equal(now.Add(time.Second)) {
		t.Fatalf("CreatedAt is %v", items[1].CreatedAt)
	}
}

func TestHistoryLimit(t *testing.T) {
	h := NewHistory(HistoryConfig{Store: cache.NewMemCache(), Limit: 2, Logger: &testLogger})
	for _, msg := range []string{"a", "b", "c"} {
		h.Notify(New(KindInfo, msg, time.Now()))
	}
	items := h.Items()
	if len(items) != 2 || items[0].Message != "b" || items[1].Message != "c" {
		t.Fatalf("History is %+v", items)
	}
}

func TestHistoryUnreadableSnapshot(t *testing.T) {
	store := cache.NewMemCache()
	store.Put(HistoryKey, time.Time{}, []byte("not json"))
	h := NewHistory(HistoryConfig{Store: store, Logger: &testLogger})
	if len(h.Items()) != 0 {
		t.Fatalf("History is %+v", h.Items())
	}
}

func TestHistoryClear(t *testing.T) {
	store := cache.NewMemCache()
	h := NewHistory(HistoryConfig{Store: store, Logger: &testLogger})
	h.Notify(New(KindInfo, "x", time.Now()))
	if err := h.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if _, ok, _ := store.Get(HistoryKey); ok {
		t.Fatal("Snapshot still stored")
	}
	if len(h.Items()) != 0 {
		t.Fatal("History not cleared")
	}
}
