package weather

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	dsn := fmt.Sprintf("file:verdant_weather_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Snapshot{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	store, err := NewStore(StoreConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to construct store: %v", err)
	}
	return store
}

func TestLatestFreshReturnsNewestUnexpired(t *testing.T) {
	store := newTestStore(t)
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	locationKey := BuildLocationKey(32.08, 34.78)

	older := Snapshot{
		SnapshotID:  "snap-1",
		LocationKey: locationKey,
		ForecastAt:  now.Add(-4 * time.Hour),
		ExpiresAt:   now.Add(2 * time.Hour),
	}
	newer := Snapshot{
		SnapshotID:  "snap-2",
		LocationKey: locationKey,
		ForecastAt:  now.Add(-1 * time.Hour),
		ExpiresAt:   now.Add(5 * time.Hour),
	}
	for _, snapshot := range []Snapshot{older, newer} {
		if err := store.Create(context.Background(), &snapshot); err != nil {
			t.Fatalf("failed to create snapshot: %v", err)
		}
	}

	found, err := store.LatestFresh(context.Background(), locationKey, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found.SnapshotID != "snap-2" {
		t.Fatalf("expected newest snapshot, got %q", found.SnapshotID)
	}
}

func TestLatestFreshSkipsExpiredSnapshots(t *testing.T) {
	store := newTestStore(t)
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	locationKey := BuildLocationKey(10, 10)

	expired := Snapshot{
		SnapshotID:  "snap-expired",
		LocationKey: locationKey,
		ForecastAt:  now.Add(-8 * time.Hour),
		ExpiresAt:   now.Add(-2 * time.Hour),
	}
	if err := store.Create(context.Background(), &expired); err != nil {
		t.Fatalf("failed to create snapshot: %v", err)
	}

	if _, err := store.LatestFresh(context.Background(), locationKey, now); err != ErrNoFreshSnapshot {
		t.Fatalf("expected ErrNoFreshSnapshot, got %v", err)
	}
}

func TestLatestFreshScopedToLocationKey(t *testing.T) {
	store := newTestStore(t)
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	other := Snapshot{
		SnapshotID:  "snap-other",
		LocationKey: BuildLocationKey(50, 50),
		ForecastAt:  now,
		ExpiresAt:   now.Add(SnapshotTTL),
	}
	if err := store.Create(context.Background(), &other); err != nil {
		t.Fatalf("failed to create snapshot: %v", err)
	}

	if _, err := store.LatestFresh(context.Background(), BuildLocationKey(10, 10), now); err != ErrNoFreshSnapshot {
		t.Fatalf("expected miss for different location, got %v", err)
	}
}
