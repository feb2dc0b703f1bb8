package weather

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// ErrNoFreshSnapshot indicates no unexpired snapshot exists for the location.
var ErrNoFreshSnapshot = errors.New("weather: no fresh snapshot for location")

// StoreConfig describes the dependencies required by the snapshot store.
type StoreConfig struct {
	Database *gorm.DB
}

// Store persists and serves cached forecast snapshots.
type Store struct {
	db *gorm.DB
}

// NewStore constructs the snapshot store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("weather: database handle is required")
	}
	return &Store{db: cfg.Database}, nil
}

// Create persists a new snapshot. Snapshots are append-only.
func (s *Store) Create(ctx context.Context, snapshot *Snapshot) error {
	return s.db.WithContext(ctx).Create(snapshot).Error
}

// LatestFresh returns the newest unexpired snapshot for the location key.
func (s *Store) LatestFresh(ctx context.Context, locationKey string, now time.Time) (Snapshot, error) {
	var snapshot Snapshot
	err := s.db.WithContext(ctx).
		Where("location_key = ? AND expires_at >= ?", locationKey, now).
		Order("forecast_at DESC").
		Take(&snapshot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Snapshot{}, ErrNoFreshSnapshot
	}
	if err != nil {
		return Snapshot{}, err
	}
	return snapshot, nil
}
