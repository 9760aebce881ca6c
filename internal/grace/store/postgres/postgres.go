// Package postgres implements grace.Store on PostgreSQL via GORM, the
// teacher's relational backend (pkg/metadata/store/postgres). The CAS
// version token is a version column this package bumps itself on every
// write: each write is an `UPDATE ... WHERE name = ? AND version = ?`,
// and a zero rows-affected result surfaces as grace.ErrConflict.
package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/coregate/coregate/internal/grace"
)

// graceRow is the GORM model backing one GraceObject. MembersJSON holds
// the membership table as a JSON object of id -> flags byte, since the
// table's shape is small and rarely queried directly by SQL.
type graceRow struct {
	Name         string `gorm:"primaryKey"`
	CurrentEpoch uint64
	ReclaimEpoch uint64
	MembersJSON  []byte
	Version      uint64 `gorm:"version"`
}

func (graceRow) TableName() string { return "grace_objects" }

// Store is a grace.Store backed by a GORM Postgres connection.
type Store struct {
	db *gorm.DB
}

// New wraps an already-connected *gorm.DB. Migrate must be called once
// before use (normally at process startup).
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the grace_objects table if it does not already exist.
func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&graceRow{})
}

func (s *Store) CreateIfAbsent(ctx context.Context, name string) (bool, error) {
	membersJSON, _ := json.Marshal(map[string]grace.Flags{})
	row := graceRow{Name: name, CurrentEpoch: 1, MembersJSON: membersJSON}
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (s *Store) Read(ctx context.Context, name string) (grace.Epochs, grace.Version, error) {
	epochs, _, version, err := s.ReadPlusOmap(ctx, name)
	return epochs, version, err
}

func (s *Store) ReadPlusOmap(ctx context.Context, name string) (grace.Epochs, map[string]grace.Flags, grace.Version, error) {
	var row graceRow
	result := s.db.WithContext(ctx).Where("name = ?", name).First(&row)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return grace.Epochs{}, nil, 0, grace.ErrNotFound
	}
	if result.Error != nil {
		return grace.Epochs{}, nil, 0, result.Error
	}

	members := make(map[string]grace.Flags)
	if len(row.MembersJSON) > 0 {
		if err := json.Unmarshal(row.MembersJSON, &members); err != nil {
			return grace.Epochs{}, nil, 0, err
		}
	}
	epochs := grace.Epochs{CurrentEpoch: row.CurrentEpoch, ReclaimEpoch: row.ReclaimEpoch}
	return epochs, members, grace.Version(row.Version), nil
}

func (s *Store) Write(ctx context.Context, name string, epochs grace.Epochs, expected grace.Version) (grace.Version, error) {
	return s.mutate(ctx, name, expected, func(row *graceRow) error {
		row.CurrentEpoch = epochs.CurrentEpoch
		row.ReclaimEpoch = epochs.ReclaimEpoch
		return nil
	})
}

func (s *Store) UpdateOmap(ctx context.Context, name string, upserts map[string]grace.Flags, deletes []string, expected grace.Version) (grace.Version, error) {
	return s.mutate(ctx, name, expected, func(row *graceRow) error {
		members := make(map[string]grace.Flags)
		if len(row.MembersJSON) > 0 {
			if err := json.Unmarshal(row.MembersJSON, &members); err != nil {
				return err
			}
		}
		for k, v := range upserts {
			members[k] = v
		}
		for _, k := range deletes {
			delete(members, k)
		}
		blob, err := json.Marshal(members)
		if err != nil {
			return err
		}
		row.MembersJSON = blob
		return nil
	})
}

func (s *Store) mutate(ctx context.Context, name string, expected grace.Version, apply func(*graceRow) error) (grace.Version, error) {
	var newVersion grace.Version
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row graceRow
		result := tx.Where("name = ?", name).First(&row)
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return grace.ErrNotFound
		}
		if result.Error != nil {
			return result.Error
		}
		if grace.Version(row.Version) != expected {
			return grace.ErrConflict
		}
		if err := apply(&row); err != nil {
			return err
		}
		saveResult := tx.Model(&graceRow{}).
			Where("name = ? AND version = ?", name, uint64(expected)).
			Updates(map[string]any{
				"current_epoch": row.CurrentEpoch,
				"reclaim_epoch": row.ReclaimEpoch,
				"members_json":  row.MembersJSON,
				"version":       uint64(expected) + 1,
			})
		if saveResult.Error != nil {
			return saveResult.Error
		}
		if saveResult.RowsAffected == 0 {
			return grace.ErrConflict
		}
		newVersion = grace.Version(uint64(expected) + 1)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return newVersion, nil
}

func (s *Store) Notify(_ context.Context, _ string) error {
	// Postgres LISTEN/NOTIFY is not wired up for this core: callers treat
	// Notify as best-effort, and polling (Read) is always correct, just
	// not instantaneous.
	return nil
}
