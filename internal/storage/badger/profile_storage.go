package badger

import (
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// ProfileStorage implements the ProfileStorage interface for Badger. It is
// the history store: every completed collection session lands here.
type ProfileStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewProfileStorage creates a new ProfileStorage instance
func NewProfileStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ProfileStorage {
	return &ProfileStorage{
		db:     db,
		logger: logger,
	}
}

func (s *ProfileStorage) SaveProfile(record *models.ProfileRecord) error {
	if record.ID == "" {
		return fmt.Errorf("profile record ID is required")
	}

	if record.CollectedAt.IsZero() {
		record.CollectedAt = time.Now()
	}

	if err := s.db.Store().Upsert(record.ID, record); err != nil {
		return fmt.Errorf("failed to save profile record: %w", err)
	}
	return nil
}

func (s *ProfileStorage) GetProfile(id string) (*models.ProfileRecord, error) {
	var record models.ProfileRecord
	if err := s.db.Store().Get(id, &record); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("profile record not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get profile record: %w", err)
	}
	return &record, nil
}

func (s *ProfileStorage) ListProfiles(limit int) ([]*models.ProfileRecord, error) {
	query := badgerhold.Where("ID").Ne("").SortBy("CollectedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var records []models.ProfileRecord
	if err := s.db.Store().Find(&records, query); err != nil {
		return nil, fmt.Errorf("failed to list profile records: %w", err)
	}

	result := make([]*models.ProfileRecord, len(records))
	for i := range records {
		result[i] = &records[i]
	}
	return result, nil
}

func (s *ProfileStorage) DeleteProfile(id string) error {
	if err := s.db.Store().Delete(id, &models.ProfileRecord{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil
		}
		return fmt.Errorf("failed to delete profile record: %w", err)
	}
	return nil
}

func (s *ProfileStorage) Count() (int, error) {
	count, err := s.db.Store().Count(&models.ProfileRecord{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count profile records: %w", err)
	}
	return int(count), nil
}
