package interfaces

import "github.com/ternarybob/colligo/internal/models"

// ProfileStorage persists completed collection results (the history store
// consumer of the completion event).
type ProfileStorage interface {
	SaveProfile(record *models.ProfileRecord) error
	GetProfile(id string) (*models.ProfileRecord, error)
	ListProfiles(limit int) ([]*models.ProfileRecord, error)
	DeleteProfile(id string) error
	Count() (int, error)
}

// StorageManager bundles the storage backends and their lifecycle.
type StorageManager interface {
	Profiles() ProfileStorage
	Close() error
}
