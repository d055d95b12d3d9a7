package badger

import (
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db       *BadgerDB
	profiles interfaces.ProfileStorage
	logger   arbor.ILogger
	stopGC   chan struct{}
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:       db,
		profiles: NewProfileStorage(db, logger),
		logger:   logger,
		stopGC:   make(chan struct{}),
	}
	go manager.gcLoop()

	logger.Info().Msg("Badger storage manager initialized")

	return manager, nil
}

// gcLoop runs periodic value-log garbage collection until Close.
func (m *Manager) gcLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopGC:
			return
		case <-ticker.C:
			if err := m.db.RunValueLogGC(); err != nil {
				m.logger.Warn().Err(err).Msg("Badger value log GC failed")
			}
		}
	}
}

// Profiles returns the profile history storage interface
func (m *Manager) Profiles() interfaces.ProfileStorage {
	return m.profiles
}

// Close closes the database connection
func (m *Manager) Close() error {
	close(m.stopGC)
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
