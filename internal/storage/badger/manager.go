package badger

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nutriparse/internal/common"
	"github.com/ternarybob/nutriparse/internal/interfaces"
	"github.com/ternarybob/nutriparse/internal/storage/blob"
)

// Manager implements the StorageManager interface for Badger plus the
// filesystem blob store.
type Manager struct {
	db     *BadgerDB
	job    interfaces.JobStorage
	blob   interfaces.BlobStorage
	logger arbor.ILogger
}

// NewManager creates a new storage manager
func NewManager(logger arbor.ILogger, config *common.StorageConfig) (*Manager, error) {
	db, err := NewBadgerDB(logger, &config.Badger)
	if err != nil {
		return nil, err
	}

	blobStore, err := blob.NewStore(logger, config.Uploads.Dir)
	if err != nil {
		db.Close()
		return nil, err
	}

	manager := &Manager{
		db:     db,
		job:    NewJobStorage(db, logger),
		blob:   blobStore,
		logger: logger,
	}

	logger.Info().Msg("Storage manager initialized")
	return manager, nil
}

// DB exposes the shared badger connection for the queue
func (m *Manager) DB() *BadgerDB {
	return m.db
}

// JobStorage returns the job storage interface
func (m *Manager) JobStorage() interfaces.JobStorage {
	return m.job
}

// BlobStorage returns the blob storage interface
func (m *Manager) BlobStorage() interfaces.BlobStorage {
	return m.blob
}

// Close closes the underlying database
func (m *Manager) Close() error {
	return m.db.Close()
}
