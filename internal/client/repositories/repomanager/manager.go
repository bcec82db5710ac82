// Package repomanager vends SQLite-backed client repositories bound to either
// the database or a running transaction, so a service can put several
// repository calls into one dbx.WithTx.
package repomanager

import (
	"github.com/wichigo/Motium-sub012/internal/client/models"
	"github.com/wichigo/Motium-sub012/internal/client/repositories/deferred"
	"github.com/wichigo/Motium-sub012/internal/client/repositories/entities"
	"github.com/wichigo/Motium-sub012/internal/client/repositories/metadata"
	"github.com/wichigo/Motium-sub012/internal/client/repositories/queue"
	"github.com/wichigo/Motium-sub012/internal/client/repositories/watermarks"
	"github.com/wichigo/Motium-sub012/internal/dbx"
)

type RepositoryManager interface {
	Queue(db dbx.DBTX) queue.Repository
	Entities(db dbx.DBTX, t models.EntityType) (entities.Repository, error)
	Watermarks(db dbx.DBTX) watermarks.Repository
	Deferred(db dbx.DBTX) deferred.Repository
	Metadata(db dbx.DBTX) metadata.Repository
}

// SQLiteRepositoryManager is the RepositoryManager of the local store.
type SQLiteRepositoryManager struct{}

func NewSQLiteRepositoryManager() *SQLiteRepositoryManager {
	return &SQLiteRepositoryManager{}
}

func (m *SQLiteRepositoryManager) Queue(db dbx.DBTX) queue.Repository {
	return queue.NewSQLiteRepository(db)
}

func (m *SQLiteRepositoryManager) Entities(db dbx.DBTX, t models.EntityType) (entities.Repository, error) {
	return entities.NewSQLiteRepository(db, t)
}

func (m *SQLiteRepositoryManager) Watermarks(db dbx.DBTX) watermarks.Repository {
	return watermarks.NewSQLiteRepository(db)
}

func (m *SQLiteRepositoryManager) Deferred(db dbx.DBTX) deferred.Repository {
	return deferred.NewSQLiteRepository(db)
}

func (m *SQLiteRepositoryManager) Metadata(db dbx.DBTX) metadata.Repository {
	return metadata.NewSQLiteRepository(db)
}
