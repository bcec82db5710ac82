package repomanager

import (
	"context"
	"database/sql"

	"github.com/wichigo/Motium-sub012/internal/dbx"
	"github.com/wichigo/Motium-sub012/internal/server/repositories/idempotency"
	"github.com/wichigo/Motium-sub012/internal/server/repositories/records"
	"github.com/wichigo/Motium-sub012/internal/server/repositories/refreshtokens"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Records(db dbx.DBTX) records.Repository
	Idempotency(db dbx.DBTX) idempotency.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
}
