// Package postgres implements the storage.Backend interface on a PostgreSQL
// database. It embeds the shared GORM backend; the Postgres specifics are
// the connection bootstrap and pool sizing. TimescaleDB hypertable setup
// runs in the session monitor once the backend is up.
package postgres

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/lapline/lapline/internal/database"
	"github.com/lapline/lapline/internal/logging"
	gormstorage "github.com/lapline/lapline/internal/storage/gorm"
)

// Backend wraps the GORM backend for Postgres-specific behavior.
type Backend struct {
	*gormstorage.Backend
	db  *gorm.DB
	log *logging.SlogManager
}

// New creates a Postgres storage backend. When db is nil, Init opens its
// own connection using the configured credentials.
func New(db *gorm.DB, logManager *logging.SlogManager) *Backend {
	return &Backend{
		db:  db,
		log: logManager,
	}
}

// Init connects to Postgres when no connection was injected, then
// initializes the embedded GORM backend.
func (b *Backend) Init() error {
	if b.db == nil {
		db, err := database.GetPostgresDBStandalone()
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("failed to access sql interface: %w", err)
		}
		if err = sqlDB.Ping(); err != nil {
			return fmt.Errorf("failed to validate connection: %w", err)
		}
		sqlDB.SetMaxOpenConns(10)
		b.db = db
	}

	b.Backend = gormstorage.New(gormstorage.Dependencies{
		DB:         b.db,
		LogManager: b.log,
	})

	return b.Backend.Init()
}

// DB returns the underlying GORM handle. The monitor uses it for
// TimescaleDB hypertable management.
func (b *Backend) DB() *gorm.DB {
	return b.db
}
