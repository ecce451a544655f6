package postgres

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/lapline/lapline/internal/logging"
	"github.com/lapline/lapline/internal/model"
	"github.com/lapline/lapline/internal/storage"
	"github.com/lapline/lapline/pkg/core"
)

// Compile-time interface checks
var (
	_ storage.Backend     = (*Backend)(nil)
	_ storage.Monitorable = (*Backend)(nil)
)

// newTestDB creates an in-memory SQLite DB standing in for Postgres.
// MaxOpenConns=1 ensures all operations use the same connection (in-memory
// SQLite databases are per-connection, so multiple connections would each
// see an empty database).
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	return db
}

func TestInitWithInjectedDB(t *testing.T) {
	db := newTestDB(t)

	b := New(db, logging.NewSlogManager())
	require.NoError(t, b.Init())
	defer func() { require.NoError(t, b.Close()) }()

	assert.Same(t, db, b.DB())
	assert.True(t, db.Migrator().HasTable(&model.Session{}), "Init should migrate the schema")

	var info model.InstanceInfo
	require.NoError(t, db.First(&info).Error)
	assert.Equal(t, "Lapline", info.OrgName)
}

func TestRecordsFlushOnClose(t *testing.T) {
	db := newTestDB(t)

	b := New(db, logging.NewSlogManager())
	require.NoError(t, b.Init())

	session := &core.Session{Name: "Night Sprint", StartTime: time.Now()}
	venue := &core.Venue{Name: "harbor_circuit"}
	require.NoError(t, b.StartSession(session, venue))
	require.NotZero(t, session.ID)

	require.NoError(t, b.AddEntity(&core.Entity{ID: 3, Name: "Car Three", JoinTime: time.Now()}))
	require.NoError(t, b.RecordSample(&core.Sample{
		EntityID:     3,
		Time:         time.Now(),
		CaptureFrame: 9,
		Position:     core.Position3D{X: 10, Y: 20, Z: 0},
	}))
	require.NoError(t, b.Close())

	var count int64
	db.Model(&model.Entity{}).Where("session_id = ?", session.ID).Count(&count)
	assert.Equal(t, int64(1), count)
	db.Model(&model.PositionRecord{}).Where("session_id = ?", session.ID).Count(&count)
	assert.Equal(t, int64(1), count)
}
