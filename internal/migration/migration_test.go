package migration

import (
	"io"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/flightclub/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func openMemory(t *testing.T, name string) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	src, err := Source()
	require.NoError(t, err)
	defer src.Close()

	version, err := src.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	up, _, err := src.ReadUp(version)
	require.NoError(t, err)
	body, err := io.ReadAll(up)
	require.NoError(t, err)
	_ = up.Close()
	for _, table := range []string{"users", "cost_centers", "flightlogs", "user_transactions", "cost_center_transactions", "audit_logs"} {
		assert.Contains(t, string(body), "CREATE TABLE IF NOT EXISTS "+table+" ")
	}

	down, _, err := src.ReadDown(version)
	require.NoError(t, err)
	_ = down.Close()
}

func TestMigrateFallsBackToAutoMigrate(t *testing.T) {
	db := openMemory(t, "migrate_auto")

	err := Migrate(db, config.Config{DBType: "sqlite", DBAutoMigrate: true}, zaptest.NewLogger(t))
	require.NoError(t, err)

	for _, table := range []string{"users", "cost_centers", "aircraft", "operation_types", "flightlogs", "user_transactions", "cost_center_transactions", "audit_logs"} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}
}

func TestMigrateCanBeDisabled(t *testing.T) {
	db := openMemory(t, "migrate_disabled")

	err := Migrate(db, config.Config{DBType: "sqlite", DBAutoMigrate: false}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.False(t, db.Migrator().HasTable("user_transactions"))
}
