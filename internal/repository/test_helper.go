package repository

import (
	"testing"

	"github.com/nimasrn/vendzz-dispatch/pkg/pg"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Entities lists every table this service owns, in dependency order.
var Entities = []any{
	&UserEntity{},
	&CreditTransactionEntity{},
	&QuizResponseEntity{},
	&CampaignEntity{},
	&DispatchLogEntity{},
	&ExtensionSessionEntity{},
}

// OpenTestDB returns a migrated in-memory sqlite database. A single
// connection keeps every query on the same memory database.
func OpenTestDB(t testing.TB) *pg.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(Entities...))
	return pg.New(db, db)
}

// SeedUser inserts a user row with the given balances.
func SeedUser(t testing.TB, db *pg.DB, u *UserEntity) {
	t.Helper()
	require.NoError(t, db.Write(t.Context()).Create(u).Error)
}
