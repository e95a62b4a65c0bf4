package repository

import (
	"testing"

	"github.com/nimasrn/bank-reconciler/pkg/pg"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type testDB struct {
	*pg.DB
	rawDB *gorm.DB
}

// Entities lists every table owned by the reconciler, in migration order.
func Entities() []any {
	return []any{&BankTransactionEntity{}, &OrderEntity{}}
}

// OpenTestDB opens a private in-memory sqlite database with the schema
// applied. A single connection keeps every caller on the same database and
// serializes writers like row locks would.
func OpenTestDB(t testing.TB) *pg.DB {
	return setupTestDB(t).DB
}

func setupTestDB(t testing.TB) *testDB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	err = db.AutoMigrate(Entities()...)
	require.NoError(t, err)

	return &testDB{
		DB:    pg.NewFromGorm(db, db),
		rawDB: db,
	}
}
