package pg

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type row struct {
	ID   int64 `gorm:"primaryKey"`
	Name string
}

func setup(t *testing.T) *DB {
	g, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := g.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, g.AutoMigrate(&row{}))
	return NewFromGorm(g, g)
}

func TestWithinTransaction(t *testing.T) {
	db := setup(t)
	ctx := context.Background()

	t.Run("commit", func(t *testing.T) {
		err := db.WithinTransaction(ctx, func(ctx context.Context) error {
			return db.Write(ctx).Create(&row{ID: 1, Name: "a"}).Error
		})
		require.NoError(t, err)

		var count int64
		db.Read(ctx).Model(&row{}).Count(&count)
		assert.Equal(t, int64(1), count)
	})

	t.Run("rollback on error", func(t *testing.T) {
		boom := errors.New("boom")
		err := db.WithinTransaction(ctx, func(ctx context.Context) error {
			if err := db.Write(ctx).Create(&row{ID: 2, Name: "b"}).Error; err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		var count int64
		db.Read(ctx).Model(&row{}).Where("id = ?", 2).Count(&count)
		assert.Zero(t, count)
	})

	t.Run("nested call joins outer transaction", func(t *testing.T) {
		boom := errors.New("outer failed")
		err := db.WithinTransaction(ctx, func(ctx context.Context) error {
			inner := db.WithinTransaction(ctx, func(ctx context.Context) error {
				return db.Write(ctx).Create(&row{ID: 3, Name: "c"}).Error
			})
			require.NoError(t, inner)
			return boom
		})
		assert.ErrorIs(t, err, boom)

		var count int64
		db.Read(ctx).Model(&row{}).Where("id = ?", 3).Count(&count)
		assert.Zero(t, count)
	})
}

func TestPing(t *testing.T) {
	db := setup(t)
	assert.NoError(t, db.Ping(context.Background()))
	assert.NoError(t, db.Close())
}

func TestConfigDSN(t *testing.T) {
	c := Config{User: "u", Host: "h", Port: "5432", Password: "p", Database: "d"}
	assert.Equal(t, "host=h user=u password=p dbname=d port=5432 sslmode=disable", c.DSN())

	c.SSLMode = "require"
	assert.Contains(t, c.DSN(), "sslmode=require")
}
