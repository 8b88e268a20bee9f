// Package testutil holds shared fixtures for package tests.
package testutil

import (
	"context"
	"testing"

	"unitfund-backend/internal/domain"
	"unitfund-backend/internal/infrastructure/database"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB opens a migrated in-memory SQLite database. One connection is kept open so
// every query sees the same in-memory schema.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, database.AutoMigrate(db))
	return db
}

// NewRedis starts a miniredis server and returns a client for it.
func NewRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return rdb, mr
}

// CreateInvestor inserts an investor with the given KYC status.
func CreateInvestor(t *testing.T, db *gorm.DB, status domain.KYCStatus) *domain.Investor {
	t.Helper()
	inv := &domain.Investor{
		Email:     uuid.NewString() + "@example.com",
		FullName:  "Test Investor",
		KYCStatus: status,
	}
	require.NoError(t, db.WithContext(context.Background()).Create(inv).Error)
	return inv
}
