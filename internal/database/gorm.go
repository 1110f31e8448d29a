//go:build gorm

package database

import (
	"context"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// GormDB wraps gorm.DB for the build-tag-gated alternate repository path
// (internal/leaves.GORMRepository, internal/covers.GORMRepository). It
// exists alongside Pool, not instead of it: cmd/api wires Pool by default
// and only constructs a GormDB when built with -tags gorm.
type GormDB struct {
	*gorm.DB
}

// NewGormDB opens a gorm connection against connString and verifies it
// with a ping, mirroring NewPool's connect-and-ping-on-startup contract.
func NewGormDB(ctx context.Context, connString string) (*GormDB, error) {
	db, err := gorm.Open(postgres.Open(connString), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Warn),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("database: open gorm connection: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database: underlying sql.DB: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("database: ping: %w", err)
	}

	return &GormDB{DB: db}, nil
}

// Close releases the underlying connection pool.
func (g *GormDB) Close() error {
	sqlDB, err := g.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
