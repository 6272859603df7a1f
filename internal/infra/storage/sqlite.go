package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"market_sync/internal/domain"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Storage defines the interface for data persistence
type Storage struct {
	db *gorm.DB
}

// NewStorage opens (or creates) the SQLite database at path.
// An empty path means the per-user config directory.
func NewStorage(path string) (*Storage, error) {
	if path == "" {
		p, err := getDBPath()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve DB path: %w", err)
		}
		path = p
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	// Connect to SQLite (Pure Go)
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return newStorage(db)
}

func newStorage(db *gorm.DB) (*Storage, error) {
	if err := db.AutoMigrate(&domain.AppConfig{}, &domain.TradeRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Storage{db: db}, nil
}

// getDBPath resolves the database file path based on OS
func getDBPath() (string, error) {
	var configDir string
	var err error

	if runtime.GOOS == "windows" {
		configDir = os.Getenv("LOCALAPPDATA")
		if configDir == "" {
			configDir, err = os.UserConfigDir()
		}
	} else {
		configDir, err = os.UserConfigDir()
	}

	if err != nil {
		return "", err
	}

	return filepath.Join(configDir, "MarketSync", "data", "market_sync.db"), nil
}

// Close releases the underlying connection pool.
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ======================================================================================
// Config Operations
// ======================================================================================

// SaveConfig saves a user configuration
func (s *Storage) SaveConfig(key, value string) error {
	config := domain.AppConfig{
		Key:   key,
		Value: value,
	}
	return s.db.Save(&config).Error
}

// GetConfig returns the value for key. ok is false when the key is absent.
func (s *Storage) GetConfig(key string) (value string, ok bool, err error) {
	var config domain.AppConfig
	err = s.db.First(&config, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil // Not found is not an error
	}
	if err != nil {
		return "", false, err
	}
	return config.Value, true, nil
}

// DeleteConfig removes key. Deleting a missing key is not an error.
func (s *Storage) DeleteConfig(key string) error {
	return s.db.Where("key = ?", key).Delete(&domain.AppConfig{}).Error
}

// ======================================================================================
// Trade Journal
// ======================================================================================

// RecordTrade appends a resolved trade.
func (s *Storage) RecordTrade(ctx context.Context, rec *domain.TradeRecord) error {
	return s.db.WithContext(ctx).Create(rec).Error
}

// ListTrades returns the newest trades first. An empty sessionID lists every session;
// limit <= 0 means no limit.
func (s *Storage) ListTrades(ctx context.Context, sessionID string, limit int) ([]domain.TradeRecord, error) {
	q := s.db.WithContext(ctx).Order("id desc")
	if sessionID != "" {
		q = q.Where("session_id = ?", sessionID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var recs []domain.TradeRecord
	err := q.Find(&recs).Error
	return recs, err
}
