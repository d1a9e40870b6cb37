package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"createfi_go/internal/domain"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// keySelectedIdentity is the only client state the session persists.
const keySelectedIdentity = "selected_identity"

// Storage persists client-side state in SQLite
type Storage struct {
	db *gorm.DB
}

// NewStorage opens the SQLite database at path, or at the per-user default
// location when path is empty.
func NewStorage(path string) (*Storage, error) {
	dbPath := path
	if dbPath == "" {
		p, err := getDBPath()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve DB path: %w", err)
		}
		dbPath = p
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	// Connect to SQLite (Pure Go)
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&domain.AppConfig{}); err != nil {
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

	return filepath.Join(configDir, "CreateFi", "data", "createfi.db"), nil
}

// Close releases the underlying connection.
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ======================================================================================
// Session Operations
// ======================================================================================

// SaveSelectedAddress remembers the last-selected identity. An empty address clears it.
func (s *Storage) SaveSelectedAddress(address string) error {
	if address == "" {
		return s.db.Where(map[string]any{"key": keySelectedIdentity}).Delete(&domain.AppConfig{}).Error
	}
	return s.SaveConfig(keySelectedIdentity, address)
}

// LoadSelectedAddress returns the remembered address, or "" when none is stored.
func (s *Storage) LoadSelectedAddress() (string, error) {
	var cfg domain.AppConfig
	err := s.db.Where(map[string]any{"key": keySelectedIdentity}).First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil // Not found is not an error
	}
	if err != nil {
		return "", err
	}
	return cfg.Value, nil
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

// LoadConfigMap loads all user configurations as a map
func (s *Storage) LoadConfigMap() (map[string]string, error) {
	var configs []domain.AppConfig
	if err := s.db.Find(&configs).Error; err != nil {
		return nil, err
	}

	result := make(map[string]string)
	for _, cfg := range configs {
		result[cfg.Key] = cfg.Value
	}
	return result, nil
}
