package authstore

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/eshaffer321/petsgo-go/internal/types"
	"github.com/glebarez/sqlite"
	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// Entry is one persisted key/value pair.
type Entry struct {
	Key       string `gorm:"primaryKey;size:64"`
	Value     string `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

// TableName pins the table name.
func (Entry) TableName() string {
	return "auth_entries"
}

// SQLStore keeps the entries in a SQL table. Each batch runs in one transaction.
type SQLStore struct {
	db     *gorm.DB
	logger types.Logger
}

// NewSQLStore wraps an open gorm.DB. Call Migrate before first use.
func NewSQLStore(db *gorm.DB, logger types.Logger) *SQLStore {
	return &SQLStore{db: db, logger: logger}
}

// OpenSQLStore opens dsn (postgres://, sqlite:// or a bare sqlite path) and
// migrates the schema. The returned func closes the connection.
func OpenSQLStore(dsn string, logger types.Logger) (*SQLStore, func() error, error) {
	driver, sqlitePath, err := resolveDriver(dsn)
	if err != nil {
		return nil, nil, err
	}

	cfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)}
	var db *gorm.DB
	switch driver {
	case "postgres":
		db, err = gorm.Open(postgres.Open(dsn), cfg)
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(sqlitePath), cfg)
	default:
		return nil, nil, fmt.Errorf("unsupported database scheme %q", driver)
	}
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to open auth store")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to open auth store")
	}
	cleanup := func() error { return sqlDB.Close() }

	store := NewSQLStore(db, logger)
	if err := store.Migrate(); err != nil {
		_ = cleanup()
		return nil, nil, err
	}
	return store, cleanup, nil
}

// Migrate creates the entries table
func (s *SQLStore) Migrate() error {
	if err := s.db.AutoMigrate(&Entry{}); err != nil {
		return errors.Wrap(err, "auto migrate")
	}
	return nil
}

// Save writes both entries
func (s *SQLStore) Save(ctx context.Context, creds *Credentials) error {
	if creds == nil {
		return errors.New("credentials are required")
	}
	values, err := encode(creds)
	if err != nil {
		return errors.Wrap(err, "failed to marshal user")
	}

	now := time.Now().UTC()
	rows := make([]Entry, 0, len(Keys))
	for _, key := range Keys {
		rows = append(rows, Entry{Key: key, Value: values[key], UpdatedAt: now})
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).Create(&rows).Error
	})
	if err != nil {
		return errors.Wrap(err, "failed to save auth")
	}

	if s.logger != nil {
		s.logger.Info("Auth saved", "store", "sql", "user_id", creds.User.ID)
	}
	return nil
}

// Load reads both entries
func (s *SQLStore) Load(ctx context.Context) (*Credentials, error) {
	var rows []Entry
	if err := s.db.WithContext(ctx).Where("key IN ?", Keys).Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "failed to load auth")
	}

	entries := make(map[string]string, len(rows))
	for _, row := range rows {
		entries[row.Key] = row.Value
	}
	return decode(entries), nil
}

// Clear removes both entries
func (s *SQLStore) Clear(ctx context.Context) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Where("key IN ?", Keys).Delete(&Entry{}).Error
	})
	if err != nil {
		return errors.Wrap(err, "failed to clear auth")
	}
	if s.logger != nil {
		s.logger.Info("Auth cleared", "store", "sql")
	}
	return nil
}

func resolveDriver(dsn string) (string, string, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres", "", nil
	}
	if strings.HasPrefix(dsn, "sqlite://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", "", fmt.Errorf("parse sqlite url: %w", err)
		}
		path := u.Host + u.Path
		if path == "" || path == "/" {
			path = "petsgo.db"
		}
		sqlitePath, err := normalizeSQLitePath(path)
		return "sqlite", sqlitePath, err
	}
	sqlitePath, err := normalizeSQLitePath(dsn)
	return "sqlite", sqlitePath, err
}

func normalizeSQLitePath(path string) (string, error) {
	if path == ":memory:" {
		return path, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", err
	}
	return path, nil
}
