package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethpandaops/resultoor/pkg/config"
	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// RunFile is a stored run file row in the SQL store.
type RunFile struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"not null;uniqueIndex:idx_run_files_name"`
	Data      string `gorm:"type:text"`
	CreatedAt time.Time
}

// SQLStore is a Store backed by a SQL database through gorm. It must be
// started before use and stopped afterwards.
type SQLStore struct {
	log logrus.FieldLogger
	cfg *config.DatabaseConfig
	db  *gorm.DB
}

// Compile-time interface check.
var _ Store = (*SQLStore)(nil)

// NewSQLStore creates a new SQL-backed store for the configured driver.
func NewSQLStore(log logrus.FieldLogger, cfg *config.DatabaseConfig) *SQLStore {
	return &SQLStore{
		log: log.WithField("component", "sql-history-store"),
		cfg: cfg,
	}
}

// Start opens the database connection and runs migrations.
func (s *SQLStore) Start(ctx context.Context) error {
	var dialector gorm.Dialector

	switch s.cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(s.cfg.SQLite.Path)
	case "postgres":
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			s.cfg.Postgres.Host,
			s.cfg.Postgres.Port,
			s.cfg.Postgres.User,
			s.cfg.Postgres.Password,
			s.cfg.Postgres.Database,
			s.cfg.Postgres.SSLMode,
		)
		dialector = postgres.Open(dsn)
	default:
		return fmt.Errorf("unsupported database driver: %s", s.cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Discard})
	if err != nil {
		return fmt.Errorf("opening history database: %w", err)
	}

	if s.cfg.Driver == "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("getting underlying db: %w", err)
		}

		// A single connection keeps ":memory:" databases shared.
		sqlDB.SetMaxOpenConns(1)
	}

	s.db = db

	if err := s.db.WithContext(ctx).AutoMigrate(&RunFile{}); err != nil {
		return fmt.Errorf("running history migrations: %w", err)
	}

	s.log.WithField("driver", s.cfg.Driver).Info("History database connected")

	return nil
}

// Stop closes the underlying database connection.
func (s *SQLStore) Stop() error {
	if s.db == nil {
		return nil
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	return sqlDB.Close()
}

func (s *SQLStore) Location() string {
	if s.cfg.Driver == "postgres" {
		return fmt.Sprintf("postgres://%s:%d/%s",
			s.cfg.Postgres.Host, s.cfg.Postgres.Port, s.cfg.Postgres.Database)
	}

	return "sqlite://" + s.cfg.SQLite.Path
}

func (s *SQLStore) List(ctx context.Context) ([]string, error) {
	var names []string
	if err := s.db.WithContext(ctx).
		Model(&RunFile{}).
		Order("name ASC").
		Pluck("name", &names).Error; err != nil {
		return nil, fmt.Errorf("listing run files: %w", err)
	}

	return names, nil
}

func (s *SQLStore) Get(ctx context.Context, name string) ([]byte, error) {
	var row RunFile
	if err := s.db.WithContext(ctx).
		Where("name = ?", name).
		First(&row).Error; err != nil {
		return nil, fmt.Errorf("getting run file %q: %w", name, err)
	}

	return []byte(row.Data), nil
}

// Create inserts the row inside a transaction that first checks for an
// existing name; the unique index rejects any racing insert.
func (s *SQLStore) Create(ctx context.Context, name string, data []byte) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing RunFile

		err := tx.Where("name = ?", name).First(&existing).Error
		if err == nil {
			return fmt.Errorf("%s: %w", name, ErrExists)
		}

		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("checking run file %q: %w", name, err)
		}

		if err := tx.Create(&RunFile{Name: name, Data: string(data)}).Error; err != nil {
			return fmt.Errorf("inserting run file %q: %w", name, err)
		}

		return nil
	})
}

func (s *SQLStore) Delete(ctx context.Context, name string) error {
	if err := s.db.WithContext(ctx).
		Where("name = ?", name).
		Delete(&RunFile{}).Error; err != nil {
		return fmt.Errorf("deleting run file %q: %w", name, err)
	}

	return nil
}
