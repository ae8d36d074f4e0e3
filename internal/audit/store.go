// Package audit persists the outcome of sync operations so past pulls and
// pushes can be inspected after the fact.
package audit

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/clintrovert/tpsync/pkg/types"
)

// Record is one persisted sync outcome, flattened from a SyncResult.
type Record struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"`
	Operation    string `gorm:"size:16;index"`
	Release      string `gorm:"size:64;index"`
	Team         string `gorm:"size:64;index"`
	Success      bool
	Message      string `gorm:"type:text"`
	Conflicts    string `gorm:"type:text"`
	APICallCount int
	CreatedAt    time.Time
}

// Store wraps the audit database.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Open opens (and migrates) the sqlite audit database at path.
func Open(path string, logger *zap.Logger) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", path, err)
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("audit: migrate: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Record persists one sync outcome.
func (s *Store) Record(operation, release, team string, result *types.SyncResult) error {
	rec := Record{
		Operation:    operation,
		Release:      release,
		Team:         team,
		Success:      result.Success,
		Message:      result.Message,
		Conflicts:    strings.Join(result.Conflicts, "\n"),
		APICallCount: len(result.APICalls),
	}
	if err := s.db.Create(&rec).Error; err != nil {
		return fmt.Errorf("audit: record %s: %w", operation, err)
	}
	s.logger.Debug("recorded sync outcome",
		zap.String("operation", operation),
		zap.Bool("success", result.Success),
	)
	return nil
}

// Recent returns the newest records, newest first.
func (s *Store) Recent(limit int) ([]Record, error) {
	var records []Record
	err := s.db.Order("id desc").Limit(limit).Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("audit: list: %w", err)
	}
	return records, nil
}

// Get returns one record by id.
func (s *Store) Get(id uint) (*Record, error) {
	var rec Record
	if err := s.db.First(&rec, id).Error; err != nil {
		return nil, fmt.Errorf("audit: get %d: %w", id, err)
	}
	return &rec, nil
}
