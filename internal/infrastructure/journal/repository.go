package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"historysync/internal/domain/entity/syncrun"
	"historysync/internal/domain/interfaces"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// maxFailures bounds the failure list kept per run.
const maxFailures = 500

// Repository stores run summaries in the sync_runs table.
type Repository struct {
	db *gorm.DB
}

var _ interfaces.RunJournal = (*Repository)(nil)

func NewRepository(ctx context.Context, dsn string) (*Repository, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("journal db handle: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping journal db: %w", err)
	}
	return NewWithDB(db), nil
}

// NewWithDB wraps an existing gorm handle.
func NewWithDB(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Migrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&RunModel{})
}

func (r *Repository) Record(ctx context.Context, summary syncrun.Summary) error {
	model := toModel(summary)
	if len(model.Failures) > maxFailures {
		model.Failures = model.Failures[:maxFailures]
	}
	if err := r.db.WithContext(ctx).Save(&model).Error; err != nil {
		return fmt.Errorf("record run %s: %w", summary.RunID, err)
	}
	return nil
}

// Last returns the most recently started run, or nil when none was recorded.
func (r *Repository) Last(ctx context.Context) (*syncrun.Summary, error) {
	var model RunModel
	err := r.db.WithContext(ctx).Order("started_at DESC").First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last run: %w", err)
	}
	summary := model.toSummary()
	return &summary, nil
}

// Recent lists up to limit runs, newest first.
func (r *Repository) Recent(ctx context.Context, limit int) ([]syncrun.Summary, error) {
	if limit <= 0 {
		limit = 20
	}
	var models []RunModel
	if err := r.db.WithContext(ctx).Order("started_at DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, fmt.Errorf("recent runs: %w", err)
	}
	out := make([]syncrun.Summary, 0, len(models))
	for _, m := range models {
		out = append(out, m.toSummary())
	}
	return out, nil
}

// Prune removes runs started before the cutoff.
func (r *Repository) Prune(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("started_at < ?", before.UTC()).Delete(&RunModel{})
	if res.Error != nil {
		return 0, fmt.Errorf("prune runs: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *Repository) Close() {
	if r == nil || r.db == nil {
		return
	}
	if sqlDB, err := r.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
