package journal

import (
	"time"

	"historysync/internal/domain/entity/syncrun"

	"github.com/google/uuid"
)

type RunModel struct {
	RunID      uuid.UUID `gorm:"primaryKey;column:run_id;type:uuid"`
	Status     string    `gorm:"column:status;type:varchar(32);not null;index"`
	StartedAt  time.Time `gorm:"column:started_at;type:timestamptz;not null;index"`
	FinishedAt time.Time `gorm:"column:finished_at;type:timestamptz"`
	Error      string    `gorm:"column:error;type:text"`

	Instruments        int `gorm:"column:instruments"`
	InstrumentsSkipped int `gorm:"column:instruments_skipped"`
	ChunksPlanned      int `gorm:"column:chunks_planned"`
	ChunksFetched      int `gorm:"column:chunks_fetched"`
	ChunksEmpty        int `gorm:"column:chunks_empty"`
	ChunksTransport    int `gorm:"column:chunks_transport"`
	ChunksParse        int `gorm:"column:chunks_parse"`
	ChunksCancelled    int `gorm:"column:chunks_cancelled"`
	RowsParsed         int `gorm:"column:rows_parsed"`
	RowsRejected       int `gorm:"column:rows_rejected"`
	RowsMerged         int `gorm:"column:rows_merged"`
	RowsReplaced       int `gorm:"column:rows_replaced"`
	StoreRows          int `gorm:"column:store_rows"`

	Failures  []syncrun.ChunkFailure `gorm:"column:failures;type:jsonb;serializer:json"`
	CreatedAt time.Time              `gorm:"column:created_at;type:timestamptz;default:CURRENT_TIMESTAMP"`
}

func (RunModel) TableName() string {
	return "sync_runs"
}

func toModel(s syncrun.Summary) RunModel {
	return RunModel{
		RunID:              s.RunID,
		Status:             string(s.Status),
		StartedAt:          s.StartedAt.UTC(),
		FinishedAt:         s.FinishedAt.UTC(),
		Error:              s.Error,
		Instruments:        s.Instruments,
		InstrumentsSkipped: s.InstrumentsSkipped,
		ChunksPlanned:      s.ChunksPlanned,
		ChunksFetched:      s.ChunksFetched,
		ChunksEmpty:        s.ChunksEmpty,
		ChunksTransport:    s.ChunksTransport,
		ChunksParse:        s.ChunksParse,
		ChunksCancelled:    s.ChunksCancelled,
		RowsParsed:         s.RowsParsed,
		RowsRejected:       s.RowsRejected,
		RowsMerged:         s.RowsMerged,
		RowsReplaced:       s.RowsReplaced,
		StoreRows:          s.StoreRows,
		Failures:           s.Failures,
	}
}

func (m RunModel) toSummary() syncrun.Summary {
	return syncrun.Summary{
		RunID:              m.RunID,
		Status:             syncrun.Status(m.Status),
		StartedAt:          m.StartedAt,
		FinishedAt:         m.FinishedAt,
		Error:              m.Error,
		Instruments:        m.Instruments,
		InstrumentsSkipped: m.InstrumentsSkipped,
		ChunksPlanned:      m.ChunksPlanned,
		ChunksFetched:      m.ChunksFetched,
		ChunksEmpty:        m.ChunksEmpty,
		ChunksTransport:    m.ChunksTransport,
		ChunksParse:        m.ChunksParse,
		ChunksCancelled:    m.ChunksCancelled,
		RowsParsed:         m.RowsParsed,
		RowsRejected:       m.RowsRejected,
		RowsMerged:         m.RowsMerged,
		RowsReplaced:       m.RowsReplaced,
		StoreRows:          m.StoreRows,
		Failures:           m.Failures,
	}
}
