package interfaces

import (
	"context"

	"historysync/internal/domain/entity/syncrun"
)

// RunJournal keeps the history of synchronization runs.
type RunJournal interface {
	Record(ctx context.Context, summary syncrun.Summary) error
	Last(ctx context.Context) (*syncrun.Summary, error)
	Close()
}

// RunPublisher announces finished runs to other services.
type RunPublisher interface {
	PublishRun(ctx context.Context, summary syncrun.Summary) error
	Close()
}
