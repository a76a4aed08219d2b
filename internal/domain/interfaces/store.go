package interfaces

import (
	"context"

	"historysync/internal/domain/entity/timeseries"
)

// StoreRepository persists the whole dataset. Load returns an empty store when
// nothing was saved yet and wraps timeseries.ErrStoreIntegrity when the saved
// data lacks required columns. Save replaces the dataset atomically.
type StoreRepository interface {
	Load(ctx context.Context) (*timeseries.Store, error)
	Save(ctx context.Context, store *timeseries.Store) error
	Close()
}
