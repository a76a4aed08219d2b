package csvstore

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"historysync/internal/domain/entity/timeseries"
	"historysync/internal/domain/interfaces"

	"github.com/sirupsen/logrus"
)

// Store keeps the dataset in a single CSV file.
type Store struct {
	path   string
	mu     sync.Mutex
	logger *logrus.Entry
}

var _ interfaces.StoreRepository = (*Store)(nil)

func New(path string, logger *logrus.Logger) (*Store, error) {
	if path == "" {
		return nil, errors.New("csv store path is required")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Store{
		path:   path,
		logger: logger.WithFields(logrus.Fields{"component": "csv_store", "path": path}),
	}, nil
}

func (s *Store) Path() string { return s.path }

// Load reads the file. A missing file is an empty store. A missing required
// column or an undecodable row wraps timeseries.ErrStoreIntegrity.
func (s *Store) Load(ctx context.Context) (*timeseries.Store, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Info("no store file yet, starting empty")
		return timeseries.NewStore(nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	defer f.Close()

	records, err := read(ctx, f)
	if err != nil {
		return nil, err
	}
	store := timeseries.NewStore(records)
	s.logger.WithField("rows", store.Len()).Debug("store loaded")
	return store, nil
}

func read(ctx context.Context, r io.Reader) ([]timeseries.Record, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read store header: %w", err)
	}
	cols, err := parseHeader(header)
	if err != nil {
		return nil, err
	}

	var records []timeseries.Record
	for line := 2; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", timeseries.ErrStoreIntegrity, line, err)
		}
		if line%10000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if isBlank(row) {
			continue
		}
		rec, err := cols.decode(row)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", timeseries.ErrStoreIntegrity, line, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if cell != "" {
			return false
		}
	}
	return true
}

// Save writes the dataset to a temporary file next to the target and renames
// it into place, so readers never observe a half-written store.
func (s *Store) Save(_ context.Context, store *timeseries.Store) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp store: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err = write(tmp, store); err != nil {
		return fmt.Errorf("write store: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync store: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp store: %w", err)
	}
	if err = os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace store: %w", err)
	}
	s.logger.WithField("rows", store.Len()).Info("store saved")
	return nil
}

func write(w io.Writer, store *timeseries.Store) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(Header); err != nil {
		return err
	}
	for _, rec := range store.Records() {
		if err := writer.Write(encode(rec)); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func (s *Store) Close() {}
