package syncrun

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusSynchronized  Status = "synchronized"
	StatusPartial       Status = "partial"
	StatusFailedToStart Status = "failed_to_start"
)

type FailureKind string

const (
	FailureTransport FailureKind = "transport"
	FailureParse     FailureKind = "parse"
	FailureCancelled FailureKind = "cancelled"
	FailureRow       FailureKind = "row"
)

// ChunkFailure describes one chunk or row that did not contribute records.
type ChunkFailure struct {
	Code       string      `json:"code"`
	From       string      `json:"from"`
	To         string      `json:"to"`
	Kind       FailureKind `json:"kind"`
	StatusCode int         `json:"status_code,omitempty"`
	Row        int         `json:"row,omitempty"`
	Reason     string      `json:"reason"`
}

// Summary is the user-visible result of one synchronization run.
type Summary struct {
	RunID      uuid.UUID `json:"run_id"`
	Status     Status    `json:"status"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Error      string    `json:"error,omitempty"`

	Instruments        int `json:"instruments"`
	InstrumentsSkipped int `json:"instruments_skipped"`

	ChunksPlanned   int `json:"chunks_planned"`
	ChunksFetched   int `json:"chunks_fetched"`
	ChunksEmpty     int `json:"chunks_empty"`
	ChunksTransport int `json:"chunks_transport_failed"`
	ChunksParse     int `json:"chunks_parse_failed"`
	ChunksCancelled int `json:"chunks_cancelled"`

	RowsParsed   int `json:"rows_parsed"`
	RowsRejected int `json:"rows_rejected"`
	RowsMerged   int `json:"rows_merged"`
	RowsReplaced int `json:"rows_replaced"`
	StoreRows    int `json:"store_rows"`

	Failures []ChunkFailure `json:"failures,omitempty"`
}

// ChunkFailures counts failed chunks of every category.
func (s Summary) ChunkFailures() int {
	return s.ChunksTransport + s.ChunksParse + s.ChunksCancelled
}

// Finish derives the status from the failure counters unless the run never
// got past loading the store.
func (s *Summary) Finish(at time.Time) {
	s.FinishedAt = at
	if s.Status == StatusFailedToStart {
		return
	}
	if s.ChunkFailures() > 0 {
		s.Status = StatusPartial
		return
	}
	s.Status = StatusSynchronized
}

func (s Summary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}
