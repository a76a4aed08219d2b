package fetch

import (
	"errors"
	"fmt"

	"historysync/internal/domain/entity/calendar"
	"historysync/internal/domain/entity/instruments"
	"historysync/internal/domain/entity/timeseries"
)

// Kind tags an Outcome.
type Kind int

const (
	KindSuccess Kind = iota
	KindEmpty
	KindHTTPFailure
	KindParseFailure
	// KindCancelled marks a task never started because the run was cancelled.
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindEmpty:
		return "empty"
	case KindHTTPFailure:
		return "http_failure"
	case KindParseFailure:
		return "parse_failure"
	case KindCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Task is one chunk of one instrument.
type Task struct {
	Instrument instruments.Instrument
	Chunk      calendar.Range
}

// Outcome is the tagged result of a task. Rows is set for KindSuccess,
// StatusCode for KindHTTPFailure (zero when no response arrived), Reason for
// every failure kind.
type Outcome struct {
	Kind       Kind
	Rows       []timeseries.RawRow
	StatusCode int
	Reason     string
	Err        error
}

// Result pairs a task with its outcome.
type Result struct {
	Task    Task
	Outcome Outcome
}

// classify maps a fetcher answer onto an outcome.
func classify(rows []timeseries.RawRow, err error) Outcome {
	if err == nil {
		if len(rows) == 0 {
			return Outcome{Kind: KindEmpty, Reason: timeseries.ErrEmptyTable.Error()}
		}
		return Outcome{Kind: KindSuccess, Rows: rows}
	}

	var (
		httpErr *timeseries.HTTPError
		docErr  *timeseries.DocumentError
	)
	switch {
	case errors.Is(err, timeseries.ErrEmptyTable):
		return Outcome{Kind: KindEmpty, Reason: err.Error()}
	case errors.As(err, &docErr):
		return Outcome{Kind: KindParseFailure, Reason: docErr.Reason, Err: err}
	case errors.As(err, &httpErr):
		return Outcome{Kind: KindHTTPFailure, StatusCode: httpErr.StatusCode, Reason: err.Error(), Err: err}
	default:
		return Outcome{Kind: KindHTTPFailure, Reason: err.Error(), Err: err}
	}
}
