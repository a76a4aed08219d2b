package timeseries

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrEmptyTable means the source answered but had no history table.
	ErrEmptyTable = errors.New("no history table in response")
	// ErrStoreIntegrity means a persisted store lacks a required column.
	ErrStoreIntegrity = errors.New("store integrity")
)

// HTTPError is a non-success response from the source. StatusCode is zero for
// transport failures that never produced a response.
type HTTPError struct {
	StatusCode int
	URL        string
	Err        error
}

func (e *HTTPError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("request %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("request %s: status %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

func (e *HTTPError) Unwrap() error { return e.Err }

// DocumentError is a response body that could not be read as a history page.
type DocumentError struct {
	Reason string
	Err    error
}

func (e *DocumentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed document: %s: %v", e.Reason, e.Err)
	}
	return "malformed document: " + e.Reason
}

func (e *DocumentError) Unwrap() error { return e.Err }
