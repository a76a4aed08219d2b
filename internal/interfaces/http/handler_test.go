package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"historysync/internal/application/service/fetch"
	appinstruments "historysync/internal/application/service/instruments"
	"historysync/internal/application/service/records"
	"historysync/internal/application/service/syncer"
	"historysync/internal/domain/entity/calendar"
	"historysync/internal/domain/entity/instruments"
	"historysync/internal/domain/entity/syncrun"
	"historysync/internal/domain/entity/timeseries"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeRunner struct {
	mu       sync.Mutex
	running  bool
	last     *syncrun.Summary
	requests []syncer.Request
	runErr   error
	done     chan struct{}
	release  chan struct{}
}

func (f *fakeRunner) Run(_ context.Context, req syncer.Request) (syncrun.Summary, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.done != nil {
		defer close(f.done)
	}
	if f.release != nil {
		<-f.release
	}
	return syncrun.Summary{RunID: uuid.New(), Status: syncrun.StatusSynchronized, StoreRows: 3}, f.runErr
}

func (f *fakeRunner) Running() bool { return f.running }

func (f *fakeRunner) LastRun(context.Context) (*syncrun.Summary, error) { return f.last, nil }

func (f *fakeRunner) Plan(_ context.Context, req syncer.Request) (syncer.Plan, error) {
	alk := instruments.New("ALK", "Alkaloid")
	chunk := calendar.Range{Start: calendar.NewDate(2024, 1, 1), End: calendar.NewDate(2024, 1, 10)}
	if req.Target != (calendar.Range{}) {
		chunk = req.Target
	}
	return syncer.Plan{
		Target: chunk,
		Kept:   []instruments.Instrument{alk},
		Tasks:  []fetch.Task{{Instrument: alk, Chunk: chunk}},
	}, nil
}

type listerFunc func(context.Context) ([]instruments.Instrument, error)

func (f listerFunc) ListInstruments(ctx context.Context) ([]instruments.Instrument, error) {
	return f(ctx)
}

type staticStore struct{ store *timeseries.Store }

func (s staticStore) Load(context.Context) (*timeseries.Store, error) { return s.store, nil }
func (s staticStore) Save(context.Context, *timeseries.Store) error   { return nil }
func (s staticStore) Close()                                          {}

func rec(code string, day int, price int64) timeseries.Record {
	return timeseries.Record{
		Code:      code,
		Date:      calendar.NewDate(2024, time.March, day),
		LastPrice: decimal.NewFromInt(price),
		Volume:    decimal.NewFromInt(10),
	}
}

func newTestHandler(t *testing.T, runner *fakeRunner) *Handler {
	t.Helper()
	lister := listerFunc(func(context.Context) ([]instruments.Instrument, error) {
		return []instruments.Instrument{instruments.New("ALK", "Alkaloid"), instruments.New("KMB", "Komercijalna")}, nil
	})
	store := timeseries.NewStore([]timeseries.Record{rec("ALK", 3, 30), rec("ALK", 1, 10), rec("ALK", 2, 20), rec("KMB", 1, 5)})
	return NewHandler(
		context.Background(),
		runner,
		appinstruments.NewService(lister, nil),
		records.NewService(staticStore{store: store}),
		nil, 0, nil,
	)
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestStatus(t *testing.T) {
	last := &syncrun.Summary{RunID: uuid.New(), Status: syncrun.StatusPartial}
	h := newTestHandler(t, &fakeRunner{last: last, running: true})

	rr := do(t, h, http.MethodGet, "/api/v1/status", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Running bool            `json:"running"`
		LastRun syncrun.Summary `json:"last_run"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.True(t, body.Running)
	assert.Equal(t, syncrun.StatusPartial, body.LastRun.Status)
}

func TestTriggerSyncWaits(t *testing.T) {
	runner := &fakeRunner{}
	h := newTestHandler(t, runner)

	rr := do(t, h, http.MethodPost, "/api/v1/sync?wait=true", `{"codes":["alk"," "],"from":"2024-01-01","to":"2024-01-31"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var summary syncrun.Summary
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &summary))
	assert.Equal(t, syncrun.StatusSynchronized, summary.Status)

	require.Len(t, runner.requests, 1)
	assert.Equal(t, []string{"alk"}, runner.requests[0].Codes)
	assert.Equal(t, calendar.NewDate(2024, 1, 31), runner.requests[0].Target.End)
}

func TestTriggerSyncInBackground(t *testing.T) {
	runner := &fakeRunner{done: make(chan struct{})}
	h := newTestHandler(t, runner)

	rr := do(t, h, http.MethodPost, "/api/v1/sync", "")
	require.Equal(t, http.StatusAccepted, rr.Code)

	select {
	case <-runner.done:
	case <-time.After(2 * time.Second):
		t.Fatal("background run never started")
	}
}

func TestWaitCoversBackgroundRuns(t *testing.T) {
	runner := &fakeRunner{done: make(chan struct{}), release: make(chan struct{})}
	h := newTestHandler(t, runner)

	rr := do(t, h, http.MethodPost, "/api/v1/sync", "")
	require.Equal(t, http.StatusAccepted, rr.Code)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, h.Wait(ctx), context.DeadlineExceeded, "run still in progress")

	close(runner.release)
	ctx, cancel = context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.Wait(ctx))
	select {
	case <-runner.done:
	default:
		t.Fatal("Wait returned before the run finished")
	}
}

func TestWaitWithoutRuns(t *testing.T) {
	h := newTestHandler(t, &fakeRunner{})
	assert.NoError(t, h.Wait(context.Background()))
}

func TestTriggerSyncErrors(t *testing.T) {
	t.Run("already running", func(t *testing.T) {
		h := newTestHandler(t, &fakeRunner{running: true})
		rr := do(t, h, http.MethodPost, "/api/v1/sync", "")
		assert.Equal(t, http.StatusConflict, rr.Code)
	})

	t.Run("half range", func(t *testing.T) {
		h := newTestHandler(t, &fakeRunner{})
		rr := do(t, h, http.MethodPost, "/api/v1/sync", `{"from":"2024-01-01"}`)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("inverted range", func(t *testing.T) {
		h := newTestHandler(t, &fakeRunner{})
		rr := do(t, h, http.MethodPost, "/api/v1/sync", `{"from":"2024-02-01","to":"2024-01-01"}`)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("run failure", func(t *testing.T) {
		h := newTestHandler(t, &fakeRunner{runErr: errors.New("save store: disk full")})
		rr := do(t, h, http.MethodPost, "/api/v1/sync?wait=true", "")
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.Contains(t, rr.Body.String(), "disk full")
	})
}

func TestPlan(t *testing.T) {
	h := newTestHandler(t, &fakeRunner{})

	rr := do(t, h, http.MethodGet, "/api/v1/plan?codes=ALK&from=2024-02-01&to=2024-02-05", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		From   string      `json:"from"`
		Chunks []chunkView `json:"chunks"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "2024-02-01", body.From)
	require.Len(t, body.Chunks, 1)
	assert.Equal(t, chunkView{Code: "ALK", From: "2024-02-01", To: "2024-02-05", Days: 5}, body.Chunks[0])
}

func TestInstruments(t *testing.T) {
	h := newTestHandler(t, &fakeRunner{})

	rr := do(t, h, http.MethodGet, "/api/v1/instruments", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var list []instruments.Instrument
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list, 2)
	assert.Equal(t, "KMB", list[1].Code)
}

func TestRecordsEndpoints(t *testing.T) {
	h := newTestHandler(t, &fakeRunner{})

	rr := do(t, h, http.MethodGet, "/api/v1/records?code=alk&from=2024-03-03&to=2024-03-02", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var views []recordView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &views))
	require.Len(t, views, 2)
	assert.Equal(t, "2024-03-03", views[0].Date)
	assert.Equal(t, "30", views[0].LastPrice)

	rr = do(t, h, http.MethodGet, "/api/v1/records/last?code=ALK&limit=1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &views))
	require.Len(t, views, 1)
	assert.Equal(t, "2024-03-03", views[0].Date)

	rr = do(t, h, http.MethodGet, "/api/v1/records/codes", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `["ALK","KMB"]`, rr.Body.String())

	rr = do(t, h, http.MethodGet, "/api/v1/records/coverage?code=ALK", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"from":"2024-03-01","to":"2024-03-03","days":3}`, rr.Body.String())
}

func TestRecordsErrors(t *testing.T) {
	h := newTestHandler(t, &fakeRunner{})

	cases := map[string]int{
		"/api/v1/records?from=2024-03-01&to=2024-03-02": http.StatusBadRequest,
		"/api/v1/records?code=ALK":                      http.StatusBadRequest,
		"/api/v1/records?code=ALK&from=x&to=2024-03-02": http.StatusBadRequest,
		"/api/v1/records/last?code=ALK&limit=0":         http.StatusBadRequest,
		"/api/v1/records/last?code=ALK&limit=abc":       http.StatusBadRequest,
		"/api/v1/records/last?code=TEL":                 http.StatusNotFound,
		"/api/v1/records/coverage?code=TEL":             http.StatusNotFound,
	}
	for target, want := range cases {
		rr := do(t, h, http.MethodGet, target, "")
		assert.Equal(t, want, rr.Code, target)
		assert.Contains(t, rr.Body.String(), `"error"`, target)
	}
}
