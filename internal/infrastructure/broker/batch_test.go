package broker

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"historysync/internal/application/service/syncer"
	"historysync/internal/domain/entity/calendar"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quiet() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type triggers struct {
	mu   sync.Mutex
	reqs []syncer.Request
	errs []error
	hit  chan struct{}
}

func newTriggers() *triggers {
	return &triggers{hit: make(chan struct{}, 8)}
}

func (tr *triggers) fn(_ context.Context, req syncer.Request) error {
	tr.mu.Lock()
	tr.reqs = append(tr.reqs, req)
	var err error
	if len(tr.errs) > 0 {
		err, tr.errs = tr.errs[0], tr.errs[1:]
	}
	tr.mu.Unlock()
	tr.hit <- struct{}{}
	return err
}

func (tr *triggers) wait(t *testing.T) {
	t.Helper()
	select {
	case <-tr.hit:
	case <-time.After(2 * time.Second):
		t.Fatal("sync was not triggered")
	}
}

func (tr *triggers) all() []syncer.Request {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]syncer.Request(nil), tr.reqs...)
}

func TestCoalesceUnitesCodesAndSpansRanges(t *testing.T) {
	req := Coalesce([]SyncRequestMessage{
		{Codes: []string{"kmb", "ALK"}, From: "2024-01-05", To: "2024-01-10"},
		{Codes: []string{"ALK", "TTK"}, From: "2024-01-01", To: "2024-01-07"},
	})

	assert.Equal(t, []string{"ALK", "KMB", "TTK"}, req.Codes)
	assert.Equal(t, calendar.Range{Start: calendar.NewDate(2024, 1, 1), End: calendar.NewDate(2024, 1, 10)}, req.Target)
}

func TestCoalesceWidensToEverything(t *testing.T) {
	req := Coalesce([]SyncRequestMessage{
		{Codes: []string{"ALK"}, From: "2024-01-01", To: "2024-01-02"},
		{},
	})

	assert.Nil(t, req.Codes)
	assert.Equal(t, calendar.Range{}, req.Target)
}

func TestCoalescerFlushesOnSize(t *testing.T) {
	tr := newTriggers()
	c := NewCoalescer(BatchConfig{Size: 2, Timeout: time.Hour}, tr.fn, quiet())
	c.Run(context.Background())

	require.NoError(t, c.Add(SyncRequestMessage{Codes: []string{"ALK"}}))
	assert.Empty(t, tr.all())
	require.NoError(t, c.Add(SyncRequestMessage{Codes: []string{"KMB"}}))

	reqs := tr.all()
	require.Len(t, reqs, 1)
	assert.Equal(t, []string{"ALK", "KMB"}, reqs[0].Codes)
}

func TestCoalescerFlushesOnTimeout(t *testing.T) {
	tr := newTriggers()
	c := NewCoalescer(BatchConfig{Size: 100, Timeout: 10 * time.Millisecond}, tr.fn, quiet())
	c.Run(context.Background())

	require.NoError(t, c.Add(SyncRequestMessage{Codes: []string{"ALK"}}))

	select {
	case <-tr.hit:
	case <-time.After(2 * time.Second):
		t.Fatal("timer flush did not happen")
	}
	assert.Len(t, tr.all(), 1)
}

func TestCoalescerStopDrainsPending(t *testing.T) {
	tr := newTriggers()
	c := NewCoalescer(BatchConfig{Size: 100, Timeout: time.Hour}, tr.fn, quiet())
	c.Run(context.Background())
	require.NoError(t, c.Add(SyncRequestMessage{}))

	require.NoError(t, c.Stop(context.Background()))

	assert.Len(t, tr.all(), 1)
}

func TestCoalescerRetriesWhileRunInProgress(t *testing.T) {
	tr := newTriggers()
	tr.errs = []error{syncer.ErrRunInProgress}
	c := NewCoalescer(BatchConfig{Size: 1, Timeout: 10 * time.Millisecond}, tr.fn, quiet())
	c.Run(context.Background())

	require.NoError(t, c.Add(SyncRequestMessage{Codes: []string{"ALK"}}))
	tr.wait(t)
	tr.wait(t)

	reqs := tr.all()
	require.Len(t, reqs, 2)
	assert.Equal(t, []string{"ALK"}, reqs[0].Codes)
	assert.Equal(t, reqs[0], reqs[1], "the same batch is retried")
}

func TestCoalescerKeepsRequestsAcrossBusyRetry(t *testing.T) {
	tr := newTriggers()
	tr.errs = []error{syncer.ErrRunInProgress}
	c := NewCoalescer(BatchConfig{Size: 100, Timeout: 100 * time.Millisecond}, tr.fn, quiet())
	c.Run(context.Background())

	require.NoError(t, c.Add(SyncRequestMessage{Codes: []string{"KMB"}}))
	tr.wait(t)
	require.NoError(t, c.Add(SyncRequestMessage{Codes: []string{"ALK"}}))
	tr.wait(t)

	reqs := tr.all()
	require.Len(t, reqs, 2)
	assert.Equal(t, []string{"ALK", "KMB"}, reqs[1].Codes)
}

func TestCoalescerLogsFailedRuns(t *testing.T) {
	tr := newTriggers()
	tr.errs = []error{errors.New("save failed")}
	c := NewCoalescer(BatchConfig{Size: 1, Timeout: 10 * time.Millisecond}, tr.fn, quiet())
	c.Run(context.Background())

	assert.NoError(t, c.Add(SyncRequestMessage{Codes: []string{"ALK"}}))
	tr.wait(t)

	select {
	case <-tr.hit:
		t.Fatal("failed run must not be retried")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Len(t, tr.all(), 1)
}

func TestCoalescerRejectsBeforeRun(t *testing.T) {
	c := NewCoalescer(BatchConfig{}, newTriggers().fn, quiet())
	assert.Error(t, c.Add(SyncRequestMessage{}))
}

func TestDecodeRequest(t *testing.T) {
	msg, err := DecodeRequest([]byte(`{"codes":["ALK"],"from":"2024-01-01","to":"2024-01-31"}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"ALK"}, msg.Codes)

	empty, err := DecodeRequest(nil)
	require.NoError(t, err)
	assert.Empty(t, empty.Codes)

	_, err = DecodeRequest([]byte(`{"from":"2024-02-01","to":"2024-01-01"}`))
	assert.ErrorIs(t, err, calendar.ErrInvertedRange)

	_, err = DecodeRequest([]byte(`{"from":"2024-02-01"}`))
	assert.Error(t, err)

	_, err = DecodeRequest([]byte(`not json`))
	assert.Error(t, err)
}
