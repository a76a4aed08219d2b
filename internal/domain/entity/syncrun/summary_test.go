package syncrun

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFinishDerivesStatus(t *testing.T) {
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	full := Summary{StartedAt: start, ChunksFetched: 3, RowsRejected: 2}
	full.Finish(start.Add(time.Minute))
	assert.Equal(t, StatusSynchronized, full.Status, "row rejections alone do not make a run partial")
	assert.Equal(t, time.Minute, full.Duration())

	partial := Summary{StartedAt: start, ChunksFetched: 3, ChunksTransport: 1}
	partial.Finish(start)
	assert.Equal(t, StatusPartial, partial.Status)

	failed := Summary{StartedAt: start, Status: StatusFailedToStart}
	failed.Finish(start)
	assert.Equal(t, StatusFailedToStart, failed.Status)
}
