package broker

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"historysync/internal/domain/entity/calendar"
	"historysync/internal/domain/entity/syncrun"
)

const EventSyncCompleted = "sync.completed"

// RunEvent is published after every finished run.
type RunEvent struct {
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Summary    syncrun.Summary `json:"summary"`
}

// SyncRequestMessage asks the server to synchronize. Empty Codes means every
// discovered instrument; empty From/To means the configured lookback.
type SyncRequestMessage struct {
	Codes []string `json:"codes,omitempty"`
	From  string   `json:"from,omitempty"`
	To    string   `json:"to,omitempty"`
}

// Target parses From/To as ISO dates. ok is false when both are blank.
func (m SyncRequestMessage) Target() (r calendar.Range, ok bool, err error) {
	from, to := strings.TrimSpace(m.From), strings.TrimSpace(m.To)
	if from == "" && to == "" {
		return calendar.Range{}, false, nil
	}
	if from == "" || to == "" {
		return calendar.Range{}, false, errors.New("from and to must be given together")
	}
	start, err := calendar.ParseDate(calendar.ISOLayout, from)
	if err != nil {
		return calendar.Range{}, false, fmt.Errorf("parse from: %w", err)
	}
	end, err := calendar.ParseDate(calendar.ISOLayout, to)
	if err != nil {
		return calendar.Range{}, false, fmt.Errorf("parse to: %w", err)
	}
	r, err = calendar.NewRange(start, end)
	if err != nil {
		return calendar.Range{}, false, err
	}
	return r, true, nil
}
