package broker

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"historysync/internal/application/service/syncer"
	"historysync/internal/domain/entity/calendar"

	"github.com/sirupsen/logrus"
)

// BatchConfig controls how sync requests are coalesced.
type BatchConfig struct {
	Size    int
	Timeout time.Duration
}

// retryDelay re-arms a batch that found a run in progress when no batch
// timeout is configured.
const retryDelay = 5 * time.Second

// TriggerFunc starts one synchronization run.
type TriggerFunc func(ctx context.Context, req syncer.Request) error

// Coalescer folds sync requests that arrive close together into one run.
type Coalescer struct {
	cfg     BatchConfig
	trigger TriggerFunc
	logger  *logrus.Entry

	mu      sync.Mutex
	pending []SyncRequestMessage
	timer   *time.Timer
	ctx     context.Context
}

func NewCoalescer(cfg BatchConfig, trigger TriggerFunc, logger *logrus.Logger) *Coalescer {
	return &Coalescer{
		cfg:     cfg,
		trigger: trigger,
		logger:  logger.WithField("component", "request_coalescer"),
	}
}

// Run sets the base context for flushes fired by the timer.
func (c *Coalescer) Run(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	c.mu.Lock()
	c.ctx = ctx
	c.mu.Unlock()
}

// Stop flushes whatever is pending using ctx.
func (c *Coalescer) Stop(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	c.mu.Lock()
	c.ctx = ctx
	c.mu.Unlock()
	return c.flush(ctx, c.take())
}

// Add queues msg. The batch is flushed right away once it reaches the size
// limit, otherwise when the timeout elapses. Only a malformed message or a
// stopped coalescer is reported; failed runs are logged.
func (c *Coalescer) Add(msg SyncRequestMessage) error {
	if _, _, err := msg.Target(); err != nil {
		return err
	}

	c.mu.Lock()
	ctx := c.ctx
	if ctx == nil {
		c.mu.Unlock()
		return errors.New("coalescer is not running")
	}
	if err := ctx.Err(); err != nil {
		c.mu.Unlock()
		return err
	}
	c.pending = append(c.pending, msg)
	limit := max(c.cfg.Size, 1)
	var batch []SyncRequestMessage
	if len(c.pending) >= limit {
		batch = c.takeLocked()
	} else if c.timer == nil && c.cfg.Timeout > 0 {
		c.timer = time.AfterFunc(c.cfg.Timeout, c.onTimer)
	}
	c.mu.Unlock()

	c.dispatch(ctx, batch)
	return nil
}

func (c *Coalescer) onTimer() {
	batch := c.take()
	c.mu.Lock()
	ctx := c.ctx
	c.mu.Unlock()
	c.dispatch(ctx, batch)
}

// dispatch flushes batch. A batch that finds a run in progress goes back to
// the head of the queue and is retried once the timer fires again.
func (c *Coalescer) dispatch(ctx context.Context, batch []SyncRequestMessage) {
	err := c.flush(ctx, batch)
	switch {
	case err == nil:
	case errors.Is(err, syncer.ErrRunInProgress) && ctx != nil && ctx.Err() == nil:
		c.requeue(batch)
		c.logger.WithField("messages", len(batch)).Info("sync already running, batch requeued")
	default:
		c.logger.WithError(err).WithField("messages", len(batch)).Warn("coalesced sync request failed")
	}
}

func (c *Coalescer) requeue(batch []SyncRequestMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = append(slices.Clone(batch), c.pending...)
	if c.timer != nil {
		c.timer.Stop()
	}
	delay := c.cfg.Timeout
	if delay <= 0 {
		delay = retryDelay
	}
	c.timer = time.AfterFunc(delay, c.onTimer)
}

func (c *Coalescer) take() []SyncRequestMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.takeLocked()
}

func (c *Coalescer) takeLocked() []SyncRequestMessage {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if len(c.pending) == 0 {
		return nil
	}
	batch := c.pending
	c.pending = nil
	return batch
}

func (c *Coalescer) flush(ctx context.Context, batch []SyncRequestMessage) error {
	if len(batch) == 0 {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	req := Coalesce(batch)
	c.logger.WithFields(logrus.Fields{
		"messages": len(batch),
		"codes":    len(req.Codes),
	}).Info("triggering sync")
	return c.trigger(ctx, req)
}

// Coalesce merges requests into one. Any request without codes widens the
// result to every instrument, and any request without a range widens it to the
// default lookback; otherwise codes are united and ranges spanned.
func Coalesce(batch []SyncRequestMessage) syncer.Request {
	var (
		req      syncer.Request
		allCodes bool
		fullSpan bool
		seen     = make(map[string]struct{})
	)
	for _, msg := range batch {
		if len(msg.Codes) == 0 {
			allCodes = true
		}
		for _, code := range msg.Codes {
			code = strings.ToUpper(strings.TrimSpace(code))
			if _, ok := seen[code]; ok || code == "" {
				continue
			}
			seen[code] = struct{}{}
			req.Codes = append(req.Codes, code)
		}

		target, ok, err := msg.Target()
		if err != nil || !ok {
			fullSpan = true
			continue
		}
		if req.Target == (calendar.Range{}) {
			req.Target = target
			continue
		}
		if target.Start.Before(req.Target.Start) {
			req.Target.Start = target.Start
		}
		if target.End.After(req.Target.End) {
			req.Target.End = target.End
		}
	}
	if allCodes {
		req.Codes = nil
	}
	if fullSpan {
		req.Target = calendar.Range{}
	}
	slices.Sort(req.Codes)
	return req
}
