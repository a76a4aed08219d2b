package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"historysync/internal/application/service/syncer"

	"github.com/go-co-op/gocron"
	"github.com/sirupsen/logrus"
)

// TriggerFunc starts one synchronization run.
type TriggerFunc func(ctx context.Context, req syncer.Request) error

// Daily runs a full synchronization once a day at a fixed wall-clock time.
type Daily struct {
	cron    *gocron.Scheduler
	job     *gocron.Job
	trigger TriggerFunc
	logger  *logrus.Entry
	ctx     context.Context
}

// NewDaily schedules trigger at "HH:MM" in loc. Overlapping runs are skipped.
func NewDaily(ctx context.Context, loc *time.Location, at string, trigger TriggerFunc, logger *logrus.Logger) (*Daily, error) {
	if trigger == nil {
		return nil, errors.New("daily trigger is nil")
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	d := &Daily{
		cron:    gocron.NewScheduler(loc),
		trigger: trigger,
		logger:  logger.WithFields(logrus.Fields{"component": "daily_sync", "at": at}),
		ctx:     ctx,
	}
	d.cron.SingletonModeAll()

	job, err := d.cron.Every(1).Day().At(at).Do(d.fire)
	if err != nil {
		return nil, fmt.Errorf("schedule daily sync at %q: %w", at, err)
	}
	d.job = job
	return d, nil
}

func (d *Daily) Start() {
	d.cron.StartAsync()
	d.logger.WithField("next_run", d.NextRun()).Info("daily sync scheduled")
}

func (d *Daily) Stop() {
	d.cron.Stop()
	d.logger.Info("daily sync stopped")
}

func (d *Daily) NextRun() time.Time {
	return d.job.NextRun()
}

func (d *Daily) fire() {
	if err := d.ctx.Err(); err != nil {
		return
	}
	err := d.trigger(d.ctx, syncer.Request{})
	switch {
	case errors.Is(err, syncer.ErrRunInProgress):
		d.logger.Info("daily sync skipped, a run is in progress")
	case err != nil:
		d.logger.WithError(err).Error("daily sync failed")
	}
}
