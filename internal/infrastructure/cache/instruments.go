package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"historysync/internal/domain/entity/instruments"
	"historysync/internal/domain/interfaces"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const instrumentsKey = "historysync:instruments"

// InstrumentLister serves the instrument listing from Redis and refreshes it
// from the wrapped lister when the entry is missing or expired. Redis
// failures fall through to the wrapped lister.
type InstrumentLister struct {
	next   interfaces.InstrumentLister
	client *redis.Client
	ttl    time.Duration
	logger *logrus.Entry
}

var _ interfaces.InstrumentLister = (*InstrumentLister)(nil)

func NewInstrumentLister(next interfaces.InstrumentLister, client *redis.Client, ttl time.Duration, logger *logrus.Logger) *InstrumentLister {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &InstrumentLister{
		next:   next,
		client: client,
		ttl:    ttl,
		logger: logger.WithField("component", "instrument_cache"),
	}
}

func (l *InstrumentLister) ListInstruments(ctx context.Context) ([]instruments.Instrument, error) {
	if l.client == nil || l.ttl <= 0 {
		return l.next.ListInstruments(ctx)
	}

	cached, err := l.client.Get(ctx, instrumentsKey).Bytes()
	switch {
	case err == nil:
		var list []instruments.Instrument
		if jsonErr := json.Unmarshal(cached, &list); jsonErr == nil && len(list) > 0 {
			return list, nil
		}
	case !errors.Is(err, redis.Nil):
		l.logger.WithError(err).Warn("instrument cache read failed")
	}

	list, err := l.next.ListInstruments(ctx)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return list, nil
	}
	if body, err := json.Marshal(list); err == nil {
		if err := l.client.Set(ctx, instrumentsKey, body, l.ttl).Err(); err != nil {
			l.logger.WithError(err).Warn("instrument cache write failed")
		}
	}
	return list, nil
}

// Invalidate drops the cached listing.
func (l *InstrumentLister) Invalidate(ctx context.Context) error {
	if l.client == nil {
		return nil
	}
	return l.client.Del(ctx, instrumentsKey).Err()
}
