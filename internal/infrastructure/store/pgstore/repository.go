package pgstore

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"historysync/internal/domain/entity/calendar"
	domain "historysync/internal/domain/entity/instruments"
	"historysync/internal/domain/entity/timeseries"
	"historysync/internal/domain/interfaces"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const schema = `
	CREATE TABLE IF NOT EXISTS history_instruments (
		uid      uuid PRIMARY KEY,
		code     text NOT NULL UNIQUE,
		position integer NOT NULL
	);
	CREATE TABLE IF NOT EXISTS history_records (
		instrument_uid uuid NOT NULL REFERENCES history_instruments(uid) ON DELETE CASCADE,
		trade_date     date NOT NULL,
		position       integer NOT NULL,
		last_price     numeric NOT NULL,
		max_price      numeric NOT NULL,
		min_price      numeric NOT NULL,
		avg_price      numeric NOT NULL,
		percent_change numeric NOT NULL,
		volume         numeric NOT NULL,
		turnover_best  numeric NOT NULL,
		turnover_total numeric NOT NULL,
		PRIMARY KEY (instrument_uid, trade_date)
	);`

// Repository keeps the dataset in Postgres. Row order is preserved through
// explicit position columns.
type Repository struct {
	pool *pgxpool.Pool
}

var _ interfaces.StoreRepository = (*Repository)(nil)

func NewRepository(ctx context.Context, dsn string) (*Repository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pgx config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	return &Repository{pool: pool}, nil
}

func (r *Repository) Close() {
	if r == nil || r.pool == nil {
		return
	}
	r.pool.Close()
}

// Migrate creates the tables when they do not exist.
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate history schema: %w", err)
	}
	return nil
}

const loadQuery = `
	SELECT i.code, r.trade_date, r.last_price, r.max_price, r.min_price, r.avg_price,
		r.percent_change, r.volume, r.turnover_best, r.turnover_total
	FROM history_records r
	JOIN history_instruments i ON i.uid = r.instrument_uid
	ORDER BY i.position, r.position`

func (r *Repository) Load(ctx context.Context) (*timeseries.Store, error) {
	rows, err := r.pool.Query(ctx, loadQuery)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var records []timeseries.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", timeseries.ErrStoreIntegrity, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	return timeseries.NewStore(records), nil
}

func scanRecord(row pgx.Row) (timeseries.Record, error) {
	var (
		rec     timeseries.Record
		day     pgtype.Date
		numbers [8]pgtype.Numeric
	)
	if err := row.Scan(&rec.Code, &day, &numbers[0], &numbers[1], &numbers[2], &numbers[3],
		&numbers[4], &numbers[5], &numbers[6], &numbers[7]); err != nil {
		return timeseries.Record{}, err
	}
	if !day.Valid {
		return timeseries.Record{}, fmt.Errorf("%s: null trade date", rec.Code)
	}
	rec.Date = calendar.DateOf(day.Time)

	dst := []*decimal.Decimal{
		&rec.LastPrice, &rec.Max, &rec.Min, &rec.AvgPrice,
		&rec.PercentChange, &rec.Volume, &rec.TurnoverBest, &rec.TurnoverTotal,
	}
	for i, n := range numbers {
		d, err := fromNumeric(n)
		if err != nil {
			return timeseries.Record{}, fmt.Errorf("%s %s: %w", rec.Code, rec.Date, err)
		}
		*dst[i] = d
	}
	return rec, nil
}

// Save replaces the stored dataset in one transaction.
func (r *Repository) Save(ctx context.Context, store *timeseries.Store) error {
	records := store.Records()
	codes := store.Codes()

	uids := make(map[string]uuid.UUID, len(codes))
	instrumentRows := make([][]interface{}, 0, len(codes))
	for i, code := range codes {
		uid := domain.New(code, code).UID
		uids[code] = uid
		instrumentRows = append(instrumentRows, []interface{}{uid, code, int32(i)})
	}

	recordRows := make([][]interface{}, 0, len(records))
	for i, rec := range records {
		recordRows = append(recordRows, []interface{}{
			uids[rec.Code],
			pgtype.Date{Time: rec.Date.Time(), Valid: true},
			int32(i),
			toNumeric(rec.LastPrice),
			toNumeric(rec.Max),
			toNumeric(rec.Min),
			toNumeric(rec.AvgPrice),
			toNumeric(rec.PercentChange),
			toNumeric(rec.Volume),
			toNumeric(rec.TurnoverBest),
			toNumeric(rec.TurnoverTotal),
		})
	}

	return r.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM history_instruments`); err != nil {
			return fmt.Errorf("clear history: %w", err)
		}
		if _, err := tx.CopyFrom(ctx,
			pgx.Identifier{"history_instruments"},
			[]string{"uid", "code", "position"},
			pgx.CopyFromRows(instrumentRows),
		); err != nil {
			return fmt.Errorf("copy instruments: %w", err)
		}
		if _, err := tx.CopyFrom(ctx,
			pgx.Identifier{"history_records"},
			[]string{
				"instrument_uid",
				"trade_date",
				"position",
				"last_price",
				"max_price",
				"min_price",
				"avg_price",
				"percent_change",
				"volume",
				"turnover_best",
				"turnover_total",
			},
			pgx.CopyFromRows(recordRows),
		); err != nil {
			return fmt.Errorf("copy records: %w", err)
		}
		return nil
	})
}

func (r *Repository) withTx(ctx context.Context, fn func(pgx.Tx) error) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Helpers

func toNumeric(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: new(big.Int).Set(d.Coefficient()), Exp: d.Exponent(), Valid: true}
}

func fromNumeric(n pgtype.Numeric) (decimal.Decimal, error) {
	if !n.Valid {
		return decimal.Zero, nil
	}
	if n.NaN || n.InfinityModifier != pgtype.Finite {
		return decimal.Zero, errors.New("non-finite numeric")
	}
	if n.Int == nil {
		return decimal.Zero, nil
	}
	return decimal.NewFromBigInt(n.Int, n.Exp), nil
}
