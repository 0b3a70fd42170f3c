package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"PivotScan/internal/domain/models"
	domrepo "PivotScan/internal/domain/repository"
	pkgch "PivotScan/pkg/clickhouse"
	applogger "PivotScan/pkg/logger"
)

const ticksTable = "pivotscan.ticks"

// CHMarketStore implements TickStorage and MarketData backed by ClickHouse.
// Raw ticks are the only persisted shape; bars are aggregated at query time.
type CHMarketStore struct {
	ch *pkgch.Client
	db *sql.DB
	l  *applogger.Logger
}

func NewCHMarketStore(ch *pkgch.Client) *CHMarketStore {
	return &CHMarketStore{ch: ch, db: ch.DB()}
}

// SetLogger injects a structured logger.
func (s *CHMarketStore) SetLogger(l *applogger.Logger) { s.l = l }

func schemaStatements() []string {
	return []string{
		`CREATE DATABASE IF NOT EXISTS pivotscan`,
		`CREATE TABLE IF NOT EXISTS ` + ticksTable + ` (
            ts         DateTime64(3),
            instrument LowCardinality(String),
            price      Float64,
            volume     Float64,
            source     LowCardinality(String),
            event_id   String,
            seq        UInt64
        ) ENGINE = MergeTree
        PARTITION BY toYYYYMMDD(ts)
        ORDER BY (instrument, ts)
        TTL toDateTime(ts) + INTERVAL 7 DAY`,
	}
}

func (s *CHMarketStore) Init(ctx context.Context) error {
	return s.ch.InitSchema(ctx, schemaStatements())
}

func (s *CHMarketStore) Store(ctx context.Context, t *models.Tick) error {
	q := fmt.Sprintf("INSERT INTO %s (ts, instrument, price, volume, source, event_id, seq) VALUES (?, ?, ?, ?, ?, ?, ?)", ticksTable)
	// event_id and seq derived from instrument+timestamp for idempotent replays
	ms := t.Timestamp.UnixMilli()
	eventID := fmt.Sprintf("%s-%d", t.Instrument, ms)
	_, err := s.db.ExecContext(ctx, q,
		t.Timestamp,
		t.Instrument,
		t.Price,
		t.Volume,
		"feed",
		eventID,
		uint64(ms),
	)
	return err
}

func (s *CHMarketStore) StoreBatch(ctx context.Context, ticks []*models.Tick) error {
	if len(ticks) == 0 {
		return nil
	}
	// Batch insert using VALUES multi-row to reduce round-trips.
	const chunkSize = 2000
	for start := 0; start < len(ticks); start += chunkSize {
		end := start + chunkSize
		if end > len(ticks) {
			end = len(ticks)
		}

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*7)
		for _, t := range ticks[start:end] {
			if t == nil || t.Instrument == "" || t.Timestamp.IsZero() {
				continue
			}
			ms := t.Timestamp.UnixMilli()
			eventID := fmt.Sprintf("%s-%d", t.Instrument, ms)
			values = append(values, "(?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				t.Timestamp,
				t.Instrument,
				t.Price,
				t.Volume,
				"feed",
				eventID,
				uint64(ms),
			)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (ts, instrument, price, volume, source, event_id, seq) VALUES %s", ticksTable, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return err
		}
	}
	return nil
}

func (s *CHMarketStore) Query(ctx context.Context, instrument string, from, to time.Time, limit int) ([]*models.Tick, error) {
	q := fmt.Sprintf("SELECT instrument, ts, price, volume FROM %s WHERE instrument = ? AND ts >= ? AND ts <= ? ORDER BY ts DESC LIMIT ?", ticksTable)
	rows, err := s.db.QueryContext(ctx, q, instrument, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ticks []*models.Tick
	for rows.Next() {
		var t models.Tick
		if err := rows.Scan(&t.Instrument, &t.Timestamp, &t.Price, &t.Volume); err != nil {
			return nil, err
		}
		ticks = append(ticks, &t)
	}
	return ticks, rows.Err()
}

// FetchTicks returns ticks for the range in ascending order. Used by the
// aggregator warmup job.
func (s *CHMarketStore) FetchTicks(ctx context.Context, instrument string, start, end time.Time) ([]models.Tick, error) {
	began := time.Now()
	q := fmt.Sprintf("SELECT instrument, ts, price, volume FROM %s WHERE instrument = ? AND ts >= ? AND ts <= ? ORDER BY ts ASC", ticksTable)
	rows, err := s.db.QueryContext(ctx, q, instrument, start, end)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse fetch_ticks query error",
				applogger.String("instrument", instrument),
				applogger.Error(err),
			)
		}
		return nil, fmt.Errorf("fetch ticks: %w", err)
	}
	defer rows.Close()

	out := make([]models.Tick, 0, 1024)
	for rows.Next() {
		var t models.Tick
		if err := rows.Scan(&t.Instrument, &t.Timestamp, &t.Price, &t.Volume); err != nil {
			return nil, fmt.Errorf("scan tick: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	if s.l != nil {
		s.l.Info("clickhouse fetch_ticks ok",
			applogger.String("instrument", instrument),
			applogger.Int("rows", len(out)),
			applogger.Duration("duration_ms", time.Since(began)),
		)
	}
	return out, nil
}

// FetchBars aggregates raw ticks into the latest n bars of one field and
// returns them oldest-first.
func (s *CHMarketStore) FetchBars(ctx context.Context, instrument string, count int, tf domrepo.Timeframe, field domrepo.BarField) ([]float64, error) {
	began := time.Now()
	bucket, err := bucketExpr(tf)
	if err != nil {
		return nil, err
	}
	agg, err := fieldExpr(field)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`
        SELECT %s AS bucket, %s AS val
        FROM %s
        WHERE instrument = ?
        GROUP BY bucket
        ORDER BY bucket DESC
        LIMIT ?
    `, bucket, agg, ticksTable)
	rows, err := s.db.QueryContext(ctx, q, instrument, count)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse fetch_bars query error",
				applogger.String("instrument", instrument),
				applogger.String("tf", string(tf)),
				applogger.String("field", string(field)),
				applogger.Error(err),
			)
		}
		return nil, fmt.Errorf("fetch bars: %w", err)
	}
	defer rows.Close()

	tmp := make([]float64, 0, count)
	for rows.Next() {
		var bucketTS time.Time
		var val float64
		if err := rows.Scan(&bucketTS, &val); err != nil {
			if s.l != nil {
				s.l.Error("clickhouse fetch_bars scan error",
					applogger.String("instrument", instrument),
					applogger.String("tf", string(tf)),
					applogger.Error(err),
				)
			}
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		tmp = append(tmp, val)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	// reverse to ASC
	for i, j := 0, len(tmp)-1; i < j; i, j = i+1, j-1 {
		tmp[i], tmp[j] = tmp[j], tmp[i]
	}
	if s.l != nil {
		s.l.Info("clickhouse fetch_bars ok",
			applogger.String("instrument", instrument),
			applogger.String("tf", string(tf)),
			applogger.String("field", string(field)),
			applogger.Int("rows", len(tmp)),
			applogger.Duration("duration_ms", time.Since(began)),
		)
	}
	return tmp, nil
}

func (s *CHMarketStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *CHMarketStore) Close() error {
	return nil // Managed by pkg
}

func bucketExpr(tf domrepo.Timeframe) (string, error) {
	switch tf {
	case domrepo.TF1s:
		return "toStartOfSecond(ts)", nil
	case domrepo.TF1m:
		return "toStartOfMinute(ts)", nil
	case domrepo.TF5m:
		return "toStartOfInterval(ts, INTERVAL 5 minute)", nil
	default:
		return "", fmt.Errorf("unsupported timeframe: %s", tf)
	}
}

func fieldExpr(f domrepo.BarField) (string, error) {
	switch f {
	case domrepo.FieldOpen:
		return "argMin(price, ts)", nil
	case domrepo.FieldHigh:
		return "max(price)", nil
	case domrepo.FieldLow:
		return "min(price)", nil
	case domrepo.FieldClose:
		return "argMax(price, ts)", nil
	case domrepo.FieldVolume:
		return "sum(volume)", nil
	default:
		return "", fmt.Errorf("unsupported bar field: %s", f)
	}
}

var (
	_ domrepo.TickStorage = (*CHMarketStore)(nil)
	_ domrepo.MarketData  = (*CHMarketStore)(nil)
)
