// Package storage implementa la persistencia en SQLite (pure Go, sin CGo).
package storage

// Estrategia:
//   - `dislocation_signals`: una fila por señal, PK (run_id, asset_id,
//     exchange_ts). INSERT OR IGNORE → reintentos de flush idempotentes.
//   - `simulated_trades`: fills del backtest, PK (run_id, intent_id, timestamp).
//   - `events`: eventos normalizados crudos del modo collect, con el ordinal
//     de llegada que el replay necesita para desempatar.
// Todos los writes van en lotes dentro de una transacción y fuera del hot path.

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/alejandrodnm/polyflow/internal/domain"
	"github.com/alejandrodnm/polyflow/internal/ports"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS dislocation_signals (
    run_id        TEXT    NOT NULL,
    condition_id  TEXT    NOT NULL,
    asset_id      TEXT    NOT NULL,
    exchange_ts   INTEGER NOT NULL,
    ingest_ts     INTEGER NOT NULL,
    dt_ms         INTEGER,
    pm_mid        REAL    NOT NULL,
    expected_prob REAL    NOT NULL,
    delta_spd     REAL    NOT NULL,
    state         TEXT    NOT NULL,
    collision     INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (run_id, asset_id, exchange_ts)
);

CREATE TABLE IF NOT EXISTS simulated_trades (
    run_id       TEXT    NOT NULL,
    intent_id    TEXT    NOT NULL,
    condition_id TEXT    NOT NULL,
    asset_id     TEXT    NOT NULL,
    side         TEXT    NOT NULL,
    price        REAL    NOT NULL,
    size         REAL    NOT NULL,
    timestamp    INTEGER NOT NULL,
    latency_ms   INTEGER NOT NULL,
    failed       INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (run_id, intent_id, timestamp)
);

CREATE TABLE IF NOT EXISTS events (
    kind            TEXT    NOT NULL,
    product_id      TEXT    NOT NULL DEFAULT '',
    base_asset      TEXT    NOT NULL DEFAULT '',
    quote_asset     TEXT    NOT NULL DEFAULT '',
    asset_id        TEXT    NOT NULL DEFAULT '',
    condition_id    TEXT    NOT NULL DEFAULT '',
    best_bid        REAL,
    best_ask        REAL,
    mid             REAL,
    exchange_ts     INTEGER NOT NULL,
    ingest_ts       INTEGER NOT NULL,
    arrival_ordinal INTEGER NOT NULL,
    PRIMARY KEY (kind, product_id, asset_id, exchange_ts, arrival_ordinal)
);

CREATE INDEX IF NOT EXISTS idx_signals_run ON dislocation_signals(run_id, exchange_ts);
CREATE INDEX IF NOT EXISTS idx_trades_run  ON simulated_trades(run_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_events_ts   ON events(exchange_ts);
`

// SQLiteStorage implementa ports.SignalStorage usando SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada y aplica
// el schema.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}
	return &SQLiteStorage{db: db}, nil
}

// SaveSignals persiste un lote de señales. La PK absorbe duplicados de
// reintentos de flush.
func (s *SQLiteStorage) SaveSignals(ctx context.Context, runID string, rows []domain.SignalRecord) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SaveSignals: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO dislocation_signals
			(run_id, condition_id, asset_id, exchange_ts, ingest_ts, dt_ms,
			 pm_mid, expected_prob, delta_spd, state, collision)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("storage.SaveSignals: prepare: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		var dt sql.NullInt64
		if r.DtMs != nil {
			dt = sql.NullInt64{Int64: *r.DtMs, Valid: true}
		}
		collision := 0
		if r.OrderingCollision {
			collision = 1
		}
		if _, err := stmt.ExecContext(ctx,
			runID, r.ConditionID, r.AssetID, r.ExchangeTs, r.IngestTs, dt,
			r.PmMid, r.ExpectedProb, r.DeltaSPD, r.State, collision,
		); err != nil {
			return fmt.Errorf("storage.SaveSignals: insert %s@%d: %w", r.AssetID, r.ExchangeTs, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SaveSignals: commit: %w", err)
	}
	return nil
}

// SaveTrades persiste los fills simulados de un run.
func (s *SQLiteStorage) SaveTrades(ctx context.Context, runID string, trades []domain.SimulatedTrade) error {
	if len(trades) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SaveTrades: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO simulated_trades
			(run_id, intent_id, condition_id, asset_id, side, price, size,
			 timestamp, latency_ms, failed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("storage.SaveTrades: prepare: %w", err)
	}
	defer stmt.Close()

	for _, t := range trades {
		failed := 0
		if t.Failed {
			failed = 1
		}
		if _, err := stmt.ExecContext(ctx,
			runID, t.IntentID, t.ConditionID, t.AssetID, string(t.Side),
			t.Price, t.Size, t.Timestamp, t.LatencyMs, failed,
		); err != nil {
			return fmt.Errorf("storage.SaveTrades: insert %s: %w", t.IntentID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SaveTrades: commit: %w", err)
	}
	return nil
}

// SaveEvents persiste eventos normalizados crudos preservando el ordinal de
// llegada.
func (s *SQLiteStorage) SaveEvents(ctx context.Context, events []domain.ReplayEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SaveEvents: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO events
			(kind, product_id, base_asset, quote_asset, asset_id, condition_id,
			 best_bid, best_ask, mid, exchange_ts, ingest_ts, arrival_ordinal)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("storage.SaveEvents: prepare: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		if _, err := stmt.ExecContext(ctx,
			string(ev.Kind), ev.ProductID, ev.BaseAsset, ev.QuoteAsset,
			ev.AssetID, ev.ConditionID,
			nullFloat(ev.BestBid), nullFloat(ev.BestAsk), nullFloat(ev.Mid),
			ev.ExchangeTs, ev.IngestTs, ev.ArrivalOrdinal,
		); err != nil {
			return fmt.Errorf("storage.SaveEvents: insert %s@%d: %w", ev.Kind, ev.ExchangeTs, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SaveEvents: commit: %w", err)
	}
	return nil
}

// LoadEvents carga el histórico de eventos para un replay, en orden de
// llegada. El orden canónico lo impone el sorter del replay, no la query.
func (s *SQLiteStorage) LoadEvents(ctx context.Context, filter ports.EventFilter) ([]domain.ReplayEvent, error) {
	query := `
		SELECT kind, product_id, base_asset, quote_asset, asset_id, condition_id,
		       best_bid, best_ask, mid, exchange_ts, ingest_ts, arrival_ordinal
		FROM events
	`
	where, args := buildFilter(filter)
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY arrival_ordinal ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage.LoadEvents: query: %w", err)
	}
	defer rows.Close()

	var events []domain.ReplayEvent
	for rows.Next() {
		var ev domain.ReplayEvent
		var kind string
		var bid, ask, mid sql.NullFloat64

		if err := rows.Scan(
			&kind, &ev.ProductID, &ev.BaseAsset, &ev.QuoteAsset,
			&ev.AssetID, &ev.ConditionID,
			&bid, &ask, &mid,
			&ev.ExchangeTs, &ev.IngestTs, &ev.ArrivalOrdinal,
		); err != nil {
			return nil, fmt.Errorf("storage.LoadEvents: scan row: %w", err)
		}

		ev.Kind = domain.EventKind(kind)
		ev.BestBid = floatPtr(bid)
		ev.BestAsk = floatPtr(ask)
		ev.Mid = floatPtr(mid)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// --- helpers internos ---

func buildFilter(filter ports.EventFilter) (string, []any) {
	var clauses []string
	var args []any

	if filter.StartMs > 0 {
		clauses = append(clauses, "exchange_ts >= ?")
		args = append(args, filter.StartMs)
	}
	if filter.EndMs > 0 {
		clauses = append(clauses, "exchange_ts <= ?")
		args = append(args, filter.EndMs)
	}
	if len(filter.AssetIDs) > 0 || len(filter.ProductIDs) > 0 {
		// Un filtro por instrumento no debe descartar el otro feed: los spot
		// no llevan asset_id ni los pmBook product_id.
		var sub []string
		if len(filter.AssetIDs) > 0 {
			sub = append(sub, "asset_id IN ("+placeholders(len(filter.AssetIDs))+")")
			for _, id := range filter.AssetIDs {
				args = append(args, id)
			}
		}
		if len(filter.ProductIDs) > 0 {
			sub = append(sub, "product_id IN ("+placeholders(len(filter.ProductIDs))+")")
			for _, id := range filter.ProductIDs {
				args = append(args, id)
			}
		}
		clauses = append(clauses, "("+strings.Join(sub, " OR ")+")")
	}
	return strings.Join(clauses, " AND "), args
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
