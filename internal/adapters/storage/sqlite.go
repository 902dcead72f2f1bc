package storage

// sqlite.go: persistencia local del market maker.
//
//   - `risk_off`: una fila por instrumento. La escribe el proceso de riesgo
//     (o `-risk-off` en el CLI); el engine solo la lee.
//   - `trades`: journal de fills propios, deduplicado por trade_id.
//   - `merges`: journal de merges on-chain (exitosos o no).
//   - Prune automático al arrancar: journal > 90d, risk-off vencidos > 7d.
//
// Los timestamps se guardan como unix millis (INTEGER).

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/alejandrodnm/polymaker/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS risk_off (
    market_id  TEXT PRIMARY KEY,
    sleep_till INTEGER NOT NULL,
    reason     TEXT    NOT NULL DEFAULT '',
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS trades (
    trade_id    TEXT PRIMARY KEY,
    market_id   TEXT    NOT NULL,
    token       TEXT    NOT NULL,
    side        TEXT    NOT NULL,
    price       REAL    NOT NULL,
    size        REAL    NOT NULL,
    executed_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS merges (
    id            TEXT PRIMARY KEY,
    market_id     TEXT    NOT NULL,
    amount        REAL    NOT NULL,
    tx_hash       TEXT    NOT NULL DEFAULT '',
    gas_pol       REAL    NOT NULL DEFAULT 0,
    usdc_received REAL    NOT NULL DEFAULT 0,
    success       INTEGER NOT NULL DEFAULT 0,
    error         TEXT    NOT NULL DEFAULT '',
    executed_at   INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_market ON trades(market_id, executed_at);
CREATE INDEX IF NOT EXISTS idx_merges_market ON merges(market_id, executed_at);
`

const (
	retentionJournal = 90 * 24 * time.Hour
	retentionRiskOff = 7 * 24 * time.Hour
)

// SQLiteStorage implementa ports.RiskOffStore y ports.Journal usando SQLite
// (pure Go, sin CGo).
type SQLiteStorage struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada.
// Aplica el schema y limpia datos antiguos.
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

	s := &SQLiteStorage{db: db, now: time.Now}
	s.pruneOld(context.Background())
	return s, nil
}

// SetRiskOff crea o reemplaza el registro de risk-off del instrumento.
func (s *SQLiteStorage) SetRiskOff(ctx context.Context, rec domain.RiskOffRecord) error {
	if rec.MarketID == "" {
		return errors.New("storage.SetRiskOff: empty market id")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO risk_off (market_id, sleep_till, reason, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(market_id) DO UPDATE SET
			sleep_till = excluded.sleep_till,
			reason     = excluded.reason,
			updated_at = excluded.updated_at
	`, rec.MarketID, toMillis(rec.SleepTill), rec.Reason, toMillis(s.now()))
	if err != nil {
		return fmt.Errorf("storage.SetRiskOff: upsert %s: %w", rec.MarketID, err)
	}
	return nil
}

// ClearRiskOff elimina el registro del instrumento.
func (s *SQLiteStorage) ClearRiskOff(ctx context.Context, marketID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM risk_off WHERE market_id = ?`, marketID); err != nil {
		return fmt.Errorf("storage.ClearRiskOff: %w", err)
	}
	return nil
}

// RiskOff implementa ports.RiskOffStore.
func (s *SQLiteStorage) RiskOff(ctx context.Context, marketID string) (domain.RiskOffRecord, bool, error) {
	var (
		rec       = domain.RiskOffRecord{MarketID: marketID}
		sleepTill int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT sleep_till, reason FROM risk_off WHERE market_id = ?`, marketID,
	).Scan(&sleepTill, &rec.Reason)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.RiskOffRecord{}, false, nil
	}
	if err != nil {
		return domain.RiskOffRecord{}, false, fmt.Errorf("storage.RiskOff: %s: %w", marketID, err)
	}
	rec.SleepTill = fromMillis(sleepTill)
	return rec, true, nil
}

// RecordFill implementa ports.Journal. Un trade_id repetido se ignora.
func (s *SQLiteStorage) RecordFill(ctx context.Context, f domain.Fill) error {
	if f.TradeID == "" {
		f.TradeID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO trades (trade_id, market_id, token, side, price, size, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, f.TradeID, f.MarketID, f.Token, string(f.Side), f.Price, f.Size, toMillis(f.ExecutedAt))
	if err != nil {
		return fmt.Errorf("storage.RecordFill: insert %s: %w", f.TradeID, err)
	}
	return nil
}

// RecordMerge implementa ports.Journal.
func (s *SQLiteStorage) RecordMerge(ctx context.Context, r domain.MergeResult) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO merges (id, market_id, amount, tx_hash, gas_pol, usdc_received, success, error, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, uuid.NewString(), r.MarketID, r.Amount, r.TxHash, r.GasUsedPOL, r.USDCReceived,
		boolToInt(r.Success), r.Error, toMillis(r.ExecutedAt))
	if err != nil {
		return fmt.Errorf("storage.RecordMerge: insert %s: %w", r.MarketID, err)
	}
	return nil
}

// Fills devuelve los fills del rango [from, to], más antiguos primero.
func (s *SQLiteStorage) Fills(ctx context.Context, from, to time.Time) ([]domain.Fill, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT trade_id, market_id, token, side, price, size, executed_at
		FROM trades
		WHERE executed_at BETWEEN ? AND ?
		ORDER BY executed_at, trade_id
	`, toMillis(from), toMillis(to))
	if err != nil {
		return nil, fmt.Errorf("storage.Fills: query: %w", err)
	}
	defer rows.Close()

	var fills []domain.Fill
	for rows.Next() {
		var (
			f    domain.Fill
			side string
			at   int64
		)
		if err := rows.Scan(&f.TradeID, &f.MarketID, &f.Token, &side, &f.Price, &f.Size, &at); err != nil {
			return nil, fmt.Errorf("storage.Fills: scan row: %w", err)
		}
		f.Side = domain.Side(side)
		f.ExecutedAt = fromMillis(at)
		fills = append(fills, f)
	}
	return fills, rows.Err()
}

// Report agrega el journal por instrumento en el rango [from, to].
// Solo los merges exitosos suman a Merged; el gas cuenta siempre.
func (s *SQLiteStorage) Report(ctx context.Context, from, to time.Time) ([]domain.MarketReport, error) {
	byMarket := make(map[string]*domain.MarketReport)
	get := func(id string) *domain.MarketReport {
		r, ok := byMarket[id]
		if !ok {
			r = &domain.MarketReport{MarketID: id}
			byMarket[id] = r
		}
		return r
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT market_id, side, COUNT(*), SUM(size), SUM(size * price)
		FROM trades
		WHERE executed_at BETWEEN ? AND ?
		GROUP BY market_id, side
	`, toMillis(from), toMillis(to))
	if err != nil {
		return nil, fmt.Errorf("storage.Report: query trades: %w", err)
	}
	for rows.Next() {
		var (
			market, side string
			n            int
			size, value  float64
		)
		if err := rows.Scan(&market, &side, &n, &size, &value); err != nil {
			rows.Close()
			return nil, fmt.Errorf("storage.Report: scan trade row: %w", err)
		}
		r := get(market)
		r.Fills += n
		if domain.Side(side) == domain.Buy {
			r.BoughtSize, r.BoughtCost = size, value
		} else {
			r.SoldSize, r.SoldProceeds = size, value
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("storage.Report: trades: %w", err)
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx, `
		SELECT market_id,
		       SUM(success),
		       COALESCE(SUM(CASE WHEN success = 1 THEN usdc_received ELSE 0 END), 0),
		       COALESCE(SUM(gas_pol), 0)
		FROM merges
		WHERE executed_at BETWEEN ? AND ?
		GROUP BY market_id
	`, toMillis(from), toMillis(to))
	if err != nil {
		return nil, fmt.Errorf("storage.Report: query merges: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			market      string
			n           int
			merged, gas float64
		)
		if err := rows.Scan(&market, &n, &merged, &gas); err != nil {
			return nil, fmt.Errorf("storage.Report: scan merge row: %w", err)
		}
		r := get(market)
		r.Merges, r.Merged, r.GasPOL = n, merged, gas
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage.Report: merges: %w", err)
	}

	out := make([]domain.MarketReport, 0, len(byMarket))
	for _, r := range byMarket {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MarketID < out[j].MarketID })
	return out, nil
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// --- helpers internos ---

// pruneOld elimina datos antiguos para mantener la DB ligera.
func (s *SQLiteStorage) pruneOld(ctx context.Context) {
	now := s.now()
	s.db.ExecContext(ctx, `DELETE FROM trades WHERE executed_at < ?`, toMillis(now.Add(-retentionJournal)))
	s.db.ExecContext(ctx, `DELETE FROM merges WHERE executed_at < ?`, toMillis(now.Add(-retentionJournal)))
	s.db.ExecContext(ctx, `DELETE FROM risk_off WHERE sleep_till < ?`, toMillis(now.Add(-retentionRiskOff)))
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
