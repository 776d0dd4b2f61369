package trade

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/knowton/marketplace/internal/marketplace/models"
	dErrors "github.com/knowton/marketplace/pkg/domain-errors"
)

// PostgresStore persists trades in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the trades table if missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS marketplace_trades (
			id            UUID PRIMARY KEY,
			token_id      UUID NOT NULL,
			buy_order_id  UUID NOT NULL,
			sell_order_id UUID NOT NULL,
			buyer         TEXT NOT NULL,
			seller        TEXT NOT NULL,
			price         NUMERIC(78,0) NOT NULL,
			quantity      NUMERIC(78,0) NOT NULL,
			taker_side    TEXT NOT NULL,
			status        TEXT NOT NULL,
			tx_hash       TEXT NOT NULL DEFAULT '',
			executed_at   TIMESTAMPTZ NOT NULL,
			settled_at    TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_trades_token_executed ON marketplace_trades (token_id, executed_at DESC);
	`)
	if err != nil {
		return fmt.Errorf("ensure trades schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, t *models.Trade) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO marketplace_trades
			(id, token_id, buy_order_id, sell_order_id, buyer, seller, price, quantity, taker_side, status, tx_hash, executed_at, settled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		t.ID, t.TokenID, t.BuyOrderID, t.SellOrderID, t.Buyer, t.Seller,
		t.Price.String(), t.Quantity.String(), string(t.TakerSide), string(t.Status),
		t.TxHash, t.ExecutedAt, nullTime(t.SettledAt),
	)
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, t *models.Trade) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE marketplace_trades
		SET status = $2, tx_hash = $3, settled_at = $4
		WHERE id = $1`,
		t.ID, string(t.Status), t.TxHash, nullTime(t.SettledAt),
	)
	if err != nil {
		return fmt.Errorf("update trade: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update trade rows: %w", err)
	}
	if rows == 0 {
		return dErrors.New(dErrors.CodeNotFound, "trade not found")
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*models.Trade, error) {
	row := s.db.QueryRowContext(ctx, selectTrade+` WHERE id = $1`, id)
	t, err := scanTrade(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, dErrors.New(dErrors.CodeNotFound, "trade not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get trade: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) ListByToken(ctx context.Context, tokenID uuid.UUID, limit, offset int) ([]*models.Trade, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, selectTrade+`
		WHERE token_id = $1
		ORDER BY executed_at DESC
		LIMIT $2 OFFSET $3`, tokenID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	defer rows.Close()

	var out []*models.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

const selectTrade = `
	SELECT id, token_id, buy_order_id, sell_order_id, buyer, seller, price, quantity, taker_side, status, tx_hash, executed_at, settled_at
	FROM marketplace_trades`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrade(row rowScanner) (*models.Trade, error) {
	var (
		t               models.Trade
		price, quantity string
		takerSide       string
		status          string
		settledAt       sql.NullTime
	)
	err := row.Scan(&t.ID, &t.TokenID, &t.BuyOrderID, &t.SellOrderID, &t.Buyer, &t.Seller,
		&price, &quantity, &takerSide, &status, &t.TxHash, &t.ExecutedAt, &settledAt)
	if err != nil {
		return nil, err
	}
	t.Price = mustBig(price)
	t.Quantity = mustBig(quantity)
	t.TakerSide = models.Side(takerSide)
	t.Status = models.TradeStatus(status)
	if settledAt.Valid {
		ts := settledAt.Time
		t.SettledAt = &ts
	}
	return &t, nil
}

func mustBig(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return new(big.Int)
	}
	return v
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
