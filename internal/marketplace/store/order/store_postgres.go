package order

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

// PostgresStore persists orders in PostgreSQL. Wei amounts are stored as
// NUMERIC(78,0) and scanned through strings.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the orders table if missing. Ops environments run
// managed migrations; this keeps dev and integration tests self-sufficient.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS marketplace_orders (
			id          UUID PRIMARY KEY,
			token_id    UUID NOT NULL,
			owner       TEXT NOT NULL,
			side        TEXT NOT NULL,
			order_type  TEXT NOT NULL,
			price       NUMERIC(78,0),
			quantity    NUMERIC(78,0) NOT NULL,
			remaining   NUMERIC(78,0) NOT NULL,
			status      TEXT NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL,
			expires_at  TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_orders_token_status ON marketplace_orders (token_id, status);
		CREATE INDEX IF NOT EXISTS idx_orders_owner ON marketplace_orders (owner);
	`)
	if err != nil {
		return fmt.Errorf("ensure orders schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, o *models.Order) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO marketplace_orders
			(id, token_id, owner, side, order_type, price, quantity, remaining, status, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		o.ID, o.TokenID, o.Owner, string(o.Side), string(o.Type),
		nullNumeric(o.Price), o.Quantity.String(), o.Remaining.String(),
		string(o.Status), o.CreatedAt, nullTime(o.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, o *models.Order) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE marketplace_orders
		SET remaining = $2, status = $3
		WHERE id = $1`,
		o.ID, o.Remaining.String(), string(o.Status),
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update order rows: %w", err)
	}
	if rows == 0 {
		return dErrors.New(dErrors.CodeNotFound, "order not found")
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	row := s.db.QueryRowContext(ctx, selectOrder+` WHERE id = $1`, id)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, dErrors.New(dErrors.CodeNotFound, "order not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

func (s *PostgresStore) ListOpenByToken(ctx context.Context, tokenID uuid.UUID) ([]*models.Order, error) {
	rows, err := s.db.QueryContext(ctx, selectOrder+`
		WHERE token_id = $1 AND status IN ('OPEN', 'PARTIALLY_FILLED')
		ORDER BY created_at ASC`, tokenID)
	if err != nil {
		return nil, fmt.Errorf("list open orders: %w", err)
	}
	defer rows.Close()
	return scanOrders(rows)
}

// ListOpenTokenIDs returns the tokens that still have resting orders.
func (s *PostgresStore) ListOpenTokenIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT token_id FROM marketplace_orders
		WHERE status IN ('OPEN', 'PARTIALLY_FILLED')`)
	if err != nil {
		return nil, fmt.Errorf("list open token ids: %w", err)
	}
	defer rows.Close()
	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan token id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListByOwner(ctx context.Context, owner string, openOnly bool) ([]*models.Order, error) {
	query := selectOrder + ` WHERE owner = $1`
	if openOnly {
		query += ` AND status IN ('OPEN', 'PARTIALLY_FILLED')`
	}
	query += ` ORDER BY created_at DESC`
	rows, err := s.db.QueryContext(ctx, query, owner)
	if err != nil {
		return nil, fmt.Errorf("list orders by owner: %w", err)
	}
	defer rows.Close()
	return scanOrders(rows)
}

const selectOrder = `
	SELECT id, token_id, owner, side, order_type, price, quantity, remaining, status, created_at, expires_at
	FROM marketplace_orders`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*models.Order, error) {
	var (
		o         models.Order
		side, typ string
		status    string
		price     sql.NullString
		quantity  string
		remaining string
		expiresAt sql.NullTime
	)
	err := row.Scan(&o.ID, &o.TokenID, &o.Owner, &side, &typ, &price, &quantity, &remaining, &status, &o.CreatedAt, &expiresAt)
	if err != nil {
		return nil, err
	}
	o.Side = models.Side(side)
	o.Type = models.OrderType(typ)
	o.Status = models.OrderStatus(status)
	if price.Valid {
		o.Price = mustBig(price.String)
	}
	o.Quantity = mustBig(quantity)
	o.Remaining = mustBig(remaining)
	if expiresAt.Valid {
		t := expiresAt.Time
		o.ExpiresAt = &t
	}
	return &o, nil
}

func scanOrders(rows *sql.Rows) ([]*models.Order, error) {
	var out []*models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func mustBig(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return new(big.Int)
	}
	return v
}

func nullNumeric(v *big.Int) any {
	if v == nil {
		return nil
	}
	return v.String()
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
