package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"mail-market/internal/domain"
	"mail-market/internal/repository"
)

const createPurchasesTable = `
CREATE TABLE IF NOT EXISTS purchases (
	id BIGSERIAL PRIMARY KEY,
	user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	item_type TEXT NOT NULL,
	quantity INTEGER NOT NULL CHECK (quantity > 0),
	unit_price NUMERIC(18,4) NOT NULL,
	total_cost NUMERIC(18,4) NOT NULL,
	items TEXT[] NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_purchases_user_id ON purchases(user_id);
`

type PurchaseRepository struct {
	db *pgxpool.Pool
}

func NewPurchaseRepository(db *pgxpool.Pool) repository.PurchaseRepository {
	return &PurchaseRepository{db: db}
}

func (r *PurchaseRepository) Init(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, createPurchasesTable); err != nil {
		return fmt.Errorf("create purchases table: %w", err)
	}
	return nil
}

func (r *PurchaseRepository) Commit(ctx context.Context, purchase *domain.Purchase) (decimal.Decimal, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	balance, err := adjustBalance(ctx, tx, purchase.UserID, purchase.TotalCost.Neg())
	if err != nil {
		return decimal.Zero, err
	}

	if err := tx.QueryRow(ctx, `
INSERT INTO purchases (user_id, item_type, quantity, unit_price, total_cost, items)
VALUES ($1, $2, $3, $4::text::numeric, $5::text::numeric, $6)
RETURNING id, created_at`,
		purchase.UserID,
		purchase.ItemType,
		purchase.Quantity,
		purchase.UnitPrice.String(),
		purchase.TotalCost.String(),
		purchase.Items,
	).Scan(&purchase.ID, &purchase.CreatedAt); err != nil {
		return decimal.Zero, fmt.Errorf("insert purchase: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return decimal.Zero, fmt.Errorf("commit purchase: %w", err)
	}
	return balance, nil
}

func (r *PurchaseRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]domain.Purchase, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(ctx, `
SELECT id, user_id, item_type, quantity, unit_price::text, total_cost::text, items, created_at
FROM purchases
WHERE user_id = $1
ORDER BY id DESC
LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query purchases: %w", err)
	}
	defer rows.Close()

	purchases := []domain.Purchase{}
	for rows.Next() {
		var purchase domain.Purchase
		if err := rows.Scan(
			&purchase.ID,
			&purchase.UserID,
			&purchase.ItemType,
			&purchase.Quantity,
			&purchase.UnitPrice,
			&purchase.TotalCost,
			&purchase.Items,
			&purchase.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan purchase: %w", err)
		}
		purchases = append(purchases, purchase)
	}
	return purchases, rows.Err()
}
