package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"mail-market/internal/domain"
	"mail-market/internal/repository"
)

const createPurchasesTable = `
CREATE TABLE IF NOT EXISTS purchases (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL,
	item_type TEXT NOT NULL,
	quantity INTEGER NOT NULL,
	unit_price TEXT NOT NULL,
	total_cost TEXT NOT NULL,
	items TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_purchases_user_id ON purchases(user_id);
`

type PurchaseRepository struct {
	db *sql.DB
}

func NewPurchaseRepository(db *sql.DB) repository.PurchaseRepository {
	return &PurchaseRepository{db: db}
}

func (r *PurchaseRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createPurchasesTable); err != nil {
		return fmt.Errorf("create purchases table: %w", err)
	}
	return nil
}

func (r *PurchaseRepository) Commit(ctx context.Context, purchase *domain.Purchase) (decimal.Decimal, error) {
	items, err := json.Marshal(purchase.Items)
	if err != nil {
		return decimal.Zero, fmt.Errorf("encode purchase items: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() // safe no-op on commit

	balance, err := adjustBalanceTx(ctx, tx, purchase.UserID, purchase.TotalCost.Neg())
	if err != nil {
		return decimal.Zero, err
	}

	purchase.CreatedAt = time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
INSERT INTO purchases (user_id, item_type, quantity, unit_price, total_cost, items, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		purchase.UserID,
		purchase.ItemType,
		purchase.Quantity,
		purchase.UnitPrice.String(),
		purchase.TotalCost.String(),
		string(items),
		purchase.CreatedAt,
	)
	if err != nil {
		return decimal.Zero, fmt.Errorf("insert purchase: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return decimal.Zero, fmt.Errorf("purchase last insert id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return decimal.Zero, fmt.Errorf("commit purchase: %w", err)
	}
	purchase.ID = id
	return balance, nil
}

func (r *PurchaseRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]domain.Purchase, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, user_id, item_type, quantity, unit_price, total_cost, items, created_at
FROM purchases
WHERE user_id = ?
ORDER BY id DESC
LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query purchases: %w", err)
	}
	defer rows.Close()

	purchases := []domain.Purchase{}
	for rows.Next() {
		var (
			purchase domain.Purchase
			items    string
		)
		if err := rows.Scan(
			&purchase.ID,
			&purchase.UserID,
			&purchase.ItemType,
			&purchase.Quantity,
			&purchase.UnitPrice,
			&purchase.TotalCost,
			&items,
			&purchase.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan purchase: %w", err)
		}
		if err := json.Unmarshal([]byte(items), &purchase.Items); err != nil {
			return nil, fmt.Errorf("decode purchase items: %w", err)
		}
		purchases = append(purchases, purchase)
	}
	return purchases, rows.Err()
}
