package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"mail-market/internal/domain"
	"mail-market/internal/repository"
)

const createDepositsTable = `
CREATE TABLE IF NOT EXISTS deposits (
	id BIGSERIAL PRIMARY KEY,
	user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	username TEXT NOT NULL,
	amount NUMERIC(18,4) NOT NULL CHECK (amount > 0),
	reference TEXT NOT NULL DEFAULT '',
	method TEXT NOT NULL DEFAULT 'manual',
	status TEXT NOT NULL DEFAULT 'pending',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
ALTER TABLE deposits ADD COLUMN IF NOT EXISTS method TEXT NOT NULL DEFAULT 'manual';
ALTER TABLE deposits ADD COLUMN IF NOT EXISTS reference TEXT NOT NULL DEFAULT '';
CREATE INDEX IF NOT EXISTS idx_deposits_status ON deposits(status);
CREATE INDEX IF NOT EXISTS idx_deposits_user_id ON deposits(user_id);
`

const depositColumns = `id, user_id, username, amount::text, reference, method, status, created_at, updated_at`

type DepositRepository struct {
	db *pgxpool.Pool
}

func NewDepositRepository(db *pgxpool.Pool) repository.DepositRepository {
	return &DepositRepository{db: db}
}

func (r *DepositRepository) Init(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, createDepositsTable); err != nil {
		return fmt.Errorf("create deposits table: %w", err)
	}
	return nil
}

func (r *DepositRepository) Insert(ctx context.Context, deposit *domain.Deposit) (int64, error) {
	deposit.Status = domain.DepositStatusPending
	err := r.db.QueryRow(ctx, `
INSERT INTO deposits (user_id, username, amount, reference, method, status)
VALUES ($1, $2, $3::text::numeric, $4, $5, $6)
RETURNING id, created_at, updated_at`,
		deposit.UserID,
		deposit.Username,
		deposit.Amount.String(),
		deposit.Reference,
		deposit.Method,
		string(deposit.Status),
	).Scan(&deposit.ID, &deposit.CreatedAt, &deposit.UpdatedAt)
	if err != nil {
		return 0, fmt.Errorf("insert deposit: %w", err)
	}
	return deposit.ID, nil
}

func (r *DepositRepository) Get(ctx context.Context, id int64) (*domain.Deposit, error) {
	return scanDeposit(r.db.QueryRow(ctx, `SELECT `+depositColumns+` FROM deposits WHERE id = $1`, id))
}

func (r *DepositRepository) Transition(ctx context.Context, id int64, from, to domain.DepositStatus) (bool, error) {
	tag, err := r.db.Exec(ctx, `
UPDATE deposits
SET status = $1, updated_at = NOW()
WHERE id = $2 AND status = $3`,
		string(to),
		id,
		string(from),
	)
	if err != nil {
		return false, fmt.Errorf("transition deposit: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *DepositRepository) Cancel(ctx context.Context, id int64) (*domain.Deposit, error) {
	deposit, err := scanDeposit(r.db.QueryRow(ctx, `
UPDATE deposits
SET status = $1, updated_at = NOW()
WHERE id = $2 AND status = $3
RETURNING `+depositColumns,
		string(domain.DepositStatusCancelled),
		id,
		string(domain.DepositStatusPending),
	))
	if errors.Is(err, repository.ErrDepositNotFound) {
		if _, getErr := r.Get(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, repository.ErrDepositProcessed
	}
	if err != nil {
		return nil, fmt.Errorf("cancel deposit: %w", err)
	}
	return deposit, nil
}

func (r *DepositRepository) Approve(ctx context.Context, id int64, reference string) (*domain.Deposit, decimal.Decimal, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, decimal.Zero, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	deposit, err := scanDeposit(tx.QueryRow(ctx, `
UPDATE deposits
SET status = $1, reference = CASE WHEN $2::text <> '' THEN $2::text ELSE reference END, updated_at = NOW()
WHERE id = $3 AND status = $4
RETURNING `+depositColumns,
		string(domain.DepositStatusApproved),
		reference,
		id,
		string(domain.DepositStatusPending),
	))
	if err != nil {
		if !errors.Is(err, repository.ErrDepositNotFound) {
			return nil, decimal.Zero, err
		}
		existing, getErr := scanDeposit(tx.QueryRow(ctx, `SELECT `+depositColumns+` FROM deposits WHERE id = $1`, id))
		if getErr != nil {
			return nil, decimal.Zero, getErr
		}
		return existing, decimal.Zero, repository.ErrDepositProcessed
	}

	balance, err := adjustBalance(ctx, tx, deposit.UserID, deposit.Amount)
	if err != nil {
		return nil, decimal.Zero, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, decimal.Zero, fmt.Errorf("commit deposit approval: %w", err)
	}
	return deposit, balance, nil
}

func (r *DepositRepository) ListByStatus(ctx context.Context, status domain.DepositStatus) ([]domain.Deposit, error) {
	return r.query(ctx, `SELECT `+depositColumns+`
FROM deposits
WHERE status = $1
ORDER BY id ASC`, string(status))
}

func (r *DepositRepository) ListByUser(ctx context.Context, userID int64) ([]domain.Deposit, error) {
	return r.query(ctx, `SELECT `+depositColumns+`
FROM deposits
WHERE user_id = $1
ORDER BY id DESC`, userID)
}

func (r *DepositRepository) ListStale(ctx context.Context, method string, createdBefore time.Time) ([]domain.Deposit, error) {
	return r.query(ctx, `SELECT `+depositColumns+`
FROM deposits
WHERE status = $1 AND method = $2 AND created_at < $3
ORDER BY id ASC`, string(domain.DepositStatusPending), method, createdBefore)
}

func (r *DepositRepository) query(ctx context.Context, query string, args ...any) ([]domain.Deposit, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query deposits: %w", err)
	}
	defer rows.Close()

	deposits := []domain.Deposit{}
	for rows.Next() {
		deposit, err := scanDeposit(rows)
		if err != nil {
			return nil, err
		}
		deposits = append(deposits, *deposit)
	}
	return deposits, rows.Err()
}

func scanDeposit(row pgx.Row) (*domain.Deposit, error) {
	var (
		deposit domain.Deposit
		status  string
	)
	if err := row.Scan(
		&deposit.ID,
		&deposit.UserID,
		&deposit.Username,
		&deposit.Amount,
		&deposit.Reference,
		&deposit.Method,
		&status,
		&deposit.CreatedAt,
		&deposit.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrDepositNotFound
		}
		return nil, fmt.Errorf("scan deposit: %w", err)
	}
	deposit.Status = domain.DepositStatus(status)
	return &deposit, nil
}
