package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"mail-market/internal/domain"
	"mail-market/internal/repository"
)

const createDepositsTable = `
CREATE TABLE IF NOT EXISTS deposits (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL,
	username TEXT NOT NULL,
	amount TEXT NOT NULL,
	reference TEXT NOT NULL DEFAULT '',
	method TEXT NOT NULL DEFAULT 'manual',
	status TEXT NOT NULL DEFAULT 'pending',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_deposits_status ON deposits(status);
CREATE INDEX IF NOT EXISTS idx_deposits_user_id ON deposits(user_id);
`

const depositColumns = `id, user_id, username, amount, reference, method, status, created_at, updated_at`

type DepositRepository struct {
	db *sql.DB
}

func NewDepositRepository(db *sql.DB) repository.DepositRepository {
	return &DepositRepository{db: db}
}

func (r *DepositRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createDepositsTable); err != nil {
		return fmt.Errorf("create deposits table: %w", err)
	}
	return ensureColumns(ctx, r.db, "deposits", []columnDef{
		{name: "method", ddl: `TEXT NOT NULL DEFAULT 'manual'`},
		{name: "reference", ddl: `TEXT NOT NULL DEFAULT ''`},
	})
}

func (r *DepositRepository) Insert(ctx context.Context, deposit *domain.Deposit) (int64, error) {
	now := time.Now().UTC()
	deposit.Status = domain.DepositStatusPending
	deposit.CreatedAt = now
	deposit.UpdatedAt = now

	res, err := r.db.ExecContext(ctx, `
INSERT INTO deposits (user_id, username, amount, reference, method, status, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		deposit.UserID,
		deposit.Username,
		deposit.Amount.String(),
		deposit.Reference,
		deposit.Method,
		string(deposit.Status),
		deposit.CreatedAt,
		deposit.UpdatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert deposit: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("deposit last insert id: %w", err)
	}
	deposit.ID = id
	return id, nil
}

func (r *DepositRepository) Get(ctx context.Context, id int64) (*domain.Deposit, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+depositColumns+` FROM deposits WHERE id = ?`, id)
	return scanDeposit(row)
}

func (r *DepositRepository) Transition(ctx context.Context, id int64, from, to domain.DepositStatus) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
UPDATE deposits
SET status = ?, updated_at = ?
WHERE id = ? AND status = ?`,
		string(to),
		time.Now().UTC(),
		id,
		string(from),
	)
	if err != nil {
		return false, fmt.Errorf("transition deposit: %w", err)
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("deposit transition rows affected: %w", err)
	}
	return aff == 1, nil
}

func (r *DepositRepository) Cancel(ctx context.Context, id int64) (*domain.Deposit, error) {
	deposit, err := scanDeposit(r.db.QueryRowContext(ctx, `
UPDATE deposits
SET status = ?, updated_at = ?
WHERE id = ? AND status = ?
RETURNING `+depositColumns,
		string(domain.DepositStatusCancelled),
		time.Now().UTC(),
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
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, decimal.Zero, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
UPDATE deposits
SET status = ?, reference = CASE WHEN ? <> '' THEN ? ELSE reference END, updated_at = ?
WHERE id = ? AND status = ?`,
		string(domain.DepositStatusApproved),
		reference,
		reference,
		time.Now().UTC(),
		id,
		string(domain.DepositStatusPending),
	)
	if err != nil {
		return nil, decimal.Zero, fmt.Errorf("approve deposit: %w", err)
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return nil, decimal.Zero, fmt.Errorf("deposit approve rows affected: %w", err)
	}

	deposit, err := scanDeposit(tx.QueryRowContext(ctx, `SELECT `+depositColumns+` FROM deposits WHERE id = ?`, id))
	if err != nil {
		return nil, decimal.Zero, err
	}
	if aff == 0 {
		return deposit, decimal.Zero, repository.ErrDepositProcessed
	}

	balance, err := adjustBalanceTx(ctx, tx, deposit.UserID, deposit.Amount)
	if err != nil {
		return nil, decimal.Zero, err
	}

	if err := tx.Commit(); err != nil {
		return nil, decimal.Zero, fmt.Errorf("commit deposit approval: %w", err)
	}
	return deposit, balance, nil
}

func (r *DepositRepository) ListByStatus(ctx context.Context, status domain.DepositStatus) ([]domain.Deposit, error) {
	return r.query(ctx, `SELECT `+depositColumns+`
FROM deposits
WHERE status = ?
ORDER BY id ASC`, string(status))
}

func (r *DepositRepository) ListByUser(ctx context.Context, userID int64) ([]domain.Deposit, error) {
	return r.query(ctx, `SELECT `+depositColumns+`
FROM deposits
WHERE user_id = ?
ORDER BY id DESC`, userID)
}

func (r *DepositRepository) ListStale(ctx context.Context, method string, createdBefore time.Time) ([]domain.Deposit, error) {
	return r.query(ctx, `SELECT `+depositColumns+`
FROM deposits
WHERE status = ? AND method = ? AND created_at < ?
ORDER BY id ASC`, string(domain.DepositStatusPending), method, createdBefore.UTC())
}

func (r *DepositRepository) query(ctx context.Context, query string, args ...any) ([]domain.Deposit, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
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

func scanDeposit(row rowScanner) (*domain.Deposit, error) {
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
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrDepositNotFound
		}
		return nil, fmt.Errorf("scan deposit: %w", err)
	}
	deposit.Status = domain.DepositStatus(status)
	return &deposit, nil
}
