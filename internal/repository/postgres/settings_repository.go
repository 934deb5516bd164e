package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mail-market/internal/domain"
	"mail-market/internal/repository"
)

const createSettingsTable = `
CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

const paymentMethodsKey = "payment_methods"

type SettingsRepository struct {
	db *pgxpool.Pool
}

func NewSettingsRepository(db *pgxpool.Pool) repository.SettingsRepository {
	return &SettingsRepository{db: db}
}

func (r *SettingsRepository) Init(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, createSettingsTable); err != nil {
		return fmt.Errorf("create settings table: %w", err)
	}
	return nil
}

func (r *SettingsRepository) ListPaymentMethods(ctx context.Context) ([]domain.PaymentMethod, error) {
	var raw string
	err := r.db.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, paymentMethodsKey).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return []domain.PaymentMethod{}, nil
		}
		return nil, fmt.Errorf("query payment methods: %w", err)
	}

	methods := []domain.PaymentMethod{}
	if err := json.Unmarshal([]byte(raw), &methods); err != nil {
		return nil, fmt.Errorf("decode payment methods: %w", err)
	}
	return methods, nil
}

func (r *SettingsRepository) ReplacePaymentMethods(ctx context.Context, methods []domain.PaymentMethod) error {
	if methods == nil {
		methods = []domain.PaymentMethod{}
	}
	raw, err := json.Marshal(methods)
	if err != nil {
		return fmt.Errorf("encode payment methods: %w", err)
	}
	if _, err := r.db.Exec(ctx, `
INSERT INTO settings (key, value)
VALUES ($1, $2)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		paymentMethodsKey,
		string(raw),
	); err != nil {
		return fmt.Errorf("store payment methods: %w", err)
	}
	return nil
}
