package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/avolkov/clubdesk/services/club-service/internal/model"
)

// AdminAccount is a customer row with administrator credentials attached.
type AdminAccount struct {
	model.Customer
	PasswordHash string
}

func (l *Ledger) GetAdminByName(ctx context.Context, name string) (AdminAccount, error) {
	var a AdminAccount
	var phone, telegramID *string
	err := l.pool.QueryRow(ctx, `
		SELECT id::text, name, phone, telegram_id, is_admin, COALESCE(password_hash, ''), created_at
		FROM customers
		WHERE name = $1 AND is_admin
	`, name).Scan(&a.ID, &a.Name, &phone, &telegramID, &a.Admin, &a.PasswordHash, &a.CreatedAt)
	if err != nil {
		return AdminAccount{}, err
	}
	if phone != nil {
		a.Phone = *phone
	}
	if telegramID != nil {
		a.TelegramID = *telegramID
	}
	return a, nil
}

func (l *Ledger) GetCustomer(ctx context.Context, id string) (model.Customer, error) {
	var c model.Customer
	var phone, telegramID *string
	err := l.pool.QueryRow(ctx, `
		SELECT id::text, name, phone, telegram_id, is_admin, created_at
		FROM customers
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &phone, &telegramID, &c.Admin, &c.CreatedAt)
	if err != nil {
		return model.Customer{}, err
	}
	if phone != nil {
		c.Phone = *phone
	}
	if telegramID != nil {
		c.TelegramID = *telegramID
	}
	return c, nil
}

// EnsureAdmin seeds the bootstrap administrator account on startup. Safe to
// call on every boot.
func (l *Ledger) EnsureAdmin(ctx context.Context, name, phone, passwordHash string) error {
	_, err := l.pool.Exec(ctx, `
		INSERT INTO customers (id, name, phone, is_admin, password_hash)
		VALUES (gen_random_uuid(), $1, $2, true, $3)
		ON CONFLICT (phone) DO UPDATE
		SET is_admin = true,
			password_hash = EXCLUDED.password_hash
	`, name, phone, passwordHash)
	return err
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
