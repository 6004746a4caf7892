package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/geocoder89/accountgate/internal/domain/account"
	"github.com/geocoder89/accountgate/internal/observability"
	sqlitedrv "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// AccountsRepo implements the account store on SQLite.
type AccountsRepo struct {
	db   *sql.DB
	prom *observability.Prom
}

func NewAccountsRepo(db *sql.DB, prom *observability.Prom) *AccountsRepo {
	return &AccountsRepo{db: db, prom: prom}
}

func (r *AccountsRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr *sqlitedrv.Error

	return errors.As(err, &sqliteErr) &&
		(sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY)
}

func isBusyError(err error) bool {
	var sqliteErr *sqlitedrv.Error

	return errors.As(err, &sqliteErr) &&
		(sqliteErr.Code()&0xff == sqlite3.SQLITE_BUSY || sqliteErr.Code()&0xff == sqlite3.SQLITE_LOCKED)
}

func translate(op string, err error) error {
	if isBusyError(err) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%s: %w: %v", op, account.ErrStoreUnavailable, err)
	}

	return fmt.Errorf("%s: %w", op, err)
}

func (r *AccountsRepo) Create(ctx context.Context, a account.Account) (account.Account, error) {
	op := "accounts.create"

	var result sql.Result

	err := r.observe(op, func() error {
		var err error
		result, err = r.db.ExecContext(ctx, `
		INSERT INTO accounts (id, email, credential_hash, gate, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (email) DO NOTHING
	`, a.ID, a.Email, a.CredentialHash, string(a.Gate), a.CreatedAt.UTC().UnixNano())
		return err
	})

	if err != nil {
		if isUniqueConstraintError(err) {
			return account.Account{}, account.ErrDuplicateEmail
		}
		return account.Account{}, translate(op, err)
	}

	n, err := result.RowsAffected()

	if err != nil {
		return account.Account{}, translate(op, err)
	}

	if n == 0 {
		return account.Account{}, account.ErrDuplicateEmail
	}

	return a, nil
}

func (r *AccountsRepo) GetByEmail(ctx context.Context, email string) (account.Account, error) {
	op := "accounts.get_by_email"

	var a account.Account

	err := r.observe(op, func() error {
		return scanAccount(r.db.QueryRowContext(ctx, `
		SELECT id, email, credential_hash, gate, created_at
		FROM accounts WHERE email = ?
	`, email), &a)
	})

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return account.Account{}, account.ErrNotFound
		}
		return account.Account{}, translate(op, err)
	}

	return a, nil
}

func (r *AccountsRepo) SetGate(ctx context.Context, email string, gate account.Gate) (account.Account, error) {
	op := "accounts.set_gate"

	var a account.Account

	err := r.observe(op, func() error {
		return scanAccount(r.db.QueryRowContext(ctx, `
		UPDATE accounts SET gate = ?
		WHERE email = ?
		RETURNING id, email, credential_hash, gate, created_at
	`, string(gate), email), &a)
	})

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return account.Account{}, account.ErrNotFound
		}
		return account.Account{}, translate(op, err)
	}

	return a, nil
}

func (r *AccountsRepo) List(ctx context.Context) ([]account.Account, error) {
	op := "accounts.list"

	var rows *sql.Rows

	err := r.observe(op, func() error {
		var err error
		rows, err = r.db.QueryContext(ctx, `
		SELECT id, email, credential_hash, gate, created_at
		FROM accounts
		ORDER BY created_at DESC, email ASC
	`)
		return err
	})

	if err != nil {
		return nil, translate(op, err)
	}

	defer rows.Close()

	out := make([]account.Account, 0)

	for rows.Next() {
		var a account.Account

		if err := scanAccount(rows, &a); err != nil {
			return nil, translate(op, err)
		}

		out = append(out, a)
	}

	if err := rows.Err(); err != nil {
		return nil, translate(op, err)
	}

	return out, nil
}

func (r *AccountsRepo) Delete(ctx context.Context, email string) error {
	op := "accounts.delete"

	var result sql.Result

	err := r.observe(op, func() error {
		var err error
		result, err = r.db.ExecContext(ctx, `DELETE FROM accounts WHERE email = ?`, email)
		return err
	})

	if err != nil {
		return translate(op, err)
	}

	n, err := result.RowsAffected()

	if err != nil {
		return translate(op, err)
	}

	if n == 0 {
		return account.ErrNotFound
	}

	return nil
}

func (r *AccountsRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner, a *account.Account) error {
	var (
		gate      string
		createdAt int64
	)

	if err := row.Scan(&a.ID, &a.Email, &a.CredentialHash, &gate, &createdAt); err != nil {
		return err
	}

	a.Gate = account.Gate(gate)
	a.CreatedAt = time.Unix(0, createdAt).UTC()

	return nil
}
