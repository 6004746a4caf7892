package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/geocoder89/accountgate/internal/domain/account"
	"github.com/geocoder89/accountgate/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const accountsEmailConstraint = "accounts_email_uniq"

type AccountsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewAccountsRepo(pool *pgxpool.Pool, prom *observability.Prom) *AccountsRepo {
	return &AccountsRepo{pool: pool, prom: prom}
}

func (repo *AccountsRepo) observe(op string, fn func() error) error {
	if repo.prom != nil {
		return repo.prom.ObserveDB(op, fn)
	}
	return fn()
}

func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError

	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	return false
}

// translate maps connectivity failures onto account.ErrStoreUnavailable and
// leaves everything else wrapped with the logical op name.
func translate(op string, err error) error {
	var connectErr *pgconn.ConnectError

	if errors.As(err, &connectErr) || pgconn.Timeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %v", op, account.ErrStoreUnavailable, err)
	}

	return fmt.Errorf("%s: %w", op, err)
}

// Create relies on the unique index: ON CONFLICT DO NOTHING returns no row
// when the email is taken, so there is no separate existence check.
func (repo *AccountsRepo) Create(ctx context.Context, a account.Account) (account.Account, error) {
	op := "accounts.create"

	err := repo.observe(op, func() error {
		return repo.pool.QueryRow(ctx, `
		INSERT INTO accounts (id, email, credential_hash, gate, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (email) DO NOTHING
		RETURNING created_at
	`, a.ID, a.Email, a.CredentialHash, string(a.Gate), a.CreatedAt).Scan(&a.CreatedAt)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return account.Account{}, account.ErrDuplicateEmail
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == accountsEmailConstraint {
			return account.Account{}, account.ErrDuplicateEmail
		}

		return account.Account{}, translate(op, err)
	}

	return a, nil
}

func (repo *AccountsRepo) GetByEmail(ctx context.Context, email string) (account.Account, error) {
	op := "accounts.get_by_email"

	var a account.Account

	err := repo.observe(op, func() error {
		return scanAccount(repo.pool.QueryRow(ctx, `
		SELECT id, email, credential_hash, gate, created_at
		FROM accounts
		WHERE email = $1
	`, email), &a)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return account.Account{}, account.ErrNotFound
		}
		return account.Account{}, translate(op, err)
	}

	return a, nil
}

func (repo *AccountsRepo) SetGate(ctx context.Context, email string, gate account.Gate) (account.Account, error) {
	op := "accounts.set_gate"

	var a account.Account

	err := repo.observe(op, func() error {
		return scanAccount(repo.pool.QueryRow(ctx, `
		UPDATE accounts
		SET gate = $2
		WHERE email = $1
		RETURNING id, email, credential_hash, gate, created_at
	`, email, string(gate)), &a)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return account.Account{}, account.ErrNotFound
		}
		return account.Account{}, translate(op, err)
	}

	return a, nil
}

func (repo *AccountsRepo) List(ctx context.Context) (accounts []account.Account, err error) {
	op := "accounts.list"

	var rows pgx.Rows

	err = repo.observe(op, func() error {
		var qerr error
		rows, qerr = repo.pool.Query(ctx, `
		SELECT id, email, credential_hash, gate, created_at
		FROM accounts
		ORDER BY created_at DESC, email ASC
	`)
		return qerr
	})

	if err != nil {
		return nil, translate(op, err)
	}

	defer rows.Close()

	accounts = make([]account.Account, 0)

	for rows.Next() {
		var a account.Account

		if e := scanAccount(rows, &a); e != nil {
			return nil, translate(op, e)
		}

		accounts = append(accounts, a)
	}

	if e := rows.Err(); e != nil {
		if repo.prom != nil {
			repo.prom.DbErrorsTotal.WithLabelValues(op, "rows_err").Inc()
		}
		return nil, translate(op, e)
	}

	return accounts, nil
}

// Delete removes an account permanently.
func (repo *AccountsRepo) Delete(ctx context.Context, email string) error {
	op := "accounts.delete"

	var tag pgconn.CommandTag

	err := repo.observe(op, func() error {
		var err error
		tag, err = repo.pool.Exec(ctx, `DELETE FROM accounts WHERE email = $1`, email)
		return err
	})

	if err != nil {
		return translate(op, err)
	}

	if tag.RowsAffected() == 0 {
		return account.ErrNotFound
	}

	return nil
}

func (repo *AccountsRepo) Ping(ctx context.Context) error {
	return repo.pool.Ping(ctx)
}

func scanAccount(row pgx.Row, a *account.Account) error {
	var gate string

	if err := row.Scan(&a.ID, &a.Email, &a.CredentialHash, &gate, &a.CreatedAt); err != nil {
		return err
	}

	a.Gate = account.Gate(gate)

	return nil
}
