// Package directory owns the account lifecycle: registration, the admin
// gate, authentication and removal. It keeps no mutable state of its own;
// uniqueness and atomicity come from the injected Store.
package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/geocoder89/accountgate/internal/domain/account"
	"github.com/geocoder89/accountgate/internal/security"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultStoreTimeout = 3 * time.Second
	dummyPassword       = "accountgate-timing-dummy"
)

// Store is the persistence contract. Create must be an atomic insert-or-reject
// that returns account.ErrDuplicateEmail when the email already exists.
type Store interface {
	Create(ctx context.Context, a account.Account) (account.Account, error)
	GetByEmail(ctx context.Context, email string) (account.Account, error)
	SetGate(ctx context.Context, email string, gate account.Gate) (account.Account, error)
	List(ctx context.Context) ([]account.Account, error)
	Delete(ctx context.Context, email string) error
}

type Hasher interface {
	Hash(plain string) (string, error)
	Verify(hash, plain string) (bool, error)
}

// Observer receives one call per finished operation.
type Observer interface {
	ObserveAccountOp(op, result string)
}

type Directory struct {
	store        Store
	hasher       Hasher
	observer     Observer
	tracer       trace.Tracer
	storeTimeout time.Duration
	dummyHash    string
}

type Option func(*Directory)

func WithObserver(o Observer) Option {
	return func(d *Directory) {
		d.observer = o
	}
}

func WithStoreTimeout(timeout time.Duration) Option {
	return func(d *Directory) {
		if timeout > 0 {
			d.storeTimeout = timeout
		}
	}
}

func New(store Store, hasher Hasher, opts ...Option) (*Directory, error) {
	if store == nil || hasher == nil {
		return nil, errors.New("directory: store and hasher are required")
	}

	d := &Directory{
		store:        store,
		hasher:       hasher,
		tracer:       otel.Tracer("accountgate/directory"),
		storeTimeout: DefaultStoreTimeout,
	}

	for _, opt := range opts {
		opt(d)
	}

	// verified against when an email is unknown so both rejections cost the same
	dummy, err := hasher.Hash(dummyPassword)

	if err != nil {
		return nil, fmt.Errorf("directory: prepare dummy hash: %w", err)
	}

	d.dummyHash = dummy

	return d, nil
}

// Register validates the credentials, hashes the password and creates a
// pending account.
func (d *Directory) Register(ctx context.Context, email, password string) (a account.Account, err error) {
	ctx, finish := d.begin(ctx, "register")
	defer func() { finish(err) }()

	email = account.NormalizeEmail(email)

	if err = account.ValidateEmail(email); err != nil {
		return account.Account{}, err
	}

	if err = account.ValidatePassword(password); err != nil {
		return account.Account{}, err
	}

	hash, err := d.hasher.Hash(password)

	if err != nil {
		if errors.Is(err, security.ErrPasswordTooLong) {
			return account.Account{}, &account.ValidationError{Field: "password", Message: "is too long"}
		}
		return account.Account{}, fmt.Errorf("hash password: %w", err)
	}

	sctx, cancel := d.storeContext(ctx)
	defer cancel()

	a, err = d.store.Create(sctx, account.New(email, hash))

	if err != nil {
		return account.Account{}, d.storeError("create account", err)
	}

	return a, nil
}

// Authenticate checks the gate before the password, so a gated account is
// reported as not enabled even with a wrong password.
func (d *Directory) Authenticate(ctx context.Context, email, password string) (a account.Account, err error) {
	ctx, finish := d.begin(ctx, "authenticate")
	defer func() { finish(err) }()

	email = account.NormalizeEmail(email)

	if email == "" || password == "" {
		return account.Account{}, &account.ValidationError{Field: "credentials", Message: "email and password are required"}
	}

	sctx, cancel := d.storeContext(ctx)
	defer cancel()

	found, err := d.store.GetByEmail(sctx, email)

	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			_, _ = d.hasher.Verify(d.dummyHash, password)
			return account.Account{}, account.ErrInvalidCredentials
		}
		return account.Account{}, d.storeError("lookup account", err)
	}

	if !found.Gate.Allows() {
		return account.Account{}, account.ErrAccountNotEnabled
	}

	ok, err := d.hasher.Verify(found.CredentialHash, password)

	if err != nil {
		return account.Account{}, fmt.Errorf("verify password: %w", err)
	}

	if !ok {
		return account.Account{}, account.ErrInvalidCredentials
	}

	return found, nil
}

func (d *Directory) SetGate(ctx context.Context, email string, gate account.Gate) (a account.Account, err error) {
	ctx, finish := d.begin(ctx, "set_gate")
	defer func() { finish(err) }()

	email = account.NormalizeEmail(email)

	if err = account.ValidateEmail(email); err != nil {
		return account.Account{}, err
	}

	if !gate.Valid() {
		_, err = account.ParseGate(string(gate))
		return account.Account{}, err
	}

	sctx, cancel := d.storeContext(ctx)
	defer cancel()

	a, err = d.store.SetGate(sctx, email, gate)

	if err != nil {
		return account.Account{}, d.storeError("set gate", err)
	}

	return a, nil
}

// List returns every account, newest first, without credential material.
func (d *Directory) List(ctx context.Context) (out []account.Summary, err error) {
	ctx, finish := d.begin(ctx, "list")
	defer func() { finish(err) }()

	sctx, cancel := d.storeContext(ctx)
	defer cancel()

	accounts, err := d.store.List(sctx)

	if err != nil {
		return nil, d.storeError("list accounts", err)
	}

	out = make([]account.Summary, 0, len(accounts))

	for _, a := range accounts {
		out = append(out, a.Summary())
	}

	return out, nil
}

func (d *Directory) Remove(ctx context.Context, email string) (err error) {
	ctx, finish := d.begin(ctx, "remove")
	defer func() { finish(err) }()

	email = account.NormalizeEmail(email)

	if err = account.ValidateEmail(email); err != nil {
		return err
	}

	sctx, cancel := d.storeContext(ctx)
	defer cancel()

	err = d.store.Delete(sctx, email)

	if err != nil {
		return d.storeError("delete account", err)
	}

	return nil
}

// helpers

func (d *Directory) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d.storeTimeout)
}

// storeError passes domain errors through untouched and folds deadline
// and cancellation failures into ErrStoreUnavailable.
func (d *Directory) storeError(op string, err error) error {
	switch {
	case errors.Is(err, account.ErrDuplicateEmail),
		errors.Is(err, account.ErrNotFound),
		errors.Is(err, account.ErrStoreUnavailable):
		return err
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return fmt.Errorf("%s: %w: %v", op, account.ErrStoreUnavailable, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func (d *Directory) begin(ctx context.Context, op string) (context.Context, func(error)) {
	ctx, span := d.tracer.Start(ctx, "directory."+op)

	return ctx, func(err error) {
		result := Result(err)

		span.SetAttributes(attribute.String("account.result", result))

		if result == "error" || result == "unavailable" {
			span.RecordError(err)
			span.SetStatus(codes.Error, result)
		}

		span.End()

		if d.observer != nil {
			d.observer.ObserveAccountOp(op, result)
		}
	}
}

// Result classifies an operation error into a low-cardinality label.
func Result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, account.ErrValidation):
		return "invalid"
	case errors.Is(err, account.ErrDuplicateEmail):
		return "duplicate"
	case errors.Is(err, account.ErrNotFound):
		return "not_found"
	case errors.Is(err, account.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, account.ErrAccountNotEnabled):
		return "not_enabled"
	case errors.Is(err, account.ErrStoreUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
