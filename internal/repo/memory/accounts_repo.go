package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/geocoder89/accountgate/internal/domain/account"
)

// AccountsRepo keeps accounts in a map keyed by email. The mutex makes
// Create an atomic insert-or-reject, mirroring a unique index.
type AccountsRepo struct {
	mu    sync.RWMutex
	items map[string]account.Account
}

func NewAccountsRepo() *AccountsRepo {
	return &AccountsRepo{
		items: make(map[string]account.Account),
	}
}

func (r *AccountsRepo) Create(ctx context.Context, a account.Account) (account.Account, error) {
	if err := ctx.Err(); err != nil {
		return account.Account{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[a.Email]; exists {
		return account.Account{}, account.ErrDuplicateEmail
	}

	r.items[a.Email] = a

	return a, nil
}

func (r *AccountsRepo) GetByEmail(ctx context.Context, email string) (account.Account, error) {
	if err := ctx.Err(); err != nil {
		return account.Account{}, err
	}

	r.mu.RLock()
	a, ok := r.items[email]
	r.mu.RUnlock()

	if !ok {
		return account.Account{}, account.ErrNotFound
	}

	return a, nil
}

func (r *AccountsRepo) SetGate(ctx context.Context, email string, gate account.Gate) (account.Account, error) {
	if err := ctx.Err(); err != nil {
		return account.Account{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.items[email]

	if !ok {
		return account.Account{}, account.ErrNotFound
	}

	a.Gate = gate
	r.items[email] = a

	return a, nil
}

func (r *AccountsRepo) List(ctx context.Context) ([]account.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	out := make([]account.Account, 0, len(r.items))
	for _, a := range r.items {
		out = append(out, a)
	}
	r.mu.RUnlock()

	// newest first, email as a stable tie-breaker
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Email < out[j].Email
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	return out, nil
}

func (r *AccountsRepo) Delete(ctx context.Context, email string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[email]; !ok {
		return account.ErrNotFound
	}

	delete(r.items, email)

	return nil
}

// Ping always succeeds; it satisfies the readiness probe contract.
func (r *AccountsRepo) Ping(ctx context.Context) error {
	return ctx.Err()
}
