// Package redisrepo stores accounts in Redis. Each account is a hash and a
// sorted set indexes emails by creation time. Lua scripts make create,
// update and delete atomic, so uniqueness is decided inside Redis.
package redisrepo

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/geocoder89/accountgate/internal/domain/account"
	"github.com/geocoder89/accountgate/internal/observability"
	"github.com/redis/go-redis/v9"
)

// the hash tag keeps every key in one cluster slot so scripts may touch them together
const defaultPrefix = "{accountgate}"

var createScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1], 'id', ARGV[1], 'email', ARGV[2], 'credential_hash', ARGV[3], 'gate', ARGV[4], 'created_at', ARGV[5])
redis.call('ZADD', KEYS[2], ARGV[6], ARGV[2])
return 1
`)

var setGateScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return {}
end
redis.call('HSET', KEYS[1], 'gate', ARGV[1])
return redis.call('HGETALL', KEYS[1])
`)

var deleteScript = redis.NewScript(`
if redis.call('DEL', KEYS[1]) == 0 then
	return 0
end
redis.call('ZREM', KEYS[2], ARGV[1])
return 1
`)

type AccountsRepo struct {
	rdb    *redis.Client
	prefix string
	prom   *observability.Prom
}

func NewAccountsRepo(rdb *redis.Client, prom *observability.Prom) *AccountsRepo {
	return &AccountsRepo{rdb: rdb, prefix: defaultPrefix, prom: prom}
}

func (r *AccountsRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

func (r *AccountsRepo) accountKey(email string) string {
	return r.prefix + ":account:" + email
}

func (r *AccountsRepo) indexKey() string {
	return r.prefix + ":accounts:by_created"
}

func translate(op string, err error) error {
	var netErr net.Error

	if errors.As(err, &netErr) || errors.Is(err, redis.ErrClosed) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %v", op, account.ErrStoreUnavailable, err)
	}

	return fmt.Errorf("%s: %w", op, err)
}

func (r *AccountsRepo) Create(ctx context.Context, a account.Account) (account.Account, error) {
	op := "accounts.create"

	var created int64

	err := r.observe(op, func() error {
		var err error
		created, err = createScript.Run(ctx, r.rdb,
			[]string{r.accountKey(a.Email), r.indexKey()},
			a.ID,
			a.Email,
			a.CredentialHash,
			string(a.Gate),
			strconv.FormatInt(a.CreatedAt.UTC().UnixNano(), 10),
			// scores are float64; milliseconds keep them exact
			a.CreatedAt.UTC().UnixMilli(),
		).Int64()
		return err
	})

	if err != nil {
		return account.Account{}, translate(op, err)
	}

	if created == 0 {
		return account.Account{}, account.ErrDuplicateEmail
	}

	return a, nil
}

func (r *AccountsRepo) GetByEmail(ctx context.Context, email string) (account.Account, error) {
	op := "accounts.get_by_email"

	var fields map[string]string

	err := r.observe(op, func() error {
		var err error
		fields, err = r.rdb.HGetAll(ctx, r.accountKey(email)).Result()
		return err
	})

	if err != nil {
		return account.Account{}, translate(op, err)
	}

	if len(fields) == 0 {
		return account.Account{}, account.ErrNotFound
	}

	return accountFromHash(fields)
}

func (r *AccountsRepo) SetGate(ctx context.Context, email string, gate account.Gate) (account.Account, error) {
	op := "accounts.set_gate"

	var raw []interface{}

	err := r.observe(op, func() error {
		var err error
		raw, err = setGateScript.Run(ctx, r.rdb, []string{r.accountKey(email)}, string(gate)).Slice()
		return err
	})

	if err != nil {
		return account.Account{}, translate(op, err)
	}

	if len(raw) == 0 {
		return account.Account{}, account.ErrNotFound
	}

	fields, err := pairsToMap(raw)

	if err != nil {
		return account.Account{}, fmt.Errorf("%s: %w", op, err)
	}

	return accountFromHash(fields)
}

func (r *AccountsRepo) List(ctx context.Context) ([]account.Account, error) {
	op := "accounts.list"

	var emails []string

	err := r.observe(op, func() error {
		var err error
		emails, err = r.rdb.ZRevRange(ctx, r.indexKey(), 0, -1).Result()
		return err
	})

	if err != nil {
		return nil, translate(op, err)
	}

	if len(emails) == 0 {
		return []account.Account{}, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(emails))

	err = r.observe(op+".load", func() error {
		_, err := r.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
			for i, email := range emails {
				cmds[i] = pipe.HGetAll(ctx, r.accountKey(email))
			}
			return nil
		})
		return err
	})

	if err != nil {
		return nil, translate(op, err)
	}

	out := make([]account.Account, 0, len(emails))

	for _, cmd := range cmds {
		fields := cmd.Val()

		// removed between the range and the pipeline
		if len(fields) == 0 {
			continue
		}

		a, err := accountFromHash(fields)

		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		out = append(out, a)
	}

	return out, nil
}

func (r *AccountsRepo) Delete(ctx context.Context, email string) error {
	op := "accounts.delete"

	var deleted int64

	err := r.observe(op, func() error {
		var err error
		deleted, err = deleteScript.Run(ctx, r.rdb, []string{r.accountKey(email), r.indexKey()}, email).Int64()
		return err
	})

	if err != nil {
		return translate(op, err)
	}

	if deleted == 0 {
		return account.ErrNotFound
	}

	return nil
}

func (r *AccountsRepo) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

func accountFromHash(fields map[string]string) (account.Account, error) {
	nanos, err := strconv.ParseInt(fields["created_at"], 10, 64)

	if err != nil {
		return account.Account{}, fmt.Errorf("decode created_at: %w", err)
	}

	return account.Account{
		ID:             fields["id"],
		Email:          fields["email"],
		CredentialHash: fields["credential_hash"],
		Gate:           account.Gate(fields["gate"]),
		CreatedAt:      time.Unix(0, nanos).UTC(),
	}, nil
}

func pairsToMap(raw []interface{}) (map[string]string, error) {
	if len(raw)%2 != 0 {
		return nil, errors.New("odd number of hash fields")
	}

	out := make(map[string]string, len(raw)/2)

	for i := 0; i < len(raw); i += 2 {
		k, ok1 := raw[i].(string)
		v, ok2 := raw[i+1].(string)

		if !ok1 || !ok2 {
			return nil, errors.New("non-string hash field")
		}

		out[k] = v
	}

	return out, nil
}
