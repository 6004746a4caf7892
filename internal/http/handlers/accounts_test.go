package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/geocoder89/accountgate/internal/directory"
	"github.com/geocoder89/accountgate/internal/domain/account"
	"github.com/geocoder89/accountgate/internal/http/handlers"
	"github.com/geocoder89/accountgate/internal/repo/memory"
	"github.com/geocoder89/accountgate/internal/security"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

// Make sure Gin does not spam the console during the test

func init() {
	gin.SetMode(gin.TestMode)
}

// fake directory for error-mapping tests

type fakeDirectory struct {
	registerFn func(ctx context.Context, email, password string) (account.Account, error)
	authFn     func(ctx context.Context, email, password string) (account.Account, error)
	setGateFn  func(ctx context.Context, email string, gate account.Gate) (account.Account, error)
	listFn     func(ctx context.Context) ([]account.Summary, error)
	removeFn   func(ctx context.Context, email string) error
}

func (f *fakeDirectory) Register(ctx context.Context, email, password string) (account.Account, error) {
	if f.registerFn != nil {
		return f.registerFn(ctx, email, password)
	}
	return account.New(email, "hash"), nil
}

func (f *fakeDirectory) Authenticate(ctx context.Context, email, password string) (account.Account, error) {
	if f.authFn != nil {
		return f.authFn(ctx, email, password)
	}
	return account.Account{}, nil
}

func (f *fakeDirectory) SetGate(ctx context.Context, email string, gate account.Gate) (account.Account, error) {
	if f.setGateFn != nil {
		return f.setGateFn(ctx, email, gate)
	}
	return account.Account{Email: email, Gate: gate}, nil
}

func (f *fakeDirectory) List(ctx context.Context) ([]account.Summary, error) {
	if f.listFn != nil {
		return f.listFn(ctx)
	}
	return []account.Summary{}, nil
}

func (f *fakeDirectory) Remove(ctx context.Context, email string) error {
	if f.removeFn != nil {
		return f.removeFn(ctx, email)
	}
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// small helper which mounts every account route on a fresh engine

func setupRouter(dir handlers.AccountDirectory) *gin.Engine {
	h := handlers.NewAccountsHandler(dir, discardLogger())

	r := gin.New()
	r.POST("/api/register", h.Register)
	r.POST("/api/login", h.Login)
	r.GET("/api/users", h.List)
	r.PATCH("/api/users/:email", h.SetGate)
	r.DELETE("/api/users/:email", h.Remove)

	return r
}

func do(r http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	return w
}

type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   *struct {
		Code string `json:"code"`
	} `json:"error"`
	Users []map[string]any `json:"users"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("failed to unmarshal json: %v, body=%s", err, w.Body.String())
	}

	if env.Message == "" {
		t.Fatalf("every response must carry a message, body=%s", w.Body.String())
	}

	return env
}

func TestAccountScenario(t *testing.T) {
	dir, err := directory.New(memory.NewAccountsRepo(), security.NewBcryptHasher(bcrypt.MinCost))
	if err != nil {
		t.Fatalf("directory: %v", err)
	}
	r := setupRouter(dir)

	steps := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
	}{
		{"register", http.MethodPost, "/api/register", `{"email":"a@b.com","password":"secret1"}`, http.StatusOK},
		{"register_duplicate", http.MethodPost, "/api/register", `{"email":"a@b.com","password":"other12"}`, http.StatusConflict},
		{"login_before_enable", http.MethodPost, "/api/login", `{"email":"a@b.com","password":"secret1"}`, http.StatusForbidden},
		{"enable", http.MethodPatch, "/api/users/a@b.com", `{"gate":"enabled"}`, http.StatusOK},
		{"login", http.MethodPost, "/api/login", `{"email":"a@b.com","password":"secret1"}`, http.StatusOK},
		{"login_wrong_password", http.MethodPost, "/api/login", `{"email":"a@b.com","password":"wrong"}`, http.StatusUnauthorized},
		{"disable_legacy_flag", http.MethodPatch, "/api/users/a@b.com", `{"enabled":false}`, http.StatusOK},
		{"login_disabled", http.MethodPost, "/api/login", `{"email":"a@b.com","password":"secret1"}`, http.StatusForbidden},
		{"remove", http.MethodDelete, "/api/users/a@b.com", "", http.StatusOK},
		{"login_after_remove", http.MethodPost, "/api/login", `{"email":"a@b.com","password":"secret1"}`, http.StatusUnauthorized},
		{"remove_again", http.MethodDelete, "/api/users/a@b.com", "", http.StatusNotFound},
	}

	for _, step := range steps {
		w := do(r, step.method, step.path, step.body)

		if w.Code != step.wantStatus {
			t.Fatalf("%s: got status %d, want %d, body=%s", step.name, w.Code, step.wantStatus, w.Body.String())
		}

		env := decode(t, w)
		if env.Success != (step.wantStatus == http.StatusOK) {
			t.Fatalf("%s: success flag %v does not match status %d", step.name, env.Success, w.Code)
		}
	}
}

func TestRegisterHandler(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		setUp      func(*fakeDirectory)
		wantStatus int
		wantCode   string
	}{
		{
			name:       "success",
			body:       `{"email":"a@b.com","password":"secret1"}`,
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing_password",
			body:       `{"email":"a@b.com"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_request",
		},
		{
			name: "domain_validation",
			body: `{"email":"nope","password":"secret1"}`,
			setUp: func(f *fakeDirectory) {
				f.registerFn = func(ctx context.Context, email, password string) (account.Account, error) {
					return account.Account{}, account.ValidateEmail(email)
				}
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_request",
		},
		{
			name: "duplicate",
			body: `{"email":"a@b.com","password":"secret1"}`,
			setUp: func(f *fakeDirectory) {
				f.registerFn = func(ctx context.Context, email, password string) (account.Account, error) {
					return account.Account{}, account.ErrDuplicateEmail
				}
			},
			wantStatus: http.StatusConflict,
			wantCode:   "email_taken",
		},
		{
			name: "store_unavailable",
			body: `{"email":"a@b.com","password":"secret1"}`,
			setUp: func(f *fakeDirectory) {
				f.registerFn = func(ctx context.Context, email, password string) (account.Account, error) {
					return account.Account{}, fmt.Errorf("create account: %w: dial tcp 10.0.0.5:5432: i/o timeout", account.ErrStoreUnavailable)
				}
			},
			wantStatus: http.StatusInternalServerError,
			wantCode:   "store_unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeDirectory{}
			if tt.setUp != nil {
				tt.setUp(f)
			}

			w := do(setupRouter(f), http.MethodPost, "/api/register", tt.body)

			if w.Code != tt.wantStatus {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatus, w.Body.String())
			}

			env := decode(t, w)
			if tt.wantCode != "" && (env.Error == nil || env.Error.Code != tt.wantCode) {
				t.Fatalf("want error code %q, body=%s", tt.wantCode, w.Body.String())
			}
		})
	}
}

func TestRegisterNeverLeaksHashOrDriverErrors(t *testing.T) {
	f := &fakeDirectory{
		registerFn: func(ctx context.Context, email, password string) (account.Account, error) {
			return account.New(email, "$2a$12$supersecrethash"), nil
		},
	}

	w := do(setupRouter(f), http.MethodPost, "/api/register", `{"email":"a@b.com","password":"secret1"}`)

	if strings.Contains(w.Body.String(), "supersecrethash") {
		t.Fatalf("credential hash leaked: %s", w.Body.String())
	}

	f.registerFn = func(ctx context.Context, email, password string) (account.Account, error) {
		return account.Account{}, errors.New(`ERROR: relation "accounts" does not exist (SQLSTATE 42P01)`)
	}

	w = do(setupRouter(f), http.MethodPost, "/api/register", `{"email":"a@b.com","password":"secret1"}`)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("got status %d, want 500", w.Code)
	}
	if strings.Contains(w.Body.String(), "SQLSTATE") {
		t.Fatalf("driver error leaked: %s", w.Body.String())
	}
}

func TestLoginHandler(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
	}{
		{name: "success", body: `{"email":"a@b.com","password":"secret1"}`, wantStatus: http.StatusOK},
		{name: "missing_fields", body: `{"email":"a@b.com"}`, wantStatus: http.StatusBadRequest},
		{name: "invalid_credentials", body: `{"email":"a@b.com","password":"x"}`, err: account.ErrInvalidCredentials, wantStatus: http.StatusUnauthorized},
		{name: "not_enabled", body: `{"email":"a@b.com","password":"secret1"}`, err: account.ErrAccountNotEnabled, wantStatus: http.StatusForbidden},
		{name: "other", body: `{"email":"a@b.com","password":"secret1"}`, err: errors.New("boom"), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeDirectory{
				authFn: func(ctx context.Context, email, password string) (account.Account, error) {
					if tt.err != nil {
						return account.Account{}, tt.err
					}
					return account.Account{Email: email, Gate: account.GateEnabled}, nil
				},
			}

			w := do(setupRouter(f), http.MethodPost, "/api/login", tt.body)

			if w.Code != tt.wantStatus {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}

func TestSetGateHandler(t *testing.T) {
	var gotEmail string
	var gotGate account.Gate

	f := &fakeDirectory{
		setGateFn: func(ctx context.Context, email string, gate account.Gate) (account.Account, error) {
			gotEmail, gotGate = email, gate
			if email == "missing@b.com" {
				return account.Account{}, account.ErrNotFound
			}
			return account.Account{Email: email, Gate: gate}, nil
		},
	}
	r := setupRouter(f)

	w := do(r, http.MethodPatch, "/api/users/jane%40b.com", `{"gate":"disabled"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, body=%s", w.Code, w.Body.String())
	}
	if gotEmail != "jane@b.com" || gotGate != account.GateDisabled {
		t.Fatalf("directory got %q/%q", gotEmail, gotGate)
	}

	if w := do(r, http.MethodPatch, "/api/users/missing@b.com", `{"enabled":true}`); w.Code != http.StatusNotFound {
		t.Fatalf("got status %d, want 404", w.Code)
	}

	if w := do(r, http.MethodPatch, "/api/users/a@b.com", `{"gate":"sometimes"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("unknown gate: got status %d, want 400", w.Code)
	}

	if w := do(r, http.MethodPatch, "/api/users/a@b.com", `{}`); w.Code != http.StatusBadRequest {
		t.Fatalf("empty body: got status %d, want 400", w.Code)
	}
}

func TestListHandler(t *testing.T) {
	f := &fakeDirectory{
		listFn: func(ctx context.Context) ([]account.Summary, error) {
			return []account.Summary{
				{Email: "new@b.com", Gate: account.GatePending},
				{Email: "old@b.com", Gate: account.GateEnabled, Enabled: true},
			}, nil
		},
	}
	r := setupRouter(f)

	w := do(r, http.MethodGet, "/api/users", "")
	if w.Code != http.StatusOK {
		t.Fatalf("got status %d", w.Code)
	}

	var body struct {
		Success bool             `json:"success"`
		Users   []map[string]any `json:"users"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if !body.Success || len(body.Users) != 2 || body.Users[0]["email"] != "new@b.com" {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}

	for _, u := range body.Users {
		if _, ok := u["credentialHash"]; ok {
			t.Fatalf("list leaked credential hash")
		}
	}

	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatalf("expected ETag header")
	}

	w = do(r, http.MethodGet, "/api/users", "", "If-None-Match", etag)
	if w.Code != http.StatusNotModified {
		t.Fatalf("got status %d, want 304", w.Code)
	}

	f.listFn = func(ctx context.Context) ([]account.Summary, error) {
		return nil, errors.New("boom")
	}
	if w := do(r, http.MethodGet, "/api/users", ""); w.Code != http.StatusInternalServerError {
		t.Fatalf("got status %d, want 500", w.Code)
	}
}

func TestRemoveHandler(t *testing.T) {
	f := &fakeDirectory{
		removeFn: func(ctx context.Context, email string) error {
			switch email {
			case "bad":
				return account.ValidateEmail(email)
			case "missing@b.com":
				return account.ErrNotFound
			}
			return nil
		},
	}
	r := setupRouter(f)

	if w := do(r, http.MethodDelete, "/api/users/a@b.com", ""); w.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", w.Code)
	}
	if w := do(r, http.MethodDelete, "/api/users/bad", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want 400", w.Code)
	}
	if w := do(r, http.MethodDelete, "/api/users/missing@b.com", ""); w.Code != http.StatusNotFound {
		t.Fatalf("got status %d, want 404", w.Code)
	}
}
