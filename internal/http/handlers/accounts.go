package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/geocoder89/accountgate/internal/domain/account"
	"github.com/gin-gonic/gin"
)

type AccountDirectory interface {
	Register(ctx context.Context, email, password string) (account.Account, error)
	Authenticate(ctx context.Context, email, password string) (account.Account, error)
	SetGate(ctx context.Context, email string, gate account.Gate) (account.Account, error)
	List(ctx context.Context) ([]account.Summary, error)
	Remove(ctx context.Context, email string) error
}

type AccountsHandler struct {
	directory AccountDirectory
	log       *slog.Logger
}

func NewAccountsHandler(directory AccountDirectory, log *slog.Logger) *AccountsHandler {
	if log == nil {
		log = slog.Default()
	}
	return &AccountsHandler{directory: directory, log: log}
}

func (h *AccountsHandler) Register(ctx *gin.Context) {
	var req account.RegisterRequest

	if !BindJSON(ctx, &req) {
		return
	}

	a, err := h.directory.Register(ctx.Request.Context(), req.Email, req.Password)

	if err != nil {
		h.respondDirectoryError(ctx, "register", err, "Could not create account")
		return
	}

	h.log.InfoContext(ctx.Request.Context(), "account registered", "email", a.Email, "request_id", requestIDFrom(ctx))

	RespondOK(ctx, "Account created. Wait for an administrator to enable it.", gin.H{
		"account": a.Summary(),
	})
}

func (h *AccountsHandler) Login(ctx *gin.Context) {
	var req account.LoginRequest

	if !BindJSON(ctx, &req) {
		return
	}

	a, err := h.directory.Authenticate(ctx.Request.Context(), req.Email, req.Password)

	if err != nil {
		h.respondDirectoryError(ctx, "authenticate", err, "Could not authenticate")
		return
	}

	h.log.InfoContext(ctx.Request.Context(), "login succeeded", "email", a.Email, "request_id", requestIDFrom(ctx))

	RespondOK(ctx, "Login successful.", gin.H{
		"account": a.Summary(),
	})
}

func (h *AccountsHandler) List(ctx *gin.Context) {
	users, err := h.directory.List(ctx.Request.Context())

	if err != nil {
		h.respondDirectoryError(ctx, "list", err, "Could not load accounts")
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, gin.H{
		"success": true,
		"users":   users,
		"count":   len(users),
	})
}

func (h *AccountsHandler) SetGate(ctx *gin.Context) {
	email := ctx.Param("email")

	var req account.SetGateRequest

	if !BindJSON(ctx, &req) {
		return
	}

	gate, err := req.Resolve()

	if err != nil {
		h.respondDirectoryError(ctx, "set_gate", err, "Could not update account")
		return
	}

	a, err := h.directory.SetGate(ctx.Request.Context(), email, gate)

	if err != nil {
		h.respondDirectoryError(ctx, "set_gate", err, "Could not update account")
		return
	}

	h.log.InfoContext(ctx.Request.Context(), "account gate updated", "email", a.Email, "gate", a.Gate.String(), "request_id", requestIDFrom(ctx))

	RespondOK(ctx, "Account gate updated.", gin.H{
		"account": a.Summary(),
	})
}

func (h *AccountsHandler) Remove(ctx *gin.Context) {
	email := ctx.Param("email")

	err := h.directory.Remove(ctx.Request.Context(), email)

	if err != nil {
		h.respondDirectoryError(ctx, "remove", err, "Could not remove account")
		return
	}

	h.log.InfoContext(ctx.Request.Context(), "account removed", "email", account.NormalizeEmail(email), "request_id", requestIDFrom(ctx))

	RespondOK(ctx, "Account removed.", nil)
}

// respondDirectoryError maps directory errors onto statuses. Infrastructure
// failures are logged in full and answered with a generic message.
func (h *AccountsHandler) respondDirectoryError(ctx *gin.Context, op string, err error, fallback string) {
	var validationErr *account.ValidationError

	switch {
	case errors.As(err, &validationErr):
		RespondBadRequest(ctx, "Invalid request", gin.H{
			"fields": []FieldError{{Field: validationErr.Field, Rule: "invalid", Message: validationErr.Message}},
		})
	case errors.Is(err, account.ErrDuplicateEmail):
		RespondConflict(ctx, "email_taken", "Email is already registered.")
	case errors.Is(err, account.ErrNotFound):
		RespondNotFound(ctx, "Account not found.")
	case errors.Is(err, account.ErrInvalidCredentials):
		RespondUnAuthorized(ctx, "invalid_credentials", "Email or password is incorrect.")
	case errors.Is(err, account.ErrAccountNotEnabled):
		RespondForbidden(ctx, "account_not_enabled", "Account is awaiting administrator approval.")
	case errors.Is(err, account.ErrStoreUnavailable):
		h.log.ErrorContext(ctx.Request.Context(), "account store unavailable", "op", op, "err", err, "request_id", requestIDFrom(ctx))
		RespondError(ctx, http.StatusInternalServerError, "store_unavailable", fallback, nil)
	default:
		h.log.ErrorContext(ctx.Request.Context(), "account operation failed", "op", op, "err", err, "request_id", requestIDFrom(ctx))
		RespondInternal(ctx, fallback)
	}
}
