// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Wefix Contributors

package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/wefix/authgate/internal/account"
	"github.com/wefix/authgate/internal/auth"
	"github.com/wefix/authgate/pkg/errutil"
)

// MaxBodyBytes caps every request body.
const MaxBodyBytes = 64 << 10

// Public messages. Nothing else about a failure reaches the client.
const (
	msgBadRequest         = "Bad request"
	msgInvalidCredentials = "Invalid credentials"
	msgAuthFailed         = "Authentication failed"
	msgTooLarge           = "Request body too large"
	msgNotFound           = "Not found"
	msgUsernameTaken      = "Username already taken"
	msgInternal           = "Internal error"
)

// Authenticator runs an authentication flow over a raw signed envelope.
type Authenticator interface {
	Authenticate(ctx context.Context, flow auth.Flow, raw []byte) (*auth.Result, error)
}

// Registrar creates email accounts.
type Registrar interface {
	Register(ctx context.Context, reg auth.Registration) (*account.Account, error)
}

// TokenParser validates session tokens.
type TokenParser interface {
	Parse(value string) (*auth.TokenClaims, error)
}

type messageResponse struct {
	Message string `json:"message"`
}

type authenticateResponse struct {
	Account   account.View `json:"account"`
	AuthToken string       `json:"auth_token"`
}

type registerResponse struct {
	Data account.View `json:"data"`
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type handlers struct {
	gateway   Authenticator
	registrar Registrar
	tokens    TokenParser
	accounts  account.Repository
	logger    *slog.Logger
}

func (h *handlers) root(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, messageResponse{Message: "authgate up"})
}

// authenticate returns the handler for one flow. The request body is the
// signed envelope, passed to the gateway untouched.
func (h *handlers) authenticate(flow auth.Flow) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			h.writeBodyError(w, err)
			return
		}

		res, err := h.gateway.Authenticate(r.Context(), flow, raw)
		if err != nil {
			status, msg := authFailureResponse(auth.Classify(err))
			h.writeJSON(w, status, messageResponse{Message: msg})
			return
		}

		h.writeJSON(w, http.StatusOK, authenticateResponse{Account: res.View, AuthToken: res.Token.Value})
	}
}

func authFailureResponse(reason auth.Reason) (int, string) {
	switch reason {
	case auth.ReasonMalformedEnvelope, auth.ReasonSignatureMismatch, auth.ReasonMalformedPayload:
		return http.StatusBadRequest, msgBadRequest
	case auth.ReasonInvalidCredentials:
		return http.StatusForbidden, msgInvalidCredentials
	case auth.ReasonInvalidToken, auth.ReasonProviderUnavailable:
		return http.StatusUnauthorized, msgAuthFailed
	default:
		return http.StatusBadRequest, msgAuthFailed
	}
}

func (h *handlers) register(w http.ResponseWriter, r *http.Request) {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req registerRequest
	if err := dec.Decode(&req); err != nil {
		h.writeBodyError(w, err)
		return
	}
	if dec.More() {
		h.writeJSON(w, http.StatusBadRequest, messageResponse{Message: msgBadRequest})
		return
	}

	acct, err := h.registrar.Register(r.Context(), auth.Registration{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		h.writeRegisterError(r.Context(), w, err)
		return
	}

	view, err := acct.View()
	if err != nil {
		errutil.LogErrorContext(r.Context(), h.logger, slog.LevelError, "render registered account", err)
		h.writeJSON(w, http.StatusInternalServerError, messageResponse{Message: msgInternal})
		return
	}
	w.Header().Set("Location", "/api/v1/accounts/"+url.PathEscape(acct.Username))
	h.writeJSON(w, http.StatusCreated, registerResponse{Data: view})
}

func (h *handlers) writeRegisterError(ctx context.Context, w http.ResponseWriter, err error) {
	switch errutil.Code(err) {
	case "ACCOUNT_INVALID_USERNAME", "ACCOUNT_INVALID_EMAIL", "AUTH_EMPTY_PASSWORD":
		// Validation messages describe the caller's own input.
		h.writeJSON(w, http.StatusBadRequest, messageResponse{Message: err.Error()})
	case "ACCOUNT_USERNAME_TAKEN":
		h.writeJSON(w, http.StatusConflict, messageResponse{Message: msgUsernameTaken})
	default:
		errutil.LogErrorContext(ctx, h.logger, slog.LevelError, "registration failed", err)
		h.writeJSON(w, http.StatusInternalServerError, messageResponse{Message: msgInternal})
	}
}

func (h *handlers) getAccount(w http.ResponseWriter, r *http.Request) {
	if _, err := h.bearer(r); err != nil {
		w.Header().Set("WWW-Authenticate", `Bearer realm="authgate"`)
		h.writeJSON(w, http.StatusUnauthorized, messageResponse{Message: msgAuthFailed})
		return
	}

	acct, err := h.accounts.GetByUsername(r.Context(), r.PathValue("username"))
	if errors.Is(err, account.ErrNotFound) {
		h.writeJSON(w, http.StatusNotFound, messageResponse{Message: msgNotFound})
		return
	}
	if err != nil {
		errutil.LogErrorContext(r.Context(), h.logger, slog.LevelError, "account lookup failed", err)
		h.writeJSON(w, http.StatusInternalServerError, messageResponse{Message: msgInternal})
		return
	}

	view, err := acct.View()
	if err != nil {
		errutil.LogErrorContext(r.Context(), h.logger, slog.LevelError, "render account", err)
		h.writeJSON(w, http.StatusInternalServerError, messageResponse{Message: msgInternal})
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

// bearer validates the request's bearer token.
func (h *handlers) bearer(r *http.Request) (*auth.TokenClaims, error) {
	scheme, value, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || value == "" {
		return nil, errors.New("missing bearer token")
	}
	return h.tokens.Parse(strings.TrimSpace(value))
}

func (h *handlers) writeBodyError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		h.writeJSON(w, http.StatusRequestEntityTooLarge, messageResponse{Message: msgTooLarge})
		return
	}
	h.writeJSON(w, http.StatusBadRequest, messageResponse{Message: msgBadRequest})
}

func (h *handlers) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Warn("failed to write response", "status", status, "error", err)
	}
}
