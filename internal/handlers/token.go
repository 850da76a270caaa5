package handlers

import (
	"errors"
	"net/http"

	"github.com/nkiryanov/graphtoken/internal/apperrors"
	"github.com/nkiryanov/graphtoken/internal/handlers/render"
	"github.com/nkiryanov/graphtoken/internal/handlers/reqctx"
	"github.com/nkiryanov/graphtoken/internal/logger"
)

type TokenHandler struct {
	tokenService tokenService
	logger       logger.Logger
}

func NewToken(tokenService tokenService, l logger.Logger) *TokenHandler {
	return &TokenHandler{tokenService: tokenService, logger: l.With("component", "handlers")}
}

func (h *TokenHandler) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /login-url", h.loginURL)
	mux.HandleFunc("GET /oauth/exchange", h.exchange)
	mux.HandleFunc("GET /token/status", h.status)
	mux.HandleFunc("GET /token/check", h.check)

	return mux
}

func (h *TokenHandler) loginURL(w http.ResponseWriter, r *http.Request) {
	type LoginURLResponse struct {
		LoginURL string `json:"login_url"`
	}

	loginURL, err := h.tokenService.LoginURL()
	if err != nil {
		h.logError(r, "Failed to build login url", err)
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	render.JSON(w, LoginURLResponse{LoginURL: loginURL})
}

func (h *TokenHandler) exchange(w http.ResponseWriter, r *http.Request) {
	type ExchangeQuery struct {
		Code  string `query:"code" validate:"required,max=2048,printascii_or_empty"`
		State string `query:"state" validate:"max=2048,printascii_or_empty"`
	}

	q, err := render.BindQuery[ExchangeQuery](w, r)
	if err != nil {
		return
	}

	token, err := h.tokenService.ExchangeCodeWithState(r.Context(), q.Code, q.State)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrInvalidState):
			render.ServiceError(w, "Invalid or expired state, start over from login url", http.StatusBadRequest)
		case errors.Is(err, apperrors.ErrExchangeFailed):
			h.logError(r, "Code exchange failed", err)
			render.ServiceError(w, "Issuer refused to exchange the code, start over from login url", http.StatusBadGateway)
		default:
			h.logError(r, "Code exchange failed", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	render.JSON(w, token)
}

func (h *TokenHandler) status(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, h.tokenService.GetStatus(r.Context()))
}

func (h *TokenHandler) check(w http.ResponseWriter, r *http.Request) {
	type CheckResponse struct {
		Valid       bool `json:"valid"`
		TokenLength int  `json:"token_length"`
	}

	accessToken, err := h.tokenService.GetValidAccessToken(r.Context())
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrUnauthorized):
			render.ServiceError(w, "No token stored, authorize via login url", http.StatusUnauthorized)
		default:
			h.logError(r, "Token check failed", err)
			render.ServiceError(w, "Token refresh failed", http.StatusBadGateway)
		}
		return
	}

	render.JSON(w, CheckResponse{Valid: true, TokenLength: len(accessToken)})
}

func (h *TokenHandler) logError(r *http.Request, msg string, err error) {
	requestID, _ := reqctx.RequestID(r.Context())
	h.logger.Error(msg, "error", err, "request_id", requestID)
}
