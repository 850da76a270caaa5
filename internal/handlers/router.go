package handlers

import (
	"context"
	"net/http"

	"github.com/nkiryanov/graphtoken/internal/handlers/middleware"
	"github.com/nkiryanov/graphtoken/internal/logger"
	"github.com/nkiryanov/graphtoken/internal/models"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

func NewRouter(tokenService tokenService, logger logger.Logger) http.Handler {
	tokens := NewToken(tokenService, logger)

	root := http.NewServeMux()
	root.Handle("/api/graph/", http.StripPrefix("/api/graph", tokens.Handler()))

	handler := chain(root,
		middleware.RequestIDMiddleware,
		middleware.LoggerMiddleware(logger),
	)

	return handler
}

type tokenService interface {
	// Authorization dialog url with signed state
	LoginURL() (string, error)

	// Exchange authorization code for long-lived token and store it
	// Has to return apperrors.ErrInvalidState if state is not valid
	// Has to return apperrors.ErrExchangeFailed if issuer refused
	ExchangeCodeWithState(ctx context.Context, code string, state string) (models.TokenRecord, error)

	// Stored token status, never refreshes
	GetStatus(ctx context.Context) models.TokenStatus

	// Valid access token, refreshed if needed
	// Has to return apperrors.ErrUnauthorized if there is no token
	GetValidAccessToken(ctx context.Context) (string, error)
}
