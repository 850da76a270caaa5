package repository

import (
	"context"

	"github.com/nkiryanov/graphtoken/internal/models"
)

// Single record token store
// Implementations have to be safe for concurrent use
type TokenRepo interface {
	// Return the stored token
	// If there is no token must return apperrors.ErrTokenNotFound
	// Read or decode failures must wrap apperrors.ErrPersistenceFailed
	Load(ctx context.Context) (models.TokenRecord, error)

	// Replace the stored token with the record; there is no history
	// Failures must wrap apperrors.ErrPersistenceFailed and leave the previous record intact
	Save(ctx context.Context, token models.TokenRecord) error
}
