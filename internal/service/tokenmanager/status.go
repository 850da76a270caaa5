package tokenmanager

import (
	"context"

	"github.com/nkiryanov/graphtoken/internal/models"
)

// GetStatus reports the stored token without refreshing it
func (m *TokenManager) GetStatus(ctx context.Context) models.TokenStatus {
	m.mu.Lock()
	token, ok := m.load(ctx)
	m.mu.Unlock()

	if !ok {
		return models.TokenStatus{
			Status:  models.StatusNoToken,
			Message: "Authorize via login url and exchange the code",
		}
	}

	remaining := int64(token.Remaining(m.now()).Seconds())
	status := models.TokenStatus{
		Status:           models.StatusOK,
		ExpiresInSeconds: &remaining,
		TokenLength:      len(token.AccessToken()),
	}
	if remaining <= 0 {
		status.Status = models.StatusExpired
	}
	if issuedAt, ok := token.IssuedAt(); ok {
		ts := issuedAt.Unix()
		status.LastRefreshed = &ts
	}

	return status
}
