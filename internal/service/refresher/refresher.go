package refresher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/nkiryanov/graphtoken/internal/apperrors"
	"github.com/nkiryanov/graphtoken/internal/logger"
)

const defaultCallTimeout = 30 * time.Second

type tokenManager interface {
	GetValidAccessToken(ctx context.Context) (string, error)
}

// Refresher periodically asks token manager for a valid token
// so the token is refreshed even if nobody uses it for a while
type Refresher struct {
	interval    time.Duration
	callTimeout time.Duration

	manager tokenManager
	logger  logger.Logger
}

func New(interval time.Duration, manager tokenManager, l logger.Logger) (*Refresher, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("refresh interval must be positive, got %s", interval)
	}

	return &Refresher{
		interval:    interval,
		callTimeout: defaultCallTimeout,
		manager:     manager,
		logger:      l.With("component", "refresher"),
	}, nil
}

// Run schedules token checks until ctx is cancelled
// The first check runs immediately. Returned channel is closed when the scheduler is stopped
func (r *Refresher) Run(ctx context.Context) (<-chan struct{}, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("cannot create scheduler: %w", err)
	}

	_, err = s.NewJob(
		gocron.DurationJob(r.interval),
		gocron.NewTask(func() { r.tick(ctx) }),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, fmt.Errorf("cannot create refresh job: %w", err)
	}

	stopped := make(chan struct{})
	r.logger.Debug("Starting refresher", "interval", r.interval)
	s.Start()

	go func() {
		defer close(stopped)
		<-ctx.Done()

		if err := s.Shutdown(); err != nil {
			r.logger.Error("Refresher shutdown failed", "error", err)
		}
		r.logger.Debug("Refresher stopped by context")
	}()

	return stopped, nil
}

func (r *Refresher) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()

	_, err := r.manager.GetValidAccessToken(ctx)
	switch {
	case errors.Is(err, apperrors.ErrUnauthorized):
		r.logger.Debug("No token to refresh yet")
	case err != nil:
		r.logger.Error("Scheduled token check failed", "error", err)
	default:
		r.logger.Debug("Scheduled token check done")
	}
}
