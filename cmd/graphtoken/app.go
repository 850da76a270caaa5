package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nkiryanov/graphtoken/internal/db"
	"github.com/nkiryanov/graphtoken/internal/handlers"
	"github.com/nkiryanov/graphtoken/internal/logger"
	"github.com/nkiryanov/graphtoken/internal/repository"
	"github.com/nkiryanov/graphtoken/internal/repository/file"
	"github.com/nkiryanov/graphtoken/internal/repository/postgres"
	"github.com/nkiryanov/graphtoken/internal/service/issuer"
	"github.com/nkiryanov/graphtoken/internal/service/refresher"
	"github.com/nkiryanov/graphtoken/internal/service/tokenmanager"
)

const shutdownTimeout = 5 * time.Second

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	// Nil if background check is disabled
	Refresher *refresher.Refresher

	logger logger.Logger
	close  func()
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	// Initialize logger
	logger, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	// Initialize token storage
	var repo repository.TokenRepo
	closeFn := func() {}
	if c.DatabaseDSN != "" {
		pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
		}
		repo = postgres.NewTokenRepo(pool)
		closeFn = pool.Close
		logger.Info("Token is stored in database")
	} else {
		repo = file.NewTokenRepo(c.TokenFile)
		logger.Info("Token is stored in file", "path", c.TokenFile)
	}

	// Initialize services
	issuerClient, err := issuer.NewClient(issuer.Config{
		BaseURL:    c.GraphURL,
		APIVersion: c.APIVersion,
		Timeout:    c.IssuerTimeout,
	}, logger)
	if err != nil {
		closeFn()
		return nil, fmt.Errorf("error while creating issuer client. Err: %w", err)
	}

	tokenManager, err := tokenmanager.New(tokenmanager.Config{
		AppID:       c.AppID,
		AppSecret:   c.AppSecret,
		RedirectURI: c.RedirectURI,
		SecretKey:   c.SecretKey,
		APIVersion:  c.APIVersion,
		Scopes:      c.ScopeList(),
	}, repo, issuerClient, logger)
	if err != nil {
		closeFn()
		return nil, fmt.Errorf("error while creating token manager. Err: %w", err)
	}

	var bg *refresher.Refresher
	if c.RefreshInterval > 0 {
		bg, err = refresher.New(c.RefreshInterval, tokenManager, logger)
		if err != nil {
			closeFn()
			return nil, fmt.Errorf("error while creating refresher. Err: %w", err)
		}
	}

	return &ServerApp{
		ListenAddr: c.ListenAddr,
		Handler:    handlers.NewRouter(tokenManager, logger),
		Refresher:  bg,
		logger:     logger,
		close:      closeFn,
	}, nil
}

// Run starts http server and background refresher and stops them gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	defer s.close()

	httpServer := &http.Server{
		Addr:    s.ListenAddr,
		Handler: s.Handler,
	}

	g, gCtx := errgroup.WithContext(ctx)

	// Listen and serve until context is cancelled
	g.Go(func() error {
		s.logger.Info("Starting server", "address", s.ListenAddr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// Close gracefully connections
	g.Go(func() error {
		<-gCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); errors.Is(err, context.DeadlineExceeded) {
			s.logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		s.logger.Info("HTTP server stopped")
		return nil
	})

	if s.Refresher != nil {
		g.Go(func() error {
			stopped, err := s.Refresher.Run(gCtx)
			if err != nil {
				return err
			}
			<-stopped
			return nil
		})
	}

	return g.Wait()
}
