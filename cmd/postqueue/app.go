package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mpetrenko/postqueue/internal/cryptox"
	"github.com/mpetrenko/postqueue/internal/db"
	"github.com/mpetrenko/postqueue/internal/handlers"
	"github.com/mpetrenko/postqueue/internal/logger"
	"github.com/mpetrenko/postqueue/internal/publisher"
	"github.com/mpetrenko/postqueue/internal/repository/postgres"
	"github.com/mpetrenko/postqueue/internal/service/authflow"
	"github.com/mpetrenko/postqueue/internal/service/credential"
	"github.com/mpetrenko/postqueue/internal/service/dispatcher"
	"github.com/mpetrenko/postqueue/internal/service/post"
)

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler
	Dispatcher *dispatcher.Dispatcher

	logger logger.Logger
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	// Initialize logger
	logger, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}

	// Tokens are sealed before they touch the database
	box, err := cryptox.NewBox(c.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("error while initializing credential box: %w", err)
	}

	// Initialize repositories
	storage := postgres.NewStorage(pool, box)

	// Initialize platform adapters and services
	registry := publisher.NewRegistry(nil, logger)

	flowService := authflow.NewService(authflow.Config{
		PublicBaseURL: c.PublicBaseURL,
		Clients:       c.Clients,
	}, storage.Sessions(), storage.Credentials(), registry, logger)

	credentialService := credential.NewService(storage.Credentials(), storage.Sessions(), flowService, logger)
	postService := post.NewService(storage.Posts(), logger)

	postDispatcher := dispatcher.New(dispatcher.Config{
		Interval: c.DispatchInterval,
	}, storage.Posts(), credentialService, registry, logger)

	// Initialize handlers
	authHandler := handlers.NewAuth(flowService, credentialService, c.FrontendURL, logger)
	postHandler := handlers.NewPosts(postService, logger)

	mux := handlers.NewRouter(authHandler, postHandler, c.SecretKey, logger)

	return &ServerApp{
		ListenAddr: c.ListenAddr,
		Handler:    mux,
		Dispatcher: postDispatcher,
		logger:     logger,
	}, nil
}

// Run starts the http server and the post dispatcher, closing both
// gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    s.ListenAddr,
		Handler: s.Handler,
	}

	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	dispatcherStopped := s.Dispatcher.Run(srvCtx)

	idleConnsClosed := make(chan struct{})
	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); err == context.DeadlineExceeded {
			s.logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		s.logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	s.logger.Info("Starting server", "addr", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed
	<-dispatcherStopped
	s.logger.Info("Dispatcher stopped")

	return err
}
