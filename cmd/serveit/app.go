package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jac4e/serveit/internal/db"
	"github.com/jac4e/serveit/internal/gmailbox"
	"github.com/jac4e/serveit/internal/handlers"
	"github.com/jac4e/serveit/internal/logger"
	"github.com/jac4e/serveit/internal/repository/postgres"
	"github.com/jac4e/serveit/internal/scheduler"
	"github.com/jac4e/serveit/internal/service/etransfer"
	"github.com/jac4e/serveit/internal/service/gateway"
	"github.com/jac4e/serveit/internal/service/ledger"
	"github.com/jac4e/serveit/internal/service/notify"
	"github.com/jac4e/serveit/internal/service/refill"
)

const (
	etransferTaskName = "etransfer-poller"
	notifyTaskName    = "notification-dispatcher"
)

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	logger logger.Logger
	tasks  *scheduler.Manager
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	// Initialize logger
	log, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}

	// Initialize repositories
	storage := postgres.NewStorage(pool)

	// The Gmail client doubles as the e-transfer mailbox and, when selected,
	// the notification sender. Without OAuth material the mailbox stays nil
	// and the poller idles.
	var mailbox etransfer.Mailbox
	var sender notify.MessageSender
	if c.GoogleCredentialsFile != "" && c.GoogleTokenFile != "" {
		gmailClient, err := gmailbox.New(ctx, c.GoogleCredentialsFile, c.GoogleTokenFile)
		if err != nil {
			return nil, fmt.Errorf("error while connecting to gmail. Err: %w", err)
		}
		mailbox = gmailClient
		sender = gmailClient
	}

	// Initialize services
	provider, err := notify.ProviderFromConfig(notify.Config{Provider: c.MailProvider, SMTP: c.SMTP}, sender, log)
	if err != nil {
		return nil, fmt.Errorf("error while creating notification provider. Err: %w", err)
	}
	notifyService := notify.NewService(provider, storage.Account(), log)

	stripeGateway := gateway.NewStripeGateway(c.StripeSecretKey, c.PublicURL)
	refillService := refill.NewService(refill.Config{MinimumNonCash: c.MinimumNonCash}, storage, stripeGateway, notifyService, log)
	ledgerService := ledger.NewService(storage, log)

	poller := etransfer.NewPoller(mailbox, etransfer.NewAuthenticator(c.AuditDir), refillService, log)

	// Register background tasks
	tasks := scheduler.NewManager(log)
	if _, err := tasks.Register(etransferTaskName, c.PollInterval, poller); err != nil {
		return nil, fmt.Errorf("error while registering poller task. Err: %w", err)
	}
	if _, err := tasks.Register(notifyTaskName, c.NotifyInterval, notifyService); err != nil {
		return nil, fmt.Errorf("error while registering notification task. Err: %w", err)
	}

	webhookHandler := handlers.NewStripeWebhook(refillService, c.StripeWebhookSecret, log)
	mux := handlers.NewRouter(refillService, ledgerService, tasks, webhookHandler, c.AdminKey, log)

	return &ServerApp{
		ListenAddr: c.ListenAddr,
		Handler:    mux,
		logger:     log,
		tasks:      tasks,
	}, nil
}

// Run starts the background tasks and the http server, then closes both
// gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	s.tasks.StartAll(ctx)
	defer s.tasks.StopAll()

	httpServer := &http.Server{
		Addr:    s.ListenAddr,
		Handler: s.Handler,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); err == context.DeadlineExceeded {
			s.logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown")
		}
		s.logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	s.logger.Info("Starting server", "address", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed

	return err
}
