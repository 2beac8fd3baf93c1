package main

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/xavierca1/lead-pipeline/internal/config"
	"github.com/xavierca1/lead-pipeline/internal/infra/database"
	"github.com/xavierca1/lead-pipeline/internal/infra/integration/routing"
	"github.com/xavierca1/lead-pipeline/internal/infra/mail"
	"github.com/xavierca1/lead-pipeline/internal/infra/queue"
	"github.com/xavierca1/lead-pipeline/internal/usecase"
)

// app holds the shared dependency graph for every subcommand.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *sql.DB
	rabbit *queue.RabbitMQ

	events    *database.RawEventRepository
	targeting *database.TargetingRepository
	producer  *queue.RabbitMQProducer

	ingest  *usecase.IngestEventUseCase
	status  *usecase.EventStatusUseCase
	process *usecase.ProcessEventUseCase
}

// newApp connects to Postgres and, when requireQueue is set, to RabbitMQ.
// Without a broker the pipeline still runs but publishes nothing.
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, requireQueue bool) (*app, error) {
	db, err := database.NewDBConnection(cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := database.EnsureSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, db: db}

	rabbit, err := queue.NewRabbitMQ(cfg.AMQPURL)
	switch {
	case err == nil:
		a.rabbit = rabbit
		a.producer = queue.NewProducer(rabbit.Ch)
	case requireQueue:
		db.Close()
		return nil, err
	default:
		logger.Warn("rabbitmq unavailable, identity updates will not be published", zap.Error(err))
	}

	a.events = database.NewRawEventRepository(db)
	identities := database.NewIdentityRepository(db)
	leads := database.NewLeadRepository(db)
	a.targeting = database.NewTargetingRepository(db)
	assignments := database.NewAssignmentRepository(db)

	var workspace usecase.WorkspaceRouter
	if cfg.RoutingServiceURL != "" {
		workspace = routing.NewClient(cfg.RoutingServiceURL, cfg.RoutingServiceToken, logger)
	}
	var notifier usecase.NotificationDispatcher
	if cfg.MailEnabled() {
		notifier = mail.NewLeadNotifier(cfg.MailHost, cfg.MailPort, cfg.MailUser, cfg.MailPass, cfg.MailFrom, cfg.NotifyEmailTo)
	}
	var identityPublisher usecase.IdentityEventPublisher
	if a.producer != nil {
		identityPublisher = a.producer
	}

	a.process = usecase.NewProcessEventUseCase(
		a.events,
		usecase.NewIdentityResolver(identities),
		usecase.NewLeadUpserter(leads, identities),
		usecase.NewLeadRouter(a.targeting, assignments, leads, workspace, logger),
		notifier,
		identityPublisher,
		logger,
	)
	if a.producer != nil {
		a.ingest = usecase.NewIngestEventUseCase(a.events, a.producer, logger)
		a.status = usecase.NewEventStatusUseCase(a.events, a.producer)
	}
	return a, nil
}

func (a *app) Close() {
	if a.rabbit != nil {
		if err := a.rabbit.Close(); err != nil {
			a.logger.Warn("close rabbitmq", zap.Error(err))
		}
	}
	if err := a.db.Close(); err != nil {
		a.logger.Warn("close database", zap.Error(err))
	}
}
