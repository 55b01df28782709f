// Package app assembles a ledger and sweeper from configuration.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"libraloan/internal/circulation"
	"libraloan/internal/clients"
	"libraloan/internal/config"
	"libraloan/internal/lock"
	"libraloan/internal/notify"
	"libraloan/internal/store/postgres"
)

type App struct {
	Store   *postgres.Store
	Ledger  *circulation.Ledger
	Sweeper *circulation.Sweeper
}

// New migrates the database and wires every collaborator the configuration
// selects.
func New(ctx context.Context, cfg *config.Config, db *sql.DB, logger *slog.Logger) (*App, error) {
	store := postgres.New(db)
	if err := store.Migrate(ctx); err != nil {
		return nil, err
	}

	deps := circulation.Deps{
		Loans:    store.Loans(),
		Books:    store.Books(),
		Groups:   store.Groups(),
		Balances: store.Balances(),
		Logger:   logger,
	}
	if cfg.Remote() {
		membership := clients.NewMembershipClient(cfg.MembershipServiceURL, logger)
		deps.Books = clients.NewCatalogClient(cfg.CatalogServiceURL, logger)
		deps.Groups = membership
		deps.Balances = membership.Balances()
		logger.Info("using remote collaborators",
			"catalog", cfg.CatalogServiceURL, "membership", cfg.MembershipServiceURL)
	}

	switch cfg.Locker {
	case config.LockerMemory:
		deps.Locker = lock.NewKeyed()
	default:
		deps.Locker = postgres.NewAdvisoryLocker(db, logger)
	}

	if cfg.NotifyWebhookURL != "" {
		deps.Notifier = notify.NewWebhook(cfg.NotifyWebhookURL, cfg.NotifyRatePerSec)
	} else {
		deps.Notifier = notify.NewLog(logger)
	}

	ledger := circulation.NewLedger(deps, cfg.Policy)
	return &App{
		Store:   store,
		Ledger:  ledger,
		Sweeper: circulation.NewSweeper(ledger),
	}, nil
}

// SetupTracing installs an OTLP/HTTP tracer provider when endpoint is set.
// The returned func flushes and stops it.
func SetupTracing(ctx context.Context, endpoint, service string) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(endpoint))
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", service))),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}
