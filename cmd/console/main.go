package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	imlog "github.com/dhis2-sre/im-console/internal/log"
	"github.com/dhis2-sre/im-console/pkg/auth"
	"github.com/dhis2-sre/im-console/pkg/cluster"
	"github.com/dhis2-sre/im-console/pkg/config"
	"github.com/dhis2-sre/im-console/pkg/connection"
	"github.com/dhis2-sre/im-console/pkg/container"
	"github.com/dhis2-sre/im-console/pkg/event"
	"github.com/dhis2-sre/im-console/pkg/gateway"
	"github.com/dhis2-sre/im-console/pkg/storage"
	"github.com/dhis2-sre/im-console/pkg/store"
	"github.com/dhis2-sre/im-console/pkg/user"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg := config.ProvideConfig()

	var a app
	root := newRootCommand(&a, func(verbose bool) error {
		return a.init(cfg, verbose)
	})
	defer a.close()

	return root.ExecuteContext(context.Background())
}

// app holds the components commands work with. It's initialized before any command runs.
type app struct {
	logger      *slog.Logger
	fs          afero.Fs
	gateway     *gateway.Client
	auth        *auth.Service
	users       *user.Service
	containers  *container.Service
	cluster     *cluster.Service
	connections *connection.Registry
	store       *store.Store

	closers []func() error
}

func (a *app) init(cfg config.Config, verbose bool) error {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	a.logger = imlog.NewLogger(os.Stderr, level, cfg.LogPretty)
	a.fs = afero.NewOsFs()

	tiers, err := a.newTiers(cfg)
	if err != nil {
		return err
	}

	broker := event.NewEventBroker()
	tokens := auth.NewTokens(tiers)
	session := auth.NewSession(a.logger, tokens, broker)

	a.gateway, err = gateway.New(
		gateway.Config{BaseURL: cfg.APIBaseURL, Timeout: cfg.RequestTimeout},
		gateway.WithLogger(a.logger),
		gateway.WithTokenSource(session),
		gateway.WithSessionInvalidator(session),
		gateway.WithTracerProvider(otel.GetTracerProvider()),
		gateway.WithRegisterer(prometheus.DefaultRegisterer),
	)
	if err != nil {
		return err
	}

	a.auth = auth.NewService(a.logger, a.gateway, tokens)
	a.users = user.NewService(a.gateway)
	a.containers = container.NewService(a.gateway)
	a.cluster = cluster.NewService(a.gateway)

	var options []connection.Option
	if cfg.AgeIdentity != "" {
		sealer, err := connection.ParseAgeSealer(cfg.AgeIdentity)
		if err != nil {
			return err
		}
		options = append(options, connection.WithSealer(sealer))
	}
	a.connections = connection.NewRegistry(a.logger, tiers.Durable, broker, a.cluster, options...)

	a.store = store.New(a.logger, a.containers, a.connections, store.WithRefreshInterval(cfg.RefreshInterval))
	return nil
}

// newTiers returns the storage tiers. The durable tier uses the configured backend while the
// session tier lives as long as the process.
func (a *app) newTiers(cfg config.Config) (storage.Tiers, error) {
	tiers := storage.Tiers{Session: storage.NewMemory()}

	switch cfg.StorageBackend {
	case config.StorageFile:
		tiers.Durable = storage.NewFile(a.fs, filepath.Join(cfg.StateDir, "state.json"))
	case config.StorageRedis:
		client, err := storage.NewRedis(cfg.Redis.Host, cfg.Redis.Port)
		if err != nil {
			return tiers, err
		}
		a.closers = append(a.closers, client.Close)
		tiers.Durable = storage.NewRedisStore(client, "im-console:")
	case config.StoragePostgres:
		db, err := storage.NewDatabase(a.logger, cfg.Postgresql)
		if err != nil {
			return tiers, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return tiers, err
		}
		a.closers = append(a.closers, sqlDB.Close)
		tiers.Durable = storage.NewDatabaseStore(db, "")
	default:
		return tiers, fmt.Errorf("unsupported storage backend: %s", cfg.StorageBackend)
	}
	return tiers, nil
}

func (a *app) close() {
	for _, closer := range a.closers {
		if err := closer(); err != nil && a.logger != nil {
			a.logger.Error("Failed to close", "error", err)
		}
	}
}
