// Command cartd runs the shopping cart daemon: an HTTP API over the
// SQLite event store, with optional Redis projection caching and NATS
// event publication.
package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	_ "gocloud.dev/secrets/localsecrets" // base64key:// keeper for dev; cloud drivers are opt-in

	"github.com/plaenen/cartstore/pkg/cartapi"
	"github.com/plaenen/cartstore/pkg/cartsvc"
	"github.com/plaenen/cartstore/pkg/catalog"
	"github.com/plaenen/cartstore/pkg/credentials"
	"github.com/plaenen/cartstore/pkg/logger"
	natsbus "github.com/plaenen/cartstore/pkg/nats"
	"github.com/plaenen/cartstore/pkg/observability"
	"github.com/plaenen/cartstore/pkg/projection"
	"github.com/plaenen/cartstore/pkg/runner"
	"github.com/plaenen/cartstore/pkg/store/sqlite"
)

type config struct {
	Env      string `env:"CARTSTORE_ENV" envDefault:"development"`
	LogLevel string `env:"CARTSTORE_LOG_LEVEL" envDefault:"info"`
	HTTPAddr string `env:"CARTSTORE_HTTP_ADDR" envDefault:":8080"`

	// DBPath is the SQLite database file. ":memory:" runs ephemeral.
	DBPath string `env:"CARTSTORE_DB_PATH" envDefault:"cartstore.db"`

	// RedisAddr enables the Redis projection cache when set; otherwise
	// the in-process cache is used.
	RedisAddr     string `env:"CARTSTORE_REDIS_ADDR"`
	RedisPassword string `env:"CARTSTORE_REDIS_PASSWORD"`

	// NATSURL enables after-commit event publication when set.
	NATSURL string `env:"CARTSTORE_NATS_URL"`

	// CatalogURL points at the product catalog service. Empty runs a
	// built-in demo catalog.
	CatalogURL   string `env:"CARTSTORE_CATALOG_URL"`
	CatalogToken string `env:"CARTSTORE_CATALOG_TOKEN"`

	// CatalogKeeperURL selects secret-backed catalog credentials: the
	// keeper (awskms://, gcpkms://, azurekeyvault://, hashivault://,
	// base64key://) decrypts CatalogCredentials, a base64-encoded
	// encrypted credentials document. Takes precedence over
	// CatalogToken.
	CatalogKeeperURL   string `env:"CARTSTORE_CATALOG_KEEPER_URL"`
	CatalogCredentials string `env:"CARTSTORE_CATALOG_CREDENTIALS"`

	MaxAttempts int `env:"CARTSTORE_MAX_ATTEMPTS" envDefault:"3"`
}

func main() {
	if err := run(); err != nil {
		slog.Error("cartd failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	log := logger.New(logger.Options{
		Service: "cartd",
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
	})

	ctx := context.Background()

	tel, err := observability.Init(ctx, observability.Config{
		ServiceName: "cartd",
		Environment: cfg.Env,
		Logger:      log,
	})
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			log.Warn("observability shutdown", slog.String("error", err.Error()))
		}
	}()

	storeOpts := []sqlite.Option{sqlite.WithAutoMigrate(true)}
	if cfg.DBPath == ":memory:" {
		storeOpts = append(storeOpts, sqlite.WithMemoryDatabase())
	} else {
		storeOpts = append(storeOpts, sqlite.WithDSN(cfg.DBPath), sqlite.WithWALMode(true))
	}
	es, err := sqlite.NewEventStore(storeOpts...)
	if err != nil {
		return fmt.Errorf("open event store: %w", err)
	}
	defer es.Close()
	log.Info("event store open", slog.String("db", cfg.DBPath))

	cache, closeCache, err := buildCache(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeCache()

	cat, err := buildCatalog(ctx, cfg, log)
	if err != nil {
		return err
	}

	opts := []cartsvc.Option{
		cartsvc.WithCache(cache),
		cartsvc.WithLogger(log),
		cartsvc.WithMetrics(tel.Metrics),
		cartsvc.WithTracer(tel.Tracer("cartsvc")),
		cartsvc.WithMaxAttempts(cfg.MaxAttempts),
	}

	if cfg.NATSURL != "" {
		busCfg := natsbus.DefaultConfig()
		busCfg.URL = cfg.NATSURL
		bus, err := natsbus.NewEventBus(busCfg)
		if err != nil {
			return fmt.Errorf("connect event bus: %w", err)
		}
		defer bus.Close()
		opts = append(opts, cartsvc.WithEventBus(bus))
		log.Info("event bus connected", slog.String("url", cfg.NATSURL))
	}

	svc, err := cartsvc.New(es, cat, opts...)
	if err != nil {
		return fmt.Errorf("build cart service: %w", err)
	}

	httpSrv := cartapi.NewServer(cfg.HTTPAddr, cartapi.NewHandler(svc, log), log)

	return runner.New(
		[]runner.Service{httpSrv},
		runner.WithLogger(log),
	).Run(ctx)
}

func buildCache(ctx context.Context, cfg config, log *slog.Logger) (projection.Cache, func(), error) {
	if cfg.RedisAddr == "" {
		return projection.NewMemoryCache(), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	log.Info("redis cache connected", slog.String("addr", cfg.RedisAddr))
	return projection.NewRedisCache(client), func() { _ = client.Close() }, nil
}

func buildCatalog(ctx context.Context, cfg config, log *slog.Logger) (catalog.Client, error) {
	if cfg.CatalogURL == "" {
		log.Warn("no catalog configured, using built-in demo catalog")
		return demoCatalog(), nil
	}

	provider, err := catalogCredentials(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	var opts []catalog.HTTPOption
	if provider != nil {
		opts = append(opts, catalog.WithCredentials(provider))
	}
	return catalog.NewHTTPClient(cfg.CatalogURL, opts...), nil
}

func catalogCredentials(ctx context.Context, cfg config, log *slog.Logger) (credentials.Provider, error) {
	if cfg.CatalogKeeperURL != "" {
		ciphertext, err := base64.StdEncoding.DecodeString(cfg.CatalogCredentials)
		if err != nil {
			return nil, fmt.Errorf("decode catalog credentials: %w", err)
		}
		provider, err := credentials.NewSecretProvider(ctx, cfg.CatalogKeeperURL, ciphertext, 0)
		if err != nil {
			return nil, fmt.Errorf("open catalog credentials keeper: %w", err)
		}
		log.Info("catalog credentials from secrets keeper",
			slog.String("keeper", cfg.CatalogKeeperURL))
		return provider, nil
	}

	if cfg.CatalogToken != "" {
		provider, err := credentials.NewTokenProvider(cfg.CatalogToken)
		if err != nil {
			return nil, fmt.Errorf("catalog credentials: %w", err)
		}
		return provider, nil
	}

	return nil, nil
}

func demoCatalog() *catalog.StaticClient {
	return catalog.NewStaticClient(
		catalog.Product{ProductID: "7", Exists: true, InStock: true, UnitPrice: decimal.RequireFromString("1.50"), Currency: "USD"},
		catalog.Product{ProductID: "9", Exists: true, InStock: true, UnitPrice: decimal.RequireFromString("1.75"), Currency: "USD"},
		catalog.Product{ProductID: "11", Exists: true, InStock: true, UnitPrice: decimal.RequireFromString("9.99"), Currency: "USD"},
	)
}
