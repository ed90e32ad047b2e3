// Command premiumd serves the premium status API: verification, the
// reconciliation task queue, and billing webhooks.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/lumichat/premium/modules/premium"
	"github.com/lumichat/premium/pkg/billing"
	"github.com/lumichat/premium/pkg/config"
	"github.com/lumichat/premium/pkg/docstore"
	"github.com/lumichat/premium/pkg/httpserver"
	"github.com/lumichat/premium/pkg/identity"
	"github.com/lumichat/premium/pkg/logger"
	"github.com/lumichat/premium/pkg/mongo"
	"github.com/lumichat/premium/pkg/notifier"
	"github.com/lumichat/premium/pkg/redis"
	"github.com/lumichat/premium/pkg/taskqueue"
	"github.com/lumichat/premium/pkg/verifier"
)

type appConfig struct {
	Env string `env:"APP_ENV" envDefault:"development"`
}

func main() {
	if err := run(context.Background()); err != nil {
		slog.Error("premiumd exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	var (
		appCfg    appConfig
		httpCfg   httpserver.Config
		redisCfg  redis.Config
		mongoCfg  mongo.Config
		paddleCfg billing.PaddleConfig
		idpCfg    identity.AdminConfig
		tokenCfg  identity.TokenConfig
		alertCfg  notifier.Config
	)
	config.MustLoad(&appCfg)
	config.MustLoad(&httpCfg)
	config.MustLoad(&redisCfg)
	config.MustLoad(&mongoCfg)
	config.MustLoad(&paddleCfg)
	config.MustLoad(&idpCfg)
	config.MustLoad(&tokenCfg)
	config.MustLoad(&alertCfg)

	log := logger.New(logger.WithEnvironment(appCfg.Env, "premiumd"))
	slog.SetDefault(log)

	redisClient, err := redis.Connect(ctx, redisCfg)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	db, err := mongo.ConnectDatabase(ctx, mongoCfg)
	if err != nil {
		return err
	}
	defer db.Client().Disconnect(context.Background())

	store := docstore.NewMongoStore(db)

	provider, err := billing.NewPaddleProvider(paddleCfg)
	if err != nil {
		return err
	}

	idp, err := identity.NewAdminClient(idpCfg, nil)
	if err != nil {
		return err
	}

	alerts, err := notifier.FromConfig(alertCfg, log)
	if err != nil {
		return err
	}

	storage, err := taskqueue.NewRedisStorage(redisClient, "")
	if err != nil {
		return err
	}

	queue, err := taskqueue.New(ctx, storage,
		taskqueue.WithLogger(log),
		taskqueue.WithFailureNotifier(alerts))
	if err != nil {
		return err
	}
	taskqueue.NewHandlers(provider, store, idp, log).Register(queue)

	// Drain whatever survived the last shutdown.
	go queue.Process(context.WithoutCancel(ctx))

	opts := []premium.Option{
		premium.WithLogger(log),
		premium.WithWebhookParser(provider),
	}
	if tokenCfg.SigningKey != "" {
		tokens, err := identity.NewTokenService(tokenCfg)
		if err != nil {
			return err
		}
		opts = append(opts, premium.WithTokenIssuer(tokens))
	}

	svc := premium.NewService(
		verifier.New(store, idp, provider, verifier.WithLogger(log)),
		queue,
		opts...)

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Get("/healthz", httpserver.HealthCheckHandler(log))
	r.Get("/readyz", httpserver.HealthCheckHandler(log,
		redis.Healthcheck(redisClient),
		mongo.Healthcheck(db.Client())))
	r.Mount("/premium", premium.Router(svc))

	return httpserver.New(httpCfg, log).Run(ctx, r)
}
