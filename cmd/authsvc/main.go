package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mkrupp/joynest/internal/infra/config"
	"github.com/mkrupp/joynest/internal/infra/logging"
	"github.com/mkrupp/joynest/internal/infra/metrics"
	"github.com/mkrupp/joynest/internal/infra/transport/http"
	"github.com/mkrupp/joynest/internal/repo/user"
	"github.com/mkrupp/joynest/internal/svc/authsvc"
)

const (
	appName = "joynest"
	svcName = "authsvc"

	defaultDSN = "var/storage/authsvc.db"
)

type Config struct {
	config.EnvConfig

	Log  logging.LoggerConfig         `envPrefix:"LOG_"`
	Auth authsvc.AuthConfig           `envPrefix:"AUTH_"`
	HTTP authsvc.HTTPTransportConfig  `envPrefix:"HTTP_"`
	User user.SQLUserRepositoryConfig `envPrefix:"USER_"`
}

func main() {
	var (
		cfg Config
		ctx = context.Background()

		configPrefix = strings.ToUpper(strings.Join([]string{appName, svcName}, "_"))
		loggerName   = strings.ToLower(strings.Join([]string{appName, svcName}, "."))
	)

	if err := config.LoadEnvFiles(); err != nil {
		panic(err)
	}

	if err := config.Parse(ctx, &cfg, configPrefix); err != nil {
		panic(err)
	}

	if cfg.User.DB.DSN == "" {
		cfg.User.DB.DSN = defaultDSN
	}

	logging.Configure(ctx, cfg.Log, loggerName)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		panic(err)
	}
}

func run(ctx context.Context, cfg Config) (err error) {
	defer func() {
		log := logging.GetLogger("cmd.authsvc")

		if err != nil {
			log.ErrorContext(ctx, "error", "err", err)
			panic(err)
		}

		log.InfoContext(ctx, "shutdown")
	}()

	authSvc, err := authsvc.NewAuthService(
		ctx,
		user.SQLUserRepositoryFactory(cfg.User),
		cfg.Auth,
	)
	if err != nil {
		return fmt.Errorf("new auth service: %w", err)
	}

	defer func() { _ = authSvc.Close() }()

	if err := authSvc.StartJobs(ctx); err != nil {
		return fmt.Errorf("start jobs: %w", err)
	}

	httpTransport := authsvc.NewHTTPTransport(authSvc, metrics.NewRegistry(svcName), cfg.HTTP)
	go httpTransport.Run(ctx)

	if err := http.ListenAndServe(ctx, httpTransport, cfg.HTTP.HTTPTransportConfig); err != nil {
		return fmt.Errorf("listen and serve: %w", err)
	}

	return nil
}
