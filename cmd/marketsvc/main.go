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
	"github.com/mkrupp/joynest/internal/infra/transport/ws"
	"github.com/mkrupp/joynest/internal/repo/blob"
	"github.com/mkrupp/joynest/internal/repo/market"
	"github.com/mkrupp/joynest/internal/svc/authsvc/authclient"
	"github.com/mkrupp/joynest/internal/svc/imagesvc"
	"github.com/mkrupp/joynest/internal/svc/marketsvc"
	"github.com/mkrupp/joynest/internal/svc/mediasvc"
)

const (
	appName = "joynest"
	svcName = "marketsvc"

	defaultDSN = "var/storage/marketsvc.db"
)

type Config struct {
	config.EnvConfig

	Log        logging.LoggerConfig                `envPrefix:"LOG_"`
	Market     market.SQLMarketRepositoryConfig    `envPrefix:"MARKET_"`
	Notifier   marketsvc.NotifierConfig            `envPrefix:"NOTIFIER_"`
	HTTP       marketsvc.HTTPTransportConfig       `envPrefix:"HTTP_"`
	Media      mediasvc.MediaConfig                `envPrefix:"MEDIA_"`
	Image      imagesvc.ImageConfig                `envPrefix:"IMAGE_"`
	ImageHTTP  imagesvc.HTTPTransportConfig        `envPrefix:"IMAGE_HTTP_"`
	AuthClient authclient.HTTPClientConfig         `envPrefix:"AUTH_CLIENT_"`
	Blob       blob.FileSystemBlobRepositoryConfig `envPrefix:"BLOB_"`
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

	if cfg.Market.DB.DSN == "" {
		cfg.Market.DB.DSN = defaultDSN
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
		log := logging.GetLogger("cmd.marketsvc")

		if err != nil {
			log.ErrorContext(ctx, "error", "err", err)
			panic(err)
		}

		log.InfoContext(ctx, "shutdown")
	}()

	registry := metrics.NewRegistry(svcName)
	blobFactory := blob.FileSystemBlobRepositoryFactory(cfg.Blob)

	mediaSvc, err := mediasvc.NewBlobMediaService(ctx, blobFactory, cfg.Media)
	if err != nil {
		return fmt.Errorf("new media service: %w", err)
	}

	imageSvc, err := imagesvc.NewBlobImageService(ctx, blobFactory, mediaSvc, cfg.Image)
	if err != nil {
		return fmt.Errorf("new image service: %w", err)
	}

	authClient := authclient.NewHTTPClient(cfg.AuthClient, nil)

	hub := ws.NewHub()
	go hub.Run(ctx)

	marketSvc, err := marketsvc.NewMarketService(
		ctx,
		market.SQLMarketRepositoryFactory(cfg.Market),
		imageSvc,
		marketsvc.NewHubNotifier(hub, cfg.Notifier),
		registry,
	)
	if err != nil {
		return fmt.Errorf("new market service: %w", err)
	}

	defer func() { _ = marketSvc.Close() }()

	imageTransport := imagesvc.NewHTTPTransport(imageSvc, authClient, registry, cfg.ImageHTTP)
	httpTransport := marketsvc.NewHTTPTransport(marketSvc, authClient, imageTransport, hub, registry, cfg.HTTP)

	go httpTransport.Run(ctx)

	if err := http.ListenAndServe(ctx, httpTransport, cfg.HTTP.HTTPTransportConfig); err != nil {
		return fmt.Errorf("listen and serve: %w", err)
	}

	return nil
}
