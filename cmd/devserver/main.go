package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"sharedledger.org/internal/config"
	"sharedledger.org/internal/devserver"
	"sharedledger.org/internal/obs"
)

// Set with -ldflags "-X main.version=... -X main.commit=...".
var (
	version string
	commit  string
)

func main() {
	configPath := flag.String("config", "", "config file")
	flag.Parse()

	cfg, err := config.Load(config.New(*configPath))
	if err != nil {
		obs.Logger().Fatal("load config", zap.Error(err))
	}
	obs.Configure(cfg.LogLevel)
	obs.Init()
	build := obs.ReadBuild("devserver", version, commit)
	obs.PublishBuild(build)
	logger := obs.Logger()

	secret := cfg.DevServer.JWTSecret
	if secret == "" {
		secret = "sharedledger-dev-secret"
		logger.Warn("devserver.jwt_secret not set; using the built-in development secret")
	}

	api, err := devserver.New(secret,
		devserver.WithSessionTTL(cfg.DevServer.SessionTTL),
		devserver.WithVersion(build.Version),
	)
	if err != nil {
		logger.Fatal("build api", zap.Error(err))
	}
	if cfg.DevServer.Seed {
		seeded, err := api.Seed(context.Background())
		if err != nil {
			logger.Fatal("seed", zap.Error(err))
		}
		logger.Info("seeded demo data",
			zap.Any("users", seeded.Users),
			zap.Int64("private_group", seeded.PrivateGroup),
			zap.Int64("public_group", seeded.PublicGroup),
			zap.String("password", devserver.DemoPassword),
		)
	}

	srv := &http.Server{
		Addr:              cfg.DevServer.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("starting devserver", zap.String("build", build.String()), zap.String("addr", srv.Addr))

	// graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	_ = logger.Sync()
	logger.Info("stopped")
}
