package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/grimsteel/smarttag-go/internal/config"
	"github.com/grimsteel/smarttag-go/internal/store"
	"github.com/grimsteel/smarttag-go/poller"
	"github.com/grimsteel/smarttag-go/publisher"
	"github.com/grimsteel/smarttag-go/server"
	"github.com/grimsteel/smarttag-go/smarttag"
)

const appName = "SMART Tag"

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("daemon exited with error")
	}
	log.Info().Msg("daemon stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	setupLogging()
	displayAppname(appName)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	st, err := store.Open(cfg.DBPath, store.WithEncryptionKey(cfg.StorageKey))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = st.Close() }()

	client, err := smarttag.New(&http.Client{}, smarttag.WithOrigin(cfg.Origin))
	if err != nil {
		return fmt.Errorf("create api client: %w", err)
	}

	metrics := poller.NewCollector()
	pollerOptions := []poller.Option{poller.WithMetrics(metrics)}

	if cfg.NATSURL != "" {
		pub, err := publisher.New(cfg.NATSURL)
		if err != nil {
			return fmt.Errorf("create publisher: %w", err)
		}
		defer pub.Close()
		pollerOptions = append(pollerOptions, poller.WithSink(pub))
	}

	p, err := poller.New(client, st, cfg, pollerOptions...)
	if err != nil {
		return fmt.Errorf("create poller: %w", err)
	}

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.New(p, server.WithMetricsHandler(metrics.Handler())),
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go p.Run(ctx)
	go listenAndServe(httpServer)

	log.Info().
		Str("listen", cfg.ListenAddr).
		Dur("poll_interval", cfg.PollInterval).
		Msg("daemon started")

	<-ctx.Done()
	return shutdown(httpServer)
}

func listenAndServe(httpServer *http.Server) {
	log.Info().Str("addr", httpServer.Addr).Msg("status server listening")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Err(err).Msg("status server failed")
	}
}

func shutdown(httpServer *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

func setupLogging() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(config.GetEnv("LOG_LEVEL", "info"))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
