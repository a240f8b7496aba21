package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DeafMist/topstories/backend/internal/analytics"
	"github.com/DeafMist/topstories/backend/internal/config"
	"github.com/DeafMist/topstories/backend/internal/elasticsearch"
	"github.com/DeafMist/topstories/backend/internal/logger"
	"github.com/DeafMist/topstories/backend/internal/metrics"
	"github.com/DeafMist/topstories/backend/internal/topstories"
)

func main() {
	debug := flag.Bool("debug", false, "log at debug level and log every request")
	flag.Parse()

	log := logger.New("api")
	if *debug {
		log = logger.NewDebug("api")
	}

	cfg, err := config.LoadAPI()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	m := metrics.New()
	srv := &server{log: log, cfg: cfg, metrics: m, debug: *debug}

	if cfg.Variant == config.VariantProxy {
		accessor, err := topstories.New(topstories.Config{
			APIKey:        cfg.APIKey,
			BaseURL:       cfg.BaseURL,
			Timeout:       cfg.Timeout,
			CacheTTL:      cfg.CacheTTL,
			CacheCapacity: cfg.CacheCapacity,
		}, topstories.WithLogger(log), topstories.WithObserver(m))
		if err != nil {
			log.Error("init top stories accessor", slog.Any("err", err))
			os.Exit(1)
		}
		srv.stories = accessor
	}

	var sinks []analytics.Sink
	if cfg.AnalyticsLogFile != "" {
		fileSink, err := analytics.OpenFileSink(cfg.AnalyticsLogFile)
		if err != nil {
			log.Error("init analytics file sink", slog.Any("err", err))
			os.Exit(1)
		}
		sinks = append(sinks, fileSink)
	}
	if len(cfg.KafkaBrokers) > 0 {
		sinks = append(sinks, analytics.NewKafkaSink(cfg.KafkaBrokers, cfg.AnalyticsTopic, log))
	}
	srv.recorder = analytics.NewRecorder(log, m, sinks...)

	if cfg.ElasticsearchAddr != "" {
		esClient, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log)
		if err != nil {
			log.Error("init elasticsearch", slog.Any("err", err))
			os.Exit(1)
		}
		srv.search = esClient
	}

	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.Timeout + 15*time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	go func() {
		log.Info("api server starting",
			slog.String("addr", cfg.BindAddr),
			slog.String("variant", cfg.Variant),
			slog.Int("analytics_sinks", len(sinks)),
			slog.Bool("analytics_search", srv.search != nil),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", slog.Any("err", err))
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", slog.Any("err", err))
	}
	if err := srv.recorder.Close(); err != nil {
		log.Error("close analytics sinks", slog.Any("err", err))
	}
}
