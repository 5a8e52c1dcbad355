// Package main wires together the Holmes Place schedule crawler service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/talbz/holmes-ma/internal/api"
	"github.com/talbz/holmes-ma/internal/broadcast"
	"github.com/talbz/holmes-ma/internal/broadcast/sinks"
	"github.com/talbz/holmes-ma/internal/clock/system"
	"github.com/talbz/holmes-ma/internal/config"
	"github.com/talbz/holmes-ma/internal/controller"
	"github.com/talbz/holmes-ma/internal/crawl"
	"github.com/talbz/holmes-ma/internal/event"
	"github.com/talbz/holmes-ma/internal/logging"
	"github.com/talbz/holmes-ma/internal/metrics"
	"github.com/talbz/holmes-ma/internal/notify"
	"github.com/talbz/holmes-ma/internal/scraper"
	"github.com/talbz/holmes-ma/internal/storage"
	"github.com/talbz/holmes-ma/internal/storage/gcs"
	"github.com/talbz/holmes-ma/internal/storage/jsonl"
	localstorage "github.com/talbz/holmes-ma/internal/storage/local"
	"github.com/talbz/holmes-ma/internal/store/postgres"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init()
	clock := system.New()

	screenshots, err := newScreenshotStore(ctx, cfg)
	if err != nil {
		logger.Warn("screenshot store init failed, screenshots disabled", zap.Error(err))
		screenshots = storage.Noop{}
	}

	schedScraper := scraper.NewScheduleScraper(scraper.ScheduleConfig{
		NavTimeout:  cfg.Crawler.NavTimeout(),
		UserAgent:   cfg.Crawler.UserAgent,
		Screenshots: screenshots,
	}, clock, logger.Named("scraper"))

	var source crawl.ClubSource
	if cfg.Crawler.DiscoverClubs {
		source = scraper.NewFooterSource(scraper.DiscoveryConfig{
			BaseURL:   cfg.Crawler.BaseURL,
			UserAgent: cfg.Crawler.UserAgent,
			Fallback:  cfg.Crawler.Clubs,
		}, logger.Named("discovery"))
	} else {
		source = scraper.NewStaticSource(cfg.Crawler.Clubs)
	}

	writer, err := jsonl.NewWriter(cfg.Output.Dir)
	if err != nil {
		logger.Fatal("output writer init failed", zap.Error(err))
	}

	sinkList := []broadcast.Sink{sinks.NewLogSink(logger.Named("events"))}

	promSink, err := sinks.NewPrometheusSink(nil)
	if err != nil {
		logger.Warn("prometheus sink init failed", zap.Error(err))
	} else {
		sinkList = append(sinkList, promSink)
	}

	if cfg.DB.Enabled {
		repo, repoErr := postgres.New(ctx, cfg.DB.DSN)
		if repoErr != nil {
			logger.Warn("history store init failed, history disabled", zap.Error(repoErr))
		} else {
			sinkList = append(sinkList, sinks.NewHistorySink(repo))
		}
	}

	if cfg.Notify.Enabled {
		notifier, notifyErr := notify.NewPubSub(ctx, cfg.Notify.ProjectID, cfg.Notify.TopicID)
		if notifyErr != nil {
			logger.Warn("notifier init failed, notifications disabled", zap.Error(notifyErr))
		} else {
			sinkList = append(sinkList, sinks.NewNotifySink(notifier))
		}
	}

	// The controller publishes into the broadcaster, which in turn reads
	// snapshots back from the controller. The closure breaks the cycle;
	// Publish on a nil broadcaster is a no-op, so the window between the
	// two constructors is safe.
	var broadcaster *broadcast.Broadcaster
	ctrl, err := controller.New(controller.Config{
		BaseContext: ctx,
		Scraper:     schedScraper,
		Source:      source,
		Sink:        writer,
		Publisher:   publisherFunc(func(evt event.Event) { broadcaster.Publish(evt) }),
		Clock:       clock,
		Logger:      logger.Named("controller"),
	})
	if err != nil {
		logger.Fatal("controller init failed", zap.Error(err))
	}

	broadcaster = broadcast.New(broadcast.Config{
		ObserverQueueSize: cfg.WS.ObserverQueueSize,
		Clock:             clock,
		Logger:            logger.Named("broadcast"),
	}, ctrl, sinkList...)

	apiServer := api.NewServer(ctrl, broadcaster, cfg, clock, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	if err := broadcaster.Close(shutdownCtx); err != nil {
		logger.Error("broadcaster shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

type publisherFunc func(event.Event)

func (f publisherFunc) Publish(evt event.Event) { f(evt) }

func newScreenshotStore(ctx context.Context, cfg config.Config) (storage.BlobStore, error) {
	switch cfg.Screenshots.Provider {
	case "local":
		return localstorage.New(cfg.Screenshots.Dir)
	case "gcs":
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		return gcs.New(client, cfg.Screenshots.GCSBucket)
	default:
		return storage.Noop{}, nil
	}
}
