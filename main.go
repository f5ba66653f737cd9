package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"betflow/config"
	"betflow/internal/bet"
	"betflow/internal/channel"
	"betflow/internal/coalesce"
	"betflow/internal/dashboard"
	"betflow/internal/feed"
	"betflow/internal/market"
	"betflow/internal/metrics"
	"betflow/internal/normalize"
	"betflow/internal/poller"
	"betflow/internal/position"
	"betflow/internal/publisher"
	"betflow/internal/stream"
	"betflow/logger"
	"betflow/models"
	"betflow/processor"
	"betflow/writer"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Betflow.Name,
		"version": cfg.Betflow.Version,
	}).Info("starting betflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, 30*time.Second)
	}

	if cfg.Storage.S3.Region != "" {
		logger.InitCloudWatch(cfg.Storage.S3.Region, cfg.Betflow.Name, cfg.Logging.DashboardName)
	}
	metrics.Init(cfg.Metrics.PrometheusAddr)

	channels := channel.NewChannels(
		cfg.Channels.FrameBuffer,
		cfg.Channels.BatchBuffer,
	)
	defer channels.Close()

	if cfg.Metrics.ChannelSize {
		go metrics.StartChannelSizeMetrics(ctx, channels, 10*time.Second)
	}

	feedStore := feed.NewStore()
	book := market.NewBook()
	positions := position.NewReconciler()

	var pub *publisher.StreamPublisher
	if cfg.Publisher.Enabled {
		pub = publisher.NewStreamPublisher(cfg)
		defer pub.Close()
	}

	coalescer := coalesce.NewCoalescer(cfg.Coalescer.FlushInterval, func(batch models.MarketBatch) {
		metrics.IncrementBatchFlushed()
		if !channels.SendBatch(ctx, batch) {
			metrics.EmitDropMetric(log, metrics.DropMetricBatch, "", "coalescer", "archive")
		}
		if pub != nil {
			if err := pub.PublishBatch(ctx, batch); err != nil {
				log.WithError(err).Warn("failed to publish market batch")
			}
			// The feed view rides along with every flush so stream
			// consumers see the match list the batch was priced against.
			if err := pub.PublishFeedView(ctx, feedStore.View()); err != nil {
				log.WithError(err).Warn("failed to publish feed view")
			}
		}
	})

	classifier := normalize.NewClassifier(cfg.Stream.Events)
	dispatcher := processor.NewDispatcher(channels.Frames, classifier, feedStore, book, positions, coalescer)

	var streamManager *stream.Manager
	if cfg.Stream.Enabled {
		streamManager = stream.NewManager(cfg, classifier.EventNames(), channels)
	}

	var matchPoller *poller.MatchPoller
	if cfg.Poll.Enabled {
		matchPoller = poller.NewMatchPoller(cfg, feedStore)
	}

	var positionPoller *poller.PositionPoller
	if cfg.Positions.Enabled {
		positionPoller = poller.NewPositionPoller(cfg, positions)
	}

	var archiveWriter *writer.ArchiveWriter
	if cfg.Storage.S3.Enabled {
		archiveWriter, err = writer.NewArchiveWriter(cfg, channels.Batches)
		if err != nil {
			log.WithError(err).Error("failed to create archive writer")
			os.Exit(1)
		}
	} else {
		log.WithComponent("main").Info("S3 storage disabled; skipping archive writer")
	}

	var betClient *bet.Client
	if cfg.Bet.URL != "" {
		betClient = bet.NewClient(cfg, positions)
	}

	dash, err := dashboard.NewServer(cfg.Dashboard, dashboard.Deps{
		Stream:        streamManager,
		Feed:          feedStore,
		Book:          book,
		Positions:     positions,
		Channels:      channels,
		Bets:          betClient,
		SwitchContext: dispatcher.SetContext,
		MatchPollError: func() string {
			if matchPoller == nil {
				return ""
			}
			return matchPoller.LastError()
		},
		PositionPollError: func() string {
			if positionPoller == nil {
				return ""
			}
			return positionPoller.LastError()
		},
	}, log)
	if err != nil {
		log.WithError(err).Error("failed to create dashboard server")
		os.Exit(1)
	}

	var wg sync.WaitGroup

	if err := coalescer.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start coalescer")
		os.Exit(1)
	}
	if err := dispatcher.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start dispatcher")
		os.Exit(1)
	}
	if streamManager != nil {
		if err := streamManager.Start(ctx); err != nil {
			log.WithError(err).Warn("stream manager failed to start")
		}
	}
	if matchPoller != nil {
		if err := matchPoller.Start(ctx); err != nil {
			log.WithError(err).Warn("match poller failed to start")
		}
	}
	if positionPoller != nil {
		if err := positionPoller.Start(ctx); err != nil {
			log.WithError(err).Warn("position poller failed to start")
		}
	}
	if archiveWriter != nil {
		if err := archiveWriter.Start(ctx); err != nil {
			log.WithError(err).Warn("archive writer failed to start")
		}
	}
	if dash != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := dash.Run(ctx, cfg.Betflow.Name); err != nil {
				log.WithError(err).Warn("dashboard server exited with error")
			}
		}()
	}

	log.Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	log.Info("starting graceful shutdown")
	cancel()

	if streamManager != nil {
		log.Info("stopping stream manager")
		streamManager.Stop()
	}
	if matchPoller != nil {
		log.Info("stopping match poller")
		matchPoller.Stop()
	}
	if positionPoller != nil {
		log.Info("stopping position poller")
		positionPoller.Stop()
	}

	log.Info("stopping dispatcher")
	dispatcher.Stop()

	log.Info("stopping coalescer")
	coalescer.Stop()

	if archiveWriter != nil {
		log.Info("stopping archive writer")
		archiveWriter.Stop()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("graceful shutdown completed")
	case <-time.After(30 * time.Second):
		log.Warn("graceful shutdown timeout exceeded")
	}

	log.Info("betflow stopped")
}
