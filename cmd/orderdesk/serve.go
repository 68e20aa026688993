package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jogardn/orderdesk/internal/actions"
	"github.com/jogardn/orderdesk/internal/circuitbreaker"
	"github.com/jogardn/orderdesk/internal/events"
	"github.com/jogardn/orderdesk/internal/live"
	"github.com/jogardn/orderdesk/internal/query"
	"github.com/jogardn/orderdesk/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the web service",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	breakers := circuitbreaker.NewManager(logger)
	be, err := openBackend(ctx, cfg.Store.Backend, cfg.Store.DSN, breakers)
	if err != nil {
		return fmt.Errorf("open %s backend: %w", cfg.Store.Backend, err)
	}
	defer be.close()

	c, err := openCache(ctx)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer c.Close()

	fetcher := query.NewFetcher(be.table, c, cfg.Cache.TTL, logger)
	hub := live.NewHub(fetcher, cfg.Instance, logger)
	go hub.Run(ctx)

	invalidator := actions.Fanout{fetcher, hub}
	if cfg.Kafka.Enabled() {
		brokers := events.Brokers(cfg.Kafka.Brokers)

		producer, err := events.NewSyncProducer(brokers)
		if err != nil {
			return fmt.Errorf("create Kafka producer: %w", err)
		}
		publisher := events.NewPublisher(producer, cfg.Kafka.Topic, cfg.Instance, logger)
		defer publisher.Close()
		invalidator = append(invalidator, publisher)

		// Every instance must see every event, so each gets its own group.
		group := cfg.Kafka.Group + "-" + cfg.Instance
		consumer, err := events.NewConsumer(brokers, group, cfg.Kafka.Topic, cfg.Instance, actions.Fanout{fetcher, hub}, logger)
		if err != nil {
			return fmt.Errorf("create Kafka consumer: %w", err)
		}
		defer consumer.Close()
		go func() {
			if err := consumer.Start(ctx); err != nil {
				logger.WithError(err).Error("Kafka consumer stopped")
			}
		}()
	}

	srv, err := web.New(web.Deps{
		Actions:  actions.New(be.table, invalidator, logger),
		Fetcher:  fetcher,
		Live:     hub,
		Breakers: breakers,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:         ":" + cfg.HTTP.Port,
		Handler:      srv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.WithFields(logrus.Fields{
			"port":     cfg.HTTP.Port,
			"backend":  be.name,
			"cache":    cfg.Cache.Backend,
			"instance": cfg.Instance,
		}).Info("Starting orderdesk")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Server gracefully stopped")
	return nil
}
