package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/bytedeck/deck/apps/di"
	"github.com/bytedeck/deck/core"
	"github.com/bytedeck/deck/core/digest"
	"github.com/bytedeck/deck/core/schedule"
	queuesvc "github.com/bytedeck/deck/services/queue"
)

func main() {
	runBeat := flag.Bool("beat", true, "Dispatch the periodic tasks on their schedules.")
	runConsumer := flag.Bool("consume", true, "Run the dispatched jobs.")
	syncEvery := flag.Duration("sync", time.Minute, "How often the beat reloads the periodic tasks.")
	flag.Parse()

	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	logger, err := di.NewLogger(conf)
	if err != nil {
		log.Fatalf("setting up logger: %v", err)
	}

	db, err := di.SetUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	c := di.New(conf, logger, db)
	defer c.Close()

	logger.Info(fmt.Sprintf("Worker initializing : version %q", conf.Build))
	defer logger.Info("Worker stopped")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// =========================================================================
	// Start Metrics Service

	metricsSrv := &http.Server{Addr: conf.Server.DebugHost, Handler: promhttp.HandlerFor(c.Registry, promhttp.HandlerOpts{})}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error(fmt.Sprintf("metrics server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start Beat & Consumer

	g, ctx := errgroup.WithContext(ctx)

	if *runBeat {
		publisher, err := queuesvc.NewPublisher(conf.MQ)
		if err != nil {
			logger.Fatal(fmt.Sprintf("setting up publisher: %v", err), err)
		}
		defer publisher.Close()

		beat := schedule.NewBeat(c.TaskRepo, publisher, logger)
		g.Go(func() error { return runBeatLoop(ctx, beat, *syncEvery, logger) })
	}

	if *runConsumer {
		handler := newJobHandler(c.Tenants, c.DigestTask(), c.Metrics, logger)
		consumer, err := queuesvc.NewConsumer(conf.MQ, []string{digest.TaskName}, handler, logger)
		if err != nil {
			logger.Fatal(fmt.Sprintf("setting up consumer: %v", err), err)
		}
		defer consumer.Close()

		g.Go(func() error { return consumer.Consume(ctx) })
	}

	// =========================================================================
	// Shutdown

	if err := g.Wait(); err != nil {
		logger.Error(fmt.Sprintf("worker error: %v", err), err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error(fmt.Sprintf("could not stop metrics server gracefully: %v", err), err)
	}
}

// runBeatLoop keeps the beat in sync with the periodic task table until ctx is done.
func runBeatLoop(ctx context.Context, beat *schedule.Beat, every time.Duration, logger core.Logger) error {
	if err := beat.Sync(ctx); err != nil {
		return err
	}
	beat.Start()
	defer func() { <-beat.Stop().Done() }()
	logger.Info("beat started", map[string]interface{}{"tasks": beat.Len()})

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := beat.Sync(ctx); err != nil {
				logger.Warn("beat: syncing periodic tasks", err)
			}
		}
	}
}
