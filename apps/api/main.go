package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"

	echoapi "github.com/bytedeck/deck/apps/api/echo"
	"github.com/bytedeck/deck/apps/di"
	"github.com/bytedeck/deck/core"
	"github.com/bytedeck/deck/core/schedule"
	queuesvc "github.com/bytedeck/deck/services/queue"
)

func main() {
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

	var dispatcher schedule.Dispatcher
	if publisher, err := queuesvc.NewPublisher(conf.MQ); err != nil {
		logger.Warn("job queue unavailable, digests cannot be enqueued", err)
	} else {
		defer publisher.Close()
		dispatcher = publisher
	}

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(&echoapi.Options{
		Address:       conf.Server.Host,
		Debug:         conf.Debug,
		TestMode:      conf.TestMode,
		AppName:       conf.AppName,
		SecretKey:     conf.SecretKey,
		JWTExpiration: conf.Server.JWTExpirationDelta,
		Logger:        logger,
		Validate:      c.Validate,
		Translator:    c.Translator,
		Gatherer:      c.Registry,
		StatusCheck:   c.StatusCheck,
		Tenants:       c.Tenants,
		Users:         c.Users,
		Notifications: c.Notifications,
		Schedule:      c.Schedule,
		Digests:       c.Digests,
		Dispatcher:    dispatcher,
		RootURL:       conf.RootURL,
	})

	go server.Start()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Error(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Error(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}
