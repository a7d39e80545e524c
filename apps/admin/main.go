package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/bytedeck/deck/apps/di"
	"github.com/bytedeck/deck/core"
)

func main() {
	stdLogger := log.New(os.Stderr, "ADMIN : ", log.LstdFlags|log.Lmicroseconds)
	conf := core.NewConfig()

	logger, err := di.NewLogger(conf)
	if err != nil {
		stdLogger.Fatalf("setting up logger: %v", err)
	}

	// set up DB
	db, err := di.SetUpDB(conf)
	if err != nil {
		stdLogger.Fatalf("setting up database: %v", err)
	}
	c := di.New(conf, logger, db)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	// start CLI
	cli := commandLine{
		conf:    conf,
		tenants: c.Tenants,
		users:   c.Users,
		digests: c.DigestTask(),
		out:     os.Stdout,
	}
	err = cli.run(ctx, os.Args)
	stop()
	c.Close()
	if err != nil {
		if err != errHelp {
			stdLogger.Printf("error: %v", err)
		}
		os.Exit(1)
	}
}
