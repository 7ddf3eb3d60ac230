// Package main provides the journal integrity verification command.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/brightbook/eventcore/internal/platform/config"
	"github.com/brightbook/eventcore/internal/platform/otel"
	"github.com/brightbook/eventcore/internal/tools/journalverify"
)

func main() {
	cfg, err := journalverify.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("Error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := otel.Setup(ctx, "journal-verify")
	if err != nil {
		log.Printf("otel setup: %v", err)
	} else {
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				log.Printf("otel shutdown: %v", err)
			}
		}()
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	if err := journalverify.Run(ctx, cfg, os.Stdout); err != nil {
		config.Exitf("Error: %v", err)
	}
}
