package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/withObsrvr/binder-annotator/internal/batch"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.Printf("[main] binder-annotator %s (%s)", batch.Version, batch.GitSHA)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown handler
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		sig := <-ch
		log.Printf("[shutdown] received signal: %v", sig)
		cancel()
	}()

	app := newCLIApp()
	if err := app.RunContext(ctx, os.Args); err != nil {
		if ctx.Err() != nil {
			log.Printf("[main] shutdown complete")
			os.Exit(130)
		}
		log.Fatalf("[main] %v", err)
	}
}
