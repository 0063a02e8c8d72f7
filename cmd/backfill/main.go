// Command backfill ingests the historical training window for every
// configured bidding area and regenerates hindcast predictions for sources
// with a registered model.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/tigerroll/gridcast/internal/app"
	"github.com/tigerroll/gridcast/internal/support/logger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Warnf("Received signal '%v'. Attempting to stop the run...", sig)
		cancel()
	}()

	os.Exit(app.RunBackfill(ctx))
}
