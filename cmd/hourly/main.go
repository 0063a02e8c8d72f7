// Command hourly runs one scheduled ingestion cycle: recent weather archive,
// the forecast window and the actual generation outcomes of every configured
// bidding area.
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

	os.Exit(app.RunHourly(ctx))
}
