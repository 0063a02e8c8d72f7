// Command train fits and registers one gradient-boosted model per bidding
// area and energy source from the stored history.
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

	os.Exit(app.RunTraining(ctx))
}
