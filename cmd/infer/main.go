// Command infer runs one batch inference cycle: it predicts the coming hours
// for every bidding area and energy source with a registered model, stores
// and exports the predictions, and publishes the forecast and hindcast
// charts.
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

	os.Exit(app.RunInference(ctx))
}
