package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	datasource "multisig-observer/src/data_source"
	"multisig-observer/src/interfaces"
	"multisig-observer/src/logger"
	"multisig-observer/src/models"
)

// -----------------------------------------------------------------------------

// runEventLoop relays source events until a signal or ctx ends it
func runEventLoop(
	ctx context.Context,
	events <-chan models.MWatchEvent,
	manager *datasource.MultiSourceManager,
	srv interfaces.IDataExchanger,
	journal interfaces.IJournal,
	appLogger *logger.Logger,
) {

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	appLogger.Info("Starting event loop (Push Model)...")
	received := 0

	for {
		select {
		case ev := <-events:
			received++
			if ev.IsSnapshot() {
				appLogger.Info("[%s] snapshot with %d requests", ev.Watch, len(ev.Snapshot))
			} else {
				appLogger.Info("[%s] %s %s (%s)", ev.Watch, ev.Event.Kind, ev.Event.SignatureRequest.Hash, ev.Event.SignatureRequest.Status)
			}

			if state, err := manager.State(ev.Watch); err == nil {
				srv.UpdateWatchState(state)
			}
			srv.Broadcast(ev)

		case <-ticker.C:
			for _, state := range manager.States() {
				srv.UpdateWatchState(state)
			}

		case <-ctx.Done():
			appLogger.Info("Harness finished after %d events", received)
			return

		case <-quit:
			appLogger.Info("Shutting down...")
			if journal != nil {
				journal.CleanupOldData()
			}
			return
		}
	}
}
