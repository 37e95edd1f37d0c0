package main

import (
	"context"
	"time"

	datasource "multisig-observer/src/data_source"
	"multisig-observer/src/interfaces"
	"multisig-observer/src/logger"
)

// performInitialLoad fetches every watch's snapshot and seeds the relay state
func performInitialLoad(
	manager *datasource.MultiSourceManager,
	srv interfaces.IDataExchanger,
	appLogger *logger.Logger,
) {
	appLogger.Info("Fetching initial data...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	loaded := manager.FetchInitialData(ctx)
	total := 0
	for _, requests := range loaded {
		total += len(requests)
	}

	for _, state := range manager.States() {
		srv.UpdateWatchState(state)
	}
	appLogger.Info("Initialization complete: %d requests across %d watches.", total, len(loaded))
}
