package main

import (
	"time"

	"multisig-observer/src/coordinator"
	datasource "multisig-observer/src/data_source"
	"multisig-observer/src/data_source/multisig"
	"multisig-observer/src/discovery"
	"multisig-observer/src/interfaces"
	"multisig-observer/src/logger"
	"multisig-observer/src/models"
	"multisig-observer/src/network"
	"multisig-observer/src/storage"
	"multisig-observer/src/stream"
	"multisig-observer/src/utils"
)

// -----------------------------------------------------------------------------

// setupJournal opens the diagnostics journal, nil when disabled
func setupJournal(config *models.MConfig, appLogger *logger.Logger) (interfaces.IJournal, error) {
	journal, err := storage.NewJournal(config, logger.NewLogger(config, "Journal"))
	if err != nil {
		appLogger.Error("Failed to open journal: %v", err)
		return nil, err
	}
	return journal, nil
}

// -----------------------------------------------------------------------------

// setupNetwork builds the shared stream dependencies
func setupNetwork(config *models.MConfig) (*network.ConnectivityMonitor, multisig.Dependencies) {
	networkManager := network.NewAsyncNetworkManager(config, logger.NewLogger(config, "NetworkManager"))
	connectivity := network.NewConnectivityMonitor(
		config.Network.ProbeAddress,
		time.Duration(config.Network.ProbeIntervalSeconds)*time.Second,
		logger.NewLogger(config, "Connectivity"),
	)

	deps := multisig.Dependencies{
		Resolver: discovery.NewResolver(
			discovery.NewTomlFetcher(networkManager, config.Network.DiscoveryScheme),
			logger.NewLogger(config, "Resolver"),
		),
		Snapshots: coordinator.NewClient(networkManager),
		Stream: stream.Options{
			Transport:        network.NewEventSourceTransport(networkManager.StreamClient(), config.Network.UserAgent, logger.NewLogger(config, "EventSource")),
			Connectivity:     connectivity,
			Policy:           stream.PolicyFromConfig(config.Stream),
			ErrorLogInterval: time.Duration(config.Stream.ErrorLogIntervalSeconds) * time.Second,
			EventBuffer:      config.Stream.EventBuffer,
		},
		Book: utils.NewRequestBook(0),
	}
	return connectivity, deps
}

// -----------------------------------------------------------------------------

// setupDataSources creates one source per watch and wraps them in a manager
func setupDataSources(config *models.MConfig, deps multisig.Dependencies, appLogger *logger.Logger) *datasource.MultiSourceManager {
	var sources []interfaces.IDataSource
	appLogger.Info("Initializing watches...")

	for _, w := range config.Watches {
		sources = append(sources, multisig.NewMultisigSource(config, w, deps))
		appLogger.Info("Added watch: %s with %d accounts", w.Name, len(w.Accounts))
	}

	appLogger.Info("Initializing MultiSourceManager for %d watches.", len(sources))
	return datasource.NewMultiSourceManager(sources, deps.Book, logger.NewLogger(config, "MultiSourceManager"))
}
