package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"multisig-observer/src/config"
	"multisig-observer/src/coordinator"
	datasource "multisig-observer/src/data_source"
	"multisig-observer/src/data_source/multisig"
	"multisig-observer/src/discovery"
	"multisig-observer/src/grpc_control"
	"multisig-observer/src/interfaces"
	"multisig-observer/src/logger"
	"multisig-observer/src/models"
	"multisig-observer/src/network"
	"multisig-observer/src/server"
	"multisig-observer/src/storage"
	"multisig-observer/src/stream"
	"multisig-observer/src/utils"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

const (
	initialLoadTimeout = 30 * time.Second
	stateRefresh       = time.Second
	cleanupInterval    = time.Hour
)

// -----------------------------------------------------------------------------

func main() {

	// Parse command line flags
	configPath := flag.String("config", "../../config/default.yaml", "path to config file")
	flag.Parse()

	// Load config from YAML file
	config, err := config.NewConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	if err := logger.Configure(config.LogLevel); err != nil {
		fmt.Printf("Error configuring logger: %v\n", err)
		os.Exit(1)
	}
	appLogger := logger.NewLogger(config, config.Name)

	// 1. Journal (optional)
	journal, err := storage.NewJournal(config.MConfig, logger.NewLogger(config, "Journal"))
	if err != nil {
		appLogger.Critical("Failed to open journal: %v", err)
	}
	expander, _ := journal.(interfaces.IAccountExpander)
	journalWriter := storage.NewJournalWriter(journal, logger.NewLogger(config, "JournalWriter"))

	// 2. Network
	networkManager := network.NewAsyncNetworkManager(config.MConfig, logger.NewLogger(config, "NetworkManager"))
	connectivity := network.NewConnectivityMonitor(
		config.Network.ProbeAddress,
		time.Duration(config.Network.ProbeIntervalSeconds)*time.Second,
		logger.NewLogger(config, "Connectivity"),
	)
	resolver := discovery.NewResolver(
		discovery.NewTomlFetcher(networkManager, config.Network.DiscoveryScheme),
		logger.NewLogger(config, "Resolver"),
	)
	transport := network.NewEventSourceTransport(networkManager.StreamClient(), config.Network.UserAgent, logger.NewLogger(config, "EventSource"))

	// 3. Sources
	book := utils.NewRequestBook(0)
	deps := multisig.Dependencies{
		Resolver:  resolver,
		Snapshots: coordinator.NewClient(networkManager),
		Stream: stream.Options{
			Transport:        transport,
			Connectivity:     connectivity,
			Policy:           stream.PolicyFromConfig(config.Stream),
			ErrorLogInterval: time.Duration(config.Stream.ErrorLogIntervalSeconds) * time.Second,
			EventBuffer:      config.Stream.EventBuffer,
		},
		Book:    book,
		Journal: journalWriter,
	}
	newSource := func(w models.MWatchConfig) interfaces.IDataSource {
		return multisig.NewMultisigSource(config.MConfig, w, deps)
	}

	var sources []interfaces.IDataSource
	for _, w := range config.Watches {
		if expander != nil {
			accounts, err := expander.ExpandAccounts(w.Name, w.Accounts)
			if err != nil {
				appLogger.Critical("Failed to expand accounts of %s: %v", w.Name, err)
			}
			w.Accounts = accounts
		}
		sources = append(sources, newSource(w))
		appLogger.Info("Added watch: %s with %d accounts", w.Name, len(w.Accounts))
	}
	manager := datasource.NewMultiSourceManager(sources, book, logger.NewLogger(config, "MultiSourceManager"))

	// 4. Relay server
	srv := server.NewRelayServer(config.MConfig, journal, logger.NewLogger(config, "RelayServer"))

	// 5. Initial snapshot
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appLogger.Info("Fetching initial data...")
	initCtx, cancelInit := context.WithTimeout(ctx, initialLoadTimeout)
	loaded := manager.FetchInitialData(initCtx)
	cancelInit()
	appLogger.Info("Initial snapshot loaded for %d of %d watches", len(loaded), len(sources))
	for _, state := range manager.States() {
		srv.UpdateWatchState(state)
	}

	// 6. Run everything until a signal or a fatal error
	g, gctx := errgroup.WithContext(ctx)

	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		return srv.Stop()
	})

	if config.GrpcPort != 0 {
		control := grpc_control.NewControlService(config, manager, *configPath, logger.NewLogger(config, "ControlService"), newSource)
		control.Expander = expander
		control.Exchanger = srv

		grpcServer := grpc.NewServer()
		grpc_control.RegisterControlServer(grpcServer, control)

		addr := net.JoinHostPort(config.GrpcHost, strconv.Itoa(config.GrpcPort))
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			appLogger.Critical("failed to listen for gRPC: %v", err)
		}
		g.Go(func() error {
			appLogger.Info("Starting gRPC Control Server on %s", addr)
			return grpcServer.Serve(lis)
		})
		g.Go(func() error {
			<-gctx.Done()
			grpcServer.GracefulStop()
			return nil
		})
	}

	g.Go(func() error {
		connectivity.Run(gctx)
		return nil
	})
	g.Go(func() error {
		journalWriter.Run(gctx)
		return nil
	})

	var sourcesWg sync.WaitGroup
	events := make(chan models.MWatchEvent, 500)
	if err := manager.Start(gctx, events, &sourcesWg); err != nil {
		appLogger.Critical("Failed to start sources: %v", err)
	}

	g.Go(func() error {
		appLogger.Info("Starting event loop...")
		ticker := time.NewTicker(stateRefresh)
		defer ticker.Stop()
		cleanup := time.NewTicker(cleanupInterval)
		defer cleanup.Stop()

		for {
			select {
			case <-gctx.Done():
				return nil

			case ev := <-events:
				if state, err := manager.State(ev.Watch); err == nil {
					srv.UpdateWatchState(state)
				}
				srv.Broadcast(ev)

			case <-ticker.C:
				// Stream states change without events.
				for _, state := range manager.States() {
					srv.UpdateWatchState(state)
				}

			case <-cleanup.C:
				if journal != nil {
					if err := journal.CleanupOldData(); err != nil {
						appLogger.Error("Journal cleanup failed: %v", err)
					}
				}
			}
		}
	})

	if err := g.Wait(); err != nil {
		appLogger.Error("Stopped with error: %v", err)
	}

	appLogger.Info("Shutting down...")
	manager.Stop()
	sourcesWg.Wait()
	if journal != nil {
		journal.Close()
	}
	appLogger.Info("Shutdown complete.")
}
