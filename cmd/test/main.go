package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"multisig-observer/src/config"
	"multisig-observer/src/coordinatorstub"
	"multisig-observer/src/logger"
	"multisig-observer/src/models"
	"multisig-observer/src/server"
	"multisig-observer/src/storage"
)

// Local harness: runs the observer against an in-process coordinator that
// publishes synthetic signature requests.
func main() {
	// 1. Parse command line flags
	configPath := flag.String("config", "../../config/default.yaml", "path to config file")
	interval := flag.Duration("interval", 2*time.Second, "time between coordinator events")
	outage := flag.Duration("outage", 0, "drop every coordinator stream this often (0 disables)")
	duration := flag.Duration("duration", 0, "stop after this long (0 runs until interrupted)")
	flag.Parse()

	// 2. Load config
	conf, err := config.NewConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Configure(conf.LogLevel); err != nil {
		fmt.Printf("Error configuring logger: %v\n", err)
		os.Exit(1)
	}

	// 3. Setup Logger
	appLogger := logger.NewLogger(conf, conf.Name+"-harness")

	// 4. Coordinator stub on a free local port
	stub := coordinatorstub.New(logger.NewLogger(conf, "CoordinatorStub"))
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		appLogger.Critical("Failed to listen for the coordinator stub: %v", err)
	}
	stubURL := "http://" + lis.Addr().String()
	stub.SetBaseURL(stubURL)
	stubServer := &http.Server{Handler: stub.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go stubServer.Serve(lis)
	defer stubServer.Close()
	appLogger.Info("Coordinator stub listening on %s", stubURL)

	pointWatchesAt(conf.MConfig, lis.Addr().String())

	// 5. Setup Components
	journal, err := setupJournal(conf.MConfig, appLogger)
	if err != nil {
		os.Exit(1)
	}
	connectivity, deps := setupNetwork(conf.MConfig)
	deps.Journal = storage.NewJournalWriter(journal, logger.NewLogger(conf, "JournalWriter"))
	manager := setupDataSources(conf.MConfig, deps, appLogger)
	srv := server.NewRelayServer(conf.MConfig, journal, logger.NewLogger(conf, "RelayServer"))

	// 6. Bootstrap (Initial Load)
	performInitialLoad(manager, srv, appLogger)

	// 7. Start Servers (the harness never saves its rewritten config)
	stopServers := startServers(srv, manager, deps, conf, "", appLogger)
	defer stopServers()

	// 8. Lifecycle Management
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if *duration > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), *duration)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	defer cancel()

	var wg sync.WaitGroup
	events := make(chan models.MWatchEvent, 500)

	go connectivity.Run(ctx)
	go deps.Journal.Run(ctx)

	pub := &publisher{stub: stub, accounts: allAccounts(conf.MConfig), logger: logger.NewLogger(conf, "Publisher")}
	go pub.run(ctx, *interval, *outage)

	if err := manager.Start(ctx, events, &wg); err != nil {
		appLogger.Critical("Failed to start watches: %v", err)
	}

	defer func() {
		appLogger.Info("Waiting for watches to stop...")
		cancel()
		manager.Stop()
		wg.Wait()
		if journal != nil {
			journal.Close()
		}
		appLogger.Info("Shutdown complete.")
	}()

	// 9. Run Loop (Blocking)
	runEventLoop(ctx, events, manager, srv, journal, appLogger)
}

// pointWatchesAt sends every watch to the stub through discovery and turns
// the connectivity probe off. A config without watches gets two demo watches.
func pointWatchesAt(cfg *models.MConfig, host string) {
	cfg.Network.DiscoveryScheme = "http"
	cfg.Network.ProbeAddress = ""
	if len(cfg.Watches) == 0 {
		cfg.Watches = []models.MWatchConfig{
			{Name: "treasury", Accounts: []string{"GTREASURYDEMO1", "GTREASURYDEMO2"}},
			{Name: "operations", Accounts: []string{"GOPERATIONSDEMO"}},
		}
	}
	for i := range cfg.Watches {
		cfg.Watches[i].Domain = host
		cfg.Watches[i].ServiceURL = ""
	}
}

func allAccounts(cfg *models.MConfig) []string {
	var out []string
	for _, w := range cfg.Watches {
		for _, a := range w.Accounts {
			if !strings.HasPrefix(a, "@") {
				out = append(out, a)
			}
		}
	}
	return out
}
