package main

import (
	"fmt"
	"net"

	"multisig-observer/src/config"
	datasource "multisig-observer/src/data_source"
	"multisig-observer/src/data_source/multisig"
	pb "multisig-observer/src/grpc_control"
	"multisig-observer/src/interfaces"
	"multisig-observer/src/logger"
	"multisig-observer/src/models"

	"google.golang.org/grpc"
)

// -----------------------------------------------------------------------------

// startServers orchestrates the startup of the relay and control servers.
// The returned function stops both.
func startServers(
	srv interfaces.IDataExchanger,
	manager *datasource.MultiSourceManager,
	deps multisig.Dependencies,
	config *config.Config,
	configPath string,
	appLogger *logger.Logger,
) func() {

	// 1. Relay server
	go func() {
		if err := srv.Start(); err != nil {
			appLogger.Error("Relay server failed: %v", err)
		}
	}()

	// 2. gRPC Control Server
	port := config.GrpcPort
	if port == 0 {
		port = 50051
	}
	lis, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		appLogger.Error("failed to listen for gRPC: %v", err)
		return func() { srv.Stop() }
	}

	grpcServer := grpc.NewServer()
	controlService := pb.NewControlService(config, manager, configPath, logger.NewLogger(config, "ControlService"),
		func(w models.MWatchConfig) interfaces.IDataSource {
			return multisig.NewMultisigSource(config.MConfig, w, deps)
		})
	controlService.Exchanger = srv
	pb.RegisterControlServer(grpcServer, controlService)

	go func() {
		appLogger.Info("Starting gRPC Control Server on %s", lis.Addr())
		if err := grpcServer.Serve(lis); err != nil {
			appLogger.Error("failed to serve gRPC: %v", err)
		}
	}()

	return func() {
		grpcServer.GracefulStop()
		srv.Stop()
	}
}
