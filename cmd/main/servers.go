package main

import (
	"context"
	"fmt"
	"net"

	"range-meter/src/config"
	pb "range-meter/src/grpc_control"
	"range-meter/src/logger"

	"google.golang.org/grpc"
)

// -----------------------------------------------------------------------------

// startServers orchestrates the startup of all server components
func startServers(ctx context.Context, c *components, cfg *config.Config, appLogger *logger.Logger) *grpc.Server {

	// 1. WebSocket / REST server
	go func() {
		if err := c.server.Start(ctx); err != nil {
			appLogger.Error("Server failed: %v", err)
		}
	}()

	// 2. gRPC Control Server
	if cfg.GrpcPort == 0 {
		appLogger.Info("gRPC control server disabled")
		return nil
	}

	lis, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.GrpcHost, cfg.GrpcPort))
	if err != nil {
		appLogger.Critical("failed to listen for gRPC: %v", err)
	}
	grpcServer := grpc.NewServer()
	controlService := pb.NewControlService(c.session, c.server, appLogger.Named("ControlService"))
	pb.RegisterControlServer(grpcServer, controlService)

	go func() {
		appLogger.Info("Starting gRPC Control Server on %s", lis.Addr())
		if err := grpcServer.Serve(lis); err != nil {
			appLogger.Error("gRPC server stopped: %v", err)
		}
	}()
	return grpcServer
}
