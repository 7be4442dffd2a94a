package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"commitflow/pkg/app"
	"commitflow/pkg/config"
	"commitflow/pkg/rpc"
	"commitflow/pkg/server"

	"github.com/spf13/viper"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	// 1. Load Config
	cfgFile := flag.String("config", "", "config file (default is $HOME/.cf/config.yaml)")
	addr := flag.String("addr", "", "listen address (overrides server.addr)")
	flag.Parse()

	if err := config.Load(*cfgFile); err != nil {
		log.Fatalf("❌ Config error: %v", err)
	}
	if *addr != "" {
		viper.Set("server.addr", *addr)
	}
	// 服务端自己就是后端，忽略客户端用的 remote
	viper.Set("remote", "")

	// 2. Init Core Application
	application, err := app.NewApp(context.Background())
	if err != nil {
		log.Fatalf("❌ Failed to initialize app: %v", err)
	}
	defer application.Close()
	fmt.Printf("✅ commitflow core initialized (backend: %s)\n", viper.GetString("backend.type"))

	// 3. Setup Network
	listen := viper.GetString("server.addr")
	lis, err := net.Listen("tcp", listen)
	if err != nil {
		log.Fatalf("❌ Failed to listen on %s: %v", listen, err)
	}

	// 4. Setup gRPC Server (CommitService + health + reflection)
	// pipeline.timeout 约束每一次提交，不依赖客户端是否带 deadline
	grpcServer, healthServer := server.New(application.Pipeline, application.Logger,
		rpc.WithTimeout(viper.GetDuration("pipeline.timeout")))

	// 5. Start Server (Async)
	go func() {
		fmt.Printf("🚀 gRPC Server listening on %s...\n", lis.Addr())
		if err := grpcServer.Serve(lis); err != nil {
			log.Fatalf("❌ Failed to serve: %v", err)
		}
	}()

	// 6. Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	fmt.Println("\n⚠️  Shutting down server...")
	healthServer.SetServingStatus(rpc.ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	grpcServer.GracefulStop()
	fmt.Println("👋 Server stopped.")
}
