// Command gateway is the token-gateway entrypoint: load configuration, wire
// the Credential Lifecycle Core and Token Allocation Core plus the HTTP
// surface into an internal/runtime.Runtime, and serve until an OS signal
// requests shutdown.
//
// Grounded on the teacher's examples/cli-assistant/main.go for the
// flag-parsing and os/signal.Notify idiom (SIGINT/SIGTERM into a buffered
// channel), and on pkg/backend.Server's
// ListenAndServeWithGracefulShutdown(shutdownSignal <-chan struct{}) shape
// for how that signal is handed off to the serving loop.
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/cecil-the-coder/token-gateway/internal/config"
	"github.com/cecil-the-coder/token-gateway/internal/gatewaylog"
	"github.com/cecil-the-coder/token-gateway/internal/runtime"
	"github.com/cecil-the-coder/token-gateway/pkg/apikey"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the gateway's YAML configuration file")
	flag.Parse()

	logger := gatewaylog.StdLogger{}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	keys := apikey.NewStore()

	rt, err := runtime.New(cfg, logger, keys)
	if err != nil {
		log.Fatalf("build runtime: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	shutdown := make(chan struct{})
	go func() {
		<-sigChan
		logger.Info("shutdown signal received")
		close(shutdown)
	}()

	if err := rt.Run(shutdown); err != nil {
		log.Fatalf("gateway stopped: %v", err)
	}
}
