package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/fisaks/rfedge/internal/config"
	"github.com/fisaks/rfedge/internal/logging"
)

// Simulates the RTU relay boards named by the relay devices in the edge
// config, one simulator per serial bus, plus a REST API to inspect and
// flip the relays.
func main() {
	configPath := os.Getenv("SIM_CONFIG_PATH")
	if configPath == "" {
		configPath = os.Getenv("RF_CONFIG_PATH")
	}
	if configPath == "" {
		logging.Fatal("SIM_CONFIG_PATH not set")
	}
	edgeConfig, err := config.LoadEdgeConfig(configPath)
	if err != nil {
		logging.Fatal("Edge config error", "error", err)
	}

	if err := StartRTUSim(edgeConfig); err != nil {
		logging.Fatal("Simulator start failed", "error", err)
	}

	addr := os.Getenv("SIM_REST_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	go func() {
		if err := StartRestAPI(addr); err != nil {
			logging.Fatal("REST API failed", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	logging.Info("Shutting down", "signal", <-sigCh)
}
