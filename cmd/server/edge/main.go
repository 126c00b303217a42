package main

// cSpell:ignore mqtt modbus machineid
import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/denisbrodbeck/machineid"

	"github.com/fisaks/rfedge/internal/api"
	"github.com/fisaks/rfedge/internal/catalog"
	"github.com/fisaks/rfedge/internal/config"
	"github.com/fisaks/rfedge/internal/control"
	"github.com/fisaks/rfedge/internal/dispatch"
	"github.com/fisaks/rfedge/internal/gpio"
	"github.com/fisaks/rfedge/internal/logging"
	"github.com/fisaks/rfedge/internal/messaging"
	"github.com/fisaks/rfedge/internal/modbus"
	"github.com/fisaks/rfedge/internal/registry"
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func defaultEdgeName() string {
	id, err := machineid.ProtectedID("rfedge")
	if err != nil {
		logging.Warn("No machine id, using default edge name", "error", err)
		return "edge1"
	}
	return id[:12]
}

func main() {
	if err := run(); err != nil {
		logging.Fatal("Edge stopped", "error", err)
	}
	logging.Info("bye")
}

func run() error {
	path := getenv("RF_CONFIG_PATH", "/etc/rfedge/edge-config.json")
	mqttURL := os.Getenv("MQTT_URL")
	edgeName := os.Getenv("EDGE_NAME")
	if edgeName == "" {
		edgeName = defaultEdgeName()
	}

	cfg, err := config.LoadEdgeConfig(path)
	if err != nil {
		return fmt.Errorf("edge config %s: %w", path, err)
	}
	logging.Info("Loaded config",
		"nexa", len(cfg.Nexa),
		"rollo", len(cfg.Rollo),
		"buses", len(cfg.Buses),
		"devices", len(cfg.Devices),
	)

	// Graceful shutdown context
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pin, err := gpio.Open(cfg.GPIO.Driver, cfg.GPIO.Pin)
	if err != nil {
		return fmt.Errorf("gpio %s pin %d: %w", cfg.GPIO.Driver, cfg.GPIO.Pin, err)
	}
	line := gpio.NewOutputLine(pin, nil)
	defer func() {
		if err := line.Close(); err != nil {
			logging.Error("GPIO release failed", "error", err)
		}
	}()

	var relays dispatch.RelaySwitcher
	if len(cfg.Buses) > 0 {
		r, err := modbus.NewRelays(cfg.Buses)
		if err != nil {
			return fmt.Errorf("modbus init: %w", err)
		}
		defer r.Close()
		relays = r
	}

	dispatcher, err := dispatch.FromConfig(cfg, line, relays)
	if err != nil {
		return fmt.Errorf("device setup: %w", err)
	}

	var repo *registry.Repo
	var devices api.DeviceLister
	var ctrlRepo control.Repository
	if cfg.DatabasePath != "" {
		repo, err = registry.Open(cfg.DatabasePath)
		if err != nil {
			return fmt.Errorf("registry open: %w", err)
		}
		defer repo.Close()
		if err := repo.EnsureCreated(ctx); err != nil {
			return fmt.Errorf("registry init %s: %w", cfg.DatabasePath, err)
		}
		devices, ctrlRepo = repo, repo
	}

	controller := control.NewController(dispatcher, ctrlRepo, nil)
	defer controller.Stop()

	if mqttURL != "" {
		edgeBroker := messaging.NewEdgeBroker(messaging.BrokerConfig{
			BrokerURL:        mqttURL,
			ClientName:       edgeName,
			TopicPrefix:      "rfedge/" + edgeName,
			ConnectTimeout:   10 * time.Second,
			PublishTimeout:   5 * time.Second,
			SubscribeTimeout: 5 * time.Second,
		}, catalog.NewEdgeCatalog(cfg, dispatcher).OnConnectPublish, time.Duration(cfg.HeartbeatInterval)*time.Second)

		if err := edgeBroker.Connect(ctx); err != nil {
			logging.Warn("MQTT not connected yet, retrying in background", "broker", mqttURL, "error", err)
		}
		defer edgeBroker.Close(context.Background())

		controller.SetPublisher(edgeBroker)
		if err := edgeBroker.StartEdgeSubscriber(ctx, controller); err != nil {
			logging.Error("MQTT subscribe failed", "error", err)
		}
	}

	if cfg.ResyncIntervalSec > 0 {
		controller.StartResync(ctx, cfg.ResyncInterval())
	}

	server := api.NewServer(controller, devices, cfg.HTTP.StaticDir)
	go func() {
		if err := server.ListenAndServe(ctx, cfg.HTTP.Addr); err != nil {
			logging.Error("HTTP server stopped", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logging.Info("Shutting down")
	return nil
}
