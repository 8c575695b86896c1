// midea-bridge keeps Midea air conditioners and openHAB items in sync.
//
// Device values are polled from the Midea cloud and written to openHAB
// items named <prefix>_<device>_<property>; changes to read-write items in
// openHAB are applied to the units. Bridge health and mirrored values can
// optionally be published over MQTT and device snapshots written to
// InfluxDB.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/midea-bridge/internal/api"
	"github.com/nerrad567/midea-bridge/internal/bridges/midea"
	"github.com/nerrad567/midea-bridge/internal/infrastructure/config"
	"github.com/nerrad567/midea-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/midea-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/midea-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/midea-bridge/internal/metrics"
	cloud "github.com/nerrad567/midea-bridge/internal/midea"
	"github.com/nerrad567/midea-bridge/internal/openhab"
	"github.com/nerrad567/midea-bridge/internal/process"
)

// Version information, set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// dotEnvPath is read before the config file so secrets can live outside it.
const dotEnvPath = ".env"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run loads configuration and supervises serve until shutdown.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting midea-bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	if err := config.LoadDotEnv(dotEnvPath); err != nil {
		return err
	}
	configPath := config.Path()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"account", logging.MaskEmail(cfg.Midea.Email),
		"devices", len(cfg.Devices),
	)

	// Instruments outlive individual runs so counters survive restarts.
	m := metrics.New()

	sup := process.NewSupervisor(process.Config{
		Name:        logging.ServiceName,
		MaxAttempts: cfg.Restart.MaxAttempts,
		Cooldown:    config.Seconds(cfg.Restart.Cooldown),
	})
	sup.SetLogger(log.Component("supervisor"))

	err = sup.Run(ctx, func(ctx context.Context) error {
		return serve(ctx, cfg, m, sup, log)
	})
	log.Info("midea-bridge stopped")
	return err
}

// serve runs one complete bridge lifetime: it connects every collaborator,
// starts the bridge and blocks until ctx is cancelled. Startup failures are
// returned so the supervisor can retry.
func serve(ctx context.Context, cfg *config.Config, m *metrics.Metrics, sup *process.Supervisor, log *logging.Logger) error {
	cloudClient, err := cloud.NewClient(cloud.Config{
		AppKey:           cfg.Midea.AppKey,
		Email:            cfg.Midea.Email,
		Password:         cfg.Midea.Password,
		BaseURL:          cfg.Midea.BaseURL,
		ForcedLoginDelay: config.Seconds(cfg.Midea.ForcedLoginDelay),
		RequestTimeout:   config.Seconds(cfg.Midea.RequestTimeout),
		Metrics:          m,
	})
	if err != nil {
		return process.Permanent(fmt.Errorf("creating cloud client: %w", err))
	}
	cloudClient.SetLogger(log.Component("cloud"))

	hubCfg := openhab.Config{
		URL:            cfg.OpenHAB.URL,
		RequestTimeout: config.Seconds(cfg.OpenHAB.RequestTimeout),
	}
	hub, err := openhab.NewClient(hubCfg)
	if err != nil {
		return process.Permanent(fmt.Errorf("creating openHAB client: %w", err))
	}
	hub.SetLogger(log.Component("openhab"))

	events, err := openhab.NewEventStream(hubCfg)
	if err != nil {
		return process.Permanent(fmt.Errorf("creating openHAB event stream: %w", err))
	}
	events.SetLogger(log.Component("openhab"))

	if err := hub.HealthCheck(ctx); err != nil {
		log.Warn("openHAB not reachable yet", "url", cfg.OpenHAB.URL, "error", err)
	}

	bridgeID := cfg.MQTT.Broker.ClientID
	opts := midea.BridgeOptions{
		ID:             bridgeID,
		Version:        version,
		Devices:        bridgeDevices(cfg.Devices),
		HomeGroupID:    cfg.Midea.HomeGroupID,
		ItemPrefix:     cfg.OpenHAB.ItemPrefix,
		PollInterval:   config.Seconds(cfg.Sync.PollInterval),
		Tick:           config.Milliseconds(cfg.Sync.Tick),
		EventBackoff:   config.Seconds(cfg.Sync.EventBackoff),
		Cloud:          cloudClient,
		Hub:            hub,
		Events:         events,
		TopicPrefix:    cfg.MQTT.TopicPrefix,
		QoS:            byte(cfg.MQTT.QoS),
		HealthInterval: config.Seconds(cfg.MQTT.HealthInterval),
		Metrics:        m,
		Logger:         log.Component("bridge"),
	}
	apiDeps := api.Deps{
		Config:     cfg.API,
		Logger:     log.Component("api"),
		Hub:        hub,
		Cloud:      cloudClient,
		Metrics:    m,
		Version:    version,
		Supervisor: sup,
	}

	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = connectMQTT(cfg.MQTT, bridgeID, log)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		opts.MQTT = mqttClient
		apiDeps.MQTT = mqttClient
	} else {
		log.Info("MQTT disabled")
	}

	if cfg.InfluxDB.Enabled {
		influxClient, err := influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Warn("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
		opts.Telemetry = influxClient
		apiDeps.InfluxDB = influxClient
	} else {
		log.Info("InfluxDB disabled")
	}

	bridge, err := midea.NewBridge(opts)
	if err != nil {
		return process.Permanent(fmt.Errorf("creating bridge: %w", err))
	}
	if err := bridge.Start(ctx); err != nil {
		bridge.Stop()
		return fmt.Errorf("starting bridge: %w", err)
	}
	defer func() {
		log.Info("stopping bridge")
		bridge.Stop()
	}()

	if mqttClient != nil {
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
			if err := bridge.PublishHealth(); err != nil {
				log.Warn("failed to republish health", "error", err)
			}
		})
	}

	if cfg.API.Enabled {
		apiDeps.Bridge = bridge
		server, err := api.New(apiDeps)
		if err != nil {
			return process.Permanent(fmt.Errorf("creating API server: %w", err))
		}
		if err := server.Start(ctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")
	return nil
}

// connectMQTT connects with the bridge's health topic as last will.
func connectMQTT(cfg config.MQTTConfig, bridgeID string, log *logging.Logger) (*mqtt.Client, error) {
	topic, payload, err := midea.LastWill(bridgeID, cfg.TopicPrefix)
	if err != nil {
		return nil, fmt.Errorf("building MQTT last will: %w", err)
	}

	client, err := mqtt.Connect(cfg, &mqtt.Will{Topic: topic, Payload: payload, QoS: byte(cfg.QoS)})
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	client.SetLogger(log.Component("mqtt"))
	client.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected", "broker", mqtt.BrokerURL(cfg), "client_id", cfg.Broker.ClientID)
	return client, nil
}

func bridgeDevices(devices []config.DeviceConfig) []midea.DeviceConfig {
	out := make([]midea.DeviceConfig, len(devices))
	for i, d := range devices {
		out[i] = midea.DeviceConfig{Name: d.Name, ID: d.ID, IP: d.IP, Port: d.Port}
	}
	return out
}
