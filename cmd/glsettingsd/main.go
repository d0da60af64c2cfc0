// glsettingsd - Gray Logic settings daemon
//
// glsettingsd owns a node's settings registry. It loads the declared
// settings and their persisted state from SQLite, serves the binary
// settings protocol over MQTT and publishes every change. Optionally it
// serves an HTTP/WebSocket API and an operator console on stdin.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/gray-logic-settings/internal/api"
	"github.com/nerrad567/gray-logic-settings/internal/bridges/remote"
	"github.com/nerrad567/gray-logic-settings/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-settings/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-settings/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-settings/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-settings/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-settings/internal/node"
	"github.com/nerrad567/gray-logic-settings/internal/settings"
	"github.com/nerrad567/gray-logic-settings/internal/shell"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Cancel on Ctrl+C and SIGTERM for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting glsettingsd",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version).With("node", cfg.Node.ID)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database, schema and registry
	n, err := node.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing database")
		if closeErr := n.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	// Every registry call from here on goes through the queue
	queue := settings.NewQueue(cfg.Settings.QueueDepth)
	defer func() {
		log.Info("stopping registry queue")
		queue.Close()
	}()

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB, cfg.Node.ID)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Create the API server (optional). It starts once the change hook exists.
	var apiServer *api.Server
	var notify func(id uint16, key, source string)
	if cfg.API.Enabled {
		apiServer, err = api.New(api.Deps{
			Config:   cfg.API,
			Logger:   log,
			Registry: n.Registry,
			Queue:    queue,
			History:  n.ChangeLog,
			Version:  version,
		})
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		notify = apiServer.NotifyChange
	} else {
		log.Info("API disabled")
	}

	// Connect to MQTT and start the remote bridge (optional)
	var mqttClient *mqtt.Client
	var bridge *remote.Bridge
	var attribute api.AttributeFunc
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})

		bridge, err = startBridge(ctx, cfg, n, queue, mqttClient, influxClient, notify, log)
		if err != nil {
			return fmt.Errorf("starting remote bridge: %w", err)
		}
		attribute = bridge.WithSource
		defer func() {
			log.Info("stopping remote bridge")
			bridge.Stop()
			m := bridge.GetMetrics()
			log.Info("remote bridge totals",
				"commands", m.CommandsRx,
				"failed", m.CommandsFailed,
				"changes", m.ChangesTx)
		}()
	} else {
		log.Info("MQTT disabled, remote bridge not started")

		// Without the bridge a journal owns the change hook
		journal := node.NewJournal(ctx, n.ChangeLog, settings.ChangeSourceShell, log)
		if notify != nil {
			journal.Observe(notify)
		}
		if err := queue.Do(ctx, func(context.Context) error {
			n.Registry.SetGlobalChangeFunc(journal.Changed)
			return nil
		}); err != nil {
			return fmt.Errorf("installing change journal: %w", err)
		}
		attribute = journal.WithSource
	}

	if apiServer != nil {
		apiServer.SetAttribute(attribute)
		if err := apiServer.Start(ctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			log.Info("stopping API server")
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error stopping API server", "error", closeErr)
			}
		}()
	}

	// Verify all connections are healthy
	if err := healthCheck(ctx, n.DB, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	if cfg.Settings.Console {
		go runConsole(ctx, n, queue, attribute, log)
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order:
	// 1. API server (if enabled)
	// 2. Remote bridge
	// 3. MQTT
	// 4. InfluxDB (if enabled)
	// 5. Registry queue
	// 6. Database

	log.Info("glsettingsd stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses GLSETTINGS_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GLSETTINGS_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check (may be nil if disabled)
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if db == nil {
		return errors.New("database: not open")
	}
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}

// startBridge creates and starts the remote bridge.
func startBridge(ctx context.Context, cfg *config.Config, n *node.Node, queue *settings.Queue,
	mqttClient *mqtt.Client, influxClient *influxdb.Client,
	onChange func(id uint16, key, source string), log *logging.Logger,
) (*remote.Bridge, error) {
	opts := remote.Options{
		NodeID:             cfg.Node.ID,
		Registry:           n.Registry,
		Queue:              queue,
		MQTTClient:         mqttClient,
		QoS:                byte(cfg.MQTT.QoS), //nolint:gosec // validated to 0..2
		CommandTimeout:     cfg.GetCommandTimeout(),
		ResponseBufferSize: cfg.Settings.ResponseBuffer,
		ChangeLog:          n.ChangeLog,
		OnChange:           onChange,
		Logger:             log,
	}
	if influxClient != nil {
		opts.Recorder = influxClient
	}

	bridge, err := remote.NewBridge(opts)
	if err != nil {
		return nil, err
	}
	if err := bridge.Start(ctx); err != nil {
		return nil, err
	}
	return bridge, nil
}

// runConsole serves the operator shell on stdin until it is closed.
// Commands run on the registry queue and their changes are attributed to
// the console in the change log.
func runConsole(ctx context.Context, n *node.Node, queue *settings.Queue, attribute api.AttributeFunc, log *logging.Logger) {
	sh := shell.New(n.Registry, shell.WithHistory(n.ChangeLog))

	wrap := func(ctx context.Context, args []string, run func(ctx context.Context) error) error {
		return attribute(shell.Source(args), func() error { return run(ctx) })
	}

	log.Info("console started")
	if err := sh.Serve(ctx, os.Stdin, os.Stdout, queue, wrap); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("console stopped", "error", err)
		return
	}
	log.Info("console closed")
}
