// Tilt Logic Core - Pinball Show Engine
//
// This is the main entry point for the Tilt Logic Core application.
// It drives timed light, LED, coil, and flasher shows on a pinball
// machine: a single control loop compiles show timelines, arbitrates
// device ownership between concurrent shows, and publishes the
// resulting device writes over MQTT.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/tiltlogic/tiltlogic-core/migrations"

	"github.com/tiltlogic/tiltlogic-core/internal/api"
	"github.com/tiltlogic/tiltlogic-core/internal/device"
	"github.com/tiltlogic/tiltlogic-core/internal/infrastructure/config"
	"github.com/tiltlogic/tiltlogic-core/internal/infrastructure/database"
	"github.com/tiltlogic/tiltlogic-core/internal/infrastructure/logging"
	"github.com/tiltlogic/tiltlogic-core/internal/infrastructure/mqtt"
	"github.com/tiltlogic/tiltlogic-core/internal/infrastructure/telemetry"
	"github.com/tiltlogic/tiltlogic-core/internal/show"
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
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
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
	log.Info("starting Tilt Logic Core",
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
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Load the machine's device registry
	registry, err := loadRegistry(cfg.Machine.DevicesFile)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}
	log.Info("device registry loaded",
		"path", cfg.Machine.DevicesFile,
		"devices", registry.Count(),
	)

	// Connect to MQTT broker
	mqttClient := mqtt.NewClient(cfg.MQTT)
	mqttClient.SetLogger(log)
	if err := mqttClient.Connect(); err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		mqttClient.Disconnect()
	}()
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Connect to InfluxDB (optional)
	var telemetryClient *telemetry.Client
	var tickRecorder show.TickRecorder
	if cfg.Telemetry.Enabled {
		telemetryClient, err = telemetry.Connect(cfg.Telemetry)
		if err != nil {
			return fmt.Errorf("connecting telemetry: %w", err)
		}
		defer func() {
			log.Info("closing telemetry connection")
			if closeErr := telemetryClient.Close(); closeErr != nil {
				log.Error("error closing telemetry", "error", closeErr)
			}
		}()
		telemetryClient.SetOnError(func(err error) {
			log.Error("telemetry write error", "error", err)
		})
		tickRecorder = &tickTelemetry{client: telemetryClient, machineID: cfg.Machine.ID}
		log.Info("telemetry connected",
			"url", cfg.Telemetry.URL,
			"org", cfg.Telemetry.Org,
			"bucket", cfg.Telemetry.Bucket,
		)
	} else {
		log.Info("telemetry disabled")
	}

	// Build the show engine
	//nolint:gosec // QoS validated to 0..2 by config
	qos := byte(cfg.MQTT.QoS)
	topics := mqtt.Topics{}
	metrics := api.NewMetrics()
	players := show.NewPlayers(registry, log)
	repo := show.NewRepository(db.DB)

	var events show.EventSink = &mqttEvents{client: mqttClient, topics: topics, qos: qos, log: log}
	if telemetryClient != nil {
		events = &telemetryEvents{next: events, client: telemetryClient, machineID: cfg.Machine.ID}
	}

	controller := show.NewController(show.ControllerOptions{
		Logger:        log,
		Registry:      registry,
		Players:       players,
		Output:        &mqttOutput{client: mqttClient, topics: topics, qos: qos, log: log},
		Events:        events,
		Recorder:      repo,
		Metrics:       metrics,
		Telemetry:     tickRecorder,
		DefaultSyncMS: cfg.Shows.DefaultSyncMS,
	})

	library := show.NewLibrary(controller, cfg.Shows.Dir, cfg.Shows.Version, players, log)
	if err := library.LoadAll(); err != nil {
		return fmt.Errorf("loading shows: %w", err)
	}
	log.Info("show library loaded", "dir", cfg.Shows.Dir, "shows", library.Count())

	playlists, err := buildPlaylists(cfg.Playlists, library, controller, log)
	if err != nil {
		return fmt.Errorf("building playlists: %w", err)
	}
	if len(playlists) > 0 {
		log.Info("playlists configured", "count", len(playlists))
	}

	// Route external show commands from the media controller into the
	// control loop.
	bridge := &showCommandBridge{controller: controller, log: log}
	if err := mqttClient.Subscribe(topics.AllShowCommands(), qos, bridge.handle); err != nil {
		return fmt.Errorf("subscribing to show commands: %w", err)
	}
	log.Info("external show commands subscribed", "topic", topics.AllShowCommands())

	// Start the HTTP API
	server, err := api.New(api.Deps{
		Config:     cfg.API,
		Logger:     log,
		Controller: controller,
		Library:    library,
		Playlists:  playlists,
		Repository: repo,
		MQTT:       mqttClient,
		Metrics:    metrics,
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, starting control loop",
		"frame_rate", cfg.Shows.FrameRate,
	)

	// The control loop blocks until the shutdown signal arrives.
	controller.Run(ctx, cfg.FrameInterval())

	log.Info("shutdown signal received, cleaning up")
	log.Info("Tilt Logic Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses TILTLOGIC_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("TILTLOGIC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// buildPlaylists assembles the configured playlists against the loaded
// show library. A playlist referencing a show that is not loaded is a
// configuration error.
func buildPlaylists(cfgs map[string]config.PlaylistConfig, library *show.Library, c *show.Controller, log *logging.Logger) (map[string]*show.Playlist, error) {
	playlists := make(map[string]*show.Playlist, len(cfgs))
	for name, pc := range cfgs {
		pl := show.NewPlaylist(name, c, log)
		for i, stepCfg := range pc.Steps {
			stepNum := i + 1
			for _, sc := range stepCfg.Shows {
				sh, ok := library.Get(sc.Show)
				if !ok {
					return nil, fmt.Errorf("playlist %q references unknown show %q", name, sc.Show)
				}
				pl.AddShow(stepNum, show.PlaylistEntry{
					Show:   sh,
					Loops:  sc.Loops,
					Speed:  sc.Speed,
					Blend:  sc.Blend,
					Repeat: sc.Repeat,
				})
			}
			pl.StepSettings(stepNum, show.StepSettings{
				Time:        time.Duration(stepCfg.TimeMS) * time.Millisecond,
				TriggerShow: stepCfg.TriggerShow,
				Hold:        stepCfg.Hold,
			})
		}
		playlists[name] = pl
	}
	return playlists, nil
}

// loadRegistry reads the machine's devices file into a registry.
func loadRegistry(path string) (*device.Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading devices file: %w", err)
	}

	registry := device.NewRegistry()
	if err := registry.LoadYAML(data); err != nil {
		return nil, err
	}
	return registry, nil
}

// deviceSet is the JSON payload published for one device write.
type deviceSet struct {
	Value  string `json:"value"`
	FadeMS int    `json:"fade_ms,omitempty"`
}

// mqttOutput publishes device writes from the control loop to the
// hardware driver's command topics.
type mqttOutput struct {
	client *mqtt.Client
	topics mqtt.Topics
	qos    byte
	log    *logging.Logger
}

// Set implements show.Output.
func (o *mqttOutput) Set(class device.Class, name, value string, fadeMS int) {
	payload, err := json.Marshal(deviceSet{Value: value, FadeMS: fadeMS})
	if err != nil {
		return
	}
	if err := o.client.Publish(o.topics.Device(string(class), name), payload, o.qos, false); err != nil {
		o.log.Warn("device publish failed", "class", class, "device", name, "error", err)
	}
}

// mqttEvents publishes show lifecycle events and triggers.
type mqttEvents struct {
	client *mqtt.Client
	topics mqtt.Topics
	qos    byte
	log    *logging.Logger
}

// Event implements show.EventSink.
func (e *mqttEvents) Event(name string, args map[string]any) {
	e.publish(e.topics.Event(name), name, args)
}

// Trigger implements show.EventSink.
func (e *mqttEvents) Trigger(name string, args map[string]any) {
	e.publish(e.topics.Trigger(name), name, args)
}

func (e *mqttEvents) publish(topic, name string, args map[string]any) {
	if args == nil {
		args = map[string]any{}
	}
	payload, err := json.Marshal(args)
	if err != nil {
		return
	}
	if err := e.client.Publish(topic, payload, e.qos, false); err != nil {
		e.log.Warn("event publish failed", "event", name, "error", err)
	}
}

// tickTelemetry adapts the telemetry client to show.TickRecorder.
type tickTelemetry struct {
	client    *telemetry.Client
	machineID string
}

// RecordTick implements show.TickRecorder.
func (t *tickTelemetry) RecordTick(stats show.TickStats) {
	t.client.WriteTickStats(t.machineID, stats.At, stats.Instances, stats.Applied, stats.Dropped)
}

// showEventWriter is the slice of the telemetry client the event
// decorator needs.
type showEventWriter interface {
	WriteShowEvent(machineID, showName, event string)
}

// telemetryEvents decorates an event sink, mirroring show lifecycle
// events into the telemetry store alongside the MQTT publish.
type telemetryEvents struct {
	next      show.EventSink
	client    showEventWriter
	machineID string
}

// Event implements show.EventSink.
func (e *telemetryEvents) Event(name string, args map[string]any) {
	e.next.Event(name, args)
	switch name {
	case "show_played", "show_looped", "show_stopped":
		if showName, ok := args["show"].(string); ok {
			e.client.WriteShowEvent(e.machineID, showName, name)
		}
	}
}

// Trigger implements show.EventSink.
func (e *telemetryEvents) Trigger(name string, args map[string]any) {
	e.next.Trigger(name, args)
}

// externalStartPayload is the JSON body of a show start command.
type externalStartPayload struct {
	Priority int                 `json:"priority"`
	Blend    bool                `json:"blend"`
	Devices  map[string][]string `json:"devices"`
}

// externalFramePayload is the JSON body of a show frame command.
type externalFramePayload struct {
	Frames map[string]string `json:"frames"`
	Events []string          `json:"events"`
}

// showCommandBridge routes inbound tiltlogic/show/+/+ messages from the
// media controller into the show controller's external command queue.
type showCommandBridge struct {
	controller *show.Controller
	log        *logging.Logger
}

// handle parses one show command message. Malformed messages are logged
// and dropped; returning an error here would only re-log them.
func (b *showCommandBridge) handle(topic string, payload []byte) error {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 {
		b.log.Warn("unexpected show command topic", "topic", topic)
		return nil
	}
	name, action := parts[2], parts[3]

	switch action {
	case "start":
		var p externalStartPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			b.log.Warn("invalid show start payload", "show", name, "error", err)
			return nil
		}
		devices := make(map[device.Class][]string, len(p.Devices))
		for class, names := range p.Devices {
			devices[device.Class(class)] = names
		}
		b.controller.ExternalStart(name, p.Priority, p.Blend, devices)

	case "stop":
		b.controller.ExternalStop(name)

	case "frame":
		var p externalFramePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			b.log.Warn("invalid show frame payload", "show", name, "error", err)
			return nil
		}
		frames := make(map[device.Class]string, len(p.Frames))
		for class, chunk := range p.Frames {
			frames[device.Class(class)] = chunk
		}
		b.controller.ExternalFrame(name, frames, p.Events)

	default:
		b.log.Warn("unknown show command", "show", name, "action", action)
	}

	return nil
}
