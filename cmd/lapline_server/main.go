package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/lapline/lapline/internal/api"
	"github.com/lapline/lapline/internal/cache"
	"github.com/lapline/lapline/internal/config"
	"github.com/lapline/lapline/internal/database"
	"github.com/lapline/lapline/internal/dispatcher"
	"github.com/lapline/lapline/internal/influx"
	"github.com/lapline/lapline/internal/logging"
	"github.com/lapline/lapline/internal/model"
	"github.com/lapline/lapline/internal/monitor"
	intOtel "github.com/lapline/lapline/internal/otel"
	"github.com/lapline/lapline/internal/parser"
	"github.com/lapline/lapline/internal/server"
	"github.com/lapline/lapline/internal/session"
	"github.com/lapline/lapline/internal/storage"
	"github.com/lapline/lapline/internal/storage/postgres"
	"github.com/lapline/lapline/internal/util"
	"github.com/lapline/lapline/internal/worker"
	"github.com/lapline/lapline/pkg/core"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"gorm.io/gorm"
)

// module defs - BuildDate can be set at build time via ldflags
var (
	Version   string = "0.0.1"
	BuildDate string = "unknown"

	ServerName string = "lapline_server"
)

// file paths
var (
	// ConfigDir is where lapline.cfg.json is looked up. Defaults to the
	// working directory, overridable via LAPLINE_CONFIG_DIR for packaged
	// installs. SQLite dumps land here too.
	ConfigDir string = "."

	LogFilePath string
	LogFile     *os.File
)

// global variables
var (
	// SlogManager handles all slog-based logging
	SlogManager *logging.SlogManager

	// Logger is the slog logger (convenience reference)
	Logger *slog.Logger

	// OTelProvider handles OpenTelemetry
	OTelProvider *intOtel.Provider

	SessionStartTime time.Time = time.Now()

	// registry caches entities, teams and checkpoints for the active session
	registry *cache.Registry = cache.NewRegistry()

	sessionCtx *session.Context = session.NewContext()

	// Services
	feedParser      *parser.Parser
	eventDispatcher *dispatcher.Dispatcher
	workerManager   *worker.Manager
	monitorService  *monitor.Service
	feedServer      *server.Server
	influxManager   *influx.Manager

	// Storage backend
	storageBackend storage.Backend
)

// timescaleTables names the hypertables and their compression segmentby
// columns. Only applied when the backend runs against TimescaleDB.
var timescaleTables = map[string][]string{
	"position_records": {"session_id", "entity_object_id"},
	"crossings":        {"session_id", "entity_object_id"},
	"laps":             {"session_id", "entity_object_id"},
	"feed_statuses":    {"session_id"},
}

// sessionAttrs attaches the current session and frame to every log record.
func sessionAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("sessionName", sessionCtx.GetSession().Name),
		slog.Int("captureFrame", sessionCtx.Frame.Value()),
	}
}

// newZerologLogger builds the console+file logger handed to the database and
// InfluxDB managers, which log through zerolog rather than slog.
func newZerologLogger() zerolog.Logger {
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	var out io.Writer = consoleWriter
	if LogFile != nil {
		fileWriter := zerolog.ConsoleWriter{Out: LogFile, TimeFormat: time.RFC3339, NoColor: true}
		out = zerolog.MultiLevelWriter(consoleWriter, fileWriter)
	}
	return zerolog.New(out).With().Timestamp().Logger()
}

func setup() error {
	// Phase 1: console-only logging until the log file is open
	SlogManager = logging.NewSlogManager()
	SlogManager.Setup(nil, "info", nil, nil)
	Logger = SlogManager.Logger()

	if dir := os.Getenv("LAPLINE_CONFIG_DIR"); dir != "" {
		ConfigDir = dir
	}

	if err := config.Load(ConfigDir); err != nil {
		Logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		Logger.Info("Loaded config")
	}

	logsDir := viper.GetString("logsDir")
	if _, err := os.Stat(logsDir); os.IsNotExist(err) {
		os.MkdirAll(logsDir, 0755)
	}

	LogFilePath = filepath.Join(logsDir, fmt.Sprintf(
		"%s.%s.log",
		ServerName,
		SessionStartTime.Format("20060102_150405"),
	))

	// check if LogFilePath exists
	// if it does, move it to LogFilePath.old
	// if it doesn't, create it
	if _, err := os.Stat(LogFilePath); err == nil {
		os.Rename(LogFilePath, LogFilePath+".old")
	}

	var err error
	LogFile, err = os.OpenFile(LogFilePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return fmt.Errorf("failed to create/open log file %s: %w", LogFilePath, err)
	}

	// Initialize OTel provider if enabled (after log file is created)
	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		OTelProvider, err = intOtel.New(intOtel.Config{
			Enabled:      otelCfg.Enabled,
			ServiceName:  otelCfg.ServiceName,
			BatchTimeout: otelCfg.BatchTimeout,
			LogWriter:    LogFile,
			Endpoint:     otelCfg.Endpoint,
			Insecure:     otelCfg.Insecure,
		})
		if err != nil {
			Logger.Error("Failed to initialize OTel provider", "error", err)
			OTelProvider = nil
		} else if otelCfg.Endpoint != "" {
			Logger.Info("OTel provider initialized", "file", LogFilePath, "endpoint", otelCfg.Endpoint)
		} else {
			Logger.Info("OTel provider initialized", "file", LogFilePath)
		}
	}

	var otelLogProvider *sdklog.LoggerProvider
	if OTelProvider != nil {
		otelLogProvider = OTelProvider.LoggerProvider()
	}

	var extraHandlers []slog.Handler
	graylogCfg := config.GetGraylogConfig()
	if graylogCfg.Enabled {
		gelfHandler, gerr := logging.NewGelfHandler(
			graylogCfg.Address,
			logging.ParseLevel(viper.GetString("logLevel")),
		)
		if gerr != nil {
			Logger.Error("Failed to connect to Graylog", "address", graylogCfg.Address, "error", gerr)
		} else {
			extraHandlers = append(extraHandlers, gelfHandler)
			Logger.Info("Forwarding logs to Graylog", "address", graylogCfg.Address)
		}
	}

	// Re-setup logging with file output, session attributes and optional OTel
	SlogManager.Setup(LogFile, viper.GetString("logLevel"), sessionAttrs, otelLogProvider, extraHandlers...)
	Logger = SlogManager.Logger()
	Logger.Info("Begin logging in logs directory", "path", LogFilePath)

	zerolog.TimestampFunc = func() time.Time {
		return time.Now().UTC()
	}
	if lvl, lerr := zerolog.ParseLevel(strings.ToLower(viper.GetString("logLevel"))); lerr == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	feedParser = parser.NewParser(Logger, "unknown", Version)
	eventDispatcher, err = dispatcher.New(logging.NewDispatcherLogger(Logger))
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}
	registerLifecycleHandlers(eventDispatcher)

	return nil
}

// registerLifecycleHandlers registers system commands that work without an
// active session.
func registerLifecycleHandlers(d *dispatcher.Dispatcher) {
	// Simple queries - sync return is sufficient, no callback needed
	d.Register(":VERSION:", func(e dispatcher.Event) (any, error) {
		return []string{Version, BuildDate}, nil
	})

	d.Register(":FEED:VERSION:", func(e dispatcher.Event) (any, error) {
		if len(e.Args) > 0 {
			v := util.FixEscapeQuotes(util.TrimQuotes(e.Args[0]))
			feedParser.SetFeedVersion(v)
			Logger.Info("Feed version announced", "version", v)
		}
		return "ok", nil
	})

	d.Register(":METRIC:", func(e dispatcher.Event) (any, error) {
		bucket, point, err := influx.ProcessMetricData(e.Args, util.FixEscapeQuotes, util.TrimQuotes)
		if err != nil {
			return nil, err
		}
		if influxManager == nil {
			return "ok", nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := influxManager.WritePoint(ctx, bucket, point); err != nil {
			return nil, err
		}
		return "ok", nil
	})
}

// broadcastAck fans a sample acknowledgment out to connected feeds. Demo mode
// runs the pipeline with no listening server, hence the nil check.
func broadcastAck(a core.SampleAck) {
	if feedServer != nil {
		feedServer.BroadcastAck(a)
	}
}

func broadcastLap(l core.Lap) {
	if feedServer != nil {
		feedServer.BroadcastLap(l)
	}
}

// onCrossing mirrors every recorded crossing to InfluxDB.
func onCrossing(c core.Crossing) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := influxManager.WriteCrossing(ctx, c); err != nil {
		Logger.Debug("Failed to write crossing metric", "error", err)
	}
}

// onLap pushes a completed lap to connected feeds and to InfluxDB.
func onLap(l core.Lap) {
	broadcastLap(l)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := influxManager.WriteLap(ctx, l); err != nil {
		Logger.Debug("Failed to write lap metric", "error", err)
	}
}

func onFeedStatus(s core.FeedStatus) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := influxManager.WriteFeedStatus(ctx, s); err != nil {
		Logger.Debug("Failed to write feed status metric", "error", err)
	}
}

// recordPerformance forwards monitor snapshots to InfluxDB.
func recordPerformance(perf model.SessionPerformance) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := influxManager.WritePerformance(ctx, perf); err != nil {
		Logger.Debug("Failed to write performance metric", "error", err)
	}
}

// buildWorker wires the worker manager and its callbacks. Shared between
// serve and demo modes.
func buildWorker() {
	workerManager = worker.NewManager(worker.Dependencies{
		Registry:     registry,
		SessionCtx:   sessionCtx,
		LogManager:   SlogManager,
		Parser:       feedParser,
		OnAck:        broadcastAck,
		OnCrossing:   onCrossing,
		OnLap:        onLap,
		OnFeedStatus: onFeedStatus,
		OnSessionEnd: func() {
			go uploadRecording()
		},
	}, storageBackend)
	workerManager.RegisterHandlers(eventDispatcher)
}

// buildInflux connects the metrics manager. A failed connection is not fatal:
// points spool to a local line-protocol backup instead.
func buildInflux() {
	logsDir := viper.GetString("logsDir")
	influxManager = influx.NewManager(newZerologLogger(), filepath.Join(logsDir, "influx_backup.lp.gz"))
	if err := influxManager.Connect(); err != nil {
		Logger.Info("InfluxDB metrics disabled", "reason", err)
	}
}

func serve() error {
	backend, err := createStorageBackend()
	if err != nil {
		return err
	}
	storageBackend = backend

	buildInflux()
	buildWorker()

	srvCfg := config.GetServerConfig()
	feedServer = server.New(server.Config{
		ListenAddr: srvCfg.ListenAddr,
		Secret:     srvCfg.Secret,
	}, server.Dependencies{
		Dispatcher: eventDispatcher,
		SessionCtx: sessionCtx,
		LogManager: SlogManager,
	})

	// Hypertable setup and the status monitor want direct DB access, which
	// only the Postgres backend can offer.
	var adminDB *gorm.DB
	if pg, ok := storageBackend.(*postgres.Backend); ok {
		adminDB = pg.DB()
	}
	monitorService = monitor.NewService(monitor.Dependencies{
		DB:         adminDB,
		LogManager: SlogManager,
		SessionCtx: sessionCtx,
		Dispatcher: eventDispatcher,
		Backend:    storageBackend,
		StatusDir:  viper.GetString("logsDir"),
		OnSnapshot: recordPerformance,
	})
	if adminDB != nil {
		if err := monitorService.ValidateHypertables(timescaleTables); err != nil {
			Logger.Warn("TimescaleDB setup incomplete, continuing without compression", "error", err)
		}
	}
	if err := monitorService.Start(); err != nil {
		Logger.Warn("Status monitor failed to start", "error", err)
	}

	go checkServerStatus()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	Logger.Info("Server ready",
		"version", Version,
		"listenAddr", srvCfg.ListenAddr,
		"storage", config.GetStorageConfig().Type,
	)
	serveErr := feedServer.Start(ctx)

	monitorService.Stop()
	if cerr := storageBackend.Close(); cerr != nil {
		Logger.Error("Failed to close storage backend", "error", cerr)
	}
	influxManager.Close()
	shutdownTelemetry()

	return serveErr
}

// shutdownTelemetry flushes buffered log records before exit.
func shutdownTelemetry() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := SlogManager.Flush(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to flush logs: %v\n", err)
	}
	if OTelProvider != nil {
		if err := OTelProvider.Shutdown(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to shut down OTel: %v\n", err)
		}
	}
}

// uploadRecording pushes the last exported recording to the results frontend.
// Called after session end; backends without file export are skipped.
func uploadRecording() {
	up, ok := storageBackend.(storage.Uploadable)
	if !ok {
		return
	}
	path := up.GetExportedFilePath()
	if path == "" {
		Logger.Warn("No exported recording to upload")
		return
	}

	apiCfg := config.GetAPIConfig()
	client := api.New(apiCfg.ServerURL, apiCfg.APIKey)
	if err := client.Healthcheck(); err != nil {
		Logger.Warn("Results frontend unreachable, keeping recording on disk", "path", path, "error", err)
		return
	}
	if err := client.Upload(path, up.GetExportMetadata()); err != nil {
		Logger.Error("Failed to upload recording", "path", path, "error", err)
		return
	}
	Logger.Info("Recording uploaded", "path", path)
}

func checkServerStatus() {
	// check if server is running by querying the healthcheck endpoint
	_, err := http.Get(viper.GetString("api.serverUrl") + "/healthcheck")
	if err != nil {
		Logger.Info("Results frontend is offline")
	} else {
		Logger.Info("Results frontend is online")
	}
}

// setupDatabase connects to the configured database and migrates the schema.
func setupDatabase() error {
	manager := database.NewManager(newZerologLogger())
	if err := manager.Connect(); err != nil {
		return err
	}
	if err := manager.Setup(); err != nil {
		return err
	}
	Logger.Info("DB setup complete.")
	return nil
}

func main() {
	if err := setup(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start: %v\n", err)
		os.Exit(1)
	}

	Logger.Info("Starting up...", "version", Version, "build", BuildDate)

	args := os.Args[1:]
	mode := "serve"
	if len(args) > 0 {
		mode = strings.ToLower(args[0])
	}

	var err error
	switch mode {
	case "serve":
		err = serve()
	case "demo":
		err = runDemo()
	case "setupdb":
		err = setupDatabase()
	case "export":
		err = exportRecordings(args[1:])
	case "migratebackups":
		err = migrateBackupsSqlite()
	case "version":
		fmt.Printf("%s %s (built %s)\n", ServerName, Version, BuildDate)
	default:
		fmt.Printf("Unknown mode %q. Modes: serve, demo, setupdb, export, migratebackups, version\n", mode)
		os.Exit(2)
	}
	if err != nil {
		Logger.Error("Exiting with error", "mode", mode, "error", err)
		os.Exit(1)
	}
}
