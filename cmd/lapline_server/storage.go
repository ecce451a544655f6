package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/lapline/lapline/internal/config"
	"github.com/lapline/lapline/internal/storage"
	"github.com/lapline/lapline/internal/storage/memory"
	"github.com/lapline/lapline/internal/storage/postgres"
	sqlitestorage "github.com/lapline/lapline/internal/storage/sqlite"
	"github.com/lapline/lapline/internal/storage/websocket"

	"github.com/spf13/viper"
)

// createStorageBackend builds and initializes the backend named by
// storage.type. A Postgres backend that cannot connect falls back to SQLite so
// a session is never lost to a dead database.
func createStorageBackend() (storage.Backend, error) {
	cfg := config.GetStorageConfig()

	switch cfg.Type {
	case "postgres":
		backend := postgres.New(nil, SlogManager)
		if err := backend.Init(); err != nil {
			Logger.Error("Postgres backend failed, falling back to SQLite", "error", err)
			return createSqliteBackend(cfg)
		}
		Logger.Info("Postgres storage backend initialized")
		return backend, nil

	case "sqlite":
		return createSqliteBackend(cfg)

	case "websocket":
		wsCfg := websocket.Config{
			URL:    httpToWS(viper.GetString("api.serverUrl")),
			Secret: viper.GetString("api.apiKey"),
		}
		backend := websocket.New(wsCfg)
		if err := backend.Init(); err != nil {
			return nil, fmt.Errorf("websocket backend: %w", err)
		}
		Logger.Info("WebSocket storage backend initialized", "url", wsCfg.URL)
		return backend, nil

	case "memory", "":
		backend := memory.New(cfg.Memory)
		if err := backend.Init(); err != nil {
			return nil, fmt.Errorf("memory backend: %w", err)
		}
		Logger.Info("Memory storage backend initialized", "outputDir", cfg.Memory.OutputDir)
		return backend, nil

	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// createSqliteBackend opens the in-memory SQLite backend with periodic dumps
// to the base directory. Dumps are picked up later by the migratebackups mode.
func createSqliteBackend(cfg config.StorageConfig) (storage.Backend, error) {
	dumpPath := filepath.Join(ConfigDir, fmt.Sprintf(
		"lapline_%s.db",
		SessionStartTime.Format("20060102_150405"),
	))

	backend, err := sqlitestorage.New(sqlitestorage.Config{
		DumpInterval: cfg.SQLite.DumpInterval,
		DumpPath:     dumpPath,
	}, SlogManager)
	if err != nil {
		return nil, fmt.Errorf("sqlite backend: %w", err)
	}
	if err := backend.Init(); err != nil {
		return nil, fmt.Errorf("sqlite backend: %w", err)
	}
	Logger.Info("SQLite storage backend initialized", "dumpPath", dumpPath)
	return backend, nil
}

// httpToWS rewrites the frontend API base URL into its WebSocket equivalent.
func httpToWS(baseURL string) string {
	url := strings.TrimRight(baseURL, "/")
	switch {
	case strings.HasPrefix(url, "https://"):
		url = "wss://" + strings.TrimPrefix(url, "https://")
	case strings.HasPrefix(url, "http://"):
		url = "ws://" + strings.TrimPrefix(url, "http://")
	}
	return url
}
