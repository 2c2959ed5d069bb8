package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/unbreakk1/Questify/internal/auth"
	"github.com/unbreakk1/Questify/internal/boss"
	"github.com/unbreakk1/Questify/internal/config"
	"github.com/unbreakk1/Questify/internal/database"
	"github.com/unbreakk1/Questify/internal/engine"
	"github.com/unbreakk1/Questify/internal/logger"
	"github.com/unbreakk1/Questify/internal/namefilter"
	"github.com/unbreakk1/Questify/internal/notify"
	"github.com/unbreakk1/Questify/internal/server"
	"github.com/unbreakk1/Questify/internal/titlefilter"
)

func main() {
	serverConfigFile := flag.String("config", "data/server.yaml", "Path to server config YAML file")
	loggingConfig := flag.String("logging", "data/logging.yaml", "Path to logging config YAML file")
	catalogFile := flag.String("catalog", "", "Path to boss catalog YAML file (overrides engine.catalog_path)")
	nameFilterConfig := flag.String("namefilter", "data/name_filter.yaml", "Path to username filter config YAML file")
	titleFilterConfig := flag.String("titlefilter", "data/title_filter.yaml", "Path to task/habit title filter config YAML file")
	dbFile := flag.String("db", "", "Path to SQLite database file (overrides database.sqlite_path)")
	driver := flag.String("driver", "", "Database driver: sqlite or postgres (overrides database.driver)")
	addr := flag.String("addr", "", "HTTP listen address (overrides http.address)")
	flag.Parse()

	// Initialize logger first (before any logging)
	logConfig, _ := logger.LoadConfig(*loggingConfig)
	if err := logger.Initialize(logConfig); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	logger.Info("Starting Questify server")

	serverCfg, err := config.LoadConfig(*serverConfigFile)
	if err != nil {
		log.Fatalf("Failed to load server config %s: %v", *serverConfigFile, err)
	}
	if *catalogFile != "" {
		serverCfg.Engine.CatalogPath = *catalogFile
	}
	if *dbFile != "" {
		serverCfg.Database.SQLitePath = *dbFile
	}
	if *driver != "" {
		serverCfg.Database.Driver = *driver
	}
	if *addr != "" {
		serverCfg.HTTP.Address = *addr
	}
	logOriginPolicy("WebSocket", serverCfg.WebSocket.AllowedOrigins)
	logOriginPolicy("CORS", serverCfg.CORS.AllowedOrigins)

	catalog, err := boss.LoadCatalogFromYAML(serverCfg.Engine.CatalogPath)
	if err != nil {
		log.Fatalf("Failed to load boss catalog: %v", err)
	}
	logger.Info("Boss catalog loaded", "path", serverCfg.Engine.CatalogPath, "count", catalog.Count())

	db, err := database.OpenWithConfig(databaseConfig(serverCfg.Database))
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	logger.Info("Database initialized", "driver", serverCfg.Database.Driver)

	opts := engine.OptionsFromConfig(serverCfg)
	titleCfg, err := titlefilter.LoadConfig(*titleFilterConfig)
	if err != nil {
		logger.Warning("Failed to load title filter config, title filter disabled", "path", *titleFilterConfig, "error", err)
	} else {
		opts.Titles = titlefilter.New(titleCfg)
		if titleCfg.Enabled {
			logger.Info("Title filter enabled", "mode", opts.Titles.Mode(), "words", len(titleCfg.BannedWords))
		}
	}

	hub := notify.NewHub(notify.DefaultBufferSize)
	eng := engine.New(db, catalog, hub, opts)
	if err := eng.SyncCatalog(context.Background()); err != nil {
		log.Fatalf("Failed to sync boss catalog: %v", err)
	}

	secret := serverCfg.Auth.Secret
	if secret == "" {
		secret = randomSecret()
		logger.Warning("QUESTIFY_JWT_SECRET not set, using a random secret; tokens will not survive a restart")
	}
	tokens, err := auth.NewTokenManager(secret, serverCfg.Auth.Issuer, serverCfg.Auth.TokenTTL())
	if err != nil {
		log.Fatalf("Failed to create token manager: %v", err)
	}

	srv := server.NewServer(serverCfg, db, eng, tokens, hub)

	nameCfg, err := namefilter.LoadConfig(*nameFilterConfig)
	if err != nil {
		logger.Warning("Failed to load name filter config, name filter disabled", "path", *nameFilterConfig, "error", err)
	} else {
		srv.SetNameFilter(namefilter.New(nameCfg))
		if nameCfg.Enabled {
			logger.Info("Name filter enabled", "banned_words", len(nameCfg.BannedWords), "banned_names", len(nameCfg.BannedNames))
		}
	}

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	logger.Info("Questify server running", "address", serverCfg.HTTP.Address)
	logger.Info("Press Ctrl+C to shutdown")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(),
		time.Duration(serverCfg.HTTP.ShutdownTimeoutSeconds)*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Graceful shutdown failed", "error", err)
	}
	logger.Info("Server stopped")
}

// databaseConfig maps the server's database section onto the store config.
func databaseConfig(c config.DatabaseConfig) database.Config {
	if c.Driver != "postgres" {
		return database.DefaultConfig(c.SQLitePath)
	}
	pg := database.DefaultPostgresConfig()
	pg.Host = c.PostgresHost
	pg.Port = c.PostgresPort
	pg.User = c.PostgresUser
	pg.Password = c.PostgresPassword
	pg.Database = c.PostgresDatabase
	if c.PostgresSSLMode != "" {
		pg.SSLMode = c.PostgresSSLMode
	}
	return database.Config{Driver: "postgres", Postgres: pg}
}

func logOriginPolicy(name string, origins []string) {
	switch {
	case len(origins) == 0:
		logger.Info(name+" origin policy", "mode", "same-origin")
	case len(origins) == 1 && origins[0] == "*":
		logger.Warning(name + " allows all origins (not recommended for production)")
	default:
		logger.Info(name+" origin policy", "allowed_origins", origins)
	}
}

func randomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		log.Fatalf("Failed to generate token secret: %v", err)
	}
	return hex.EncodeToString(b)
}
