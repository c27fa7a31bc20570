package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/garnizeh/introdesk/api"
	migrations "github.com/garnizeh/introdesk/db"
	"github.com/garnizeh/introdesk/internal/config"
	"github.com/garnizeh/introdesk/internal/db"
	"github.com/garnizeh/introdesk/internal/events"
	"github.com/garnizeh/introdesk/internal/repository/sqlite"
	"github.com/garnizeh/introdesk/pkg/drafter"
	"github.com/garnizeh/introdesk/pkg/mailer"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	var configPath = flag.String("config", "", "Path to config YAML file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	log.Printf("Starting introdesk server version %s (built at %s)", version, buildTime)

	ctx := context.Background()

	// Open database connection and apply migrations
	conn, err := db.New(ctx, cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}
	if err := db.Migrate(ctx, conn, migrations.Migrations); err != nil {
		log.Fatalf("Failed to migrate DB: %v", err)
	}

	repo, err := sqlite.New(ctx, conn)
	if err != nil {
		log.Fatalf("Failed to build repository: %v", err)
	}

	hub := events.NewHub(cfg.Events.ReplaySize, cfg.Events.HeartbeatInterval)

	gen, err := drafter.NewDefaultClient(cfg.Drafter)
	if err != nil {
		log.Fatalf("Failed to build drafter client: %v", err)
	}

	var mail mailer.Mailer
	if cfg.Mailer.Enabled {
		mail, err = mailer.NewGmailMailer(ctx, cfg.Mailer.CredentialsFile, cfg.Mailer.TokenFile, cfg.Mailer.From)
		if err != nil {
			log.Fatalf("Failed to build mailer: %v", err)
		}
	}

	handler, err := api.SetupRoutes(cfg, version, buildTime, repo, hub, gen, mail)
	if err != nil {
		log.Fatalf("Failed to set up routes: %v", err)
	}

	// Create HTTP server. WriteTimeout stays zero: the event stream is a
	// long-lived response and would be cut off by it.
	server := &http.Server{
		Addr:        cfg.Addr,
		Handler:     handler,
		ReadTimeout: cfg.APITimeout,
		IdleTimeout: 60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Server starting on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Give outstanding requests 30 seconds to complete
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// Closing the hub ends every open event stream so Shutdown can drain
	hub.Close()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	if err := gen.Close(); err != nil {
		log.Printf("Error closing drafter client: %v", err)
	}

	if err := conn.Close(); err != nil {
		log.Printf("Error closing DB: %v", err)
	}

	log.Println("Server exited")
}
