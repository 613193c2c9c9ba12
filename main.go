package main

import (
	"context"
	"embed"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gradeworks/gradeplan/internal/api"
	"github.com/gradeworks/gradeplan/internal/config"
	"github.com/gradeworks/gradeplan/internal/db"
	"github.com/gradeworks/gradeplan/internal/earthwork/monitor"
	"github.com/gradeworks/gradeplan/internal/units"
	"github.com/gradeworks/gradeplan/internal/version"
)

var (
	//go:embed static/*
	staticFiles embed.FS

	devMode       = flag.Bool("dev", false, "Run in dev mode")
	listen        = flag.String("listen", ":8080", "Listen address")
	monitorListen = flag.String("monitor-listen", "", "Monitor listen address (monitor disabled when empty)")
	dbFile        = flag.String("db", "gradeplan.db", "SQLite database path")
	configFile    = flag.String("config", "", "Grading defaults JSON (falls back to "+config.DefaultConfigPath+", then built-ins)")
	displayUnits  = flag.String("units", units.CY, "Display units for run summaries, one of: "+units.GetValidUnitsString())
)

// loadDefaults resolves the grading defaults: an explicit -config wins, then
// the canonical defaults file beside the binary, then the built-in engine
// defaults.
func loadDefaults() *config.GradingDefaults {
	if *configFile != "" {
		defaults, err := config.LoadGradingDefaults(*configFile)
		if err != nil {
			log.Fatalf("Failed to load config %s: %v", *configFile, err)
		}
		return defaults
	}
	if defaults, err := config.LoadGradingDefaults(config.DefaultConfigPath); err == nil {
		return defaults
	}
	return config.EmptyGradingDefaults()
}

// Main
func main() {
	flag.Parse()

	// Subcommands run and exit before any server wiring.
	if args := flag.Args(); len(args) > 0 {
		switch args[0] {
		case "migrate":
			db.RunMigrateCommand(args[1:], *dbFile)
			return
		case "version":
			fmt.Println(version.String())
			return
		default:
			log.Fatalf("unknown command %q (supported: migrate, version)", args[0])
		}
	}

	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	if !units.IsValid(*displayUnits) {
		log.Fatalf("invalid units %q, must be one of: %s", *displayUnits, units.GetValidUnitsString())
	}

	defaults := loadDefaults()

	database, err := db.NewDBWithMigrationCheck(*dbFile, *devMode)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	log.Printf("gradeplan %s (db=%s units=%s)", version.String(), *dbFile, *displayUnits)

	// Create a wait group for the HTTP server and monitor routines
	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run the monitor web server on its own port when requested
	if *monitorListen != "" {
		ws := monitor.NewWebServer(monitor.WebServerConfig{
			Address:  *monitorListen,
			DB:       database,
			Defaults: defaults,
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ws.Start(ctx); err != nil {
				log.Printf("monitor server error: %v", err)
			}
		}()
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()

		// mount the admin debugging routes (accessible only from loopback)
		database.AttachAdminRoutes(mux)

		// create a new API server instance over the database and defaults;
		// its mux registers the full /api/... paths
		apiMux := api.NewServer(database, defaults, *displayUnits).ServeMux()
		mux.Handle("/api/", apiMux)

		// read static files from the embedded filesystem in production or from
		// the local ./static in dev for easier iteration without restarting the
		// server
		var staticHandler http.Handler
		if *devMode {
			staticHandler = http.FileServer(http.Dir("./static"))
		} else {
			staticRoot, err := fs.Sub(staticFiles, "static")
			if err != nil {
				log.Fatalf("failed to mount embedded static files: %v", err)
			}
			staticHandler = http.FileServer(http.FS(staticRoot))
		}
		mux.Handle("/", staticHandler)

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			log.Printf("Starting HTTP server on %s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		// Create a shutdown context with a timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}

		log.Printf("HTTP server routine stopped")
	}()

	// Wait for all goroutines to finish
	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
