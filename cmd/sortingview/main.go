package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/sortingview/internal/api"
	"github.com/banshee-data/sortingview/internal/config"
	"github.com/banshee-data/sortingview/internal/db"
	"github.com/banshee-data/sortingview/internal/httputil"
	"github.com/banshee-data/sortingview/internal/monitoring"
	"github.com/banshee-data/sortingview/internal/taskqueue"
	"github.com/banshee-data/sortingview/internal/tasks"
	"github.com/banshee-data/sortingview/internal/unitmetrics"
	"github.com/banshee-data/sortingview/internal/version"
)

var (
	configPath = flag.String("config", "", "Path to a JSON configuration file")
	listen     = flag.String("listen", "", "Listen address (overrides config)")
	dbPath     = flag.String("db", "", "Path to the sqlite database (overrides config)")
	workers    = flag.Int("workers", 0, "Number of task workers (overrides config)")
	verbose    = flag.Bool("verbose", false, "Enable debug logging")
)

func main() {
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() > 0 {
		switch flag.Arg(0) {
		case "version":
			fmt.Println(version.String())
			return
		case "migrate":
			cfg, err := loadConfig()
			if err != nil {
				log.Fatalf("failed to load config: %v", err)
			}
			if err := db.RunMigrateCommand(os.Stdout, flag.Args()[1:], cfg.GetDBPath()); err != nil {
				log.Fatalf("migrate: %v", err)
			}
			return
		default:
			usage()
			os.Exit(2)
		}
	}

	monitoring.SetVerbose(*verbose)

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	database, err := db.NewDB(cfg.GetDBPath())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := unitmetrics.DefaultRegistry()
	svc := taskqueue.NewService(taskqueue.Options{
		Workers:         cfg.GetWorkers(),
		TaskTimeout:     cfg.GetTaskTimeout(),
		ErrorRetryDelay: cfg.GetErrorRetryDelay(),
		Store:           database,
	})
	tasks.Register(svc, tasks.Deps{
		Catalog:  database,
		Snippets: database,
		Metrics:  registry,
		HTTP:     httputil.NewStandardClient(&http.Client{Timeout: cfg.GetFetchTimeout()}),
		Config:   cfg,
	})
	svc.Start(ctx)
	defer svc.Stop()

	var wg sync.WaitGroup

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		srv := api.NewServer(database, svc, registry, cfg)

		mux := srv.ServeMux()
		if err := database.AttachAdminRoutes(mux); err != nil {
			log.Printf("failed to attach admin routes: %v", err)
		}

		server := &http.Server{
			Addr:    cfg.GetListen(),
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			log.Printf("%s listening on %s", version.String(), server.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		// ends open event streams so Shutdown does not wait on them
		srv.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}

// loadConfig reads the config file, if any, and applies flag overrides.
func loadConfig() (*config.ViewerConfig, error) {
	cfg := &config.ViewerConfig{}
	if *configPath != "" {
		var err error
		cfg, err = config.LoadViewerConfig(*configPath)
		if err != nil {
			return nil, err
		}
	}
	applyFlagOverrides(cfg, *listen, *dbPath, *workers)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyFlagOverrides copies non-zero flag values over the config.
func applyFlagOverrides(cfg *config.ViewerConfig, listen, dbPath string, workers int) {
	if listen != "" {
		cfg.Listen = &listen
	}
	if dbPath != "" {
		cfg.DBPath = &dbPath
	}
	if workers != 0 {
		cfg.Workers = &workers
	}
}

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "Usage: sortingview [flags] [version | migrate <command>]\n\n")
	flag.PrintDefaults()
	fmt.Fprintln(out)
	db.PrintMigrateHelp(out)
}
