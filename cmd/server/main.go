package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/plc-visualizer/uploader/internal/api"
	"github.com/plc-visualizer/uploader/internal/catalog"
	"github.com/plc-visualizer/uploader/internal/config"
	"github.com/plc-visualizer/uploader/internal/logging"
	"github.com/plc-visualizer/uploader/internal/processing"
	"github.com/plc-visualizer/uploader/internal/realtime"
	"github.com/plc-visualizer/uploader/internal/storage"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Get the executable's directory for config resolution
	exePath, err := os.Executable()
	if err != nil {
		fmt.Printf("Failed to get executable path: %v\n", err)
		os.Exit(1)
	}
	exeDir := filepath.Dir(exePath)

	// Load XML configuration
	configPath := filepath.Join(exeDir, "transfer-server.config")
	if p := os.Getenv("TRANSFER_CONFIG"); p != "" {
		configPath = p
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logging.Init(cfg.Advanced.LogLevel)
	log := logging.Logger.With("component", "server")

	// Ensure all data directories exist
	if err := cfg.EnsureDirectories(); err != nil {
		log.Error("failed to create directories", "error", err)
		os.Exit(1)
	}

	// Initialize storage
	fileStore, err := storage.NewLocalStore(cfg.GetUploadDir())
	if err != nil {
		log.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}

	fileCatalog, err := catalog.OpenWithOptions(cfg.Storage.CatalogPath, cfg.CatalogOptions())
	if err != nil {
		log.Error("failed to open catalog", "error", err)
		os.Exit(1)
	}
	defer fileCatalog.Close()

	// Event bus; processing events are mirrored to Redis when configured
	hub := realtime.NewHub()
	if err := hub.Start(context.Background()); err != nil {
		log.Error("failed to start event hub", "error", err)
		os.Exit(1)
	}
	var publisher realtime.Publisher = hub
	if cfg.Advanced.RedisAddr != "" {
		rdb, err := realtime.NewRedisClient(context.Background(), cfg.Advanced.RedisAddr)
		if err != nil {
			log.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer rdb.Close()
		publisher = realtime.Fanout{hub, realtime.NewRedisPublisher(rdb, cfg.Advanced.RedisChannel)}
		log.Info("mirroring processing events to redis", "addr", cfg.Advanced.RedisAddr)
	}

	// Initialize processing job manager
	jobs := processing.NewManager(fileStore, fileCatalog, publisher)

	// Start background job cleanup
	go func() {
		ticker := time.NewTicker(cfg.CleanupInterval())
		defer ticker.Stop()
		for range ticker.C {
			if n := jobs.CleanupOldJobs(cfg.JobRetention()); n > 0 {
				log.Debug("cleaned up finished jobs", "count", n)
			}
		}
	}()

	e := echo.New()
	e.HideBanner = true

	// Configure middleware
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			// Skip logging if disabled in config
			if !cfg.Advanced.EnableRequestLogging {
				return true
			}
			path := c.Request().URL.Path
			return strings.HasSuffix(path, "/chunks") ||
				path == "/api/health"
		},
	}))

	e.Use(middleware.TimeoutWithConfig(middleware.TimeoutConfig{
		Timeout: time.Duration(cfg.Server.ReadTimeout) * time.Second,
		Skipper: func(c echo.Context) bool {
			path := c.Request().URL.Path
			return strings.Contains(path, "/upload") ||
				strings.HasPrefix(path, "/api/ws/")
		},
		ErrorMessage: "Request timeout",
	}))

	// Compression middleware
	if cfg.Processing.EnableCompression {
		e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
			Level: cfg.Processing.CompressionLevel,
			Skipper: func(c echo.Context) bool {
				return strings.HasPrefix(c.Request().URL.Path, "/api/ws/")
			},
		}))
	}

	var origins []string
	if cfg.Server.EnableCORS {
		origins = cfg.GetAllowedOrigins()
	} else {
		origins = []string{"http://localhost:" + fmt.Sprint(cfg.Server.Port)}
	}
	api.SetupMiddleware(e, origins, cfg.Server.BodyLimit)

	handlers := api.NewHandlers(&api.Dependencies{
		Store:   fileStore,
		Catalog: fileCatalog,
		Jobs:    jobs,
		Hub:     hub,
		Version: Version,
	})
	api.RegisterRoutes(e, handlers, cfg.Security.AllowFileDeletion)

	// Configure server with settings from XML config
	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           File Transfer Server                            ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", configPath)
	fmt.Printf("║  Listen:    http://%-38s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Data Dir:  %-46s║\n", cfg.GetDataDir())
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")

	e.Logger.Fatal(e.StartServer(s))
}
