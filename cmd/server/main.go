package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/webarchive/backend/internal/api"
	"github.com/webarchive/backend/internal/config"
	"github.com/webarchive/backend/internal/domain"
	"github.com/webarchive/backend/internal/importer"
	"github.com/webarchive/backend/internal/index"
	"github.com/webarchive/backend/internal/replay"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	configPath := "config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Printf("Failed to create directories: %v\n", err)
		os.Exit(1)
	}

	log, err := zap.NewProduction()
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		fmt.Printf("Failed to connect to redis at %s: %v\n", cfg.Redis.Addr, err)
		os.Exit(1)
	}

	store := domain.NewStore(rdb, log)
	tracker := importer.NewTracker(rdb, cfg.Upload.StatusExpireSeconds, log)
	locator := replay.NewLocator(nil)

	pageIndex := index.NewRedisIndex(rdb)
	remote := importer.NewRemoteTransport(
		cfg.Upload.RecordHost, cfg.Upload.UploadPathTemplate, pageIndex, tracker, log)

	// The local DuckDB index backs in-place imports done by the companion
	// CLI; the server opens it too so those imports stay queryable here.
	duck, err := index.OpenDuckIndex(cfg.Storage.IndexPath, log)
	if err != nil {
		fmt.Printf("Failed to open local index: %v\n", err)
		os.Exit(1)
	}
	defer duck.Close()

	inplace := func(t *importer.Tracker, path string) importer.Transport {
		return importer.NewInplaceTransport(duck, t, path, log)
	}
	im := importer.NewImporter(cfg, store, tracker, locator, remote, inplace, log)

	renderer := replay.NewProxyRenderer("http://"+cfg.Replay.ReplayHost, log)

	e := echo.New()
	e.HideBanner = true
	api.SetupMiddleware(e)

	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			path := c.Request().URL.Path
			return path == "/health" || strings.HasPrefix(path, "/api/v1/upload/")
		},
	}))
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 1024 * 4,
	}))
	e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))

	if cfg.Server.EnableCORS {
		origins := strings.Split(cfg.Server.AllowOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		if len(origins) == 0 || (len(origins) == 1 && origins[0] == "") {
			origins = []string{"*"}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: origins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
		}))
	}

	handlers := api.NewHandlers(&api.Dependencies{
		Store:    store,
		Importer: im,
		Renderer: renderer,
		Config:   cfg,
		Version:  Version,
	})
	api.RegisterRoutes(e, handlers)

	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           Web Archive Backend                             ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:     %-44s║\n", Version)
	fmt.Printf("║  Build Time:  %-44s║\n", BuildTime)
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:      %-44s║\n", configPath)
	fmt.Printf("║  Listen:      http://%-37s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Redis:       %-44s║\n", cfg.Redis.Addr)
	fmt.Printf("║  Record Host: %-44s║\n", cfg.Upload.RecordHost)
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")

	e.Logger.Fatal(e.StartServer(s))
}
