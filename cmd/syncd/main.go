package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/nrednav/cuid2"
	"github.com/perch-social/satchel/internal/api"
	"github.com/perch-social/satchel/internal/boot"
	"github.com/perch-social/satchel/internal/credential"
	"github.com/perch-social/satchel/internal/handlers"
	"github.com/perch-social/satchel/internal/mirror"
	"github.com/perch-social/satchel/internal/netmon"
	"github.com/perch-social/satchel/internal/queuestore"
	syncsvc "github.com/perch-social/satchel/internal/service/sync"
)

func main() {
	config, err := boot.Load()
	if err != nil {
		log.Fatalf("boot: %+v", err)
	}

	queue, err := queuestore.New(config)
	if err != nil {
		log.Fatalf("opening queue store: %+v", err)
	}
	defer queue.Close()

	records, err := mirror.New(config)
	if err != nil {
		log.Fatalf("opening mirror store: %+v", err)
	}
	defer records.Close()

	creds, err := credential.New(config)
	if err != nil {
		log.Fatalf("loading credential: %+v", err)
	}
	defer creds.Close()
	if err := creds.Watch(); err != nil {
		log.Fatalf("watching credential: %+v", err)
	}

	remote := api.New(config.Remote.BaseURL, creds)

	monitor := netmon.New(netmon.HTTPProbe(remote.HealthURL(), 10*time.Second), config.Sync.ProbeInterval)

	orchestrator := syncsvc.New(syncsvc.Config{
		Interval:       config.Sync.Interval,
		MaxRetries:     config.Sync.MaxRetries,
		BackoffBase:    config.Sync.BackoffBase,
		BackoffMax:     config.Sync.BackoffMax,
		PurgeRetention: config.Sync.PurgeRetention,
	}, queue, records, remote, creds, monitor)

	runCtx, stop := context.WithCancel(context.Background())
	defer stop()
	monitor.Start(runCtx)
	orchestrator.Start(runCtx)

	server := echo.New()
	server.Use(middleware.BodyLimit("10M"))
	server.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: func() string {
			return cuid2.Generate()
		},
	}))
	server.Use(echoprometheus.NewMiddleware("satchel"))
	server.Use(middleware.Recover())

	server.Logger.SetLevel(log.INFO)

	server.POST("/actions", handlers.EnqueueAction(queue, records))
	server.GET("/actions", handlers.ListActions(queue))
	server.GET("/records/:threadKey", handlers.ListRecords(records))
	server.GET("/sync/status", handlers.SyncStatus(queue, records, monitor))
	server.POST("/vanish/toggle", handlers.ToggleVanishMode(remote, monitor))
	server.POST("/vanish/clear", handlers.ClearVanishMessages(remote, monitor))

	admin := server.Group("", handlers.AdminAuth(config.Server.AdminPasswordHash))
	admin.POST("/sync/run", handlers.ForceSync(orchestrator))
	admin.POST("/actions/purge", handlers.PurgeActions(queue))

	server.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})

	go func() {
		metrics := echo.New()
		metrics.GET("/metrics", echoprometheus.NewHandler())
		if err := metrics.Start(config.Server.MetricsAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	go func() {
		if err := server.Start(config.Server.ListenAddr); err != nil && err != http.ErrServerClosed {
			server.Logger.Fatal("shutting down the server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit
	stop()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		server.Logger.Fatal(err)
	}
}
