package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kabsujon-blip/newOCCP/internal/api"
	"github.com/kabsujon-blip/newOCCP/internal/archive"
	"github.com/kabsujon-blip/newOCCP/internal/bridge"
	"github.com/kabsujon-blip/newOCCP/internal/config"
	"github.com/kabsujon-blip/newOCCP/internal/engine"
	"github.com/kabsujon-blip/newOCCP/internal/liveness"
	"github.com/kabsujon-blip/newOCCP/internal/logger"
	"github.com/kabsujon-blip/newOCCP/internal/registry"
	"github.com/kabsujon-blip/newOCCP/internal/server"
	"github.com/kabsujon-blip/newOCCP/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
		Async:  cfg.Log.Async,
	})
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	log.Info("Logger initialized")

	reg := registry.New()
	store := session.NewStore()
	activity := session.NewActivityLog()

	var notifiers []bridge.Notifier
	if cfg.BridgeEnabled() {
		notifiers = append(notifiers, bridge.NewHTTPNotifier(cfg.Bridge.URL, cfg.Bridge.Secret, cfg.Bridge.Timeout))
		log.Infof("Bridge enabled: %s", cfg.Bridge.URL)
	}
	if cfg.KafkaEnabled() {
		kn, err := bridge.NewKafkaNotifier(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			log.Fatalf("Failed to initialize Kafka notifier: %v", err)
		}
		notifiers = append(notifiers, kn)
		log.Infof("Kafka event mirror enabled: %v", cfg.Kafka.Brokers)
	}
	var notifier bridge.Notifier = bridge.NopNotifier{}
	if len(notifiers) > 0 {
		notifier = bridge.NewMultiNotifier(notifiers...)
	}
	defer notifier.Close()

	var archiver engine.Archiver
	if cfg.RedisEnabled() {
		arc, err := archive.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatalf("Failed to initialize session archive: %v", err)
		}
		defer arc.Close()
		archiver = arc
		log.Infof("Session archive enabled: %s", cfg.Redis.Addr)
	}

	eng := engine.New(reg, store, activity, notifier, archiver)
	srv := server.New(cfg.Server, reg, store, eng, activity)

	supervisor := liveness.New(cfg.Liveness, reg, store, eng, activity)
	supervisor.Start()
	defer supervisor.Stop()

	router := api.NewRouter(api.New(reg, store, activity, srv), srv.HandleWebSocket)

	httpServer := &http.Server{
		Addr:    cfg.GetServerAddr(),
		Handler: router,
	}

	go func() {
		log.Infof("Listening on %s", cfg.GetServerAddr())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Errorf("HTTP server shutdown: %v", err)
	}
}
