package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/joho/godotenv"

	"equipment-hours-backend/config"
	"equipment-hours-backend/internal/accounting"
	"equipment-hours-backend/internal/api"
	"equipment-hours-backend/internal/db"
	"equipment-hours-backend/internal/notification"
	"equipment-hours-backend/internal/qrcode"
	"equipment-hours-backend/internal/store"
)

func main() {
	logger := log.New(os.Stdout, "hoursd ", log.LstdFlags)

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Printf("could not read .env: %v", err)
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized successfully")

	files, err := qrcode.NewFileStore(cfg.Storage.QRDir, cfg.Storage.QRCacheSize, cfg.Storage.QRCacheTTL)
	if err != nil {
		logger.Fatalf("failed to prepare qr storage: %v", err)
	}
	issuer := qrcode.NewIssuer(files)

	appStore := store.NewGormStore(gormDB, issuer)
	logger.Println("data store initialized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		notifier       accounting.Notifier
		webpushOptions *webpush.Options
	)
	if cfg.Push.Enabled() {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		pool := notification.NewWorkerPool(cfg.WorkerPool.Size, appStore, webpushOptions)
		pool.Start(ctx)
		notifier = pool
	} else {
		logger.Println("VAPID keys are not configured; maintenance alerts are disabled")
	}

	svc := accounting.NewService(cfg, appStore, notifier)

	handler := api.NewHandler(appStore, svc, issuer, webpushOptions, cfg.Server)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.NewRouter(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Println("Shutdown signal received, stopping services...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}

	logger.Println("Server gracefully stopped")
}
