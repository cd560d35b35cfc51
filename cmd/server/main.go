package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/taberu-app/api/internal/config"
	"github.com/taberu-app/api/internal/database"
	"github.com/taberu-app/api/internal/handler"
	"github.com/taberu-app/api/internal/notify"
	"github.com/taberu-app/api/internal/payment"
	"github.com/taberu-app/api/internal/router"
	"github.com/taberu-app/api/internal/service"
	"github.com/taberu-app/api/internal/ws"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("WARNING: could not load .env: %v", err)
	}

	cfg := config.Load()
	if cfg.Production() && os.Getenv("JWT_SECRET") == "" {
		log.Fatal("JWT_SECRET must be set in production")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("Unable to ping database: %v", err)
	}
	log.Println("Connected to database")

	queries := database.New(pool)

	hub := ws.NewHub()
	go hub.Run()

	var notifier service.Notifier
	if cfg.LineChannelToken != "" {
		notifier = notify.NewLineClient(cfg.LineChannelToken)
	} else {
		log.Println("WARNING: LINE_CHANNEL_TOKEN not set, push notifications disabled")
	}

	var paypay handler.PaymentChecker
	if cfg.PayPayAPIKey != "" {
		paypay = payment.NewPayPayClient(cfg.PayPayAPIBase, cfg.PayPayAPIKey, cfg.PayPayAPISecret)
	} else {
		log.Println("WARNING: PAYPAY_API_KEY not set, payment checks disabled")
	}

	r := router.New(cfg, queries, pool, hub, notifier, paypay)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Graceful shutdown: stop accepting connections, drain in-flight
	// requests, then release the pool.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("ERROR: server shutdown: %v", err)
	}
	log.Println("Server stopped")
}
