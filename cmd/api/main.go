package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/BiodunDevv/UniTrack-Backend-sub000/internal/attendance"
	"github.com/BiodunDevv/UniTrack-Backend-sub000/internal/config"
	"github.com/BiodunDevv/UniTrack-Backend-sub000/internal/queue"
	"github.com/BiodunDevv/UniTrack-Backend-sub000/internal/roster"
	"github.com/BiodunDevv/UniTrack-Backend-sub000/internal/session"
	"github.com/BiodunDevv/UniTrack-Backend-sub000/internal/store"
)

func main() {
	cfg := config.Load()

	// Set Gin mode based on environment
	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		// A failed ping still yields a usable handle that can recover once
		// the database comes back; a nil handle means the DSN is unusable.
		if db == nil {
			return fmt.Errorf("db open failed: %w", err)
		}
		log.Printf("warning: db not reachable: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "attendance:sessions")
	}

	sessions := session.NewService(session.NewRepository(db.Client))
	people := roster.NewRepository(db.Client)
	pipeline := attendance.NewService(sessions, people, attendance.NewRepository(db.Client))

	r := newRouter(cfg, apiDeps{
		pipeline: pipeline,
		sessions: sessions,
		people:   people,
		queue:    q,
		health: func(ctx context.Context) (bool, bool) {
			return redisClient.Healthy(ctx), db.Client.PingContext(ctx) == nil
		},
	})

	// Graceful shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}
