package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/digi-serve/ab-service-definition-manager/internal/bootstrap"
	"github.com/digi-serve/ab-service-definition-manager/internal/config"
	"github.com/digi-serve/ab-service-definition-manager/internal/interfaces/middleware"
	"github.com/digi-serve/ab-service-definition-manager/internal/interfaces/rest"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if !cfg.Enabled {
		log.Println("⚠️  Definition manager disabled (DEFINITION_MANAGER_ENABLE=false), exiting")
		return
	}

	ctx := context.Background()
	svcMgr, infra, err := bootstrap.NewServiceManager(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize services: %v", err)
	}
	defer func() {
		if err := infra.Close(); err != nil {
			log.Printf("⚠️  Failed to close connections: %v", err)
		}
	}()

	// Anything derived from definitions before this process started is suspect.
	svcMgr.AnnounceStale(ctx)

	router := gin.Default()
	router.Use(middleware.Cors())
	rest.RegisterRoutes(router, svcMgr)

	log.Println("\n═══════════════════════════════════════════════════════════════════════════")
	log.Println("🚀 Definition Manager Started Successfully")
	log.Println("═══════════════════════════════════════════════════════════════════════════")
	log.Printf("\n📍 Server:          http://localhost:%s", cfg.Port)
	log.Printf("📚 Definitions API: http://localhost:%s/api/definitions", cfg.Port)
	log.Printf("📦 Apps API:        http://localhost:%s/api/apps", cfg.Port)
	log.Printf("💚 Health check:    http://localhost:%s/health\n", cfg.Port)

	srv := &http.Server{
		Addr:    "0.0.0.0:" + cfg.Port,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// In-flight imports finish inside their request.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("❌ Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting")
}
