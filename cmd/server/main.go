package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/nicktill/kpiengine/pkg/config"
	"github.com/nicktill/kpiengine/pkg/engine"
	"github.com/nicktill/kpiengine/pkg/server"
	"github.com/nicktill/kpiengine/pkg/server/monitor"
)

const (
	// Server configuration
	serverReadTimeout  = 10 * time.Second
	serverWriteTimeout = 30 * time.Second
	shutdownTimeout    = 30 * time.Second
)

// setupRouter wires every route the service exposes
func setupRouter(h *server.Handler, port string) *mux.Router {
	router := mux.NewRouter()
	server.SetupRoutes(router, h, port)
	return router
}

func main() {
	log.Println("🚀 Starting KPI Engine Server...")

	cfg := server.LoadConfig()
	if cfg.CacheDir != "" {
		log.Printf("⚙️  Configuration: cache = %s (ttl %v), memory limit = %d MB", cfg.CacheDir, cfg.CacheTTL, cfg.MaxMemoryMB)
	} else {
		log.Println("⚙️  Configuration: formula cache disabled")
	}

	source, formulaCache, err := server.InitializeSource(cfg)
	if err != nil {
		log.Fatalf("❌ Failed to initialize knowledge base: %v", err)
	}
	if formulaCache != nil {
		defer formulaCache.Close()
		log.Println("✅ BadgerDB formula cache initialized successfully")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup

	// Real-time session hub
	hub := server.NewSessionHub()
	wg.Add(1)
	go func() {
		defer wg.Done()
		hub.Run(ctx)
	}()
	log.Println("📡 Session hub started for real-time KPI evaluators")

	handler := server.NewHandler(engine.New(source), hub)
	log.Println("🧮 Formula compiler ready")

	// Background health probe of the knowledge base
	wg.Add(1)
	go server.RunHealthProbe(ctx, source, handler.SourceMonitor(), config.HealthCheckInterval, &wg)
	log.Printf("🩺 Knowledge base health probe started (every %v)", config.HealthCheckInterval)

	// Cache garbage collection (reclaims disk space)
	stopGC := make(chan bool)
	if formulaCache != nil {
		handler.SetCache(formulaCache, monitor.NewCacheMonitor(cfg.CacheDir, formulaCache))

		wg.Add(1)
		go server.RunCacheGC(formulaCache, config.CacheGCInterval, stopGC, &wg)
	}

	router := setupRouter(handler, cfg.Port)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      server.Wrap(router, os.Stdout),
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
	}

	go func() {
		log.Printf("🌐 Server starting on http://localhost:%s", cfg.Port)
		log.Println("📡 API endpoints:")
		log.Println("   POST   /v1/kpi/compile       - Compile a knowledge-base KPI")
		log.Println("   POST   /v1/kpi/plan          - Validate a KPI request and plan its fetch")
		log.Println("   POST   /v1/formulas/compile  - Compile a posted formula set")
		log.Println("   DELETE /v1/kpi/{name}/cache  - Drop cached formulas for a KPI")
		log.Println("   GET    /v1/health            - Service health")
		log.Println("   GET    /v1/realtime          - WebSocket for real-time evaluators")
		log.Println("✅ Server ready to accept requests")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutdown signal received...")

	// Cancel context FIRST to stop goroutines, or wg.Wait() deadlocks
	log.Println("⏸️  Stopping background tasks...")
	cancel()
	close(stopGC)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	log.Println("🔄 Gracefully shutting down server...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️  Server shutdown warning: %v", err)
	}

	log.Println("⏳ Waiting for background tasks to complete...")
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("✅ All background tasks stopped cleanly")
	case <-time.After(5 * time.Second):
		log.Println("⚠️  Some background tasks did not stop in time (forcing exit)")
	}

	log.Println("👋 KPI Engine server exited cleanly")
}
