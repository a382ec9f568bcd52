package main

import (
	"context"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pulsecrm/syncd/internal/application/services"
	"github.com/pulsecrm/syncd/internal/bootstrap"
	"github.com/pulsecrm/syncd/internal/infrastructure/database"
	"github.com/pulsecrm/syncd/internal/interfaces/middleware"
	"github.com/pulsecrm/syncd/internal/interfaces/rest"
)

func main() {
	// Load .env if present; real deployments set the environment directly
	if err := godotenv.Load(); err == nil {
		log.Println("📦 Loaded environment from .env")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "3002"
	}

	// Initialize database connection
	db, err := database.GetInstance()
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	log.Println("✅ Database connection established")

	if err := bootstrap.InitializeSchema(db); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	// Initialize service manager
	svcMgr := services.NewServiceManager(db)
	log.Println("🔧 Service manager initialized")

	// Create Gin router
	router := gin.Default()

	router.Use(middleware.Cors())

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
			"server": "syncd",
		})
	})

	// Prometheus metrics
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Debug/pprof endpoints for goroutine debugging
	// Goroutine stacks: http://localhost:3002/debug/pprof/goroutine?debug=2
	debug := router.Group("/debug/pprof")
	{
		debug.GET("/", gin.WrapF(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/debug/pprof/", http.StatusMovedPermanently)
		})))
		debug.GET("/goroutine", gin.WrapH(http.DefaultServeMux))
		debug.GET("/heap", gin.WrapH(http.DefaultServeMux))
		debug.GET("/profile", gin.WrapH(http.DefaultServeMux))
		debug.GET("/trace", gin.WrapH(http.DefaultServeMux))
	}

	// Initialize handlers
	deviceHandler := rest.NewDeviceHandler(svcMgr)
	syncHandler := rest.NewSyncHandler(svcMgr)

	requireAuth := middleware.RequireAuth(svcMgr.Auth)

	// API routes
	api := router.Group("/api")
	{
		// Public device credentialing (no authentication required)
		devices := api.Group("/devices")
		{
			devices.POST("/register", deviceHandler.Register)
			devices.POST("/login", deviceHandler.Login)
		}

		// Mutation queue (device token required)
		sync := api.Group("/sync")
		sync.Use(requireAuth)
		{
			sync.POST("/mutations", syncHandler.Enqueue)
			sync.GET("/mutations", syncHandler.List)
			sync.POST("/mutations/:id/retry", syncHandler.Retry)
			sync.DELETE("/mutations/:id", syncHandler.Cancel)
			sync.POST("/flush", syncHandler.Flush)
			sync.GET("/status", syncHandler.Status)
		}
	}

	// Start background workers (connectivity monitor + janitor)
	if err := svcMgr.Start(); err != nil {
		log.Fatalf("Failed to start background workers: %v", err)
	}

	log.Println("═══════════════════════════════════════════════════════")
	log.Println("🚀 PulseCRM Sync Engine Started")
	log.Println("═══════════════════════════════════════════════════════")
	log.Printf("📍 Server:       http://localhost:%s", port)
	log.Printf("📱 Devices API:  http://localhost:%s/api/devices", port)
	log.Printf("🔄 Sync API:     http://localhost:%s/api/sync", port)
	log.Printf("📈 Metrics:      http://localhost:%s/metrics", port)
	log.Printf("💚 Health check: http://localhost:%s/health", port)

	srv := &http.Server{
		Addr:    "0.0.0.0:" + port,
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Stop background workers before closing the listener so an in-flight
	// flush finishes its current mutation
	svcMgr.Stop()
	log.Println("🛑 Background workers stopped")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown: ", err)
	}

	log.Println("Server exiting")
}
