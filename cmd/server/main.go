package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"reelboard/internal/auth"
	"reelboard/internal/database"
	"reelboard/internal/handlers"
	"reelboard/internal/instagram"
	"reelboard/internal/realtime"
	"reelboard/internal/services"
	"reelboard/internal/storage"
	"reelboard/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Connect to database
	dbConfig := database.LoadConfig()
	if err := database.Connect(dbConfig); err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer database.Close()

	// Run migrations
	if err := database.Migrate(); err != nil {
		log.Fatal("Failed to run migrations:", err)
	}

	// Wire up the services
	igClient := instagram.NewClient()
	storageClient := storage.NewClient()
	hub := realtime.NewHub()
	syncService := services.NewSyncService(database.DB, igClient)
	reelsService := services.NewReelsService(database.DB, storageClient)

	// Start background workers
	ctx, cancel := context.WithCancel(context.Background())
	workerService := worker.NewService(database.DB, syncService, hub)
	workerService.Start(ctx)

	setupGracefulShutdown(cancel, workerService)
	setupServer(igClient, storageClient, hub, syncService, reelsService)
}

func setupGracefulShutdown(cancel context.CancelFunc, workerService *worker.Service) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		log.Println("Received shutdown signal, gracefully shutting down...")

		cancel()
		workerService.Stop()
		database.Close()

		log.Println("Shutdown complete")
		os.Exit(0)
	}()
}

func setupServer(
	igClient *instagram.Client,
	storageClient *storage.Client,
	hub *realtime.Hub,
	syncService *services.SyncService,
	reelsService *services.ReelsService,
) {
	if os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	r.Use(handlers.CORSMiddleware())

	// Initialize handlers
	verifier := auth.NewVerifierFromEnv()
	reelsHandler := handlers.NewReelsHandler(reelsService, storageClient)
	instagramHandler := handlers.NewInstagramHandler(database.DB, igClient, syncService, hub)
	docsHandler := handlers.NewDocsHandler()

	// Public endpoints
	r.GET("/health", reelsHandler.HealthCheck)
	r.GET("/doc/:doc", docsHandler.ServeMarkdownAsHTML)

	// The OAuth callback arrives from Instagram's redirect, without a
	// session header; the state row identifies the user.
	r.GET("/api/instagram/callback", instagramHandler.Callback)

	// Authenticated API
	api := r.Group("/api", handlers.AuthMiddleware(verifier))
	{
		api.GET("/reels", reelsHandler.ListReels)
		api.POST("/reels", reelsHandler.CreateReel)
		api.POST("/reels/upload", reelsHandler.UploadVideo)
		api.POST("/reels/preview", reelsHandler.Preview)
		api.GET("/reels/recommendation", reelsHandler.Recommendation)
		api.GET("/reels/:id", reelsHandler.GetReel)
		api.PATCH("/reels/:id/metrics", reelsHandler.UpdateMetrics)
		api.DELETE("/reels/:id", reelsHandler.DeleteReel)

		api.GET("/instagram/connect", instagramHandler.Connect)
		api.GET("/instagram/status", instagramHandler.Status)
		api.DELETE("/instagram/connection", instagramHandler.Disconnect)
		api.POST("/instagram/sync", instagramHandler.SyncWithToken)
		api.POST("/instagram/sync-reels", instagramHandler.SyncReels)
		api.GET("/instagram/events", instagramHandler.Events)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("🚀 Starting server on port %s", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
