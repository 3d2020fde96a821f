package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"SocialSchedulerAPI/config"
	"SocialSchedulerAPI/database"
	"SocialSchedulerAPI/handlers"
	"SocialSchedulerAPI/middleware"
	"SocialSchedulerAPI/services"
	"SocialSchedulerAPI/utils"
)

func main() {
	cfg := config.Load()

	db, err := database.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		utils.Errorf("Failed to connect to database: %v", err)
		os.Exit(1)
	}

	storage, err := services.NewStorageService(cfg.UploadDir, cfg.BaseURL)
	if err != nil {
		utils.Errorf("Failed to initialize storage: %v", err)
		os.Exit(1)
	}

	authService := services.NewAuthService(db, cfg.JWTSecret)
	publisher := services.NewPublisherService(db, cfg)

	scheduler := services.NewScheduler(db, publisher, cfg)
	if err := scheduler.Start(); err != nil {
		utils.Errorf("Failed to start scheduler: %v", err)
		os.Exit(1)
	}

	handler := handlers.NewHandler(db, scheduler, authService, storage)
	router := setupRoutes(handler, authService, cfg)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		utils.Infof("Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			utils.Errorf("Server error: %v", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	utils.Infof("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		utils.Warnf("HTTP shutdown: %v", err)
	}
	scheduler.Stop()
}

func setupRoutes(h *handlers.Handler, authService *services.AuthService, cfg *config.Config) *mux.Router {
	r := mux.NewRouter()

	limiter := middleware.NewRateLimiter(10, 30)
	authLimiter := middleware.NewRateLimiter(1, 5)

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = []string{cfg.BaseURL}
	r.Use(middleware.CORS(corsCfg))
	r.Use(limiter.Limit())

	const jsonBodyLimit = 1 << 20 // 1 MB

	// Public routes
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/api/auth/register",
		authLimiter.LimitHandler(middleware.BodyLimitHandler(jsonBodyLimit, h.Register))).Methods("POST")
	r.HandleFunc("/api/auth/login",
		authLimiter.LimitHandler(middleware.BodyLimitHandler(jsonBodyLimit, h.Login))).Methods("POST")

	// Static file serving for uploaded media
	r.PathPrefix("/uploads/").Handler(http.StripPrefix("/uploads/",
		http.FileServer(http.Dir(cfg.UploadDir))))

	// Protected routes
	protected := r.PathPrefix("/api").Subrouter()
	protected.Use(middleware.AuthMiddleware(authService))

	// Scheduling
	protected.HandleFunc("/schedule",
		middleware.BodyLimitHandler(jsonBodyLimit, h.SchedulePost)).Methods("POST")
	protected.HandleFunc("/scheduled", h.GetScheduledPosts).Methods("GET")
	protected.HandleFunc("/scheduled/{id}", h.GetScheduledPost).Methods("GET")
	protected.HandleFunc("/scheduled/{id}", h.CancelScheduledPost).Methods("DELETE")
	protected.HandleFunc("/scheduled/{id}/reschedule",
		middleware.BodyLimitHandler(jsonBodyLimit, h.ReschedulePost)).Methods("PUT")

	// Connections
	protected.HandleFunc("/connections",
		middleware.BodyLimitHandler(jsonBodyLimit, h.SaveConnection)).Methods("POST")
	protected.HandleFunc("/connections", h.ListConnections).Methods("GET")
	protected.HandleFunc("/connections/{platform}", h.DisconnectPlatform).Methods("DELETE")

	// Media
	protected.HandleFunc("/media",
		middleware.BodyLimitHandler(cfg.MaxUploadSize, h.UploadMedia)).Methods("POST")
	protected.HandleFunc("/media", h.GetMedia).Methods("GET")
	protected.HandleFunc("/media/{id}", h.DeleteMedia).Methods("DELETE")

	return r
}
