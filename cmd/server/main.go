package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"gymdesk/internal/handlers"
	authMiddleware "gymdesk/internal/middleware"
	"gymdesk/internal/models"
	"gymdesk/internal/services"
	"gymdesk/internal/tasks"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment")
	}

	// Initialize Database
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL not set")
	}
	db, err := services.InitDB(databaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := services.AutoMigrate(db); err != nil {
		log.Fatalf("Failed to run database migrations: %v", err)
	}

	// Initialize Redis cache
	cache, err := services.NewRedisCache(os.Getenv("REDIS_URL"))
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer cache.Close()

	// Services
	tokenSecret := os.Getenv("JWT_SECRET")
	if tokenSecret == "" {
		log.Fatal("JWT_SECRET not set")
	}
	tokenService := services.NewTokenService(tokenSecret)
	emailService := services.NewEmailService()
	memberService := services.NewMemberService(db)

	gateway := services.SelectGateway()
	paymentService := services.NewPaymentService(services.NewGormSessionStore(db), cache, gateway)
	paymentService.OnPaid(func(session *models.PaymentSession) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := memberService.ConfirmPayment(ctx, session.MemberID); err != nil {
			log.Printf("failed to confirm member %d after payment %s: %v", session.MemberID, session.OrderID, err)
			return
		}
		if member, err := memberService.ByID(ctx, session.MemberID); err == nil {
			if err := emailService.SendPaymentConfirmed(member, session.OrderID); err != nil {
				log.Printf("payment confirmation email failed for member %d: %v", member.ID, err)
			}
		}
	})

	seedAdmin(db)
	if err := tasks.SeedRecurringTasks(db); err != nil {
		log.Printf("Warning: failed to seed recurring tasks: %v", err)
	}

	// Every open session gets a watcher: new ones as they are provisioned,
	// and sessions that were open when the server last stopped.
	watchCtx, stopWatchers := context.WithCancel(context.Background())
	defer stopWatchers()
	paymentService.OnCreated(func(session *models.PaymentSession) {
		paymentService.Watch(watchCtx, session)
	})
	resumeOpenSessions(watchCtx, db, paymentService)

	uploadDir := os.Getenv("UPLOAD_DIR")
	if uploadDir == "" {
		uploadDir = "uploads"
	}

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = authMiddleware.CustomErrorHandler

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Static file serving for member photos
	e.Static("/uploads", uploadDir)

	// Handlers
	publicHandler := handlers.NewPublicHandler(memberService, paymentService, tokenService, emailService, uploadDir)
	memberHandler := handlers.NewMemberHandler(db, memberService, tokenService, emailService, uploadDir)
	paymentHandler := handlers.NewPaymentHandler(db, paymentService, memberService)
	dashboardHandler := handlers.NewDashboardHandler(db)
	authHandler := handlers.NewAuthHandler(db, tokenService, emailService)

	// Registration gets a rate limit so the public form cannot be hammered.
	registerLimiter := middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStore(rate.Limit(2)),
	})

	// Public routes
	api := e.Group("/api")
	api.POST("/register", publicHandler.Register, registerLimiter)
	api.GET("/renewal/:token", publicHandler.VerifyRenewalToken)
	api.POST("/renewal/:token", publicHandler.Renew)

	api.GET("/payments/details/:orderId", paymentHandler.Details)
	api.GET("/payments/status/:orderId", paymentHandler.Status)
	api.POST("/payments/cancel/:orderId", paymentHandler.Cancel)
	api.POST("/payments/callback/midtrans", paymentHandler.MidtransCallback)

	api.POST("/auth/login", authHandler.Login)
	api.POST("/auth/forgot-password", authHandler.ForgotPassword)
	api.POST("/auth/reset-password/:token", authHandler.ResetPassword)

	// Protected admin routes
	admin := api.Group("/admin")
	admin.Use(authMiddleware.RequireAuth(tokenService))
	admin.GET("/auth/verify", authHandler.Verify)
	admin.GET("/dashboard/stats", dashboardHandler.Stats)

	admin.GET("/members", memberHandler.List)
	admin.GET("/members/:id", memberHandler.Get)
	admin.PATCH("/members/:id", memberHandler.Update)
	admin.PUT("/members/:id/photo", memberHandler.UpdatePhoto)
	admin.PATCH("/members/:id/approve-payment", memberHandler.ApprovePayment)
	admin.POST("/members/:id/notify-expired", memberHandler.NotifyExpired)
	admin.DELETE("/members/:id", memberHandler.Delete)

	admin.GET("/renewals", memberHandler.ListRenewals)
	admin.PATCH("/renewals/:id/approve", memberHandler.ApproveRenewal)
	admin.PATCH("/renewals/:id/reject", memberHandler.RejectRenewal)

	admin.POST("/payments", paymentHandler.Create)

	// Start server with graceful shutdown
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	go func() {
		log.Printf("Server starting on port %s", port)
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Println("Shutting down server...")

	stopWatchers()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}

// seedAdmin ensures the bootstrap admin account exists.
func seedAdmin(db *gorm.DB) {
	email := os.Getenv("ADMIN_EMAIL")
	password := os.Getenv("ADMIN_PASSWORD")
	if email == "" || password == "" {
		return
	}

	var count int64
	if err := db.Model(&models.Admin{}).Where("email = ?", email).Count(&count).Error; err != nil || count > 0 {
		return
	}

	admin := models.Admin{Email: email}
	if err := admin.SetPassword(password); err != nil {
		log.Printf("Warning: failed to hash admin password: %v", err)
		return
	}
	if err := db.Create(&admin).Error; err != nil {
		log.Printf("Warning: failed to seed admin account: %v", err)
		return
	}
	log.Printf("Seeded admin account %s", email)
}

// resumeOpenSessions restarts watchers for sessions still marked created.
func resumeOpenSessions(ctx context.Context, db *gorm.DB, payments *services.PaymentService) {
	var sessions []models.PaymentSession
	if err := db.Where("state = ?", models.SessionCreated).Find(&sessions).Error; err != nil {
		log.Printf("Warning: failed to fetch open payment sessions: %v", err)
		return
	}
	for i := range sessions {
		payments.Watch(ctx, &sessions[i])
	}
	if len(sessions) > 0 {
		log.Printf("Resumed %d open payment session watchers", len(sessions))
	}
}
