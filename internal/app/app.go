package app

import (
	"database/sql"
	"fmt"
	"log"

	"github.com/urmatdigital/tulpar/internal/config"
	"github.com/urmatdigital/tulpar/internal/handlers"
	"github.com/urmatdigital/tulpar/internal/repositories"
	"github.com/urmatdigital/tulpar/internal/routes"
	"github.com/urmatdigital/tulpar/internal/services"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	_ "github.com/urmatdigital/tulpar/docs"
)

func Run() {
	cfg := config.LoadConfig()

	// === DB ===
	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		log.Fatal("Ошибка подключения к БД: ", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("Ошибка закрытия БД: %v", err)
		}
	}()

	// === Redis ===
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Printf("Ошибка закрытия Redis: %v", err)
		}
	}()

	// === Telegram bot ===
	tg, err := services.NewTelegramService(cfg.Telegram.BotToken, cfg.Telegram.DryRun)
	if err != nil {
		log.Fatal("Ошибка подключения к Telegram: ", err)
	}
	if cfg.Server.AppURL != "" && !cfg.Telegram.DryRun {
		webhookURL := fmt.Sprintf("%s/telegram/webhook?secret=%s", cfg.Server.AppURL, cfg.Telegram.WebhookSecret)
		if err := tg.SetWebhook(webhookURL); err != nil {
			log.Printf("Не удалось установить вебхук: %v", err)
		}
	}

	// === Repos ===
	userRepo := repositories.NewUserRepository(db)
	codeRepo := repositories.NewVerificationCodeRepository(db)
	bindingRepo := repositories.NewBindingRepository(rdb)

	// === Services ===
	limiter := services.NewRedisRateLimiter(rdb, cfg.SendWindow(), cfg.Verification.MaxSendsPerCycle)
	verificationService := services.NewVerificationService(codeRepo, userRepo, tg, limiter, cfg.CodeTTL())
	bindingService := services.NewBindingService(userRepo, codeRepo, bindingRepo, tg, cfg.BindingTTL())
	userService := services.NewUserService(userRepo)
	authService := services.NewAuthService(userRepo, cfg.Auth.JWTSecret, cfg.AccessTTL(), cfg.RefreshTTL())

	// === Handlers ===
	authHandler := handlers.NewAuthHandler(verificationService, userService, authService)
	telegramHandler := handlers.NewTelegramHandler(
		bindingService, userService,
		cfg.Telegram.WebhookSecret, cfg.Telegram.BotToken, cfg.Server.AppURL,
	)
	userHandler := handlers.NewUserHandler(userService)
	healthHandler := handlers.NewHealthHandler(db, rdb)

	// === Gin ===
	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	// Swagger
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	routes.SetupRoutes(
		router,
		[]byte(cfg.Auth.JWTSecret),
		authHandler,
		telegramHandler,
		userHandler,
		healthHandler,
	)

	// === Run ===
	listenAddr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Printf("Сервер запущен на %s", listenAddr)
	if err := router.Run(listenAddr); err != nil {
		log.Fatal("Ошибка запуска сервера: ", err)
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
