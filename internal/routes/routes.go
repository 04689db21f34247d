package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/urmatdigital/tulpar/internal/authz"
	"github.com/urmatdigital/tulpar/internal/handlers"
	"github.com/urmatdigital/tulpar/internal/middleware"
)

func SetupRoutes(
	r *gin.Engine,
	jwtSecret []byte,
	authHandler *handlers.AuthHandler,
	telegramHandler *handlers.TelegramHandler,
	userHandler *handlers.UserHandler,
	healthHandler *handlers.HealthHandler,
) *gin.Engine {

	// ---- public
	r.GET("/healthz", healthHandler.Healthz)

	auth := r.Group("/auth")
	{
		auth.POST("/send-code", authHandler.SendCode)
		auth.POST("/verify-code", authHandler.VerifyCode)
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.RefreshToken)
		auth.GET("/telegram/callback", telegramHandler.LoginCallback)
	}

	// вебхук защищён секретом, не JWT
	r.POST("/telegram/webhook", telegramHandler.Webhook)
	r.GET("/telegram/webhook", telegramHandler.WebhookCheck)

	// ---- protected
	protected := r.Group("/", middleware.AuthMiddleware(jwtSecret))
	{
		protected.GET("/users/me", userHandler.Me)

		admin := protected.Group("/admin", middleware.RequireRoles(authz.RoleAdmin))
		{
			admin.GET("/db-health", healthHandler.DBHealth)
		}
	}

	return r
}
