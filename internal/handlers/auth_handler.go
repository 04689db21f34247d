package handlers

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/urmatdigital/tulpar/internal/models"
	"github.com/urmatdigital/tulpar/internal/services"
	"github.com/urmatdigital/tulpar/internal/utils"
)

type AuthHandler struct {
	Verification *services.VerificationService
	Users        services.UserService
	Auth         services.AuthService
}

func NewAuthHandler(verification *services.VerificationService, users services.UserService, auth services.AuthService) *AuthHandler {
	return &AuthHandler{Verification: verification, Users: users, Auth: auth}
}

// @Summary      Запросить код подтверждения
// @Description  Генерирует одноразовый код и отправляет его в привязанный Telegram
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        request  body      models.SendCodeRequest  true  "Номер телефона"
// @Success      200      {object}  map[string]interface{}
// @Failure      400      {object}  map[string]string
// @Failure      404      {object}  map[string]string
// @Failure      429      {object}  map[string]string
// @Failure      500      {object}  map[string]string
// @Router       /auth/send-code [post]
func (h *AuthHandler) SendCode(c *gin.Context) {
	var req models.SendCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Phone number is required"})
		return
	}
	phone := utils.NormalizePhone(req.Phone)
	if phone == "" {
		log.Printf("[auth][send-code] bad phone: %q", req.Phone)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid phone number"})
		return
	}

	if err := h.Verification.RequestCode(c.Request.Context(), phone); err != nil {
		switch err {
		case services.ErrTelegramNotLinked:
			c.JSON(http.StatusNotFound, gin.H{"error": "Telegram not connected"})
		case services.ErrSendThrottled:
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests, try later"})
		case services.ErrDeliveryFailed:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to send code"})
		default:
			log.Printf("[auth][send-code] phone=%s: %v", phone, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Service temporarily unavailable"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// @Summary      Подтвердить код
// @Description  Гасит одноразовый код, отмечает телефон подтверждённым и открывает сессию
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        request  body      models.VerifyCodeRequest  true  "Телефон и код"
// @Success      200      {object}  map[string]interface{}
// @Failure      400      {object}  map[string]string
// @Failure      404      {object}  map[string]string
// @Failure      500      {object}  map[string]string
// @Router       /auth/verify-code [post]
func (h *AuthHandler) VerifyCode(c *gin.Context) {
	var req models.VerifyCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Phone number and code are required"})
		return
	}
	phone := utils.NormalizePhone(req.Phone)
	code := strings.TrimSpace(req.Code)
	if phone == "" || code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Phone number and code are required"})
		return
	}

	user, err := h.Verification.SubmitCode(c.Request.Context(), phone, code)
	if err != nil {
		switch err {
		case services.ErrCodeInvalid:
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid or expired verification code"})
		case services.ErrUserNotFound:
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		default:
			log.Printf("[auth][verify-code] phone=%s: %v", phone, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to verify code"})
		}
		return
	}

	tokens, err := h.Auth.NewSession(c.Request.Context(), user)
	if err != nil {
		log.Printf("[auth][verify-code] session failed user_id=%s: %v", user.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"user":    user,
		"tokens":  tokens,
	})
}

// @Summary      Вход по паролю
// @Description  Аутентификация по номеру телефона и паролю
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        login  body      models.LoginRequest  true  "Данные для входа"
// @Success      200    {object}  map[string]interface{}
// @Failure      400    {object}  map[string]string
// @Failure      401    {object}  map[string]string
// @Failure      500    {object}  map[string]string
// @Router       /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	phone := utils.NormalizePhone(req.Phone)
	if phone == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid phone number"})
		return
	}

	user, err := h.Users.GetByPhone(c.Request.Context(), phone)
	if err != nil {
		log.Printf("[auth][login] lookup failed phone=%s: %v", phone, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Service temporarily unavailable"})
		return
	}
	if user == nil || strings.TrimSpace(user.PasswordHash) == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid phone or password"})
		return
	}
	if err := h.Auth.CheckPassword(user.PasswordHash, strings.TrimSpace(req.Password)); err != nil {
		log.Printf("[auth][login] bcrypt mismatch user_id=%s", user.ID)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid phone or password"})
		return
	}

	tokens, err := h.Auth.NewSession(c.Request.Context(), user)
	if err != nil {
		log.Printf("[auth][login] session failed user_id=%s: %v", user.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session"})
		return
	}

	log.Printf("[auth][login] success user_id=%s", user.ID)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"user":    user,
		"tokens":  tokens,
	})
}

// @Summary      Обновить токены
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Router       /auth/refresh [post]
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tokens, _, err := h.Auth.RotateSession(c.Request.Context(), strings.TrimSpace(req.RefreshToken))
	if err != nil {
		if err == services.ErrInvalidRefresh {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid refresh token"})
			return
		}
		log.Printf("[auth][refresh] rotate failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to rotate refresh token"})
		return
	}

	c.JSON(http.StatusOK, tokens)
}
