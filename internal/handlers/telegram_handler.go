package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/urmatdigital/tulpar/internal/models"
	"github.com/urmatdigital/tulpar/internal/services"
)

// UpdateHandler — обработчик update из вебхука (BindingService в проде).
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, up *tgbotapi.Update)
}

type TelegramHandler struct {
	Binder        UpdateHandler
	Users         services.UserService
	WebhookSecret string
	BotToken      string
	AppURL        string
}

func NewTelegramHandler(binder UpdateHandler, users services.UserService, webhookSecret, botToken, appURL string) *TelegramHandler {
	return &TelegramHandler{
		Binder:        binder,
		Users:         users,
		WebhookSecret: webhookSecret,
		BotToken:      botToken,
		AppURL:        appURL,
	}
}

// секрет принимаем из заголовка Bot API или из query (?secret=)
func (h *TelegramHandler) secretOK(c *gin.Context) bool {
	if h.WebhookSecret == "" {
		return false
	}
	if c.GetHeader("X-Telegram-Bot-Api-Secret-Token") == h.WebhookSecret {
		return true
	}
	return c.Query("secret") == h.WebhookSecret
}

// @Summary      Вебхук Telegram
// @Description  Принимает update от Bot API; при неверном секрете — 403
// @Tags         Telegram
// @Accept       json
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      403  {object}  map[string]string
// @Router       /telegram/webhook [post]
func (h *TelegramHandler) Webhook(c *gin.Context) {
	if !h.secretOK(c) {
		log.Printf("[tg][webhook] secret mismatch from %s", c.ClientIP())
		c.JSON(http.StatusForbidden, gin.H{"error": "Invalid secret"})
		return
	}

	var up tgbotapi.Update
	if err := c.ShouldBindJSON(&up); err != nil {
		// битый payload подтверждаем, чтобы Telegram не ретраил
		log.Printf("[tg][webhook] bind json error: %v", err)
		c.JSON(http.StatusOK, gin.H{"success": true})
		return
	}

	h.Binder.HandleUpdate(c.Request.Context(), &up)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// @Summary      Проверка вебхука
// @Tags         Telegram
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      403  {object}  map[string]string
// @Router       /telegram/webhook [get]
func (h *TelegramHandler) WebhookCheck(c *gin.Context) {
	if !h.secretOK(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Invalid secret"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// @Summary      Callback Telegram Login Widget
// @Description  Проверяет подпись виджета, сохраняет пользователя и редиректит в кабинет
// @Tags         Telegram
// @Produce      json
// @Success      307
// @Failure      400  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /auth/telegram/callback [get]
func (h *TelegramHandler) LoginCallback(c *gin.Context) {
	q := c.Request.URL.Query()
	id := q.Get("id")
	authDate := q.Get("auth_date")
	hash := q.Get("hash")
	if id == "" || authDate == "" || hash == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required Telegram parameters"})
		return
	}

	if !h.checkWidgetHash(q, hash) {
		log.Printf("[tg][callback] widget hash mismatch id=%s", id)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid Telegram signature"})
		return
	}

	telegramID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid Telegram id"})
		return
	}
	authTS, _ := strconv.ParseInt(authDate, 10, 64)

	user := &models.User{
		TelegramID: &telegramID,
		FirstName:  q.Get("first_name"),
		LastName:   q.Get("last_name"),
		Username:   q.Get("username"),
		PhotoURL:   q.Get("photo_url"),
		AuthDate:   authTS,
	}
	if err := h.Users.LinkTelegram(c.Request.Context(), user); err != nil {
		log.Printf("[tg][callback] user upsert failed id=%d: %v", telegramID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save user"})
		return
	}

	c.Redirect(http.StatusTemporaryRedirect, strings.TrimRight(h.AppURL, "/")+"/dashboard")
}

// checkWidgetHash — схема подписи Login Widget: HMAC-SHA256 от
// отсортированных пар key=value (кроме hash), ключ — SHA256(bot_token).
func (h *TelegramHandler) checkWidgetHash(q map[string][]string, gotHash string) bool {
	if h.BotToken == "" {
		// dry-run без токена: подпись проверить нечем
		return true
	}
	pairs := make([]string, 0, len(q))
	for k, vals := range q {
		if k == "hash" || len(vals) == 0 {
			continue
		}
		pairs = append(pairs, fmt.Sprintf("%s=%s", k, vals[0]))
	}
	sort.Strings(pairs)
	checkString := strings.Join(pairs, "\n")

	secret := sha256.Sum256([]byte(h.BotToken))
	mac := hmac.New(sha256.New, secret[:])
	mac.Write([]byte(checkString))
	want := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(want), []byte(gotHash))
}
