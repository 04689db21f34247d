package services

import (
	"fmt"
	"log"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const btnShareContact = "📱 Отправить номер телефона"

// botAPI — то, что TelegramService берёт от tgbotapi.BotAPI.
// В тестах подменяется заглушкой.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// TelegramService — доставка сообщений через Bot API.
// Таймаут HTTP-клиента ограничен: медленный Telegram не должен
// подвешивать обработчик запроса.
type TelegramService struct {
	bot    botAPI
	dryRun bool
}

// NewTelegramService подключается к Bot API (getMe). При пустом токене или
// dry-run возвращает сервис-имитацию, который только логирует.
func NewTelegramService(botToken string, dryRun bool) (*TelegramService, error) {
	if dryRun || botToken == "" {
		log.Printf("[tg] dry-run mode: сообщения не отправляются")
		return &TelegramService{dryRun: true}, nil
	}
	client := &http.Client{Timeout: 5 * time.Second}
	bot, err := tgbotapi.NewBotAPIWithClient(botToken, tgbotapi.APIEndpoint, client)
	if err != nil {
		return nil, fmt.Errorf("telegram connect: %w", err)
	}
	log.Printf("[tg] authorized as @%s", bot.Self.UserName)
	return &TelegramService{bot: bot}, nil
}

func (t *TelegramService) SendMessage(chatID int64, text string) error {
	if t == nil || t.dryRun || chatID == 0 {
		log.Printf("[tg][skip] chatID=%d text=%q", chatID, text)
		return nil
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if _, err := t.bot.Send(msg); err != nil {
		log.Printf("[tg][send][err] chatID=%d: %v", chatID, err)
		return fmt.Errorf("telegram sendMessage: %w", err)
	}
	return nil
}

// RequestContact — сообщение с кнопкой "поделиться номером".
func (t *TelegramService) RequestContact(chatID int64, text string) error {
	if t == nil || t.dryRun || chatID == 0 {
		log.Printf("[tg][skip] request contact chatID=%d", chatID)
		return nil
	}
	msg := tgbotapi.NewMessage(chatID, text)
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButtonContact(btnShareContact),
		),
	)
	kb.OneTimeKeyboard = true
	msg.ReplyMarkup = kb
	if _, err := t.bot.Send(msg); err != nil {
		log.Printf("[tg][contact-kb][err] chatID=%d: %v", chatID, err)
		return fmt.Errorf("telegram requestContact: %w", err)
	}
	return nil
}

func (t *TelegramService) SetWebhook(url string) error {
	if t == nil || t.dryRun || url == "" {
		return nil
	}
	wh, err := tgbotapi.NewWebhook(url)
	if err != nil {
		return fmt.Errorf("telegram webhook config: %w", err)
	}
	wh.MaxConnections = 40
	resp, err := t.bot.Request(wh)
	if err != nil {
		return fmt.Errorf("telegram setWebhook: %w", err)
	}
	log.Printf("[tg][setWebhook] ok=%v desc=%s", resp.Ok, resp.Description)
	return nil
}
