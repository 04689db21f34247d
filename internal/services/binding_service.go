package services

import (
	"context"
	"log"
	"net/url"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/urmatdigital/tulpar/internal/models"
	"github.com/urmatdigital/tulpar/internal/repositories"
	"github.com/urmatdigital/tulpar/internal/utils"
)

// BotMessenger — исходящие сообщения бота, нужные binder-у.
type BotMessenger interface {
	SendMessage(chatID int64, text string) error
	RequestContact(chatID int64, text string) error
}

// BindingService — привязка Telegram-чата к номеру телефона.
// Поток двухшаговый: deep-link /start register_<phone> создаёт ожидающую
// привязку, присланный контакт её завершает. Контакт без ожидающей
// привязки тоже принимается — номер берётся из самого контакта.
type BindingService struct {
	Users      repositories.UserRepository
	Codes      repositories.VerificationCodeRepository
	Bindings   repositories.BindingRepository
	Bot        BotMessenger
	BindingTTL time.Duration
}

func NewBindingService(
	users repositories.UserRepository,
	codes repositories.VerificationCodeRepository,
	bindings repositories.BindingRepository,
	bot BotMessenger,
	bindingTTL time.Duration,
) *BindingService {
	if bindingTTL <= 0 {
		bindingTTL = 30 * time.Minute
	}
	return &BindingService{
		Users:      users,
		Codes:      codes,
		Bindings:   bindings,
		Bot:        bot,
		BindingTTL: bindingTTL,
	}
}

// HandleUpdate разбирает входящий update. Ошибки обработки логируются и
// наружу не выходят: вебхук всегда подтверждает приём.
func (s *BindingService) HandleUpdate(ctx context.Context, up *tgbotapi.Update) {
	if up == nil || up.Message == nil {
		return
	}
	msg := up.Message
	chatID := msg.Chat.ID
	log.Printf("[tg][webhook] incoming: chatID=%d text=%q contact=%v", chatID, msg.Text, msg.Contact != nil)

	switch {
	case msg.Contact != nil:
		s.handleContact(ctx, msg)

	case msg.IsCommand() && msg.Command() == "start":
		s.handleStart(ctx, chatID, msg.CommandArguments())

	default:
		_ = s.Bot.RequestContact(chatID,
			"Пожалуйста, используйте кнопку «Отправить номер телефона» для регистрации")
	}
}

// handleStart — /start [<action>_<phone>]. Payload приходит из deep-link,
// который сайт строит как register_<phone> или connect_<phone>.
func (s *BindingService) handleStart(ctx context.Context, chatID int64, payload string) {
	phone := parseStartPhone(payload)
	if phone != "" {
		if err := s.Bindings.Set(ctx, chatID, phone, s.BindingTTL); err != nil {
			log.Printf("[tg][start] binding save failed chatID=%d: %v", chatID, err)
		}
	}

	_ = s.Bot.SendMessage(chatID,
		"Добро пожаловать в TULPAR EXPRESS! 🚀\n\nДля продолжения регистрации, пожалуйста, нажмите на кнопку ниже, чтобы поделиться своим номером телефона.")
	_ = s.Bot.RequestContact(chatID,
		"Для продолжения регистрации, пожалуйста, поделитесь своим номером телефона")
}

func (s *BindingService) handleContact(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	contact := msg.Contact

	// принимаем только собственный контакт отправителя
	if msg.From == nil || contact.UserID != msg.From.ID {
		_ = s.Bot.SendMessage(chatID, "Пожалуйста, отправьте свой собственный контакт")
		return
	}

	phone := utils.NormalizePhone(contact.PhoneNumber)
	if phone == "" {
		_ = s.Bot.SendMessage(chatID, "Не удалось распознать номер телефона. Поддерживаются номера Кыргызстана (+996).")
		return
	}

	// если привязку начали с сайта под другой номер — не принимаем
	pending, err := s.Bindings.Get(ctx, chatID)
	if err != nil {
		log.Printf("[tg][contact] binding lookup failed chatID=%d: %v", chatID, err)
	}
	if pending != "" && pending != phone {
		_ = s.Bot.SendMessage(chatID,
			"Этот номер не совпадает с номером, указанным на сайте. Проверьте номер и попробуйте ещё раз.")
		return
	}

	user := &models.User{
		Phone:      phone,
		TelegramID: &contact.UserID,
		FirstName:  contact.FirstName,
		LastName:   contact.LastName,
		AuthDate:   time.Now().Unix(),
	}
	if msg.From != nil {
		user.Username = msg.From.UserName
	}
	if err := s.Users.UpsertByPhone(ctx, user); err != nil {
		log.Printf("[tg][contact] user upsert failed phone=%s: %v", phone, err)
		_ = s.Bot.SendMessage(chatID, "Произошла ошибка при сохранении данных")
		return
	}
	if pending != "" {
		_ = s.Bindings.Delete(ctx, chatID)
	}
	log.Printf("[tg][contact] linked phone=%s chatID=%d user_id=%s", phone, chatID, user.ID)

	// если на сайте уже запросили код — доставляем его сразу
	active, err := s.Codes.Active(ctx, phone)
	if err != nil {
		log.Printf("[tg][contact] active code lookup failed phone=%s: %v", phone, err)
	}
	if active != nil {
		_ = s.Bot.SendMessage(chatID, "Ваш код подтверждения: <b>"+active.Code+"</b>")
		return
	}
	_ = s.Bot.SendMessage(chatID,
		"Код подтверждения не найден или истёк. Пожалуйста, запросите новый код на сайте.")
}

// parseStartPhone — payload вида register_<phone> / connect_<phone>,
// номер может прийти URL-экранированным.
func parseStartPhone(payload string) string {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return ""
	}
	if unescaped, err := url.QueryUnescape(payload); err == nil {
		payload = unescaped
	}
	action, phone, found := strings.Cut(payload, "_")
	if !found {
		return ""
	}
	if action != "register" && action != "connect" {
		return ""
	}
	return utils.NormalizePhone(phone)
}
