package services

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type mockBindingRepo struct {
	mu       sync.Mutex
	bindings map[int64]string
}

func newMockBindingRepo() *mockBindingRepo {
	return &mockBindingRepo{bindings: make(map[int64]string)}
}

func (m *mockBindingRepo) Set(_ context.Context, chatID int64, phone string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bindings[chatID] = phone
	return nil
}

func (m *mockBindingRepo) Get(_ context.Context, chatID int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bindings[chatID], nil
}

func (m *mockBindingRepo) Delete(_ context.Context, chatID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.bindings, chatID)
	return nil
}

type mockBot struct {
	mu              sync.Mutex
	messages        []string
	contactRequests int
}

func (b *mockBot) SendMessage(_ int64, text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, text)
	return nil
}

func (b *mockBot) RequestContact(_ int64, text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.contactRequests++
	return nil
}

func (b *mockBot) sawMessageContaining(sub string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, m := range b.messages {
		if strings.Contains(m, sub) {
			return true
		}
	}
	return false
}

func commandUpdate(chatID, fromID int64, text string) *tgbotapi.Update {
	return &tgbotapi.Update{
		Message: &tgbotapi.Message{
			Text: text,
			Chat: &tgbotapi.Chat{ID: chatID},
			From: &tgbotapi.User{ID: fromID, UserName: "tester"},
			Entities: []tgbotapi.MessageEntity{
				{Type: "bot_command", Offset: 0, Length: len("/start")},
			},
		},
	}
}

func contactUpdate(chatID, fromID, contactUserID int64, phone string) *tgbotapi.Update {
	return &tgbotapi.Update{
		Message: &tgbotapi.Message{
			Chat: &tgbotapi.Chat{ID: chatID},
			From: &tgbotapi.User{ID: fromID, UserName: "tester"},
			Contact: &tgbotapi.Contact{
				PhoneNumber: phone,
				UserID:      contactUserID,
				FirstName:   "Айбек",
			},
		},
	}
}

func newTestBinder() (*BindingService, *mockUserRepo, *mockCodeRepo, *mockBindingRepo, *mockBot) {
	users := newMockUserRepo()
	codes := newMockCodeRepo()
	bindings := newMockBindingRepo()
	bot := &mockBot{}
	return NewBindingService(users, codes, bindings, bot, 30*time.Minute), users, codes, bindings, bot
}

func TestParseStartPhone(t *testing.T) {
	cases := []struct {
		payload string
		want    string
	}{
		{"register_+996700123456", "+996700123456"},
		{"connect_996700123456", "+996700123456"},
		{"register_%2B996700123456", "+996700123456"}, // URL-экранированный
		{"register_", ""},
		{"unknown_+996700123456", ""},
		{"", ""},
		{"register_12345", ""},
	}
	for _, tc := range cases {
		if got := parseStartPhone(tc.payload); got != tc.want {
			t.Errorf("parseStartPhone(%q) = %q, want %q", tc.payload, got, tc.want)
		}
	}
}

func TestStartWithPayloadStoresPendingBinding(t *testing.T) {
	svc, _, _, bindings, bot := newTestBinder()

	svc.HandleUpdate(context.Background(), commandUpdate(99, 42, "/start register_+996700123456"))

	if got, _ := bindings.Get(context.Background(), 99); got != "+996700123456" {
		t.Fatalf("pending binding = %q, want +996700123456", got)
	}
	if bot.contactRequests == 0 {
		t.Fatal("bot must request contact after /start")
	}
}

func TestContactFromAnotherUserRejected(t *testing.T) {
	svc, users, _, _, bot := newTestBinder()

	svc.HandleUpdate(context.Background(), contactUpdate(99, 42, 1000, testPhone))

	if u, _ := users.GetByPhone(context.Background(), testPhone); u != nil {
		t.Fatal("foreign contact must not create a user")
	}
	if !bot.sawMessageContaining("собственный контакт") {
		t.Fatal("expected rejection message")
	}
}

func TestContactMismatchingPendingBindingRejected(t *testing.T) {
	svc, users, _, bindings, bot := newTestBinder()
	_ = bindings.Set(context.Background(), 99, "+996700999999", 30*time.Minute)

	svc.HandleUpdate(context.Background(), contactUpdate(99, 42, 42, testPhone))

	if u, _ := users.GetByPhone(context.Background(), testPhone); u != nil {
		t.Fatal("mismatching contact must not create a user")
	}
	if !bot.sawMessageContaining("не совпадает") {
		t.Fatal("expected mismatch message")
	}
}

func TestContactBindsAndDeliversActiveCode(t *testing.T) {
	svc, users, codes, bindings, bot := newTestBinder()
	_ = bindings.Set(context.Background(), 99, testPhone, 30*time.Minute)
	if _, err := codes.Issue(context.Background(), testPhone, "482913", 5*time.Minute); err != nil {
		t.Fatalf("issue: %v", err)
	}

	svc.HandleUpdate(context.Background(), contactUpdate(99, 42, 42, testPhone))

	u, _ := users.GetByPhone(context.Background(), testPhone)
	if u == nil || u.TelegramID == nil || *u.TelegramID != 42 {
		t.Fatalf("user must be bound to telegram id 42, got %+v", u)
	}
	if !bot.sawMessageContaining("482913") {
		t.Fatal("active code must be delivered on binding")
	}
	if got, _ := bindings.Get(context.Background(), 99); got != "" {
		t.Fatal("pending binding must be consumed")
	}
}

func TestContactWithoutActiveCode(t *testing.T) {
	svc, _, _, _, bot := newTestBinder()

	svc.HandleUpdate(context.Background(), contactUpdate(99, 42, 42, testPhone))

	if !bot.sawMessageContaining("не найден или истёк") {
		t.Fatal("expected 'no code' message")
	}
}

func TestNonContactMessagePromptsForContact(t *testing.T) {
	svc, _, _, _, bot := newTestBinder()

	svc.HandleUpdate(context.Background(), &tgbotapi.Update{
		Message: &tgbotapi.Message{
			Text: "привет",
			Chat: &tgbotapi.Chat{ID: 99},
			From: &tgbotapi.User{ID: 42},
		},
	})

	if bot.contactRequests != 1 {
		t.Fatalf("expected contact prompt, got %d", bot.contactRequests)
	}
}

func TestNilMessageIgnored(t *testing.T) {
	svc, _, _, _, bot := newTestBinder()
	svc.HandleUpdate(context.Background(), &tgbotapi.Update{})
	svc.HandleUpdate(context.Background(), nil)
	if len(bot.messages) != 0 || bot.contactRequests != 0 {
		t.Fatal("empty updates must be ignored")
	}
}
