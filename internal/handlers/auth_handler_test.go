package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/urmatdigital/tulpar/internal/models"
	"github.com/urmatdigital/tulpar/internal/services"
)

type stubCodeRepo struct {
	mu    sync.Mutex
	codes map[string]*models.VerificationCode
}

func newStubCodeRepo() *stubCodeRepo {
	return &stubCodeRepo{codes: make(map[string]*models.VerificationCode)}
}

func (s *stubCodeRepo) Issue(_ context.Context, phone, code string, ttl time.Duration) (*models.VerificationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := &models.VerificationCode{Phone: phone, Code: code, CreatedAt: time.Now(), ExpiresAt: time.Now().Add(ttl)}
	s.codes[phone] = v
	return v, nil
}

func (s *stubCodeRepo) Redeem(_ context.Context, phone, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.codes[phone]
	if !ok || v.Used || v.Code != code || time.Now().After(v.ExpiresAt) {
		return false, nil
	}
	v.Used = true
	return true, nil
}

func (s *stubCodeRepo) Active(_ context.Context, phone string) (*models.VerificationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.codes[phone]
	if !ok || v.Used || time.Now().After(v.ExpiresAt) {
		return nil, nil
	}
	return v, nil
}

func (s *stubCodeRepo) Invalidate(_ context.Context, phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.codes, phone)
	return nil
}

type stubUserRepo struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func newStubUserRepo() *stubUserRepo {
	return &stubUserRepo{users: make(map[string]*models.User)}
}

func (s *stubUserRepo) GetByPhone(_ context.Context, phone string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[phone], nil
}

func (s *stubUserRepo) GetByTelegramID(_ context.Context, id int64) (*models.User, error) {
	return nil, nil
}

func (s *stubUserRepo) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, nil
}

func (s *stubUserRepo) UpsertByPhone(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	s.users[u.Phone] = u
	return nil
}

func (s *stubUserRepo) UpsertByTelegramID(_ context.Context, u *models.User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

func (s *stubUserRepo) MarkPhoneVerified(_ context.Context, phone string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[phone]
	if !ok {
		return false, nil
	}
	u.PhoneVerified = true
	return true, nil
}

func (s *stubUserRepo) UpdateRefresh(_ context.Context, _ uuid.UUID, _ string, _ time.Time) error {
	return nil
}

func (s *stubUserRepo) RotateRefresh(_ context.Context, _, _ string, _ time.Time) (*models.User, error) {
	return nil, nil
}

func (s *stubUserRepo) GetByRefreshToken(_ context.Context, _ string) (*models.User, error) {
	return nil, nil
}

type stubNotifier struct {
	mu   sync.Mutex
	sent []string
}

func (n *stubNotifier) SendMessage(_ int64, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, text)
	return nil
}

type stubAuthService struct{}

func (stubAuthService) HashPassword(string) (string, error) { return "", nil }
func (stubAuthService) CheckPassword(string, string) error  { return nil }
func (stubAuthService) NewSession(_ context.Context, _ *models.User) (*services.TokenPair, error) {
	return &services.TokenPair{AccessToken: "access", RefreshToken: "refresh"}, nil
}
func (stubAuthService) RotateSession(_ context.Context, _ string) (*services.TokenPair, *models.User, error) {
	return nil, nil, services.ErrInvalidRefresh
}

func newAuthTestRouter(users *stubUserRepo, codes *stubCodeRepo, notifier *stubNotifier) *gin.Engine {
	gin.SetMode(gin.TestMode)
	verification := services.NewVerificationService(codes, users, notifier, nil, 5*time.Minute)
	h := NewAuthHandler(verification, nil, stubAuthService{})

	r := gin.New()
	r.POST("/auth/send-code", h.SendCode)
	r.POST("/auth/verify-code", h.VerifyCode)
	r.POST("/auth/refresh", h.RefreshToken)
	return r
}

func postJSON(t *testing.T, r *gin.Engine, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func linkedUser(users *stubUserRepo, phone string, tgID int64) {
	_ = users.UpsertByPhone(context.Background(), &models.User{
		Phone:      phone,
		TelegramID: &tgID,
		Role:       "user",
	})
}

func TestSendCodeValidation(t *testing.T) {
	r := newAuthTestRouter(newStubUserRepo(), newStubCodeRepo(), &stubNotifier{})

	t.Run("missing phone", func(t *testing.T) {
		w := postJSON(t, r, "/auth/send-code", gin.H{})
		if w.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", w.Code)
		}
	})

	t.Run("malformed phone", func(t *testing.T) {
		w := postJSON(t, r, "/auth/send-code", gin.H{"phone": "12345"})
		if w.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", w.Code)
		}
	})
}

func TestSendCodeUnboundPhone(t *testing.T) {
	r := newAuthTestRouter(newStubUserRepo(), newStubCodeRepo(), &stubNotifier{})

	w := postJSON(t, r, "/auth/send-code", gin.H{"phone": "+996700123456"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestSendThenVerifyFlow(t *testing.T) {
	users := newStubUserRepo()
	codes := newStubCodeRepo()
	notifier := &stubNotifier{}
	linkedUser(users, "+996700123456", 42)
	r := newAuthTestRouter(users, codes, notifier)

	w := postJSON(t, r, "/auth/send-code", gin.H{"phone": "+996700123456"})
	if w.Code != http.StatusOK {
		t.Fatalf("send-code status = %d, want 200, body=%s", w.Code, w.Body.String())
	}

	active, _ := codes.Active(context.Background(), "+996700123456")
	if active == nil {
		t.Fatal("no active code after send")
	}

	w = postJSON(t, r, "/auth/verify-code", gin.H{"phone": "+996700123456", "code": active.Code})
	if w.Code != http.StatusOK {
		t.Fatalf("verify-code status = %d, want 200, body=%s", w.Code, w.Body.String())
	}

	var resp struct {
		Success bool `json:"success"`
		Tokens  struct {
			AccessToken string `json:"access_token"`
		} `json:"tokens"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !resp.Success || resp.Tokens.AccessToken == "" {
		t.Fatalf("expected success with tokens, got %s", w.Body.String())
	}

	// повторное гашение
	w = postJSON(t, r, "/auth/verify-code", gin.H{"phone": "+996700123456", "code": active.Code})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("second verify status = %d, want 400", w.Code)
	}
}

func TestVerifyCodeValidation(t *testing.T) {
	users := newStubUserRepo()
	linkedUser(users, "+996700123456", 42)
	r := newAuthTestRouter(users, newStubCodeRepo(), &stubNotifier{})

	w := postJSON(t, r, "/auth/verify-code", gin.H{"phone": "+996700123456"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}

	w = postJSON(t, r, "/auth/verify-code", gin.H{"phone": "+996700123456", "code": "000000"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("wrong code status = %d, want 400", w.Code)
	}
}

func TestRefreshRejectsUnknownToken(t *testing.T) {
	r := newAuthTestRouter(newStubUserRepo(), newStubCodeRepo(), &stubNotifier{})

	w := postJSON(t, r, "/auth/refresh", gin.H{"refresh_token": "nope"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}
