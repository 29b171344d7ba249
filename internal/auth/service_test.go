package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/abduss/cloudnest/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		AccessTokenSecret:  "access-secret-0123456789",
		RefreshTokenSecret: "refresh-secret",
		AccessTokenTTL:     time.Minute,
		RefreshTokenTTL:    time.Hour,
		BcryptCost:         4,
	}
}

func TestRegisterSuccess(t *testing.T) {
	store := newMemoryStore()
	service := NewService(store, testAuthConfig())

	result, err := service.Register(context.Background(), RegisterInput{
		Email:    "User@Example.com",
		Password: "StrongPass1!",
	})
	if err != nil {
		t.Fatalf("register returned error: %v", err)
	}
	if result.User.PasswordHash != "" {
		t.Fatalf("expected password hash to be stripped from response")
	}
	if result.Tokens.AccessToken == "" || result.Tokens.RefreshToken == "" {
		t.Fatalf("expected tokens to be issued")
	}
	if _, ok := store.users["user@example.com"]; !ok {
		t.Fatalf("expected email to be stored lowercased")
	}
	if len(store.refreshTokens) != 1 {
		t.Fatalf("expected refresh token hash stored; got %d", len(store.refreshTokens))
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	service := NewService(newMemoryStore(), testAuthConfig())
	if _, err := service.Register(context.Background(), RegisterInput{Email: "user@example.com", Password: "StrongPass1!"}); err != nil {
		t.Fatalf("initial registration returned error: %v", err)
	}

	_, err := service.Register(context.Background(), RegisterInput{Email: "user@example.com", Password: "AnotherPass2!"})
	if err != ErrEmailAlreadyExists {
		t.Fatalf("expected ErrEmailAlreadyExists, got %v", err)
	}
}

func TestRegisterRejectsShortPassword(t *testing.T) {
	service := NewService(newMemoryStore(), testAuthConfig())
	if _, err := service.Register(context.Background(), RegisterInput{Email: "a@b.c", Password: "short"}); err != ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginAndValidate(t *testing.T) {
	service := NewService(newMemoryStore(), testAuthConfig())
	registered, err := service.Register(context.Background(), RegisterInput{Email: "user@example.com", Password: "StrongPass1!"})
	if err != nil {
		t.Fatalf("register returned error: %v", err)
	}

	result, err := service.Login(context.Background(), LoginInput{Email: "user@example.com", Password: "StrongPass1!"})
	if err != nil {
		t.Fatalf("login returned error: %v", err)
	}

	claims, err := service.ValidateAccessToken(result.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("validate returned error: %v", err)
	}
	if claims.UserID != registered.User.ID {
		t.Fatalf("expected subject %s, got %s", registered.User.ID, claims.UserID)
	}
	if claims.Email != "user@example.com" {
		t.Fatalf("unexpected email claim %q", claims.Email)
	}
	if claims.ExpiresAt.IsZero() || claims.IssuedAt.IsZero() {
		t.Fatalf("expected exp and iat to be populated")
	}
}

func TestLoginInvalidPassword(t *testing.T) {
	service := NewService(newMemoryStore(), testAuthConfig())
	if _, err := service.Register(context.Background(), RegisterInput{Email: "user@example.com", Password: "StrongPass1!"}); err != nil {
		t.Fatalf("register returned error: %v", err)
	}

	_, err := service.Login(context.Background(), LoginInput{Email: "user@example.com", Password: "WrongPass"})
	if err != ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	service := NewService(newMemoryStore(), testAuthConfig())
	result, err := service.Register(context.Background(), RegisterInput{Email: "user@example.com", Password: "StrongPass1!"})
	if err != nil {
		t.Fatalf("register returned error: %v", err)
	}

	service.nowFunc = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := service.ValidateAccessToken(result.Tokens.AccessToken); err != ErrUnauthorized {
		t.Fatalf("expected ErrUnauthorized for expired token, got %v", err)
	}
}

func TestValidateRejectsForeignSignature(t *testing.T) {
	service := NewService(newMemoryStore(), testAuthConfig())
	claims := accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.NewString(),
			Issuer:    issuer,
			Audience:  jwt.ClaimStrings{audience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("some-other-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := service.ValidateAccessToken(forged); err != ErrUnauthorized {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestVerifyRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	service := NewService(newMemoryStore(), testAuthConfig())
	result, err := service.Register(context.Background(), RegisterInput{Email: "user@example.com", Password: "StrongPass1!"})
	if err != nil {
		t.Fatalf("register returned error: %v", err)
	}

	router := gin.New()
	RegisterRoutes(router.Group("/v1"), service)

	req := httptest.NewRequest(http.MethodGet, "/v1/auth/verify", nil)
	req.Header.Set("Authorization", "Bearer "+result.Tokens.AccessToken)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/auth/verify", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}
}

func TestRefreshRotatesAndRejectsReuse(t *testing.T) {
	service := NewService(newMemoryStore(), testAuthConfig())
	first, err := service.Register(context.Background(), RegisterInput{Email: "user@example.com", Password: "StrongPass1!"})
	if err != nil {
		t.Fatalf("register returned error: %v", err)
	}

	second, err := service.Refresh(context.Background(), first.Tokens.RefreshToken)
	if err != nil {
		t.Fatalf("refresh returned error: %v", err)
	}
	if second.Tokens.RefreshToken == first.Tokens.RefreshToken {
		t.Fatalf("expected a new refresh token")
	}
	if second.User.Email != "user@example.com" {
		t.Fatalf("unexpected user %q", second.User.Email)
	}
	if _, err := service.ValidateAccessToken(second.Tokens.AccessToken); err != nil {
		t.Fatalf("refreshed access token invalid: %v", err)
	}

	if _, err := service.Refresh(context.Background(), first.Tokens.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected reused token to fail, got %v", err)
	}
}

func TestRefreshRejectsExpiredToken(t *testing.T) {
	service := NewService(newMemoryStore(), testAuthConfig())
	result, err := service.Register(context.Background(), RegisterInput{Email: "user@example.com", Password: "StrongPass1!"})
	if err != nil {
		t.Fatalf("register returned error: %v", err)
	}

	service.nowFunc = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := service.Refresh(context.Background(), result.Tokens.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected ErrInvalidRefreshToken, got %v", err)
	}
}

func TestLogoutRevokesRefreshToken(t *testing.T) {
	service := NewService(newMemoryStore(), testAuthConfig())
	result, err := service.Register(context.Background(), RegisterInput{Email: "user@example.com", Password: "StrongPass1!"})
	if err != nil {
		t.Fatalf("register returned error: %v", err)
	}

	if err := service.Logout(context.Background(), result.Tokens.RefreshToken); err != nil {
		t.Fatalf("logout returned error: %v", err)
	}
	if _, err := service.Refresh(context.Background(), result.Tokens.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected revoked token to fail, got %v", err)
	}
}

func TestRefreshAndLogoutRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	service := NewService(newMemoryStore(), testAuthConfig())
	result, err := service.Register(context.Background(), RegisterInput{Email: "user@example.com", Password: "StrongPass1!"})
	if err != nil {
		t.Fatalf("register returned error: %v", err)
	}

	router := gin.New()
	RegisterRoutes(router.Group("/v1"), service)

	post := func(path, token string) *httptest.ResponseRecorder {
		body := strings.NewReader(`{"refresh_token":"` + token + `"}`)
		req := httptest.NewRequest(http.MethodPost, path, body)
		req.Header.Set("Content-Type", "application/json")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	rr := post("/v1/auth/refresh", result.Tokens.RefreshToken)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 from refresh, got %d: %s", rr.Code, rr.Body.String())
	}
	var refreshed authResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &refreshed); err != nil {
		t.Fatalf("decode refresh response: %v", err)
	}

	if rr := post("/v1/auth/refresh", result.Tokens.RefreshToken); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for reused token, got %d", rr.Code)
	}
	if rr := post("/v1/auth/logout", refreshed.Tokens.RefreshToken); rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204 from logout, got %d", rr.Code)
	}
	if rr := post("/v1/auth/refresh", refreshed.Tokens.RefreshToken); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", rr.Code)
	}
}

// memoryStore implements userStore for tests.
type memoryStore struct {
	users         map[string]User
	refreshTokens map[string]storedRefresh
}

type storedRefresh struct {
	userID    uuid.UUID
	expiresAt time.Time
	revoked   bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		users:         make(map[string]User),
		refreshTokens: make(map[string]storedRefresh),
	}
}

func (m *memoryStore) CreateUser(ctx context.Context, email, passwordHash string, displayName *string) (User, error) {
	if _, ok := m.users[email]; ok {
		return User{}, ErrEmailAlreadyExists
	}
	user := User{
		ID:           uuid.New(),
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	m.users[email] = user
	return user, nil
}

func (m *memoryStore) FindUserByEmail(ctx context.Context, email string) (User, error) {
	user, ok := m.users[email]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return user, nil
}

func (m *memoryStore) StoreRefreshToken(ctx context.Context, userID uuid.UUID, tokenHash string, expiresAt time.Time) error {
	m.refreshTokens[tokenHash] = storedRefresh{userID: userID, expiresAt: expiresAt}
	return nil
}

func (m *memoryStore) ConsumeRefreshToken(ctx context.Context, tokenHash string, now time.Time) (User, error) {
	rt, ok := m.refreshTokens[tokenHash]
	if !ok || rt.revoked || !rt.expiresAt.After(now) {
		return User{}, ErrInvalidRefreshToken
	}
	rt.revoked = true
	m.refreshTokens[tokenHash] = rt
	for _, u := range m.users {
		if u.ID == rt.userID {
			return u, nil
		}
	}
	return User{}, ErrInvalidRefreshToken
}

func (m *memoryStore) RevokeRefreshToken(ctx context.Context, tokenHash string) error {
	if rt, ok := m.refreshTokens[tokenHash]; ok {
		rt.revoked = true
		m.refreshTokens[tokenHash] = rt
	}
	return nil
}
