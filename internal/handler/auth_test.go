package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/taberu-app/api/internal/auth"
	"github.com/taberu-app/api/internal/database"
	"github.com/taberu-app/api/internal/handler"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "test-secret"

// --- Mock store ---

type mockAuthStore struct {
	userByEmail map[string]database.User
	userByID    map[uuid.UUID]database.User
}

func (m *mockAuthStore) GetUserByEmail(ctx context.Context, email string) (database.User, error) {
	if u, ok := m.userByEmail[email]; ok {
		return u, nil
	}
	return database.User{}, pgx.ErrNoRows
}

func (m *mockAuthStore) GetUserByID(ctx context.Context, id uuid.UUID) (database.User, error) {
	if u, ok := m.userByID[id]; ok {
		return u, nil
	}
	return database.User{}, pgx.ErrNoRows
}

func newAuthRouter(store *mockAuthStore) http.Handler {
	h := handler.NewAuthHandler(store, testSecret)
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func staffUser(t *testing.T, email, password string) database.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return database.User{
		ID:             uuid.New(),
		DisplayName:    "Admin",
		Email:          pgtype.Text{String: email, Valid: true},
		HashedPassword: pgtype.Text{String: string(hash), Valid: true},
		Role:           "admin",
	}
}

// --- Tests ---

func TestLogin(t *testing.T) {
	user := staffUser(t, "admin@example.com", "secret123")
	store := &mockAuthStore{
		userByEmail: map[string]database.User{"admin@example.com": user},
		userByID:    map[uuid.UUID]database.User{user.ID: user},
	}
	router := newAuthRouter(store)

	rec := doJSON(t, router, http.MethodPost, "/auth/login", map[string]string{
		"email":    "admin@example.com",
		"password": "secret123",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
		User         struct {
			Role string `json:"role"`
		} `json:"user"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.AccessToken == "" || resp.RefreshToken == "" {
		t.Fatal("expected both tokens")
	}
	if resp.User.Role != "admin" {
		t.Errorf("role: got %q", resp.User.Role)
	}

	claims, err := auth.ValidateToken(testSecret, resp.AccessToken)
	if err != nil {
		t.Fatalf("access token invalid: %v", err)
	}
	if claims.UserID != user.ID || claims.Role != "admin" {
		t.Errorf("claims: %+v", claims)
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	user := staffUser(t, "admin@example.com", "secret123")
	store := &mockAuthStore{userByEmail: map[string]database.User{"admin@example.com": user}}
	router := newAuthRouter(store)

	rec := doJSON(t, router, http.MethodPost, "/auth/login", map[string]string{
		"email":    "admin@example.com",
		"password": "wrong",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestLogin_UnknownEmail(t *testing.T) {
	router := newAuthRouter(&mockAuthStore{userByEmail: map[string]database.User{}})

	rec := doJSON(t, router, http.MethodPost, "/auth/login", map[string]string{
		"email":    "nobody@example.com",
		"password": "whatever",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestLogin_CustomerWithoutCredentials(t *testing.T) {
	// LINE customers have an email-less, password-less row; login must fail
	// cleanly if one somehow gets an email set.
	user := database.User{
		ID:          uuid.New(),
		DisplayName: "Tanaka",
		Email:       pgtype.Text{String: "tanaka@example.com", Valid: true},
		Role:        "customer",
	}
	store := &mockAuthStore{userByEmail: map[string]database.User{"tanaka@example.com": user}}
	router := newAuthRouter(store)

	rec := doJSON(t, router, http.MethodPost, "/auth/login", map[string]string{
		"email":    "tanaka@example.com",
		"password": "anything",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRefresh(t *testing.T) {
	user := staffUser(t, "admin@example.com", "secret123")
	store := &mockAuthStore{
		userByEmail: map[string]database.User{"admin@example.com": user},
		userByID:    map[uuid.UUID]database.User{user.ID: user},
	}
	router := newAuthRouter(store)

	refreshToken, err := auth.GenerateRefreshToken(testSecret, user.ID)
	if err != nil {
		t.Fatalf("generate refresh token: %v", err)
	}

	rec := doJSON(t, router, http.MethodPost, "/auth/refresh", map[string]string{
		"refreshToken": refreshToken,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		AccessToken string `json:"accessToken"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if _, err := auth.ValidateToken(testSecret, resp.AccessToken); err != nil {
		t.Fatalf("refreshed access token invalid: %v", err)
	}
}

func TestRefresh_Garbage(t *testing.T) {
	router := newAuthRouter(&mockAuthStore{})

	rec := doJSON(t, router, http.MethodPost, "/auth/refresh", map[string]string{
		"refreshToken": "not-a-jwt",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
