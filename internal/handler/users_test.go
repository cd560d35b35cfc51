package handler_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/taberu-app/api/internal/database"
	"github.com/taberu-app/api/internal/handler"
)

type mockUserStore struct {
	users map[uuid.UUID]database.User
}

func (m *mockUserStore) ListUsers(ctx context.Context) ([]database.User, error) {
	list := make([]database.User, 0, len(m.users))
	for _, u := range m.users {
		list = append(list, u)
	}
	return list, nil
}

func (m *mockUserStore) GetUserByID(ctx context.Context, id uuid.UUID) (database.User, error) {
	u, ok := m.users[id]
	if !ok {
		return database.User{}, pgx.ErrNoRows
	}
	return u, nil
}

func newUserRouter(store *mockUserStore) chi.Router {
	h := handler.NewUserHandler(store)
	r := chi.NewRouter()
	r.Route("/users", h.RegisterRoutes)
	return r
}

func sampleCustomer() database.User {
	return database.User{
		ID:          uuid.New(),
		LineUserID:  pgtype.Text{String: "U123", Valid: true},
		DisplayName: "Tanaka",
		Role:        "customer",
		OrderCount:  3,
		TotalSpent:  makeNumeric("6600.00"),
		LastOrderAt: pgtype.Timestamptz{Time: time.Now(), Valid: true},
		CreatedAt:   time.Now(),
	}
}

func TestGetUser(t *testing.T) {
	user := sampleCustomer()
	store := &mockUserStore{users: map[uuid.UUID]database.User{user.ID: user}}
	r := newUserRouter(store)

	rec := doJSON(t, r, http.MethodGet, "/users/"+user.ID.String(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rec.Code, http.StatusOK)
	}

	resp := decodeBody(t, rec)
	if resp["displayName"] != "Tanaka" {
		t.Errorf("displayName: got %v, want Tanaka", resp["displayName"])
	}
	if resp["lineUserId"] != "U123" {
		t.Errorf("lineUserId: got %v, want U123", resp["lineUserId"])
	}
	if resp["orderCount"].(float64) != 3 {
		t.Errorf("orderCount: got %v, want 3", resp["orderCount"])
	}
	if resp["totalSpent"] != "6600.00" {
		t.Errorf("totalSpent: got %v, want 6600.00", resp["totalSpent"])
	}
	// Customers have no email; the field serializes as null, not "".
	if resp["email"] != nil {
		t.Errorf("email: got %v, want null", resp["email"])
	}
}

func TestGetUser_NotFound(t *testing.T) {
	r := newUserRouter(&mockUserStore{users: map[uuid.UUID]database.User{}})

	rec := doJSON(t, r, http.MethodGet, "/users/"+uuid.NewString(), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestGetUser_BadID(t *testing.T) {
	r := newUserRouter(&mockUserStore{users: map[uuid.UUID]database.User{}})

	rec := doJSON(t, r, http.MethodGet, "/users/not-a-uuid", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestListUsers(t *testing.T) {
	a, b := sampleCustomer(), sampleCustomer()
	store := &mockUserStore{users: map[uuid.UUID]database.User{a.ID: a, b.ID: b}}
	r := newUserRouter(store)

	rec := doJSON(t, r, http.MethodGet, "/users", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rec.Code, http.StatusOK)
	}
	list := decodeBodyList(t, rec)
	if len(list) != 2 {
		t.Fatalf("users: got %d, want 2", len(list))
	}
}
