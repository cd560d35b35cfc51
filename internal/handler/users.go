package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/taberu-app/api/internal/database"
)

// UserStore defines the database methods needed by user handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type UserStore interface {
	ListUsers(ctx context.Context) ([]database.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (database.User, error)
}

// UserHandler exposes customer records and their running order aggregates
// to the staff dashboard.
type UserHandler struct {
	store UserStore
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(store UserStore) *UserHandler {
	return &UserHandler{store: store}
}

// RegisterRoutes registers user endpoints on the given Chi router.
func (h *UserHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
}

// --- Response types ---

type userResponse struct {
	ID          uuid.UUID  `json:"id"`
	LineUserID  *string    `json:"lineUserId"`
	DisplayName string     `json:"displayName"`
	Email       *string    `json:"email"`
	Role        string     `json:"role"`
	OrderCount  int32      `json:"orderCount"`
	TotalSpent  string     `json:"totalSpent"`
	LastOrderAt *time.Time `json:"lastOrderAt"`
	CreatedAt   time.Time  `json:"createdAt"`
}

func dbUserToResponse(u database.User) userResponse {
	resp := userResponse{
		ID:          u.ID,
		DisplayName: u.DisplayName,
		Role:        u.Role,
		OrderCount:  u.OrderCount,
		TotalSpent:  numericToString(u.TotalSpent),
		CreatedAt:   u.CreatedAt,
	}
	if u.LineUserID.Valid {
		resp.LineUserID = &u.LineUserID.String
	}
	if u.Email.Valid {
		resp.Email = &u.Email.String
	}
	if u.LastOrderAt.Valid {
		resp.LastOrderAt = &u.LastOrderAt.Time
	}
	return resp
}

// --- Handlers ---

// List handles GET /users.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		writeStoreError(w, "list users", err)
		return
	}

	resp := make([]userResponse, len(users))
	for i, u := range users {
		resp[i] = dbUserToResponse(u)
	}

	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /users/{id}.
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid user ID"})
		return
	}

	user, err := h.store.GetUserByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "user not found"})
			return
		}
		writeStoreError(w, "get user", err)
		return
	}

	writeJSON(w, http.StatusOK, dbUserToResponse(user))
}
