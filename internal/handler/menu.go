package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/taberu-app/api/internal/database"
)

// MenuStore defines the database methods needed by menu handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type MenuStore interface {
	ListMenuItems(ctx context.Context) ([]database.MenuItem, error)
	GetMenuItem(ctx context.Context, id uuid.UUID) (database.MenuItem, error)
	CreateMenuItem(ctx context.Context, arg database.CreateMenuItemParams) (database.MenuItem, error)
	UpdateMenuItem(ctx context.Context, arg database.UpdateMenuItemParams) (database.MenuItem, error)
	DeleteMenuItem(ctx context.Context, id uuid.UUID) error
}

// MenuHandler handles catalog endpoints. Reads are public so the customer
// app can render the menu without auth; writes are admin-only.
type MenuHandler struct {
	store MenuStore
}

// NewMenuHandler creates a new MenuHandler.
func NewMenuHandler(store MenuStore) *MenuHandler {
	return &MenuHandler{store: store}
}

// RegisterReadRoutes registers the public catalog reads.
func (h *MenuHandler) RegisterReadRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
}

// RegisterWriteRoutes registers the admin catalog writes. Full-path method
// routes rather than a /menu subrouter: chi panics when the same pattern is
// mounted twice, and the public reads already own the /menu mount.
func (h *MenuHandler) RegisterWriteRoutes(r chi.Router) {
	r.Post("/menu", h.Create)
	r.Patch("/menu/{id}", h.Update)
	r.Delete("/menu/{id}", h.Delete)
}

// --- Request / Response types ---

type createMenuItemRequest struct {
	CategoryID    string   `json:"categoryId"`
	Name          string   `json:"name"`
	NameEn        string   `json:"nameEn"`
	Price         string   `json:"price"`
	Subcategory   string   `json:"subcategory"`
	Active        *bool    `json:"active"`
	IsAddon       bool     `json:"isAddon"`
	AllowedAddons []string `json:"allowedAddons"`
	ImageURL      string   `json:"imageUrl"`
}

// updateMenuItemRequest uses pointers so PATCH can distinguish "not sent"
// from "set to zero value".
type updateMenuItemRequest struct {
	CategoryID    *string   `json:"categoryId"`
	Name          *string   `json:"name"`
	NameEn        *string   `json:"nameEn"`
	Price         *string   `json:"price"`
	Subcategory   *string   `json:"subcategory"`
	Active        *bool     `json:"active"`
	IsAddon       *bool     `json:"isAddon"`
	AllowedAddons *[]string `json:"allowedAddons"`
	ImageURL      *string   `json:"imageUrl"`
}

type menuItemResponse struct {
	ID            uuid.UUID   `json:"id"`
	CategoryID    uuid.UUID   `json:"categoryId"`
	Name          string      `json:"name"`
	NameEn        *string     `json:"nameEn"`
	Price         string      `json:"price"`
	Subcategory   *string     `json:"subcategory"`
	Active        bool        `json:"active"`
	IsAddon       bool        `json:"isAddon"`
	AllowedAddons []uuid.UUID `json:"allowedAddons"`
	ImageURL      *string     `json:"imageUrl"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}

func toMenuItemResponse(m database.MenuItem) menuItemResponse {
	resp := menuItemResponse{
		ID:            m.ID,
		CategoryID:    m.CategoryID,
		Name:          m.Name,
		Price:         numericToString(m.Price),
		Active:        m.Active,
		IsAddon:       m.IsAddon,
		AllowedAddons: m.AllowedAddons,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
	if resp.AllowedAddons == nil {
		resp.AllowedAddons = []uuid.UUID{}
	}
	if m.NameEn.Valid {
		resp.NameEn = &m.NameEn.String
	}
	if m.Subcategory.Valid {
		resp.Subcategory = &m.Subcategory.String
	}
	if m.ImageURL.Valid {
		resp.ImageURL = &m.ImageURL.String
	}
	return resp
}

// --- Handlers ---

// List handles GET /menu.
func (h *MenuHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.store.ListMenuItems(r.Context())
	if err != nil {
		writeStoreError(w, "list menu items", err)
		return
	}

	resp := make([]menuItemResponse, len(items))
	for i, m := range items {
		resp[i] = toMenuItemResponse(m)
	}

	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /menu/{id}.
func (h *MenuHandler) Get(w http.ResponseWriter, r *http.Request) {
	itemID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid menu item ID"})
		return
	}

	item, err := h.store.GetMenuItem(r.Context(), itemID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "menu item not found"})
			return
		}
		writeStoreError(w, "get menu item", err)
		return
	}

	writeJSON(w, http.StatusOK, toMenuItemResponse(item))
}

// Create handles POST /menu.
func (h *MenuHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createMenuItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	categoryID, err := uuid.Parse(req.CategoryID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid categoryId"})
		return
	}

	price, err := decimal.NewFromString(req.Price)
	if err != nil || price.IsNegative() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid price"})
		return
	}

	allowed, err := parseUUIDs(req.AllowedAddons)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid allowedAddons"})
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	item, err := h.store.CreateMenuItem(r.Context(), database.CreateMenuItemParams{
		CategoryID:    categoryID,
		Name:          req.Name,
		NameEn:        optionalText(req.NameEn),
		Price:         decimalText(price),
		Subcategory:   optionalText(req.Subcategory),
		Active:        active,
		IsAddon:       req.IsAddon,
		AllowedAddons: allowed,
		ImageURL:      optionalText(req.ImageURL),
	})
	if err != nil {
		writeStoreError(w, "create menu item", err)
		return
	}

	writeJSON(w, http.StatusCreated, toMenuItemResponse(item))
}

// Update handles PATCH /menu/{id}. It fetches the current row, merges the
// provided fields, and writes the full record back.
func (h *MenuHandler) Update(w http.ResponseWriter, r *http.Request) {
	itemID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid menu item ID"})
		return
	}

	var req updateMenuItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	current, err := h.store.GetMenuItem(r.Context(), itemID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "menu item not found"})
			return
		}
		writeStoreError(w, "get menu item", err)
		return
	}

	params := database.UpdateMenuItemParams{
		ID:            current.ID,
		CategoryID:    current.CategoryID,
		Name:          current.Name,
		NameEn:        current.NameEn,
		Price:         current.Price,
		Subcategory:   current.Subcategory,
		Active:        current.Active,
		IsAddon:       current.IsAddon,
		AllowedAddons: current.AllowedAddons,
		ImageURL:      current.ImageURL,
	}

	if req.CategoryID != nil {
		categoryID, err := uuid.Parse(*req.CategoryID)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid categoryId"})
			return
		}
		params.CategoryID = categoryID
	}
	if req.Name != nil {
		if *req.Name == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name cannot be empty"})
			return
		}
		params.Name = *req.Name
	}
	if req.NameEn != nil {
		params.NameEn = optionalText(*req.NameEn)
	}
	if req.Price != nil {
		price, err := decimal.NewFromString(*req.Price)
		if err != nil || price.IsNegative() {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid price"})
			return
		}
		params.Price = decimalText(price)
	}
	if req.Subcategory != nil {
		params.Subcategory = optionalText(*req.Subcategory)
	}
	if req.Active != nil {
		params.Active = *req.Active
	}
	if req.IsAddon != nil {
		params.IsAddon = *req.IsAddon
	}
	if req.AllowedAddons != nil {
		allowed, err := parseUUIDs(*req.AllowedAddons)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid allowedAddons"})
			return
		}
		params.AllowedAddons = allowed
	}
	if req.ImageURL != nil {
		params.ImageURL = optionalText(*req.ImageURL)
	}

	item, err := h.store.UpdateMenuItem(r.Context(), params)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "menu item not found"})
			return
		}
		writeStoreError(w, "update menu item", err)
		return
	}

	writeJSON(w, http.StatusOK, toMenuItemResponse(item))
}

// Delete handles DELETE /menu/{id}. Order items snapshot name and price,
// so removing a catalog entry never rewrites order history.
func (h *MenuHandler) Delete(w http.ResponseWriter, r *http.Request) {
	itemID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid menu item ID"})
		return
	}

	if err := h.store.DeleteMenuItem(r.Context(), itemID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "menu item not found"})
			return
		}
		writeStoreError(w, "delete menu item", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- Helpers ---

func optionalText(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}

func decimalText(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(d.StringFixed(2))
	return n
}

func parseUUIDs(raw []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
