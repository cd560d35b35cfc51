package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/taberu-app/api/internal/database"
	"github.com/taberu-app/api/internal/enum"
	"github.com/taberu-app/api/internal/payment"
	"github.com/taberu-app/api/internal/service"
)

// OrderServicer defines the service methods needed by order handlers.
// Satisfied by *service.OrderService; narrow interface for testability.
type OrderServicer interface {
	CreateOrder(ctx context.Context, req service.CreateOrderRequest) (*service.CreateOrderResult, error)
	NotifyOrderReady(order database.Order)
}

// OrderStore defines the database methods needed by order read/update handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type OrderStore interface {
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	GetOrderByNumber(ctx context.Context, orderNumber string) (database.Order, error)
	ListOrders(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error)
	ListOrdersByUser(ctx context.Context, userID uuid.UUID) ([]database.Order, error)
	ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
	ListOrderItemsByOrders(ctx context.Context, orderIDs []uuid.UUID) ([]database.OrderItem, error)
	UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error)
	UpdateOrderPaymentStatus(ctx context.Context, arg database.UpdateOrderPaymentStatusParams) (database.Order, error)
}

// PaymentChecker verifies cashless payments with the provider.
// Satisfied by *payment.PayPayClient.
type PaymentChecker interface {
	GetPaymentDetails(ctx context.Context, merchantPaymentID string) (payment.PaymentDetails, error)
}

// OrderHandler handles order endpoints.
type OrderHandler struct {
	svc    OrderServicer
	store  OrderStore
	paypay PaymentChecker
}

// NewOrderHandler creates a new OrderHandler. paypay may be nil when the
// PayPay integration is not configured; the check endpoint then refuses.
func NewOrderHandler(svc OrderServicer, store OrderStore, paypay PaymentChecker) *OrderHandler {
	return &OrderHandler{svc: svc, store: store, paypay: paypay}
}

// RegisterRoutes registers order endpoints on the given Chi router.
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/{orderNumber}", h.GetByNumber)
	r.Get("/user/{userId}", h.ListByUser)
	r.Patch("/{id}/status", h.UpdateStatus)
	r.Patch("/{id}/payment", h.UpdatePayment)
	r.Post("/{id}/payment/check", h.CheckPayment)
}

// --- Request / Response types ---

type createOrderRequest struct {
	UserID        string                   `json:"userId"`
	DisplayName   string                   `json:"displayName"`
	TableNumber   string                   `json:"tableNumber"`
	PaymentMethod string                   `json:"paymentMethod"`
	Items         []createOrderItemRequest `json:"items"`
}

type createOrderItemRequest struct {
	ItemID   string                    `json:"itemId"`
	Quantity int32                     `json:"quantity"`
	Addons   []createOrderAddonRequest `json:"addons"`
}

type createOrderAddonRequest struct {
	ItemID   string `json:"itemId"`
	Quantity int32  `json:"quantity"`
}

type orderResponse struct {
	ID            uuid.UUID           `json:"id"`
	OrderNumber   string              `json:"orderNumber"`
	UserID        uuid.UUID           `json:"userId"`
	DisplayName   string              `json:"displayName"`
	TableNumber   string              `json:"tableNumber"`
	TotalAmount   string              `json:"totalAmount"`
	PaymentMethod string              `json:"paymentMethod"`
	PaymentStatus *string             `json:"paymentStatus"`
	Status        string              `json:"status"`
	CreatedAt     time.Time           `json:"createdAt"`
	UpdatedAt     time.Time           `json:"updatedAt"`
	Items         []orderItemResponse `json:"items,omitempty"`
}

type orderItemResponse struct {
	ID           uuid.UUID `json:"id"`
	ItemID       uuid.UUID `json:"itemId"`
	Name         string    `json:"name"`
	NameEn       *string   `json:"nameEn"`
	Quantity     int32     `json:"quantity"`
	UnitPrice    string    `json:"unitPrice"`
	ParentItemID *string   `json:"parentItemId"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

type updatePaymentRequest struct {
	PaymentStatus string `json:"paymentStatus"`
}

type checkPaymentResponse struct {
	Order          orderResponse `json:"order"`
	ProviderStatus string        `json:"providerStatus"`
	Paid           bool          `json:"paid"`
}

// --- Handlers ---

// Create handles POST /orders.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	svcItems := make([]service.CreateOrderLineRequest, len(req.Items))
	for i, item := range req.Items {
		addons := make([]service.CreateOrderAddonRequest, len(item.Addons))
		for j, a := range item.Addons {
			addons[j] = service.CreateOrderAddonRequest{ItemID: a.ItemID, Quantity: a.Quantity}
		}
		svcItems[i] = service.CreateOrderLineRequest{
			ItemID:   item.ItemID,
			Quantity: item.Quantity,
			Addons:   addons,
		}
	}

	result, err := h.svc.CreateOrder(r.Context(), service.CreateOrderRequest{
		UserID:        req.UserID,
		DisplayName:   req.DisplayName,
		TableNumber:   req.TableNumber,
		PaymentMethod: req.PaymentMethod,
		Items:         svcItems,
	})
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
			return
		}
		if isValidationError(err) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		writeStoreError(w, "create order", err)
		return
	}

	resp := dbOrderToResponse(result.Order)
	resp.Items = make([]orderItemResponse, len(result.Items))
	for i, it := range result.Items {
		resp.Items[i] = dbOrderItemToResponse(it)
	}
	writeJSON(w, http.StatusCreated, resp)
}

// List handles GET /orders with optional startDate/endDate filters.
// Dates are YYYY-MM-DD; endDate is inclusive of the whole day.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	var params database.ListOrdersParams

	if s := r.URL.Query().Get("startDate"); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid startDate format, use YYYY-MM-DD"})
			return
		}
		params.StartDate = pgtype.Timestamptz{Time: t, Valid: true}
	}
	if s := r.URL.Query().Get("endDate"); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid endDate format, use YYYY-MM-DD"})
			return
		}
		params.EndDate = pgtype.Timestamptz{Time: t.Add(24*time.Hour - time.Nanosecond), Valid: true}
	}

	orders, err := h.store.ListOrders(r.Context(), params)
	if err != nil {
		writeStoreError(w, "list orders", err)
		return
	}

	resp, err := h.ordersWithItems(r.Context(), orders)
	if err != nil {
		writeStoreError(w, "list order items", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetByNumber handles GET /orders/{orderNumber}. Customers poll this with
// the pickup token printed on their receipt.
func (h *OrderHandler) GetByNumber(w http.ResponseWriter, r *http.Request) {
	orderNumber := chi.URLParam(r, "orderNumber")

	order, err := h.store.GetOrderByNumber(r.Context(), orderNumber)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		writeStoreError(w, "get order", err)
		return
	}

	items, err := h.store.ListOrderItemsByOrder(r.Context(), order.ID)
	if err != nil {
		writeStoreError(w, "list order items", err)
		return
	}

	resp := dbOrderToResponse(order)
	resp.Items = make([]orderItemResponse, len(items))
	for i, it := range items {
		resp.Items[i] = dbOrderItemToResponse(it)
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListByUser handles GET /orders/user/{userId}.
func (h *OrderHandler) ListByUser(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userId"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid user ID"})
		return
	}

	orders, err := h.store.ListOrdersByUser(r.Context(), userID)
	if err != nil {
		writeStoreError(w, "list orders by user", err)
		return
	}

	resp, err := h.ordersWithItems(r.Context(), orders)
	if err != nil {
		writeStoreError(w, "list order items", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// ordersWithItems maps orders to responses with their line items attached,
// resolving all items in a single batched query.
func (h *OrderHandler) ordersWithItems(ctx context.Context, orders []database.Order) ([]orderResponse, error) {
	resp := make([]orderResponse, len(orders))
	if len(orders) == 0 {
		return resp, nil
	}

	ids := make([]uuid.UUID, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}
	items, err := h.store.ListOrderItemsByOrders(ctx, ids)
	if err != nil {
		return nil, err
	}

	byOrder := make(map[uuid.UUID][]orderItemResponse, len(orders))
	for _, it := range items {
		byOrder[it.OrderID] = append(byOrder[it.OrderID], dbOrderItemToResponse(it))
	}
	for i, o := range orders {
		resp[i] = dbOrderToResponse(o)
		resp[i].Items = byOrder[o.ID]
	}
	return resp, nil
}

// UpdateStatus handles PATCH /orders/{id}/status.
// Any of the four statuses may be written from any current state; staff
// regularly jump orders around (skipping Preparing, or pulling a Completed
// order back after a mistake), so there is no transition table.
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if !isValidOrderStatus(req.Status) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid status"})
		return
	}

	updated, err := h.store.UpdateOrderStatus(r.Context(), database.UpdateOrderStatusParams{
		ID:     orderID,
		Status: req.Status,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		writeStoreError(w, "update order status", err)
		return
	}

	if updated.Status == enum.OrderStatusReady {
		h.svc.NotifyOrderReady(updated)
	}

	writeJSON(w, http.StatusOK, dbOrderToResponse(updated))
}

// UpdatePayment handles PATCH /orders/{id}/payment.
func (h *OrderHandler) UpdatePayment(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	var req updatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.PaymentStatus != enum.PaymentStatusPending && req.PaymentStatus != enum.PaymentStatusPaid {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid paymentStatus"})
		return
	}

	updated, err := h.store.UpdateOrderPaymentStatus(r.Context(), database.UpdateOrderPaymentStatusParams{
		ID:            orderID,
		PaymentStatus: pgtype.Text{String: req.PaymentStatus, Valid: true},
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		writeStoreError(w, "update payment status", err)
		return
	}

	writeJSON(w, http.StatusOK, dbOrderToResponse(updated))
}

// CheckPayment handles POST /orders/{id}/payment/check. It asks PayPay for
// the payment keyed by the order number and, when settled, records it.
func (h *OrderHandler) CheckPayment(w http.ResponseWriter, r *http.Request) {
	if h.paypay == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "payment provider not configured"})
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	order, err := h.store.GetOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		writeStoreError(w, "get order", err)
		return
	}

	if order.PaymentMethod != enum.PaymentMethodPayPay {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "order is not a paypay order"})
		return
	}

	details, err := h.paypay.GetPaymentDetails(r.Context(), order.OrderNumber)
	if err != nil {
		writeStoreError(w, "check payment", err)
		return
	}

	if details.Completed() && (!order.PaymentStatus.Valid || order.PaymentStatus.String != enum.PaymentStatusPaid) {
		order, err = h.store.UpdateOrderPaymentStatus(r.Context(), database.UpdateOrderPaymentStatusParams{
			ID:            order.ID,
			PaymentStatus: pgtype.Text{String: enum.PaymentStatusPaid, Valid: true},
		})
		if err != nil {
			writeStoreError(w, "record payment", err)
			return
		}
	}

	writeJSON(w, http.StatusOK, checkPaymentResponse{
		Order:          dbOrderToResponse(order),
		ProviderStatus: details.Status,
		Paid:           details.Completed(),
	})
}

// --- Helpers ---

// isValidationError checks if the error is a known validation error
// from the service layer that should result in 400 Bad Request.
func isValidationError(err error) bool {
	return errors.Is(err, service.ErrEmptyItems) ||
		errors.Is(err, service.ErrMissingUserID) ||
		errors.Is(err, service.ErrMissingDisplayName) ||
		errors.Is(err, service.ErrMissingTableNumber) ||
		errors.Is(err, service.ErrInvalidUserID) ||
		errors.Is(err, service.ErrInvalidItemID) ||
		errors.Is(err, service.ErrInvalidQuantity) ||
		errors.Is(err, service.ErrInvalidPaymentMethod) ||
		errors.Is(err, service.ErrMenuItemNotFound) ||
		errors.Is(err, service.ErrMenuItemInactive) ||
		errors.Is(err, service.ErrNotAnAddon) ||
		errors.Is(err, service.ErrAddonNotAllowed)
}

// writeStoreError maps infrastructure failures to a response: timeouts and
// connection errors become 503 so clients know to retry, everything else
// is a plain 500. Details go to the log, not the client.
func writeStoreError(w http.ResponseWriter, op string, err error) {
	log.Printf("ERROR: %s: %v", op, err)

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "service temporarily unavailable"})
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
}

func isValidOrderStatus(s string) bool {
	switch s {
	case enum.OrderStatusReceived,
		enum.OrderStatusPreparing,
		enum.OrderStatusReady,
		enum.OrderStatusCompleted:
		return true
	}
	return false
}

func numericToString(n pgtype.Numeric) string {
	if !n.Valid {
		return "0.00"
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return "0.00"
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return "0.00"
	}
	return d.StringFixed(2)
}

func dbOrderToResponse(o database.Order) orderResponse {
	resp := orderResponse{
		ID:            o.ID,
		OrderNumber:   o.OrderNumber,
		UserID:        o.UserID,
		DisplayName:   o.DisplayName,
		TableNumber:   o.TableNumber,
		TotalAmount:   numericToString(o.TotalAmount),
		PaymentMethod: o.PaymentMethod,
		Status:        o.Status,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
	if o.PaymentStatus.Valid {
		resp.PaymentStatus = &o.PaymentStatus.String
	}
	return resp
}

func dbOrderItemToResponse(item database.OrderItem) orderItemResponse {
	resp := orderItemResponse{
		ID:        item.ID,
		ItemID:    item.MenuItemID,
		Name:      item.Name,
		Quantity:  item.Quantity,
		UnitPrice: numericToString(item.UnitPrice),
	}
	if item.NameEn.Valid {
		resp.NameEn = &item.NameEn.String
	}
	if item.ParentItemID.Valid {
		s := uuid.UUID(item.ParentItemID.Bytes).String()
		resp.ParentItemID = &s
	}
	return resp
}
