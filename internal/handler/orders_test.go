package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/taberu-app/api/internal/database"
	"github.com/taberu-app/api/internal/handler"
	"github.com/taberu-app/api/internal/payment"
	"github.com/taberu-app/api/internal/service"
)

// --- Mock OrderServicer ---

type mockOrderService struct {
	createFn    func(ctx context.Context, req service.CreateOrderRequest) (*service.CreateOrderResult, error)
	readyOrders []database.Order
}

func (m *mockOrderService) CreateOrder(ctx context.Context, req service.CreateOrderRequest) (*service.CreateOrderResult, error) {
	return m.createFn(ctx, req)
}

func (m *mockOrderService) NotifyOrderReady(order database.Order) {
	m.readyOrders = append(m.readyOrders, order)
}

// --- Mock OrderStore ---

type mockOrderStore struct {
	getOrderFn                 func(ctx context.Context, id uuid.UUID) (database.Order, error)
	getOrderByNumberFn         func(ctx context.Context, orderNumber string) (database.Order, error)
	listOrdersFn               func(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error)
	listOrdersByUserFn         func(ctx context.Context, userID uuid.UUID) ([]database.Order, error)
	listOrderItemsByOrderFn    func(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
	listOrderItemsByOrdersFn   func(ctx context.Context, orderIDs []uuid.UUID) ([]database.OrderItem, error)
	updateOrderStatusFn        func(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error)
	updateOrderPaymentStatusFn func(ctx context.Context, arg database.UpdateOrderPaymentStatusParams) (database.Order, error)
}

func (m *mockOrderStore) GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error) {
	if m.getOrderFn != nil {
		return m.getOrderFn(ctx, id)
	}
	return database.Order{}, pgx.ErrNoRows
}

func (m *mockOrderStore) GetOrderByNumber(ctx context.Context, orderNumber string) (database.Order, error) {
	if m.getOrderByNumberFn != nil {
		return m.getOrderByNumberFn(ctx, orderNumber)
	}
	return database.Order{}, pgx.ErrNoRows
}

func (m *mockOrderStore) ListOrders(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error) {
	if m.listOrdersFn != nil {
		return m.listOrdersFn(ctx, arg)
	}
	return []database.Order{}, nil
}

func (m *mockOrderStore) ListOrdersByUser(ctx context.Context, userID uuid.UUID) ([]database.Order, error) {
	if m.listOrdersByUserFn != nil {
		return m.listOrdersByUserFn(ctx, userID)
	}
	return []database.Order{}, nil
}

func (m *mockOrderStore) ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error) {
	if m.listOrderItemsByOrderFn != nil {
		return m.listOrderItemsByOrderFn(ctx, orderID)
	}
	return []database.OrderItem{}, nil
}

func (m *mockOrderStore) ListOrderItemsByOrders(ctx context.Context, orderIDs []uuid.UUID) ([]database.OrderItem, error) {
	if m.listOrderItemsByOrdersFn != nil {
		return m.listOrderItemsByOrdersFn(ctx, orderIDs)
	}
	return []database.OrderItem{}, nil
}

func (m *mockOrderStore) UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error) {
	if m.updateOrderStatusFn != nil {
		return m.updateOrderStatusFn(ctx, arg)
	}
	return database.Order{}, pgx.ErrNoRows
}

func (m *mockOrderStore) UpdateOrderPaymentStatus(ctx context.Context, arg database.UpdateOrderPaymentStatusParams) (database.Order, error) {
	if m.updateOrderPaymentStatusFn != nil {
		return m.updateOrderPaymentStatusFn(ctx, arg)
	}
	return database.Order{}, pgx.ErrNoRows
}

// --- Mock PaymentChecker ---

type mockPaymentChecker struct {
	detailsFn func(ctx context.Context, merchantPaymentID string) (payment.PaymentDetails, error)
}

func (m *mockPaymentChecker) GetPaymentDetails(ctx context.Context, merchantPaymentID string) (payment.PaymentDetails, error) {
	return m.detailsFn(ctx, merchantPaymentID)
}

// --- Test helpers ---

func makeNumeric(val string) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(val)
	return n
}

func newOrderRouter(svc *mockOrderService, store *mockOrderStore, checker handler.PaymentChecker) http.Handler {
	h := handler.NewOrderHandler(svc, store, checker)
	r := chi.NewRouter()
	r.Route("/orders", h.RegisterRoutes)
	return r
}

func sampleOrder() database.Order {
	return database.Order{
		ID:            uuid.New(),
		OrderNumber:   "TBL00042",
		UserID:        uuid.New(),
		DisplayName:   "Tanaka",
		TableNumber:   "5",
		TotalAmount:   makeNumeric("2200.00"),
		PaymentMethod: "paypay",
		PaymentStatus: pgtype.Text{String: "pending", Valid: true},
		Status:        "Received",
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

// --- Create ---

func TestCreateOrderHandler(t *testing.T) {
	order := sampleOrder()
	svc := &mockOrderService{
		createFn: func(ctx context.Context, req service.CreateOrderRequest) (*service.CreateOrderResult, error) {
			if req.DisplayName != "Tanaka" || req.TableNumber != "5" {
				t.Errorf("request not passed through: %+v", req)
			}
			if len(req.Items) != 1 || len(req.Items[0].Addons) != 1 {
				t.Errorf("items not passed through: %+v", req.Items)
			}
			return &service.CreateOrderResult{
				Order: order,
				Items: []database.OrderItem{
					{ID: uuid.New(), OrderID: order.ID, MenuItemID: uuid.New(), Name: "唐揚げ定食", Quantity: 2, UnitPrice: makeNumeric("1000.00")},
				},
			}, nil
		},
	}
	router := newOrderRouter(svc, &mockOrderStore{}, nil)

	rec := doJSON(t, router, http.MethodPost, "/orders", map[string]any{
		"userId":        order.UserID.String(),
		"displayName":   "Tanaka",
		"tableNumber":   "5",
		"paymentMethod": "paypay_now",
		"items": []map[string]any{
			{
				"itemId":   uuid.NewString(),
				"quantity": 2,
				"addons":   []map[string]any{{"itemId": uuid.NewString(), "quantity": 1}},
			},
		},
	})

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		OrderNumber   string  `json:"orderNumber"`
		PaymentStatus *string `json:"paymentStatus"`
		Status        string  `json:"status"`
		Items         []struct {
			Name string `json:"name"`
		} `json:"items"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.OrderNumber != "TBL00042" {
		t.Errorf("orderNumber: got %q", resp.OrderNumber)
	}
	if resp.PaymentStatus == nil || *resp.PaymentStatus != "pending" {
		t.Errorf("paymentStatus: got %v", resp.PaymentStatus)
	}
	if resp.Status != "Received" {
		t.Errorf("status: got %q", resp.Status)
	}
	if len(resp.Items) != 1 {
		t.Errorf("items: got %d", len(resp.Items))
	}
}

func TestCreateOrderHandler_ValidationError(t *testing.T) {
	svc := &mockOrderService{
		createFn: func(ctx context.Context, req service.CreateOrderRequest) (*service.CreateOrderResult, error) {
			return nil, service.ErrEmptyItems
		},
	}
	router := newOrderRouter(svc, &mockOrderStore{}, nil)

	rec := doJSON(t, router, http.MethodPost, "/orders", map[string]any{"displayName": "Tanaka"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCreateOrderHandler_UserNotFound(t *testing.T) {
	svc := &mockOrderService{
		createFn: func(ctx context.Context, req service.CreateOrderRequest) (*service.CreateOrderResult, error) {
			return nil, service.ErrUserNotFound
		},
	}
	router := newOrderRouter(svc, &mockOrderStore{}, nil)

	rec := doJSON(t, router, http.MethodPost, "/orders", map[string]any{"userId": uuid.NewString()})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestCreateOrderHandler_UpstreamTimeout(t *testing.T) {
	svc := &mockOrderService{
		createFn: func(ctx context.Context, req service.CreateOrderRequest) (*service.CreateOrderResult, error) {
			return nil, context.DeadlineExceeded
		},
	}
	router := newOrderRouter(svc, &mockOrderStore{}, nil)

	rec := doJSON(t, router, http.MethodPost, "/orders", map[string]any{"userId": uuid.NewString()})
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

// --- List ---

func TestListOrdersHandler_DateFilters(t *testing.T) {
	order := sampleOrder()
	var captured database.ListOrdersParams
	store := &mockOrderStore{
		listOrdersFn: func(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error) {
			captured = arg
			return []database.Order{order}, nil
		},
		listOrderItemsByOrdersFn: func(ctx context.Context, orderIDs []uuid.UUID) ([]database.OrderItem, error) {
			if len(orderIDs) != 1 || orderIDs[0] != order.ID {
				t.Errorf("batched item lookup ids: got %v, want [%s]", orderIDs, order.ID)
			}
			return []database.OrderItem{
				{ID: uuid.New(), OrderID: order.ID, Name: "唐揚げ定食", Quantity: 2, UnitPrice: makeNumeric("1000.00")},
			}, nil
		},
	}
	router := newOrderRouter(&mockOrderService{}, store, nil)

	rec := doJSON(t, router, http.MethodGet, "/orders?startDate=2026-08-01&endDate=2026-08-23", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	if !captured.StartDate.Valid || captured.StartDate.Time.Day() != 1 {
		t.Errorf("startDate not captured: %+v", captured.StartDate)
	}
	if !captured.EndDate.Valid {
		t.Fatal("endDate not captured")
	}
	// endDate covers the entire named day
	if captured.EndDate.Time.Before(time.Date(2026, 8, 23, 23, 59, 59, 0, time.UTC)) {
		t.Errorf("endDate should be end of day, got %v", captured.EndDate.Time)
	}

	var resp []struct {
		OrderNumber string `json:"orderNumber"`
		Items       []struct {
			Name string `json:"name"`
		} `json:"items"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp) != 1 {
		t.Fatalf("expected 1 order, got %d", len(resp))
	}
	if len(resp[0].Items) != 1 || resp[0].Items[0].Name != "唐揚げ定食" {
		t.Errorf("nested items: got %+v", resp[0].Items)
	}
}

func TestListOrdersHandler_BadDate(t *testing.T) {
	router := newOrderRouter(&mockOrderService{}, &mockOrderStore{}, nil)

	rec := doJSON(t, router, http.MethodGet, "/orders?startDate=08-01-2026", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

// --- GetByNumber ---

func TestGetOrderByNumberHandler(t *testing.T) {
	order := sampleOrder()
	parent := uuid.New()
	store := &mockOrderStore{
		getOrderByNumberFn: func(ctx context.Context, orderNumber string) (database.Order, error) {
			if orderNumber != "TBL00042" {
				return database.Order{}, pgx.ErrNoRows
			}
			return order, nil
		},
		listOrderItemsByOrderFn: func(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error) {
			return []database.OrderItem{
				{ID: parent, OrderID: orderID, Name: "唐揚げ定食", Quantity: 2, UnitPrice: makeNumeric("1000.00")},
				{ID: uuid.New(), OrderID: orderID, Name: "大盛り", Quantity: 1, UnitPrice: makeNumeric("200.00"), ParentItemID: pgtype.UUID{Bytes: parent, Valid: true}},
			}, nil
		},
	}
	router := newOrderRouter(&mockOrderService{}, store, nil)

	rec := doJSON(t, router, http.MethodGet, "/orders/TBL00042", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		OrderNumber string `json:"orderNumber"`
		Items       []struct {
			Name         string  `json:"name"`
			ParentItemID *string `json:"parentItemId"`
		} `json:"items"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(resp.Items))
	}
	if resp.Items[0].ParentItemID != nil {
		t.Error("main item should have null parentItemId")
	}
	if resp.Items[1].ParentItemID == nil || *resp.Items[1].ParentItemID != parent.String() {
		t.Errorf("addon parentItemId: got %v", resp.Items[1].ParentItemID)
	}
}

func TestGetOrderByNumberHandler_NotFound(t *testing.T) {
	router := newOrderRouter(&mockOrderService{}, &mockOrderStore{}, nil)

	rec := doJSON(t, router, http.MethodGet, "/orders/TBL99999", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

// --- UpdateStatus ---

func TestUpdateStatusHandler(t *testing.T) {
	order := sampleOrder()
	svc := &mockOrderService{}
	store := &mockOrderStore{
		updateOrderStatusFn: func(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error) {
			o := order
			o.Status = arg.Status
			return o, nil
		},
	}
	router := newOrderRouter(svc, store, nil)

	// Completed straight from Received: permitted, staff correct mistakes
	// by jumping states.
	rec := doJSON(t, router, http.MethodPatch, "/orders/"+order.ID.String()+"/status", map[string]string{"status": "Completed"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(svc.readyOrders) != 0 {
		t.Error("Completed must not fire the ready notification")
	}

	rec = doJSON(t, router, http.MethodPatch, "/orders/"+order.ID.String()+"/status", map[string]string{"status": "Ready"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(svc.readyOrders) != 1 {
		t.Fatalf("Ready must fire the notification once, got %d", len(svc.readyOrders))
	}
}

func TestUpdateStatusHandler_InvalidStatus(t *testing.T) {
	router := newOrderRouter(&mockOrderService{}, &mockOrderStore{}, nil)

	rec := doJSON(t, router, http.MethodPatch, "/orders/"+uuid.NewString()+"/status", map[string]string{"status": "Cooking"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestUpdateStatusHandler_NotFound(t *testing.T) {
	router := newOrderRouter(&mockOrderService{}, &mockOrderStore{}, nil)

	rec := doJSON(t, router, http.MethodPatch, "/orders/"+uuid.NewString()+"/status", map[string]string{"status": "Preparing"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

// --- UpdatePayment ---

func TestUpdatePaymentHandler(t *testing.T) {
	order := sampleOrder()
	var captured database.UpdateOrderPaymentStatusParams
	store := &mockOrderStore{
		updateOrderPaymentStatusFn: func(ctx context.Context, arg database.UpdateOrderPaymentStatusParams) (database.Order, error) {
			captured = arg
			o := order
			o.PaymentStatus = arg.PaymentStatus
			return o, nil
		},
	}
	router := newOrderRouter(&mockOrderService{}, store, nil)

	rec := doJSON(t, router, http.MethodPatch, "/orders/"+order.ID.String()+"/payment", map[string]string{"paymentStatus": "paid"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !captured.PaymentStatus.Valid || captured.PaymentStatus.String != "paid" {
		t.Errorf("paymentStatus: got %+v", captured.PaymentStatus)
	}
}

func TestUpdatePaymentHandler_InvalidValue(t *testing.T) {
	router := newOrderRouter(&mockOrderService{}, &mockOrderStore{}, nil)

	for _, bad := range []string{"", "refunded", "null"} {
		rec := doJSON(t, router, http.MethodPatch, "/orders/"+uuid.NewString()+"/payment", map[string]string{"paymentStatus": bad})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("paymentStatus %q: expected 400, got %d", bad, rec.Code)
		}
	}
}

// --- CheckPayment ---

func TestCheckPaymentHandler(t *testing.T) {
	order := sampleOrder()
	store := &mockOrderStore{
		getOrderFn: func(ctx context.Context, id uuid.UUID) (database.Order, error) {
			return order, nil
		},
		updateOrderPaymentStatusFn: func(ctx context.Context, arg database.UpdateOrderPaymentStatusParams) (database.Order, error) {
			o := order
			o.PaymentStatus = arg.PaymentStatus
			return o, nil
		},
	}
	checker := &mockPaymentChecker{
		detailsFn: func(ctx context.Context, merchantPaymentID string) (payment.PaymentDetails, error) {
			if merchantPaymentID != order.OrderNumber {
				t.Errorf("merchantPaymentID: got %q", merchantPaymentID)
			}
			return payment.PaymentDetails{MerchantPaymentID: merchantPaymentID, Status: payment.StatusCompleted}, nil
		},
	}
	router := newOrderRouter(&mockOrderService{}, store, checker)

	rec := doJSON(t, router, http.MethodPost, "/orders/"+order.ID.String()+"/payment/check", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Paid  bool `json:"paid"`
		Order struct {
			PaymentStatus *string `json:"paymentStatus"`
		} `json:"order"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Paid {
		t.Error("expected paid=true")
	}
	if resp.Order.PaymentStatus == nil || *resp.Order.PaymentStatus != "paid" {
		t.Errorf("order paymentStatus: got %v", resp.Order.PaymentStatus)
	}
}

func TestCheckPaymentHandler_ManualOrder(t *testing.T) {
	order := sampleOrder()
	order.PaymentMethod = "manual"
	order.PaymentStatus = pgtype.Text{}
	store := &mockOrderStore{
		getOrderFn: func(ctx context.Context, id uuid.UUID) (database.Order, error) {
			return order, nil
		},
	}
	checker := &mockPaymentChecker{
		detailsFn: func(ctx context.Context, merchantPaymentID string) (payment.PaymentDetails, error) {
			t.Error("provider must not be called for manual orders")
			return payment.PaymentDetails{}, nil
		},
	}
	router := newOrderRouter(&mockOrderService{}, store, checker)

	rec := doJSON(t, router, http.MethodPost, "/orders/"+order.ID.String()+"/payment/check", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCheckPaymentHandler_ProviderDown(t *testing.T) {
	order := sampleOrder()
	store := &mockOrderStore{
		getOrderFn: func(ctx context.Context, id uuid.UUID) (database.Order, error) {
			return order, nil
		},
	}
	checker := &mockPaymentChecker{
		detailsFn: func(ctx context.Context, merchantPaymentID string) (payment.PaymentDetails, error) {
			return payment.PaymentDetails{}, errors.New("paypay: connection refused")
		},
	}
	router := newOrderRouter(&mockOrderService{}, store, checker)

	rec := doJSON(t, router, http.MethodPost, "/orders/"+order.ID.String()+"/payment/check", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}
