package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/taberu-app/api/internal/database"
	"github.com/taberu-app/api/internal/enum"
)

// Order numbers are spoken at the pickup counter: a short prefix plus five
// digits. Uniqueness is best-effort; the internal uuid stays the primary key.
const orderNumberPrefix = "TBL"

// notifyTimeout bounds each post-commit push so a slow LINE API can never
// pile up request goroutines.
const notifyTimeout = 5 * time.Second

// Errors returned by the order service.
var (
	ErrEmptyItems           = errors.New("items are required")
	ErrMissingUserID        = errors.New("userId is required")
	ErrMissingDisplayName   = errors.New("displayName is required")
	ErrMissingTableNumber   = errors.New("tableNumber is required")
	ErrInvalidUserID        = errors.New("invalid userId")
	ErrInvalidItemID        = errors.New("invalid itemId")
	ErrInvalidQuantity      = errors.New("quantity must be > 0")
	ErrInvalidPaymentMethod = errors.New("invalid paymentMethod")
	ErrUserNotFound         = errors.New("user not found")
	ErrMenuItemNotFound     = errors.New("menu item not found")
	ErrMenuItemInactive     = errors.New("menu item not active")
	ErrNotAnAddon           = errors.New("menu item is not an addon")
	ErrAddonNotAllowed      = errors.New("addon not allowed for this item")
)

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// OrderStore defines the DB methods needed to create orders.
// Satisfied by *database.Queries (and its WithTx variant).
type OrderStore interface {
	GetUserForOrder(ctx context.Context, id uuid.UUID) (database.GetUserForOrderRow, error)
	GetMenuItemsByIDs(ctx context.Context, ids []uuid.UUID) ([]database.MenuItem, error)
	CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error)
	IncrementUserOrderStats(ctx context.Context, arg database.IncrementUserOrderStatsParams) error
}

// NewOrderStore creates an OrderStore from a DBTX (pool or tx).
// This allows the service to create store instances from transactions.
type NewOrderStore func(db database.DBTX) OrderStore

// Notifier pushes messages to the customer's linked LINE account.
type Notifier interface {
	PushOrderCreated(ctx context.Context, to, orderNumber, total string) error
	PushOrderReady(ctx context.Context, to, orderNumber, tableNumber string) error
}

// Broadcaster publishes order events to connected staff dashboards.
type Broadcaster interface {
	Broadcast(eventType string, payload interface{})
}

// CreateOrderRequest is the validated input for placing an order.
type CreateOrderRequest struct {
	UserID        string
	DisplayName   string
	TableNumber   string
	PaymentMethod string // paypay_now | paypay_after | paypay | manual; empty means manual
	Items         []CreateOrderLineRequest
}

// CreateOrderLineRequest is one main cart line, optionally with add-ons.
type CreateOrderLineRequest struct {
	ItemID   string
	Quantity int32
	Addons   []CreateOrderAddonRequest
}

// CreateOrderAddonRequest is an add-on nested under a main line.
type CreateOrderAddonRequest struct {
	ItemID   string
	Quantity int32
}

// CreateOrderResult is the persisted order with its flattened line items.
type CreateOrderResult struct {
	Order database.Order
	Items []database.OrderItem
}

// OrderService handles order placement: catalog validation, pricing,
// atomic persistence and post-commit notification dispatch.
type OrderService struct {
	pool        TxBeginner
	newStore    NewOrderStore
	notifier    Notifier
	broadcaster Broadcaster
}

// NewOrderService creates a new OrderService. notifier and broadcaster may
// be nil; the corresponding side effects are then skipped.
func NewOrderService(pool TxBeginner, newStore NewOrderStore, notifier Notifier, broadcaster Broadcaster) *OrderService {
	return &OrderService{pool: pool, newStore: newStore, notifier: notifier, broadcaster: broadcaster}
}

// pricedLine is a validated main line resolved against the catalog.
type pricedLine struct {
	item     database.MenuItem
	quantity int32
	addons   []pricedAddon
}

type pricedAddon struct {
	item     database.MenuItem
	quantity int32
}

// CreateOrder validates the cart against the catalog, computes the total,
// and atomically persists the order, its line items and the user's running
// statistics. The confirmation push and dashboard broadcast run after
// commit and can never fail the request.
func (s *OrderService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreateOrderResult, error) {
	if req.UserID == "" {
		return nil, ErrMissingUserID
	}
	if req.DisplayName == "" {
		return nil, ErrMissingDisplayName
	}
	if req.TableNumber == "" {
		return nil, ErrMissingTableNumber
	}
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		return nil, ErrInvalidUserID
	}

	paymentMethod, paymentStatus, err := normalizePayment(req.PaymentMethod)
	if err != nil {
		return nil, err
	}

	itemIDs, err := collectItemIDs(req.Items)
	if err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	user, err := store.GetUserForOrder(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", req.UserID, ErrUserNotFound)
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	// One batched catalog lookup for every referenced id, mains and add-ons.
	catalogRows, err := store.GetMenuItemsByIDs(ctx, itemIDs)
	if err != nil {
		return nil, fmt.Errorf("get menu items: %w", err)
	}
	catalog := make(map[uuid.UUID]database.MenuItem, len(catalogRows))
	for _, m := range catalogRows {
		catalog[m.ID] = m
	}

	lines, total, err := priceCart(req.Items, catalog)
	if err != nil {
		return nil, err
	}

	order, err := store.CreateOrder(ctx, database.CreateOrderParams{
		OrderNumber:   generateOrderNumber(),
		UserID:        userID,
		DisplayName:   req.DisplayName,
		TableNumber:   req.TableNumber,
		LineUserID:    user.LineUserID,
		TotalAmount:   decimalToNumeric(total),
		PaymentMethod: paymentMethod,
		PaymentStatus: paymentStatus,
		Status:        enum.OrderStatusReceived,
	})
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	// Each main row goes in first so its add-on rows can point back at it.
	// LineNo records the cart position; reads sort on it because every row
	// of the order shares the transaction's created_at.
	var items []database.OrderItem
	var lineNo int32
	for _, line := range lines {
		main, err := store.CreateOrderItem(ctx, database.CreateOrderItemParams{
			OrderID:    order.ID,
			MenuItemID: line.item.ID,
			Name:       line.item.Name,
			NameEn:     line.item.NameEn,
			Quantity:   line.quantity,
			UnitPrice:  line.item.Price,
			LineNo:     lineNo,
		})
		if err != nil {
			return nil, fmt.Errorf("create order item: %w", err)
		}
		items = append(items, main)
		lineNo++

		for _, addon := range line.addons {
			row, err := store.CreateOrderItem(ctx, database.CreateOrderItemParams{
				OrderID:      order.ID,
				MenuItemID:   addon.item.ID,
				Name:         addon.item.Name,
				NameEn:       addon.item.NameEn,
				Quantity:     addon.quantity,
				UnitPrice:    addon.item.Price,
				LineNo:       lineNo,
				ParentItemID: pgtype.UUID{Bytes: main.ID, Valid: true},
			})
			if err != nil {
				return nil, fmt.Errorf("create order item addon: %w", err)
			}
			items = append(items, row)
			lineNo++
		}
	}

	if err := store.IncrementUserOrderStats(ctx, database.IncrementUserOrderStatsParams{
		ID:     userID,
		Amount: order.TotalAmount,
	}); err != nil {
		return nil, fmt.Errorf("update user stats: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	s.dispatchOrderCreated(order, items)

	return &CreateOrderResult{Order: order, Items: items}, nil
}

// dispatchOrderCreated fires the post-commit side effects. Both are
// fire-and-forget: failures are logged and the order stands regardless.
func (s *OrderService) dispatchOrderCreated(order database.Order, items []database.OrderItem) {
	if s.broadcaster != nil {
		s.broadcaster.Broadcast("order.created", struct {
			OrderID     uuid.UUID `json:"orderId"`
			OrderNumber string    `json:"orderNumber"`
			TableNumber string    `json:"tableNumber"`
			Status      string    `json:"status"`
			ItemCount   int       `json:"itemCount"`
		}{order.ID, order.OrderNumber, order.TableNumber, order.Status, len(items)})
	}

	if s.notifier == nil || !order.LineUserID.Valid {
		return
	}
	to := order.LineUserID.String
	total := numericToDecimal(order.TotalAmount).StringFixed(0)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := s.notifier.PushOrderCreated(ctx, to, order.OrderNumber, total); err != nil {
			log.Printf("ERROR: push order created %s: %v", order.OrderNumber, err)
		}
	}()
}

// NotifyOrderReady fires the pickup push and dashboard event after an order
// transitions into Ready. Never returns an error.
func (s *OrderService) NotifyOrderReady(order database.Order) {
	if s.broadcaster != nil {
		s.broadcaster.Broadcast("order.updated", struct {
			OrderID     uuid.UUID `json:"orderId"`
			OrderNumber string    `json:"orderNumber"`
			Status      string    `json:"status"`
		}{order.ID, order.OrderNumber, order.Status})
	}

	if s.notifier == nil || !order.LineUserID.Valid {
		return
	}
	to := order.LineUserID.String
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := s.notifier.PushOrderReady(ctx, to, order.OrderNumber, order.TableNumber); err != nil {
			log.Printf("ERROR: push order ready %s: %v", order.OrderNumber, err)
		}
	}()
}

// collectItemIDs gathers the distinct menu item ids referenced by the cart,
// mains and nested add-ons alike, validating id syntax and quantities.
func collectItemIDs(items []CreateOrderLineRequest) ([]uuid.UUID, error) {
	seen := make(map[uuid.UUID]bool)
	var ids []uuid.UUID

	add := func(raw string) error {
		id, err := uuid.Parse(raw)
		if err != nil {
			return ErrInvalidItemID
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
		return nil
	}

	for i, line := range items {
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("items[%d]: %w", i, ErrInvalidQuantity)
		}
		if err := add(line.ItemID); err != nil {
			return nil, fmt.Errorf("items[%d]: %w", i, err)
		}
		for j, addon := range line.Addons {
			if addon.Quantity <= 0 {
				return nil, fmt.Errorf("items[%d].addons[%d]: %w", i, j, ErrInvalidQuantity)
			}
			if err := add(addon.ItemID); err != nil {
				return nil, fmt.Errorf("items[%d].addons[%d]: %w", i, j, err)
			}
		}
	}
	return ids, nil
}

// priceCart walks the cart against the resolved catalog, enforcing
// existence, active flags, add-on flags and per-item allow-lists, and
// returns the priced lines plus the order total. Fails on the first
// violation found.
func priceCart(items []CreateOrderLineRequest, catalog map[uuid.UUID]database.MenuItem) ([]pricedLine, decimal.Decimal, error) {
	total := decimal.Zero
	var lines []pricedLine

	for i, line := range items {
		mainID, _ := uuid.Parse(line.ItemID)
		main, ok := catalog[mainID]
		if !ok {
			return nil, decimal.Zero, fmt.Errorf("items[%d]: %s: %w", i, line.ItemID, ErrMenuItemNotFound)
		}
		if !main.Active {
			return nil, decimal.Zero, fmt.Errorf("items[%d]: %s: %w", i, line.ItemID, ErrMenuItemInactive)
		}

		total = total.Add(numericToDecimal(main.Price).Mul(decimal.NewFromInt32(line.Quantity)))

		pl := pricedLine{item: main, quantity: line.Quantity}
		for j, addon := range line.Addons {
			addonID, _ := uuid.Parse(addon.ItemID)
			ai, ok := catalog[addonID]
			if !ok {
				return nil, decimal.Zero, fmt.Errorf("items[%d].addons[%d]: %s: %w", i, j, addon.ItemID, ErrMenuItemNotFound)
			}
			if !ai.Active {
				return nil, decimal.Zero, fmt.Errorf("items[%d].addons[%d]: %s: %w", i, j, addon.ItemID, ErrMenuItemInactive)
			}
			if !ai.IsAddon {
				return nil, decimal.Zero, fmt.Errorf("items[%d].addons[%d]: %s: %w", i, j, addon.ItemID, ErrNotAnAddon)
			}
			// An empty allow-list means no restriction; items created before
			// allow-lists existed keep accepting any add-on.
			if len(main.AllowedAddons) > 0 && !containsUUID(main.AllowedAddons, addonID) {
				return nil, decimal.Zero, fmt.Errorf("items[%d].addons[%d]: %s on %s: %w", i, j, addon.ItemID, line.ItemID, ErrAddonNotAllowed)
			}

			total = total.Add(numericToDecimal(ai.Price).Mul(decimal.NewFromInt32(addon.Quantity)))
			pl.addons = append(pl.addons, pricedAddon{item: ai, quantity: addon.Quantity})
		}
		lines = append(lines, pl)
	}
	return lines, total, nil
}

// normalizePayment maps the request-level payment tag to the stored
// method/status pair. The now/after split only affects which flow the
// client presents next, never stored state.
func normalizePayment(tag string) (string, pgtype.Text, error) {
	switch tag {
	case enum.PaymentTagPayPayNow, enum.PaymentTagPayPayAfter, enum.PaymentTagPayPay:
		return enum.PaymentMethodPayPay, pgtype.Text{String: enum.PaymentStatusPending, Valid: true}, nil
	case enum.PaymentTagManual, "":
		return enum.PaymentMethodManual, pgtype.Text{}, nil
	}
	return "", pgtype.Text{}, fmt.Errorf("%s: %w", tag, ErrInvalidPaymentMethod)
}

func containsUUID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func generateOrderNumber() string {
	return fmt.Sprintf("%s%05d", orderNumberPrefix, rand.IntN(100000))
}

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func decimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(d.StringFixed(2))
	return n
}
