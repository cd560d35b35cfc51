package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const orderColumns = `id, order_number, user_id, display_name, table_number, line_user_id, total_amount, payment_method, payment_status, status, created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.UserID, &o.DisplayName, &o.TableNumber,
		&o.LineUserID, &o.TotalAmount, &o.PaymentMethod, &o.PaymentStatus,
		&o.Status, &o.CreatedAt, &o.UpdatedAt,
	)
	return o, err
}

func collectOrders(rows pgx.Rows) ([]Order, error) {
	defer rows.Close()
	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

const createOrder = `
INSERT INTO orders (order_number, user_id, display_name, table_number, line_user_id, total_amount, payment_method, payment_status, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING ` + orderColumns

type CreateOrderParams struct {
	OrderNumber   string
	UserID        uuid.UUID
	DisplayName   string
	TableNumber   string
	LineUserID    pgtype.Text
	TotalAmount   pgtype.Numeric
	PaymentMethod string
	PaymentStatus pgtype.Text
	Status        string
}

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, createOrder,
		arg.OrderNumber, arg.UserID, arg.DisplayName, arg.TableNumber,
		arg.LineUserID, arg.TotalAmount, arg.PaymentMethod, arg.PaymentStatus, arg.Status,
	)
	return scanOrder(row)
}

const getOrder = `
SELECT ` + orderColumns + `
FROM orders
WHERE id = $1`

func (q *Queries) GetOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrder, id))
}

const getOrderByNumber = `
SELECT ` + orderColumns + `
FROM orders
WHERE order_number = $1
ORDER BY created_at DESC
LIMIT 1`

// GetOrderByNumber looks up by the human-readable pickup token. Order
// numbers are best-effort unique; on a collision the newest order wins.
func (q *Queries) GetOrderByNumber(ctx context.Context, orderNumber string) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrderByNumber, orderNumber))
}

const listOrders = `
SELECT ` + orderColumns + `
FROM orders
WHERE ($1::timestamptz IS NULL OR created_at >= $1)
  AND ($2::timestamptz IS NULL OR created_at <= $2)
ORDER BY created_at DESC`

type ListOrdersParams struct {
	StartDate pgtype.Timestamptz
	EndDate   pgtype.Timestamptz
}

func (q *Queries) ListOrders(ctx context.Context, arg ListOrdersParams) ([]Order, error) {
	rows, err := q.db.Query(ctx, listOrders, arg.StartDate, arg.EndDate)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

const listOrdersByUser = `
SELECT ` + orderColumns + `
FROM orders
WHERE user_id = $1
ORDER BY created_at DESC`

func (q *Queries) ListOrdersByUser(ctx context.Context, userID uuid.UUID) ([]Order, error) {
	rows, err := q.db.Query(ctx, listOrdersByUser, userID)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

const updateOrderStatus = `
UPDATE orders
SET status = $2, updated_at = now()
WHERE id = $1
RETURNING ` + orderColumns

type UpdateOrderStatusParams struct {
	ID     uuid.UUID
	Status string
}

func (q *Queries) UpdateOrderStatus(ctx context.Context, arg UpdateOrderStatusParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, updateOrderStatus, arg.ID, arg.Status))
}

const updateOrderPaymentStatus = `
UPDATE orders
SET payment_status = $2, updated_at = now()
WHERE id = $1
RETURNING ` + orderColumns

type UpdateOrderPaymentStatusParams struct {
	ID            uuid.UUID
	PaymentStatus pgtype.Text
}

func (q *Queries) UpdateOrderPaymentStatus(ctx context.Context, arg UpdateOrderPaymentStatusParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, updateOrderPaymentStatus, arg.ID, arg.PaymentStatus))
}

const createOrderItem = `
INSERT INTO order_items (order_id, menu_item_id, name, name_en, quantity, unit_price, line_no, parent_item_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id, order_id, menu_item_id, name, name_en, quantity, unit_price, line_no, parent_item_id, created_at`

type CreateOrderItemParams struct {
	OrderID      uuid.UUID
	MenuItemID   uuid.UUID
	Name         string
	NameEn       pgtype.Text
	Quantity     int32
	UnitPrice    pgtype.Numeric
	LineNo       int32
	ParentItemID pgtype.UUID
}

func (q *Queries) CreateOrderItem(ctx context.Context, arg CreateOrderItemParams) (OrderItem, error) {
	var it OrderItem
	err := q.db.QueryRow(ctx, createOrderItem,
		arg.OrderID, arg.MenuItemID, arg.Name, arg.NameEn, arg.Quantity,
		arg.UnitPrice, arg.LineNo, arg.ParentItemID,
	).Scan(
		&it.ID, &it.OrderID, &it.MenuItemID, &it.Name, &it.NameEn,
		&it.Quantity, &it.UnitPrice, &it.LineNo, &it.ParentItemID, &it.CreatedAt,
	)
	return it, err
}

// Item rows of one order all insert in a single transaction and therefore
// share a created_at; line_no is the only deterministic sort key.
const listOrderItemsByOrders = `
SELECT id, order_id, menu_item_id, name, name_en, quantity, unit_price, line_no, parent_item_id, created_at
FROM order_items
WHERE order_id = ANY($1)
ORDER BY order_id ASC, line_no ASC`

// ListOrderItemsByOrders fetches the line items of many orders in one round
// trip; callers group the rows by OrderID.
func (q *Queries) ListOrderItemsByOrders(ctx context.Context, orderIDs []uuid.UUID) ([]OrderItem, error) {
	rows, err := q.db.Query(ctx, listOrderItemsByOrders, orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []OrderItem
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(
			&it.ID, &it.OrderID, &it.MenuItemID, &it.Name, &it.NameEn,
			&it.Quantity, &it.UnitPrice, &it.LineNo, &it.ParentItemID, &it.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

const listOrderItemsByOrder = `
SELECT id, order_id, menu_item_id, name, name_en, quantity, unit_price, line_no, parent_item_id, created_at
FROM order_items
WHERE order_id = $1
ORDER BY line_no ASC`

func (q *Queries) ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]OrderItem, error) {
	rows, err := q.db.Query(ctx, listOrderItemsByOrder, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []OrderItem
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(
			&it.ID, &it.OrderID, &it.MenuItemID, &it.Name, &it.NameEn,
			&it.Quantity, &it.UnitPrice, &it.LineNo, &it.ParentItemID, &it.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}
