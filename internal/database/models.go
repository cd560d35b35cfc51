package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// Category groups menu items for the customer-facing menu.
type Category struct {
	ID        uuid.UUID
	Name      string
	SortOrder int32
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MenuItem is a catalog entry. Name is the Japanese display name, NameEn the
// optional English one. AllowedAddons restricts which add-on items may be
// attached to this item; an empty list means any add-on-flagged item.
type MenuItem struct {
	ID            uuid.UUID
	CategoryID    uuid.UUID
	Name          string
	NameEn        pgtype.Text
	Price         pgtype.Numeric
	Subcategory   pgtype.Text
	Active        bool
	IsAddon       bool
	AllowedAddons []uuid.UUID
	ImageURL      pgtype.Text
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// User is either a LINE customer (role customer, no credentials) or a staff
// member (role staff/admin with email + bcrypt hash). OrderCount, TotalSpent
// and LastOrderAt are running aggregates updated atomically with each order.
type User struct {
	ID             uuid.UUID
	LineUserID     pgtype.Text
	DisplayName    string
	Email          pgtype.Text
	HashedPassword pgtype.Text
	Role           string
	OrderCount     int32
	TotalSpent     pgtype.Numeric
	LastOrderAt    pgtype.Timestamptz
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Order is created once at placement; Status and PaymentStatus are the only
// fields mutated afterwards. DisplayName and LineUserID are creation-time
// snapshots of the placing user. PaymentStatus is NULL for manual payment.
type Order struct {
	ID            uuid.UUID
	OrderNumber   string
	UserID        uuid.UUID
	DisplayName   string
	TableNumber   string
	LineUserID    pgtype.Text
	TotalAmount   pgtype.Numeric
	PaymentMethod string
	PaymentStatus pgtype.Text
	Status        string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// OrderItem is one persisted line of an order. Name, NameEn and UnitPrice
// are snapshots taken at order time so later catalog edits don't rewrite
// history. ParentItemID is set on add-on rows and points at the sibling
// main-item row within the same order. LineNo is the cart position (each
// main followed by its add-ons) and is the read-time sort key.
type OrderItem struct {
	ID           uuid.UUID
	OrderID      uuid.UUID
	MenuItemID   uuid.UUID
	Name         string
	NameEn       pgtype.Text
	Quantity     int32
	UnitPrice    pgtype.Numeric
	LineNo       int32
	ParentItemID pgtype.UUID
	CreatedAt    time.Time
}
