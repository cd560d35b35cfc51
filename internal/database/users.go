package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const userColumns = `id, line_user_id, display_name, email, hashed_password, role, order_count, total_spent, last_order_at, created_at, updated_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(
		&u.ID, &u.LineUserID, &u.DisplayName, &u.Email, &u.HashedPassword,
		&u.Role, &u.OrderCount, &u.TotalSpent, &u.LastOrderAt, &u.CreatedAt, &u.UpdatedAt,
	)
	return u, err
}

const createUser = `
INSERT INTO users (line_user_id, display_name, email, hashed_password, role)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + userColumns

type CreateUserParams struct {
	LineUserID     pgtype.Text
	DisplayName    string
	Email          pgtype.Text
	HashedPassword pgtype.Text
	Role           string
}

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (User, error) {
	row := q.db.QueryRow(ctx, createUser,
		arg.LineUserID, arg.DisplayName, arg.Email, arg.HashedPassword, arg.Role,
	)
	return scanUser(row)
}

const getUserByID = `
SELECT ` + userColumns + `
FROM users
WHERE id = $1`

func (q *Queries) GetUserByID(ctx context.Context, id uuid.UUID) (User, error) {
	return scanUser(q.db.QueryRow(ctx, getUserByID, id))
}

const getUserByEmail = `
SELECT ` + userColumns + `
FROM users
WHERE email = $1`

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(q.db.QueryRow(ctx, getUserByEmail, email))
}

const listUsers = `
SELECT ` + userColumns + `
FROM users
ORDER BY created_at DESC`

func (q *Queries) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := q.db.Query(ctx, listUsers)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

const getUserForOrder = `
SELECT id, line_user_id
FROM users
WHERE id = $1`

type GetUserForOrderRow struct {
	ID         uuid.UUID
	LineUserID pgtype.Text
}

// GetUserForOrder fetches the minimal user fields order placement needs:
// existence and the linked LINE identity for the confirmation push.
func (q *Queries) GetUserForOrder(ctx context.Context, id uuid.UUID) (GetUserForOrderRow, error) {
	var r GetUserForOrderRow
	err := q.db.QueryRow(ctx, getUserForOrder, id).Scan(&r.ID, &r.LineUserID)
	return r, err
}

const incrementUserOrderStats = `
UPDATE users
SET order_count = order_count + 1,
    total_spent = total_spent + $2,
    last_order_at = now(),
    updated_at = now()
WHERE id = $1
RETURNING id`

type IncrementUserOrderStatsParams struct {
	ID     uuid.UUID
	Amount pgtype.Numeric
}

// IncrementUserOrderStats bumps the running aggregates with an atomic
// in-place increment (never read-modify-write), so two concurrent orders by
// the same user cannot lose an update.
func (q *Queries) IncrementUserOrderStats(ctx context.Context, arg IncrementUserOrderStatsParams) error {
	var id uuid.UUID
	return q.db.QueryRow(ctx, incrementUserOrderStats, arg.ID, arg.Amount).Scan(&id)
}
