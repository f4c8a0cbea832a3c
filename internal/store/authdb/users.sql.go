package authdb

import "context"

const createUser = `-- name: CreateUser :exec
INSERT INTO users (id, name, email, image, password_hash)
VALUES (?, ?, ?, ?, ?)
`

type CreateUserParams struct {
	ID           string
	Name         string
	Email        string
	Image        string
	PasswordHash string
}

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) error {
	_, err := q.db.ExecContext(ctx, createUser,
		arg.ID,
		arg.Name,
		arg.Email,
		arg.Image,
		arg.PasswordHash,
	)
	return err
}

const getUserByID = `-- name: GetUserByID :one
SELECT id, name, email, image, password_hash, created_at, last_login_at
FROM users
WHERE id = ?
`

func (q *Queries) GetUserByID(ctx context.Context, id string) (User, error) {
	row := q.db.QueryRowContext(ctx, getUserByID, id)
	var i User
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Email,
		&i.Image,
		&i.PasswordHash,
		&i.CreatedAt,
		&i.LastLoginAt,
	)
	return i, err
}

const getUserByEmail = `-- name: GetUserByEmail :one
SELECT id, name, email, image, password_hash, created_at, last_login_at
FROM users
WHERE email = ?
`

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := q.db.QueryRowContext(ctx, getUserByEmail, email)
	var i User
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Email,
		&i.Image,
		&i.PasswordHash,
		&i.CreatedAt,
		&i.LastLoginAt,
	)
	return i, err
}

const updateLastLogin = `-- name: UpdateLastLogin :exec
UPDATE users SET last_login_at = datetime('now') WHERE id = ?
`

func (q *Queries) UpdateLastLogin(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, updateLastLogin, id)
	return err
}
