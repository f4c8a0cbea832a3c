package authdb

import "context"

const createAccount = `-- name: CreateAccount :exec
INSERT INTO accounts (id, user_id, provider, provider_account_id)
VALUES (?, ?, ?, ?)
`

type CreateAccountParams struct {
	ID                string
	UserID            string
	Provider          string
	ProviderAccountID string
}

func (q *Queries) CreateAccount(ctx context.Context, arg CreateAccountParams) error {
	_, err := q.db.ExecContext(ctx, createAccount,
		arg.ID,
		arg.UserID,
		arg.Provider,
		arg.ProviderAccountID,
	)
	return err
}

const getUserByAccount = `-- name: GetUserByAccount :one
SELECT u.id, u.name, u.email, u.image, u.password_hash, u.created_at, u.last_login_at
FROM users u
JOIN accounts a ON a.user_id = u.id
WHERE a.provider = ? AND a.provider_account_id = ?
`

type GetUserByAccountParams struct {
	Provider          string
	ProviderAccountID string
}

func (q *Queries) GetUserByAccount(ctx context.Context, arg GetUserByAccountParams) (User, error) {
	row := q.db.QueryRowContext(ctx, getUserByAccount, arg.Provider, arg.ProviderAccountID)
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

const listAccountsByUser = `-- name: ListAccountsByUser :many
SELECT id, user_id, provider, provider_account_id, created_at
FROM accounts
WHERE user_id = ?
ORDER BY provider
`

func (q *Queries) ListAccountsByUser(ctx context.Context, userID string) ([]Account, error) {
	rows, err := q.db.QueryContext(ctx, listAccountsByUser, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Account
	for rows.Next() {
		var i Account
		if err := rows.Scan(
			&i.ID,
			&i.UserID,
			&i.Provider,
			&i.ProviderAccountID,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
