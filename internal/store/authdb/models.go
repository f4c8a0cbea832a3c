package authdb

import "database/sql"

type User struct {
	ID           string
	Name         string
	Email        string
	Image        string
	PasswordHash string
	CreatedAt    string
	LastLoginAt  sql.NullString
}

type Account struct {
	ID                string
	UserID            string
	Provider          string
	ProviderAccountID string
	CreatedAt         string
}

type AuthEvent struct {
	ID        string
	UserID    string
	EventType string
	Provider  string
	Data      string
	CreatedAt string
}
