package event

import (
	"encoding/json"
	"time"
)

// Type は認証イベントの種類を表す。
type Type string

const (
	// TypeUserCreated はユーザーが新規作成されたことを表す。
	TypeUserCreated Type = "UserCreated"
	// TypeAccountLinked はOAuthアカウントがユーザーに紐づけられたことを表す。
	TypeAccountLinked Type = "AccountLinked"
	// TypeSignedIn はサインインに成功したことを表す。
	TypeSignedIn Type = "SignedIn"
	// TypeSignedOut はサインアウトしたことを表す。
	TypeSignedOut Type = "SignedOut"
)

// Event は認証に関する不変のイベントレコードを表す。
// サインインやアカウント作成などの出来事を監査ログとして永続化する。
type Event struct {
	// ID はイベントの一意識別子（UUID）。
	ID string `json:"id"`
	// UserID は対象ユーザーのID。
	UserID string `json:"user_id"`
	// EventType はイベントの種類。
	EventType Type `json:"event_type"`
	// Provider はイベントに関係する認証プロバイダー（例: "credentials", "google"）。
	Provider string `json:"provider"`
	// Data はイベント固有のデータ（JSON形式）。
	Data json.RawMessage `json:"data"`
	// CreatedAt はイベントが作成された日時。
	CreatedAt time.Time `json:"created_at"`
}

// UserCreatedData はUserCreatedイベントのデータ。
type UserCreatedData struct {
	// Email は登録されたメールアドレス。
	Email string `json:"email"`
	// Name は表示名。
	Name string `json:"name"`
}

// AccountLinkedData はAccountLinkedイベントのデータ。
type AccountLinkedData struct {
	// ProviderAccountID はプロバイダー側のアカウントID。
	ProviderAccountID string `json:"provider_account_id"`
}

// SignedInData はSignedInイベントのデータ。
type SignedInData struct {
	// TokenID は発行したセッショントークンのjti。
	TokenID string `json:"token_id"`
	// ExpiresAt はセッションの有効期限。
	ExpiresAt time.Time `json:"expires_at"`
}

// SignedOutData はSignedOutイベントのデータ。
type SignedOutData struct {
	// TokenID は失効させたセッショントークンのjti。
	TokenID string `json:"token_id"`
}
