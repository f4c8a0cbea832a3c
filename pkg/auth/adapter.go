package auth

import (
	"context"
	"log"

	"github.com/nao1215/authgate/pkg/event"
)

// AdapterUser はアダプターが保持するユーザー。パスワードハッシュを含む。
type AdapterUser struct {
	User
	// PasswordHash はargon2idのPHC文字列。OAuthのみのユーザーでは空。
	PasswordHash string
}

// NewUser はユーザー作成時の入力。
type NewUser struct {
	// Name は表示名。
	Name string
	// Email はメールアドレス。
	Email string
	// Image はアバター画像のURL。
	Image string
	// PasswordHash はargon2idのPHC文字列。
	PasswordHash string
}

// Adapter はユーザーとOAuthアカウントを永続化するデータベースアダプター。
// 見つからない場合は ErrUserNotFound、メールアドレスの重複は ErrEmailTaken を返すこと。
type Adapter interface {
	CreateUser(ctx context.Context, u NewUser) (*User, error)
	// CreateUserWithAccount はユーザーを作成してアカウントを紐づける。
	// 失敗した場合はユーザーを残してはならない。
	CreateUserWithAccount(ctx context.Context, u NewUser, provider, providerAccountID string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*AdapterUser, error)
	GetUserByAccount(ctx context.Context, provider, providerAccountID string) (*User, error)
	RecordEvent(ctx context.Context, e *event.Event) error
}

// recordEvent はイベントを記録する。記録の失敗は認証処理を止めずにログに残す。
func recordEvent(ctx context.Context, adapter Adapter, userID string, eventType event.Type, provider string, data any) {
	if adapter == nil {
		return
	}
	e, err := event.New(userID, eventType, provider, data)
	if err != nil {
		log.Printf("[Auth] イベントの生成に失敗: type=%s, error=%v", eventType, err)
		return
	}
	if err := adapter.RecordEvent(ctx, e); err != nil {
		log.Printf("[Auth] イベントの記録に失敗: type=%s, user_id=%s, error=%v", eventType, userID, err)
	}
}
