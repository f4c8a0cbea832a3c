package auth

import (
	"context"
	"errors"
	"net/http"
	"time"
)

var (
	// ErrInvalidCredentials は資格情報が一致しないことを表す。
	ErrInvalidCredentials = errors.New("資格情報が正しくありません")
	// ErrUnknownProvider は登録されていないプロバイダーが指定されたことを表す。
	ErrUnknownProvider = errors.New("不明な認証プロバイダーです")
	// ErrUserNotFound はアダプターにユーザーが存在しないことを表す。
	ErrUserNotFound = errors.New("ユーザーが見つかりません")
	// ErrEmailTaken はメールアドレスが既に登録されていることを表す。
	ErrEmailTaken = errors.New("メールアドレスは既に登録されています")
	// ErrAccountNotLinked はOAuthアカウントのメールアドレスが別の方法で登録済みであることを表す。
	ErrAccountNotLinked = errors.New("このメールアドレスは別のサインイン方法で登録されています")
	// ErrWeakPassword はパスワードが要件を満たさないことを表す。
	ErrWeakPassword = errors.New("パスワードは8文字以上である必要があります")
)

// User は認証済みユーザーのプロフィール。
type User struct {
	// ID はユーザーの一意識別子。
	ID string `json:"id"`
	// Name は表示名。
	Name string `json:"name"`
	// Email はメールアドレス。
	Email string `json:"email"`
	// Image はアバター画像のURL。
	Image string `json:"image,omitempty"`
}

// Session はリクエストに紐づく認証済みセッション。
type Session struct {
	// User はセッションの所有者。
	User User `json:"user"`
	// Expires はセッションの有効期限。
	Expires time.Time `json:"expires"`
	// TokenID はセッショントークンのjti。失効処理に使用する。
	TokenID string `json:"-"`
}

// UserID はセッションのユーザーIDを返す。セッションがnilの場合は空文字列を返す。
func (s *Session) UserID() string {
	if s == nil {
		return ""
	}
	return s.User.ID
}

// Credentials はサインイン時にプロバイダーへ渡す資格情報。
// メールアドレス/パスワード方式ではEmailとPassword、OAuth方式ではCodeを使用する。
type Credentials struct {
	// Email はメールアドレス。
	Email string `json:"email"`
	// Password は平文のパスワード。
	Password string `json:"password"`
	// Code はOAuth2の認可コード。
	Code string `json:"-"`
}

// SessionProvider はリクエストからセッションを取得する。
// セッションが存在しない場合は (nil, nil) を返す。
// エラーはセッションの有無を判定できなかった場合にのみ返す。
type SessionProvider interface {
	Session(ctx context.Context, r *http.Request) (*Session, error)
}

// SessionProviderFunc は関数をSessionProviderとして扱うためのアダプター。
type SessionProviderFunc func(ctx context.Context, r *http.Request) (*Session, error)

// Session はf(ctx, r)を呼び出す。
func (f SessionProviderFunc) Session(ctx context.Context, r *http.Request) (*Session, error) {
	return f(ctx, r)
}
