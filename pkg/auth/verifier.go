package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log"
	"strings"
)

// CredentialVerifier は資格情報を検証してユーザーを返す。
// 資格情報が一致しない場合は ErrInvalidCredentials を返す。
type CredentialVerifier interface {
	Verify(ctx context.Context, creds Credentials) (*User, error)
}

// StaticDemoVerifier は固定のデモ用アカウントだけを受け付ける。
// 開発環境向けであり、本番環境では無効化すべき。
type StaticDemoVerifier struct {
	// Email はデモ用アカウントのメールアドレス。
	Email string
	// Password はデモ用アカウントのパスワード。
	Password string
	// User は認証成功時に返すユーザー。
	User User
}

// NewStaticDemoVerifier は既定のデモ用アカウントを持つStaticDemoVerifierを生成する。
func NewStaticDemoVerifier() *StaticDemoVerifier {
	return &StaticDemoVerifier{
		Email:    "user@example.com",
		Password: "password",
		User: User{
			ID:    "1",
			Name:  "Demo User",
			Email: "user@example.com",
			Image: "https://ui-avatars.com/api/?name=Demo+User",
		},
	}
}

// Verify はメールアドレスとパスワードがデモ用アカウントと一致するかを検証する。
func (v *StaticDemoVerifier) Verify(_ context.Context, creds Credentials) (*User, error) {
	emailOK := subtle.ConstantTimeCompare([]byte(creds.Email), []byte(v.Email)) == 1
	passwordOK := subtle.ConstantTimeCompare([]byte(creds.Password), []byte(v.Password)) == 1
	if !emailOK || !passwordOK {
		return nil, ErrInvalidCredentials
	}
	u := v.User
	return &u, nil
}

// DatabaseVerifier はアダプターに保存されたユーザーのパスワードハッシュで検証する。
type DatabaseVerifier struct {
	adapter Adapter
	hasher  *PasswordHasher
	// dummyHash はユーザーが存在しない場合の照合に使用する。
	// 登録済みかどうかで応答時間が変わらないようにする。
	dummyHash string
	// verify はパスワードの照合関数。テストで差し替える。
	verify func(password, encoded string) (bool, error)
}

// NewDatabaseVerifier は新しいDatabaseVerifierを生成する。
func NewDatabaseVerifier(adapter Adapter, hasher *PasswordHasher) *DatabaseVerifier {
	dummy, err := hasher.Hash("authgate-dummy-password")
	if err != nil {
		log.Printf("[Auth] ダミーのパスワードハッシュの生成に失敗: %v", err)
	}
	return &DatabaseVerifier{adapter: adapter, hasher: hasher, dummyHash: dummy, verify: hasher.Verify}
}

// Verify はメールアドレスでユーザーを検索し、パスワードを照合する。
func (v *DatabaseVerifier) Verify(ctx context.Context, creds Credentials) (*User, error) {
	email := strings.TrimSpace(creds.Email)
	if email == "" || creds.Password == "" {
		return nil, ErrInvalidCredentials
	}

	u, err := v.adapter.GetUserByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		_, _ = v.verify(creds.Password, v.dummyHash)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗: %w", err)
	}
	if u.PasswordHash == "" {
		_, _ = v.verify(creds.Password, v.dummyHash)
		return nil, ErrInvalidCredentials
	}

	ok, err := v.verify(creds.Password, u.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("パスワードハッシュの検証に失敗: %w", err)
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}
	user := u.User
	return &user, nil
}

// firstOf は複数の検証器を順に試す。
type firstOf []CredentialVerifier

// FirstOf は検証器を順に試し、最初に成功した結果を返すCredentialVerifierを生成する。
// ErrInvalidCredentials 以外のエラーはその時点で返す。
func FirstOf(verifiers ...CredentialVerifier) CredentialVerifier {
	return firstOf(verifiers)
}

// Verify は登録順に検証を行う。
func (f firstOf) Verify(ctx context.Context, creds Credentials) (*User, error) {
	for _, v := range f {
		u, err := v.Verify(ctx, creds)
		if err == nil {
			return u, nil
		}
		if !errors.Is(err, ErrInvalidCredentials) {
			return nil, err
		}
	}
	return nil, ErrInvalidCredentials
}
