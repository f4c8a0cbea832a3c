package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/nao1215/authgate/pkg/event"
)

// ProviderCredentials はメールアドレス/パスワード方式のプロバイダー名。
const ProviderCredentials = "credentials"

// Auth は認証フレームワークのインスタンス。
// 設定、プロバイダー、アダプター、トークン失効ストアを保持する。
type Auth struct {
	// config は既定値を補った設定。
	config Config
	// adapter はユーザーを永続化するアダプター。
	adapter Adapter
	// verifiers はプロバイダー名ごとの資格情報検証器。
	verifiers map[string]CredentialVerifier
	// revocations はサインアウト済みトークンのストア。nilの場合は失効を確認しない。
	revocations RevocationStore
	// hasher はサインアップ時のパスワードハッシュ化に使用する。
	hasher *PasswordHasher
	// now は現在時刻を返す。テストで差し替える。
	now func() time.Time
}

// Option はAuthの生成オプション。
type Option func(*Auth)

// WithAdapter はデータベースアダプターを設定する。
func WithAdapter(adapter Adapter) Option {
	return func(a *Auth) {
		a.adapter = adapter
	}
}

// WithProvider はプロバイダー名に資格情報検証器を登録する。
func WithProvider(name string, verifier CredentialVerifier) Option {
	return func(a *Auth) {
		a.verifiers[name] = verifier
	}
}

// WithRevocationStore はトークン失効ストアを設定する。
func WithRevocationStore(store RevocationStore) Option {
	return func(a *Auth) {
		a.revocations = store
	}
}

// WithPasswordHasher はパスワードハッシュ化の実装を設定する。
func WithPasswordHasher(hasher *PasswordHasher) Option {
	return func(a *Auth) {
		a.hasher = hasher
	}
}

// WithClock は現在時刻の取得関数を設定する。
func WithClock(now func() time.Time) Option {
	return func(a *Auth) {
		a.now = now
	}
}

// New は新しい認証フレームワークのインスタンスを生成する。
func New(cfg Config, opts ...Option) (*Auth, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	a := &Auth{
		config:    cfg.withDefaults(),
		verifiers: make(map[string]CredentialVerifier),
		hasher:    NewPasswordHasher(DefaultPasswordParams),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Config は既定値を補った設定を返す。
func (a *Auth) Config() Config {
	return a.config
}

// Providers は登録済みのプロバイダー名を名前順で返す。
func (a *Auth) Providers() []string {
	names := make([]string, 0, len(a.verifiers))
	for name := range a.verifiers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Verifier はプロバイダー名に対応する検証器を返す。
func (a *Auth) Verifier(provider string) (CredentialVerifier, error) {
	v, ok := a.verifiers[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
	return v, nil
}

// Session はリクエストのセッションCookieからセッションを取得する。
// Cookieが無い、またはトークンが無効・期限切れの場合は (nil, nil) を返す。
// 失効状態を確認できなかった場合はエラーを返す。
func (a *Auth) Session(ctx context.Context, r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(a.config.CookieName)
	if err != nil || cookie.Value == "" {
		return nil, nil
	}

	claims, err := parseToken(a.config, cookie.Value, a.now)
	if err != nil {
		return nil, nil
	}

	if a.revocations != nil {
		revoked, err := a.revocations.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, err
		}
		if revoked {
			return nil, nil
		}
	}
	return sessionFromClaims(claims), nil
}

// SignInResult はサインイン成功時の結果。
type SignInResult struct {
	// Token はセッショントークン。セッションCookieに保存する。
	Token string
	// Session は確立したセッション。
	Session *Session
}

// SignIn はプロバイダーで資格情報を検証し、セッショントークンを発行する。
func (a *Auth) SignIn(ctx context.Context, provider string, creds Credentials) (*SignInResult, error) {
	v, err := a.Verifier(provider)
	if err != nil {
		return nil, err
	}

	user, err := v.Verify(ctx, creds)
	if err != nil {
		return nil, err
	}

	token, claims, err := issueToken(a.config, *user, a.now())
	if err != nil {
		return nil, err
	}
	session := sessionFromClaims(claims)
	recordEvent(ctx, a.adapter, user.ID, event.TypeSignedIn, provider, event.SignedInData{
		TokenID:   session.TokenID,
		ExpiresAt: session.Expires,
	})

	return &SignInResult{Token: token, Session: session}, nil
}

// SignUp はメールアドレスとパスワードでユーザーを登録し、そのままサインインさせる。
func (a *Auth) SignUp(ctx context.Context, name string, creds Credentials) (*SignInResult, error) {
	if a.adapter == nil {
		return nil, errors.New("アダプターが設定されていません")
	}
	email := strings.TrimSpace(creds.Email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: メールアドレスが不正です", ErrInvalidCredentials)
	}
	if len(creds.Password) < minPasswordLength {
		return nil, ErrWeakPassword
	}
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}

	hash, err := a.hasher.Hash(creds.Password)
	if err != nil {
		return nil, err
	}
	user, err := a.adapter.CreateUser(ctx, NewUser{Name: name, Email: email, PasswordHash: hash})
	if err != nil {
		return nil, err
	}
	recordEvent(ctx, a.adapter, user.ID, event.TypeUserCreated, ProviderCredentials, event.UserCreatedData{Email: user.Email, Name: user.Name})

	token, claims, err := issueToken(a.config, *user, a.now())
	if err != nil {
		return nil, err
	}
	session := sessionFromClaims(claims)
	recordEvent(ctx, a.adapter, user.ID, event.TypeSignedIn, ProviderCredentials, event.SignedInData{
		TokenID:   session.TokenID,
		ExpiresAt: session.Expires,
	})

	return &SignInResult{Token: token, Session: session}, nil
}

// SignOut はリクエストのセッショントークンを失効させる。
// セッションが無い場合は何もしない。
func (a *Auth) SignOut(ctx context.Context, r *http.Request) error {
	session, err := a.Session(ctx, r)
	if err != nil {
		return err
	}
	if session == nil {
		return nil
	}

	if a.revocations != nil {
		if err := a.revocations.Revoke(ctx, session.TokenID, session.Expires.Sub(a.now())); err != nil {
			return err
		}
	}
	recordEvent(ctx, a.adapter, session.UserID(), event.TypeSignedOut, "", event.SignedOutData{TokenID: session.TokenID})
	return nil
}

// SessionCookie はセッショントークンを保存するCookieを返す。
func (a *Auth) SessionCookie(token string) *http.Cookie {
	return &http.Cookie{
		Name:     a.config.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(a.config.SessionMaxAge / time.Second),
		HttpOnly: true,
		Secure:   a.config.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	}
}

// ExpiredSessionCookie はセッションCookieを削除するためのCookieを返す。
func (a *Auth) ExpiredSessionCookie() *http.Cookie {
	return &http.Cookie{
		Name:     a.config.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.config.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	}
}
