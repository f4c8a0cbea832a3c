package auth

import (
	"errors"
	"time"
)

const (
	// DefaultSessionMaxAge はセッションの既定の有効期間（30日）。
	DefaultSessionMaxAge = 30 * 24 * time.Hour
	// DefaultCookieName はセッショントークンを保存するCookieの既定名。
	DefaultCookieName = "authjs.session-token"
	// DefaultIssuer はJWTのissクレームの既定値。
	DefaultIssuer = "authgate"
)

// Pages は認証フローで使用するページのパス。
type Pages struct {
	// SignIn はサインインページ。
	SignIn string
	// Error は認証エラー時の遷移先。
	Error string
	// AfterSignIn はサインイン成功後の遷移先。
	AfterSignIn string
}

// Config は認証フレームワークの設定。
type Config struct {
	// Secret はセッショントークンの署名鍵。必須。
	Secret string
	// Issuer はJWTのissクレーム。
	Issuer string
	// SessionMaxAge はセッションの有効期間。
	SessionMaxAge time.Duration
	// CookieName はセッションCookieの名前。
	CookieName string
	// SecureCookie はCookieにSecure属性を付与するかどうか。
	SecureCookie bool
	// Pages は認証フローのページ設定。
	Pages Pages
}

// withDefaults は未設定の項目に既定値を補った設定を返す。
func (c Config) withDefaults() Config {
	if c.Issuer == "" {
		c.Issuer = DefaultIssuer
	}
	if c.SessionMaxAge <= 0 {
		c.SessionMaxAge = DefaultSessionMaxAge
	}
	if c.CookieName == "" {
		c.CookieName = DefaultCookieName
	}
	if c.Pages.SignIn == "" {
		c.Pages.SignIn = "/signin"
	}
	if c.Pages.Error == "" {
		c.Pages.Error = c.Pages.SignIn
	}
	if c.Pages.AfterSignIn == "" {
		c.Pages.AfterSignIn = "/dashboard"
	}
	return c
}

// validate は設定の必須項目を検証する。
func (c Config) validate() error {
	if c.Secret == "" {
		return errors.New("署名鍵（Secret）が設定されていません")
	}
	return nil
}
