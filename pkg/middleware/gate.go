package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/authgate/pkg/auth"
	"github.com/nao1215/authgate/pkg/locale"
)

const (
	// SignInPath はサインインページのパス。未認証のリクエストのリダイレクト先。
	SignInPath = "/signin"
	// SignUpPath はサインアップページのパス。
	SignUpPath = "/signup"
	// DashboardPath は認証済みユーザーのリダイレクト先。
	DashboardPath = "/dashboard"
)

// Ginコンテキストのキー。
const (
	contextKeySession = "session"
	contextKeyLocale  = "locale"
)

// Decision はルートゲートの判定結果。
// Redirectが空でない場合はリダイレクト、空の場合はLocaleをCookieに設定して続行する。
type Decision struct {
	// Redirect はリダイレクト先のパス。
	Redirect string
	// Locale は続行時に設定するロケール。リダイレクト時は空。
	Locale locale.Locale
	// Session は取得したセッション。未認証の場合はnil。
	Session *auth.Session
}

// IsRedirect はリダイレクトの判定かどうかを返す。
func (d Decision) IsRedirect() bool {
	return d.Redirect != ""
}

// Gate はリクエストのセッションを確認し、リダイレクトするか続行するかを判定する。
// セッションの取得に失敗した場合はそのエラーをそのまま返す。
func Gate(ctx context.Context, r *http.Request, provider auth.SessionProvider) (Decision, error) {
	session, err := provider.Session(ctx, r)
	if err != nil {
		return Decision{}, err
	}

	path := r.URL.Path
	isLoggedIn := session.UserID() != ""

	if !isLoggedIn && !isPublicPath(path) {
		return Decision{Redirect: SignInPath}, nil
	}
	if isLoggedIn && (path == SignInPath || path == SignUpPath) {
		return Decision{Redirect: DashboardPath, Session: session}, nil
	}
	return Decision{Locale: locale.FromRequest(r), Session: session}, nil
}

// isPublicPath は認証なしでアクセスできるパスかどうかを返す。
// "#" を含むパスは、エンコードされた %23 がデコードされた場合にのみ到達する。
func isPublicPath(path string) bool {
	switch path {
	case "/", SignInPath, SignUpPath:
		return true
	}
	return strings.HasPrefix(path, "/api/") || strings.Contains(path, "#")
}

// GateOption はRouteGateのオプション。
type GateOption func(*gateOptions)

type gateOptions struct {
	exclude Matcher
	metrics *GateMetrics
}

// WithExclude はルートゲートの対象外とするパスのMatcherを設定する。
// 既定はDefaultAssetMatcher。
func WithExclude(m Matcher) GateOption {
	return func(o *gateOptions) {
		o.exclude = m
	}
}

// WithMetrics はゲートの判定結果を記録するメトリクスを設定する。
func WithMetrics(m *GateMetrics) GateOption {
	return func(o *gateOptions) {
		o.metrics = m
	}
}

// RouteGate はGateをGinミドルウェアとして実行する。
// リダイレクトの場合は307を返して中断し、続行の場合はロケールCookieを設定して
// セッションとロケールをコンテキストに保存する。
// セッションの取得に失敗した場合はエラーをc.Errorに渡して500で中断する。
func RouteGate(provider auth.SessionProvider, opts ...GateOption) gin.HandlerFunc {
	o := gateOptions{exclude: DefaultAssetMatcher()}
	for _, opt := range opts {
		opt(&o)
	}

	timed := auth.SessionProviderFunc(func(ctx context.Context, r *http.Request) (*auth.Session, error) {
		start := time.Now()
		defer func() { o.metrics.observeLookup(time.Since(start)) }()
		return provider.Session(ctx, r)
	})

	return func(c *gin.Context) {
		if o.exclude.Match(c.Request.URL.Path) {
			c.Next()
			return
		}

		d, err := Gate(c.Request.Context(), c.Request, timed)
		o.metrics.observeDecision(d, err)
		if err != nil {
			_ = c.Error(err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "セッションの確認に失敗しました",
			})
			return
		}

		if d.IsRedirect() {
			c.Redirect(http.StatusTemporaryRedirect, d.Redirect)
			c.Abort()
			return
		}

		c.SetCookie(locale.CookieName, d.Locale.String(), int(locale.CookieMaxAge/time.Second), "/", "", false, false)
		c.Set(contextKeySession, d.Session)
		c.Set(contextKeyLocale, d.Locale)
		c.Next()
	}
}

// SessionFrom はRouteGateが保存したセッションを取得する。
// 未認証またはRouteGateを通過していない場合はnilを返す。
func SessionFrom(c *gin.Context) *auth.Session {
	v, _ := c.Get(contextKeySession)
	if s, ok := v.(*auth.Session); ok {
		return s
	}
	return nil
}

// GetUserID はGinコンテキストから認証済みユーザーのIDを取得する。
func GetUserID(c *gin.Context) string {
	return SessionFrom(c).UserID()
}

// LocaleFrom はRouteGateが決定したロケールを取得する。
// RouteGateを通過していない場合はリクエストから改めて決定する。
func LocaleFrom(c *gin.Context) locale.Locale {
	v, _ := c.Get(contextKeyLocale)
	if l, ok := v.(locale.Locale); ok {
		return l
	}
	return locale.FromRequest(c.Request)
}
