package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/authgate/internal/store"
	"github.com/nao1215/authgate/pkg/auth"
	"github.com/nao1215/authgate/pkg/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// Server はauthgateのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// config はサーバーの設定。
	config Config
	// auth は認証フレームワークのインスタンス。
	auth *auth.Auth
	// store はユーザーと認証イベントのストア。
	store *store.Store
	// redis はトークン失効ストアのクライアント。未設定の場合はnil。
	redis redis.UniversalClient
	// oauth はOAuth2プロバイダー名ごとの検証器。
	oauth map[string]*auth.OAuthVerifier
	// registry はPrometheusメトリクスのレジストリ。
	registry *prometheus.Registry
}

// oauthClient はOAuth2プロバイダーとクライアント資格情報の組。
type oauthClient struct {
	provider     auth.OAuthProvider
	clientID     string
	clientSecret string
}

// NewServer は設定からサーバーを生成する。
// SQLiteのストアを開き、REDIS_URLが設定されていればRedisに接続する。
func NewServer(ctx context.Context, cfg Config) (*Server, error) {
	st, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("ストアの初期化に失敗: %w", err)
	}

	var rdb redis.UniversalClient
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("REDIS_URLのパースに失敗: %w", err)
		}
		rdb = redis.NewClient(opt)
	}

	var clients []oauthClient
	if cfg.GoogleClientID != "" {
		clients = append(clients, oauthClient{provider: auth.GoogleProvider(), clientID: cfg.GoogleClientID, clientSecret: cfg.GoogleClientSecret})
	}
	if cfg.GitHubClientID != "" {
		clients = append(clients, oauthClient{provider: auth.GitHubProvider(), clientID: cfg.GitHubClientID, clientSecret: cfg.GitHubClientSecret})
	}

	s, err := newServer(cfg, st, rdb, clients, auth.NewPasswordHasher(auth.DefaultPasswordParams))
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	return s, nil
}

// newServer は依存関係を受け取ってサーバーを組み立てる。
func newServer(cfg Config, st *store.Store, rdb redis.UniversalClient, clients []oauthClient, hasher *auth.PasswordHasher) (*Server, error) {
	var credentials auth.CredentialVerifier = auth.NewDatabaseVerifier(st, hasher)
	if cfg.DemoLogin {
		credentials = auth.FirstOf(auth.NewStaticDemoVerifier(), credentials)
	}

	opts := []auth.Option{
		auth.WithAdapter(st),
		auth.WithPasswordHasher(hasher),
		auth.WithProvider(auth.ProviderCredentials, credentials),
	}
	if rdb != nil {
		opts = append(opts, auth.WithRevocationStore(auth.NewRedisRevocationStore(rdb, "")))
	}

	verifiers := make(map[string]*auth.OAuthVerifier, len(clients))
	for _, oc := range clients {
		redirectURL := cfg.AuthURL + "/api/auth/callback/" + oc.provider.Name
		v := auth.NewOAuthVerifier(oc.provider, oc.clientID, oc.clientSecret, redirectURL, st)
		verifiers[oc.provider.Name] = v
		opts = append(opts, auth.WithProvider(oc.provider.Name, v))
	}

	a, err := auth.New(auth.Config{
		Secret:       cfg.AuthSecret,
		SecureCookie: cfg.secureCookie(),
		Pages:        auth.Pages{SignIn: middleware.SignInPath, AfterSignIn: middleware.DashboardPath},
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("認証フレームワークの初期化に失敗: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.ErrorLog())
	router.Use(middleware.CORS([]string{cfg.FrontendURL}))
	router.Use(middleware.RouteGate(a, middleware.WithMetrics(middleware.NewGateMetrics(registry))))

	s := &Server{
		router:   router,
		config:   cfg,
		auth:     a,
		store:    st,
		redis:    rdb,
		oauth:    verifiers,
		registry: registry,
	}
	s.setupRoutes()

	return s, nil
}

// Run はHTTPサーバーを起動する。
func (s *Server) Run() error {
	return s.router.Run(fmt.Sprintf(":%s", s.config.Port))
}

// Close はストアとRedisの接続を閉じる。
func (s *Server) Close() error {
	if s.redis != nil {
		_ = s.redis.Close()
	}
	return s.store.Close()
}

// setupRoutes はルーティングを設定する。
func (s *Server) setupRoutes() {
	api := s.router.Group("/api")
	{
		authGroup := api.Group("/auth")
		{
			authGroup.GET("/session", s.handleSession())
			authGroup.GET("/providers", s.handleProviders())
			authGroup.POST("/callback/credentials", s.handleCredentialsSignIn())
			authGroup.GET("/signin/:provider", s.handleOAuthSignIn())
			authGroup.GET("/callback/:provider", s.handleOAuthCallback())
			authGroup.POST("/signup", s.handleSignUp())
			authGroup.POST("/signout", s.handleSignOut())
		}

		api.GET("/me", s.handleGetCurrentUser())
		api.GET("/health", s.handleHealth())
		api.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	}

	s.router.GET("/", s.handlePage("home"))
	s.router.GET(middleware.SignInPath, s.handlePage("signin"))
	s.router.GET(middleware.SignUpPath, s.handlePage("signup"))
	s.router.GET(middleware.DashboardPath, s.handlePage("dashboard"))
}

// handlePage はページの内容をJSONで返すハンドラを返す。
// ルートゲートが決定したロケールとセッションを含める。
func (s *Server) handlePage(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		body := gin.H{
			"page":   name,
			"locale": middleware.LocaleFrom(c),
		}
		if session := middleware.SessionFrom(c); session != nil {
			body["user"] = session.User
		}
		if name == "signin" {
			body["providers"] = s.auth.Providers()
		}
		c.JSON(http.StatusOK, body)
	}
}

// handleHealth はストアとRedisの疎通を確認するハンドラを返す。
func (s *Server) handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if err := s.store.Ping(ctx); err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "service": "authgate", "error": "データベースに接続できません"})
			return
		}
		if s.redis != nil {
			if err := s.redis.Ping(ctx).Err(); err != nil {
				_ = c.Error(err)
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "service": "authgate", "error": "Redisに接続できません"})
				return
			}
		}
		version, err := s.store.SchemaVersion(ctx)
		if err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "service": "authgate", "error": "スキーマバージョンを取得できません"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "authgate", "schema_version": version})
	}
}
