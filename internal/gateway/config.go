package gateway

import (
	"log"
	"os"
	"strings"
)

// devAuthSecret はAUTH_SECRETが未設定の場合に使用する開発用の署名鍵。
const devAuthSecret = "dev-secret-key"

// Config はサーバーの設定。環境変数から読み込む。
type Config struct {
	// Port はリッスンポート。
	Port string
	// DatabaseURL はSQLiteのDSN。
	DatabaseURL string
	// AuthSecret はセッショントークンの署名鍵。
	AuthSecret string
	// AuthURL は外部から見たサーバーのURL。OAuth2のリダイレクトURIに使用する。
	AuthURL string
	// RedisURL はトークン失効ストアのRedis URL。空の場合は失効を記録しない。
	RedisURL string
	// FrontendURL はCORSで許可するフロントエンドのオリジン。
	FrontendURL string
	// GoogleClientID はGoogle OAuth2のクライアントID。空の場合Googleプロバイダーは無効。
	GoogleClientID string
	// GoogleClientSecret はGoogle OAuth2のクライアントシークレット。
	GoogleClientSecret string
	// GitHubClientID はGitHub OAuth2のクライアントID。空の場合GitHubプロバイダーは無効。
	GitHubClientID string
	// GitHubClientSecret はGitHub OAuth2のクライアントシークレット。
	GitHubClientSecret string
	// DemoLogin はデモ用アカウント（user@example.com / password）でのサインインを許可するかどうか。
	DemoLogin bool
}

// LoadConfig は環境変数から設定を読み込む。
func LoadConfig() Config {
	cfg := Config{
		Port:               getEnvOr("PORT", "8080"),
		DatabaseURL:        getEnvOr("DATABASE_URL", "file:/data/authgate.db?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"),
		AuthSecret:         os.Getenv("AUTH_SECRET"),
		AuthURL:            strings.TrimSuffix(getEnvOr("AUTH_URL", "http://localhost:8080"), "/"),
		RedisURL:           os.Getenv("REDIS_URL"),
		FrontendURL:        getEnvOr("FRONTEND_URL", "http://localhost:3000"),
		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		GitHubClientID:     os.Getenv("GITHUB_CLIENT_ID"),
		GitHubClientSecret: os.Getenv("GITHUB_CLIENT_SECRET"),
		DemoLogin:          getEnvOr("AUTH_DEMO_LOGIN", "true") != "false",
	}
	if cfg.AuthSecret == "" {
		log.Printf("[Config] AUTH_SECRETが未設定のため開発用の署名鍵を使用します")
		cfg.AuthSecret = devAuthSecret
	}
	return cfg
}

// secureCookie はAuthURLがHTTPSの場合にtrueを返す。
func (c Config) secureCookie() bool {
	return strings.HasPrefix(c.AuthURL, "https://")
}

// getEnvOr は環境変数を取得し、設定されていない場合はデフォルト値を返す。
func getEnvOr(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
