// authgateのエントリポイント。
// 認証API（サインイン、サインアップ、サインアウト、OAuth2コールバック）と
// 全リクエストに適用するルートゲートを提供する。
package main

import (
	"context"
	"errors"
	"io/fs"
	"log"

	"github.com/joho/godotenv"
	"github.com/nao1215/authgate/internal/gateway"
)

func main() {
	// .envが無い場合は環境変数のみを使用する
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf(".envの読み込みに失敗: %v", err)
	}

	cfg := gateway.LoadConfig()
	server, err := gateway.NewServer(context.Background(), cfg)
	if err != nil {
		log.Fatalf("authgateサーバーの初期化に失敗: %v", err)
	}
	defer func() { _ = server.Close() }()

	log.Printf("authgateを起動します: :%s", cfg.Port)
	if err := server.Run(); err != nil {
		log.Fatalf("authgateの起動に失敗: %v", err)
	}
}
