// Package gateway はauthgateのHTTPサーバーを提供する。
//
// 認証フレームワーク（pkg/auth）をSQLiteのストアとRedisの失効ストアに接続し、
// サインイン、サインアップ、サインアウト、OAuth2コールバックのAPIを公開する。
// すべてのリクエストはルートゲートを通過し、未認証のユーザーはサインインページへ、
// 認証済みのユーザーがサインインページを開いた場合はダッシュボードへ転送される。
package gateway
