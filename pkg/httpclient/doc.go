// Package httpclient は外部APIとのHTTP通信を行うクライアントを提供する。
//
// OAuth2プロバイダーのユーザー情報エンドポイントなど、
// アクセストークンを付与してJSONを取得する通信パターンを統一する。
package httpclient
