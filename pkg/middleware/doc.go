// Package middleware はGinベースのHTTPサーバーで使用するミドルウェアを提供する。
//
// 中心となるのはルートゲート（RouteGate）で、リクエストごとにセッションの有無を確認し、
// サインインページへのリダイレクト、ダッシュボードへのリダイレクト、
// ロケールCookieを付与しての続行のいずれかを決定する。
// ほかにパニックリカバリ、CORS設定、ゲートのPrometheusメトリクスを含む。
package middleware
