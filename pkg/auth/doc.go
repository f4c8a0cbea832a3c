// Package auth は認証フレームワークのインスタンスを提供する。
//
// プロバイダー（メールアドレス/パスワード、Google、GitHub）ごとの資格情報の検証、
// JWTによるセッショントークンの発行と検証、サインアウト時のトークン失効を担当する。
// インスタンスは New で明示的に生成して受け渡す。パッケージレベルの共有状態は持たない。
//
// ルーティング判定（middleware.RouteGate）は SessionProvider インターフェースだけに
// 依存し、セッションがどの方法で確立されたかには関知しない。
package auth
