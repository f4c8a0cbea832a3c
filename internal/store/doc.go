// Package store は認証フレームワークのアダプターをSQLiteで実装する。
//
// ユーザー、プロバイダーのアカウント、認証イベントを保存する。
// スキーマはmigrationsディレクトリのSQLをpkg/migrationで適用する。
package store
