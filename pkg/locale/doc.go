// Package locale はリクエストから表示言語（ロケール）を決定する。
//
// URLパス、NEXT_LOCALE Cookie、Accept-Languageヘッダーの順で判定し、
// サポート対象の固定されたロケール集合のいずれかを必ず返す。
// 判定は副作用を持たない純粋関数として実装する。
package locale
