// Package authdb は認証ストアのテーブルに対するクエリを提供する。
// クエリはsqlcの生成コードと同じ形（DBTX、Queries、パラメータ構造体）で記述している。
package authdb

import (
	"context"
	"database/sql"
)

// DBTX は*sql.DBと*sql.Txの共通インターフェース。
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	PrepareContext(context.Context, string) (*sql.Stmt, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// New はクエリ実行オブジェクトを生成する。
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// Queries はクエリ実行オブジェクト。
type Queries struct {
	db DBTX
}

// WithTx はトランザクション内でクエリを実行するオブジェクトを返す。
func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}
