// Package migration は認証ストアのスキーマを埋め込みSQLから構築する。
//
// internal/storeは migrations/NNNNNN_name.up.sql をembedしてRunに渡す。
// 適用したバージョンと名前はschema_migrationsテーブルに記録し、
// /api/healthはCurrentで現在のスキーマバージョンを返す。
package migration

import (
	"cmp"
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log"
	"path"
	"slices"
	"strconv"
	"strings"
)

const upSuffix = ".up.sql"

// Migration は1つのマイグレーションファイル。
type Migration struct {
	// Version はファイル名先頭の数値。
	Version int
	// Name はバージョンに続く説明部分。
	Name string
	path string
}

// Run は未適用のマイグレーションをバージョン順に適用し、適用したものを返す。
// 各マイグレーションは記録の書き込みと同じトランザクションで実行する。
func Run(ctx context.Context, db *sql.DB, fsys fs.FS, dir string) ([]Migration, error) {
	pending, err := Pending(ctx, db, fsys, dir)
	if err != nil {
		return nil, err
	}

	applied := make([]Migration, 0, len(pending))
	for _, m := range pending {
		if err := apply(ctx, db, fsys, m); err != nil {
			return applied, fmt.Errorf("マイグレーション %06d_%s の適用に失敗: %w", m.Version, m.Name, err)
		}
		log.Printf("[Migration] %06d_%s を適用しました", m.Version, m.Name)
		applied = append(applied, m)
	}
	return applied, nil
}

// Pending は未適用のマイグレーションをバージョン順に返す。
func Pending(ctx context.Context, db *sql.DB, fsys fs.FS, dir string) ([]Migration, error) {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
		)
	`); err != nil {
		return nil, fmt.Errorf("schema_migrationsの作成に失敗: %w", err)
	}

	all, err := load(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("マイグレーションファイルの読み込みに失敗: %w", err)
	}

	done, err := appliedVersions(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("適用済みバージョンの取得に失敗: %w", err)
	}
	return slices.DeleteFunc(all, func(m Migration) bool { return done[m.Version] }), nil
}

// Current は適用済みの最大バージョンを返す。何も適用されていない場合は0を返す。
func Current(ctx context.Context, db *sql.DB) (int, error) {
	var v sql.NullInt64
	if err := db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&v); err != nil {
		return 0, fmt.Errorf("スキーマバージョンの取得に失敗: %w", err)
	}
	return int(v.Int64), nil
}

func appliedVersions(ctx context.Context, db *sql.DB) (map[int]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	done := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		done[v] = true
	}
	return done, rows.Err()
}

// load はdir直下の *.up.sql を読み込む。
// 命名規則に合わないup.sqlとバージョンの重複はエラーにする。
func load(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}

	var out []Migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), upSuffix) {
			continue
		}
		m, err := parseFileName(entry.Name())
		if err != nil {
			return nil, err
		}
		m.path = path.Join(dir, entry.Name())
		out = append(out, m)
	}

	slices.SortFunc(out, func(a, b Migration) int { return cmp.Compare(a.Version, b.Version) })
	for i := 1; i < len(out); i++ {
		if out[i].Version == out[i-1].Version {
			return nil, fmt.Errorf("バージョン %06d が重複しています: %s, %s", out[i].Version, out[i-1].path, out[i].path)
		}
	}
	return out, nil
}

// parseFileName は "000001_init.up.sql" をバージョンと名前に分解する。
func parseFileName(file string) (Migration, error) {
	prefix, name, ok := strings.Cut(strings.TrimSuffix(file, upSuffix), "_")
	if !ok || name == "" {
		return Migration{}, fmt.Errorf("ファイル名が不正です: %s", file)
	}
	version, err := strconv.Atoi(prefix)
	if err != nil || version <= 0 {
		return Migration{}, fmt.Errorf("バージョンが不正です: %s", file)
	}
	return Migration{Version: version, Name: name}, nil
}

func apply(ctx context.Context, db *sql.DB, fsys fs.FS, m Migration) error {
	script, err := fs.ReadFile(fsys, m.path)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, string(script)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version, name) VALUES (?, ?)", m.Version, m.Name); err != nil {
		return err
	}
	return tx.Commit()
}
