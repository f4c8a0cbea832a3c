package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nao1215/authgate/internal/store/authdb"
	"github.com/nao1215/authgate/pkg/auth"
	"github.com/nao1215/authgate/pkg/event"
	"github.com/nao1215/authgate/pkg/migration"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// eventTimeLayout はauth_events.created_atの保存形式。
// 文字列の大小が時刻の前後と一致するよう桁数を固定する。
const eventTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

var _ auth.Adapter = (*Store)(nil)

// Store はSQLiteに保存する認証アダプター。
type Store struct {
	// db はSQLiteデータベース接続。
	db *sql.DB
	// queries はauthdbのクエリ実行オブジェクト。
	queries *authdb.Queries
}

// Open はSQLiteデータベースを開き、マイグレーションを適用する。
func Open(ctx context.Context, dsn string) (*Store, error) {
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}
	// :memory: は接続ごとに別のデータベースになる
	if strings.Contains(dsn, ":memory:") {
		sqlDB.SetMaxOpenConns(1)
	}

	if _, err := migration.Run(ctx, sqlDB, migrationsFS, "migrations"); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("マイグレーションに失敗: %w", err)
	}

	return &Store{db: sqlDB, queries: authdb.New(sqlDB)}, nil
}

// Close はデータベース接続を閉じる。
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping はデータベースへの疎通を確認する。
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SchemaVersion は適用済みのスキーマバージョンを返す。
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	return migration.Current(ctx, s.db)
}

// CreateUser はユーザーを作成する。メールアドレスが登録済みの場合はauth.ErrEmailTakenを返す。
func (s *Store) CreateUser(ctx context.Context, u auth.NewUser) (*auth.User, error) {
	return createUser(ctx, s.queries, u)
}

// CreateUserWithAccount はユーザーの作成とアカウントの紐づけを1つのトランザクションで行う。
// どちらかが失敗した場合はユーザーも作成されない。
func (s *Store) CreateUserWithAccount(ctx context.Context, u auth.NewUser, provider, providerAccountID string) (*auth.User, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("トランザクションの開始に失敗: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	q := s.queries.WithTx(tx)
	user, err := createUser(ctx, q, u)
	if err != nil {
		return nil, err
	}
	if err := linkAccount(ctx, q, user.ID, provider, providerAccountID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("トランザクションのコミットに失敗: %w", err)
	}
	return user, nil
}

func createUser(ctx context.Context, q *authdb.Queries, u auth.NewUser) (*auth.User, error) {
	id := uuid.New().String()
	err := q.CreateUser(ctx, authdb.CreateUserParams{
		ID:           id,
		Name:         u.Name,
		Email:        u.Email,
		Image:        u.Image,
		PasswordHash: u.PasswordHash,
	})
	if isUniqueViolation(err) {
		return nil, auth.ErrEmailTaken
	}
	if err != nil {
		return nil, fmt.Errorf("ユーザーの作成に失敗: %w", err)
	}
	return &auth.User{ID: id, Name: u.Name, Email: u.Email, Image: u.Image}, nil
}

// GetUserByID はIDでユーザーを取得する。
func (s *Store) GetUserByID(ctx context.Context, id string) (*auth.User, error) {
	row, err := s.queries.GetUserByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "ユーザーの取得に失敗")
	}
	u := toUser(row)
	return &u, nil
}

// GetUserByEmail はメールアドレスでユーザーをパスワードハッシュ付きで取得する。
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*auth.AdapterUser, error) {
	row, err := s.queries.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, notFound(err, "ユーザーの取得に失敗")
	}
	return &auth.AdapterUser{User: toUser(row), PasswordHash: row.PasswordHash}, nil
}

// GetUserByAccount はプロバイダーのアカウントに紐づくユーザーを取得する。
func (s *Store) GetUserByAccount(ctx context.Context, provider, providerAccountID string) (*auth.User, error) {
	row, err := s.queries.GetUserByAccount(ctx, authdb.GetUserByAccountParams{
		Provider:          provider,
		ProviderAccountID: providerAccountID,
	})
	if err != nil {
		return nil, notFound(err, "アカウントの取得に失敗")
	}
	u := toUser(row)
	return &u, nil
}

// LinkAccount はユーザーにプロバイダーのアカウントを紐づける。
func (s *Store) LinkAccount(ctx context.Context, userID, provider, providerAccountID string) error {
	return linkAccount(ctx, s.queries, userID, provider, providerAccountID)
}

func linkAccount(ctx context.Context, q *authdb.Queries, userID, provider, providerAccountID string) error {
	if err := q.CreateAccount(ctx, authdb.CreateAccountParams{
		ID:                uuid.New().String(),
		UserID:            userID,
		Provider:          provider,
		ProviderAccountID: providerAccountID,
	}); err != nil {
		return fmt.Errorf("アカウントの紐づけに失敗: provider=%s: %w", provider, err)
	}
	return nil
}

// Providers はユーザーに紐づくOAuthプロバイダー名を返す。
func (s *Store) Providers(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.queries.ListAccountsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("アカウント一覧の取得に失敗: %w", err)
	}
	providers := make([]string, 0, len(rows))
	for _, r := range rows {
		providers = append(providers, r.Provider)
	}
	return providers, nil
}

// RecordEvent は認証イベントを記録する。サインインの場合は最終ログイン日時も更新する。
func (s *Store) RecordEvent(ctx context.Context, e *event.Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	q := s.queries.WithTx(tx)
	if err := q.InsertAuthEvent(ctx, authdb.InsertAuthEventParams{
		ID:        e.ID,
		UserID:    e.UserID,
		EventType: string(e.EventType),
		Provider:  e.Provider,
		Data:      string(e.Data),
		CreatedAt: e.CreatedAt.UTC().Format(eventTimeLayout),
	}); err != nil {
		return fmt.Errorf("イベントの保存に失敗: %w", err)
	}

	if e.EventType == event.TypeSignedIn {
		if err := q.UpdateLastLogin(ctx, e.UserID); err != nil {
			return fmt.Errorf("最終ログイン日時の更新に失敗: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗: %w", err)
	}
	return nil
}

// ListEvents はユーザーの認証イベントを新しい順に最大limit件返す。
func (s *Store) ListEvents(ctx context.Context, userID string, limit int) ([]*event.Event, error) {
	rows, err := s.queries.ListAuthEventsByUser(ctx, authdb.ListAuthEventsByUserParams{
		UserID: userID,
		Limit:  int64(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("イベントの取得に失敗: %w", err)
	}

	events := make([]*event.Event, 0, len(rows))
	for _, r := range rows {
		createdAt, err := time.Parse(eventTimeLayout, r.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("イベント日時のパースに失敗: id=%s: %w", r.ID, err)
		}
		events = append(events, &event.Event{
			ID:        r.ID,
			UserID:    r.UserID,
			EventType: event.Type(r.EventType),
			Provider:  r.Provider,
			Data:      json.RawMessage(r.Data),
			CreatedAt: createdAt,
		})
	}
	return events, nil
}

// toUser はデータベースの行をauth.Userに変換する。
func toUser(row authdb.User) auth.User {
	return auth.User{ID: row.ID, Name: row.Name, Email: row.Email, Image: row.Image}
}

// notFound はsql.ErrNoRowsをauth.ErrUserNotFoundに変換し、それ以外はmsgを付けて返す。
func notFound(err error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return auth.ErrUserNotFound
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// isUniqueViolation は一意制約違反のエラーかどうかを返す。
func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	return errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}
