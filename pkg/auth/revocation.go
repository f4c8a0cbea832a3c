package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RevocationStore はサインアウト済みのセッショントークンを記録する。
type RevocationStore interface {
	// Revoke はトークンをttlの間だけ失効済みとして記録する。
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	// IsRevoked はトークンが失効済みかを返す。
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// RedisRevocationStore はRedisに失効済みトークンを保存する。
// キーの有効期限をトークンの残り有効期間に合わせるため、期限切れのエントリは自動で消える。
type RedisRevocationStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisRevocationStore は新しいRedisRevocationStoreを生成する。
// prefixが空の場合は "authgate:revoked:" を使用する。
func NewRedisRevocationStore(client redis.UniversalClient, prefix string) *RedisRevocationStore {
	if prefix == "" {
		prefix = "authgate:revoked:"
	}
	return &RedisRevocationStore{client: client, prefix: prefix}
}

// Revoke はトークンを失効済みとして記録する。ttlが0以下の場合は何もしない。
func (s *RedisRevocationStore) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, s.prefix+tokenID, 1, ttl).Err(); err != nil {
		return fmt.Errorf("トークン失効の記録に失敗: %w", err)
	}
	return nil
}

// IsRevoked はトークンが失効済みかを返す。
func (s *RedisRevocationStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.prefix+tokenID).Result()
	if err != nil {
		return false, fmt.Errorf("トークン失効状態の取得に失敗: %w", err)
	}
	return n > 0, nil
}
