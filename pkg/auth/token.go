package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SessionClaims はセッショントークンのクレーム（ペイロード）を表す。
// subクレームにユーザーIDを格納する。
type SessionClaims struct {
	jwt.RegisteredClaims
	// Name はユーザーの表示名。
	Name string `json:"name,omitempty"`
	// Email はユーザーのメールアドレス。
	Email string `json:"email,omitempty"`
	// Picture はアバター画像のURL。
	Picture string `json:"picture,omitempty"`
}

// issueToken はユーザー情報からセッショントークンを生成する。
func issueToken(cfg Config, user User, now time.Time) (string, *SessionClaims, error) {
	claims := &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			ID:        uuid.New().String(),
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.SessionMaxAge)),
		},
		Name:    user.Name,
		Email:   user.Email,
		Picture: user.Image,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", nil, fmt.Errorf("セッショントークンの署名に失敗: %w", err)
	}
	return signed, claims, nil
}

// parseToken はセッショントークンを検証してクレームを返す。
// 署名、アルゴリズム、発行者、有効期限のいずれかが不正な場合はエラーを返す。
func parseToken(cfg Config, tokenString string, now func() time.Time) (*SessionClaims, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return []byte(cfg.Secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(now),
	)
	if err != nil {
		return nil, fmt.Errorf("セッショントークンの検証に失敗: %w", err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("セッショントークンが無効です")
	}
	return claims, nil
}

// sessionFromClaims はトークンのクレームからセッションを組み立てる。
func sessionFromClaims(claims *SessionClaims) *Session {
	s := &Session{
		User: User{
			ID:    claims.Subject,
			Name:  claims.Name,
			Email: claims.Email,
			Image: claims.Picture,
		},
		TokenID: claims.ID,
	}
	if claims.ExpiresAt != nil {
		s.Expires = claims.ExpiresAt.Time
	}
	return s
}
