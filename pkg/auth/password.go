package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
)

// minPasswordLength はサインアップ時に要求するパスワードの最小バイト数。
const minPasswordLength = 8

// PasswordParams はargon2idのパラメータ。
type PasswordParams struct {
	// Memory はメモリコスト（KiB）。
	Memory uint32
	// Time は反復回数。
	Time uint32
	// Parallelism は並列度。
	Parallelism uint8
	// SaltLength はソルトのバイト数。
	SaltLength uint32
	// KeyLength は導出する鍵のバイト数。
	KeyLength uint32
}

// DefaultPasswordParams は本番環境向けの既定パラメータ。
var DefaultPasswordParams = PasswordParams{
	Memory:      64 * 1024,
	Time:        3,
	Parallelism: 2,
	SaltLength:  16,
	KeyLength:   32,
}

// PasswordHasher はargon2idでパスワードをハッシュ化する。
// ハッシュはPHC文字列形式（$argon2id$v=19$m=...,t=...,p=...$salt$hash）で表現する。
type PasswordHasher struct {
	params PasswordParams
}

// NewPasswordHasher は新しいPasswordHasherを生成する。
func NewPasswordHasher(params PasswordParams) *PasswordHasher {
	return &PasswordHasher{params: params}
}

// Hash はパスワードをハッシュ化してPHC文字列を返す。
func (h *PasswordHasher) Hash(password string) (string, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("ソルトの生成に失敗: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, h.params.Time, h.params.Memory, h.params.Parallelism, h.params.KeyLength)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.Memory,
		h.params.Time,
		h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify はパスワードがPHC文字列と一致するかを定数時間で比較する。
// ハッシュ自体の形式が不正な場合はエラーを返す。
func (h *PasswordHasher) Verify(password, encoded string) (bool, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return false, errors.New("PHC形式が不正です")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return false, errors.New("argon2のバージョンが不正です")
	}

	var p PasswordParams
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Time, &p.Parallelism); err != nil {
		return false, fmt.Errorf("argon2のパラメータが不正です: %w", err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, fmt.Errorf("ソルトのデコードに失敗: %w", err)
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(want) == 0 {
		return false, errors.New("ハッシュのデコードに失敗")
	}

	got := argon2.IDKey([]byte(password), salt, p.Time, p.Memory, p.Parallelism, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}
