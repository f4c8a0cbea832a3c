package auth

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"

	"github.com/nao1215/authgate/pkg/event"
)

// memAdapter はテスト用のインメモリAdapter。
type memAdapter struct {
	mu       sync.Mutex
	users    map[string]*AdapterUser
	accounts map[string]string
	events   []*event.Event
	// failEvents がtrueの場合RecordEventはエラーを返す。
	failEvents bool
	// failLinks は残りの回数だけアカウントの紐づけを失敗させる。
	failLinks int
}

// newMemAdapter は空のmemAdapterを生成する。
func newMemAdapter() *memAdapter {
	return &memAdapter{
		users:    make(map[string]*AdapterUser),
		accounts: make(map[string]string),
	}
}

func (m *memAdapter) CreateUser(_ context.Context, u NewUser) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createUser(u)
}

func (m *memAdapter) CreateUserWithAccount(_ context.Context, u NewUser, provider, providerAccountID string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failLinks > 0 {
		m.failLinks--
		return nil, errors.New("アカウントストア障害")
	}
	user, err := m.createUser(u)
	if err != nil {
		return nil, err
	}
	m.accounts[provider+":"+providerAccountID] = user.ID
	return user, nil
}

// createUser はm.muを保持した状態で呼び出す。
func (m *memAdapter) createUser(u NewUser) (*User, error) {
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return nil, ErrEmailTaken
		}
	}
	id := "user-" + strconv.Itoa(len(m.users)+1)
	m.users[id] = &AdapterUser{
		User:         User{ID: id, Name: u.Name, Email: u.Email, Image: u.Image},
		PasswordHash: u.PasswordHash,
	}
	user := m.users[id].User
	return &user, nil
}

func (m *memAdapter) GetUserByEmail(_ context.Context, email string) (*AdapterUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *memAdapter) GetUserByAccount(_ context.Context, provider, providerAccountID string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	userID, ok := m.accounts[provider+":"+providerAccountID]
	if !ok {
		return nil, ErrUserNotFound
	}
	user := m.users[userID].User
	return &user, nil
}

func (m *memAdapter) RecordEvent(_ context.Context, e *event.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failEvents {
		return errors.New("イベントストア障害")
	}
	m.events = append(m.events, e)
	return nil
}

// eventTypes は記録されたイベントの種類を記録順に返す。
func (m *memAdapter) eventTypes() []event.Type {
	m.mu.Lock()
	defer m.mu.Unlock()
	types := make([]event.Type, 0, len(m.events))
	for _, e := range m.events {
		types = append(types, e.EventType)
	}
	return types
}

// testHasher はテスト用に計算コストを下げたPasswordHasherを返す。
func testHasher() *PasswordHasher {
	return NewPasswordHasher(PasswordParams{Memory: 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
}

// seedPasswordUser はパスワード付きのユーザーをアダプターに登録する。
func seedPasswordUser(t *testing.T, m *memAdapter, email, password string) *User {
	t.Helper()

	hash, err := testHasher().Hash(password)
	if err != nil {
		t.Fatalf("パスワードのハッシュ化に失敗: %v", err)
	}
	u, err := m.CreateUser(context.Background(), NewUser{Name: "テストユーザー", Email: email, PasswordHash: hash})
	if err != nil {
		t.Fatalf("テスト用ユーザーの作成に失敗: %v", err)
	}
	return u
}
