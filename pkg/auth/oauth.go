package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/nao1215/authgate/pkg/event"
	"github.com/nao1215/authgate/pkg/httpclient"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

// OAuthProfile はOAuth2プロバイダーから取得したユーザー情報。
type OAuthProfile struct {
	// ID はプロバイダー側のアカウントID。
	ID string
	// Name は表示名。
	Name string
	// Email はメールアドレス。
	Email string
	// Image はアバター画像のURL。
	Image string
}

// OAuthProvider はOAuth2プロバイダーの接続情報。
type OAuthProvider struct {
	// Name はプロバイダー名（例: "google"）。
	Name string
	// Endpoint は認可エンドポイントとトークンエンドポイント。
	Endpoint oauth2.Endpoint
	// Scopes は要求するスコープ。
	Scopes []string
	// UserInfoBaseURL はユーザー情報APIのベースURL。
	UserInfoBaseURL string
	// UserInfoPath はユーザー情報APIのパス。
	UserInfoPath string
	// Profile はユーザー情報APIのレスポンスをOAuthProfileに変換する。
	Profile func(raw json.RawMessage) (OAuthProfile, error)
}

// GoogleProvider はGoogleのOpenID Connectプロバイダーを返す。
func GoogleProvider() OAuthProvider {
	return OAuthProvider{
		Name:            "google",
		Endpoint:        endpoints.Google,
		Scopes:          []string{"openid", "email", "profile"},
		UserInfoBaseURL: "https://openidconnect.googleapis.com",
		UserInfoPath:    "/v1/userinfo",
		Profile:         googleProfile,
	}
}

// GitHubProvider はGitHubのOAuth2プロバイダーを返す。
func GitHubProvider() OAuthProvider {
	return OAuthProvider{
		Name:            "github",
		Endpoint:        endpoints.GitHub,
		Scopes:          []string{"read:user", "user:email"},
		UserInfoBaseURL: "https://api.github.com",
		UserInfoPath:    "/user",
		Profile:         githubProfile,
	}
}

// googleProfile はGoogleのuserinfoレスポンスを変換する。
func googleProfile(raw json.RawMessage) (OAuthProfile, error) {
	var p struct {
		Sub     string `json:"sub"`
		Name    string `json:"name"`
		Email   string `json:"email"`
		Picture string `json:"picture"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return OAuthProfile{}, fmt.Errorf("Googleのユーザー情報のパースに失敗: %w", err)
	}
	if p.Sub == "" {
		return OAuthProfile{}, errors.New("Googleのユーザー情報にsubがありません")
	}
	return OAuthProfile{ID: p.Sub, Name: p.Name, Email: p.Email, Image: p.Picture}, nil
}

// githubProfile はGitHubの/userレスポンスを変換する。
// メールアドレスが非公開の場合はnoreplyアドレスで補う。
func githubProfile(raw json.RawMessage) (OAuthProfile, error) {
	var p struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		Name      string `json:"name"`
		Email     string `json:"email"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return OAuthProfile{}, fmt.Errorf("GitHubのユーザー情報のパースに失敗: %w", err)
	}
	if p.ID == 0 {
		return OAuthProfile{}, errors.New("GitHubのユーザー情報にidがありません")
	}
	name := p.Name
	if name == "" {
		name = p.Login
	}
	email := p.Email
	if email == "" {
		email = fmt.Sprintf("%d+%s@users.noreply.github.com", p.ID, p.Login)
	}
	return OAuthProfile{ID: strconv.FormatInt(p.ID, 10), Name: name, Email: email, Image: p.AvatarURL}, nil
}

// OAuthVerifier は認可コードをアクセストークンに交換し、プロバイダーのユーザーを
// アダプターのユーザーに対応付ける。初回サインイン時はユーザーを作成して紐づける。
type OAuthVerifier struct {
	provider OAuthProvider
	config   *oauth2.Config
	userinfo *httpclient.Client
	adapter  Adapter
}

// NewOAuthVerifier は新しいOAuthVerifierを生成する。
// redirectURLにはコールバックエンドポイントの絶対URLを指定する。
func NewOAuthVerifier(provider OAuthProvider, clientID, clientSecret, redirectURL string, adapter Adapter) *OAuthVerifier {
	return &OAuthVerifier{
		provider: provider,
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     provider.Endpoint,
			RedirectURL:  redirectURL,
			Scopes:       provider.Scopes,
		},
		userinfo: httpclient.New(provider.UserInfoBaseURL),
		adapter:  adapter,
	}
}

// AuthCodeURL はプロバイダーの認可画面のURLを返す。
func (v *OAuthVerifier) AuthCodeURL(state string) string {
	return v.config.AuthCodeURL(state)
}

// Verify は認可コードを検証してユーザーを返す。
func (v *OAuthVerifier) Verify(ctx context.Context, creds Credentials) (*User, error) {
	if creds.Code == "" {
		return nil, ErrInvalidCredentials
	}

	token, err := v.config.Exchange(ctx, creds.Code)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidCredentials, re.ErrorCode)
		}
		return nil, fmt.Errorf("アクセストークンの交換に失敗: %w", err)
	}

	var raw json.RawMessage
	if err := v.userinfo.GetJSON(httpclient.WithBearerToken(ctx, token.AccessToken), v.provider.UserInfoPath, &raw); err != nil {
		return nil, fmt.Errorf("ユーザー情報の取得に失敗: %w", err)
	}
	profile, err := v.provider.Profile(raw)
	if err != nil {
		return nil, err
	}

	return v.linkProfile(ctx, profile)
}

// linkProfile はプロバイダーのアカウントに対応するユーザーを返す。
// 未登録の場合はユーザーを作成してアカウントを紐づける。
func (v *OAuthVerifier) linkProfile(ctx context.Context, profile OAuthProfile) (*User, error) {
	u, err := v.adapter.GetUserByAccount(ctx, v.provider.Name, profile.ID)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("アカウントの取得に失敗: %w", err)
	}

	// 同じメールアドレスのユーザーへの自動紐づけは行わない
	if profile.Email != "" {
		_, err := v.adapter.GetUserByEmail(ctx, profile.Email)
		if err == nil {
			return nil, ErrAccountNotLinked
		}
		if !errors.Is(err, ErrUserNotFound) {
			return nil, fmt.Errorf("ユーザーの取得に失敗: %w", err)
		}
	}

	u, err = v.adapter.CreateUserWithAccount(ctx, NewUser{Name: profile.Name, Email: profile.Email, Image: profile.Image}, v.provider.Name, profile.ID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの作成に失敗: %w", err)
	}
	recordEvent(ctx, v.adapter, u.ID, event.TypeUserCreated, v.provider.Name, event.UserCreatedData{Email: u.Email, Name: u.Name})
	recordEvent(ctx, v.adapter, u.ID, event.TypeAccountLinked, v.provider.Name, event.AccountLinkedData{ProviderAccountID: profile.ID})

	return u, nil
}
