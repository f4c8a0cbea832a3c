package gateway

import (
	"errors"
	"log"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/nao1215/authgate/pkg/auth"
	"github.com/nao1215/authgate/pkg/middleware"
)

const (
	// oauthStateCookie はOAuth2のstateを保存するCookieの名前。
	oauthStateCookie = "authgate.oauth-state"
	// oauthStateMaxAge はstate Cookieの有効期間（秒）。
	oauthStateMaxAge = 600
	// recentEventsLimit は/api/meで返す認証イベントの件数。
	recentEventsLimit = 20
)

// credentialsRequest はサインインとサインアップのリクエストボディ。
type credentialsRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// handleSession は現在のセッションを返すハンドラを返す。
// 未認証の場合はnullを返す。
func (s *Server) handleSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := middleware.SessionFrom(c)
		if session == nil {
			c.JSON(http.StatusOK, nil)
			return
		}
		c.JSON(http.StatusOK, session)
	}
}

// handleProviders は登録済みのプロバイダー一覧を返すハンドラを返す。
func (s *Server) handleProviders() gin.HandlerFunc {
	return func(c *gin.Context) {
		providers := make(gin.H)
		for _, name := range s.auth.Providers() {
			typ, signinURL := "oauth", s.config.AuthURL+"/api/auth/signin/"+name
			if name == auth.ProviderCredentials {
				typ, signinURL = "credentials", s.config.AuthURL+middleware.SignInPath
			}
			providers[name] = gin.H{
				"id":          name,
				"type":        typ,
				"signinUrl":   signinURL,
				"callbackUrl": s.config.AuthURL + "/api/auth/callback/" + name,
			}
		}
		c.JSON(http.StatusOK, providers)
	}
}

// handleCredentialsSignIn はメールアドレスとパスワードでサインインするハンドラを返す。
func (s *Server) handleCredentialsSignIn() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req credentialsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "メールアドレスとパスワードを指定してください"})
			return
		}

		res, err := s.auth.SignIn(c.Request.Context(), auth.ProviderCredentials, auth.Credentials{Email: req.Email, Password: req.Password})
		if errors.Is(err, auth.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "メールアドレスまたはパスワードが正しくありません",
				"url":   s.errorPage("CredentialsSignin"),
			})
			return
		}
		if err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "サインインに失敗しました"})
			return
		}

		http.SetCookie(c.Writer, s.auth.SessionCookie(res.Token))
		c.JSON(http.StatusOK, gin.H{
			"url":     s.auth.Config().Pages.AfterSignIn,
			"session": res.Session,
		})
	}
}

// handleSignUp はユーザーを登録してサインインさせるハンドラを返す。
func (s *Server) handleSignUp() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req credentialsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "メールアドレスとパスワードを指定してください"})
			return
		}

		res, err := s.auth.SignUp(c.Request.Context(), req.Name, auth.Credentials{Email: req.Email, Password: req.Password})
		switch {
		case errors.Is(err, auth.ErrWeakPassword), errors.Is(err, auth.ErrInvalidCredentials):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		case errors.Is(err, auth.ErrEmailTaken):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		case err != nil:
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザー登録に失敗しました"})
			return
		}

		http.SetCookie(c.Writer, s.auth.SessionCookie(res.Token))
		c.JSON(http.StatusCreated, gin.H{
			"url":     s.auth.Config().Pages.AfterSignIn,
			"session": res.Session,
		})
	}
}

// handleSignOut はセッションを失効させてCookieを削除するハンドラを返す。
func (s *Server) handleSignOut() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.auth.SignOut(c.Request.Context(), c.Request); err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "サインアウトに失敗しました"})
			return
		}
		http.SetCookie(c.Writer, s.auth.ExpiredSessionCookie())
		c.JSON(http.StatusOK, gin.H{"url": s.auth.Config().Pages.SignIn})
	}
}

// handleOAuthSignIn はOAuth2プロバイダーの認可画面へリダイレクトするハンドラを返す。
func (s *Server) handleOAuthSignIn() gin.HandlerFunc {
	return func(c *gin.Context) {
		provider := c.Param("provider")
		v, ok := s.oauth[provider]
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "プロバイダーが設定されていません: " + provider})
			return
		}

		state := uuid.New().String()
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(oauthStateCookie, state, oauthStateMaxAge, "/api/auth/callback/", "", s.config.secureCookie(), true)
		c.Redirect(http.StatusTemporaryRedirect, v.AuthCodeURL(state))
	}
}

// handleOAuthCallback はOAuth2プロバイダーからのコールバックを処理するハンドラを返す。
// 成功時はセッションCookieを設定してダッシュボードへ、失敗時はエラーページへリダイレクトする。
func (s *Server) handleOAuthCallback() gin.HandlerFunc {
	return func(c *gin.Context) {
		provider := c.Param("provider")
		if _, ok := s.oauth[provider]; !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "プロバイダーが設定されていません: " + provider})
			return
		}

		state, err := c.Cookie(oauthStateCookie)
		c.SetCookie(oauthStateCookie, "", -1, "/api/auth/callback/", "", s.config.secureCookie(), true)
		if err != nil || state == "" || c.Query("state") != state {
			c.Redirect(http.StatusFound, s.errorPage("OAuthCallback"))
			return
		}
		if e := c.Query("error"); e != "" {
			log.Printf("[Auth] OAuth2プロバイダーがエラーを返しました: provider=%s, error=%s", provider, e)
			c.Redirect(http.StatusFound, s.errorPage("OAuthCallback"))
			return
		}

		res, err := s.auth.SignIn(c.Request.Context(), provider, auth.Credentials{Code: c.Query("code")})
		switch {
		case errors.Is(err, auth.ErrAccountNotLinked):
			c.Redirect(http.StatusFound, s.errorPage("OAuthAccountNotLinked"))
			return
		case err != nil:
			log.Printf("[Auth] OAuth2サインインに失敗: provider=%s, error=%v", provider, err)
			c.Redirect(http.StatusFound, s.errorPage("OAuthCallback"))
			return
		}

		http.SetCookie(c.Writer, s.auth.SessionCookie(res.Token))
		c.Redirect(http.StatusFound, s.auth.Config().Pages.AfterSignIn)
	}
}

// handleGetCurrentUser は認証済みユーザーの情報を返すハンドラを返す。
func (s *Server) handleGetCurrentUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := middleware.SessionFrom(c)
		if session == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "サインインが必要です"})
			return
		}
		ctx := c.Request.Context()

		// デモ用アカウントはストアに存在しないためセッションの内容を返す
		user, err := s.store.GetUserByID(ctx, session.UserID())
		if errors.Is(err, auth.ErrUserNotFound) {
			user = &session.User
		} else if err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザー取得に失敗しました"})
			return
		}

		providers, err := s.store.Providers(ctx, user.ID)
		if err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "アカウント取得に失敗しました"})
			return
		}
		events, err := s.store.ListEvents(ctx, user.ID, recentEventsLimit)
		if err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "イベント取得に失敗しました"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"user":      user,
			"expires":   session.Expires,
			"locale":    middleware.LocaleFrom(c),
			"providers": providers,
			"events":    events,
		})
	}
}

// errorPage はエラーコード付きのエラーページのパスを返す。
func (s *Server) errorPage(code string) string {
	return s.auth.Config().Pages.Error + "?" + url.Values{"error": {code}}.Encode()
}
