package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/nao1215/authgate/internal/store"
	"github.com/nao1215/authgate/pkg/auth"
	"github.com/nao1215/authgate/pkg/event"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testHasher はテスト用に計算コストを下げたPasswordHasherを返す。
func testHasher() *auth.PasswordHasher {
	return auth.NewPasswordHasher(auth.PasswordParams{Memory: 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
}

// testServer はテスト用サーバーと依存するminiredisの組。
type testServer struct {
	*Server
	redis *miniredis.Miniredis
}

// newTestServer はインメモリSQLiteとminiredisを使うテスト用サーバーを生成する。
func newTestServer(t *testing.T, clients ...oauthClient) *testServer {
	t.Helper()

	st, err := store.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("ストアの初期化に失敗: %v", err)
	}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := Config{
		Port:        "0",
		AuthSecret:  "test-secret",
		AuthURL:     "http://localhost:8080",
		FrontendURL: "http://localhost:3000",
		DemoLogin:   true,
	}
	s, err := newServer(cfg, st, rdb, clients, testHasher())
	if err != nil {
		t.Fatalf("newServer()でエラーが発生: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	return &testServer{Server: s, redis: mr}
}

// do はリクエストを実行する。cookiesは順にリクエストへ付与する。
func (s *testServer) do(method, target, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

// findCookie はレスポンスから指定名のCookieを取り出す。
func findCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// signInDemo はデモ用アカウントでサインインしてセッションCookieを返す。
func signInDemo(t *testing.T, s *testServer) *http.Cookie {
	t.Helper()

	w := s.do(http.MethodPost, "/api/auth/callback/credentials", `{"email":"user@example.com","password":"password"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("サインインのステータスコード = %d, body = %s", w.Code, w.Body.String())
	}
	c := findCookie(w, auth.DefaultCookieName)
	if c == nil {
		t.Fatal("セッションCookieが設定されていない")
	}
	return c
}

// decodeJSON はレスポンスボディをmapにデコードする。
func decodeJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("レスポンスボディのパースに失敗: %v, body = %s", err, w.Body.String())
	}
	return body
}

// TestRouteGating はサーバー全体でのルートゲートの動作を検証する。
func TestRouteGating(t *testing.T) {
	t.Parallel()

	t.Run("未認証でダッシュボードはサインインへリダイレクトされること", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t)
		w := s.do(http.MethodGet, "/dashboard", "")

		if w.Code != http.StatusTemporaryRedirect {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusTemporaryRedirect)
		}
		if got := w.Header().Get("Location"); got != "/signin" {
			t.Errorf("Location = %q, want %q", got, "/signin")
		}
		if len(w.Result().Cookies()) != 0 {
			t.Errorf("リダイレクト時にCookieが設定された: %v", w.Result().Cookies())
		}
	})

	t.Run("未認証でトップページはロケールCookie付きで表示されること", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Accept-Language", "de,en;q=0.5")
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		c := findCookie(w, "NEXT_LOCALE")
		if c == nil || c.Value != "de-DE" || c.MaxAge != 2592000 || c.Path != "/" {
			t.Errorf("NEXT_LOCALE = %+v", c)
		}
		body := decodeJSON(t, w)
		if body["page"] != "home" || body["locale"] != "de-DE" {
			t.Errorf("body = %v", body)
		}
	})

	t.Run("サインイン後はダッシュボードが表示されサインインページはダッシュボードへ転送されること", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t)
		session := signInDemo(t, s)

		w := s.do(http.MethodGet, "/dashboard", "", session)
		if w.Code != http.StatusOK {
			t.Fatalf("ダッシュボードのステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		user, _ := decodeJSON(t, w)["user"].(map[string]any)
		if user["email"] != "user@example.com" {
			t.Errorf("user = %v", user)
		}

		for _, page := range []string{"/signin", "/signup"} {
			w := s.do(http.MethodGet, page, "", session)
			if w.Code != http.StatusTemporaryRedirect {
				t.Errorf("%s: ステータスコード = %d, want %d", page, w.Code, http.StatusTemporaryRedirect)
			}
			if got := w.Header().Get("Location"); got != "/dashboard" {
				t.Errorf("%s: Location = %q, want %q", page, got, "/dashboard")
			}
		}
	})

	t.Run("Redisに障害がある場合はセッション付きのリクエストが500になること", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t)
		session := signInDemo(t, s)
		s.redis.Close()

		w := s.do(http.MethodGet, "/dashboard", "", session)
		if w.Code != http.StatusInternalServerError {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusInternalServerError)
		}
	})
}

// TestCredentialsFlow はサインイン、サインアップ、サインアウトのAPIを検証する。
func TestCredentialsFlow(t *testing.T) {
	t.Parallel()

	t.Run("誤ったパスワードでは401が返ること", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t)
		w := s.do(http.MethodPost, "/api/auth/callback/credentials", `{"email":"user@example.com","password":"wrong"}`)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusUnauthorized)
		}
		if got := decodeJSON(t, w)["url"]; got != "/signin?error=CredentialsSignin" {
			t.Errorf("url = %v", got)
		}
		if findCookie(w, auth.DefaultCookieName) != nil {
			t.Error("失敗時にセッションCookieが設定された")
		}
	})

	t.Run("リクエストボディが不正な場合は400が返ること", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t)
		w := s.do(http.MethodPost, "/api/auth/callback/credentials", `{"email":""}`)
		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("サインアップしたユーザーのイベントが/api/meで取得できること", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t)
		w := s.do(http.MethodPost, "/api/auth/signup", `{"name":"Frank","email":"frank@example.com","password":"frank-password"}`)
		if w.Code != http.StatusCreated {
			t.Fatalf("ステータスコード = %d, body = %s", w.Code, w.Body.String())
		}
		session := findCookie(w, auth.DefaultCookieName)
		if session == nil {
			t.Fatal("セッションCookieが設定されていない")
		}

		w = s.do(http.MethodGet, "/api/me", "", session)
		if w.Code != http.StatusOK {
			t.Fatalf("/api/meのステータスコード = %d, body = %s", w.Code, w.Body.String())
		}
		var me struct {
			User   auth.User      `json:"user"`
			Events []*event.Event `json:"events"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &me); err != nil {
			t.Fatalf("レスポンスボディのパースに失敗: %v", err)
		}
		if me.User.Name != "Frank" || me.User.Email != "frank@example.com" {
			t.Errorf("user = %+v", me.User)
		}
		if len(me.Events) != 2 {
			t.Errorf("イベント件数 = %d, want 2", len(me.Events))
		}

		w = s.do(http.MethodPost, "/api/auth/callback/credentials", `{"email":"frank@example.com","password":"frank-password"}`)
		if w.Code != http.StatusOK {
			t.Errorf("登録したユーザーでのサインインのステータスコード = %d", w.Code)
		}
	})

	t.Run("サインアップの入力エラーが適切なステータスで返ること", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t)
		if w := s.do(http.MethodPost, "/api/auth/signup", `{"email":"g@example.com","password":"short"}`); w.Code != http.StatusBadRequest {
			t.Errorf("短いパスワード: ステータスコード = %d, want %d", w.Code, http.StatusBadRequest)
		}
		if w := s.do(http.MethodPost, "/api/auth/signup", `{"email":"g@example.com","password":"long-enough"}`); w.Code != http.StatusCreated {
			t.Fatalf("1回目: ステータスコード = %d, want %d", w.Code, http.StatusCreated)
		}
		if w := s.do(http.MethodPost, "/api/auth/signup", `{"email":"g@example.com","password":"long-enough"}`); w.Code != http.StatusConflict {
			t.Errorf("重複: ステータスコード = %d, want %d", w.Code, http.StatusConflict)
		}
	})

	t.Run("サインアウト後は同じCookieでダッシュボードに入れないこと", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t)
		session := signInDemo(t, s)

		w := s.do(http.MethodPost, "/api/auth/signout", "", session)
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, body = %s", w.Code, w.Body.String())
		}
		if c := findCookie(w, auth.DefaultCookieName); c == nil || c.MaxAge >= 0 {
			t.Errorf("セッションCookieが削除されていない: %+v", c)
		}

		w = s.do(http.MethodGet, "/dashboard", "", session)
		if w.Code != http.StatusTemporaryRedirect {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusTemporaryRedirect)
		}
	})

	t.Run("セッションAPIが未認証でnullを認証済みでユーザーを返すこと", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t)
		w := s.do(http.MethodGet, "/api/auth/session", "")
		if strings.TrimSpace(w.Body.String()) != "null" {
			t.Errorf("未認証のbody = %s, want null", w.Body.String())
		}

		w = s.do(http.MethodGet, "/api/auth/session", "", signInDemo(t, s))
		var session auth.Session
		if err := json.Unmarshal(w.Body.Bytes(), &session); err != nil {
			t.Fatalf("レスポンスボディのパースに失敗: %v", err)
		}
		if session.User.ID != "1" || session.Expires.IsZero() {
			t.Errorf("session = %+v", session)
		}
	})

	t.Run("/api/meは未認証で401を返すこと", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t)
		if w := s.do(http.MethodGet, "/api/me", ""); w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})
}

// newFakeGoogle はトークンエンドポイントとユーザー情報APIを持つテスト用サーバーを起動し、
// そこに向けたGoogleプロバイダーを返す。
func newFakeGoogle(t *testing.T) oauthClient {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := r.ParseForm(); err != nil || r.PostForm.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"at","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer at" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"sub":"g-1","name":"Grace","email":"grace@example.com","picture":""}`))
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	p := auth.GoogleProvider()
	p.Endpoint = oauth2.Endpoint{AuthURL: ts.URL + "/authorize", TokenURL: ts.URL + "/token", AuthStyle: oauth2.AuthStyleInParams}
	p.UserInfoBaseURL = ts.URL
	p.UserInfoPath = "/userinfo"
	return oauthClient{provider: p, clientID: "cid", clientSecret: "secret"}
}

// TestOAuthFlow はOAuth2のサインインとコールバックを検証する。
func TestOAuthFlow(t *testing.T) {
	t.Parallel()

	t.Run("認可画面へstate付きでリダイレクトされコールバックでサインインできること", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t, newFakeGoogle(t))

		w := s.do(http.MethodGet, "/api/auth/signin/google", "")
		if w.Code != http.StatusTemporaryRedirect {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusTemporaryRedirect)
		}
		location, err := url.Parse(w.Header().Get("Location"))
		if err != nil {
			t.Fatalf("Locationのパースに失敗: %v", err)
		}
		if location.Path != "/authorize" {
			t.Errorf("Location = %s", location)
		}
		if got := location.Query().Get("redirect_uri"); got != "http://localhost:8080/api/auth/callback/google" {
			t.Errorf("redirect_uri = %q", got)
		}
		state := findCookie(w, oauthStateCookie)
		if state == nil || state.Value != location.Query().Get("state") {
			t.Fatalf("state Cookie = %+v, state = %q", state, location.Query().Get("state"))
		}

		w = s.do(http.MethodGet, "/api/auth/callback/google?code=good-code&state="+state.Value, "", state)
		if w.Code != http.StatusFound {
			t.Fatalf("コールバックのステータスコード = %d, body = %s", w.Code, w.Body.String())
		}
		if got := w.Header().Get("Location"); got != "/dashboard" {
			t.Errorf("Location = %q, want %q", got, "/dashboard")
		}
		session := findCookie(w, auth.DefaultCookieName)
		if session == nil {
			t.Fatal("セッションCookieが設定されていない")
		}

		w = s.do(http.MethodGet, "/api/me", "", session)
		if w.Code != http.StatusOK {
			t.Fatalf("/api/meのステータスコード = %d", w.Code)
		}
		body := decodeJSON(t, w)
		providers, _ := body["providers"].([]any)
		if len(providers) != 1 || providers[0] != "google" {
			t.Errorf("providers = %v", body["providers"])
		}
	})

	t.Run("stateが一致しない場合はエラーページへリダイレクトされること", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t, newFakeGoogle(t))
		w := s.do(http.MethodGet, "/api/auth/callback/google?code=good-code&state=forged", "",
			&http.Cookie{Name: oauthStateCookie, Value: "expected"})

		if w.Code != http.StatusFound {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusFound)
		}
		if got := w.Header().Get("Location"); got != "/signin?error=OAuthCallback" {
			t.Errorf("Location = %q", got)
		}
		if findCookie(w, auth.DefaultCookieName) != nil {
			t.Error("セッションCookieが設定された")
		}
	})

	t.Run("既存のメールアドレスと衝突する場合はOAuthAccountNotLinkedになること", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t, newFakeGoogle(t))
		if w := s.do(http.MethodPost, "/api/auth/signup", `{"email":"grace@example.com","password":"grace-password"}`); w.Code != http.StatusCreated {
			t.Fatalf("サインアップのステータスコード = %d", w.Code)
		}

		w := s.do(http.MethodGet, "/api/auth/callback/google?code=good-code&state=s1", "",
			&http.Cookie{Name: oauthStateCookie, Value: "s1"})
		if got := w.Header().Get("Location"); got != "/signin?error=OAuthAccountNotLinked" {
			t.Errorf("Location = %q", got)
		}
	})

	t.Run("未設定のプロバイダーは404になること", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t)
		if w := s.do(http.MethodGet, "/api/auth/signin/github", ""); w.Code != http.StatusNotFound {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusNotFound)
		}
	})

	t.Run("プロバイダー一覧に登録済みのプロバイダーが含まれること", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t, newFakeGoogle(t))
		body := decodeJSON(t, s.do(http.MethodGet, "/api/auth/providers", ""))

		google, _ := body["google"].(map[string]any)
		if google["type"] != "oauth" || google["signinUrl"] != "http://localhost:8080/api/auth/signin/google" {
			t.Errorf("google = %v", google)
		}
		credentials, _ := body["credentials"].(map[string]any)
		if credentials["type"] != "credentials" {
			t.Errorf("credentials = %v", credentials)
		}
	})
}

// TestOperationalEndpoints はヘルスチェックとメトリクスを検証する。
func TestOperationalEndpoints(t *testing.T) {
	t.Parallel()

	t.Run("ヘルスチェックが200を返しRedis停止時は503を返すこと", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t)
		w := s.do(http.MethodGet, "/api/health", "")
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		body := decodeJSON(t, w)
		if body["service"] != "authgate" || body["schema_version"] != float64(1) {
			t.Errorf("body = %v", body)
		}

		s.redis.Close()
		if w := s.do(http.MethodGet, "/api/health", ""); w.Code != http.StatusServiceUnavailable {
			t.Errorf("Redis停止後のステータスコード = %d, want %d", w.Code, http.StatusServiceUnavailable)
		}
	})

	t.Run("メトリクスにゲートの判定結果が出力されること", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t)
		s.do(http.MethodGet, "/dashboard", "")

		w := s.do(http.MethodGet, "/api/metrics", "")
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		if !strings.Contains(w.Body.String(), `authgate_gate_decisions_total{outcome="redirect_signin"} 1`) {
			t.Errorf("メトリクスに判定結果が含まれていない:\n%s", w.Body.String())
		}
	})

	t.Run("静的ファイルのパスはゲートを通らず404になること", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t)
		w := s.do(http.MethodGet, "/static/app.js", "")
		if w.Code != http.StatusNotFound {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusNotFound)
		}
	})
}
