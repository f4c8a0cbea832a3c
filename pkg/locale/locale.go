package locale

import (
	"net/http"
	"strings"
	"time"
)

// Locale は言語と地域を表すタグ（例: "en-US"）。
type Locale string

const (
	// EnUS は英語（米国）。
	EnUS Locale = "en-US"
	// FrFR はフランス語（フランス）。
	FrFR Locale = "fr-FR"
	// DeDE はドイツ語（ドイツ）。
	DeDE Locale = "de-DE"
	// EsES はスペイン語（スペイン）。
	EsES Locale = "es-ES"
	// JaJP は日本語（日本）。
	JaJP Locale = "ja-JP"
)

// Default はどの判定にも一致しなかった場合に使用するロケール。
const Default = EnUS

// CookieName はロケールを保存するCookieの名前。
const CookieName = "NEXT_LOCALE"

// CookieMaxAge はロケールCookieの有効期間（30日）。
const CookieMaxAge = 30 * 24 * time.Hour

// supported はサポート対象のロケール。Accept-Languageの照合はこの順序で行う。
var supported = []Locale{EnUS, FrFR, DeDE, EsES, JaJP}

// Supported はサポート対象のロケール一覧のコピーを返す。
func Supported() []Locale {
	out := make([]Locale, len(supported))
	copy(out, supported)
	return out
}

// IsSupported は文字列がサポート対象のロケールと完全一致するかを返す。
func IsSupported(tag string) bool {
	for _, l := range supported {
		if string(l) == tag {
			return true
		}
	}
	return false
}

// String はロケールタグを文字列として返す。
func (l Locale) String() string {
	return string(l)
}

// Resolve はパス、Cookie、Accept-Languageヘッダーからロケールを決定する。
// acceptLanguageが空文字列の場合はヘッダーが無いものとして扱う。
// 戻り値は常にサポート対象のロケールのいずれかとなる。
func Resolve(path string, cookies map[string]string, acceptLanguage string) Locale {
	if l, ok := fromPath(path); ok {
		return l
	}
	if v, ok := cookies[CookieName]; ok && IsSupported(v) {
		return Locale(v)
	}
	if l, ok := fromAcceptLanguage(acceptLanguage); ok {
		return l
	}
	return Default
}

// FromRequest はHTTPリクエストからロケールを決定する。
func FromRequest(r *http.Request) Locale {
	cookies := make(map[string]string)
	for _, c := range r.Cookies() {
		// 同名Cookieが複数ある場合は先頭を優先する
		if _, ok := cookies[c.Name]; !ok {
			cookies[c.Name] = c.Value
		}
	}
	return Resolve(r.URL.Path, cookies, r.Header.Get("Accept-Language"))
}

// fromPath は "/<lang>" または "/<lang>/..." 形式のパスからロケールを取り出す。
func fromPath(path string) (Locale, bool) {
	for _, l := range supported {
		prefix := "/" + string(l)
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return l, true
		}
	}
	return "", false
}

// fromAcceptLanguage はAccept-Languageヘッダーをヘッダー内の記述順に照合する。
// q値による並べ替えは行わない。空の候補はすべてのタグの前方一致となるため先頭のロケールに一致する。
func fromAcceptLanguage(header string) (Locale, bool) {
	if header == "" {
		return "", false
	}
	for _, entry := range strings.Split(header, ",") {
		candidate, _, _ := strings.Cut(entry, ";")
		candidate = strings.TrimSpace(candidate)
		for _, l := range supported {
			tag := string(l)
			if strings.HasPrefix(tag, candidate) || strings.HasPrefix(candidate, tag) {
				return l, true
			}
		}
	}
	return "", false
}
