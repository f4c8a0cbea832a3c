package middleware

import "strings"

// Matcher はパスの接頭辞によってリクエストを照合する。
// "/" で終わる接頭辞はディレクトリ配下を、それ以外は完全一致または配下を表す。
type Matcher struct {
	prefixes []string
}

// NewMatcher は接頭辞の一覧からMatcherを生成する。空文字列は無視する。
func NewMatcher(prefixes ...string) Matcher {
	m := Matcher{prefixes: make([]string, 0, len(prefixes))}
	for _, p := range prefixes {
		if p != "" {
			m.prefixes = append(m.prefixes, p)
		}
	}
	return m
}

// DefaultAssetMatcher はルートゲートの対象外とするフレームワーク内部の静的ファイルと
// faviconに一致するMatcherを返す。
func DefaultAssetMatcher() Matcher {
	return NewMatcher("/static/", "/_image/", "/favicon.ico")
}

// Match はパスがいずれかの接頭辞に一致するかを返す。
func (m Matcher) Match(path string) bool {
	for _, p := range m.prefixes {
		if strings.HasSuffix(p, "/") {
			if strings.HasPrefix(path, p) {
				return true
			}
			continue
		}
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}
