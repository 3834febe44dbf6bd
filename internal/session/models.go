package session

import (
	"net/http"
	"strings"
	"time"
)

const (
	cookieHeaderSeparator = "; "
	cookiePairSeparator   = "="
)

// Cookie is one name/value/domain/path entry issued to an authenticated session.
type Cookie struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain"`
	Path   string `json:"path"`
}

// Record is the persisted form of one authenticated session.
type Record struct {
	SessionID string    `json:"session_id"`
	Owner     string    `json:"email"`
	Cookies   []Cookie  `json:"cookies"`
	UserAgent string    `json:"user_agent"`
	Strategy  string    `json:"strategy,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	LastUsed  time.Time `json:"last_used"`
}

// Summary is the listing view of a Record.
type Summary struct {
	SessionID string    `json:"session_id"`
	Owner     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	LastUsed  time.Time `json:"last_used"`
}

// ExportedCookie is the browser-extension style cookie export entry.
type ExportedCookie struct {
	Key          string    `json:"key"`
	Value        string    `json:"value"`
	Domain       string    `json:"domain"`
	Path         string    `json:"path"`
	HostOnly     bool      `json:"hostOnly"`
	Creation     time.Time `json:"creation"`
	LastAccessed time.Time `json:"lastAccessed"`
}

// Summary returns the listing view of the record.
func (record Record) Summary() Summary {
	return Summary{
		SessionID: record.SessionID,
		Owner:     record.Owner,
		CreatedAt: record.CreatedAt,
		LastUsed:  record.LastUsed,
	}
}

// FromHTTPCookies converts jar cookies, defaulting empty domains and paths.
func FromHTTPCookies(httpCookies []*http.Cookie, defaultDomain string) []Cookie {
	cookies := make([]Cookie, 0, len(httpCookies))
	for _, httpCookie := range httpCookies {
		if httpCookie == nil {
			continue
		}
		domain := httpCookie.Domain
		if domain == "" {
			domain = defaultDomain
		}
		path := httpCookie.Path
		if path == "" {
			path = "/"
		}
		cookies = append(cookies, Cookie{Name: httpCookie.Name, Value: httpCookie.Value, Domain: domain, Path: path})
	}
	return cookies
}

// ExportCookies formats cookies in the export JSON layout, stamping both timestamps with now.
func ExportCookies(cookies []Cookie, now time.Time) []ExportedCookie {
	stamp := now.UTC()
	exported := make([]ExportedCookie, 0, len(cookies))
	for _, cookie := range cookies {
		exported = append(exported, ExportedCookie{
			Key:          cookie.Name,
			Value:        cookie.Value,
			Domain:       strings.TrimPrefix(cookie.Domain, "."),
			Path:         cookie.Path,
			HostOnly:     false,
			Creation:     stamp,
			LastAccessed: stamp,
		})
	}
	return exported
}

// CookieHeader joins cookies as a Cookie request header value.
func CookieHeader(cookies []Cookie) string {
	pairs := make([]string, 0, len(cookies))
	for _, cookie := range cookies {
		pairs = append(pairs, cookie.Name+cookiePairSeparator+cookie.Value)
	}
	return strings.Join(pairs, cookieHeaderSeparator)
}
