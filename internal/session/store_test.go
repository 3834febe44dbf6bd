package session_test

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/loginrelay/loginrelay/internal/session"
)

const (
	storeTestOwner      = "owner@example.test"
	storeTestUserAgent  = "loginrelay-test/1.0"
	storeTestStrategy   = "form"
	storeTestDomain     = ".example.test"
	storeTestCookieName = "session_user"
)

type steppingClock struct {
	current time.Time
}

func (clock *steppingClock) Now() time.Time {
	clock.current = clock.current.Add(time.Minute)
	return clock.current
}

func newTestStore(t *testing.T) (*session.FileStore, string) {
	t.Helper()
	directory := t.TempDir()
	clock := &steppingClock{current: time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)}
	counter := 0
	store, err := session.NewFileStore(session.FileStoreConfig{
		Directory: directory,
		Clock:     clock.Now,
		IDSource: func() string {
			counter++
			return fmt.Sprintf("session%02d", counter)
		},
	})
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	return store, directory
}

func testCookies() []session.Cookie {
	return []session.Cookie{
		{Name: storeTestCookieName, Value: "42", Domain: storeTestDomain, Path: "/"},
		{Name: "token", Value: "abc", Domain: storeTestDomain, Path: "/"},
	}
}

func TestFileStoreCreateAndGet(t *testing.T) {
	store, directory := newTestStore(t)

	created, err := store.Create(storeTestOwner, testCookies(), storeTestUserAgent, storeTestStrategy)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(directory, created.SessionID+".json")); statErr != nil {
		t.Fatalf("expected record file: %v", statErr)
	}

	loaded, err := store.Get(created.SessionID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if loaded.Owner != storeTestOwner || loaded.UserAgent != storeTestUserAgent || loaded.Strategy != storeTestStrategy {
		t.Fatalf("unexpected record: %+v", loaded)
	}
	if len(loaded.Cookies) != 2 || loaded.Cookies[0].Name != storeTestCookieName {
		t.Fatalf("unexpected cookies: %+v", loaded.Cookies)
	}
	if !loaded.CreatedAt.Equal(loaded.LastUsed) {
		t.Fatalf("expected fresh record timestamps to match")
	}
}

func TestFileStoreTouchAdvancesLastUsedOnly(t *testing.T) {
	store, _ := newTestStore(t)
	created, err := store.Create(storeTestOwner, testCookies(), storeTestUserAgent, storeTestStrategy)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	touched, err := store.Touch(created.SessionID)
	if err != nil {
		t.Fatalf("touch: %v", err)
	}
	if !touched.CreatedAt.Equal(created.CreatedAt) {
		t.Fatalf("created_at changed: %v -> %v", created.CreatedAt, touched.CreatedAt)
	}
	if !touched.LastUsed.After(created.LastUsed) {
		t.Fatalf("expected last_used to advance")
	}

	reloaded, err := store.Get(created.SessionID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !reloaded.LastUsed.Equal(touched.LastUsed) {
		t.Fatalf("touch was not persisted")
	}
}

func TestFileStoreListNewestFirst(t *testing.T) {
	store, directory := newTestStore(t)
	first, _ := store.Create(storeTestOwner, testCookies(), storeTestUserAgent, storeTestStrategy)
	second, _ := store.Create("second@example.test", nil, storeTestUserAgent, storeTestStrategy)
	if err := os.WriteFile(filepath.Join(directory, "broken.json"), []byte("{"), 0o600); err != nil {
		t.Fatalf("write broken record: %v", err)
	}

	summaries, err := store.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(summaries))
	}
	if summaries[0].SessionID != second.SessionID || summaries[1].SessionID != first.SessionID {
		t.Fatalf("unexpected order: %+v", summaries)
	}
}

func TestFileStoreDelete(t *testing.T) {
	store, _ := newTestStore(t)
	created, _ := store.Create(storeTestOwner, testCookies(), storeTestUserAgent, storeTestStrategy)

	if err := store.Delete(created.SessionID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(created.SessionID); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := store.Delete(created.SessionID); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestFileStoreRejectsPathLikeIDs(t *testing.T) {
	store, _ := newTestStore(t)
	for _, sessionID := range []string{"", "../escape", "a/b", "x.json"} {
		if _, err := store.Get(sessionID); !errors.Is(err, session.ErrInvalidID) {
			t.Fatalf("expected ErrInvalidID for %q, got %v", sessionID, err)
		}
	}
}

func TestExportFormats(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	exported := session.ExportCookies(testCookies(), now)
	if len(exported) != 2 {
		t.Fatalf("expected 2 exported cookies, got %d", len(exported))
	}
	if exported[0].Key != storeTestCookieName || exported[0].Domain != "example.test" || exported[0].HostOnly {
		t.Fatalf("unexpected export entry: %+v", exported[0])
	}
	if !exported[0].Creation.Equal(now) || !exported[0].LastAccessed.Equal(now) {
		t.Fatalf("unexpected export timestamps: %+v", exported[0])
	}

	if header := session.CookieHeader(testCookies()); header != "session_user=42; token=abc" {
		t.Fatalf("unexpected cookie header: %q", header)
	}
}

func TestFromHTTPCookiesDefaults(t *testing.T) {
	t.Parallel()

	cookies := session.FromHTTPCookies([]*http.Cookie{{Name: "a", Value: "1"}, nil}, "example.test")
	if len(cookies) != 1 {
		t.Fatalf("expected nil cookies to be skipped, got %d", len(cookies))
	}
	if cookies[0].Domain != "example.test" || cookies[0].Path != "/" {
		t.Fatalf("unexpected defaults: %+v", cookies[0])
	}
}
