package config_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/loginrelay/loginrelay/internal/config"
	"github.com/loginrelay/loginrelay/internal/strategy"
)

func TestNewLoginServiceDefaultOrder(t *testing.T) {
	service, err := config.NewLoginService(config.Settings{BaseURL: "http://127.0.0.1:1"}, nil)
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	names := service.StrategyNames()
	if len(names) != 2 || names[0] != strategy.FormStrategyName || names[1] != strategy.APIStrategyName {
		t.Fatalf("unexpected default order: %v", names)
	}
}

func TestNewLoginServiceRejectsUnknownStrategy(t *testing.T) {
	if _, err := config.NewLoginService(config.Settings{BaseURL: "http://127.0.0.1:1", StrategyOrder: []string{"form", "browser"}}, nil); !errors.Is(err, config.ErrUnknownStrategy) {
		t.Fatalf("expected ErrUnknownStrategy, got %v", err)
	}
}

func TestNewLoginServiceFallsBackToAPI(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(writer http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(writer, "<html><body>maintenance</body></html>")
	})
	mux.HandleFunc("/api/v1/auth/login", func(writer http.ResponseWriter, _ *http.Request) {
		http.SetCookie(writer, &http.Cookie{Name: "sid", Value: "ok", Path: "/"})
		fmt.Fprint(writer, `{}`)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	service, err := config.NewLoginService(config.Settings{
		BaseURL:   server.URL,
		BaseDelay: time.Millisecond,
		Jitter:    -1,
	}, nil)
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	report, err := service.Login(context.Background(), strategy.Credentials{Email: "owner@example.test", Password: "secret"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if report.Result.Strategy != strategy.APIStrategyName {
		t.Fatalf("expected api fallback to win, got %s", report.Result.Strategy)
	}
	if len(report.Attempts) != 2 {
		t.Fatalf("expected both strategies to be attempted, got %d", len(report.Attempts))
	}
}
