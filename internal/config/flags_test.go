package config_test

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/loginrelay/loginrelay/internal/config"
)

func TestFromViperReadsFlagsAndEnvironment(t *testing.T) {
	t.Setenv("LOGINRELAY_TEST_BASE_URL", "https://login.example.test")
	t.Setenv("LOGINRELAY_TEST_RATE_LIMIT_DELAY", "45s")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	config.RegisterFlags(flags)
	if err := flags.Parse([]string{"--strategies=api,form", "--delay=3s"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	configuration := viper.New()
	if err := config.BindFlags(configuration, flags); err != nil {
		t.Fatalf("bind flags: %v", err)
	}
	config.ConfigureEnvironment(configuration, "LOGINRELAY_TEST")

	settings := config.FromViper(configuration)
	if settings.BaseURL != "https://login.example.test" {
		t.Fatalf("unexpected base url: %s", settings.BaseURL)
	}
	if len(settings.StrategyOrder) != 2 || settings.StrategyOrder[0] != "api" {
		t.Fatalf("unexpected strategy order: %v", settings.StrategyOrder)
	}
	if settings.BaseDelay != 3*time.Second {
		t.Fatalf("unexpected delay: %s", settings.BaseDelay)
	}
	if settings.RateLimitDelay != 45*time.Second {
		t.Fatalf("unexpected rate limit delay: %s", settings.RateLimitDelay)
	}
	if settings.UserAgent != "LoginRelay/1.0" || settings.MaxWait != 2*time.Minute {
		t.Fatalf("expected defaults, got %+v", settings)
	}
}
