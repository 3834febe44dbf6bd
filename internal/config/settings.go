// Package config turns flag and environment settings into a configured login service.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/loginrelay/loginrelay/internal/classify"
	"github.com/loginrelay/loginrelay/internal/orchestrator"
	"github.com/loginrelay/loginrelay/internal/strategy"
)

const (
	errMessageUnknownStrategy = "unknown strategy"
	errMessageBuildStrategy   = "build strategy"
	errMessageBuildService    = "build login service"
)

// ErrUnknownStrategy reports a strategy name with no implementation.
var ErrUnknownStrategy = errors.New(errMessageUnknownStrategy)

// DefaultStrategyOrder is the try order when none is configured.
var DefaultStrategyOrder = []string{strategy.FormStrategyName, strategy.APIStrategyName}

// DefaultSessionCookieNames are the cookie names treated as proof of login.
var DefaultSessionCookieNames = []string{"session", "session_id", "sid"}

// Settings are the user-facing knobs shared by the CLI and the server.
type Settings struct {
	BaseURL            string
	UserAgent          string
	StrategyOrder      []string
	SessionCookieNames []string
	RateLimitPhrases   []string
	CheckpointPhrases  []string
	FormLoginPath      string
	EmailFieldName     string
	PasswordFieldName  string
	APILoginPath       string
	TokenCookieName    string
	BaseDelay          time.Duration
	Jitter             time.Duration
	RateLimitDelay     time.Duration
	MaxWait            time.Duration
}

// NewLoginService builds the strategies in the configured order and wraps them in an orchestrator.
func NewLoginService(settings Settings, logger *zap.Logger) (*orchestrator.Service, error) {
	cookieNames := settings.SessionCookieNames
	if len(cookieNames) == 0 {
		cookieNames = DefaultSessionCookieNames
	}
	classifier := classify.New(classify.Config{
		SessionCookieNames: cookieNames,
		RateLimitPhrases:   settings.RateLimitPhrases,
		CheckpointPhrases:  settings.CheckpointPhrases,
	})
	surface := strategy.SurfaceConfig{
		BaseURL:    settings.BaseURL,
		UserAgent:  settings.UserAgent,
		Classifier: classifier,
	}

	order := settings.StrategyOrder
	if len(order) == 0 {
		order = DefaultStrategyOrder
	}
	strategies := make([]strategy.Strategy, 0, len(order))
	for _, strategyName := range order {
		built, err := buildStrategy(strings.ToLower(strings.TrimSpace(strategyName)), settings, surface)
		if err != nil {
			return nil, fmt.Errorf("%s %q: %w", errMessageBuildStrategy, strategyName, err)
		}
		strategies = append(strategies, built)
	}

	service, err := orchestrator.NewService(orchestrator.Config{
		Strategies: strategies,
		Pacing: orchestrator.PacingConfig{
			BaseDelay:      settings.BaseDelay,
			Jitter:         settings.Jitter,
			RateLimitDelay: settings.RateLimitDelay,
			MaxWait:        settings.MaxWait,
		},
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errMessageBuildService, err)
	}
	return service, nil
}

func buildStrategy(strategyName string, settings Settings, surface strategy.SurfaceConfig) (strategy.Strategy, error) {
	switch strategyName {
	case strategy.FormStrategyName:
		return strategy.NewFormStrategy(strategy.FormConfig{
			Surface:           surface,
			LoginPath:         settings.FormLoginPath,
			EmailFieldName:    settings.EmailFieldName,
			PasswordFieldName: settings.PasswordFieldName,
		})
	case strategy.APIStrategyName:
		return strategy.NewAPIStrategy(strategy.APIConfig{
			Surface:         surface,
			LoginPath:       settings.APILoginPath,
			TokenCookieName: settings.TokenCookieName,
		})
	default:
		return nil, ErrUnknownStrategy
	}
}
