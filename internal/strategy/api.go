package strategy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/loginrelay/loginrelay/internal/classify"
	"github.com/loginrelay/loginrelay/internal/session"
)

const (
	// APIStrategyName identifies the JSON API strategy.
	APIStrategyName          = "api"
	defaultAPILoginPath      = "/api/v1/auth/login"
	defaultTokenCookieName   = "access_token"
	errMessageEncodeAPIBody  = "encode api login body"
	errMessageSubmitAPILogin = "submit api login"
)

// APIConfig configures an APIStrategy.
type APIConfig struct {
	Surface         SurfaceConfig
	Name            string
	LoginPath       string
	TokenCookieName string
}

// APIStrategy logs in through a JSON endpoint.
type APIStrategy struct {
	surface         *surface
	name            string
	loginPath       string
	tokenCookieName string
}

var _ Strategy = (*APIStrategy)(nil)

type apiLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type apiLoginResponse struct {
	AccessToken string `json:"access_token"`
	SessionKey  string `json:"session_key"`
	Error       *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewAPIStrategy constructs an APIStrategy.
func NewAPIStrategy(configuration APIConfig) (*APIStrategy, error) {
	surface, err := newSurface(configuration.Surface)
	if err != nil {
		return nil, err
	}
	return &APIStrategy{
		surface:         surface,
		name:            valueOrDefault(configuration.Name, APIStrategyName),
		loginPath:       valueOrDefault(configuration.LoginPath, defaultAPILoginPath),
		tokenCookieName: valueOrDefault(configuration.TokenCookieName, defaultTokenCookieName),
	}, nil
}

// Name returns the strategy name.
func (strategy *APIStrategy) Name() string {
	return strategy.name
}

// Login posts the credentials as JSON. A session cookie or a token in the body counts as success.
func (strategy *APIStrategy) Login(ctx context.Context, credentials Credentials) (Result, error) {
	failure := Result{Strategy: strategy.name, Outcome: classify.OutcomeFailure, UserAgent: strategy.surface.userAgent}
	if err := credentials.Validate(); err != nil {
		return failure, err
	}
	attempt, err := strategy.surface.newAttemptClient()
	if err != nil {
		return failure, err
	}
	loginURL, err := strategy.surface.resolve(strategy.loginPath)
	if err != nil {
		return failure, fmt.Errorf("%s: %w", errMessageSubmitAPILogin, err)
	}
	requestBody, err := json.Marshal(apiLoginRequest{Email: credentials.Email, Password: credentials.Password})
	if err != nil {
		return failure, fmt.Errorf("%s: %w", errMessageEncodeAPIBody, err)
	}

	response, err := attempt.post(ctx, loginURL, bytes.NewReader(requestBody), jsonContentType)
	if err != nil {
		return failure, fmt.Errorf("%s: %w", errMessageSubmitAPILogin, err)
	}

	verdict := attempt.classify(response)
	if verdict.Outcome != classify.OutcomeFailure {
		return attempt.result(strategy.name, verdict), nil
	}
	if response.statusCode < http.StatusOK || response.statusCode >= http.StatusMultipleChoices {
		return attempt.result(strategy.name, verdict), nil
	}

	var decoded apiLoginResponse
	if json.Unmarshal([]byte(response.body), &decoded) != nil {
		return attempt.result(strategy.name, verdict), nil
	}
	token := strings.TrimSpace(decoded.AccessToken)
	if token == "" {
		token = strings.TrimSpace(decoded.SessionKey)
	}
	if token == "" {
		if decoded.Error != nil {
			verdict.Matched = decoded.Error.Message
		}
		return attempt.result(strategy.name, verdict), nil
	}

	result := attempt.result(strategy.name, classify.Verdict{Outcome: classify.OutcomeSuccess})
	result.Cookies = append(result.Cookies, session.Cookie{
		Name:   strategy.tokenCookieName,
		Value:  token,
		Domain: strategy.surface.baseURL.Hostname(),
		Path:   "/",
	})
	return result, nil
}
