package config

import (
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	FlagBaseURL            = "base-url"
	FlagUserAgent          = "user-agent"
	FlagStrategies         = "strategies"
	FlagSessionCookies     = "session-cookies"
	FlagRateLimitPhrases   = "rate-limit-phrases"
	FlagCheckpointPhrases  = "checkpoint-phrases"
	FlagFormLoginPath      = "form-login-path"
	FlagEmailField         = "email-field"
	FlagPasswordField      = "password-field"
	FlagAPILoginPath       = "api-login-path"
	FlagTokenCookie        = "token-cookie"
	FlagBaseDelay          = "delay"
	FlagJitter             = "jitter"
	FlagRateLimitDelay     = "rate-limit-delay"
	FlagMaxWait            = "max-wait"
	defaultUserAgentValue  = "LoginRelay/1.0"
	defaultBaseDelayValue  = 2 * time.Second
	defaultJitterValue     = time.Second
	defaultRateLimitValue  = 10 * time.Second
	defaultMaxWaitValue    = 2 * time.Minute
	defaultFormLoginPath   = "/login"
	defaultEmailFieldName  = "email"
	defaultPasswordField   = "pass"
	defaultAPILoginPath    = "/api/v1/auth/login"
	defaultTokenCookieName = "access_token"
)

// RegisterFlags declares the login settings on a flag set.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.String(FlagBaseURL, "", "Base URL of the login surface you operate")
	flags.String(FlagUserAgent, defaultUserAgentValue, "User-Agent sent on every request")
	flags.StringSlice(FlagStrategies, DefaultStrategyOrder, "Strategies to try, in order (form, api)")
	flags.StringSlice(FlagSessionCookies, DefaultSessionCookieNames, "Cookie names that prove a successful login")
	flags.StringSlice(FlagRateLimitPhrases, nil, "Response phrases that signal throttling (defaults built in)")
	flags.StringSlice(FlagCheckpointPhrases, nil, "Response phrases that signal interactive verification (defaults built in)")
	flags.String(FlagFormLoginPath, defaultFormLoginPath, "Path of the HTML login page")
	flags.String(FlagEmailField, defaultEmailFieldName, "Form field name for the email")
	flags.String(FlagPasswordField, defaultPasswordField, "Form field name for the password")
	flags.String(FlagAPILoginPath, defaultAPILoginPath, "Path of the JSON login endpoint")
	flags.String(FlagTokenCookie, defaultTokenCookieName, "Cookie name used to store a token returned by the JSON endpoint")
	flags.Duration(FlagBaseDelay, defaultBaseDelayValue, "Delay between strategies")
	flags.Duration(FlagJitter, defaultJitterValue, "Random jitter applied to the delay")
	flags.Duration(FlagRateLimitDelay, defaultRateLimitValue, "Extra delay once the surface throttles")
	flags.Duration(FlagMaxWait, defaultMaxWaitValue, "Upper bound on any single wait")
}

// BindFlags binds every registered login flag to the viper instance.
func BindFlags(configuration *viper.Viper, flags *pflag.FlagSet) error {
	for _, flagName := range []string{
		FlagBaseURL, FlagUserAgent, FlagStrategies, FlagSessionCookies, FlagRateLimitPhrases,
		FlagCheckpointPhrases, FlagFormLoginPath, FlagEmailField, FlagPasswordField, FlagAPILoginPath,
		FlagTokenCookie, FlagBaseDelay, FlagJitter, FlagRateLimitDelay, FlagMaxWait,
	} {
		if err := configuration.BindPFlag(flagName, flags.Lookup(flagName)); err != nil {
			return err
		}
	}
	return nil
}

// ConfigureEnvironment maps FLAG-NAME onto PREFIX_FLAG_NAME environment variables.
func ConfigureEnvironment(configuration *viper.Viper, envPrefix string) {
	configuration.SetEnvPrefix(envPrefix)
	configuration.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	configuration.AutomaticEnv()
}

// FromViper reads Settings from a viper instance.
func FromViper(configuration *viper.Viper) Settings {
	return Settings{
		BaseURL:            configuration.GetString(FlagBaseURL),
		UserAgent:          configuration.GetString(FlagUserAgent),
		StrategyOrder:      configuration.GetStringSlice(FlagStrategies),
		SessionCookieNames: configuration.GetStringSlice(FlagSessionCookies),
		RateLimitPhrases:   configuration.GetStringSlice(FlagRateLimitPhrases),
		CheckpointPhrases:  configuration.GetStringSlice(FlagCheckpointPhrases),
		FormLoginPath:      configuration.GetString(FlagFormLoginPath),
		EmailFieldName:     configuration.GetString(FlagEmailField),
		PasswordFieldName:  configuration.GetString(FlagPasswordField),
		APILoginPath:       configuration.GetString(FlagAPILoginPath),
		TokenCookieName:    configuration.GetString(FlagTokenCookie),
		BaseDelay:          configuration.GetDuration(FlagBaseDelay),
		Jitter:             configuration.GetDuration(FlagJitter),
		RateLimitDelay:     configuration.GetDuration(FlagRateLimitDelay),
		MaxWait:            configuration.GetDuration(FlagMaxWait),
	}
}
