// Package classify maps login responses onto attempt outcomes.
package classify

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Outcome is the classification of one login attempt.
type Outcome int

const (
	// OutcomeFailure means the attempt did not authenticate.
	OutcomeFailure Outcome = iota
	// OutcomeSuccess means a session cookie was issued.
	OutcomeSuccess
	// OutcomeRateLimited means the surface asked the client to slow down.
	OutcomeRateLimited
	// OutcomeCheckpoint means the surface demands interactive verification.
	OutcomeCheckpoint
)

const (
	outcomeNameFailure     = "failure"
	outcomeNameSuccess     = "success"
	outcomeNameRateLimited = "rate_limited"
	outcomeNameCheckpoint  = "checkpoint"
	retryAfterHeaderName   = "Retry-After"
	rateLimitResetHeader   = "X-Rate-Limit-Reset"
)

// DefaultRateLimitPhrases lists response fragments that signal throttling.
var DefaultRateLimitPhrases = []string{
	"you're temporarily blocked",
	"please try again later",
	"rate limited",
	"too many attempts",
	"too many requests",
	"too fast",
	"wait a few minutes",
	"try again later",
}

// DefaultCheckpointPhrases lists response fragments that require a human to verify the login.
var DefaultCheckpointPhrases = []string{
	"suspicious activity",
	"security check",
	"checkpoint",
	"verify your identity",
	"two-factor",
	"enter the code",
}

func (outcome Outcome) String() string {
	switch outcome {
	case OutcomeSuccess:
		return outcomeNameSuccess
	case OutcomeRateLimited:
		return outcomeNameRateLimited
	case OutcomeCheckpoint:
		return outcomeNameCheckpoint
	default:
		return outcomeNameFailure
	}
}

// Config customizes a Classifier.
type Config struct {
	SessionCookieNames []string
	RateLimitPhrases   []string
	CheckpointPhrases  []string
}

// Response is the observable part of a login response.
type Response struct {
	StatusCode  int
	Header      http.Header
	Body        string
	CookieNames []string
}

// Verdict is the classification of a Response.
type Verdict struct {
	Outcome    Outcome
	RetryAfter time.Duration
	Matched    string
}

// Classifier decides whether a login response authenticated, throttled, or challenged the client.
type Classifier struct {
	sessionCookieNames map[string]struct{}
	rateLimitPhrases   []string
	checkpointPhrases  []string
}

// New constructs a Classifier, falling back to the default phrase lists when none are configured.
func New(configuration Config) *Classifier {
	cookieNames := make(map[string]struct{}, len(configuration.SessionCookieNames))
	for _, cookieName := range configuration.SessionCookieNames {
		trimmed := strings.TrimSpace(cookieName)
		if trimmed == "" {
			continue
		}
		cookieNames[trimmed] = struct{}{}
	}
	rateLimitPhrases := configuration.RateLimitPhrases
	if len(rateLimitPhrases) == 0 {
		rateLimitPhrases = DefaultRateLimitPhrases
	}
	checkpointPhrases := configuration.CheckpointPhrases
	if len(checkpointPhrases) == 0 {
		checkpointPhrases = DefaultCheckpointPhrases
	}
	return &Classifier{
		sessionCookieNames: cookieNames,
		rateLimitPhrases:   lowerAll(rateLimitPhrases),
		checkpointPhrases:  lowerAll(checkpointPhrases),
	}
}

// Classify inspects a response. A session cookie wins over any body text;
// a checkpoint wins over throttling.
func (classifier *Classifier) Classify(response Response) Verdict {
	if classifier.HasSessionCookie(response.CookieNames) {
		return Verdict{Outcome: OutcomeSuccess}
	}
	lowerBody := strings.ToLower(response.Body)
	if phrase, found := firstContained(lowerBody, classifier.checkpointPhrases); found {
		return Verdict{Outcome: OutcomeCheckpoint, Matched: phrase}
	}
	if response.StatusCode == http.StatusTooManyRequests {
		return Verdict{Outcome: OutcomeRateLimited, RetryAfter: RetryAfter(response.Header, time.Now()), Matched: strconv.Itoa(response.StatusCode)}
	}
	if phrase, found := firstContained(lowerBody, classifier.rateLimitPhrases); found {
		return Verdict{Outcome: OutcomeRateLimited, RetryAfter: RetryAfter(response.Header, time.Now()), Matched: phrase}
	}
	return Verdict{Outcome: OutcomeFailure}
}

// HasSessionCookie reports whether any of the supplied names is a configured session cookie.
func (classifier *Classifier) HasSessionCookie(cookieNames []string) bool {
	for _, cookieName := range cookieNames {
		if _, exists := classifier.sessionCookieNames[cookieName]; exists {
			return true
		}
	}
	return false
}

// RetryAfter reads Retry-After (seconds or HTTP date) or X-Rate-Limit-Reset (epoch seconds).
// It returns zero when neither header yields a positive wait.
func RetryAfter(header http.Header, now time.Time) time.Duration {
	if header == nil {
		return 0
	}
	if retryAfter := strings.TrimSpace(header.Get(retryAfterHeaderName)); retryAfter != "" {
		if seconds, parseErr := strconv.Atoi(retryAfter); parseErr == nil {
			if seconds <= 0 {
				return 0
			}
			return time.Duration(seconds) * time.Second
		}
		if retryAt, parseErr := http.ParseTime(retryAfter); parseErr == nil {
			return positiveDuration(retryAt.Sub(now))
		}
	}
	if reset := strings.TrimSpace(header.Get(rateLimitResetHeader)); reset != "" {
		if unixSeconds, parseErr := strconv.ParseInt(reset, 10, 64); parseErr == nil {
			return positiveDuration(time.Unix(unixSeconds, 0).Sub(now))
		}
	}
	return 0
}

func positiveDuration(duration time.Duration) time.Duration {
	if duration < 0 {
		return 0
	}
	return duration
}

func firstContained(lowerBody string, phrases []string) (string, bool) {
	if lowerBody == "" {
		return "", false
	}
	for _, phrase := range phrases {
		if phrase != "" && strings.Contains(lowerBody, phrase) {
			return phrase, true
		}
	}
	return "", false
}

func lowerAll(values []string) []string {
	lowered := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.ToLower(strings.TrimSpace(value))
		if trimmed == "" {
			continue
		}
		lowered = append(lowered, trimmed)
	}
	return lowered
}
