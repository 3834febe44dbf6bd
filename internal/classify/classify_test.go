package classify_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/loginrelay/loginrelay/internal/classify"
)

const (
	classifyTestSessionCookie  = "session_user"
	classifyTestOtherCookie    = "locale"
	classifyTestRateLimitBody  = "<html><body>Too many attempts. Please wait a few minutes.</body></html>"
	classifyTestCheckpointBody = "<html><body>Security Check required</body></html>"
	classifyTestFailureBody    = "<html><body>The password you entered is incorrect.</body></html>"
)

func TestClassifierClassify(t *testing.T) {
	t.Parallel()

	classifier := classify.New(classify.Config{SessionCookieNames: []string{classifyTestSessionCookie}})

	testCases := []struct {
		name            string
		response        classify.Response
		expectedOutcome classify.Outcome
	}{
		{
			name:            "session cookie wins over body text",
			response:        classify.Response{StatusCode: http.StatusOK, Body: classifyTestRateLimitBody, CookieNames: []string{classifyTestOtherCookie, classifyTestSessionCookie}},
			expectedOutcome: classify.OutcomeSuccess,
		},
		{
			name:            "rate limit phrase",
			response:        classify.Response{StatusCode: http.StatusOK, Body: classifyTestRateLimitBody},
			expectedOutcome: classify.OutcomeRateLimited,
		},
		{
			name:            "status too many requests",
			response:        classify.Response{StatusCode: http.StatusTooManyRequests},
			expectedOutcome: classify.OutcomeRateLimited,
		},
		{
			name:            "checkpoint phrase",
			response:        classify.Response{StatusCode: http.StatusOK, Body: classifyTestCheckpointBody},
			expectedOutcome: classify.OutcomeCheckpoint,
		},
		{
			name:            "checkpoint wins over throttling status",
			response:        classify.Response{StatusCode: http.StatusTooManyRequests, Body: classifyTestCheckpointBody},
			expectedOutcome: classify.OutcomeCheckpoint,
		},
		{
			name:            "plain failure",
			response:        classify.Response{StatusCode: http.StatusOK, Body: classifyTestFailureBody, CookieNames: []string{classifyTestOtherCookie}},
			expectedOutcome: classify.OutcomeFailure,
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()
			verdict := classifier.Classify(testCase.response)
			if verdict.Outcome != testCase.expectedOutcome {
				t.Fatalf("expected outcome %s, got %s", testCase.expectedOutcome, verdict.Outcome)
			}
		})
	}
}

func TestClassifierCustomPhrasesReplaceDefaults(t *testing.T) {
	t.Parallel()

	classifier := classify.New(classify.Config{RateLimitPhrases: []string{"Slow Down"}})
	if verdict := classifier.Classify(classify.Response{Body: "please SLOW DOWN"}); verdict.Outcome != classify.OutcomeRateLimited {
		t.Fatalf("expected custom phrase to rate limit, got %s", verdict.Outcome)
	}
	if verdict := classifier.Classify(classify.Response{Body: classifyTestRateLimitBody}); verdict.Outcome != classify.OutcomeFailure {
		t.Fatalf("expected default phrases to be replaced, got %s", verdict.Outcome)
	}
}

func TestRetryAfter(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, time.January, 2, 3, 4, 5, 0, time.UTC)
	testCases := []struct {
		name     string
		header   http.Header
		expected time.Duration
	}{
		{name: "seconds", header: http.Header{"Retry-After": []string{"7"}}, expected: 7 * time.Second},
		{name: "http date", header: http.Header{"Retry-After": []string{now.Add(30 * time.Second).Format(http.TimeFormat)}}, expected: 30 * time.Second},
		{name: "reset epoch", header: http.Header{"X-Rate-Limit-Reset": []string{"1767323105"}}, expected: time.Unix(1767323105, 0).Sub(now)},
		{name: "past reset clamps to zero", header: http.Header{"X-Rate-Limit-Reset": []string{"1"}}, expected: 0},
		{name: "absent", header: http.Header{}, expected: 0},
		{name: "nil header", header: nil, expected: 0},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()
			if actual := classify.RetryAfter(testCase.header, now); actual != testCase.expected {
				t.Fatalf("expected %s, got %s", testCase.expected, actual)
			}
		})
	}
}
