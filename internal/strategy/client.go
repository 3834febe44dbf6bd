package strategy

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/loginrelay/loginrelay/internal/classify"
	"github.com/loginrelay/loginrelay/internal/session"
)

const (
	// DefaultUserAgent identifies this client on every request.
	DefaultUserAgent             = "LoginRelay/1.0"
	userAgentHeaderName          = "User-Agent"
	acceptHeaderName             = "Accept"
	contentTypeHeaderName        = "Content-Type"
	formContentType              = "application/x-www-form-urlencoded"
	jsonContentType              = "application/json"
	maxResponseBodyBytes         = 512 * 1024
	defaultDialTimeout           = 5 * time.Second
	defaultTLSHandshakeTimeout   = 5 * time.Second
	defaultResponseHeaderTimeout = 10 * time.Second
	defaultHTTPTimeout           = 20 * time.Second
	errMessageParseBaseURL       = "parse base url"
	errMessageCreateJar          = "create cookie jar"
	errMessageBuildRequest       = "build request"
	errMessageSendRequest        = "send request"
	errMessageReadBody           = "read response body"
)

// SurfaceConfig holds the settings every strategy shares.
type SurfaceConfig struct {
	BaseURL    string
	UserAgent  string
	Transport  http.RoundTripper
	Classifier *classify.Classifier
}

type surface struct {
	baseURL    *url.URL
	userAgent  string
	transport  http.RoundTripper
	classifier *classify.Classifier
}

// attemptClient is one fresh cookie-jar session for a single attempt.
type attemptClient struct {
	surface *surface
	client  *http.Client
	jar     http.CookieJar
}

type pageResponse struct {
	statusCode int
	header     http.Header
	body       string
	finalURL   *url.URL
}

func newSurface(configuration SurfaceConfig) (*surface, error) {
	parsedBaseURL, err := url.Parse(strings.TrimRight(strings.TrimSpace(configuration.BaseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errMessageParseBaseURL, err)
	}
	if parsedBaseURL.Scheme == "" || parsedBaseURL.Host == "" {
		return nil, fmt.Errorf("%s: %q", errMessageParseBaseURL, configuration.BaseURL)
	}
	userAgent := strings.TrimSpace(configuration.UserAgent)
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	transport := configuration.Transport
	if transport == nil {
		transport = defaultTransport()
	}
	classifier := configuration.Classifier
	if classifier == nil {
		classifier = classify.New(classify.Config{})
	}
	return &surface{baseURL: parsedBaseURL, userAgent: userAgent, transport: transport, classifier: classifier}, nil
}

func (surface *surface) resolve(path string) (*url.URL, error) {
	reference, err := url.Parse(path)
	if err != nil {
		return nil, err
	}
	return surface.baseURL.ResolveReference(reference), nil
}

func (surface *surface) newAttemptClient() (*attemptClient, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errMessageCreateJar, err)
	}
	return &attemptClient{
		surface: surface,
		client:  &http.Client{Timeout: defaultHTTPTimeout, Transport: surface.transport, Jar: jar},
		jar:     jar,
	}, nil
}

func (attempt *attemptClient) get(ctx context.Context, target *url.URL) (pageResponse, error) {
	return attempt.do(ctx, http.MethodGet, target, nil, "")
}

func (attempt *attemptClient) post(ctx context.Context, target *url.URL, body io.Reader, contentType string) (pageResponse, error) {
	return attempt.do(ctx, http.MethodPost, target, body, contentType)
}

func (attempt *attemptClient) do(ctx context.Context, method string, target *url.URL, body io.Reader, contentType string) (pageResponse, error) {
	httpRequest, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return pageResponse{}, fmt.Errorf("%s: %w", errMessageBuildRequest, err)
	}
	httpRequest.Header.Set(userAgentHeaderName, attempt.surface.userAgent)
	httpRequest.Header.Set(acceptHeaderName, "text/html,application/json;q=0.9,*/*;q=0.8")
	if contentType != "" {
		httpRequest.Header.Set(contentTypeHeaderName, contentType)
	}

	httpResponse, err := attempt.client.Do(httpRequest)
	if err != nil {
		return pageResponse{}, fmt.Errorf("%s: %w", errMessageSendRequest, err)
	}
	defer httpResponse.Body.Close()

	bodyBytes, err := io.ReadAll(io.LimitReader(httpResponse.Body, maxResponseBodyBytes))
	if err != nil {
		return pageResponse{}, fmt.Errorf("%s: %w", errMessageReadBody, err)
	}
	return pageResponse{
		statusCode: httpResponse.StatusCode,
		header:     httpResponse.Header,
		body:       string(bodyBytes),
		finalURL:   httpResponse.Request.URL,
	}, nil
}

func (attempt *attemptClient) cookies() []session.Cookie {
	return session.FromHTTPCookies(attempt.jar.Cookies(attempt.surface.baseURL), attempt.surface.baseURL.Hostname())
}

func (attempt *attemptClient) classify(response pageResponse) classify.Verdict {
	cookieNames := make([]string, 0)
	for _, cookie := range attempt.jar.Cookies(attempt.surface.baseURL) {
		cookieNames = append(cookieNames, cookie.Name)
	}
	return attempt.surface.classifier.Classify(classify.Response{
		StatusCode:  response.statusCode,
		Header:      response.header,
		Body:        response.body,
		CookieNames: cookieNames,
	})
}

func (attempt *attemptClient) result(strategyName string, verdict classify.Verdict) Result {
	result := Result{
		Strategy:   strategyName,
		Outcome:    verdict.Outcome,
		UserAgent:  attempt.surface.userAgent,
		RetryAfter: verdict.RetryAfter,
		Detail:     verdict.Matched,
	}
	if verdict.Outcome == classify.OutcomeSuccess {
		result.Cookies = attempt.cookies()
	}
	return result
}

func defaultTransport() http.RoundTripper {
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   defaultTLSHandshakeTimeout,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          100,
		MaxConnsPerHost:       16,
		ResponseHeaderTimeout: defaultResponseHeaderTimeout,
	}
}
