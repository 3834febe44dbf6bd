package strategy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/loginrelay/loginrelay/internal/classify"
)

const (
	// FormStrategyName identifies the HTML form strategy.
	FormStrategyName          = "form"
	defaultFormLoginPath      = "/login"
	defaultEmailFieldName     = "email"
	defaultPasswordFieldName  = "pass"
	loginFormIDSelector       = "form#login_form"
	formSelector              = "form"
	inputSelector             = "input"
	passwordInputSelector     = "input[type=password]"
	actionAttributeName       = "action"
	nameAttributeName         = "name"
	valueAttributeName        = "value"
	typeAttributeName         = "type"
	loginActionFragment       = "login"
	submitInputType           = "submit"
	errMessageLoginFormAbsent = "login form not found"
	errMessageParseLoginPage  = "parse login page"
	errMessageFetchLoginPage  = "fetch login page"
	errMessageSubmitLogin     = "submit login form"
)

// ErrLoginFormNotFound indicates the login page carried no recognizable form.
var ErrLoginFormNotFound = errors.New(errMessageLoginFormAbsent)

// FormConfig configures a FormStrategy.
type FormConfig struct {
	Surface           SurfaceConfig
	Name              string
	LoginPath         string
	EmailFieldName    string
	PasswordFieldName string
}

// FormStrategy logs in by scraping the login form and posting it back.
type FormStrategy struct {
	surface           *surface
	name              string
	loginPath         string
	emailFieldName    string
	passwordFieldName string
}

var _ Strategy = (*FormStrategy)(nil)

// LoginForm is the scraped login form: where it posts and its prefilled fields.
type LoginForm struct {
	Action string
	Fields url.Values
}

// NewFormStrategy constructs a FormStrategy.
func NewFormStrategy(configuration FormConfig) (*FormStrategy, error) {
	surface, err := newSurface(configuration.Surface)
	if err != nil {
		return nil, err
	}
	return &FormStrategy{
		surface:           surface,
		name:              valueOrDefault(configuration.Name, FormStrategyName),
		loginPath:         valueOrDefault(configuration.LoginPath, defaultFormLoginPath),
		emailFieldName:    valueOrDefault(configuration.EmailFieldName, defaultEmailFieldName),
		passwordFieldName: valueOrDefault(configuration.PasswordFieldName, defaultPasswordFieldName),
	}, nil
}

// Name returns the strategy name.
func (strategy *FormStrategy) Name() string {
	return strategy.name
}

// Login fetches the login page, fills the form, and classifies the response.
func (strategy *FormStrategy) Login(ctx context.Context, credentials Credentials) (Result, error) {
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
		return failure, fmt.Errorf("%s: %w", errMessageFetchLoginPage, err)
	}
	page, err := attempt.get(ctx, loginURL)
	if err != nil {
		return failure, fmt.Errorf("%s: %w", errMessageFetchLoginPage, err)
	}
	if page.statusCode == http.StatusTooManyRequests {
		return attempt.result(strategy.name, attempt.classify(page)), nil
	}

	form, err := ExtractLoginForm(page.body)
	if err != nil {
		return failure, err
	}
	actionURL, err := page.finalURL.Parse(valueOrDefault(form.Action, page.finalURL.Path))
	if err != nil {
		return failure, fmt.Errorf("%s: %w", errMessageSubmitLogin, err)
	}
	form.Fields.Set(strategy.emailFieldName, credentials.Email)
	form.Fields.Set(strategy.passwordFieldName, credentials.Password)

	response, err := attempt.post(ctx, actionURL, strings.NewReader(form.Fields.Encode()), formContentType)
	if err != nil {
		return failure, fmt.Errorf("%s: %w", errMessageSubmitLogin, err)
	}
	return attempt.result(strategy.name, attempt.classify(response)), nil
}

// ExtractLoginForm finds the login form in an HTML page and collects its named inputs.
func ExtractLoginForm(htmlContent string) (LoginForm, error) {
	document, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return LoginForm{}, fmt.Errorf("%s: %w", errMessageParseLoginPage, err)
	}

	loginForm := document.Find(loginFormIDSelector).First()
	if loginForm.Length() == 0 {
		loginForm = document.Find(formSelector).FilterFunction(func(_ int, selection *goquery.Selection) bool {
			action, _ := selection.Attr(actionAttributeName)
			return strings.Contains(strings.ToLower(action), loginActionFragment)
		}).First()
	}
	if loginForm.Length() == 0 {
		loginForm = document.Find(formSelector).FilterFunction(func(_ int, selection *goquery.Selection) bool {
			return selection.Find(passwordInputSelector).Length() > 0
		}).First()
	}
	if loginForm.Length() == 0 {
		return LoginForm{}, ErrLoginFormNotFound
	}

	fields := url.Values{}
	loginForm.Find(inputSelector).Each(func(_ int, input *goquery.Selection) {
		name, hasName := input.Attr(nameAttributeName)
		if !hasName || strings.TrimSpace(name) == "" {
			return
		}
		if inputType, _ := input.Attr(typeAttributeName); strings.EqualFold(inputType, submitInputType) {
			return
		}
		value, _ := input.Attr(valueAttributeName)
		fields.Set(name, value)
	})

	action, _ := loginForm.Attr(actionAttributeName)
	return LoginForm{Action: strings.TrimSpace(action), Fields: fields}, nil
}

func valueOrDefault(value string, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}
