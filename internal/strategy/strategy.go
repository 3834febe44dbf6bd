package strategy

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/loginrelay/loginrelay/internal/classify"
	"github.com/loginrelay/loginrelay/internal/session"
)

const (
	errMessageEmptyEmail    = "email cannot be empty"
	errMessageEmptyPassword = "password cannot be empty"
)

var (
	// ErrEmptyEmail indicates the credentials carried no email.
	ErrEmptyEmail = errors.New(errMessageEmptyEmail)
	// ErrEmptyPassword indicates the credentials carried no password.
	ErrEmptyPassword = errors.New(errMessageEmptyPassword)
)

// Credentials identify the account a strategy authenticates.
type Credentials struct {
	Email    string
	Password string
}

// Validate reports whether the credentials can be submitted.
func (credentials Credentials) Validate() error {
	if strings.TrimSpace(credentials.Email) == "" {
		return ErrEmptyEmail
	}
	if credentials.Password == "" {
		return ErrEmptyPassword
	}
	return nil
}

// Result captures the outcome of a single strategy attempt.
type Result struct {
	Strategy   string
	Outcome    classify.Outcome
	Cookies    []session.Cookie
	UserAgent  string
	RetryAfter time.Duration
	Detail     string
}

// Strategy performs one login sequence against one client surface.
type Strategy interface {
	Name() string
	Login(ctx context.Context, credentials Credentials) (Result, error)
}
