package server

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/loginrelay/loginrelay/internal/orchestrator"
	"github.com/loginrelay/loginrelay/internal/session"
	"github.com/loginrelay/loginrelay/internal/strategy"
)

const (
	loginRoutePath               = "/api/login"
	sessionsRoutePath            = "/api/sessions"
	sessionRoutePath             = "/api/sessions/:id"
	cookiesRoutePath             = "/api/cookies/:id"
	cookiesExportRoutePath       = "/api/cookies/:id/export"
	healthRoutePath              = "/healthz"
	sessionIDParameter           = "id"
	exportFormatQueryParameter   = "format"
	exportFormatJSON             = "json"
	exportFormatString           = "string"
	exportJSONFileNameFormat     = "cookies_%s.json"
	exportStringFileNameFormat   = "cookies_%s.txt"
	contentDispositionHeader     = "Content-Disposition"
	attachmentDispositionFormat  = "attachment; filename=%q"
	jsonContentType              = "application/json; charset=utf-8"
	textContentType              = "text/plain; charset=utf-8"
	exportIndent                 = "   "
	healthStatusKey              = "status"
	healthStatusOK               = "ok"
	ginModeRelease               = "release"
	errorMessageInvalidBody      = "email and password are required"
	errorMessageLoginFailed      = "login failed with all strategies"
	errorMessageRateLimited      = "login surface is rate limiting; try again later"
	errorMessageCheckpoint       = "login requires interactive verification"
	errorMessageInternal         = "internal error"
	errorMessageSessionNotFound  = "session not found"
	errorMessageInvalidSessionID = "invalid session id"
	errorMessageUnknownFormat    = "format must be json or string"
	logMessageLoginFailed        = "login failed"
	logMessageLoginSucceeded     = "login succeeded"
	logMessageStoreFailure       = "session store failure"
	logFieldOwner                = "owner"
	logFieldStrategy             = "strategy"
	logFieldSessionID            = "session_id"
	logFieldAttempts             = "attempts"
	loginKeySeparator            = "\x00"
)

// LoginService runs the ordered login strategies.
type LoginService interface {
	Login(ctx context.Context, credentials strategy.Credentials) (orchestrator.Report, error)
}

// RouterConfig configures the HTTP routing for login and session requests.
type RouterConfig struct {
	LoginService LoginService
	Store        session.Store
	Logger       *zap.Logger
	Clock        func() time.Time
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Success   bool             `json:"success"`
	SessionID string           `json:"session_id"`
	Owner     string           `json:"email"`
	Strategy  string           `json:"strategy"`
	Cookies   []session.Cookie `json:"cookies"`
}

type errorResponse struct {
	Success bool     `json:"success"`
	Error   string   `json:"error"`
	Tried   []string `json:"tried,omitempty"`
}

type loginOutcome struct {
	report orchestrator.Report
	record session.Record
}

// NewRouter constructs a Gin engine configured with the login, session, and health handlers.
func NewRouter(configuration RouterConfig) (*gin.Engine, error) {
	if configuration.LoginService == nil {
		return nil, errors.New("login service is required")
	}
	if configuration.Store == nil {
		return nil, errors.New("session store is required")
	}
	logger := configuration.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := configuration.Clock
	if clock == nil {
		clock = time.Now
	}

	gin.SetMode(ginModeRelease)
	engine := gin.New()
	engine.Use(gin.Recovery())

	handler := &sessionHandler{
		loginService: configuration.LoginService,
		store:        configuration.Store,
		logger:       logger,
		clock:        clock,
	}

	engine.POST(loginRoutePath, handler.login)
	engine.GET(sessionsRoutePath, handler.listSessions)
	engine.GET(sessionRoutePath, handler.getSession)
	engine.DELETE(sessionRoutePath, handler.deleteSession)
	engine.GET(cookiesRoutePath, handler.getCookies)
	engine.GET(cookiesExportRoutePath, handler.exportCookies)
	engine.GET(healthRoutePath, handler.healthStatus)

	return engine, nil
}

type sessionHandler struct {
	loginService LoginService
	store        session.Store
	logger       *zap.Logger
	clock        func() time.Time
	loginGroup   singleflight.Group
}

func (handler *sessionHandler) login(ginContext *gin.Context) {
	var request loginRequest
	if err := ginContext.ShouldBindJSON(&request); err != nil {
		ginContext.JSON(http.StatusBadRequest, errorResponse{Error: errorMessageInvalidBody})
		return
	}
	credentials := strategy.Credentials{Email: strings.TrimSpace(request.Email), Password: request.Password}
	if credentials.Validate() != nil {
		ginContext.JSON(http.StatusBadRequest, errorResponse{Error: errorMessageInvalidBody})
		return
	}

	requestContext := ginContext.Request.Context()
	value, err, _ := handler.loginGroup.Do(loginKey(credentials), func() (interface{}, error) {
		return handler.runLogin(requestContext, credentials)
	})
	outcome, _ := value.(loginOutcome)
	if err != nil {
		handler.logger.Warn(logMessageLoginFailed,
			zap.String(logFieldOwner, credentials.Email),
			zap.Int(logFieldAttempts, len(outcome.report.Attempts)),
			zap.Error(err))
		statusCode, message := loginErrorStatus(err)
		ginContext.JSON(statusCode, errorResponse{Error: message, Tried: attemptedStrategies(outcome.report)})
		return
	}

	handler.logger.Info(logMessageLoginSucceeded,
		zap.String(logFieldOwner, credentials.Email),
		zap.String(logFieldStrategy, outcome.record.Strategy),
		zap.String(logFieldSessionID, outcome.record.SessionID))
	ginContext.JSON(http.StatusOK, loginResponse{
		Success:   true,
		SessionID: outcome.record.SessionID,
		Owner:     outcome.record.Owner,
		Strategy:  outcome.record.Strategy,
		Cookies:   outcome.record.Cookies,
	})
}

func (handler *sessionHandler) runLogin(ctx context.Context, credentials strategy.Credentials) (loginOutcome, error) {
	report, err := handler.loginService.Login(ctx, credentials)
	if err != nil {
		return loginOutcome{report: report}, err
	}
	record, err := handler.store.Create(credentials.Email, report.Result.Cookies, report.Result.UserAgent, report.Result.Strategy)
	if err != nil {
		return loginOutcome{report: report}, fmt.Errorf("save session: %w", err)
	}
	return loginOutcome{report: report, record: record}, nil
}

func (handler *sessionHandler) listSessions(ginContext *gin.Context) {
	summaries, err := handler.store.List()
	if err != nil {
		handler.logger.Error(logMessageStoreFailure, zap.Error(err))
		ginContext.JSON(http.StatusInternalServerError, errorResponse{Error: errorMessageInternal})
		return
	}
	ginContext.JSON(http.StatusOK, summaries)
}

func (handler *sessionHandler) getSession(ginContext *gin.Context) {
	record, ok := handler.loadRecord(ginContext, true)
	if !ok {
		return
	}
	ginContext.JSON(http.StatusOK, record)
}

func (handler *sessionHandler) deleteSession(ginContext *gin.Context) {
	if err := handler.store.Delete(ginContext.Param(sessionIDParameter)); err != nil {
		handler.writeStoreError(ginContext, err)
		return
	}
	ginContext.JSON(http.StatusOK, map[string]bool{"success": true})
}

func (handler *sessionHandler) getCookies(ginContext *gin.Context) {
	record, ok := handler.loadRecord(ginContext, false)
	if !ok {
		return
	}
	ginContext.JSON(http.StatusOK, record.Cookies)
}

func (handler *sessionHandler) exportCookies(ginContext *gin.Context) {
	format := ginContext.DefaultQuery(exportFormatQueryParameter, exportFormatJSON)
	if format != exportFormatJSON && format != exportFormatString {
		ginContext.JSON(http.StatusBadRequest, errorResponse{Error: errorMessageUnknownFormat})
		return
	}
	record, ok := handler.loadRecord(ginContext, false)
	if !ok {
		return
	}

	if format == exportFormatString {
		ginContext.Header(contentDispositionHeader, fmt.Sprintf(attachmentDispositionFormat, fmt.Sprintf(exportStringFileNameFormat, record.SessionID)))
		ginContext.Data(http.StatusOK, textContentType, []byte(session.CookieHeader(record.Cookies)))
		return
	}

	exported, err := json.MarshalIndent(session.ExportCookies(record.Cookies, handler.clock()), "", exportIndent)
	if err != nil {
		handler.logger.Error(logMessageStoreFailure, zap.Error(err))
		ginContext.JSON(http.StatusInternalServerError, errorResponse{Error: errorMessageInternal})
		return
	}
	ginContext.Header(contentDispositionHeader, fmt.Sprintf(attachmentDispositionFormat, fmt.Sprintf(exportJSONFileNameFormat, record.SessionID)))
	ginContext.Data(http.StatusOK, jsonContentType, exported)
}

func (handler *sessionHandler) healthStatus(ginContext *gin.Context) {
	ginContext.JSON(http.StatusOK, map[string]string{healthStatusKey: healthStatusOK})
}

func (handler *sessionHandler) loadRecord(ginContext *gin.Context, touch bool) (session.Record, bool) {
	sessionID := ginContext.Param(sessionIDParameter)
	var (
		record session.Record
		err    error
	)
	if touch {
		record, err = handler.store.Touch(sessionID)
	} else {
		record, err = handler.store.Get(sessionID)
	}
	if err != nil {
		handler.writeStoreError(ginContext, err)
		return session.Record{}, false
	}
	return record, true
}

func (handler *sessionHandler) writeStoreError(ginContext *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		ginContext.JSON(http.StatusNotFound, errorResponse{Error: errorMessageSessionNotFound})
	case errors.Is(err, session.ErrInvalidID):
		ginContext.JSON(http.StatusBadRequest, errorResponse{Error: errorMessageInvalidSessionID})
	default:
		handler.logger.Error(logMessageStoreFailure, zap.Error(err))
		ginContext.JSON(http.StatusInternalServerError, errorResponse{Error: errorMessageInternal})
	}
}

func loginErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, orchestrator.ErrCheckpoint):
		return http.StatusForbidden, errorMessageCheckpoint
	case errors.Is(err, orchestrator.ErrRateLimited):
		return http.StatusTooManyRequests, errorMessageRateLimited
	case errors.Is(err, orchestrator.ErrAllStrategiesFailed):
		return http.StatusUnauthorized, errorMessageLoginFailed
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, err.Error()
	default:
		return http.StatusInternalServerError, errorMessageInternal
	}
}

func attemptedStrategies(report orchestrator.Report) []string {
	names := make([]string, 0, len(report.Attempts))
	for _, attempt := range report.Attempts {
		names = append(names, attempt.Strategy)
	}
	return names
}

// loginKey collapses concurrent logins only when both identity and password match.
func loginKey(credentials strategy.Credentials) string {
	passwordDigest := sha256.Sum256([]byte(credentials.Password))
	return strings.ToLower(credentials.Email) + loginKeySeparator + hex.EncodeToString(passwordDigest[:])
}
