package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/loginrelay/loginrelay/internal/classify"
	"github.com/loginrelay/loginrelay/internal/strategy"
)

const (
	defaultBaseDelay            = 2 * time.Second
	defaultJitter               = time.Second
	defaultRateLimitDelay       = 10 * time.Second
	defaultMaxWait              = 2 * time.Minute
	errMessageNoStrategies      = "at least one strategy is required"
	errMessageAllStrategiesFail = "all login strategies failed"
	errMessageRateLimited       = "login surface is rate limiting this client"
	errMessageCheckpoint        = "login requires interactive verification"
	logMessageAttemptStarted    = "login attempt started"
	logMessageAttemptFinished   = "login attempt finished"
	logMessageAttemptError      = "login attempt error"
	logMessageWaiting           = "waiting before next strategy"
	logMessageCheckpointReached = "checkpoint reached, stopping"
	logFieldStrategy            = "strategy"
	logFieldOutcome             = "outcome"
	logFieldDetail              = "detail"
	logFieldWait                = "wait"
	logFieldRateLimited         = "rate_limited"
	logFieldAttemptIndex        = "attempt"
)

var (
	// ErrNoStrategies reports an empty strategy list.
	ErrNoStrategies = errors.New(errMessageNoStrategies)
	// ErrAllStrategiesFailed reports that every strategy ran and none authenticated.
	ErrAllStrategiesFailed = errors.New(errMessageAllStrategiesFail)
	// ErrRateLimited reports exhaustion while at least one attempt was throttled.
	ErrRateLimited = errors.New(errMessageRateLimited)
	// ErrCheckpoint reports that the surface demanded interactive verification.
	ErrCheckpoint = errors.New(errMessageCheckpoint)
)

// PacingConfig describes the waits between strategies.
type PacingConfig struct {
	BaseDelay       time.Duration
	Jitter          time.Duration
	RateLimitDelay  time.Duration
	MaxWait         time.Duration
	RandomGenerator *rand.Rand
}

// Config configures a Service.
type Config struct {
	Strategies []strategy.Strategy
	Pacing     PacingConfig
	Logger     *zap.Logger
	Wait       func(ctx context.Context, duration time.Duration) error
}

// Attempt is the record of one strategy run.
type Attempt struct {
	Strategy string
	Outcome  classify.Outcome
	Detail   string
	Err      error
	Waited   time.Duration
}

// Report summarizes a login run.
type Report struct {
	Result      strategy.Result
	Attempts    []Attempt
	RateLimited bool
}

// Service tries strategies in order until one authenticates.
type Service struct {
	strategies []strategy.Strategy
	pacer      *attemptPacer
	logger     *zap.Logger
	wait       func(ctx context.Context, duration time.Duration) error
}

// NewService constructs a Service from configuration values.
func NewService(configuration Config) (*Service, error) {
	if len(configuration.Strategies) == 0 {
		return nil, ErrNoStrategies
	}
	logger := configuration.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	wait := configuration.Wait
	if wait == nil {
		wait = waitForDuration
	}
	return &Service{
		strategies: append([]strategy.Strategy{}, configuration.Strategies...),
		pacer:      newAttemptPacer(configuration.Pacing),
		logger:     logger,
		wait:       wait,
	}, nil
}

// StrategyNames lists the configured strategies in try order.
func (service *Service) StrategyNames() []string {
	names := make([]string, 0, len(service.strategies))
	for _, configured := range service.strategies {
		names = append(names, configured.Name())
	}
	return names
}

// Login runs the strategies in order. It stops at the first success, stops
// at a checkpoint, and otherwise returns ErrRateLimited or ErrAllStrategiesFailed
// once the list is exhausted. The report is populated in every case.
func (service *Service) Login(ctx context.Context, credentials strategy.Credentials) (Report, error) {
	var report Report
	if err := credentials.Validate(); err != nil {
		return report, err
	}

	var lastErr error
	var retryAfter time.Duration
	for index, configured := range service.strategies {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		var waited time.Duration
		if index > 0 {
			waited = service.pacer.NextWait(report.RateLimited, retryAfter)
			service.logger.Info(logMessageWaiting,
				zap.String(logFieldStrategy, configured.Name()),
				zap.Duration(logFieldWait, waited),
				zap.Bool(logFieldRateLimited, report.RateLimited))
			if err := service.wait(ctx, waited); err != nil {
				return report, err
			}
		}

		service.logger.Info(logMessageAttemptStarted, zap.String(logFieldStrategy, configured.Name()), zap.Int(logFieldAttemptIndex, index+1))
		result, loginErr := configured.Login(ctx, credentials)
		if result.Strategy == "" {
			result.Strategy = configured.Name()
		}
		if loginErr != nil {
			result.Outcome = classify.OutcomeFailure
			lastErr = loginErr
			service.logger.Warn(logMessageAttemptError, zap.String(logFieldStrategy, result.Strategy), zap.Error(loginErr))
		}
		report.Attempts = append(report.Attempts, Attempt{
			Strategy: result.Strategy,
			Outcome:  result.Outcome,
			Detail:   result.Detail,
			Err:      loginErr,
			Waited:   waited,
		})
		service.logger.Info(logMessageAttemptFinished,
			zap.String(logFieldStrategy, result.Strategy),
			zap.Stringer(logFieldOutcome, result.Outcome),
			zap.String(logFieldDetail, result.Detail))

		switch result.Outcome {
		case classify.OutcomeSuccess:
			report.Result = result
			return report, nil
		case classify.OutcomeCheckpoint:
			report.Result = result
			service.logger.Warn(logMessageCheckpointReached, zap.String(logFieldStrategy, result.Strategy))
			return report, fmt.Errorf("%w: %s", ErrCheckpoint, result.Strategy)
		case classify.OutcomeRateLimited:
			report.RateLimited = true
			retryAfter = result.RetryAfter
		default:
			retryAfter = 0
		}
	}

	if report.RateLimited {
		return report, ErrRateLimited
	}
	if lastErr != nil {
		return report, fmt.Errorf("%w: %w", ErrAllStrategiesFailed, lastErr)
	}
	return report, ErrAllStrategiesFailed
}

func waitForDuration(ctx context.Context, duration time.Duration) error {
	if duration <= 0 {
		return nil
	}

	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type attemptPacer struct {
	baseDelay      time.Duration
	jitter         time.Duration
	rateLimitDelay time.Duration
	maxWait        time.Duration

	randomGenerator *rand.Rand
	mutex           sync.Mutex
}

func newAttemptPacer(configuration PacingConfig) *attemptPacer {
	baseDelay := configuration.BaseDelay
	if baseDelay < 0 {
		baseDelay = 0
	} else if baseDelay == 0 {
		baseDelay = defaultBaseDelay
	}
	jitter := configuration.Jitter
	if jitter < 0 {
		jitter = 0
	} else if jitter == 0 {
		jitter = defaultJitter
	}
	rateLimitDelay := configuration.RateLimitDelay
	if rateLimitDelay <= 0 {
		rateLimitDelay = defaultRateLimitDelay
	}
	maxWait := configuration.MaxWait
	if maxWait <= 0 {
		maxWait = defaultMaxWait
	}
	randomGenerator := configuration.RandomGenerator
	if randomGenerator == nil {
		randomGenerator = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &attemptPacer{
		baseDelay:       baseDelay,
		jitter:          jitter,
		rateLimitDelay:  rateLimitDelay,
		maxWait:         maxWait,
		randomGenerator: randomGenerator,
	}
}

// NextWait samples the pause before the next strategy. Once throttled, every
// later pause adds the rate-limit delay, and a server-provided Retry-After
// raises the pause to at least that value. The result never exceeds maxWait.
func (pacer *attemptPacer) NextWait(rateLimited bool, retryAfter time.Duration) time.Duration {
	pacer.mutex.Lock()
	defer pacer.mutex.Unlock()

	wait := pacer.sampleDuration(pacer.baseDelay, pacer.jitter)
	if rateLimited {
		wait += pacer.rateLimitDelay
	}
	if retryAfter > wait {
		wait = retryAfter
	}
	if wait > pacer.maxWait {
		wait = pacer.maxWait
	}
	return wait
}

func (pacer *attemptPacer) sampleDuration(baseDuration time.Duration, jitter time.Duration) time.Duration {
	if jitter <= 0 {
		return baseDuration
	}

	offset := (pacer.randomGenerator.Float64()*2 - 1) * float64(jitter)
	sampled := time.Duration(float64(baseDuration) + offset)
	if sampled < 0 {
		return 0
	}
	return sampled
}
