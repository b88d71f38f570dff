package identity

import (
	"context"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const (
	DefaultPasswordResetTTL      = 24 * time.Hour
	DefaultWithdrawalGracePeriod = 30 * 24 * time.Hour
	defaultOperationTimeout      = 10 * time.Second
)

// Service exposes the account lifecycle workflows. Each workflow runs as a
// single unit of work against the repository manager and fires
// notifications once that unit is committed.
type Service struct {
	repo         RepositoryManager
	tokens       TokenCodec
	hasher       PasswordHasher
	notifier     Notifier
	stateMachine AccountStateMachine
	activity     ActivitySink
	logger       Logger
	now          Clock

	emailVerificationTTL time.Duration
	passwordResetTTL     time.Duration
	gracePeriod          time.Duration
	operationTimeout     time.Duration
	verifyOnRegister     bool
	deterministicIDs     bool

	dummyOnce sync.Once
	dummy     string
}

// ServiceOption customizes the service
type ServiceOption func(*Service)

// WithClock injects the clock used for every expiry decision
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithNotifier sets the out of band notifier
func WithNotifier(notifier Notifier) ServiceOption {
	return func(s *Service) {
		s.notifier = normalizeNotifier(notifier)
	}
}

// WithPasswordHasher overrides the bcrypt hasher
func WithPasswordHasher(hasher PasswordHasher) ServiceOption {
	return func(s *Service) {
		if hasher != nil {
			s.hasher = hasher
		}
	}
}

// WithActivitySink sets the sink used to emit audit events
func WithActivitySink(sink ActivitySink) ServiceOption {
	return func(s *Service) {
		s.activity = normalizeActivitySink(sink)
	}
}

// WithStateMachine overrides the account state machine
func WithStateMachine(sm AccountStateMachine) ServiceOption {
	return func(s *Service) {
		if sm != nil {
			s.stateMachine = sm
		}
	}
}

// WithEmailVerificationTTL sets the lifetime of email verification tokens
func WithEmailVerificationTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.emailVerificationTTL = ttl
		}
	}
}

// WithPasswordResetTTL sets the lifetime of password reset tokens
func WithPasswordResetTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.passwordResetTTL = ttl
		}
	}
}

// WithWithdrawalGracePeriod sets the delay between withdrawal and deletion
func WithWithdrawalGracePeriod(period time.Duration) ServiceOption {
	return func(s *Service) {
		if period > 0 {
			s.gracePeriod = period
		}
	}
}

// WithOperationTimeout bounds every unit of work
func WithOperationTimeout(timeout time.Duration) ServiceOption {
	return func(s *Service) {
		if timeout > 0 {
			s.operationTimeout = timeout
		}
	}
}

// WithVerificationOnRegister makes Register issue an email verification token
func WithVerificationOnRegister(enabled bool) ServiceOption {
	return func(s *Service) {
		s.verifyOnRegister = enabled
	}
}

// WithDeterministicIDs derives new account ids from the email with hashid
func WithDeterministicIDs(enabled bool) ServiceOption {
	return func(s *Service) {
		s.deterministicIDs = enabled
	}
}

// WithConfig applies the lifetimes and cost found in cfg
func WithConfig(cfg Config) ServiceOption {
	return func(s *Service) {
		if cfg == nil {
			return
		}
		WithEmailVerificationTTL(cfg.GetEmailVerificationTTL())(s)
		WithPasswordResetTTL(cfg.GetPasswordResetTTL())(s)
		WithWithdrawalGracePeriod(cfg.GetWithdrawalGracePeriod())(s)
		if cost := cfg.GetBcryptCost(); cost > 0 {
			s.hasher = NewBcryptHasher(cost)
		}
	}
}

// NewService creates the service with sane defaults
func NewService(repo RepositoryManager, tokens TokenCodec, opts ...ServiceOption) *Service {
	s := &Service{
		repo:                 repo,
		tokens:               tokens,
		hasher:               NewBcryptHasher(DefaultBcryptCost),
		notifier:             noopNotifier{},
		activity:             noopActivitySink{},
		logger:               defLogger{},
		now:                  time.Now,
		emailVerificationTTL: DefaultEmailVerificationTokenTTL,
		passwordResetTTL:     DefaultPasswordResetTTL,
		gracePeriod:          DefaultWithdrawalGracePeriod,
		operationTimeout:     defaultOperationTimeout,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	if s.stateMachine == nil {
		s.stateMachine = NewAccountStateMachine(repo.Accounts(),
			WithStateMachineClock(s.now),
			WithStateMachineActivitySink(s.activity),
			WithStateMachineLogger(s.logger),
		)
	}

	return s
}

// GracePeriod returns the configured withdrawal grace period
func (s *Service) GracePeriod() time.Duration {
	return s.gracePeriod
}

// execute runs fn with the operation timeout and normalizes its error.
// Tagged business errors pass through, anything else becomes an internal
// error carrying message.
func (s *Service) execute(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during "+operation,
		)
	default:
	}

	ctx, cancel := context.WithTimeout(ctx, s.operationTimeout)
	defer cancel()

	if err := fn(ctx); err != nil {
		if !IsBusinessError(err) {
			s.logger.Error("operation failed", "operation", operation, "error", err)
		}
		return internalError(err, "failed to "+operation)
	}
	return nil
}

func (s *Service) dummyPasswordHash() string {
	s.dummyOnce.Do(func() {
		s.dummy = dummyHash(s.hasher)
	})
	return s.dummy
}

func (s *Service) notify(ctx context.Context, kind string, fn func(ctx context.Context) error) {
	notifyAfterCommit(ctx, s.logger, kind, fn)
}

func (s *Service) record(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now()
	}
	recordActivity(ctx, s.activity, s.logger, event)
}
