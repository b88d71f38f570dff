package identity

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Logger is the logging contract used across the package.
// Arguments following msg are key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Clock returns the current time
type Clock func() time.Time

// Config holds the settings the identity core needs
type Config interface {
	GetSigningKey() string
	GetIssuer() string
	GetAccessTokenTTL() time.Duration
	GetRefreshTokenTTL() time.Duration
	GetEmailVerificationTTL() time.Duration
	GetPasswordResetTTL() time.Duration
	GetWithdrawalGracePeriod() time.Duration
	GetBcryptCost() int
}

// PasswordHasher hashes and verifies credentials
type PasswordHasher interface {
	HashPassword(password string) (string, error)
	ComparePasswordAndHash(password, hash string) error
}

// Accounts is the account store
type Accounts interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Account, error)
	GetByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*Account, error)
	ExistsByEmailTx(ctx context.Context, tx bun.IDB, email string) (bool, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *Account) (*Account, error)
	UpdateTx(ctx context.Context, tx bun.IDB, record *Account) (*Account, error)
	UpdatePasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error
	UpdateStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, from, to AccountStatus, opts ...StatusUpdateOption) (*Account, error)
}

// VerificationTokens is the store for one verification token kind
type VerificationTokens interface {
	Kind() VerificationKind
	GetByToken(ctx context.Context, token string) (*VerificationToken, error)
	GetByTokenTx(ctx context.Context, tx bun.IDB, token string) (*VerificationToken, error)
	GetLatestForAccountTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID) (*VerificationToken, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *VerificationToken) (*VerificationToken, error)
	ConsumeTx(ctx context.Context, tx bun.IDB, id uuid.UUID, at time.Time) error
}

// TransactionManager runs f inside a single atomic unit of work
type TransactionManager interface {
	RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error
}

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	TransactionManager
	Validate() error
	MustValidate()
	Accounts() Accounts
	EmailVerifications() VerificationTokens
	PasswordResets() VerificationTokens
}

// Notifier delivers out of band messages. Calls are fire and forget,
// callers log failures and never propagate them.
type Notifier interface {
	NotifyEmailVerification(ctx context.Context, email, token string) error
	NotifyPasswordReset(ctx context.Context, email, token string) error
	NotifyWithdrawal(ctx context.Context, email string, scheduledDeletionAt time.Time) error
}
