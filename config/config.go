// Package config loads the identity service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/goliatone/go-identity"
	"github.com/goliatone/go-identity/persistence"
)

// MinSigningKeyLength is the shortest accepted HS256 secret, in bytes
const MinSigningKeyLength = 32

// ErrSigningKeyTooShort is returned when the signing key is under MinSigningKeyLength
var ErrSigningKeyTooShort = errors.New("signing key must be at least 32 bytes")

// Config is the service configuration
type Config struct {
	SigningKey            string        `env:"SIGNING_KEY,required"`
	Issuer                string        `env:"ISSUER" envDefault:"go-identity"`
	AccessTokenTTL        time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"15m"`
	RefreshTokenTTL       time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"720h"`
	EmailVerificationTTL  time.Duration `env:"EMAIL_VERIFICATION_TTL" envDefault:"24h"`
	PasswordResetTTL      time.Duration `env:"PASSWORD_RESET_TTL" envDefault:"24h"`
	WithdrawalGracePeriod time.Duration `env:"WITHDRAWAL_GRACE_PERIOD" envDefault:"720h"`
	BcryptCost            int           `env:"BCRYPT_COST" envDefault:"12"`
	VerifyOnRegister      bool          `env:"VERIFY_ON_REGISTER" envDefault:"true"`
	DeterministicIDs      bool          `env:"DETERMINISTIC_IDS" envDefault:"false"`
	OperationTimeout      time.Duration `env:"OPERATION_TIMEOUT" envDefault:"10s"`
	PhoneRegion           string        `env:"PHONE_REGION" envDefault:"US"`

	HTTP     HTTP     `envPrefix:"HTTP_"`
	Database Database `envPrefix:"DB_"`
	Log      Log      `envPrefix:"LOG_"`
	Notify   Notify   `envPrefix:"NOTIFY_"`
}

// HTTP configures the listener
type HTTP struct {
	Addr            string        `env:"ADDR" envDefault:":8080"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
}

// Database configures persistence
type Database struct {
	Driver          string        `env:"DRIVER" envDefault:"sqlite"`
	DSN             string        `env:"DSN" envDefault:"file::memory:?cache=shared"`
	MaxOpenConns    int           `env:"MAX_OPEN_CONNS" envDefault:"10"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"30m"`
	AutoMigrate     bool          `env:"AUTO_MIGRATE" envDefault:"true"`
}

// Log configures the slog handler
type Log struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
	Debug  bool   `env:"DEBUG" envDefault:"false"`
}

// Notify configures the log notifier
type Notify struct {
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:3000"`
}

var _ identity.Config = Config{}

// Load parses the environment using the IDENTITY_ prefix and validates it
func Load() (Config, error) {
	return LoadWithOptions(env.Options{})
}

// LoadWithOptions parses with custom env options, the prefix defaults to IDENTITY_
func LoadWithOptions(opts env.Options) (Config, error) {
	if opts.Prefix == "" {
		opts.Prefix = "IDENTITY_"
	}

	cfg, err := env.ParseAsWithOptions[Config](opts)
	if err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks the invariants the service relies on
func (c Config) Validate() error {
	if len(c.SigningKey) < MinSigningKeyLength {
		return ErrSigningKeyTooShort
	}

	durations := map[string]time.Duration{
		"access token ttl":        c.AccessTokenTTL,
		"refresh token ttl":       c.RefreshTokenTTL,
		"email verification ttl":  c.EmailVerificationTTL,
		"password reset ttl":      c.PasswordResetTTL,
		"withdrawal grace period": c.WithdrawalGracePeriod,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return fmt.Errorf("bcrypt cost %d out of range", c.BcryptCost)
	}

	return nil
}

func (c Config) GetSigningKey() string {
	return c.SigningKey
}

func (c Config) GetIssuer() string {
	return c.Issuer
}

func (c Config) GetAccessTokenTTL() time.Duration {
	return c.AccessTokenTTL
}

func (c Config) GetRefreshTokenTTL() time.Duration {
	return c.RefreshTokenTTL
}

func (c Config) GetEmailVerificationTTL() time.Duration {
	return c.EmailVerificationTTL
}

func (c Config) GetPasswordResetTTL() time.Duration {
	return c.PasswordResetTTL
}

func (c Config) GetWithdrawalGracePeriod() time.Duration {
	return c.WithdrawalGracePeriod
}

func (c Config) GetBcryptCost() int {
	return c.BcryptCost
}

// Persistence returns the database settings for persistence.Open
func (c Config) Persistence() persistence.Config {
	return persistence.Config{
		Driver:          c.Database.Driver,
		DSN:             c.Database.DSN,
		MaxOpenConns:    c.Database.MaxOpenConns,
		ConnMaxLifetime: c.Database.ConnMaxLifetime,
		AutoMigrate:     c.Database.AutoMigrate,
	}
}
