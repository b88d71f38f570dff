package identity

import (
	"context"
	"errors"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
)

const (
	loginFailureNotFound  = "account_not_found"
	loginFailureMismatch  = "password_mismatch"
	loginFailureNotActive = "account_not_active"
)

// LoginUser is the minimal user projection returned on login
type LoginUser struct {
	ID         string   `json:"id"`
	Email      string   `json:"email"`
	Roles      []string `json:"roles"`
	MFAEnabled bool     `json:"mfa_enabled"`
}

// LoginResult carries the issued tokens and the user projection
type LoginResult struct {
	TokenPair
	User LoginUser `json:"user"`
}

// Login authenticates email and password. Every failure is reported as
// ErrInvalidCredentials, or ErrNotActive which renders identically.
// Login never mutates the account.
func (s *Service) Login(ctx context.Context, msg LoginMessage) (*LoginResult, error) {
	var result *LoginResult

	err := s.execute(ctx, "login", func(ctx context.Context) error {
		account, err := s.repo.Accounts().GetByEmail(ctx, msg.Email)
		if err != nil {
			if !repository.IsRecordNotFound(err) {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "could not retrieve account")
			}
			// keep the cost of both branches comparable
			_ = s.hasher.ComparePasswordAndHash(msg.Password, s.dummyPasswordHash())
			return s.loginFailure(ctx, nil, loginFailureNotFound, ErrInvalidCredentials)
		}

		if err := s.hasher.ComparePasswordAndHash(msg.Password, account.PasswordHash); err != nil {
			if !errors.Is(err, ErrMismatchedHashAndPassword) {
				s.logger.Warn("password comparison failed", "account_id", account.ID, "error", err)
			}
			return s.loginFailure(ctx, account, loginFailureMismatch, ErrInvalidCredentials)
		}

		if !account.IsActive() {
			return s.loginFailure(ctx, account, loginFailureNotActive, ErrNotActive)
		}

		tokens, err := s.tokens.IssuePair(account, RoleUser)
		if err != nil {
			return err
		}

		result = &LoginResult{
			TokenPair: *tokens,
			User: LoginUser{
				ID:         account.ID.String(),
				Email:      account.Email,
				Roles:      []string{LoginRoleUser},
				MFAEnabled: false,
			},
		}

		s.logger.Info("login succeeded", "account_id", account.ID)
		s.record(ctx, ActivityEvent{
			EventType: ActivityEventLoginSuccess,
			Actor:     accountActor(account.ID.String()),
			AccountID: account.ID.String(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (s *Service) loginFailure(ctx context.Context, account *Account, reason string, err error) error {
	event := ActivityEvent{
		EventType: ActivityEventLoginFailure,
		Actor:     ActorRef{Type: "anonymous"},
		Metadata: map[string]any{
			"reason": reason,
		},
	}

	if account != nil {
		event.AccountID = account.ID.String()
		event.FromStatus = account.Status
		s.logger.Info("login failed", "reason", reason, "account_id", account.ID, "status", account.Status)
	} else {
		s.logger.Info("login failed", "reason", reason)
	}

	s.record(ctx, event)
	return err
}
