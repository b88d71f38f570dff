package identity

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// PasswordResetRequestedMessage is the acknowledgement returned for every
// password reset request, whether or not the email is known.
const PasswordResetRequestedMessage = "If the email exists, a password reset link has been sent"

// PasswordResetRequestResult is returned by RequestPasswordReset
type PasswordResetRequestResult struct {
	Message string `json:"message"`
}

// RequestPasswordReset issues a reset token when the email belongs to an
// account. The result never tells which branch ran.
func (s *Service) RequestPasswordReset(ctx context.Context, msg RequestPasswordResetMessage) (*PasswordResetRequestResult, error) {
	var (
		account  *Account
		rawToken string
	)

	err := s.execute(ctx, "request password reset", func(ctx context.Context) error {
		return s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			var err error
			account, err = s.repo.Accounts().GetByEmailTx(ctx, tx, msg.Email)
			if err != nil {
				if repository.IsRecordNotFound(err) {
					account = nil
					return nil
				}
				return goerrors.Wrap(err, goerrors.CategoryInternal, "could not retrieve account")
			}

			record, raw, err := newVerificationToken(VerificationKindPasswordReset, account.ID, s.now(), s.passwordResetTTL)
			if err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "could not generate password reset token")
			}

			if _, err := s.repo.PasswordResets().CreateTx(ctx, tx, record); err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "could not store password reset token")
			}

			rawToken = raw
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if account != nil {
		s.record(ctx, ActivityEvent{
			EventType: ActivityEventPasswordResetRequested,
			Actor:     accountActor(account.ID.String()),
			AccountID: account.ID.String(),
		})

		email := account.Email
		s.notify(ctx, "password_reset", func(ctx context.Context) error {
			return s.notifier.NotifyPasswordReset(ctx, email, rawToken)
		})
	} else {
		s.logger.Debug("password reset requested for unknown email")
	}

	return &PasswordResetRequestResult{Message: PasswordResetRequestedMessage}, nil
}

// ConfirmPasswordReset redeems a reset token and overwrites the password
// hash. The account status is never changed.
func (s *Service) ConfirmPasswordReset(ctx context.Context, msg ConfirmPasswordResetMessage) error {
	var token *VerificationToken

	err := s.execute(ctx, "confirm password reset", func(ctx context.Context) error {
		return s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			var err error
			token, err = s.redeemTx(ctx, tx, s.repo.PasswordResets(), msg.Token, s.now())
			if err != nil {
				return err
			}

			hash, err := s.hasher.HashPassword(msg.NewPassword)
			if err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
			}

			if err := s.repo.Accounts().UpdatePasswordTx(ctx, tx, token.AccountID, hash); err != nil {
				if repository.IsRecordNotFound(err) {
					return ErrInvalidToken
				}
				return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update account password")
			}

			return nil
		})
	})
	if err != nil {
		return err
	}

	s.logger.Info("password reset completed", "account_id", token.AccountID)
	s.record(ctx, ActivityEvent{
		EventType: ActivityEventPasswordResetSuccess,
		Actor:     accountActor(token.AccountID.String()),
		AccountID: token.AccountID.String(),
		Metadata: map[string]any{
			"password_reset_id": token.ID.String(),
		},
	})

	return nil
}
