package identity

import (
	"context"
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// IssueEmailVerification creates a verification token for the account and
// notifies its email. The raw token is returned to the caller.
func (s *Service) IssueEmailVerification(ctx context.Context, accountID uuid.UUID) (string, error) {
	var (
		account  *Account
		rawToken string
	)

	err := s.execute(ctx, "issue email verification", func(ctx context.Context) error {
		return s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			var err error
			account, err = s.repo.Accounts().GetByIDTx(ctx, tx, accountID)
			if err != nil {
				if repository.IsRecordNotFound(err) {
					return ErrNotFound
				}
				return goerrors.Wrap(err, goerrors.CategoryInternal, "could not retrieve account")
			}

			rawToken, err = s.issueEmailVerificationTx(ctx, tx, account)
			return err
		})
	})
	if err != nil {
		return "", err
	}

	s.notifyEmailVerification(ctx, account.Email, rawToken)
	return rawToken, nil
}

// VerifyEmail redeems an email verification token. A PENDING account
// becomes ACTIVE, any other status is left untouched.
func (s *Service) VerifyEmail(ctx context.Context, msg VerifyEmailMessage) (bool, error) {
	var account *Account

	err := s.execute(ctx, "verify email", func(ctx context.Context) error {
		return s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			now := s.now()

			token, err := s.redeemTx(ctx, tx, s.repo.EmailVerifications(), msg.Token, now)
			if err != nil {
				return err
			}

			account, err = s.repo.Accounts().GetByIDTx(ctx, tx, token.AccountID)
			if err != nil {
				if repository.IsRecordNotFound(err) {
					return ErrNotFound
				}
				return goerrors.Wrap(err, goerrors.CategoryInternal, "could not retrieve account")
			}

			if account.Status == AccountStatusPending {
				updated, err := s.stateMachine.Transition(ctx, tx, accountActor(account.ID.String()), account,
					AccountStatusActive,
					WithVerifiedEmail(now),
				)
				if err == nil {
					account = updated
					return nil
				}
				if !errors.Is(err, ErrStatusConflict) {
					return err
				}
				// status moved on concurrently, only record the verification
				if account, err = s.repo.Accounts().GetByIDTx(ctx, tx, token.AccountID); err != nil {
					return goerrors.Wrap(err, goerrors.CategoryInternal, "could not retrieve account")
				}
			}

			verifiedAt := now.UTC()
			account.EmailVerifiedAt = &verifiedAt
			account, err = s.repo.Accounts().UpdateTx(ctx, tx, account)
			if err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "could not update account")
			}
			return nil
		})
	})
	if err != nil {
		return false, err
	}

	s.logger.Info("email verified", "account_id", account.ID, "status", account.Status)
	s.record(ctx, ActivityEvent{
		EventType: ActivityEventEmailVerified,
		Actor:     accountActor(account.ID.String()),
		AccountID: account.ID.String(),
		ToStatus:  account.Status,
	})

	return true, nil
}

// ResendVerification issues a fresh token for an unverified account
func (s *Service) ResendVerification(ctx context.Context, msg ResendVerificationMessage) (string, error) {
	var (
		account  *Account
		rawToken string
	)

	err := s.execute(ctx, "resend email verification", func(ctx context.Context) error {
		return s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			var err error
			account, err = s.repo.Accounts().GetByEmailTx(ctx, tx, msg.Email)
			if err != nil {
				if repository.IsRecordNotFound(err) {
					return ErrNotFound
				}
				return goerrors.Wrap(err, goerrors.CategoryInternal, "could not retrieve account")
			}

			if account.IsEmailVerified() {
				return ErrAlreadyVerified
			}

			previous, err := s.repo.EmailVerifications().GetLatestForAccountTx(ctx, tx, account.ID)
			switch {
			case err == nil:
				s.logger.Info("replacing email verification",
					"account_id", account.ID,
					"previous_token_id", previous.ID,
					"previous_valid", previous.IsValid(s.now()),
				)
			case !repository.IsRecordNotFound(err):
				return goerrors.Wrap(err, goerrors.CategoryInternal, "could not retrieve verification token")
			}

			rawToken, err = s.issueEmailVerificationTx(ctx, tx, account)
			return err
		})
	})
	if err != nil {
		return "", err
	}

	s.notifyEmailVerification(ctx, account.Email, rawToken)
	return rawToken, nil
}

func (s *Service) issueEmailVerificationTx(ctx context.Context, tx bun.IDB, account *Account) (string, error) {
	record, raw, err := newVerificationToken(VerificationKindEmail, account.ID, s.now(), s.emailVerificationTTL)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "could not generate verification token")
	}

	if _, err := s.repo.EmailVerifications().CreateTx(ctx, tx, record); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "could not store verification token")
	}

	s.logger.Debug("email verification issued", "account_id", account.ID, "token_id", record.ID)
	return raw, nil
}

// redeemTx looks the token up and consumes it. Unknown tokens yield
// ErrInvalidToken, expired or consumed ones ErrTokenExpiredOrUsed.
func (s *Service) redeemTx(ctx context.Context, tx bun.IDB, store VerificationTokens, raw string, now time.Time) (*VerificationToken, error) {
	token, err := store.GetByTokenTx(ctx, tx, raw)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrInvalidToken
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "could not retrieve verification token")
	}

	if !token.IsValid(now) {
		s.logger.Info("verification token rejected",
			"kind", store.Kind(),
			"token_id", token.ID,
			"used", token.IsUsed(),
			"expired", token.IsExpired(now),
		)
		return nil, ErrTokenExpiredOrUsed
	}

	if err := store.ConsumeTx(ctx, tx, token.ID, now); err != nil {
		if errors.Is(err, ErrTokenConsumed) {
			return nil, ErrTokenExpiredOrUsed
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "could not consume verification token")
	}

	usedAt := now.UTC()
	token.UsedAt = &usedAt
	return token, nil
}

func (s *Service) notifyEmailVerification(ctx context.Context, email, token string) {
	s.notify(ctx, "email_verification", func(ctx context.Context) error {
		return s.notifier.NotifyEmailVerification(ctx, email, token)
	})
}
