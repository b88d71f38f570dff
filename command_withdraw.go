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

// WithdrawalResult describes a scheduled account deletion
type WithdrawalResult struct {
	AccountID           uuid.UUID     `json:"user_id"`
	Status              AccountStatus `json:"user_status"`
	ScheduledDeletionAt time.Time     `json:"scheduled_deletion_at"`
	GracePeriod         time.Duration `json:"-"`
	GracePeriodDays     int           `json:"grace_period_days"`
}

// Withdraw moves the account to PENDING_DELETION and schedules its deletion
// after the grace period. The notification is advisory and cannot undo
// the transition.
func (s *Service) Withdraw(ctx context.Context, msg WithdrawMessage) (*WithdrawalResult, error) {
	var account *Account

	err := s.execute(ctx, "withdraw account", func(ctx context.Context) error {
		return s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			var err error
			// a guarded update that lost the race is re-read once so the
			// caller gets the precise business error
			for attempt := 0; attempt < 2; attempt++ {
				account, err = s.withdrawTx(ctx, tx, msg)
				if !errors.Is(err, ErrStatusConflict) {
					return err
				}
			}
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	scheduled := *account.DeletionScheduledAt
	s.logger.Info("account withdrawn", "account_id", account.ID, "scheduled_deletion_at", scheduled)

	email := account.Email
	s.notify(ctx, "withdrawal", func(ctx context.Context) error {
		return s.notifier.NotifyWithdrawal(ctx, email, scheduled)
	})

	return &WithdrawalResult{
		AccountID:           account.ID,
		Status:              account.Status,
		ScheduledDeletionAt: scheduled,
		GracePeriod:         s.gracePeriod,
		GracePeriodDays:     int(s.gracePeriod / (24 * time.Hour)),
	}, nil
}

func (s *Service) withdrawTx(ctx context.Context, tx bun.IDB, msg WithdrawMessage) (*Account, error) {
	account, err := s.repo.Accounts().GetByIDTx(ctx, tx, msg.AccountID)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "could not retrieve account")
	}

	switch account.Status {
	case AccountStatusPendingDeletion:
		return nil, ErrAlreadyPendingDeletion
	case AccountStatusDeleted:
		return nil, ErrAlreadyDeleted
	}

	scheduled := s.now().Add(s.gracePeriod).UTC()

	updated, err := s.stateMachine.Transition(ctx, tx, accountActor(account.ID.String()), account,
		AccountStatusPendingDeletion,
		WithDeletionSchedule(scheduled),
		WithTransitionReason(msg.Reason),
	)
	if err != nil {
		return nil, err
	}

	if updated.DeletionScheduledAt == nil {
		updated.DeletionScheduledAt = &scheduled
	}
	return updated, nil
}
