package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

const (
	textCodeInvalidTransition = "INVALID_USER_STATE_TRANSITION"
	textCodeTerminalState     = "TERMINAL_USER_STATE"
)

// ErrInvalidTransition is returned when a requested status change is not allowed.
var ErrInvalidTransition = goerrors.New("invalid account state transition", goerrors.CategoryValidation).
	WithTextCode(textCodeInvalidTransition)

// ErrTerminalState is returned when attempting to move away from DELETED.
var ErrTerminalState = goerrors.New("account state is terminal", goerrors.CategoryConflict).
	WithTextCode(textCodeTerminalState)

// TransitionOption customizes a single transition.
type TransitionOption func(*transitionOptions)

// AccountStateMachine owns the account status graph and the timestamps
// that go with each status.
type AccountStateMachine interface {
	Transition(ctx context.Context, tx bun.IDB, actor ActorRef, account *Account, target AccountStatus, opts ...TransitionOption) (*Account, error)
	CanTransition(from, to AccountStatus) bool
}

// StateMachineOption customizes state machine construction.
type StateMachineOption func(*accountStateMachine)

// WithStateMachineClock injects a custom clock (useful for tests).
func WithStateMachineClock(clock Clock) StateMachineOption {
	return func(sm *accountStateMachine) {
		if clock != nil {
			sm.now = clock
		}
	}
}

// WithStateMachineActivitySink sets the ActivitySink used to publish lifecycle events.
func WithStateMachineActivitySink(sink ActivitySink) StateMachineOption {
	return func(sm *accountStateMachine) {
		sm.activitySink = normalizeActivitySink(sink)
	}
}

// WithStateMachineLogger overrides the logger used for sink failures.
func WithStateMachineLogger(logger Logger) StateMachineOption {
	return func(sm *accountStateMachine) {
		if logger != nil {
			sm.logger = logger
		}
	}
}

// WithTransitionReason sets the human-readable reason for the transition.
// Entering PENDING_DELETION stores it as the withdrawal reason.
func WithTransitionReason(reason *string) TransitionOption {
	return func(opts *transitionOptions) {
		opts.reason = reason
	}
}

// WithDeletionSchedule sets the deadline recorded when entering PENDING_DELETION.
func WithDeletionSchedule(at time.Time) TransitionOption {
	return func(opts *transitionOptions) {
		opts.deletionScheduledAt = &at
	}
}

// WithVerifiedEmail records the email verification time with the transition.
func WithVerifiedEmail(at time.Time) TransitionOption {
	return func(opts *transitionOptions) {
		opts.emailVerifiedAt = &at
	}
}

// NewAccountStateMachine returns the default implementation backed by accounts.
func NewAccountStateMachine(accounts Accounts, opts ...StateMachineOption) AccountStateMachine {
	sm := &accountStateMachine{
		accounts: accounts,
		transitions: map[AccountStatus]map[AccountStatus]struct{}{
			AccountStatusPending: {
				AccountStatusActive:          {},
				AccountStatusPendingDeletion: {},
			},
			AccountStatusActive: {
				AccountStatusInactive:        {},
				AccountStatusSuspended:       {},
				AccountStatusPendingDeletion: {},
			},
			AccountStatusInactive: {
				AccountStatusActive:          {},
				AccountStatusSuspended:       {},
				AccountStatusPendingDeletion: {},
			},
			AccountStatusSuspended: {
				AccountStatusActive:          {},
				AccountStatusInactive:        {},
				AccountStatusPendingDeletion: {},
			},
			AccountStatusPendingDeletion: {
				AccountStatusDeleted: {},
			},
		},
		now:          time.Now,
		activitySink: noopActivitySink{},
		logger:       defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(sm)
		}
	}

	return sm
}

type accountStateMachine struct {
	accounts     Accounts
	transitions  map[AccountStatus]map[AccountStatus]struct{}
	now          Clock
	activitySink ActivitySink
	logger       Logger
}

type transitionOptions struct {
	reason              *string
	deletionScheduledAt *time.Time
	emailVerifiedAt     *time.Time
}

// Transition persists the move of account to target using tx. The write is
// guarded by the status the account was read with, a concurrent change
// surfaces as ErrStatusConflict.
func (sm *accountStateMachine) Transition(ctx context.Context, tx bun.IDB, actor ActorRef, account *Account, target AccountStatus, opts ...TransitionOption) (*Account, error) {
	if account == nil {
		return nil, ErrInvalidTransition
	}

	account.EnsureStatus()
	from := account.Status

	if target == "" {
		return nil, ErrInvalidTransition
	}

	if from == target {
		return account, nil
	}

	if from == AccountStatusDeleted {
		return nil, ErrTerminalState
	}

	if !sm.CanTransition(from, target) {
		return nil, ErrInvalidTransition
	}

	options := &transitionOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}

	statusOpts, err := sm.buildStatusOptions(target, options)
	if err != nil {
		return nil, err
	}

	updated, err := sm.accounts.UpdateStatusTx(ctx, tx, account.ID, from, target, statusOpts...)
	if err != nil {
		return nil, err
	}

	metadata := map[string]any{}
	if options.reason != nil {
		metadata["reason"] = *options.reason
	}
	if options.deletionScheduledAt != nil {
		metadata["deletion_scheduled_at"] = options.deletionScheduledAt.UTC()
	}

	recordActivity(ctx, sm.activitySink, sm.logger, ActivityEvent{
		EventType:  ActivityEventAccountStatusChanged,
		Actor:      actor,
		AccountID:  account.ID.String(),
		FromStatus: from,
		ToStatus:   target,
		Metadata:   metadata,
		OccurredAt: sm.now(),
	})

	return updated, nil
}

func (sm *accountStateMachine) CanTransition(from, to AccountStatus) bool {
	if allowed, ok := sm.transitions[from]; ok {
		_, exists := allowed[to]
		return exists
	}
	return false
}

func (sm *accountStateMachine) buildStatusOptions(to AccountStatus, opts *transitionOptions) ([]StatusUpdateOption, error) {
	statusOpts := []StatusUpdateOption{}

	if opts.emailVerifiedAt != nil {
		statusOpts = append(statusOpts, WithEmailVerifiedAt(*opts.emailVerifiedAt))
	}

	switch to {
	case AccountStatusPendingDeletion:
		if opts.deletionScheduledAt == nil || !opts.deletionScheduledAt.After(sm.now()) {
			return nil, ErrInvalidTransition
		}
		statusOpts = append(statusOpts,
			WithDeletionScheduledAt(*opts.deletionScheduledAt),
			WithWithdrawalReason(opts.reason),
		)
	case AccountStatusDeleted:
		statusOpts = append(statusOpts, WithDeletedAt(sm.now()))
	}

	return statusOpts, nil
}
