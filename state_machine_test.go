package identity_test

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-identity"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func optionCount(n int) any {
	return mock.MatchedBy(func(opts []identity.StatusUpdateOption) bool {
		return len(opts) == n
	})
}

func TestAccountStateMachineWithdrawalSchedulesDeletion(t *testing.T) {
	repo := &MockAccounts{}
	sink := &capturingSink{}
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	scheduled := now.Add(30 * 24 * time.Hour)
	reason := "no longer needed"

	account := &identity.Account{ID: uuid.New(), Status: identity.AccountStatusActive}
	expected := &identity.Account{
		ID:                  account.ID,
		Status:              identity.AccountStatusPendingDeletion,
		DeletionScheduledAt: &scheduled,
		WithdrawalReason:    &reason,
	}

	repo.On("UpdateStatusTx", mock.Anything, mock.Anything, account.ID,
		identity.AccountStatusActive, identity.AccountStatusPendingDeletion, optionCount(2)).
		Return(expected, nil).Once()

	sm := identity.NewAccountStateMachine(repo,
		identity.WithStateMachineClock(fixedClock(now)),
		identity.WithStateMachineActivitySink(sink),
		identity.WithStateMachineLogger(testLogger{}),
	)

	result, err := sm.Transition(context.Background(), nil, identity.SystemActor, account,
		identity.AccountStatusPendingDeletion,
		identity.WithDeletionSchedule(scheduled),
		identity.WithTransitionReason(&reason),
	)
	require.NoError(t, err)
	assert.Equal(t, identity.AccountStatusPendingDeletion, result.Status)
	require.NotNil(t, result.DeletionScheduledAt)
	assert.True(t, result.DeletionScheduledAt.After(now))

	require.Len(t, sink.events, 1)
	evt := sink.events[0]
	assert.Equal(t, identity.ActivityEventAccountStatusChanged, evt.EventType)
	assert.Equal(t, identity.AccountStatusActive, evt.FromStatus)
	assert.Equal(t, identity.AccountStatusPendingDeletion, evt.ToStatus)
	assert.Equal(t, reason, evt.Metadata["reason"])
	assert.Equal(t, now, evt.OccurredAt)
	repo.AssertExpectations(t)
}

func TestAccountStateMachineRequiresFutureDeletionSchedule(t *testing.T) {
	repo := &MockAccounts{}
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	account := &identity.Account{ID: uuid.New(), Status: identity.AccountStatusActive}

	sm := identity.NewAccountStateMachine(repo, identity.WithStateMachineClock(fixedClock(now)))

	_, err := sm.Transition(context.Background(), nil, identity.SystemActor, account, identity.AccountStatusPendingDeletion)
	assert.ErrorIs(t, err, identity.ErrInvalidTransition)

	_, err = sm.Transition(context.Background(), nil, identity.SystemActor, account,
		identity.AccountStatusPendingDeletion,
		identity.WithDeletionSchedule(now),
	)
	assert.ErrorIs(t, err, identity.ErrInvalidTransition)

	repo.AssertNotCalled(t, "UpdateStatusTx", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAccountStateMachineRejectsInvalidTransition(t *testing.T) {
	repo := &MockAccounts{}
	sm := identity.NewAccountStateMachine(repo)

	tests := []struct {
		name   string
		from   identity.AccountStatus
		to     identity.AccountStatus
		expect error
	}{
		{"pending deletion cannot be undone", identity.AccountStatusPendingDeletion, identity.AccountStatusActive, identity.ErrInvalidTransition},
		{"pending cannot be suspended", identity.AccountStatusPending, identity.AccountStatusSuspended, identity.ErrInvalidTransition},
		{"deleted is terminal", identity.AccountStatusDeleted, identity.AccountStatusActive, identity.ErrTerminalState},
		{"active cannot skip to deleted", identity.AccountStatusActive, identity.AccountStatusDeleted, identity.ErrInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			account := &identity.Account{ID: uuid.New(), Status: tt.from}
			_, err := sm.Transition(context.Background(), nil, identity.SystemActor, account, tt.to)
			assert.ErrorIs(t, err, tt.expect)
		})
	}

	repo.AssertNotCalled(t, "UpdateStatusTx", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAccountStateMachineActivationRecordsVerification(t *testing.T) {
	repo := &MockAccounts{}
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	account := &identity.Account{ID: uuid.New(), Status: identity.AccountStatusPending}

	repo.On("UpdateStatusTx", mock.Anything, mock.Anything, account.ID,
		identity.AccountStatusPending, identity.AccountStatusActive, optionCount(1)).
		Return(&identity.Account{ID: account.ID, Status: identity.AccountStatusActive, EmailVerifiedAt: &now}, nil).Once()

	sm := identity.NewAccountStateMachine(repo, identity.WithStateMachineClock(fixedClock(now)))

	result, err := sm.Transition(context.Background(), nil, identity.SystemActor, account,
		identity.AccountStatusActive,
		identity.WithVerifiedEmail(now),
	)
	require.NoError(t, err)
	assert.True(t, result.IsActive())
	assert.True(t, result.IsEmailVerified())
	repo.AssertExpectations(t)
}

func TestAccountStateMachineDeletionSetsTimestamp(t *testing.T) {
	repo := &MockAccounts{}
	now := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	account := &identity.Account{ID: uuid.New(), Status: identity.AccountStatusPendingDeletion}

	repo.On("UpdateStatusTx", mock.Anything, mock.Anything, account.ID,
		identity.AccountStatusPendingDeletion, identity.AccountStatusDeleted, optionCount(1)).
		Return(&identity.Account{ID: account.ID, Status: identity.AccountStatusDeleted, DeletedAt: &now}, nil).Once()

	sm := identity.NewAccountStateMachine(repo, identity.WithStateMachineClock(fixedClock(now)))

	result, err := sm.Transition(context.Background(), nil, identity.SystemActor, account, identity.AccountStatusDeleted)
	require.NoError(t, err)
	assert.Equal(t, identity.AccountStatusDeleted, result.Status)
	require.NotNil(t, result.DeletedAt)
	repo.AssertExpectations(t)
}

func TestAccountStateMachineSameStatusIsNoop(t *testing.T) {
	repo := &MockAccounts{}
	sm := identity.NewAccountStateMachine(repo)
	account := &identity.Account{ID: uuid.New(), Status: identity.AccountStatusActive}

	result, err := sm.Transition(context.Background(), nil, identity.SystemActor, account, identity.AccountStatusActive)
	require.NoError(t, err)
	assert.Same(t, account, result)
	repo.AssertNotCalled(t, "UpdateStatusTx", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAccountStateMachinePropagatesStatusConflict(t *testing.T) {
	repo := &MockAccounts{}
	sink := &capturingSink{}
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	account := &identity.Account{ID: uuid.New(), Status: identity.AccountStatusActive}

	repo.On("UpdateStatusTx", mock.Anything, mock.Anything, account.ID,
		identity.AccountStatusActive, identity.AccountStatusPendingDeletion, mock.Anything).
		Return(nil, identity.ErrStatusConflict).Once()

	sm := identity.NewAccountStateMachine(repo,
		identity.WithStateMachineClock(fixedClock(now)),
		identity.WithStateMachineActivitySink(sink),
	)

	_, err := sm.Transition(context.Background(), nil, identity.SystemActor, account,
		identity.AccountStatusPendingDeletion,
		identity.WithDeletionSchedule(now.Add(time.Hour)),
	)
	assert.ErrorIs(t, err, identity.ErrStatusConflict)
	assert.Empty(t, sink.events)
	repo.AssertExpectations(t)
}

func TestAccountStateMachineCanTransition(t *testing.T) {
	sm := identity.NewAccountStateMachine(&MockAccounts{})

	for _, from := range []identity.AccountStatus{
		identity.AccountStatusPending,
		identity.AccountStatusActive,
		identity.AccountStatusInactive,
		identity.AccountStatusSuspended,
	} {
		assert.True(t, sm.CanTransition(from, identity.AccountStatusPendingDeletion), from)
	}

	assert.False(t, sm.CanTransition(identity.AccountStatusPendingDeletion, identity.AccountStatusPendingDeletion))
	assert.False(t, sm.CanTransition(identity.AccountStatusDeleted, identity.AccountStatusPendingDeletion))
	assert.True(t, sm.CanTransition(identity.AccountStatusPendingDeletion, identity.AccountStatusDeleted))
}
