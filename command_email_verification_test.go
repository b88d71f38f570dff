package identity_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-identity"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestVerifyEmailActivatesPendingAccount(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	h := newMockHarness()
	sink := &capturingSink{}
	svc, _ := newTestService(t, h, now, identity.WithActivitySink(sink))

	account := &identity.Account{ID: uuid.New(), Email: "a@x.com", Status: identity.AccountStatusPending}
	token := &identity.VerificationToken{
		ID:        uuid.New(),
		Kind:      identity.VerificationKindEmail,
		AccountID: account.ID,
		ExpiresAt: now.Add(time.Hour),
	}

	h.repo.runTx().Once()
	h.emails.On("GetByTokenTx", mock.Anything, mock.Anything, "raw-token").Return(token, nil).Once()
	h.emails.On("ConsumeTx", mock.Anything, mock.Anything, token.ID, now).Return(nil).Once()
	h.accounts.On("GetByIDTx", mock.Anything, mock.Anything, account.ID).Return(account, nil).Once()
	h.accounts.On("UpdateStatusTx", mock.Anything, mock.Anything, account.ID,
		identity.AccountStatusPending, identity.AccountStatusActive, optionCount(1)).
		Return(&identity.Account{ID: account.ID, Status: identity.AccountStatusActive, EmailVerifiedAt: &now}, nil).Once()

	ok, err := svc.VerifyEmail(context.Background(), identity.VerifyEmailMessage{Token: "raw-token"})
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, []identity.ActivityEventType{
		identity.ActivityEventAccountStatusChanged,
		identity.ActivityEventEmailVerified,
	}, sink.types())
	h.accounts.AssertNotCalled(t, "UpdateTx", mock.Anything, mock.Anything, mock.Anything)
	h.assertExpectations(t)
}

func TestVerifyEmailLeavesNonPendingStatusUntouched(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	h := newMockHarness()
	svc, _ := newTestService(t, h, now)

	account := &identity.Account{ID: uuid.New(), Email: "a@x.com", Status: identity.AccountStatusSuspended}
	token := &identity.VerificationToken{ID: uuid.New(), AccountID: account.ID, ExpiresAt: now.Add(time.Hour)}

	var updated *identity.Account
	h.repo.runTx().Once()
	h.emails.On("GetByTokenTx", mock.Anything, mock.Anything, "raw-token").Return(token, nil).Once()
	h.emails.On("ConsumeTx", mock.Anything, mock.Anything, token.ID, now).Return(nil).Once()
	h.accounts.On("GetByIDTx", mock.Anything, mock.Anything, account.ID).Return(account, nil).Once()
	h.accounts.On("UpdateTx", mock.Anything, mock.Anything, account).
		Return(func(record *identity.Account) *identity.Account {
			updated = record
			return record
		}, nil).Once()

	ok, err := svc.VerifyEmail(context.Background(), identity.VerifyEmailMessage{Token: "raw-token"})
	require.NoError(t, err)
	assert.True(t, ok)

	require.NotNil(t, updated)
	assert.Equal(t, identity.AccountStatusSuspended, updated.Status)
	require.NotNil(t, updated.EmailVerifiedAt)
	assert.Equal(t, now, *updated.EmailVerifiedAt)
	h.accounts.AssertNotCalled(t, "UpdateStatusTx", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	h.assertExpectations(t)
}

func TestVerifyEmailTokenFailures(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	usedAt := now.Add(-time.Minute)
	accountID := uuid.New()

	tests := []struct {
		name    string
		token   *identity.VerificationToken
		lookup  error
		consume error
		expect  error
	}{
		{
			name:   "unknown token",
			lookup: repository.NewRecordNotFound(),
			expect: identity.ErrInvalidToken,
		},
		{
			name:   "expired token",
			token:  &identity.VerificationToken{ID: uuid.New(), AccountID: accountID, ExpiresAt: now.Add(-time.Second)},
			expect: identity.ErrTokenExpiredOrUsed,
		},
		{
			name:   "used token",
			token:  &identity.VerificationToken{ID: uuid.New(), AccountID: accountID, ExpiresAt: now.Add(time.Hour), UsedAt: &usedAt},
			expect: identity.ErrTokenExpiredOrUsed,
		},
		{
			name:    "consumed concurrently",
			token:   &identity.VerificationToken{ID: uuid.New(), AccountID: accountID, ExpiresAt: now.Add(time.Hour)},
			consume: identity.ErrTokenConsumed,
			expect:  identity.ErrTokenExpiredOrUsed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newMockHarness()
			svc, _ := newTestService(t, h, now)

			h.repo.runTx().Once()
			h.emails.On("GetByTokenTx", mock.Anything, mock.Anything, "raw-token").Return(tt.token, tt.lookup).Once()
			if tt.consume != nil {
				h.emails.On("ConsumeTx", mock.Anything, mock.Anything, tt.token.ID, now).Return(tt.consume).Once()
			}

			ok, err := svc.VerifyEmail(context.Background(), identity.VerifyEmailMessage{Token: "raw-token"})
			assert.False(t, ok)
			assert.Same(t, tt.expect, err)
			h.accounts.AssertNotCalled(t, "GetByIDTx", mock.Anything, mock.Anything, mock.Anything)
			h.assertExpectations(t)
		})
	}
}

func TestResendVerification(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("unknown email", func(t *testing.T) {
		h := newMockHarness()
		svc, _ := newTestService(t, h, now)

		h.repo.runTx().Once()
		h.accounts.On("GetByEmailTx", mock.Anything, mock.Anything, "ghost@x.com").
			Return(nil, repository.NewRecordNotFound()).Once()

		_, err := svc.ResendVerification(context.Background(), identity.ResendVerificationMessage{Email: "ghost@x.com"})
		assert.Same(t, identity.ErrNotFound, err)
		h.assertExpectations(t)
	})

	t.Run("already verified", func(t *testing.T) {
		h := newMockHarness()
		svc, _ := newTestService(t, h, now)
		verified := now.Add(-time.Hour)

		h.repo.runTx().Once()
		h.accounts.On("GetByEmailTx", mock.Anything, mock.Anything, "a@x.com").
			Return(&identity.Account{ID: uuid.New(), Email: "a@x.com", EmailVerifiedAt: &verified}, nil).Once()

		_, err := svc.ResendVerification(context.Background(), identity.ResendVerificationMessage{Email: "a@x.com"})
		assert.Same(t, identity.ErrAlreadyVerified, err)
		h.emails.AssertNotCalled(t, "CreateTx", mock.Anything, mock.Anything, mock.Anything)
		h.assertExpectations(t)
	})

	t.Run("issues a new token", func(t *testing.T) {
		h := newMockHarness()
		svc, _ := newTestService(t, h, now)
		account := &identity.Account{ID: uuid.New(), Email: "a@x.com", Status: identity.AccountStatusPending}

		h.repo.runTx().Once()
		h.accounts.On("GetByEmailTx", mock.Anything, mock.Anything, "a@x.com").Return(account, nil).Once()
		h.emails.On("GetLatestForAccountTx", mock.Anything, mock.Anything, account.ID).
			Return(&identity.VerificationToken{ID: uuid.New(), AccountID: account.ID, ExpiresAt: now.Add(time.Hour)}, nil).Once()
		h.emails.On("CreateTx", mock.Anything, mock.Anything, mock.MatchedBy(func(record *identity.VerificationToken) bool {
			return record.AccountID == account.ID && record.ExpiresAt.Equal(now.Add(24*time.Hour))
		})).Return(echoToken, nil).Once()
		h.notifier.On("NotifyEmailVerification", mock.Anything, "a@x.com", mock.Anything).Return(nil).Once()

		raw, err := svc.ResendVerification(context.Background(), identity.ResendVerificationMessage{Email: "a@x.com"})
		require.NoError(t, err)
		assert.NotEmpty(t, raw)
		h.assertExpectations(t)
	})

	t.Run("no previous token", func(t *testing.T) {
		h := newMockHarness()
		svc, _ := newTestService(t, h, now)
		account := &identity.Account{ID: uuid.New(), Email: "a@x.com", Status: identity.AccountStatusPending}

		h.repo.runTx().Once()
		h.accounts.On("GetByEmailTx", mock.Anything, mock.Anything, "a@x.com").Return(account, nil).Once()
		h.emails.On("GetLatestForAccountTx", mock.Anything, mock.Anything, account.ID).
			Return(nil, repository.NewRecordNotFound()).Once()
		h.emails.On("CreateTx", mock.Anything, mock.Anything, mock.Anything).Return(echoToken, nil).Once()
		h.notifier.On("NotifyEmailVerification", mock.Anything, "a@x.com", mock.Anything).Return(nil).Once()

		_, err := svc.ResendVerification(context.Background(), identity.ResendVerificationMessage{Email: "a@x.com"})
		require.NoError(t, err)
		h.assertExpectations(t)
	})

	t.Run("token store failure", func(t *testing.T) {
		h := newMockHarness()
		svc, _ := newTestService(t, h, now)
		account := &identity.Account{ID: uuid.New(), Email: "a@x.com", Status: identity.AccountStatusPending}

		h.repo.runTx().Once()
		h.accounts.On("GetByEmailTx", mock.Anything, mock.Anything, "a@x.com").Return(account, nil).Once()
		h.emails.On("GetLatestForAccountTx", mock.Anything, mock.Anything, account.ID).
			Return(nil, errors.New("disk I/O error")).Once()

		_, err := svc.ResendVerification(context.Background(), identity.ResendVerificationMessage{Email: "a@x.com"})
		assert.Equal(t, identity.TextCodeInternal, identity.ErrorTag(err))
		h.emails.AssertNotCalled(t, "CreateTx", mock.Anything, mock.Anything, mock.Anything)
		h.notifier.AssertNotCalled(t, "NotifyEmailVerification", mock.Anything, mock.Anything, mock.Anything)
		h.assertExpectations(t)
	})
}

func TestIssueEmailVerificationSurvivesNotifierFailure(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	h := newMockHarness()
	svc, _ := newTestService(t, h, now, identity.WithEmailVerificationTTL(2*time.Hour))
	account := &identity.Account{ID: uuid.New(), Email: "a@x.com"}

	h.repo.runTx().Once()
	h.accounts.On("GetByIDTx", mock.Anything, mock.Anything, account.ID).Return(account, nil).Once()
	h.emails.On("CreateTx", mock.Anything, mock.Anything, mock.MatchedBy(func(record *identity.VerificationToken) bool {
		return record.ExpiresAt.Equal(now.Add(2 * time.Hour))
	})).Return(echoToken, nil).Once()
	h.notifier.On("NotifyEmailVerification", mock.Anything, "a@x.com", mock.Anything).
		Return(errors.New("smtp unavailable")).Once()

	raw, err := svc.IssueEmailVerification(context.Background(), account.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, raw)
	h.assertExpectations(t)
}

func TestIssueEmailVerificationUnknownAccount(t *testing.T) {
	h := newMockHarness()
	svc, _ := newTestService(t, h, time.Now())
	id := uuid.New()

	h.repo.runTx().Once()
	h.accounts.On("GetByIDTx", mock.Anything, mock.Anything, id).Return(nil, repository.NewRecordNotFound()).Once()

	_, err := svc.IssueEmailVerification(context.Background(), id)
	assert.Same(t, identity.ErrNotFound, err)
	h.assertExpectations(t)
}
