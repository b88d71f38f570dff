package identity_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/goliatone/go-identity"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"golang.org/x/crypto/bcrypt"
)

type testLogger struct{}

func (testLogger) Debug(string, ...any) {}
func (testLogger) Info(string, ...any)  {}
func (testLogger) Warn(string, ...any)  {}
func (testLogger) Error(string, ...any) {}

func fixedClock(t time.Time) identity.Clock {
	return func() time.Time { return t }
}

// fastHasher keeps bcrypt out of the test critical path
func fastHasher() identity.PasswordHasher {
	return identity.NewBcryptHasher(bcrypt.MinCost)
}

// MockRepositoryManager implements identity.RepositoryManager
type MockRepositoryManager struct {
	mock.Mock
}

func (m *MockRepositoryManager) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	args := m.Called(ctx, opts, f)
	if rf, ok := args.Get(0).(func(context.Context, *sql.TxOptions, func(context.Context, bun.Tx) error) error); ok {
		return rf(ctx, opts, f)
	}
	return args.Error(0)
}

func (m *MockRepositoryManager) Validate() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockRepositoryManager) MustValidate() {
	m.Called()
}

func (m *MockRepositoryManager) Accounts() identity.Accounts {
	args := m.Called()
	return args.Get(0).(identity.Accounts)
}

func (m *MockRepositoryManager) EmailVerifications() identity.VerificationTokens {
	args := m.Called()
	return args.Get(0).(identity.VerificationTokens)
}

func (m *MockRepositoryManager) PasswordResets() identity.VerificationTokens {
	args := m.Called()
	return args.Get(0).(identity.VerificationTokens)
}

// runTx makes RunInTx execute the unit of work with a zero transaction and
// return whatever it returns.
func (m *MockRepositoryManager) runTx() *mock.Call {
	return m.On("RunInTx", mock.Anything, (*sql.TxOptions)(nil), mock.Anything).
		Return(func(ctx context.Context, _ *sql.TxOptions, f func(context.Context, bun.Tx) error) error {
			var tx bun.Tx
			return f(ctx, tx)
		})
}

// MockAccounts implements identity.Accounts
type MockAccounts struct {
	mock.Mock
}

func (m *MockAccounts) GetByID(ctx context.Context, id uuid.UUID) (*identity.Account, error) {
	args := m.Called(ctx, id)
	account, _ := args.Get(0).(*identity.Account)
	return account, args.Error(1)
}

func (m *MockAccounts) GetByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*identity.Account, error) {
	args := m.Called(ctx, tx, id)
	account, _ := args.Get(0).(*identity.Account)
	return account, args.Error(1)
}

func (m *MockAccounts) GetByEmail(ctx context.Context, email string) (*identity.Account, error) {
	args := m.Called(ctx, email)
	account, _ := args.Get(0).(*identity.Account)
	return account, args.Error(1)
}

func (m *MockAccounts) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*identity.Account, error) {
	args := m.Called(ctx, tx, email)
	account, _ := args.Get(0).(*identity.Account)
	return account, args.Error(1)
}

func (m *MockAccounts) ExistsByEmailTx(ctx context.Context, tx bun.IDB, email string) (bool, error) {
	args := m.Called(ctx, tx, email)
	return args.Bool(0), args.Error(1)
}

func (m *MockAccounts) CreateTx(ctx context.Context, tx bun.IDB, record *identity.Account) (*identity.Account, error) {
	args := m.Called(ctx, tx, record)
	if rf, ok := args.Get(0).(func(*identity.Account) *identity.Account); ok {
		return rf(record), args.Error(1)
	}
	account, _ := args.Get(0).(*identity.Account)
	return account, args.Error(1)
}

func (m *MockAccounts) UpdateTx(ctx context.Context, tx bun.IDB, record *identity.Account) (*identity.Account, error) {
	args := m.Called(ctx, tx, record)
	if rf, ok := args.Get(0).(func(*identity.Account) *identity.Account); ok {
		return rf(record), args.Error(1)
	}
	account, _ := args.Get(0).(*identity.Account)
	return account, args.Error(1)
}

func (m *MockAccounts) UpdatePasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error {
	args := m.Called(ctx, tx, id, passwordHash)
	return args.Error(0)
}

func (m *MockAccounts) UpdateStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, from, to identity.AccountStatus, opts ...identity.StatusUpdateOption) (*identity.Account, error) {
	args := m.Called(ctx, tx, id, from, to, opts)
	account, _ := args.Get(0).(*identity.Account)
	return account, args.Error(1)
}

// MockVerificationTokens implements identity.VerificationTokens
type MockVerificationTokens struct {
	mock.Mock
	kind identity.VerificationKind
}

func (m *MockVerificationTokens) Kind() identity.VerificationKind {
	return m.kind
}

func (m *MockVerificationTokens) GetByToken(ctx context.Context, token string) (*identity.VerificationToken, error) {
	args := m.Called(ctx, token)
	record, _ := args.Get(0).(*identity.VerificationToken)
	return record, args.Error(1)
}

func (m *MockVerificationTokens) GetByTokenTx(ctx context.Context, tx bun.IDB, token string) (*identity.VerificationToken, error) {
	args := m.Called(ctx, tx, token)
	record, _ := args.Get(0).(*identity.VerificationToken)
	return record, args.Error(1)
}

func (m *MockVerificationTokens) GetLatestForAccountTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID) (*identity.VerificationToken, error) {
	args := m.Called(ctx, tx, accountID)
	record, _ := args.Get(0).(*identity.VerificationToken)
	return record, args.Error(1)
}

func (m *MockVerificationTokens) CreateTx(ctx context.Context, tx bun.IDB, record *identity.VerificationToken) (*identity.VerificationToken, error) {
	args := m.Called(ctx, tx, record)
	if rf, ok := args.Get(0).(func(*identity.VerificationToken) *identity.VerificationToken); ok {
		return rf(record), args.Error(1)
	}
	created, _ := args.Get(0).(*identity.VerificationToken)
	return created, args.Error(1)
}

func (m *MockVerificationTokens) ConsumeTx(ctx context.Context, tx bun.IDB, id uuid.UUID, at time.Time) error {
	args := m.Called(ctx, tx, id, at)
	return args.Error(0)
}

// MockNotifier implements identity.Notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) NotifyEmailVerification(ctx context.Context, email, token string) error {
	args := m.Called(ctx, email, token)
	return args.Error(0)
}

func (m *MockNotifier) NotifyPasswordReset(ctx context.Context, email, token string) error {
	args := m.Called(ctx, email, token)
	return args.Error(0)
}

func (m *MockNotifier) NotifyWithdrawal(ctx context.Context, email string, scheduledDeletionAt time.Time) error {
	args := m.Called(ctx, email, scheduledDeletionAt)
	return args.Error(0)
}

// MockActivitySink implements identity.ActivitySink
type MockActivitySink struct {
	mock.Mock
}

func (m *MockActivitySink) Record(ctx context.Context, event identity.ActivityEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

type capturingSink struct {
	events []identity.ActivityEvent
}

func (c *capturingSink) Record(ctx context.Context, evt identity.ActivityEvent) error {
	c.events = append(c.events, evt)
	return nil
}

func (c *capturingSink) types() []identity.ActivityEventType {
	out := make([]identity.ActivityEventType, 0, len(c.events))
	for _, evt := range c.events {
		out = append(out, evt.EventType)
	}
	return out
}

type mockHarness struct {
	repo     *MockRepositoryManager
	accounts *MockAccounts
	emails   *MockVerificationTokens
	resets   *MockVerificationTokens
	notifier *MockNotifier
}

func newMockHarness() *mockHarness {
	h := &mockHarness{
		repo:     &MockRepositoryManager{},
		accounts: &MockAccounts{},
		emails:   &MockVerificationTokens{kind: identity.VerificationKindEmail},
		resets:   &MockVerificationTokens{kind: identity.VerificationKindPasswordReset},
		notifier: &MockNotifier{},
	}
	h.repo.On("Accounts").Return(h.accounts).Maybe()
	h.repo.On("EmailVerifications").Return(h.emails).Maybe()
	h.repo.On("PasswordResets").Return(h.resets).Maybe()
	return h
}

func (h *mockHarness) assertExpectations(t mock.TestingT) {
	h.repo.AssertExpectations(t)
	h.accounts.AssertExpectations(t)
	h.emails.AssertExpectations(t)
	h.resets.AssertExpectations(t)
	h.notifier.AssertExpectations(t)
}

func echoAccount(record *identity.Account) *identity.Account {
	return record
}

func echoToken(record *identity.VerificationToken) *identity.VerificationToken {
	return record
}

func newTestService(t *testing.T, h *mockHarness, now time.Time, opts ...identity.ServiceOption) (*identity.Service, *identity.TokenService) {
	t.Helper()
	tokens := newTestTokenService(t, now)
	opts = append([]identity.ServiceOption{
		identity.WithClock(fixedClock(now)),
		identity.WithLogger(testLogger{}),
		identity.WithPasswordHasher(fastHasher()),
		identity.WithNotifier(h.notifier),
	}, opts...)
	return identity.NewService(h.repo, tokens, opts...), tokens
}

func mustHash(t *testing.T, password string) string {
	t.Helper()
	hash, err := fastHasher().HashPassword(password)
	require.NoError(t, err)
	return hash
}
