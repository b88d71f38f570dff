package identity

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/uptrace/bun"
)

type mngr struct {
	db                 *bun.DB
	accounts           Accounts
	emailVerifications VerificationTokens
	passwordResets     VerificationTokens
}

// NewRepositoryManager returns a manager backed by db
func NewRepositoryManager(db *bun.DB, opts ...AccountsOption) RepositoryManager {
	return &mngr{
		db:                 db,
		accounts:           NewAccountsRepository(db, opts...),
		emailVerifications: NewEmailVerificationsRepository(db),
		passwordResets:     NewPasswordResetsRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.db == nil {
		return errors.New("repository manager requires a database")
	}

	if m.accounts == nil {
		return errors.New("repository accounts should be initialized")
	}

	if m.emailVerifications == nil {
		return errors.New("repository emailVerifications should be initialized")
	}

	if m.passwordResets == nil {
		return errors.New("repository passwordResets should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Accounts() Accounts {
	return m.accounts
}

func (m mngr) EmailVerifications() VerificationTokens {
	return m.emailVerifications
}

func (m mngr) PasswordResets() VerificationTokens {
	return m.passwordResets
}
