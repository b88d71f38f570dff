package identity

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const pgUniqueViolation = "23505"

type accounts struct {
	db  *bun.DB
	now Clock
}

var _ Accounts = (*accounts)(nil)

// AccountsOption customizes the accounts repository
type AccountsOption func(*accounts)

// WithAccountsClock overrides the clock used for created/updated timestamps
func WithAccountsClock(clock Clock) AccountsOption {
	return func(a *accounts) {
		if clock != nil {
			a.now = clock
		}
	}
}

// NewAccountsRepository returns a bun backed account store
func NewAccountsRepository(db *bun.DB, opts ...AccountsOption) Accounts {
	repo := &accounts{
		db:  db,
		now: time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repo)
		}
	}
	return repo
}

func (a *accounts) GetByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	return a.GetByIDTx(ctx, a.db, id)
}

func (a *accounts) GetByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Account, error) {
	record := &Account{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"id": id.String(),
				})
		}
		return nil, err
	}
	return record, nil
}

func (a *accounts) GetByEmail(ctx context.Context, email string) (*Account, error) {
	return a.GetByEmailTx(ctx, a.db, email)
}

func (a *accounts) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*Account, error) {
	record := &Account{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.email = ?", strings.TrimSpace(email)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"email": email,
				})
		}
		return nil, err
	}
	return record, nil
}

func (a *accounts) ExistsByEmailTx(ctx context.Context, tx bun.IDB, email string) (bool, error) {
	return tx.NewSelect().
		Model((*Account)(nil)).
		Where("?TableAlias.email = ?", strings.TrimSpace(email)).
		Exists(ctx)
}

func (a *accounts) CreateTx(ctx context.Context, tx bun.IDB, record *Account) (*Account, error) {
	a.prepareDefaults(record)
	if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
		return nil, err
	}
	return record, nil
}

func (a *accounts) UpdateTx(ctx context.Context, tx bun.IDB, record *Account) (*Account, error) {
	record.UpdatedAt = a.now().UTC()
	res, err := tx.NewUpdate().
		Model(record).
		ExcludeColumn("id", "created_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return nil, err
	}
	if err := expectAffected(res, record.ID); err != nil {
		return nil, err
	}
	return record, nil
}

func (a *accounts) UpdatePasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error {
	res, err := tx.NewUpdate().
		Model((*Account)(nil)).
		Set("password_hash = ?", passwordHash).
		Set("updated_at = ?", a.now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectAffected(res, id)
}

// UpdateStatusTx moves the account from one status to another. The update
// only applies while the stored status still equals from, otherwise
// ErrStatusConflict is returned and nothing is written.
func (a *accounts) UpdateStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, from, to AccountStatus, opts ...StatusUpdateOption) (*Account, error) {
	update := &statusUpdate{}
	for _, opt := range opts {
		if opt != nil {
			opt(update)
		}
	}

	q := tx.NewUpdate().
		Model((*Account)(nil)).
		Set("status = ?", to).
		Set("updated_at = ?", a.now().UTC())

	if update.emailVerifiedAt != nil {
		q = q.Set("email_verified_at = ?", update.emailVerifiedAt.UTC())
	}
	if update.deletionScheduledAt != nil {
		q = q.Set("deletion_scheduled_at = ?", update.deletionScheduledAt.UTC())
	}
	if update.reasonSet {
		q = q.Set("withdrawal_reason = ?", update.withdrawalReason)
	}
	if update.deletedAt != nil {
		q = q.Set("deleted_at = ?", update.deletedAt.UTC())
	}

	res, err := q.
		Where("id = ?", id).
		Where("status = ?", from).
		Exec(ctx)
	if err != nil {
		return nil, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, ErrStatusConflict
	}

	return a.GetByIDTx(ctx, tx, id)
}

func (a *accounts) prepareDefaults(record *Account) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	record.EnsureStatus()
	now := a.now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = record.CreatedAt
	}
}

// StatusUpdateOption sets extra columns persisted with a status change
type StatusUpdateOption func(*statusUpdate)

type statusUpdate struct {
	emailVerifiedAt     *time.Time
	deletionScheduledAt *time.Time
	deletedAt           *time.Time
	withdrawalReason    *string
	reasonSet           bool
}

// WithEmailVerifiedAt records the email verification time
func WithEmailVerifiedAt(at time.Time) StatusUpdateOption {
	return func(u *statusUpdate) {
		u.emailVerifiedAt = &at
	}
}

// WithDeletionScheduledAt records when a withdrawn account is due for deletion
func WithDeletionScheduledAt(at time.Time) StatusUpdateOption {
	return func(u *statusUpdate) {
		u.deletionScheduledAt = &at
	}
}

// WithDeletedAt records the logical deletion time
func WithDeletedAt(at time.Time) StatusUpdateOption {
	return func(u *statusUpdate) {
		u.deletedAt = &at
	}
}

// WithWithdrawalReason stores the free text withdrawal reason, nil clears it
func WithWithdrawalReason(reason *string) StatusUpdateOption {
	return func(u *statusUpdate) {
		u.withdrawalReason = reason
		u.reasonSet = true
	}
}

// IsUniqueViolation reports whether err comes from a unique constraint.
// Postgres and the pure Go sqlite driver are matched on their error codes,
// the cgo sqlite driver goes through the go-repository-bun error mapper.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if goerrors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}

	var liteErr *sqlite.Error
	if goerrors.As(err, &liteErr) {
		return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}

	return repository.IsDuplicatedKey(repository.MapDatabaseError(err, "sqlite3"))
}
