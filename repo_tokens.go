package identity

import (
	"context"
	"database/sql"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type verificationTokens struct {
	db   *bun.DB
	kind VerificationKind
	now  Clock
}

var _ VerificationTokens = (*verificationTokens)(nil)

// NewEmailVerificationsRepository returns the store for email verification tokens
func NewEmailVerificationsRepository(db *bun.DB) VerificationTokens {
	return newVerificationTokensRepository(db, VerificationKindEmail)
}

// NewPasswordResetsRepository returns the store for password reset tokens
func NewPasswordResetsRepository(db *bun.DB) VerificationTokens {
	return newVerificationTokensRepository(db, VerificationKindPasswordReset)
}

func newVerificationTokensRepository(db *bun.DB, kind VerificationKind) *verificationTokens {
	return &verificationTokens{
		db:   db,
		kind: kind,
		now:  time.Now,
	}
}

func (r *verificationTokens) Kind() VerificationKind {
	return r.kind
}

func (r *verificationTokens) GetByToken(ctx context.Context, token string) (*VerificationToken, error) {
	return r.GetByTokenTx(ctx, r.db, token)
}

// GetByTokenTx looks the token up by the digest of its raw value, scoped to
// the store kind.
func (r *verificationTokens) GetByTokenTx(ctx context.Context, tx bun.IDB, token string) (*VerificationToken, error) {
	record := &VerificationToken{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.kind = ?", r.kind).
		Where("?TableAlias.token_hash = ?", HashVerificationToken(token)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"kind": r.kind,
				})
		}
		return nil, err
	}
	return record, nil
}

func (r *verificationTokens) GetLatestForAccountTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID) (*VerificationToken, error) {
	record := &VerificationToken{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.kind = ?", r.kind).
		Where("?TableAlias.account_id = ?", accountID).
		Order("created_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"kind":       r.kind,
					"account_id": accountID.String(),
				})
		}
		return nil, err
	}
	return record, nil
}

func (r *verificationTokens) CreateTx(ctx context.Context, tx bun.IDB, record *VerificationToken) (*VerificationToken, error) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	record.Kind = r.kind
	if record.CreatedAt.IsZero() {
		record.CreatedAt = r.now().UTC()
	}
	if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
		return nil, err
	}
	return record, nil
}

// ConsumeTx marks the token as used. Only one caller can consume a token
// before it expires, any later attempt gets ErrTokenConsumed.
func (r *verificationTokens) ConsumeTx(ctx context.Context, tx bun.IDB, id uuid.UUID, at time.Time) error {
	res, err := tx.NewUpdate().
		Model((*VerificationToken)(nil)).
		Set("used_at = ?", at.UTC()).
		Where("id = ?", id).
		Where("kind = ?", r.kind).
		Where("used_at IS NULL").
		Where("expires_at > ?", at.UTC()).
		Exec(ctx)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrTokenConsumed
	}
	return nil
}

func expectAffected(res sql.Result, id uuid.UUID) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": id.String(),
			})
	}
	return nil
}
