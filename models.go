package identity

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AccountStatus is the lifecycle state of an account
type AccountStatus string

const (
	// AccountStatusPending is the initial state, email not yet verified
	AccountStatusPending AccountStatus = "PENDING"
	// AccountStatusActive can log in
	AccountStatusActive AccountStatus = "ACTIVE"
	// AccountStatusInactive is a dormant account
	AccountStatusInactive AccountStatus = "INACTIVE"
	// AccountStatusSuspended was blocked by an operator
	AccountStatusSuspended AccountStatus = "SUSPENDED"
	// AccountStatusPendingDeletion has been withdrawn and waits for the grace period
	AccountStatusPendingDeletion AccountStatus = "PENDING_DELETION"
	// AccountStatusDeleted is logically deleted, terminal
	AccountStatusDeleted AccountStatus = "DELETED"
)

var accountStatuses = []AccountStatus{
	AccountStatusPending,
	AccountStatusActive,
	AccountStatusInactive,
	AccountStatusSuspended,
	AccountStatusPendingDeletion,
	AccountStatusDeleted,
}

// ParseAccountStatus resolves a status by name, case insensitive.
// An empty value resolves to AccountStatusPending.
func ParseAccountStatus(value string) (AccountStatus, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return AccountStatusPending, nil
	}

	for _, status := range accountStatuses {
		if strings.EqualFold(string(status), value) {
			return status, nil
		}
	}

	return "", ErrUnknownStatus
}

// IsRetiring reports whether the status belongs to the withdrawal flow
func (s AccountStatus) IsRetiring() bool {
	return s == AccountStatusPendingDeletion || s == AccountStatusDeleted
}

func (s AccountStatus) String() string {
	return string(s)
}

// RoleUser is the role bound to every self registered account
const RoleUser = "USER"

// LoginRoleUser is the role name reported in the login user projection
const LoginRoleUser = "user"

// Account is the account model
type Account struct {
	bun.BaseModel       `bun:"table:accounts,alias:acc"`
	ID                  uuid.UUID     `bun:"id,pk,type:uuid" json:"id"`
	Email               string        `bun:"email,notnull,unique" json:"email"`
	PasswordHash        string        `bun:"password_hash,notnull" json:"-"`
	FirstName           string        `bun:"first_name,notnull" json:"first_name"`
	LastName            string        `bun:"last_name,notnull" json:"last_name"`
	Phone               string        `bun:"phone_number" json:"phone_number,omitempty"`
	Status              AccountStatus `bun:"status,notnull" json:"status"`
	EmailVerifiedAt     *time.Time    `bun:"email_verified_at,nullzero" json:"email_verified_at,omitempty"`
	WithdrawalReason    *string       `bun:"withdrawal_reason" json:"withdrawal_reason,omitempty"`
	DeletionScheduledAt *time.Time    `bun:"deletion_scheduled_at,nullzero" json:"deletion_scheduled_at,omitempty"`
	DeletedAt           *time.Time    `bun:"deleted_at,nullzero" json:"deleted_at,omitempty"`
	CreatedAt           time.Time     `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt           time.Time     `bun:"updated_at,notnull" json:"updated_at"`
}

// EnsureStatus sets the default status when missing
func (a *Account) EnsureStatus() {
	if a != nil && a.Status == "" {
		a.Status = AccountStatusPending
	}
}

// IsEmailVerified reports whether the email ownership was confirmed
func (a *Account) IsEmailVerified() bool {
	return a != nil && a.EmailVerifiedAt != nil
}

// IsActive reports whether the account may log in
func (a *Account) IsActive() bool {
	return a != nil && a.Status == AccountStatusActive
}

// AccountView is the public projection of an account
type AccountView struct {
	ID            uuid.UUID     `json:"id"`
	Email         string        `json:"email"`
	FirstName     string        `json:"first_name"`
	LastName      string        `json:"last_name"`
	Phone         string        `json:"phone_number,omitempty"`
	Status        AccountStatus `json:"status"`
	EmailVerified bool          `json:"email_verified"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// View returns the public projection of the account
func (a *Account) View() AccountView {
	if a == nil {
		return AccountView{}
	}
	return AccountView{
		ID:            a.ID,
		Email:         a.Email,
		FirstName:     a.FirstName,
		LastName:      a.LastName,
		Phone:         a.Phone,
		Status:        a.Status,
		EmailVerified: a.IsEmailVerified(),
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}

// VerificationKind scopes a verification token to a single workflow
type VerificationKind string

const (
	// VerificationKindEmail tokens confirm email ownership
	VerificationKindEmail VerificationKind = "email_verification"
	// VerificationKindPasswordReset tokens authorize a password overwrite
	VerificationKindPasswordReset VerificationKind = "password_reset"
)

// VerificationToken is a single use, time boxed token. The raw value is
// handed to the account owner, only its digest is stored.
type VerificationToken struct {
	bun.BaseModel `bun:"table:verification_tokens,alias:vt"`
	ID            uuid.UUID        `bun:"id,pk,type:uuid" json:"id"`
	Kind          VerificationKind `bun:"kind,notnull" json:"kind"`
	TokenHash     string           `bun:"token_hash,notnull,unique" json:"-"`
	AccountID     uuid.UUID        `bun:"account_id,notnull,type:uuid" json:"account_id"`
	ExpiresAt     time.Time        `bun:"expires_at,notnull" json:"expires_at"`
	UsedAt        *time.Time       `bun:"used_at,nullzero" json:"used_at,omitempty"`
	CreatedAt     time.Time        `bun:"created_at,notnull" json:"created_at"`
}

// IsValid reports whether the token can still be redeemed at now
func (t *VerificationToken) IsValid(now time.Time) bool {
	if t == nil {
		return false
	}
	return t.UsedAt == nil && now.Before(t.ExpiresAt)
}

// IsExpired reports whether the expiry has passed at now
func (t *VerificationToken) IsExpired(now time.Time) bool {
	return t == nil || !now.Before(t.ExpiresAt)
}

// IsUsed reports whether the token was already redeemed
func (t *VerificationToken) IsUsed() bool {
	return t != nil && t.UsedAt != nil
}
