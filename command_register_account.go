package identity

import (
	"context"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/uptrace/bun"
)

// RegistrationResult is returned by Register
type RegistrationResult struct {
	Account AccountView `json:"user"`
	Tokens  *TokenPair  `json:"tokens"`
}

// Register creates a PENDING account and issues its token pair. The input
// is expected to be validated already.
func (s *Service) Register(ctx context.Context, msg RegisterAccountMessage) (*RegistrationResult, error) {
	var (
		account     *Account
		tokens      *TokenPair
		rawToken    string
		verifyEmail = s.verifyOnRegister
	)

	err := s.execute(ctx, "register account", func(ctx context.Context) error {
		return s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			var err error
			account, err = s.createAccount(ctx, tx, accountInput{
				email:     msg.Email,
				password:  msg.Password,
				firstName: msg.FirstName,
				lastName:  msg.LastName,
				phone:     msg.Phone,
				status:    AccountStatusPending,
			})
			if err != nil {
				return err
			}

			tokens, err = s.tokens.IssuePair(account, RoleUser)
			if err != nil {
				return err
			}

			if verifyEmail {
				if rawToken, err = s.issueEmailVerificationTx(ctx, tx, account); err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("account registered", "account_id", account.ID)
	s.record(ctx, ActivityEvent{
		EventType: ActivityEventAccountRegistered,
		Actor:     accountActor(account.ID.String()),
		AccountID: account.ID.String(),
		ToStatus:  account.Status,
	})

	if rawToken != "" {
		s.notifyEmailVerification(ctx, account.Email, rawToken)
	}

	return &RegistrationResult{
		Account: account.View(),
		Tokens:  tokens,
	}, nil
}

// RegisterMember creates an account on behalf of an operator. Missing
// passwords are replaced by a random one and an email verification token
// is always issued.
func (s *Service) RegisterMember(ctx context.Context, msg RegisterMemberMessage) (*AccountView, error) {
	status, err := ParseAccountStatus(msg.Status)
	if err != nil {
		return nil, err
	}

	password := msg.Password
	if password == "" {
		password = RandomPassword()
	}

	var (
		account  *Account
		rawToken string
	)

	err = s.execute(ctx, "register member", func(ctx context.Context) error {
		return s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			var err error
			account, err = s.createAccount(ctx, tx, accountInput{
				email:     msg.Email,
				password:  password,
				firstName: msg.FirstName,
				lastName:  msg.LastName,
				phone:     msg.Phone,
				status:    status,
			})
			if err != nil {
				return err
			}

			rawToken, err = s.issueEmailVerificationTx(ctx, tx, account)
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("member registered", "account_id", account.ID, "status", account.Status)
	s.record(ctx, ActivityEvent{
		EventType: ActivityEventAccountRegistered,
		Actor:     SystemActor,
		AccountID: account.ID.String(),
		ToStatus:  account.Status,
	})

	s.notifyEmailVerification(ctx, account.Email, rawToken)

	view := account.View()
	return &view, nil
}

type accountInput struct {
	email     string
	password  string
	firstName string
	lastName  string
	phone     string
	status    AccountStatus
}

func (s *Service) createAccount(ctx context.Context, tx bun.IDB, in accountInput) (*Account, error) {
	email := strings.TrimSpace(in.email)

	exists, err := s.repo.Accounts().ExistsByEmailTx(ctx, tx, email)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "could not check email availability")
	}
	if exists {
		return nil, ErrAlreadyExists
	}

	hash, err := s.hasher.HashPassword(in.password)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	phone := strings.TrimSpace(in.phone)
	if phone != "" {
		if normalized, err := NormalizePhone(phone, DefaultPhoneRegion); err == nil {
			phone = normalized
		}
	}

	now := s.now().UTC()
	account := &Account{
		Email:        email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(in.firstName),
		LastName:     strings.TrimSpace(in.lastName),
		Phone:        phone,
		Status:       in.status,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	switch in.status {
	case AccountStatusPendingDeletion:
		scheduled := now.Add(s.gracePeriod)
		account.DeletionScheduledAt = &scheduled
	case AccountStatusDeleted:
		account.DeletedAt = &now
	}

	if s.deterministicIDs {
		if id, err := hashid.NewUUID(email); err == nil {
			account.ID = id
		}
	}

	created, err := s.repo.Accounts().CreateTx(ctx, tx, account)
	if err != nil {
		if IsUniqueViolation(err) {
			return nil, ErrAlreadyExists
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "could not create account")
	}

	return created, nil
}
