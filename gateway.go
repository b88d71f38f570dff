package identity

import (
	"context"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// RouteScope classifies the endpoint a request targets
type RouteScope int

const (
	// ScopeDefault is every endpoint outside the withdrawal family
	ScopeDefault RouteScope = iota
	// ScopeWithdrawal is the withdrawal endpoint family
	ScopeWithdrawal
)

// SelfAlias may be used in place of an account id to target the caller
const SelfAlias = "me"

// Anonymous reasons reported by the gateway
const (
	ReasonNoToken         = "no_token"
	ReasonInvalidToken    = "invalid_token"
	ReasonWrongTokenKind  = "wrong_token_kind"
	ReasonInvalidSubject  = "invalid_subject"
	ReasonAccountRetiring = "account_retiring"
)

// Principal is the authenticated caller
type Principal struct {
	AccountID uuid.UUID
	Email     string
	Role      string
	TokenID   string
	// Account is nil when the token subject has no account, which is only
	// ever let through on the withdrawal endpoint family.
	Account *Account
}

// AuthResult is the gateway verdict for one request
type AuthResult struct {
	Principal *Principal
	Reason    string
}

// Authenticated reports whether a principal was established
func (r AuthResult) Authenticated() bool {
	return r.Principal != nil
}

func anonymous(reason string) AuthResult {
	return AuthResult{Reason: reason}
}

// Gateway turns bearer tokens into an AuthResult. Token problems never
// fail the request, they make it anonymous.
type Gateway struct {
	tokens   TokenCodec
	accounts Accounts
	logger   Logger
}

// GatewayOption customizes the gateway
type GatewayOption func(*Gateway)

// WithGatewayLogger sets the logger
func WithGatewayLogger(logger Logger) GatewayOption {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewGateway creates a gateway
func NewGateway(tokens TokenCodec, accounts Accounts, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		tokens:   tokens,
		accounts: accounts,
		logger:   defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// Authenticate resolves the bearer token for a request targeting scope.
// The error is only set for infrastructure faults.
func (g *Gateway) Authenticate(ctx context.Context, bearer string, scope RouteScope) (AuthResult, error) {
	bearer = strings.TrimSpace(bearer)
	if bearer == "" {
		return anonymous(ReasonNoToken), nil
	}

	claims, err := g.tokens.Verify(bearer)
	if err != nil {
		return anonymous(ReasonInvalidToken), nil
	}

	if claims.Kind != TokenKindAccess {
		g.logger.Debug("gateway ignored token", "reason", ReasonWrongTokenKind, "kind", claims.Kind)
		return anonymous(ReasonWrongTokenKind), nil
	}

	accountID, err := claims.AccountID()
	if err != nil {
		g.logger.Debug("gateway ignored token", "reason", ReasonInvalidSubject)
		return anonymous(ReasonInvalidSubject), nil
	}

	principal := &Principal{
		AccountID: accountID,
		Email:     claims.Email,
		Role:      claims.Role,
		TokenID:   claims.TokenID(),
	}

	account, err := g.accounts.GetByID(ctx, accountID)
	if err != nil {
		if !repository.IsRecordNotFound(err) {
			return AuthResult{}, goerrors.Wrap(err, goerrors.CategoryInternal, "could not retrieve account")
		}
		if scope == ScopeWithdrawal {
			return AuthResult{Principal: principal}, nil
		}
		g.logger.Debug("gateway account missing", "account_id", accountID)
		return anonymous(ReasonInvalidSubject), nil
	}

	if account.Status.IsRetiring() && scope != ScopeWithdrawal {
		g.logger.Info("gateway rejected retiring account", "account_id", accountID, "status", account.Status)
		return anonymous(ReasonAccountRetiring), nil
	}

	principal.Account = account
	return AuthResult{Principal: principal}, nil
}

// AuthorizeWithdrawal checks that principal withdraws its own account.
// target is the path account id or SelfAlias.
func AuthorizeWithdrawal(principal *Principal, target string) (uuid.UUID, error) {
	if principal == nil {
		return uuid.Nil, ErrAuthenticationRequired
	}

	target = strings.TrimSpace(target)
	if strings.EqualFold(target, SelfAlias) {
		return principal.AccountID, nil
	}

	id, err := uuid.Parse(target)
	if err != nil {
		return uuid.Nil, ErrForbidden
	}

	if id != principal.AccountID {
		return uuid.Nil, ErrForbidden
	}

	return id, nil
}
