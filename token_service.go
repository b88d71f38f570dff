package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

const (
	DefaultAccessTokenTTL            = 15 * time.Minute
	DefaultRefreshTokenTTL           = 30 * 24 * time.Hour
	DefaultEmailVerificationTokenTTL = 24 * time.Hour
)

// TokenTypeBearer is reported with every issued token pair
const TokenTypeBearer = "bearer"

// TokenCodec issues and verifies signed session tokens
type TokenCodec interface {
	Issue(kind TokenKind, accountID uuid.UUID, extra ExtraClaims, ttl time.Duration) (string, error)
	Verify(token string) (*SessionClaims, error)
	IssuePair(account *Account, role string) (*TokenPair, error)
}

// TokenPair is returned on registration and login
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// TokenService signs session tokens with a single shared HS256 secret
type TokenService struct {
	signingKey []byte
	issuer     string
	ttls       map[TokenKind]time.Duration
	now        Clock
	logger     Logger
}

var _ TokenCodec = (*TokenService)(nil)

// TokenServiceOption customizes the token service
type TokenServiceOption func(*TokenService)

// WithTokenIssuer sets the iss claim, verification then requires it
func WithTokenIssuer(issuer string) TokenServiceOption {
	return func(ts *TokenService) {
		ts.issuer = issuer
	}
}

// WithTokenTTL overrides the default lifetime for kind
func WithTokenTTL(kind TokenKind, ttl time.Duration) TokenServiceOption {
	return func(ts *TokenService) {
		if ttl > 0 {
			ts.ttls[kind] = ttl
		}
	}
}

// WithTokenClock injects the clock used for iat, exp and validation
func WithTokenClock(clock Clock) TokenServiceOption {
	return func(ts *TokenService) {
		if clock != nil {
			ts.now = clock
		}
	}
}

// WithTokenLogger sets the logger
func WithTokenLogger(logger Logger) TokenServiceOption {
	return func(ts *TokenService) {
		if logger != nil {
			ts.logger = logger
		}
	}
}

// NewTokenService creates a new TokenService instance
func NewTokenService(signingKey []byte, opts ...TokenServiceOption) (*TokenService, error) {
	if len(signingKey) == 0 {
		return nil, errors.New("token service requires a signing key")
	}

	ts := &TokenService{
		signingKey: signingKey,
		ttls: map[TokenKind]time.Duration{
			TokenKindAccess:            DefaultAccessTokenTTL,
			TokenKindRefresh:           DefaultRefreshTokenTTL,
			TokenKindEmailVerification: DefaultEmailVerificationTokenTTL,
		},
		now:    time.Now,
		logger: defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(ts)
		}
	}

	return ts, nil
}

// NewTokenServiceFromConfig builds the service from cfg
func NewTokenServiceFromConfig(cfg Config, opts ...TokenServiceOption) (*TokenService, error) {
	base := []TokenServiceOption{
		WithTokenIssuer(cfg.GetIssuer()),
		WithTokenTTL(TokenKindAccess, cfg.GetAccessTokenTTL()),
		WithTokenTTL(TokenKindRefresh, cfg.GetRefreshTokenTTL()),
		WithTokenTTL(TokenKindEmailVerification, cfg.GetEmailVerificationTTL()),
	}
	return NewTokenService([]byte(cfg.GetSigningKey()), append(base, opts...)...)
}

// TTL returns the lifetime used for kind
func (ts *TokenService) TTL(kind TokenKind) time.Duration {
	return ts.ttls[kind]
}

// Issue signs a token of kind for accountID. A zero ttl uses the kind's
// default lifetime. Email and role are only embedded in ACCESS tokens.
func (ts *TokenService) Issue(kind TokenKind, accountID uuid.UUID, extra ExtraClaims, ttl time.Duration) (string, error) {
	if !kind.Valid() {
		return "", goerrors.New(fmt.Sprintf("unsupported token kind %q", kind), goerrors.CategoryInternal)
	}

	if ttl <= 0 {
		ttl = ts.TTL(kind)
	}

	now := ts.now()
	claims := &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.issuer,
			Subject:   accountID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Kind: kind,
	}

	if kind == TokenKindAccess {
		claims.Email = extra.Email
		claims.Role = extra.Role
	}

	ensureTokenID(&claims.RegisteredClaims)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign JWT")
	}

	return signed, nil
}

// IssuePair issues the ACCESS and REFRESH tokens for account
func (ts *TokenService) IssuePair(account *Account, role string) (*TokenPair, error) {
	if account == nil {
		return nil, goerrors.New("account must not be nil", goerrors.CategoryInternal)
	}

	access, err := ts.Issue(TokenKindAccess, account.ID, ExtraClaims{
		Email: account.Email,
		Role:  role,
	}, 0)
	if err != nil {
		return nil, err
	}

	refresh, err := ts.Issue(TokenKindRefresh, account.ID, ExtraClaims{}, 0)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    TokenTypeBearer,
		ExpiresIn:    int64(ts.TTL(TokenKindAccess) / time.Second),
	}, nil
}

// Verify parses and validates a token string. Every failure is reported
// as ErrInvalidToken, the cause is only logged.
func (ts *TokenService) Verify(tokenString string) (*SessionClaims, error) {
	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(ts.now),
	}
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, parserOptions...)

	if err != nil {
		ts.logger.Debug("token rejected", "reason", tokenFailureReason(err))
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		ts.logger.Debug("token rejected", "reason", "claims")
		return nil, ErrInvalidToken
	}

	if !claims.Kind.Valid() {
		ts.logger.Debug("token rejected", "reason", "kind", "kind", claims.Kind)
		return nil, ErrInvalidToken
	}

	return claims, nil
}

func tokenFailureReason(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "expired"
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "malformed"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "signature"
	case errors.Is(err, jwt.ErrTokenNotValidYet), errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return "not_yet_valid"
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return "issuer"
	default:
		return "invalid"
	}
}
