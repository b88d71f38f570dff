package identity

import (
	"errors"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeAlreadyExists          = "ACCOUNT_ALREADY_EXISTS"
	TextCodeInvalidCredentials     = "INVALID_CREDENTIALS"
	TextCodeInvalidToken           = "INVALID_TOKEN"
	TextCodeTokenExpiredOrUsed     = "TOKEN_EXPIRED_OR_USED"
	TextCodeAlreadyVerified        = "EMAIL_ALREADY_VERIFIED"
	TextCodeNotFound               = "ACCOUNT_NOT_FOUND"
	TextCodeAlreadyPendingDeletion = "ACCOUNT_PENDING_DELETION"
	TextCodeAlreadyDeleted         = "ACCOUNT_DELETED"
	TextCodeForbidden              = "FORBIDDEN"
	TextCodeAuthenticationRequired = "AUTHENTICATION_REQUIRED"
	TextCodeValidation             = "VALIDATION_FAILED"
	TextCodeUnknownStatus          = "UNKNOWN_ACCOUNT_STATUS"
	TextCodeInternal               = "INTERNAL_ERROR"
)

// messageInvalidCredentials is shared by every login failure
const messageInvalidCredentials = "Invalid email or password"

// ErrAlreadyExists is returned when registering an email that is taken
var ErrAlreadyExists = goerrors.New("Email already exists", goerrors.CategoryConflict).
	WithTextCode(TextCodeAlreadyExists)

// ErrInvalidCredentials is the only error login exposes
var ErrInvalidCredentials = goerrors.New(messageInvalidCredentials, goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials)

// ErrNotActive is returned by login for accounts that are not ACTIVE.
// It renders exactly like ErrInvalidCredentials, match it with errors.Is
// to tell the two apart internally.
var ErrNotActive = goerrors.New(messageInvalidCredentials, goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials)

// ErrInvalidToken covers malformed, forged, expired and unknown tokens
var ErrInvalidToken = goerrors.New("Invalid token", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidToken)

// ErrTokenExpiredOrUsed is returned when redeeming a token that is no longer valid
var ErrTokenExpiredOrUsed = goerrors.New("Token has expired or already been used", goerrors.CategoryBadInput).
	WithTextCode(TextCodeTokenExpiredOrUsed)

// ErrAlreadyVerified is returned when resending verification for a verified email
var ErrAlreadyVerified = goerrors.New("Email is already verified", goerrors.CategoryConflict).
	WithTextCode(TextCodeAlreadyVerified)

// ErrNotFound is returned when the account does not exist
var ErrNotFound = goerrors.New("User not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeNotFound)

// ErrAlreadyPendingDeletion is returned when withdrawing a withdrawn account
var ErrAlreadyPendingDeletion = goerrors.New("User is already pending deletion", goerrors.CategoryConflict).
	WithTextCode(TextCodeAlreadyPendingDeletion)

// ErrAlreadyDeleted is returned when withdrawing a deleted account
var ErrAlreadyDeleted = goerrors.New("User is already deleted", goerrors.CategoryConflict).
	WithTextCode(TextCodeAlreadyDeleted)

// ErrForbidden is returned when the subject may not act on the target
var ErrForbidden = goerrors.New("Access denied", goerrors.CategoryAuthz).
	WithTextCode(TextCodeForbidden)

// ErrAuthenticationRequired is returned when an operation needs a principal
var ErrAuthenticationRequired = goerrors.New("Authentication required", goerrors.CategoryAuth).
	WithTextCode(TextCodeAuthenticationRequired)

// ErrUnknownStatus is returned when parsing an unsupported status name
var ErrUnknownStatus = goerrors.New("Unknown account status", goerrors.CategoryValidation).
	WithTextCode(TextCodeUnknownStatus)

// ErrNoEmptyString is returned when hashing an empty password
var ErrNoEmptyString = errors.New("password must not be empty")

// ErrMismatchedHashAndPassword is returned when the password does not match
var ErrMismatchedHashAndPassword = errors.New("password does not match hash")

// ErrStatusConflict is returned by guarded status updates when the stored
// status no longer matches the expected source status.
var ErrStatusConflict = errors.New("account status changed concurrently")

// ErrTokenConsumed is returned by guarded token redemption when the token
// was redeemed or expired in the meantime.
var ErrTokenConsumed = errors.New("verification token already consumed")

// ErrorTag returns the stable tag for err, TextCodeInternal for untagged faults
func ErrorTag(err error) string {
	if err == nil {
		return ""
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.TextCode != "" {
		return richErr.TextCode
	}

	return TextCodeInternal
}

// IsBusinessError reports whether err is one of the tagged, caller
// recoverable errors as opposed to an infrastructure fault.
func IsBusinessError(err error) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode != "" && richErr.Category != goerrors.CategoryInternal
}

// internalError wraps an infrastructure fault unless it already carries a tag
func internalError(err error, message string) error {
	if err == nil {
		return nil
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.TextCode != "" {
		return richErr
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, message)
}
