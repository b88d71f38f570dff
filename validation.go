package identity

import (
	"errors"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"
)

const (
	maxEmailLength            = 100
	minPasswordLength         = 8
	maxPasswordLength         = 100
	maxNameLength             = 50
	maxWithdrawalReasonLength = 1000
	passwordSpecialCharacters = "@$!%*?&"
)

// DefaultPhoneRegion is used to parse phone numbers without a country prefix
var DefaultPhoneRegion = "US"

var namePattern = regexp.MustCompile(`^[a-zA-Z\s]+$`)

// FieldError describes one invalid input field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// NewValidationError converts ozzo validation errors into a tagged error
// carrying the field error list under the "fields" metadata key.
func NewValidationError(err error) error {
	if err == nil {
		return nil
	}

	var internal validation.InternalError
	if errors.As(err, &internal) {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "validation could not run")
	}

	return goerrors.New("Validation failed", goerrors.CategoryValidation).
		WithTextCode(TextCodeValidation).
		WithMetadata(map[string]any{
			"fields": FieldErrors(err),
		})
}

// FieldErrors flattens err into a list sorted by field name
func FieldErrors(err error) []FieldError {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		fields, _ := richErr.Metadata["fields"].([]FieldError)
		return fields
	}

	var errs validation.Errors
	if !errors.As(err, &errs) {
		return []FieldError{{Message: err.Error()}}
	}

	out := make([]FieldError, 0, len(errs))
	collectFieldErrors("", errs, &out)
	sort.Slice(out, func(i, j int) bool {
		return out[i].Field < out[j].Field
	})
	return out
}

func collectFieldErrors(prefix string, errs validation.Errors, out *[]FieldError) {
	for field, fieldErr := range errs {
		if fieldErr == nil {
			continue
		}
		name := field
		if prefix != "" {
			name = prefix + "." + field
		}
		if nested, ok := fieldErr.(validation.Errors); ok {
			collectFieldErrors(name, nested, out)
			continue
		}
		*out = append(*out, FieldError{Field: name, Message: fieldErr.Error()})
	}
}

// NormalizePhone parses raw and returns it in E.164 form
func NormalizePhone(raw, region string) (string, error) {
	num, err := phonenumbers.Parse(raw, region)
	if err != nil {
		return "", err
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", errors.New("phone number is not valid")
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

func emailRules() []validation.Rule {
	return []validation.Rule{
		validation.Required.Error("Email is required"),
		is.Email.Error("Email must be valid"),
		validation.Length(0, maxEmailLength).Error("Email must not exceed 100 characters"),
	}
}

func nameRules(label string) []validation.Rule {
	return []validation.Rule{
		validation.Required.Error(label + " is required"),
		validation.Length(1, maxNameLength).Error(label + " must be between 1 and 50 characters"),
		validation.Match(namePattern).Error(label + " must contain only letters and spaces"),
	}
}

func passwordLengthRule() validation.Rule {
	return validation.Length(minPasswordLength, maxPasswordLength).
		Error("Password must be between 8 and 100 characters")
}

var strongPassword = validation.By(func(value interface{}) error {
	password, _ := value.(string)
	if password == "" {
		return nil
	}

	var lower, upper, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r) && r <= unicode.MaxASCII:
			lower = true
		case unicode.IsUpper(r) && r <= unicode.MaxASCII:
			upper = true
		case unicode.IsDigit(r) && r <= unicode.MaxASCII:
			digit = true
		case strings.ContainsRune(passwordSpecialCharacters, r):
			special = true
		default:
			return errors.New("Password may only contain letters, numbers, and " + passwordSpecialCharacters)
		}
	}

	if !lower || !upper || !digit || !special {
		return errors.New("Password must contain at least one uppercase letter, one lowercase letter, one number, and one special character")
	}
	return nil
})

var validPhone = validation.By(func(value interface{}) error {
	phone, _ := value.(string)
	if strings.TrimSpace(phone) == "" {
		return nil
	}
	if _, err := NormalizePhone(phone, DefaultPhoneRegion); err != nil {
		return errors.New("Phone number must be valid")
	}
	return nil
})

var validStatus = validation.By(func(value interface{}) error {
	status, _ := value.(string)
	if _, err := ParseAccountStatus(status); err != nil {
		return errors.New("Status must be one of PENDING, ACTIVE, INACTIVE, SUSPENDED, PENDING_DELETION, DELETED")
	}
	return nil
})

var withdrawalReasonLength = validation.By(func(value interface{}) error {
	reason, _ := value.(*string)
	if reason == nil {
		return nil
	}
	if utf8.RuneCountInString(*reason) > maxWithdrawalReasonLength {
		return errors.New("Withdrawal reason must not exceed 1000 characters")
	}
	return nil
})

// RegisterAccountMessage is the self service registration input
type RegisterAccountMessage struct {
	Email     string `json:"email" example:"jane@example.com"`
	Password  string `json:"password" example:"Secure123!"`
	FirstName string `json:"first_name" example:"Jane"`
	LastName  string `json:"last_name" example:"Doe"`
	Phone     string `json:"phone_number,omitempty" example:"+14155552671"`
}

// Validate checks the registration input
func (m RegisterAccountMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Email, emailRules()...),
		validation.Field(&m.Password,
			validation.Required.Error("Password is required"),
			passwordLengthRule(),
			strongPassword,
		),
		validation.Field(&m.FirstName, nameRules("First name")...),
		validation.Field(&m.LastName, nameRules("Last name")...),
		validation.Field(&m.Phone, validPhone),
	)
}

// RegisterMemberMessage is the administrative registration input. An empty
// password gets replaced by a throwaway one, an empty status means PENDING.
type RegisterMemberMessage struct {
	Email     string `json:"email"`
	Password  string `json:"password,omitempty"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone_number,omitempty"`
	Status    string `json:"status,omitempty"`
}

// Validate checks the member registration input
func (m RegisterMemberMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Email, emailRules()...),
		validation.Field(&m.Password, passwordLengthRule(), strongPassword),
		validation.Field(&m.FirstName, nameRules("First name")...),
		validation.Field(&m.LastName, nameRules("Last name")...),
		validation.Field(&m.Phone, validPhone),
		validation.Field(&m.Status, validStatus),
	)
}

// LoginMessage is the login input
type LoginMessage struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate checks the login input
func (m LoginMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Email,
			validation.Required.Error("Email is required"),
			is.Email.Error("Email must be valid"),
		),
		validation.Field(&m.Password, validation.Required.Error("Password is required")),
	)
}

// VerifyEmailMessage redeems an email verification token
type VerifyEmailMessage struct {
	Token string `json:"token"`
}

// Validate checks the token is present
func (m VerifyEmailMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Token, validation.Required.Error("Token is required")),
	)
}

// ResendVerificationMessage asks for a new email verification token
type ResendVerificationMessage struct {
	Email string `json:"email"`
}

// Validate checks the email
func (m ResendVerificationMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Email, emailRules()...),
	)
}

// RequestPasswordResetMessage starts a password reset
type RequestPasswordResetMessage struct {
	Email string `json:"email"`
}

// Validate checks the email
func (m RequestPasswordResetMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Email,
			validation.Required.Error("Email is required"),
			is.Email.Error("Invalid email format"),
		),
	)
}

// ConfirmPasswordResetMessage redeems a password reset token
type ConfirmPasswordResetMessage struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

// Validate checks the token and the new password
func (m ConfirmPasswordResetMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Token, validation.Required.Error("Token is required")),
		validation.Field(&m.NewPassword,
			validation.Required.Error("New password is required"),
			passwordLengthRule(),
		),
	)
}

// WithdrawMessage retires an account
type WithdrawMessage struct {
	AccountID uuid.UUID `json:"-"`
	Reason    *string   `json:"reason,omitempty"`
}

// Validate checks the reason length
func (m WithdrawMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Reason, withdrawalReasonLength),
	)
}
