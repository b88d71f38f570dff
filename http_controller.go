package identity

import (
	"time"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Response is the JSON envelope for every endpoint
type Response struct {
	Status    string       `json:"status"`
	Message   string       `json:"message,omitempty"`
	Code      string       `json:"code,omitempty"`
	Data      any          `json:"data,omitempty"`
	Errors    []FieldError `json:"errors,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// ControllerRoutes holds the paths served by the controller
type ControllerRoutes struct {
	Register           string
	RegisterMember     string
	Login              string
	VerifyEmail        string
	ResendVerification string
	ForgotPassword     string
	ResetPassword      string
	Withdraw           string
}

// Controller exposes the service over HTTP
type Controller struct {
	Debug   bool
	Logger  Logger
	Service *Service
	Gateway *Gateway
	Routes  *ControllerRoutes
	now     Clock
}

// ControllerOption customizes the controller
type ControllerOption func(*Controller)

// WithControllerLogger sets the logger
func WithControllerLogger(logger Logger) ControllerOption {
	return func(c *Controller) {
		if logger != nil {
			c.Logger = logger
		}
	}
}

// WithControllerGateway authenticates the withdrawal route with the
// withdrawal scope, so retiring accounts reach the handler
func WithControllerGateway(gateway *Gateway) ControllerOption {
	return func(c *Controller) {
		c.Gateway = gateway
	}
}

// WithControllerDebug logs error metadata
func WithControllerDebug(debug bool) ControllerOption {
	return func(c *Controller) {
		c.Debug = debug
	}
}

// WithControllerClock sets the clock used for response timestamps
func WithControllerClock(clock Clock) ControllerOption {
	return func(c *Controller) {
		if clock != nil {
			c.now = clock
		}
	}
}

// NewController creates a controller with the default routes
func NewController(service *Service, opts ...ControllerOption) *Controller {
	c := &Controller{
		Logger:  defLogger{},
		Service: service,
		Routes: &ControllerRoutes{
			Register:           "/api/v1/auth/register",
			RegisterMember:     "/api/v1/auth/members",
			Login:              "/api/v1/auth/login",
			VerifyEmail:        "/api/v1/auth/verify-email",
			ResendVerification: "/api/v1/auth/resend-verification",
			ForgotPassword:     "/api/v1/auth/forgot-password",
			ResetPassword:      "/api/v1/auth/reset-password",
			Withdraw:           "/api/v1/users/:id/withdraw",
		},
		now: time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// RegisterRoutes mounts the controller handlers on router
func (a *Controller) RegisterRoutes(router fiber.Router) {
	router.Post(a.Routes.Register, a.Register)
	router.Post(a.Routes.RegisterMember, a.RegisterMember)
	router.Post(a.Routes.Login, a.Login)
	router.Post(a.Routes.VerifyEmail, a.VerifyEmail)
	router.Post(a.Routes.ResendVerification, a.ResendVerification)
	router.Post(a.Routes.ForgotPassword, a.ForgotPassword)
	router.Post(a.Routes.ResetPassword, a.ResetPassword)
	router.Post(a.Routes.Withdraw, a.withdrawalHandlers()...)
}

func (a *Controller) withdrawalHandlers() []fiber.Handler {
	if a.Gateway == nil {
		return []fiber.Handler{a.Withdraw}
	}
	return []fiber.Handler{
		GatewayMiddleware(GatewayMiddlewareConfig{
			Gateway: a.Gateway,
			Logger:  a.Logger,
			Scope:   ScopeWithdrawal,
		}),
		a.Withdraw,
	}
}

func (a *Controller) Register(c *fiber.Ctx) error {
	var msg RegisterAccountMessage
	if err := a.bind(c, &msg); err != nil {
		return a.fail(c, err)
	}

	res, err := a.Service.Register(c.UserContext(), msg)
	if err != nil {
		return a.fail(c, err)
	}

	return a.ok(c, fiber.StatusCreated, "Registration successful", res)
}

func (a *Controller) RegisterMember(c *fiber.Ctx) error {
	if !AuthResultFrom(c).Authenticated() {
		return a.fail(c, ErrAuthenticationRequired)
	}

	var msg RegisterMemberMessage
	if err := a.bind(c, &msg); err != nil {
		return a.fail(c, err)
	}

	res, err := a.Service.RegisterMember(c.UserContext(), msg)
	if err != nil {
		return a.fail(c, err)
	}

	return a.ok(c, fiber.StatusCreated, "Member registered successfully", res)
}

func (a *Controller) Login(c *fiber.Ctx) error {
	var msg LoginMessage
	if err := a.bind(c, &msg); err != nil {
		return a.fail(c, err)
	}

	res, err := a.Service.Login(c.UserContext(), msg)
	if err != nil {
		return a.fail(c, err)
	}

	return a.ok(c, fiber.StatusOK, "Login successful", res)
}

func (a *Controller) VerifyEmail(c *fiber.Ctx) error {
	var msg VerifyEmailMessage
	if err := a.bind(c, &msg); err != nil {
		return a.fail(c, err)
	}

	if _, err := a.Service.VerifyEmail(c.UserContext(), msg); err != nil {
		return a.fail(c, err)
	}

	return a.ok(c, fiber.StatusOK, "Email verified successfully", nil)
}

func (a *Controller) ResendVerification(c *fiber.Ctx) error {
	var msg ResendVerificationMessage
	if err := a.bind(c, &msg); err != nil {
		return a.fail(c, err)
	}

	if _, err := a.Service.ResendVerification(c.UserContext(), msg); err != nil {
		return a.fail(c, err)
	}

	return a.ok(c, fiber.StatusOK, "Verification email sent", nil)
}

func (a *Controller) ForgotPassword(c *fiber.Ctx) error {
	var msg RequestPasswordResetMessage
	if err := a.bind(c, &msg); err != nil {
		return a.fail(c, err)
	}

	res, err := a.Service.RequestPasswordReset(c.UserContext(), msg)
	if err != nil {
		return a.fail(c, err)
	}

	return a.ok(c, fiber.StatusOK, res.Message, nil)
}

func (a *Controller) ResetPassword(c *fiber.Ctx) error {
	var msg ConfirmPasswordResetMessage
	if err := a.bind(c, &msg); err != nil {
		return a.fail(c, err)
	}

	if err := a.Service.ConfirmPasswordReset(c.UserContext(), msg); err != nil {
		return a.fail(c, err)
	}

	return a.ok(c, fiber.StatusOK, "Password has been reset successfully", nil)
}

func (a *Controller) Withdraw(c *fiber.Ctx) error {
	result := AuthResultFrom(c)

	accountID, err := AuthorizeWithdrawal(result.Principal, c.Params("id"))
	if err != nil {
		return a.fail(c, err)
	}

	msg := WithdrawMessage{AccountID: accountID}
	if len(c.Body()) > 0 {
		if err := a.bind(c, &msg); err != nil {
			return a.fail(c, err)
		}
		msg.AccountID = accountID
	}

	res, err := a.Service.Withdraw(c.UserContext(), msg)
	if err != nil {
		return a.fail(c, err)
	}

	return a.ok(c, fiber.StatusAccepted, "Withdrawal request accepted", res)
}

type validatable interface {
	Validate() error
}

func (a *Controller) bind(c *fiber.Ctx, out validatable) error {
	if err := c.BodyParser(out); err != nil {
		return goerrors.New("Malformed request body", goerrors.CategoryBadInput).
			WithTextCode(TextCodeValidation)
	}
	if err := out.Validate(); err != nil {
		return NewValidationError(err)
	}
	return nil
}

func (a *Controller) ok(c *fiber.Ctx, status int, message string, data any) error {
	return c.Status(status).JSON(Response{
		Status:    statusSuccess,
		Message:   message,
		Data:      data,
		Timestamp: a.now().UTC(),
	})
}

func (a *Controller) fail(c *fiber.Ctx, err error) error {
	status := StatusForError(err)
	payload := Response{
		Status:    statusError,
		Code:      ErrorTag(err),
		Message:   publicMessage(err),
		Errors:    FieldErrors(validationOnly(err)),
		Timestamp: a.now().UTC(),
	}

	if status >= fiber.StatusInternalServerError {
		a.Logger.Error("request failed", "path", c.Path(), "error", err)
	} else if a.Debug {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			a.Logger.Debug("request rejected",
				"path", c.Path(),
				"code", richErr.TextCode,
				"details", print.MaybePrettyJSON(richErr.Metadata),
			)
		}
	}

	return c.Status(status).JSON(payload)
}

// StatusForError maps an error tag to its HTTP status
func StatusForError(err error) int {
	switch ErrorTag(err) {
	case TextCodeAlreadyExists,
		TextCodeAlreadyVerified,
		TextCodeAlreadyPendingDeletion,
		TextCodeAlreadyDeleted:
		return fiber.StatusConflict
	case TextCodeInvalidCredentials,
		TextCodeInvalidToken,
		TextCodeAuthenticationRequired:
		return fiber.StatusUnauthorized
	case TextCodeTokenExpiredOrUsed,
		TextCodeValidation,
		TextCodeUnknownStatus,
		textCodeInvalidTransition:
		return fiber.StatusBadRequest
	case TextCodeNotFound:
		return fiber.StatusNotFound
	case TextCodeForbidden:
		return fiber.StatusForbidden
	case textCodeTerminalState:
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

// ErrorHandler renders errors escaping the handlers, use it as the fiber
// application error handler.
func ErrorHandler(logger Logger) fiber.ErrorHandler {
	logger = resolveLogger(logger)
	return func(c *fiber.Ctx, err error) error {
		status := StatusForError(err)
		message := publicMessage(err)

		var fiberErr *fiber.Error
		if goerrors.As(err, &fiberErr) {
			status = fiberErr.Code
			message = fiberErr.Message
		}

		if status >= fiber.StatusInternalServerError {
			logger.Error("unhandled error", "path", c.Path(), "error", err)
		}

		return c.Status(status).JSON(Response{
			Status:    statusError,
			Message:   message,
			Timestamp: time.Now().UTC(),
		})
	}
}

func publicMessage(err error) string {
	if !IsBusinessError(err) {
		return "An unexpected error occurred"
	}
	var richErr *goerrors.Error
	goerrors.As(err, &richErr)
	return richErr.Message
}

func validationOnly(err error) error {
	if ErrorTag(err) != TextCodeValidation {
		return nil
	}
	return err
}
