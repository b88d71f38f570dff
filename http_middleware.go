package identity

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// LocalsAuthResult is the fiber locals key holding the AuthResult
const LocalsAuthResult = "identity.auth"

// GatewayMiddlewareConfig configures GatewayMiddleware
type GatewayMiddlewareConfig struct {
	Gateway *Gateway
	Logger  Logger
	// Scope is the route scope passed to the gateway, the zero value is ScopeDefault.
	// Controller.RegisterRoutes mounts a ScopeWithdrawal instance on the
	// withdrawal route itself.
	Scope RouteScope
}

// GatewayMiddleware authenticates bearer tokens and stores the AuthResult
// in the request locals and user context. It never rejects a request for a
// bad token, handlers decide what anonymous callers may do.
func GatewayMiddleware(cfg GatewayMiddlewareConfig) fiber.Handler {
	logger := resolveLogger(cfg.Logger)
	scope := cfg.Scope

	return func(c *fiber.Ctx) error {
		result, err := cfg.Gateway.Authenticate(c.UserContext(), bearerToken(c), scope)
		if err != nil {
			logger.Error("gateway failure", "error", err, "path", c.Path())
			return err
		}

		c.Locals(LocalsAuthResult, result)
		c.SetUserContext(WithAuthResult(c.UserContext(), result))
		return c.Next()
	}
}

// AuthResultFrom returns the AuthResult stored by GatewayMiddleware
func AuthResultFrom(c *fiber.Ctx) AuthResult {
	if result, ok := c.Locals(LocalsAuthResult).(AuthResult); ok {
		return result
	}
	return AuthResultFromContext(c.UserContext())
}

func bearerToken(c *fiber.Ctx) string {
	header := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
