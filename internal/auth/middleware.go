package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aldoetobex/legal-mp-engagement/internal/policy"
	"github.com/aldoetobex/legal-mp-engagement/pkg/apperr"
	"github.com/aldoetobex/legal-mp-engagement/pkg/models"
)

/* ============================== JWT Claims ============================== */

// Claims represents the JWT payload we issue and expect.
type Claims struct {
	Sub  string `json:"sub"`  // user ID
	Role string `json:"role"` // user role: "client" | "lawyer"
	jwt.RegisteredClaims
}

/* ============================== JWT Helpers ============================= */

// Tokens signs and verifies bearer JWTs with a fixed secret.
type Tokens struct {
	secret []byte
	ttl    time.Duration
}

func NewTokens(secret string, ttl time.Duration) *Tokens {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Tokens{secret: []byte(secret), ttl: ttl}
}

// Issue signs a JWT for the given user and role.
func (t *Tokens) Issue(userID uuid.UUID, role models.Role) (string, error) {
	now := time.Now()
	claims := &Claims{
		Sub:  userID.String(),
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

func (t *Tokens) parse(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(*jwt.Token) (any, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, errors.New("invalid token")
	}
	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, errors.New("invalid claims")
	}
	return claims, nil
}

/* ============================== Middleware ============================== */

// RequireAuth validates a Bearer JWT and injects userID and role into the context.
func RequireAuth(t *Tokens) fiber.Handler {
	return func(c *fiber.Ctx) error {
		h := c.Get("Authorization")
		if !strings.HasPrefix(h, "Bearer ") {
			return fiber.ErrUnauthorized
		}

		claims, err := t.parse(strings.TrimPrefix(h, "Bearer "))
		if err != nil {
			return fiber.ErrUnauthorized
		}
		userID, err := uuid.Parse(claims.Sub)
		if err != nil {
			return fiber.ErrUnauthorized
		}
		role := models.Role(claims.Role)
		if !role.Valid() {
			return fiber.ErrUnauthorized
		}

		c.Locals("userID", userID)
		c.Locals("role", role)
		return c.Next()
	}
}

// MustUserID reads the authenticated user ID from context or panics (programming error).
func MustUserID(c *fiber.Ctx) uuid.UUID {
	if v, ok := c.Locals("userID").(uuid.UUID); ok {
		return v
	}
	panic(errors.New("user not in context"))
}

// MustRole reads the authenticated user role from context or panics (programming error).
func MustRole(c *fiber.Ctx) models.Role {
	if v, ok := c.Locals("role").(models.Role); ok {
		return v
	}
	panic(errors.New("role not in context"))
}

// Actor returns the authenticated caller.
func Actor(c *fiber.Ctx) policy.Actor {
	return policy.Actor{ID: MustUserID(c), Role: MustRole(c)}
}

// RequireRole ensures the authenticated user has the expected role.
func RequireRole(role models.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if MustRole(c) != role {
			return fiber.ErrForbidden
		}
		return c.Next()
	}
}

/* =========================== Error Formatting =========================== */

// httpCodeToString converts an HTTP status code to a short, stable string.
func httpCodeToString(code int) string {
	switch code {
	case fiber.StatusBadRequest:
		return "BAD_REQUEST"
	case fiber.StatusUnauthorized:
		return "UNAUTHORIZED"
	case fiber.StatusForbidden:
		return "FORBIDDEN"
	case fiber.StatusNotFound:
		return "NOT_FOUND"
	case fiber.StatusConflict:
		return "CONFLICT"
	case fiber.StatusUnprocessableEntity:
		return "UNPROCESSABLE_ENTITY"
	case fiber.StatusRequestEntityTooLarge:
		return "PAYLOAD_TOO_LARGE"
	case fiber.StatusTooManyRequests:
		return "TOO_MANY_REQUESTS"
	case fiber.StatusBadGateway:
		return "BAD_GATEWAY"
	default:
		return "INTERNAL_SERVER_ERROR"
	}
}

// ErrorHandler returns the global Fiber error handler. Domain errors keep
// their message and code; anything unclassified is logged and hidden.
func ErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		// Fiber errors carry status codes
		var fe *fiber.Error
		if errors.As(err, &fe) {
			msg := strings.TrimSpace(fe.Message)
			if msg == "" {
				msg = fiber.ErrInternalServerError.Message
			}
			return c.Status(fe.Code).JSON(models.ErrorResponse{
				Code:    httpCodeToString(fe.Code),
				Error:   true,
				Message: msg,
			})
		}

		kind := apperr.KindOf(err)
		if kind == apperr.KindInternal {
			log.Error("unhandled error",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.Error(err),
			)
			return c.Status(fiber.StatusInternalServerError).JSON(models.ErrorResponse{
				Code:    kind.String(),
				Error:   true,
				Message: "Internal Server Error",
			})
		}
		if kind == apperr.KindUnavailable {
			log.Warn("upstream unavailable", zap.String("path", c.Path()), zap.Error(err))
		}

		return c.Status(apperr.HTTPStatus(err)).JSON(models.ErrorResponse{
			Code:    kind.String(),
			Error:   true,
			Message: apperr.Message(err),
		})
	}
}
