package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"ecocycle/internal/domain"
	applog "ecocycle/internal/log"
	"ecocycle/internal/repos"
)

// RequireUser resolves the caller from a bearer token signed by the identity
// service (HS256, user_id claim) and stores the loaded user in Locals("user").
func RequireUser(secret []byte, users *repos.UserRepo) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw, ok := strings.CutPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
		if !ok || raw == "" {
			return unauthorized(c, "missing bearer token")
		}
		tok, err := jwt.Parse(raw, func(*jwt.Token) (any, error) { return secret, nil },
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !tok.Valid {
			applog.Security(c, "auth.token.invalid", map[string]any{"reason": tokenReason(err)})
			return unauthorized(c, "invalid token")
		}
		claims, _ := tok.Claims.(jwt.MapClaims)
		uid, _ := claims["user_id"].(string)
		if uid == "" {
			applog.Security(c, "auth.token.invalid", map[string]any{"reason": "no user_id"})
			return unauthorized(c, "invalid token")
		}
		u, err := users.ByID(c.UserContext(), uid)
		if err != nil || u == nil {
			applog.Security(c, "auth.user.unknown", map[string]any{"user_id": uid})
			return unauthorized(c, "unknown user")
		}
		c.Locals("user", u)
		return c.Next()
	}
}

// RequireRole must run after RequireUser.
func RequireRole(roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		u := caller(c)
		for _, r := range roles {
			if u != nil && u.Role == r {
				return c.Next()
			}
		}
		applog.Security(c, "access.denied.role", map[string]any{"need": strings.Join(roles, ",")})
		return fail(c, domain.Errf(domain.KindForbidden, "this action requires role %s", strings.Join(roles, " or ")))
	}
}

func caller(c *fiber.Ctx) *domain.User {
	u, _ := c.Locals("user").(*domain.User)
	return u
}

func unauthorized(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error": fiber.Map{"kind": "unauthorized", "message": msg},
	})
}

func tokenReason(err error) string {
	switch {
	case err == nil:
		return "invalid"
	case errors.Is(err, jwt.ErrTokenExpired):
		return "expired"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "signature"
	default:
		return "malformed"
	}
}
