// auth.go - Optional bearer token authentication
package api

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const subjectKey = "auth.subject"

var (
	// ErrMissingToken is returned when the Authorization header is absent.
	ErrMissingToken = errors.New("missing bearer token")
	// ErrInvalidToken wraps parsing and validation failures.
	ErrInvalidToken = errors.New("invalid bearer token")
)

// ParseToken validates an HS256 token signed with secret and returns its
// subject (empty when the token carries none).
func ParseToken(token, secret string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrMissingToken
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return "", ErrInvalidToken
	}

	subject, err := parsed.Claims.GetSubject()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return subject, nil
}

// JWTAuth requires a valid bearer token on every request the skipper does
// not exempt. The token subject is stored on the context under "auth.subject".
func JWTAuth(secret string, skipper func(c echo.Context) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if skipper != nil && skipper(c) {
				return next(c)
			}

			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if header == "" {
				return NewUnauthorizedError(ErrMissingToken.Error())
			}
			if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
				return NewUnauthorizedError(ErrInvalidToken.Error())
			}

			subject, err := ParseToken(header[len("Bearer "):], secret)
			if err != nil {
				return NewUnauthorizedError(err.Error())
			}
			c.Set(subjectKey, subject)
			return next(c)
		}
	}
}

// apiAuthSkipper exempts everything outside /api/ plus the health check.
func apiAuthSkipper(c echo.Context) bool {
	path := c.Request().URL.Path
	return !strings.HasPrefix(path, "/api/") || path == "/api/health"
}
