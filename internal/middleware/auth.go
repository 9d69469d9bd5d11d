package middleware

import (
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/jengzang/routecast/pkg/response"
)

// Roles
const (
	RoleGM     = "gm"
	RolePlayer = "player"
)

const roleKey = "role"

// Claims are the JWT claims of an API caller
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// IssueToken signs a token for role that expires after ttl. A zero ttl
// never expires; a negative one is already expired.
func IssueToken(secret, subject, role string, ttl time.Duration) (string, error) {
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  subject,
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}
	if ttl != 0 {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseToken validates a signed token and returns its claims.
func ParseToken(secret, token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	switch claims.Role {
	case RoleGM, RolePlayer:
		return claims, nil
	}
	return nil, errors.New("unknown role")
}

func bearer(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if token, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	// browsers cannot set headers on websocket upgrades
	return c.Query("token")
}

// Auth requires a valid token and stores the caller's role on the context
func Auth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearer(c)
		if token == "" {
			response.Unauthorized(c, "Missing token")
			return
		}
		claims, err := ParseToken(secret, token)
		if err != nil {
			response.Unauthorized(c, "Invalid token")
			return
		}
		c.Set(roleKey, claims.Role)
		c.Next()
	}
}

// Role returns the role Auth stored on c.
func Role(c *gin.Context) string {
	return c.GetString(roleKey)
}

// RequireRole rejects callers without role
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if Role(c) != role {
			response.Forbidden(c, "Requires role "+role)
			return
		}
		c.Next()
	}
}
