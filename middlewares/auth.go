package middlewares

import (
	"errors"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
)

const (
	authHeader   = "Authorization"
	bearerPrefix = "Bearer "

	localTenantID = "tenantID"
	localUserID   = "userID"
)

// Claims is our custom JWT payload (subject=userID, plus tenant id).
type Claims struct {
	TenantID string `json:"tenant_id"`
	jwt.RegisteredClaims
}

var (
	secretMu  sync.RWMutex
	jwtSecret []byte
)

// SetJWTSecret installs the signing secret. Without it the JWT_SECRET_KEY/JWT_SECRET
// environment variables are used.
func SetJWTSecret(secret string) {
	secretMu.Lock()
	defer secretMu.Unlock()
	jwtSecret = []byte(strings.TrimSpace(secret))
}

func loadJWTSecret() ([]byte, error) {
	secretMu.RLock()
	sec := jwtSecret
	secretMu.RUnlock()
	if len(sec) > 0 {
		return sec, nil
	}

	env := os.Getenv("JWT_SECRET_KEY")
	if strings.TrimSpace(env) == "" {
		env = os.Getenv("JWT_SECRET")
	}
	if strings.TrimSpace(env) == "" {
		return nil, errors.New("JWT secret not configured (set JWT_SECRET_KEY or JWT_SECRET)")
	}
	return []byte(env), nil
}

// IsAuthenticatedHeader validates a Bearer token, enforces HS256, and populates c.Locals("userID","tenantID").
func IsAuthenticatedHeader() fiber.Handler {
	return func(c *fiber.Ctx) error {
		secret, err := loadJWTSecret()
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"message": "server auth not configured",
			})
		}

		h := c.Get(authHeader)
		if h == "" || !strings.HasPrefix(strings.ToLower(h), strings.ToLower(bearerPrefix)) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "missing/invalid Authorization header"})
		}
		raw := strings.TrimSpace(h[len(bearerPrefix):])
		if raw == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "invalid bearer token"})
		}

		parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		var claims Claims
		token, err := parser.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
			return secret, nil
		})
		if err != nil || !token.Valid {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "invalid or expired token"})
		}
		if strings.TrimSpace(claims.Subject) == "" || strings.TrimSpace(claims.TenantID) == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "token missing subject/tenant"})
		}

		c.Locals(localUserID, claims.Subject)
		c.Locals(localTenantID, claims.TenantID)

		return c.Next()
	}
}

// GenerateJWT signs a new HS256 token for the given user & tenant, expiring in 24h.
func GenerateJWT(userID, tenantID string) (string, error) {
	secret, err := loadJWTSecret()
	if err != nil {
		return "", err
	}
	now := time.Now()
	claims := &Claims{
		TenantID: tenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// TenantID returns the authenticated tenant of the request.
func TenantID(c *fiber.Ctx) string {
	v, _ := c.Locals(localTenantID).(string)
	return v
}

// UserID returns the authenticated user of the request.
func UserID(c *fiber.Ctx) string {
	v, _ := c.Locals(localUserID).(string)
	return v
}
