package middlewares

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"bizledger-backend/models"
)

const inFlightTTL = 30 * time.Second

// InFlightGuard rejects a second concurrent request carrying the same key. It is
// satisfied by cache.Client.
type InFlightGuard interface {
	TryObtain(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// Idempotency processes Idempotency-Key for mutating HTTP methods. The first completed
// response per (tenant, key) is stored and replayed for identical retries; a retry with
// a different request is a 409. guard may be nil; without db the middleware is a no-op.
func Idempotency(db *gorm.DB, guard InFlightGuard, log *logrus.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if db == nil {
			return c.Next()
		}
		method := strings.ToUpper(c.Method())
		if method != fiber.MethodPost && method != fiber.MethodPut && method != fiber.MethodPatch && method != fiber.MethodDelete {
			return c.Next()
		}

		key := strings.TrimSpace(c.Get("Idempotency-Key"))
		if key == "" {
			return c.Next()
		}
		if len(key) > 128 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "Idempotency-Key too long"})
		}

		tenantID := TenantID(c)
		userID := UserID(c)
		if tenantID == "" || userID == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "auth context missing"})
		}

		path := c.OriginalURL() // includes query string
		reqHash := requestHash(method, path, c.Body(), tenantID, userID)

		if guard != nil {
			release, ok, err := guard.TryObtain(c.UserContext(), "idempotency:"+tenantID+":"+key, inFlightTTL)
			if err != nil {
				// the stored record below still deduplicates completed requests
				log.WithError(err).Warn("idempotency in-flight guard unavailable")
			} else if !ok {
				return fiber.NewError(fiber.StatusConflict, "request with this Idempotency-Key is still in progress")
			} else {
				defer release()
			}
		}

		// ---- Phase 1: read or create the pending record
		var (
			existing models.IdempotencyKey
			replay   bool
		)
		lookup := &models.IdempotencyKey{TenantID: tenantID, Key: key}
		err := db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Where(lookup).First(&existing).Error; err != nil {
				if !errors.Is(err, gorm.ErrRecordNotFound) {
					return fiber.NewError(fiber.StatusInternalServerError, "idempotency lookup failed")
				}
				rec := models.IdempotencyKey{
					TenantID:    tenantID,
					Key:         key,
					RequestHash: reqHash,
					Method:      method,
					Path:        path,
					UserID:      userID,
				}
				// a concurrent request may have inserted the key meanwhile; keep whichever row won
				if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rec).Error; err != nil {
					return fiber.NewError(fiber.StatusInternalServerError, "idempotency create failed")
				}
				if err := tx.Where(lookup).First(&existing).Error; err != nil {
					return fiber.NewError(fiber.StatusInternalServerError, "idempotency lookup failed")
				}
			}

			if existing.RequestHash != reqHash {
				return fiber.NewError(fiber.StatusConflict, "Idempotency-Key reuse with different request")
			}
			replay = existing.ResponseStatus != 0 && existing.ResponseBody != nil
			return nil
		})
		if err != nil {
			return err
		}
		if replay {
			c.Set("Idempotent-Replayed", "true")
			c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
			return c.Status(existing.ResponseStatus).Send(existing.ResponseBody)
		}

		if err := c.Next(); err != nil {
			return err
		}

		// ---- Phase 2: store the response
		now := time.Now().UTC()
		resp := c.Response().Body()
		blob := make([]byte, len(resp))
		copy(blob, resp)
		err = db.Model(&models.IdempotencyKey{}).
			Where(lookup).
			Updates(map[string]any{
				"response_status": c.Response().StatusCode(),
				"response_body":   blob,
				"completed_at":    &now,
			}).Error
		if err != nil {
			// best-effort: don't break the successful response
			log.WithError(err).WithField("key", key).Warn("store idempotent response")
		}
		return nil
	}
}

// requestHash is sha256 of method|path|body|tenant|user.
func requestHash(method, path string, body []byte, tenantID, userID string) string {
	h := sha256.New()
	for _, part := range [][]byte{[]byte(method), []byte(path), body, []byte(tenantID), []byte(userID)} {
		h.Write(part)
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
