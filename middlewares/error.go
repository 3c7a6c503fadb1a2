package middlewares

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"bizledger-backend/invoicing"
)

// NewErrorHandler centralizes error responses and keeps messages sanitized. Engine
// errors keep their message, since it names the offending entity and state.
func NewErrorHandler(log *logrus.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		// 1) Fiber errors (use their status code + message)
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(fiber.Map{"message": fe.Message})
		}

		// 2) Validation errors (422 + per-field info)
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			out := make(map[string]string, len(ve))
			for _, fe := range ve {
				out[fe.Field()] = fe.Tag()
			}
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"message": "validation failed",
				"errors":  out,
			})
		}

		// 3) Engine errors
		if kind := invoicing.KindOf(err); kind != invoicing.KindInternal {
			return c.Status(statusOf(kind)).JSON(fiber.Map{
				"message": err.Error(),
				"kind":    kind.String(),
			})
		}

		// 4) Unknown errors (500)
		log.WithFields(logrus.Fields{
			"method": c.Method(),
			"path":   c.Path(),
		}).WithError(err).Error("internal error")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message": "internal server error",
		})
	}
}

func statusOf(kind invoicing.Kind) int {
	switch kind {
	case invoicing.KindNotFound:
		return fiber.StatusNotFound
	case invoicing.KindBadRequest:
		return fiber.StatusBadRequest
	case invoicing.KindForbidden:
		return fiber.StatusForbidden
	default:
		return fiber.StatusInternalServerError
	}
}
