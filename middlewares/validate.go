package middlewares

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"bizledger-backend/utils"
)

var validate = newValidator()

// newValidator reports fields by their json name so 422 bodies match the request payload.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// BindAndValidate parses the request body into dst, trims strings, rounds amounts and validates it.
// Returns fiber.ErrBadRequest for parse errors and a validator.ValidationErrors for validation issues.
func BindAndValidate(c *fiber.Ctx, dst interface{}) error {
	if err := c.BodyParser(dst); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	utils.NormalizeDTO(dst)
	return validate.Struct(dst)
}

// ValidateStruct runs the shared validator against v.
func ValidateStruct(v interface{}) error {
	return validate.Struct(v)
}
