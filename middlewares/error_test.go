package middlewares

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bizledger-backend/invoicing"
)

func errorApp(err error) *fiber.App {
	log := logrus.New()
	log.SetOutput(io.Discard)
	app := fiber.New(fiber.Config{ErrorHandler: NewErrorHandler(log)})
	app.Get("/", func(c *fiber.Ctx) error { return err })
	return app
}

func TestErrorHandler_Status(t *testing.T) {
	type payload struct {
		Name string `validate:"required"`
	}
	validationErr := ValidateStruct(payload{})
	require.Error(t, validationErr)

	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"not found", invoicing.NotFound("invoice %s not found", "x"), http.StatusNotFound},
		{"bad request", invoicing.BadRequest("quantity must be greater than 0"), http.StatusBadRequest},
		{"forbidden", invoicing.Forbidden("monthly document limit reached"), http.StatusForbidden},
		{"wrapped engine error", fmt.Errorf("outer: %w", invoicing.NotFound("gone")), http.StatusNotFound},
		{"fiber error", fiber.NewError(http.StatusConflict, "dup"), http.StatusConflict},
		{"validation", validationErr, http.StatusUnprocessableEntity},
		{"internal", errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := errorApp(tc.err).Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
			require.NoError(t, err)
			assert.Equal(t, tc.status, resp.StatusCode)
		})
	}
}

func TestErrorHandler_ValidationUsesJSONNames(t *testing.T) {
	type payload struct {
		Quantity int `json:"quantity" validate:"gt=0"`
	}
	resp, err := errorApp(ValidateStruct(payload{})).Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
	require.NoError(t, err)

	var body struct {
		Errors map[string]string `json:"errors"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, map[string]string{"quantity": "gt"}, body.Errors)
}

func TestErrorHandler_HidesInternalMessage(t *testing.T) {
	resp, err := errorApp(errors.New("password=hunter2")).Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "internal server error", body["message"])
}

func authApp() *fiber.App {
	app := fiber.New()
	app.Get("/", IsAuthenticatedHeader(), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"tenant": TenantID(c), "user": UserID(c)})
	})
	return app
}

func TestIsAuthenticatedHeader(t *testing.T) {
	SetJWTSecret("unit-secret")
	token, err := GenerateJWT("user-1", "tenant-1")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := authApp().Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "tenant-1", body["tenant"])
	assert.Equal(t, "user-1", body["user"])

	SetJWTSecret("rotated")
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = authApp().Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = authApp().Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRequestHash(t *testing.T) {
	a := requestHash("POST", "/api/invoices", []byte(`{"a":1}`), "t1", "u1")
	assert.Equal(t, a, requestHash("POST", "/api/invoices", []byte(`{"a":1}`), "t1", "u1"))
	assert.NotEqual(t, a, requestHash("POST", "/api/invoices", []byte(`{"a":1}`), "t2", "u1"))
	assert.NotEqual(t, a, requestHash("POST", "/api/invoices", []byte(`{"a":2}`), "t1", "u1"))
}
