package middlewares

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"bizledger-backend/config"
	"bizledger-backend/database"
	"bizledger-backend/invoicing"
	"bizledger-backend/models"
)

// fakeGuard hands out each key once until it is released.
type fakeGuard struct {
	mu   sync.Mutex
	held map[string]bool
}

func newFakeGuard() *fakeGuard {
	return &fakeGuard{held: map[string]bool{}}
}

func (g *fakeGuard) TryObtain(_ context.Context, key string, _ time.Duration) (func(), bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.held[key] {
		return nil, false, nil
	}
	g.held[key] = true
	return func() {
		g.mu.Lock()
		delete(g.held, key)
		g.mu.Unlock()
	}, true, nil
}

type idempotencyEnv struct {
	db     *gorm.DB
	app    *fiber.App
	guard  *fakeGuard
	tenant string
	other  string
	calls  atomic.Int32
}

// setupIdempotencyEnv needs TEST_DATABASE_DSN (and TEST_DATABASE_DRIVER for mysql); it skips otherwise.
func setupIdempotencyEnv(t *testing.T) *idempotencyEnv {
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("TEST_DATABASE_DSN not set")
	}
	driver := os.Getenv("TEST_DATABASE_DRIVER")
	if driver == "" {
		driver = "postgres"
	}
	log := logrus.New()
	log.SetOutput(io.Discard)

	db, err := database.Connect(config.Config{DBDriver: driver, DatabaseDSN: dsn}, log)
	if err != nil {
		t.Skipf("database not available: %v", err)
	}
	require.NoError(t, db.AutoMigrate(&models.IdempotencyKey{}))

	env := &idempotencyEnv{db: db, guard: newFakeGuard(), tenant: uuid.NewString(), other: uuid.NewString()}
	env.app = fiber.New(fiber.Config{ErrorHandler: NewErrorHandler(log)})
	env.app.Use(func(c *fiber.Ctx) error {
		tenant := c.Get("X-Tenant")
		if tenant == "" {
			tenant = env.tenant
		}
		c.Locals(localTenantID, tenant)
		c.Locals(localUserID, "user-1")
		return c.Next()
	})
	env.app.Use(Idempotency(db, env.guard, log))
	env.app.Post("/invoices", func(c *fiber.Ctx) error {
		n := env.calls.Add(1)
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"call": n})
	})
	env.app.Post("/fail", func(c *fiber.Ctx) error {
		env.calls.Add(1)
		return invoicing.BadRequest("quantity must be greater than 0")
	})

	t.Cleanup(func() {
		db.Exec("DELETE FROM idempotency_keys WHERE tenant_id IN (?, ?)", env.tenant, env.other)
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return env
}

func (env *idempotencyEnv) post(t *testing.T, path, key, body string, headers ...string) (*http.Response, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", key)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(data)
}

func (env *idempotencyEnv) stored(t *testing.T, key string) models.IdempotencyKey {
	t.Helper()
	var rec models.IdempotencyKey
	require.NoError(t, env.db.Where(&models.IdempotencyKey{TenantID: env.tenant, Key: key}).First(&rec).Error)
	return rec
}

func TestIdempotency_ReplaysCompletedResponse(t *testing.T) {
	env := setupIdempotencyEnv(t)

	first, firstBody := env.post(t, "/invoices", "k-1", `{"a":1}`)
	require.Equal(t, http.StatusCreated, first.StatusCode)
	assert.Empty(t, first.Header.Get("Idempotent-Replayed"))

	second, secondBody := env.post(t, "/invoices", "k-1", `{"a":1}`)
	assert.Equal(t, http.StatusCreated, second.StatusCode)
	assert.Equal(t, "true", second.Header.Get("Idempotent-Replayed"))
	assert.JSONEq(t, firstBody, secondBody)
	assert.EqualValues(t, 1, env.calls.Load())
}

func TestIdempotency_KeyReusedWithDifferentRequest(t *testing.T) {
	env := setupIdempotencyEnv(t)

	resp, _ := env.post(t, "/invoices", "k-2", `{"a":1}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = env.post(t, "/invoices", "k-2", `{"a":2}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.EqualValues(t, 1, env.calls.Load())
}

func TestIdempotency_InFlightRequestConflicts(t *testing.T) {
	env := setupIdempotencyEnv(t)
	release, ok, err := env.guard.TryObtain(context.Background(), "idempotency:"+env.tenant+":k-3", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	resp, _ := env.post(t, "/invoices", "k-3", `{"a":1}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.EqualValues(t, 0, env.calls.Load())

	release()
	resp, _ = env.post(t, "/invoices", "k-3", `{"a":1}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestIdempotency_FailedHandlerStoresNoResponse(t *testing.T) {
	env := setupIdempotencyEnv(t)

	resp, _ := env.post(t, "/fail", "k-4", `{}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	rec := env.stored(t, "k-4")
	assert.Zero(t, rec.ResponseStatus)
	assert.Nil(t, rec.CompletedAt)

	resp, _ = env.post(t, "/fail", "k-4", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("Idempotent-Replayed"))
	assert.EqualValues(t, 2, env.calls.Load())
}

func TestIdempotency_KeysAreTenantScoped(t *testing.T) {
	env := setupIdempotencyEnv(t)

	resp, _ := env.post(t, "/invoices", "shared", `{"a":1}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = env.post(t, "/invoices", "shared", `{"a":1}`, "X-Tenant", env.other)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("Idempotent-Replayed"))
	assert.EqualValues(t, 2, env.calls.Load())
}

func TestIdempotency_WithoutDatabaseIsNoop(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	var calls int
	app := fiber.New()
	app.Use(Idempotency(nil, nil, log))
	app.Post("/", func(c *fiber.Ctx) error {
		calls++
		return c.SendStatus(fiber.StatusCreated)
	})

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("Idempotency-Key", "k")
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, http.StatusCreated, resp.StatusCode)
	}
	assert.Equal(t, 2, calls)
}
