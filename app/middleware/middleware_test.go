package middleware

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/amirphl/gymdesk/app/dto"
	"github.com/amirphl/gymdesk/app/services"
	"github.com/amirphl/gymdesk/config"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testJWTSecret = "middleware-test-secret-with-32-chars!!"

// errorResponse is dto.APIResponse with the error payload typed
type errorResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Error   dto.ErrorDetail `json:"error"`
}

func decodeErrorResponse(t *testing.T, body io.Reader) errorResponse {
	t.Helper()
	var res errorResponse
	require.NoError(t, json.NewDecoder(body).Decode(&res))
	return res
}

func TestAuthenticate(t *testing.T) {
	tokens, err := services.NewTokenService(time.Hour, "gymdesk", "gymdesk-api", false, "", "", testJWTSecret)
	require.NoError(t, err)
	valid, err := tokens.GenerateAccessToken(5, 77)
	require.NoError(t, err)

	expiredService, err := services.NewTokenService(-time.Minute, "gymdesk", "gymdesk-api", false, "", "", testJWTSecret)
	require.NoError(t, err)
	expired, err := expiredService.GenerateAccessToken(5, 77)
	require.NoError(t, err)

	app := fiber.New()
	app.Use(NewAuthMiddleware(tokens).Authenticate())
	app.Get("/whoami", func(c fiber.Ctx) error {
		gymID, ok := GetGymIDFromContext(c)
		if !ok {
			return c.SendStatus(fiber.StatusTeapot)
		}
		claims, _ := GetTokenClaimsFromContext(c)
		return c.JSON(fiber.Map{"gym_id": gymID, "user_id": c.Locals("user_id"), "jti": claims.TokenID})
	})

	tests := []struct {
		name     string
		header   string
		wantCode string
	}{
		{name: "missing header", wantCode: "MISSING_AUTHORIZATION_HEADER"},
		{name: "wrong scheme", header: "Basic abc", wantCode: "INVALID_AUTHORIZATION_FORMAT"},
		{name: "garbage token", header: "Bearer nope", wantCode: "TOKEN_INVALID"},
		{name: "expired token", header: "Bearer " + expired, wantCode: "TOKEN_EXPIRED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			res := decodeErrorResponse(t, resp.Body)
			assert.False(t, res.Success)
			assert.Equal(t, tt.wantCode, res.Error.Code)
		})
	}

	t.Run("valid token exposes the tenant", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set("Authorization", "Bearer "+valid)
		resp, err := app.Test(req)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body struct {
			GymID  uint   `json:"gym_id"`
			UserID uint   `json:"user_id"`
			JTI    string `json:"jti"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, uint(77), body.GymID)
		assert.Equal(t, uint(5), body.UserID)
		assert.NotEmpty(t, body.JTI)
	})
}

func TestCronSecret(t *testing.T) {
	newApp := func(cfg config.CronConfig) *fiber.App {
		app := fiber.New()
		app.Post("/cron", CronSecret(cfg), func(c fiber.Ctx) error {
			return c.JSON(fiber.Map{"processed": 0})
		})
		return app
	}
	call := func(t *testing.T, app *fiber.App, secret string) *http.Response {
		req := httptest.NewRequest(http.MethodPost, "/cron", nil)
		if secret != "" {
			req.Header.Set(CronSecretHeader, secret)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp
	}

	t.Run("unset secret rejects", func(t *testing.T) {
		resp := call(t, newApp(config.CronConfig{}), "anything")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "CRON_SECRET_NOT_CONFIGURED", decodeErrorResponse(t, resp.Body).Error.Code)
	})

	t.Run("unset secret with opt-in passes", func(t *testing.T) {
		resp := call(t, newApp(config.CronConfig{AllowUnauthenticated: true}), "")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	app := newApp(config.CronConfig{Secret: "s3cret"})

	t.Run("missing header", func(t *testing.T) {
		resp := call(t, app, "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("mismatch", func(t *testing.T) {
		resp := call(t, app, "s3cre")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "INVALID_CRON_SECRET", decodeErrorResponse(t, resp.Body).Error.Code)
	})

	t.Run("match", func(t *testing.T) {
		resp := call(t, app, "s3cret")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("secret configured ignores opt-in", func(t *testing.T) {
		resp := call(t, newApp(config.CronConfig{Secret: "s3cret", AllowUnauthenticated: true}), "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}
