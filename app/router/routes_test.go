package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/amirphl/gymdesk/app/dto"
	"github.com/amirphl/gymdesk/app/handlers"
	"github.com/amirphl/gymdesk/app/middleware"
	"github.com/amirphl/gymdesk/app/services"
	"github.com/amirphl/gymdesk/config"
	"github.com/amirphl/gymdesk/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, cfg *config.ProductionConfig, probes map[string]HealthProbe) Router {
	t.Helper()
	tokens, err := services.NewTokenService(time.Hour, "gymdesk", "gymdesk-api", false, "", "", "router-test-secret-with-32-characters")
	require.NoError(t, err)

	h := Handlers{
		Auth:          handlers.NewAuthHandler(tokens),
		Client:        handlers.NewClientHandler(nil),
		Reminder:      handlers.NewReminderHandler(nil),
		ReminderRules: handlers.NewRuleHandler(nil, models.RuleKindReminder),
		CampaignRules: handlers.NewRuleHandler(nil, models.RuleKindCampaign),
		Campaign:      handlers.NewCampaignHandler(nil),
		Conversation:  handlers.NewConversationHandler(nil),
		Cron:          handlers.NewCronHandler(nil, nil, nil),
	}
	r := NewFiberRouter(cfg, h, middleware.NewAuthMiddleware(tokens), probes)
	r.SetupRoutes()
	return r
}

func testConfig() *config.ProductionConfig {
	return &config.ProductionConfig{
		Security: config.SecurityConfig{
			AllowedOrigins:  []string{"http://localhost:3000"},
			GlobalRateLimit: 100,
			CronRateLimit:   10,
		},
		Metrics:    config.MetricsConfig{Enabled: true, Path: "/metrics"},
		Deployment: config.DeploymentConfig{Environment: "test", Version: "test"},
	}
}

func TestHealthCheck(t *testing.T) {
	t.Run("all probes up", func(t *testing.T) {
		r := newTestRouter(t, testConfig(), map[string]HealthProbe{
			"database": func(context.Context) error { return nil },
		})
		resp, err := r.GetApp().Test(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("failing dependency degrades", func(t *testing.T) {
		r := newTestRouter(t, testConfig(), map[string]HealthProbe{
			"database": func(context.Context) error { return nil },
			"redis":    func(context.Context) error { return errors.New("connection refused") },
		})
		resp, err := r.GetApp().Test(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

		var res dto.APIResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
		assert.False(t, res.Success)
		data := res.Data.(map[string]any)
		assert.Equal(t, "degraded", data["status"])
		assert.Equal(t, map[string]any{"database": "up", "redis": "down"}, data["checks"])
	})
}

func TestRouteGuards(t *testing.T) {
	r := newTestRouter(t, testConfig(), nil)
	app := r.GetApp()

	t.Run("cron without configured secret", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/api/v1/cron/reminders", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("staff routes need a token", func(t *testing.T) {
		for _, path := range []string{"/api/v1/reminders", "/api/v1/reminder-rules", "/api/v1/campaign-rules/1/preview", "/api/v1/chatbot-settings"} {
			resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
			require.NoError(t, err)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
		}
	})

	t.Run("logout needs a token", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("logout without a revocation store", func(t *testing.T) {
		tokens, err := services.NewTokenService(time.Hour, "gymdesk", "gymdesk-api", false, "", "", "router-test-secret-with-32-characters")
		require.NoError(t, err)
		token, err := tokens.GenerateAccessToken(9, 1)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})

	t.Run("metrics are exposed", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("unknown path", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/nowhere", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}
