package app_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/unclebandit/outreach-service/internal/app"
	"github.com/unclebandit/outreach-service/internal/config"
	"github.com/unclebandit/outreach-service/internal/middleware"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func memoryConfig(secret string) *config.Config {
	return &config.Config{
		Database: config.DatabaseConfig{Backend: "memory"},
		SMTP:     config.SMTPConfig{Host: "smtp.example.com", Port: 587, FromAddress: "sales@example.com"},
		IMAP:     config.IMAPConfig{Host: "imap.example.com", Port: 993, Mailbox: "INBOX"},
		Auth:     config.AuthConfig{JWTSecret: secret},
		Outreach: config.OutreachConfig{
			SendConcurrency: 2,
			SendTimeout:     time.Second,
			SchedulerTick:   time.Minute,
			DefaultTimezone: "Asia/Ho_Chi_Minh",
		},
	}
}

func get(h http.Handler, path, token string) int {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w.Code
}

func TestRouterRequiresTokenWhenSecretSet(t *testing.T) {
	a, err := app.New(context.Background(), memoryConfig("s3cret"), zaptest.NewLogger(t))
	require.NoError(t, err)
	defer a.Close()

	h := a.Router()
	assert.Equal(t, http.StatusOK, get(h, "/health", ""))
	assert.Equal(t, http.StatusUnauthorized, get(h, "/report-schedules", ""))

	token, err := middleware.NewJWTService("s3cret").Generate("ops", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, get(h, "/report-schedules", token))
	assert.Equal(t, http.StatusOK, get(h, "/replies", token))
}

func TestRouterOpenWithoutSecret(t *testing.T) {
	a, err := app.New(context.Background(), memoryConfig(""), zaptest.NewLogger(t))
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.Memory)
	assert.Equal(t, http.StatusOK, get(a.Router(), "/report-schedules", ""))
	assert.Equal(t, http.StatusBadRequest, get(a.Router(), "/outbound", ""))
}
