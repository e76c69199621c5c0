package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"promos/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthCheck_Degraded(t *testing.T) {
	h := NewHealthHandler(map[string]Pinger{
		"database": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	})
	app := fiber.New()
	app.Get("/health", h.HealthCheck)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestTargetUser(t *testing.T) {
	tests := []struct {
		name    string
		locals  interface{}
		query   string
		want    string
		wantErr error
	}{
		{"own wallet", claims("u1", "user"), "", "u1", nil},
		{"same user named", claims("u1", "user"), "?user_id=u1", "u1", nil},
		{"user naming another", claims("u1", "user"), "?user_id=u2", "", fiber.ErrForbidden},
		{"service naming another", claims("svc", "service"), "?user_id=u2", "u2", nil},
		{"no claims", nil, "", "", fiber.ErrUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			var got string
			var gotErr error
			app.Get("/", func(c *fiber.Ctx) error {
				if tt.locals != nil {
					c.Locals("claims", tt.locals)
				}
				got, gotErr = targetUser(c)
				return nil
			})
			_, err := app.Test(httptest.NewRequest(http.MethodGet, "/"+tt.query, nil))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantErr, gotErr)
		})
	}
}

func claims(userID, role string) *models.UserClaims {
	return &models.UserClaims{UserID: userID, Role: role}
}
