package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rudironsoni/Synaxis-sub005/services/breaker"
	"github.com/rudironsoni/Synaxis-sub005/services/catalog"
)

// MockAdminAudit is a mock implementation of AdminAuditLogger
type MockAdminAudit struct {
	mock.Mock
}

func (m *MockAdminAudit) LogCatalogReload(details interface{}) error {
	args := m.Called(details)
	return args.Error(0)
}

func (m *MockAdminAudit) LogBreakerReset(provider string) error {
	args := m.Called(provider)
	return args.Error(0)
}

func newAdminFixture(t *testing.T) (*AdminHandler, *breaker.Breaker, *MockAdminAudit) {
	t.Helper()
	cat := newTestCatalog(t, gatewayCatalogRepo())
	br := breaker.New(breaker.NewMemoryStore(time.Minute), 3, zap.NewNop())
	audit := new(MockAdminAudit)
	return NewAdminHandler(cat, br, audit, zap.NewNop()), br, audit
}

func resetRequest(provider string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/admin/providers/"+provider+"/breaker/reset", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("name", provider)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestHandleReloadCatalog(t *testing.T) {
	t.Run("reload reports fresh stats and audits the action", func(t *testing.T) {
		handler, _, audit := newAdminFixture(t)
		audit.On("LogCatalogReload", mock.Anything).Return(nil)

		req := httptest.NewRequest(http.MethodPost, "/admin/catalog/reload", nil)
		w := httptest.NewRecorder()
		handler.HandleReloadCatalog(w, req)

		require.Equal(t, http.StatusOK, w.Code)

		var response struct {
			Data CatalogReloadResponse `json:"data"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, "reloaded", response.Data.Status)
		assert.Equal(t, 3, response.Data.Stats.Providers)
		assert.Equal(t, 2, response.Data.Stats.EnabledProviders)
		assert.Equal(t, 1, response.Data.Stats.CanonicalModels)
		assert.Equal(t, 1, response.Data.Stats.Aliases)

		audit.AssertCalled(t, "LogCatalogReload", mock.Anything)
	})

	t.Run("reload failure keeps the old snapshot and reports 500", func(t *testing.T) {
		cat := newTestCatalog(t, gatewayCatalogRepo())
		br := breaker.New(breaker.NewMemoryStore(time.Minute), 3, zap.NewNop())
		audit := new(MockAdminAudit)
		handler := NewAdminHandler(&reloadFailingCatalog{Service: cat}, br, audit, zap.NewNop())

		req := httptest.NewRequest(http.MethodPost, "/admin/catalog/reload", nil)
		w := httptest.NewRecorder()
		handler.HandleReloadCatalog(w, req)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		audit.AssertNotCalled(t, "LogCatalogReload", mock.Anything)
	})
}

// reloadFailingCatalog serves an existing snapshot but refuses reloads, the
// shape of a database outage after a healthy boot.
type reloadFailingCatalog struct {
	*catalog.Service
}

func (c *reloadFailingCatalog) Reload(ctx context.Context) error {
	return errors.New("connection refused")
}

func TestHandleListProviders(t *testing.T) {
	t.Run("lists every configured provider with breaker state", func(t *testing.T) {
		handler, br, _ := newAdminFixture(t)

		// Trip groq.
		ctx := context.Background()
		for i := 0; i < 3; i++ {
			br.RecordFailure(ctx, "groq")
		}

		req := httptest.NewRequest(http.MethodGet, "/admin/providers", nil)
		w := httptest.NewRecorder()
		handler.HandleListProviders(w, req)

		require.Equal(t, http.StatusOK, w.Code)

		var response struct {
			Data ProviderListResponse `json:"data"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		require.Equal(t, 3, response.Data.Count)

		byName := make(map[string]ProviderStatus)
		for _, p := range response.Data.Providers {
			byName[p.Name] = p
		}

		require.Contains(t, byName, "groq")
		assert.True(t, byName["groq"].Breaker.Open)
		assert.Equal(t, 3, byName["groq"].Breaker.Failures)
		assert.True(t, byName["groq"].FreeTier)

		require.Contains(t, byName, "openai")
		assert.False(t, byName["openai"].Breaker.Open)

		// Disabled providers stay visible to operators.
		require.Contains(t, byName, "cohere")
		assert.False(t, byName["cohere"].Enabled)
	})
}

func TestHandleResetBreaker(t *testing.T) {
	t.Run("reset closes an open breaker and audits", func(t *testing.T) {
		handler, br, audit := newAdminFixture(t)
		audit.On("LogBreakerReset", "groq").Return(nil)

		ctx := context.Background()
		for i := 0; i < 3; i++ {
			br.RecordFailure(ctx, "groq")
		}
		require.True(t, br.State(ctx, "groq").Open)

		w := httptest.NewRecorder()
		handler.HandleResetBreaker(w, resetRequest("groq"))

		require.Equal(t, http.StatusOK, w.Code)

		var response struct {
			Data BreakerResetResponse `json:"data"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, "groq", response.Data.Provider)
		assert.False(t, response.Data.State.Open)
		assert.Zero(t, response.Data.State.Failures)

		assert.False(t, br.State(ctx, "groq").Open)
		audit.AssertCalled(t, "LogBreakerReset", "groq")
	})

	t.Run("unknown provider is not found", func(t *testing.T) {
		handler, _, audit := newAdminFixture(t)

		w := httptest.NewRecorder()
		handler.HandleResetBreaker(w, resetRequest("nope"))

		assert.Equal(t, http.StatusNotFound, w.Code)
		audit.AssertNotCalled(t, "LogBreakerReset", mock.Anything)
	})
}
