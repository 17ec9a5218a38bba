package postgres

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rudironsoni/Synaxis-sub005/models"
)

func tenantRowColumns() []string {
	return []string{
		"id", "key", "name", "api_key_hash", "rpm_limit", "tpm_limit",
		"monthly_budget", "model_combo", "aliases", "active", "created_at", "updated_at",
	}
}

func TestTenantRepository_Create(t *testing.T) {
	logger := zap.NewNop()

	t.Run("inserts tenant", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewTenantRepository(db, logger)

		tenant := models.NewTenant("acme", "Acme Corp", "hash123")
		tenant.RPMLimit = 10
		tenant.Aliases = map[string][]string{"fast": {"groq/llama-3.1-8b-instant"}}

		mock.ExpectExec("INSERT INTO tenants").
			WithArgs(
				tenant.ID, "acme", "Acme Corp", "hash123", 10, 0,
				sqlmock.AnyArg(), nil, sqlmock.AnyArg(), true,
				sqlmock.AnyArg(), sqlmock.AnyArg(),
			).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Create(context.Background(), tenant)
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insert failure is wrapped", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewTenantRepository(db, logger)

		mock.ExpectExec("INSERT INTO tenants").WillReturnError(assert.AnError)

		err := repo.Create(context.Background(), models.NewTenant("acme", "Acme Corp", ""))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to create tenant")
	})
}

func TestTenantRepository_GetByAPIKeyHash(t *testing.T) {
	logger := zap.NewNop()
	now := time.Now()

	t.Run("found with JSONB fields decoded", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewTenantRepository(db, logger)

		id := models.NewTenant("acme", "Acme Corp", "").ID
		rows := sqlmock.NewRows(tenantRowColumns()).
			AddRow(id, "acme", "Acme Corp", "hash123", 10, 50000, "25.5",
				[]byte(`["groq/llama-3.1-8b-instant","openai/gpt-4o-mini"]`),
				[]byte(`{"fast":["groq/llama-3.1-8b-instant"]}`),
				true, now, now)

		mock.ExpectQuery("SELECT (.+) FROM tenants WHERE api_key_hash").
			WithArgs("hash123").
			WillReturnRows(rows)

		tenant, err := repo.GetByAPIKeyHash(context.Background(), "hash123")
		require.NoError(t, err)

		assert.Equal(t, "acme", tenant.Key)
		assert.Equal(t, "hash123", tenant.APIKeyHash)
		assert.Equal(t, 10, tenant.RPMLimit)
		assert.True(t, tenant.MonthlyBudget.Equal(decimal.RequireFromString("25.5")))
		assert.Equal(t, []string{"groq/llama-3.1-8b-instant", "openai/gpt-4o-mini"}, tenant.ComboModels())
		assert.Equal(t, []string{"groq/llama-3.1-8b-instant"}, tenant.AliasTargets("fast"))

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewTenantRepository(db, logger)

		mock.ExpectQuery("SELECT (.+) FROM tenants WHERE api_key_hash").
			WithArgs("missing").
			WillReturnRows(sqlmock.NewRows(tenantRowColumns()))

		_, err := repo.GetByAPIKeyHash(context.Background(), "missing")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "tenant not found")
	})

	t.Run("null JSONB columns scan to nil", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewTenantRepository(db, logger)

		id := models.NewTenant("bare", "Bare", "").ID
		rows := sqlmock.NewRows(tenantRowColumns()).
			AddRow(id, "bare", "Bare", nil, 0, 0, "0", nil, nil, true, now, now)

		mock.ExpectQuery("SELECT (.+) FROM tenants WHERE api_key_hash").
			WithArgs("h").
			WillReturnRows(rows)

		tenant, err := repo.GetByAPIKeyHash(context.Background(), "h")
		require.NoError(t, err)

		assert.Empty(t, tenant.APIKeyHash)
		assert.Nil(t, tenant.ComboModels())
		assert.Nil(t, tenant.Aliases)
		assert.False(t, tenant.HasBudget())
	})
}

func TestTenantRepository_GetByKey(t *testing.T) {
	logger := zap.NewNop()
	now := time.Now()

	db, mock := newMockDB(t)
	repo := NewTenantRepository(db, logger)

	id := models.NewTenant("acme", "Acme Corp", "").ID
	rows := sqlmock.NewRows(tenantRowColumns()).
		AddRow(id, "acme", "Acme Corp", nil, 0, 0, "0", nil, nil, true, now, now)

	mock.ExpectQuery("SELECT (.+) FROM tenants WHERE key").
		WithArgs("acme").
		WillReturnRows(rows)

	tenant, err := repo.GetByKey(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, id, tenant.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTenantRepository_Update(t *testing.T) {
	logger := zap.NewNop()

	t.Run("updates tenant", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewTenantRepository(db, logger)

		tenant := models.NewTenant("acme", "Acme Corp", "hash123")
		tenant.ModelCombo = json.RawMessage(`["openai/gpt-4o"]`)

		mock.ExpectExec("UPDATE tenants").
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Update(context.Background(), tenant)
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing tenant reports not found", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewTenantRepository(db, logger)

		mock.ExpectExec("UPDATE tenants").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.Update(context.Background(), models.NewTenant("ghost", "Ghost", ""))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "tenant not found")
	})
}
