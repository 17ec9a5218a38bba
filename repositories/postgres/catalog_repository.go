package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/rudironsoni/Synaxis-sub005/models"
	"github.com/rudironsoni/Synaxis-sub005/repositories"
)

// CatalogRepository implements the repositories.CatalogRepository interface
type CatalogRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewCatalogRepository creates a new catalog repository
func NewCatalogRepository(db *DB, logger *zap.Logger) repositories.CatalogRepository {
	return &CatalogRepository{
		db:     db,
		logger: logger,
	}
}

// ListProviders retrieves all provider configurations, including disabled ones
func (r *CatalogRepository) ListProviders(ctx context.Context) ([]*models.ProviderConfig, error) {
	query := `
		SELECT name, enabled, tier, cost_per_token, free_tier, base_url, api_key_env,
		       models, capabilities, requests_per_minute, timeout_seconds, updated_at
		FROM providers
		ORDER BY name
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query providers: %w", err)
	}
	defer rows.Close()

	var providers []*models.ProviderConfig
	byName := make(map[string]*models.ProviderConfig)

	for rows.Next() {
		p := &models.ProviderConfig{}
		var (
			apiKeyEnv  sql.NullString
			modelsJSON []byte
			capsJSON   []byte
		)
		err := rows.Scan(
			&p.Name,
			&p.Enabled,
			&p.Tier,
			&p.CostPerToken,
			&p.FreeTier,
			&p.BaseURL,
			&apiKeyEnv,
			&modelsJSON,
			&capsJSON,
			&p.RequestsPerMinute,
			&p.TimeoutSeconds,
			&p.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan provider: %w", err)
		}

		p.APIKeyEnv = apiKeyEnv.String
		if len(modelsJSON) > 0 {
			if err := json.Unmarshal(modelsJSON, &p.Models); err != nil {
				return nil, fmt.Errorf("failed to decode models for provider %s: %w", p.Name, err)
			}
		}
		if len(capsJSON) > 0 {
			if err := json.Unmarshal(capsJSON, &p.Capabilities); err != nil {
				return nil, fmt.Errorf("failed to decode capabilities for provider %s: %w", p.Name, err)
			}
		}

		providers = append(providers, p)
		byName[p.Name] = p
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating provider rows: %w", err)
	}

	if err := r.attachCosts(ctx, byName); err != nil {
		return nil, err
	}

	r.logger.Debug("providers loaded", zap.Int("count", len(providers)))
	return providers, nil
}

// attachCosts loads per-model cost overrides and attaches them to providers
func (r *CatalogRepository) attachCosts(ctx context.Context, byName map[string]*models.ProviderConfig) error {
	if len(byName) == 0 {
		return nil
	}

	query := `
		SELECT provider, model_path, input_per_token, output_per_token
		FROM model_costs
		ORDER BY provider, model_path
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to query model costs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var provider string
		var cost models.ModelCost
		if err := rows.Scan(&provider, &cost.ModelPath, &cost.InputPerToken, &cost.OutputPerToken); err != nil {
			return fmt.Errorf("failed to scan model cost: %w", err)
		}
		if p, ok := byName[provider]; ok {
			p.Costs = append(p.Costs, cost)
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating model cost rows: %w", err)
	}

	return nil
}

// ListCanonicalModels retrieves all canonical model definitions
func (r *CatalogRepository) ListCanonicalModels(ctx context.Context) ([]*models.CanonicalModelConfig, error) {
	query := `
		SELECT name, capabilities, updated_at
		FROM canonical_models
		ORDER BY name
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query canonical models: %w", err)
	}
	defer rows.Close()

	var configs []*models.CanonicalModelConfig
	byName := make(map[string]*models.CanonicalModelConfig)

	for rows.Next() {
		c := &models.CanonicalModelConfig{}
		var capsJSON []byte
		if err := rows.Scan(&c.Name, &capsJSON, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan canonical model: %w", err)
		}
		if len(capsJSON) > 0 {
			if err := json.Unmarshal(capsJSON, &c.Capabilities); err != nil {
				return nil, fmt.Errorf("failed to decode capabilities for model %s: %w", c.Name, err)
			}
		}
		configs = append(configs, c)
		byName[c.Name] = c
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating canonical model rows: %w", err)
	}

	if err := r.attachBackends(ctx, byName); err != nil {
		return nil, err
	}

	r.logger.Debug("canonical models loaded", zap.Int("count", len(configs)))
	return configs, nil
}

// attachBackends loads provider backends and attaches them in declaration order
func (r *CatalogRepository) attachBackends(ctx context.Context, byName map[string]*models.CanonicalModelConfig) error {
	if len(byName) == 0 {
		return nil
	}

	query := `
		SELECT canonical_name, provider, model_path
		FROM canonical_model_backends
		ORDER BY canonical_name, provider, model_path
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to query canonical model backends: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		var backend models.ModelBackend
		if err := rows.Scan(&name, &backend.Provider, &backend.ModelPath); err != nil {
			return fmt.Errorf("failed to scan canonical model backend: %w", err)
		}
		if c, ok := byName[name]; ok {
			c.Backends = append(c.Backends, backend)
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating backend rows: %w", err)
	}

	return nil
}

// ListAliases retrieves all global alias definitions
func (r *CatalogRepository) ListAliases(ctx context.Context) ([]*models.AliasConfig, error) {
	query := `
		SELECT name, targets, enabled, updated_at
		FROM model_aliases
		ORDER BY name
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query aliases: %w", err)
	}
	defer rows.Close()

	var aliases []*models.AliasConfig
	for rows.Next() {
		a := &models.AliasConfig{}
		var targetsJSON []byte
		if err := rows.Scan(&a.Name, &targetsJSON, &a.Enabled, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan alias: %w", err)
		}
		if len(targetsJSON) > 0 {
			if err := json.Unmarshal(targetsJSON, &a.Targets); err != nil {
				return nil, fmt.Errorf("failed to decode targets for alias %s: %w", a.Name, err)
			}
		}
		aliases = append(aliases, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alias rows: %w", err)
	}

	r.logger.Debug("aliases loaded", zap.Int("count", len(aliases)))
	return aliases, nil
}
