// Package file provides a YAML-backed catalog source for deployments that
// run the gateway without a database. The file is re-read on every list
// call; the catalog service snapshots results, so reads only happen on
// load and reload.
package file

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/rudironsoni/Synaxis-sub005/models"
	"github.com/rudironsoni/Synaxis-sub005/repositories"
)

// CatalogStore implements repositories.CatalogRepository over a YAML file
type CatalogStore struct {
	path   string
	logger *zap.Logger
}

// NewCatalogStore creates a catalog store reading from the given path
func NewCatalogStore(path string, logger *zap.Logger) repositories.CatalogRepository {
	return &CatalogStore{
		path:   path,
		logger: logger,
	}
}

// providerSpec defaults enabled to true when the key is omitted, so a
// hand-written catalog does not silently disable every provider.
type providerSpec models.ProviderConfig

func (p *providerSpec) UnmarshalYAML(value *yaml.Node) error {
	type plain models.ProviderConfig
	out := plain{Enabled: true}
	if err := value.Decode(&out); err != nil {
		return err
	}
	*p = providerSpec(out)
	return nil
}

// aliasSpec defaults enabled to true when the key is omitted
type aliasSpec models.AliasConfig

func (a *aliasSpec) UnmarshalYAML(value *yaml.Node) error {
	type plain models.AliasConfig
	out := plain{Enabled: true}
	if err := value.Decode(&out); err != nil {
		return err
	}
	*a = aliasSpec(out)
	return nil
}

// catalogDocument is the on-disk shape of the catalog file
type catalogDocument struct {
	Providers       []*providerSpec                `yaml:"providers"`
	CanonicalModels []*models.CanonicalModelConfig `yaml:"canonical_models"`
	Aliases         []*aliasSpec                   `yaml:"aliases"`
}

// load parses the catalog file
func (s *CatalogStore) load() (*catalogDocument, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file %s: %w", s.path, err)
	}

	doc := &catalogDocument{}
	if err := yaml.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file %s: %w", s.path, err)
	}

	return doc, nil
}

// modTime returns the catalog file's last modification time; callers use it
// as the UpdatedAt stamp for every row since the file is versioned as a unit.
func (s *CatalogStore) stampRows(doc *catalogDocument) {
	info, err := os.Stat(s.path)
	if err != nil {
		return
	}
	mtime := info.ModTime()
	for _, p := range doc.Providers {
		p.UpdatedAt = mtime
	}
	for _, c := range doc.CanonicalModels {
		c.UpdatedAt = mtime
	}
	for _, a := range doc.Aliases {
		a.UpdatedAt = mtime
	}
}

// ListProviders retrieves all provider configurations from the file
func (s *CatalogStore) ListProviders(ctx context.Context) ([]*models.ProviderConfig, error) {
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	s.stampRows(doc)

	providers := make([]*models.ProviderConfig, 0, len(doc.Providers))
	for _, p := range doc.Providers {
		cfg := models.ProviderConfig(*p)
		providers = append(providers, &cfg)
	}

	s.logger.Debug("providers loaded from file",
		zap.String("path", s.path),
		zap.Int("count", len(providers)))
	return providers, nil
}

// ListCanonicalModels retrieves all canonical model definitions from the file
func (s *CatalogStore) ListCanonicalModels(ctx context.Context) ([]*models.CanonicalModelConfig, error) {
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	s.stampRows(doc)

	return doc.CanonicalModels, nil
}

// ListAliases retrieves all alias definitions from the file
func (s *CatalogStore) ListAliases(ctx context.Context) ([]*models.AliasConfig, error) {
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	s.stampRows(doc)

	aliases := make([]*models.AliasConfig, 0, len(doc.Aliases))
	for _, a := range doc.Aliases {
		cfg := models.AliasConfig(*a)
		aliases = append(aliases, &cfg)
	}

	return aliases, nil
}
