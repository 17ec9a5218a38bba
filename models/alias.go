package models

import "time"

// AliasConfig maps a logical alias name to an ordered list of candidate
// model identifiers. Targets may themselves be alias names; resolution is
// bounded by a visited set so that cyclic catalogs cannot recurse forever.
type AliasConfig struct {
	Name      string    `json:"name" yaml:"name" db:"name" validate:"required"`
	Targets   []string  `json:"targets" yaml:"targets" db:"targets" validate:"required,min=1"`
	Enabled   bool      `json:"enabled" yaml:"enabled" db:"enabled"`
	UpdatedAt time.Time `json:"updated_at" yaml:"-" db:"updated_at"`
}

// TableName returns the table name for the AliasConfig model.
func (AliasConfig) TableName() string {
	return "model_aliases"
}
