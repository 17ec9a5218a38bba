package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testProviderRow struct {
	Name         string   `validate:"required"`
	BaseURL      string   `validate:"required,url"`
	Tier         int      `validate:"gte=0"`
	CostPerToken float64  `validate:"gte=0"`
	Targets      []string `validate:"omitempty,min=1"`
}

func TestValidateStruct(t *testing.T) {
	t.Run("valid struct", func(t *testing.T) {
		s := testProviderRow{
			Name:         "groq",
			BaseURL:      "https://api.groq.com/openai/v1",
			Tier:         1,
			CostPerToken: 0.00000059,
		}

		assert.NoError(t, ValidateStruct(&s))
	})

	t.Run("missing required field names the field", func(t *testing.T) {
		s := testProviderRow{
			BaseURL: "https://api.groq.com/openai/v1",
		}

		err := ValidateStruct(&s)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Name is required")
	})

	t.Run("invalid URL", func(t *testing.T) {
		s := testProviderRow{
			Name:    "groq",
			BaseURL: "not a url",
		}

		err := ValidateStruct(&s)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "BaseURL must be a valid URL")
	})

	t.Run("negative cost", func(t *testing.T) {
		s := testProviderRow{
			Name:         "groq",
			BaseURL:      "https://api.groq.com/openai/v1",
			CostPerToken: -1,
		}

		err := ValidateStruct(&s)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "CostPerToken must be at least 0")
	})

	t.Run("every failed field appears in one message", func(t *testing.T) {
		s := testProviderRow{Tier: -1, CostPerToken: -1}

		err := ValidateStruct(&s)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Name")
		assert.Contains(t, err.Error(), "BaseURL")
		assert.Contains(t, err.Error(), "Tier")
		assert.Contains(t, err.Error(), "CostPerToken")
	})
}
