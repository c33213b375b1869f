package models_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maynagashev/formdef/internal/models"
)

func TestNormalizePayload_Component(t *testing.T) {
	payload := models.Document{
		"default_props":    map[string]any{"label": "Email"},
		"service_bindings": nil,
		"notes":            "kept as is",
	}

	got, err := models.ComponentKind.NormalizePayload(payload)
	require.NoError(t, err)

	assert.Equal(t, models.Document{"label": "Email"}, got["default_props"])
	assert.Equal(t, models.Document{}, got["validation_config"])
	assert.Equal(t, models.Document{}, got["service_bindings"])
	assert.Equal(t, "kept as is", got["notes"])
	assert.Equal(t, models.Document{
		"default_props":     models.Document{"label": "Email"},
		"validation_config": models.Document{},
		"service_bindings":  models.Document{},
	}, got["definition"])

	_, touched := payload["validation_config"]
	assert.False(t, touched, "input is not modified")
}

func TestNormalizePayload_Form(t *testing.T) {
	tests := []struct {
		name    string
		payload models.Document
		wantErr string
	}{
		{name: "valid", payload: models.Document{"key": "signup"}},
		{name: "missing key", payload: models.Document{"schema": map[string]any{}}, wantErr: `field "key" is required`},
		{name: "empty key", payload: models.Document{"key": ""}, wantErr: `field "key" is required`},
		{name: "schema is not an object", payload: models.Document{"key": "signup", "schema": []any{1}},
			wantErr: `field "schema"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := models.FormKind.NormalizePayload(tt.payload)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, models.Document{}, got["schema"])
			assert.NotContains(t, got, "definition")
		})
	}
}

func TestKinds(t *testing.T) {
	kinds := models.Kinds()
	require.Len(t, kinds, 2)
	assert.Equal(t, "components", kinds[0].Plural)
	assert.Equal(t, "forms", kinds[1].Plural)
	assert.True(t, kinds[0].HasBase)
	assert.False(t, kinds[1].HasBase)
}
