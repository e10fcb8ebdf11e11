package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSchema(t *testing.T) {
	registry, err := newRegistry(true)
	require.NoError(t, err)

	output, err := buildSchema(registry)
	require.NoError(t, err)

	assert.Equal(t, "READY", output.Ready)
	assert.Len(t, output.Providers, 5)
	assert.Equal(t, Model{Provider: "anthropic", DefaultModel: "claude-3-5-haiku"}, output.Providers[0])

	var schema struct {
		Title      string `json:"title"`
		Properties map[string]struct {
			Type    string   `json:"type"`
			Minimum *float64 `json:"minimum"`
			Maximum *float64 `json:"maximum"`
		} `json:"properties"`
		Required []string `json:"required"`
	}
	require.NoError(t, json.Unmarshal(output.Response, &schema))

	assert.Equal(t, "response", schema.Title)
	assert.Empty(t, schema.Required)
	require.Contains(t, schema.Properties, "score")
	require.Contains(t, schema.Properties, "confidence")
	require.Contains(t, schema.Properties, "error")

	assert.Equal(t, "integer", schema.Properties["score"].Type)
	assert.Equal(t, -2.0, *schema.Properties["score"].Minimum)
	assert.Equal(t, 2.0, *schema.Properties["score"].Maximum)
	assert.Equal(t, "number", schema.Properties["confidence"].Type)
	assert.Equal(t, 1.0, *schema.Properties["confidence"].Maximum)
	assert.Equal(t, "string", schema.Properties["error"].Type)
}

func TestSchemaCommand(t *testing.T) {
	output, err := executeCommand(rootCmd, "schema")
	require.NoError(t, err)
	assert.Contains(t, output, `"ready": "READY"`)
	assert.Contains(t, output, `"default_model": "czech"`)
}
