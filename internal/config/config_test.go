package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"gptme-server/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DB_DRIVER", "")
	t.Setenv("COMPLETION_TIMEOUT", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "data/gptme.db", cfg.Database.SQLitePath)
	assert.Equal(t, 60*time.Second, cfg.Completion.Timeout)
	assert.Equal(t, "session", cfg.Cookie.Name)
	assert.Equal(t, []string{"Content-Type", "Authorization"}, cfg.CORS.AllowedHeaders)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "CouchDB")
	t.Setenv("COMPLETION_TIMEOUT", "5s")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DriverCouchDB, cfg.Database.Driver)
	assert.Equal(t, 5*time.Second, cfg.Completion.Timeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{name: "unknown driver", key: "DB_DRIVER", val: "postgres"},
		{name: "bad duration", key: "COMPLETION_TIMEOUT", val: "soon"},
		{name: "bad breaker threshold", key: "BREAKER_FAILURE_THRESHOLD", val: "1.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestModelCatalogueDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.yaml")

	c, err := LoadModelCatalogue(path, "", 150, 1000, zap.NewNop())
	require.NoError(t, err)

	assert.Len(t, c.Models(), 2)
	assert.Equal(t, "gpt-4", c.Default().ID)

	formal, ok := c.Lookup("gpt-4")
	require.True(t, ok)
	assert.Equal(t, domain.PersonaFormal, formal.Persona)
	assert.Equal(t, 150, formal.MaxTokens)
	assert.Equal(t, 1000, formal.EssayTokens)

	casual, ok := c.Lookup("gpt-3.5-turbo")
	require.True(t, ok)
	assert.Equal(t, domain.PersonaCasual, casual.Persona)

	_, ok = c.Lookup("claude")
	assert.False(t, ok)
}

func TestModelCatalogueDefaultOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.yaml")

	c, err := LoadModelCatalogue(path, "gpt-3.5-turbo", 150, 1000, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "gpt-3.5-turbo", c.Default().ID)
}

const testModelsYAML = `
default: small
models:
  - id: large
    persona: formal
    max_tokens: 300
  - id: small
    label: Small
    persona: casual
`

func TestModelCatalogueFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testModelsYAML), 0644))

	c, err := LoadModelCatalogue(path, "", 150, 1000, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, "small", c.Default().ID)

	large, ok := c.Lookup("large")
	require.True(t, ok)
	assert.Equal(t, "large", large.Label)
	assert.Equal(t, 300, large.MaxTokens)
	assert.Equal(t, formalInstruction, large.Instruction)

	small, _ := c.Lookup("small")
	assert.Equal(t, casualInstruction, small.Instruction)
	assert.Equal(t, 150, small.MaxTokens)
}

func TestModelCatalogueRejectsBadFile(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "not yaml", content: "models: [unclosed"},
		{name: "no models", content: "default: x\nmodels: []\n"},
		{name: "missing id", content: "models:\n  - label: nameless\n"},
		{name: "duplicate id", content: "models:\n  - id: a\n  - id: a\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "models.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))

			_, err := LoadModelCatalogue(path, "", 150, 1000, zap.NewNop())
			assert.Error(t, err)
		})
	}
}

func TestModelCatalogueReloadKeepsPreviousOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testModelsYAML), 0644))

	c, err := LoadModelCatalogue(path, "", 150, 1000, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("models: []\n"), 0644))
	assert.Error(t, c.Reload())

	assert.Len(t, c.Models(), 2)
	assert.Equal(t, "small", c.Default().ID)
}

func TestModelCatalogueWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testModelsYAML), 0644))

	c, err := LoadModelCatalogue(path, "", 150, 1000, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, c.Watch())
	defer c.Close()

	updated := testModelsYAML + "  - id: tiny\n    persona: casual\n"
	require.NoError(t, os.WriteFile(path, []byte(updated), 0644))

	assert.Eventually(t, func() bool {
		_, ok := c.Lookup("tiny")
		return ok
	}, 5*time.Second, 50*time.Millisecond)
}
