package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 25, cfg.Contacts.MaxPerProspect)
	assert.Equal(t, 15000, cfg.Extract.WebsiteChars)
	assert.Equal(t, 3000, cfg.Extract.SocialChars)
	assert.Equal(t, 90*time.Second, cfg.Enrich.ProspectTimeout())
	assert.Equal(t, 60*time.Second, cfg.Fetch.Budget())
	assert.Equal(t, 8*time.Second, cfg.Fetch.PerURLTimeout())
	assert.Equal(t, []string{"/contact", "/contact-us", "/about", "/about-us", "/team", "/our-team", "/"}, cfg.Fetch.Paths)
	assert.Equal(t, 10, cfg.Import.BatchSize)
	assert.Equal(t, 90*time.Second, cfg.Import.Budget())
	assert.Equal(t, 5, cfg.Import.FlushEvery)
	assert.Equal(t, "gemini", cfg.LLM.GroundedProvider)
	assert.Equal(t, "https://r.jina.ai", cfg.Jina.BaseURL)
	assert.Equal(t, "https://api.firecrawl.dev/v1", cfg.Firecrawl.BaseURL)
	assert.Empty(t, cfg.Firecrawl.Key)
	assert.Equal(t, "sonar-pro", cfg.Perplexity.Model)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/enrich
contacts:
  max_per_prospect: 10
bulk:
  max_parallel: 4
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, 10, cfg.Contacts.MaxPerProspect)
	assert.Equal(t, 4, cfg.Bulk.MaxParallel)
	assert.Equal(t, 3000, cfg.Bulk.MinDelayMs)
}

func TestLoadEnvOverrides(t *testing.T) {
	chdirTemp(t)
	t.Setenv("ENRICH_SERVER_PORT", "3000")
	t.Setenv("ENRICH_ANTHROPIC_KEY", "sk-test")
	t.Setenv("ENRICH_FIRECRAWL_KEY", "fc-test")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "sk-test", cfg.Anthropic.Key)
	assert.Equal(t, "fc-test", cfg.Firecrawl.Key)
}

func TestValidate(t *testing.T) {
	cfg := &Config{LLM: LLMConfig{GroundedProvider: "gemini"}}
	err := cfg.Validate("enrichment")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic.key")
	assert.Contains(t, err.Error(), "gemini.key")

	cfg.Anthropic.Key = "a"
	cfg.Gemini.Key = "g"
	assert.NoError(t, cfg.Validate("enrichment"))

	cfg.LLM.GroundedProvider = "bogus"
	assert.Error(t, cfg.Validate("enrichment"))

	imp := &Config{Import: ImportConfig{Scheduler: "http"}}
	err = imp.Validate("import")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "import.continuation_url")
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.NotNil(t, zap.L())
	assert.Error(t, InitLogger(LogConfig{Level: "nope", Format: "json"}))
}

func TestLoadTables_Defaults(t *testing.T) {
	tables, err := LoadTables("")
	require.NoError(t, err)
	assert.Contains(t, tables.ExcludedEmailSuffixes, ".gov")
	assert.Contains(t, tables.IndustryKeywords, "hvac")
	assert.Len(t, tables.IndustryOrder, 10)
}

func TestLoadTables_Override(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tables.yaml")
	require.NoError(t, os.WriteFile(path, []byte("excluded_local_parts: [legal, hr]\n"), 0o644))

	tables, err := LoadTables(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"legal", "hr"}, tables.ExcludedLocalParts)
	// Untouched tables keep their defaults.
	assert.Contains(t, tables.ExcludedEmailSuffixes, ".edu")
}

func TestLoadTables_Missing(t *testing.T) {
	_, err := LoadTables(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
