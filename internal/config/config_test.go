package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dvloznov/finance-sankey/internal/sankey"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv(envMap(nil))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, sankey.DefaultHub, cfg.Hub)
	assert.Equal(t, "finance", cfg.BQDataset)
	assert.Equal(t, sankey.DefaultDiagramOptions(), cfg.Diagram)
	assert.Empty(t, cfg.AllowedSources)
}

func TestFromEnv_Overrides(t *testing.T) {
	cfg, err := FromEnv(envMap(map[string]string{
		"PORT":                   "9090",
		"SANKEY_SOURCE":          "gs://budgets/jmu.json",
		"SANKEY_HUB":             "University",
		"SANKEY_WIDTH":           "1200",
		"SANKEY_HEIGHT":          "800",
		"SANKEY_NODE_ALIGN":      "LEFT",
		"SANKEY_LINK_COLOR":      "#999",
		"SANKEY_NODE_PADDING":    "4",
		"SANKEY_ALLOWED_SOURCES": " data/jmu.json, ,bq://finance/budget ",
	}))
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "gs://budgets/jmu.json", cfg.Source)
	assert.Equal(t, "University", cfg.Hub)
	assert.Equal(t, []string{"data/jmu.json", "bq://finance/budget"}, cfg.AllowedSources)
	assert.Equal(t, 1200, cfg.Diagram.Width)
	assert.Equal(t, 800, cfg.Diagram.Height)
	assert.Equal(t, 4, cfg.Diagram.NodePadding)
	assert.Equal(t, sankey.AlignLeft, cfg.Diagram.NodeAlign)
	assert.Equal(t, "#999", cfg.Diagram.LinkColor)
	assert.Equal(t, [2][2]int{{1, 5}, {1199, 795}}, cfg.Diagram.Extent)
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := map[string]map[string]string{
		"non-numeric width": {"SANKEY_WIDTH": "wide"},
		"negative height":   {"SANKEY_HEIGHT": "-1"},
		"unknown alignment": {"SANKEY_NODE_ALIGN": "diagonal"},
	}
	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := FromEnv(envMap(env))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFileIsIgnored(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.NoError(t, err)
}

func TestLoad_ReadsEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("SANKEY_HUB=FromFile\n"), 0o600))
	t.Setenv("SANKEY_HUB", "")
	os.Unsetenv("SANKEY_HUB")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "FromFile", cfg.Hub)
}
