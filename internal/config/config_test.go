package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"racecal/internal/config"
)

func TestLoad_FirstRunWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig().Listen, cfg.Listen)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLoad_PartialFileIsNormalized(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `
listen: ":9000"
view: MONTHS
month_count: 10
categories:
  - label: Grand Tour Race
    color: "#ffff00"
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Listen)
	assert.Equal(t, "months", cfg.View)
	assert.Equal(t, 10, cfg.MonthCount)
	assert.Equal(t, 2025, cfg.Year)
	assert.Equal(t, []string{"Grand Tour Race"}, cfg.CategoryLabels())
	assert.Len(t, cfg.Blocks, 5, "missing blocks fall back to defaults")
	assert.Equal(t, 1, cfg.Workers)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: [unclosed"), 0o600))

	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestLoad_EmptyPath(t *testing.T) {
	_, err := config.Load("")
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("RACECAL_LISTEN", "0.0.0.0:7000")
	t.Setenv("RACECAL_YEAR", "2026")
	t.Setenv("RACECAL_VIEW", "months")
	t.Setenv("RACECAL_RACES_FILE", "/data/races.json")

	cfg := config.DefaultConfig()
	require.NoError(t, cfg.ApplyEnv())

	assert.Equal(t, "0.0.0.0:7000", cfg.Listen)
	assert.Equal(t, 2026, cfg.Year)
	assert.Equal(t, config.DefaultBlocks(2026), cfg.Blocks, "default blocks follow the season")
	assert.Equal(t, "months", cfg.View)
	assert.Equal(t, "/data/races.json", cfg.RacesFile)
	assert.Equal(t, "info", cfg.LogLevel, "unset variables leave values alone")
}

func TestApplyEnv_BadNumber(t *testing.T) {
	t.Setenv("RACECAL_YEAR", "twenty")

	cfg := config.DefaultConfig()
	assert.Error(t, cfg.ApplyEnv())
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := config.DefaultConfig()
	cfg.RacesFile = "races.json"
	cfg.ICS = []config.ICSConfig{{ID: "uci", URL: "https://example.com/uci.ics", Category: "World Tour Race"}}
	require.NoError(t, cfg.Save(path))

	loaded, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.ICS, loaded.ICS)
	assert.Equal(t, "races.json", loaded.RacesFile)
	assert.Equal(t, cfg.Blocks, loaded.Blocks)
}

func TestSaveRejectsNil(t *testing.T) {
	assert.Error(t, config.Save(filepath.Join(t.TempDir(), "c.yaml"), nil))
	assert.Error(t, config.Save("", config.DefaultConfig()))
}

func TestApplyEnv_KeepsCustomBlocks(t *testing.T) {
	t.Setenv("RACECAL_YEAR", "2026")

	cfg := config.DefaultConfig()
	cfg.Blocks = []config.BlockConfig{{Label: "Spring", Start: "2025-03-01", End: "2025-05-31"}}
	require.NoError(t, cfg.ApplyEnv())

	assert.Equal(t, "2025-03-01", cfg.Blocks[0].Start)
}

func TestDefaultBlocks_Year(t *testing.T) {
	blocks := config.DefaultBlocks(2027)
	require.Len(t, blocks, 5)
	assert.Equal(t, "2027-01-20", blocks[0].Start)
	assert.Equal(t, "2027-10-18", blocks[4].End)
}
