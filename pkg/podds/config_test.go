package podds

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, ValidateConfig(DefaultConfig()))
}

func TestLoadConfigOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "podds.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
elo:
  k_factor: 20
poisson:
  league_averages:
    E1: 2.5
value:
  threshold: 0.1
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 20.0, cfg.Elo.KFactor)
	assert.Equal(t, 1500.0, cfg.Elo.DefaultRating)
	assert.Equal(t, 0.1, cfg.Value.Threshold)
	assert.Equal(t, 2.5, cfg.Poisson.LeagueAverage("E1"))
	assert.Equal(t, 2.75, cfg.Poisson.LeagueAverage("E0"))
}

func TestLoadConfigEmptyPath(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Value, cfg.Value)
}

func TestLoadConfigErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadConfig(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("elo: [1, 2"), 0o644))
	_, err = LoadConfig(bad)
	assert.Error(t, err)

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("elo:\n  draw_probability: 1.5\n"), 0o644))
	_, err = LoadConfig(invalid)
	assert.ErrorContains(t, err, "DrawProbability")
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"default rating", func(c *Config) { c.Elo.DefaultRating = 0 }, "Elo.DefaultRating"},
		{"k factor", func(c *Config) { c.Elo.KFactor = -1 }, "Elo.KFactor"},
		{"home advantage", func(c *Config) { c.Poisson.HomeAdvantage = 0 }, "Poisson.HomeAdvantage"},
		{"league average", func(c *Config) { c.Poisson.LeagueAverages["E0"] = -2 }, "Poisson.LeagueAverages[E0]"},
		{"iterations", func(c *Config) { c.Poisson.FitIterations = 0 }, "Poisson.FitIterations"},
		{"max goals", func(c *Config) { c.Poisson.MaxGoals = 50 }, "Poisson.MaxGoals"},
		{"rho", func(c *Config) { c.Poisson.DixonColesRho = 0.5 }, "Poisson.DixonColesRho"},
		{"threshold", func(c *Config) { c.Value.Threshold = -0.1 }, "Value.Threshold"},
		{"ratio", func(c *Config) { c.Value.RatioThreshold = 0.9 }, "Value.RatioThreshold"},
		{"limit", func(c *Config) { c.Scanner.Limit = 0 }, "Scanner.Limit"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			assert.ErrorContains(t, ValidateConfig(cfg), tc.want)
		})
	}
}
