package podds

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config contains every parameter that influences predictions and value detection.
// Components take their own section, there is no package level instance.
type Config struct {
	Elo        EloConfig        `yaml:"elo"`
	Poisson    PoissonConfig    `yaml:"poisson"`
	Value      ValueConfig      `yaml:"value"`
	Scanner    ScannerConfig    `yaml:"scanner"`
	Store      StoreConfig      `yaml:"store"`
	Datasource DatasourceConfig `yaml:"datasource"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// === ELO ===

type EloConfig struct {
	DefaultRating   float64 `yaml:"default_rating"`   // rating for unseen teams (default: 1500)
	KFactor         float64 `yaml:"k_factor"`         // volatility (default: 40)
	HomeAdvantage   float64 `yaml:"home_advantage"`   // rating points added to the home side (default: 100)
	DrawProbability float64 `yaml:"draw_probability"` // fixed draw share for 1X2 conversion (default: 0.30)
}

// === POISSON ===

type PoissonConfig struct {
	HomeAdvantage       float64            `yaml:"home_advantage"`        // multiplier on expected home goals (default: 1.35)
	LeagueAverageGoals  float64            `yaml:"league_average_goals"`  // goals per match, both sides (default: 2.75)
	LeagueAverages      map[string]float64 `yaml:"league_averages"`       // per league overrides keyed by league code
	FitIterations       int                `yaml:"fit_iterations"`        // proportional fitting passes (default: 5)
	MaxGoals            int                `yaml:"max_goals"`             // scoreline truncation per side (default: 10)
	OverUnderThresholds []float64          `yaml:"over_under_thresholds"` // goal lines (default: 0.5..4.5)
	DixonColesRho       float64            `yaml:"dixon_coles_rho"`       // low score correction, 0 disables (default: 0)
}

// === VALUE BETS ===

type ValueConfig struct {
	Threshold      float64 `yaml:"threshold"`       // minimum expected value to flag (default: 0.05)
	RatioThreshold float64 `yaml:"ratio_threshold"` // minimum p/implied ratio for ratio based flagging (default: 1.05)
}

// === SCANNER ===

type ScannerConfig struct {
	Limit       int `yaml:"limit"`       // fixtures considered per scan (default: 50)
	Concurrency int `yaml:"concurrency"` // fixtures predicted in parallel (default: 4)
}

// === PLUMBING ===

type StoreConfig struct {
	DbPath string `yaml:"db_path"`
}

type DatasourceConfig struct {
	BaseURL  string   `yaml:"base_url"`
	CacheDir string   `yaml:"cache_dir"`
	Leagues  []string `yaml:"leagues"` // football-data codes, E0 is the Premier League
	Seasons  []string `yaml:"seasons"` // "2024/2025" style
}

type LoggingConfig struct {
	Level        string `yaml:"level"`
	Output       string `yaml:"output"` // console, file or both
	File         string `yaml:"file"`
	ShowDateTime bool   `yaml:"show_date_time"`
}

// DefaultConfig returns the standard configuration
func DefaultConfig() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	assets := filepath.Join(home, ".podds")

	return &Config{
		Elo: EloConfig{
			DefaultRating:   1500,
			KFactor:         40,
			HomeAdvantage:   100,
			DrawProbability: 0.30,
		},
		Poisson: PoissonConfig{
			HomeAdvantage:       1.35,
			LeagueAverageGoals:  2.75,
			LeagueAverages:      map[string]float64{},
			FitIterations:       5,
			MaxGoals:            10,
			OverUnderThresholds: []float64{0.5, 1.5, 2.5, 3.5, 4.5},
			DixonColesRho:       0,
		},
		Value: ValueConfig{
			Threshold:      0.05,
			RatioThreshold: 1.05,
		},
		Scanner: ScannerConfig{
			Limit:       50,
			Concurrency: 4,
		},
		Store: StoreConfig{
			DbPath: filepath.Join(assets, "podds.db"),
		},
		Datasource: DatasourceConfig{
			BaseURL:  "https://www.football-data.co.uk",
			CacheDir: filepath.Join(assets, "cache"),
			Leagues:  []string{"E0", "E1", "E2", "E3"},
			Seasons:  []string{"2023/2024", "2024/2025", "2025/2026"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: "console",
			File:   "/tmp/podds.log",
		},
	}
}

// LoadConfig reads a YAML file over the defaults, so a file only needs the keys it changes
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// LeagueAverage returns the average goals for league, falling back to the global constant
func (c PoissonConfig) LeagueAverage(league string) float64 {
	if avg, ok := c.LeagueAverages[league]; ok && avg > 0 {
		return avg
	}
	return c.LeagueAverageGoals
}

// === CONFIGURATION VALIDATION ===

// ValidateConfig ensures all configuration values are within reasonable ranges
func ValidateConfig(config *Config) error {
	if config.Elo.DefaultRating <= 0 {
		return fmt.Errorf("Elo.DefaultRating must be positive, got: %f", config.Elo.DefaultRating)
	}
	if config.Elo.KFactor < 0 {
		return fmt.Errorf("Elo.KFactor must not be negative, got: %f", config.Elo.KFactor)
	}
	if config.Elo.DrawProbability < 0.0 || config.Elo.DrawProbability >= 1.0 {
		return fmt.Errorf("Elo.DrawProbability must be between 0.0 and 1.0, got: %f", config.Elo.DrawProbability)
	}
	if config.Poisson.HomeAdvantage <= 0 {
		return fmt.Errorf("Poisson.HomeAdvantage must be positive, got: %f", config.Poisson.HomeAdvantage)
	}
	if config.Poisson.LeagueAverageGoals <= 0 {
		return fmt.Errorf("Poisson.LeagueAverageGoals must be positive, got: %f", config.Poisson.LeagueAverageGoals)
	}
	for league, avg := range config.Poisson.LeagueAverages {
		if avg <= 0 {
			return fmt.Errorf("Poisson.LeagueAverages[%s] must be positive, got: %f", league, avg)
		}
	}
	if config.Poisson.FitIterations < 1 || config.Poisson.FitIterations > 100 {
		return fmt.Errorf("Poisson.FitIterations must be between 1 and 100, got: %d", config.Poisson.FitIterations)
	}
	if config.Poisson.MaxGoals < 1 || config.Poisson.MaxGoals > 30 {
		return fmt.Errorf("Poisson.MaxGoals must be between 1 and 30, got: %d", config.Poisson.MaxGoals)
	}
	for _, th := range config.Poisson.OverUnderThresholds {
		if th <= 0 {
			return fmt.Errorf("Poisson.OverUnderThresholds must be positive, got: %f", th)
		}
	}
	if config.Poisson.DixonColesRho < -0.2 || config.Poisson.DixonColesRho > 0.2 {
		return fmt.Errorf("Poisson.DixonColesRho must be between -0.2 and 0.2, got: %f", config.Poisson.DixonColesRho)
	}
	if config.Value.Threshold < 0 {
		return fmt.Errorf("Value.Threshold must not be negative, got: %f", config.Value.Threshold)
	}
	if config.Value.RatioThreshold < 1.0 {
		return fmt.Errorf("Value.RatioThreshold must be at least 1.0, got: %f", config.Value.RatioThreshold)
	}
	if config.Scanner.Limit < 1 {
		return fmt.Errorf("Scanner.Limit must be at least 1, got: %d", config.Scanner.Limit)
	}
	if config.Scanner.Concurrency < 1 {
		return fmt.Errorf("Scanner.Concurrency must be at least 1, got: %d", config.Scanner.Concurrency)
	}
	return nil
}
