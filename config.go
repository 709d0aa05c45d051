package cyclequota

import (
	"fmt"
	"os"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config is the top-level quota configuration.
type Config struct {
	TotalBudget  Amount           `yaml:"total_budget"`
	BaseOverhead Amount           `yaml:"base_overhead"`
	Cycle        CycleConfig      `yaml:"cycle"`
	Categories   []CategoryConfig `yaml:"categories"`
}

// CycleConfig defines when cycles end.
type CycleConfig struct {
	// Schedule is a cron expression or descriptor ("@every 6s", "0 * * * *").
	// Empty means cycle boundaries are signalled externally.
	Schedule string `yaml:"schedule"`
}

// CategoryConfig assigns a share of the cycle budget to a category.
type CategoryConfig struct {
	Category Category  `yaml:"category"`
	Share    *Fraction `yaml:"share"`
}

// LoadConfig reads and parses a YAML config file.
// Environment variables in the format ${VAR} are expanded before parsing.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("cyclequota: read config: %w", err)
	}

	return ParseConfig(data)
}

// ParseConfig parses YAML config data. Environment variables are expanded.
func ParseConfig(data []byte) (Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("cyclequota: parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks the config for required fields. Duplicate categories
// and share totals are checked when the distribution is built.
func (c Config) Validate() error {
	for i, cat := range c.Categories {
		if cat.Category == "" {
			return fmt.Errorf("cyclequota: config: categories[%d]: category is required", i)
		}
		if cat.Share == nil {
			return fmt.Errorf("cyclequota: config: categories[%d]: share is required", i)
		}
	}

	if c.Cycle.Schedule != "" {
		if _, err := cron.ParseStandard(c.Cycle.Schedule); err != nil {
			return fmt.Errorf("cyclequota: config: invalid cycle schedule %q: %w", c.Cycle.Schedule, err)
		}
	}

	return nil
}

// Distribution builds the configured distribution.
func (c Config) Distribution() (*Distribution, error) {
	b := NewDistributionBuilder()
	for i, cat := range c.Categories {
		if cat.Share == nil {
			return nil, fmt.Errorf("cyclequota: config: categories[%d]: share is required", i)
		}
		b.Add(cat.Category, *cat.Share)
	}
	return b.Build()
}

// Request returns a request for the category and cost using the configured
// total budget and base overhead.
func (c Config) Request(category Category, cost Amount) Request {
	return Request{
		Category:     category,
		Cost:         cost,
		TotalBudget:  c.TotalBudget,
		BaseOverhead: c.BaseOverhead,
	}
}
