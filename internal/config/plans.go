package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// PlanSettings describes one subscription plan in the catalogue.
type PlanSettings struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Amount      float64  `yaml:"amount"`
	Currency    string   `yaml:"currency"`
	Interval    string   `yaml:"interval"`
	Features    []string `yaml:"features"`
}

// PlansConfig maps plan keys (FREE, PRO) to their settings.
type PlansConfig struct {
	Plans map[string]*PlanSettings `yaml:"plans"`
}

// LoadPlansFromPath loads the plan catalogue from a YAML file.
func LoadPlansFromPath(path string) (*PlansConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plans config: %w", err)
	}

	var cfg PlansConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse plans config: %w", err)
	}

	if len(cfg.Plans) == 0 {
		return nil, fmt.Errorf("plans config %s defines no plans", path)
	}
	for key, plan := range cfg.Plans {
		if plan == nil || plan.Name == "" {
			return nil, fmt.Errorf("plan %s: name is required", key)
		}
		if plan.Amount < 0 {
			return nil, fmt.Errorf("plan %s: amount must not be negative", key)
		}
		if plan.Currency == "" {
			plan.Currency = "usd"
		}
		if plan.Interval == "" {
			plan.Interval = "month"
		}
	}

	return &cfg, nil
}

// LoadPlansOrDefault loads the catalogue or returns the built-in one when the file is unusable.
func LoadPlansOrDefault(path string) *PlansConfig {
	cfg, err := LoadPlansFromPath(path)
	if err != nil {
		return DefaultPlans()
	}
	return cfg
}

// DefaultPlans returns the built-in FREE and PRO plans.
func DefaultPlans() *PlansConfig {
	return &PlansConfig{
		Plans: map[string]*PlanSettings{
			"FREE": {
				Name:        "Free",
				Description: "Get started with note taking",
				Amount:      0,
				Currency:    "usd",
				Interval:    "month",
				Features:    []string{"Up to 100 notes", "Keyword search", "Live updates"},
			},
			"PRO": {
				Name:        "Pro",
				Description: "AI assistance for power users",
				Amount:      12,
				Currency:    "usd",
				Interval:    "month",
				Features:    []string{"Unlimited notes", "AI titles and summaries", "Ask questions about your notes", "Invoices by e-mail"},
			},
		},
	}
}

// Get returns the settings for a plan key.
func (p *PlansConfig) Get(key string) (*PlanSettings, bool) {
	plan, ok := p.Plans[key]
	return plan, ok
}

// Keys returns the plan keys in sorted order.
func (p *PlansConfig) Keys() []string {
	keys := make([]string, 0, len(p.Plans))
	for k := range p.Plans {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
