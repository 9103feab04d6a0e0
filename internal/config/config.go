// Package config loads engine configuration from tidemark.yml, environment
// variables (TIDEMARK_ prefix), and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/tidemark-io/tidemark/internal/model"
)

// Configuration is the fully resolved engine configuration.
type Configuration struct {
	LogLevel   string      `mapstructure:"logLevel"`
	LogConsole bool        `mapstructure:"logConsole"`
	Store      StoreConfig `mapstructure:"store"`
	Retry      RetryConfig `mapstructure:"retry"`

	// CallTimeout bounds every provider adapter call.
	CallTimeout time.Duration `mapstructure:"callTimeout"`

	// Parallelism bounds concurrent environment reconciliations;
	// DriftWorkers bounds concurrent drift reads.
	Parallelism  int `mapstructure:"parallelism"`
	DriftWorkers int `mapstructure:"driftWorkers"`

	// Kinds is the set of resource kinds accepted by validation.
	Kinds []string `mapstructure:"kinds"`

	Drift DriftConfig `mapstructure:"drift"`
}

type StoreConfig struct {
	Type string `mapstructure:"type"` // "sqlite" or "memory"
	Path string `mapstructure:"path"`
}

type RetryConfig struct {
	MaxRetries int           `mapstructure:"maxRetries"`
	BaseDelay  time.Duration `mapstructure:"baseDelay"`
	MaxDelay   time.Duration `mapstructure:"maxDelay"`
}

// DriftConfig carries the per-kind attribute severity classification table.
// The table is operator-supplied; there is no universal rule for which
// attributes are cosmetic.
type DriftConfig struct {
	DefaultSeverity string                       `mapstructure:"defaultSeverity"`
	Classification  map[string]map[string]string `mapstructure:"classification"`
}

// SeverityTable converts the string table into model severities. Unknown
// severity strings are an error rather than a silent Major.
func (d DriftConfig) SeverityTable() (map[string]map[string]model.Severity, model.Severity, error) {
	def, err := parseSeverity(d.DefaultSeverity)
	if err != nil {
		return nil, "", fmt.Errorf("drift.defaultSeverity: %w", err)
	}
	table := make(map[string]map[string]model.Severity, len(d.Classification))
	for kind, attrs := range d.Classification {
		table[kind] = make(map[string]model.Severity, len(attrs))
		for attr, sev := range attrs {
			parsed, err := parseSeverity(sev)
			if err != nil {
				return nil, "", fmt.Errorf("drift.classification.%s.%s: %w", kind, attr, err)
			}
			table[kind][attr] = parsed
		}
	}
	return table, def, nil
}

func parseSeverity(s string) (model.Severity, error) {
	switch strings.ToLower(s) {
	case "", "major":
		return model.SeverityMajor, nil
	case "minor":
		return model.SeverityMinor, nil
	default:
		return "", fmt.Errorf("unknown severity %q", s)
	}
}

// Load reads configuration from the given file, or from ./tidemark.yml when
// path is empty. A missing default file is fine; defaults apply.
func Load(path string) (*Configuration, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("tidemark")
		v.SetConfigType("yml")
	}

	v.SetEnvPrefix("tidemark")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("could not read configuration: %w", err)
		}
	}

	var cfg Configuration
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("could not unmarshal configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logLevel", "info")
	v.SetDefault("logConsole", false)

	v.SetDefault("store.type", "sqlite")
	v.SetDefault("store.path", ".tidemark/state.db")

	v.SetDefault("retry.maxRetries", 3)
	v.SetDefault("retry.baseDelay", "1s")
	v.SetDefault("retry.maxDelay", "30s")

	v.SetDefault("callTimeout", "5m")
	v.SetDefault("parallelism", 4)
	v.SetDefault("driftWorkers", 8)

	v.SetDefault("kinds", []string{
		"network", "subnet", "storage", "compute", "dns", "loadbalancer",
	})

	v.SetDefault("drift.defaultSeverity", "Major")
}
