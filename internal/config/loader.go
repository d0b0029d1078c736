package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Environment keys.
const (
	envPrefix    = "VOLREGIME_"
	envConfig    = "VOLREGIME_CONFIG"
	envNestDelim = "__"
)

var validate = validator.New() //nolint:gochecknoglobals // validator caches struct metadata

func applyDefaults(c *Config) error {
	return defaults.Set(c)
}

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (struct tags)
//  2. file (YAML) if VOLREGIME_CONFIG is set
//  3. env (prefix VOLREGIME_)
func Load(ctx context.Context) (*Config, error) {
	base := New()
	k := koanf.New(".")

	if path := os.Getenv(envConfig); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// VOLREGIME_SAMPLER__DRAWS -> sampler.draws
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		if s == envConfig {
			return ""
		}
		s = strings.TrimPrefix(s, envPrefix)
		return strings.ReplaceAll(strings.ToLower(s), envNestDelim, ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}
	if err := Validate(ctx, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field rules and the cross-field constraints.
func Validate(ctx context.Context, c *Config) error {
	if err := validate.StructCtx(ctx, c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fieldMessage(fe))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if n := len(c.Sampler.Seeds); n > 0 && n != c.Sampler.Chains {
		return fmt.Errorf("%w: %d seeds for %d chains", ErrInvalidConfig, n, c.Sampler.Chains)
	}
	if n := len(c.Model.Bounds); n > 0 && n != c.Model.Regimes-1 {
		return fmt.Errorf("%w: %d regimes need %d bounds, got %d", ErrInvalidConfig, c.Model.Regimes, c.Model.Regimes-1, n)
	}
	if err := validateMetrics(c.Metrics); err != nil {
		return err
	}
	for i, b := range c.Model.Bounds {
		if !b.ByDate() && (b.Lower == nil || b.Upper == nil) {
			return fmt.Errorf("%w: bound %d needs lower and upper, or a date range", ErrInvalidConfig, i+1)
		}
	}
	return nil
}

// metricName matches a valid Prometheus name or label component.
var metricName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`) //nolint:gochecknoglobals // compiled once

func validateMetrics(m Metrics) error {
	names := map[string]string{"metrics.namespace": m.Namespace}
	if m.Subsystem != "" {
		names["metrics.subsystem"] = m.Subsystem
	}
	for label := range m.Labels {
		names["metrics.labels."+label] = label
	}
	for field, v := range names {
		if !metricName.MatchString(v) {
			return fmt.Errorf("%w: %s %q is not a valid metric name", ErrInvalidConfig, field, v)
		}
	}
	for i := 1; i < len(m.Buckets); i++ {
		if m.Buckets[i] <= m.Buckets[i-1] {
			return fmt.Errorf("%w: metrics.buckets must be strictly increasing", ErrInvalidConfig)
		}
	}
	return nil
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Namespace()
	switch fe.Tag() {
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "datetime":
		return fmt.Sprintf("%s must be a date formatted as %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed validation: %s", field, fe.Tag())
	}
}
