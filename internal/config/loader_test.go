package config_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/okian/volregime/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()

		convey.Convey("When loading config with defaults only", func() {
			clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Sampler.Chains, convey.ShouldEqual, 4)
				convey.So(cfg.Model.Bounds, convey.ShouldBeEmpty)
			})
		})

		convey.Convey("When loading config with nested environment variables", func() {
			_ = os.Setenv("VOLREGIME_LOG_LEVEL", "debug")
			_ = os.Setenv("VOLREGIME_SAMPLER__DRAWS", "4000")
			_ = os.Setenv("VOLREGIME_SAMPLER__CHAINS", "2")
			_ = os.Setenv("VOLREGIME_EVENTS__WINDOW_DAYS", "30")
			_ = os.Setenv("VOLREGIME_SEGMENTATION__PENALTY", "12.5")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.LogLevel, convey.ShouldEqual, "debug")
				convey.So(cfg.Sampler.Draws, convey.ShouldEqual, 4000)
				convey.So(cfg.Sampler.Chains, convey.ShouldEqual, 2)
				convey.So(cfg.Sampler.Tune, convey.ShouldEqual, 1000) // From defaults
				convey.So(cfg.Events.WindowDays, convey.ShouldEqual, 30)
				convey.So(cfg.Segmentation.Penalty, convey.ShouldEqual, 12.5)
			})
		})

		convey.Convey("When loading config with a YAML file", func() {
			yamlContent := `
log_format: json
model:
  regimes: 3
  bounds:
    - lower: 10
      upper: 120
    - from: "2014-01-01"
      to: "2016-12-31"
sampler:
  chains: 2
  seeds: [7, 11]
data:
  prices_path: data/brent.csv
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("VOLREGIME_CONFIG", tmpFile)
			_ = os.Setenv("VOLREGIME_SAMPLER__DRAWS", "500") // This should layer over the file
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load nested values from YAML", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.LogFormat, convey.ShouldEqual, "json")
				convey.So(cfg.Model.Regimes, convey.ShouldEqual, 3)
				convey.So(cfg.Model.Bounds, convey.ShouldHaveLength, 2)
				convey.So(*cfg.Model.Bounds[0].Lower, convey.ShouldEqual, 10)
				convey.So(*cfg.Model.Bounds[0].Upper, convey.ShouldEqual, 120)
				convey.So(cfg.Model.Bounds[1].ByDate(), convey.ShouldBeTrue)
				convey.So(cfg.Model.Bounds[1].From, convey.ShouldEqual, "2014-01-01")
				convey.So(cfg.Sampler.Seeds, convey.ShouldResemble, []uint64{7, 11})
				convey.So(cfg.Sampler.Draws, convey.ShouldEqual, 500)
				convey.So(cfg.Data.PricesPath, convey.ShouldEqual, "data/brent.csv")
				convey.So(cfg.Data.OutputDir, convey.ShouldEqual, "out") // From defaults
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("VOLREGIME_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("VOLREGIME_CONFIG", "/non/existent/file.yaml")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("VOLREGIME_SAMPLER__DRAWS", "not_a_number")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

func TestConfigValidation(t *testing.T) {
	convey.Convey("Given config validation", t, func() {
		ctx := context.Background()

		convey.Convey("When a field breaks its rule", func() {
			_ = os.Setenv("VOLREGIME_MODEL__REGIMES", "1")
			_ = os.Setenv("VOLREGIME_LOG_FORMAT", "xml")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then every violation is reported", func() {
				convey.So(cfg, convey.ShouldBeNil)
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "Regimes must be greater than or equal to 2")
				convey.So(err.Error(), convey.ShouldContainSubstring, "LogFormat must be one of: text, json")
			})
		})

		convey.Convey("When seeds do not match the chain count", func() {
			cfg := config.New()
			cfg.Sampler.Seeds = []uint64{1, 2}

			err := config.Validate(ctx, cfg)
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			convey.So(err.Error(), convey.ShouldContainSubstring, "2 seeds for 4 chains")
		})

		convey.Convey("When bounds do not match the regime count", func() {
			lo, hi := 1, 5
			cfg := config.New()
			cfg.Model.Bounds = []config.Bound{{Lower: &lo, Upper: &hi}, {Lower: &lo, Upper: &hi}}

			err := config.Validate(ctx, cfg)
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
		})

		convey.Convey("When an index bound is half specified", func() {
			lo := 1
			cfg := config.New()
			cfg.Model.Bounds = []config.Bound{{Lower: &lo}}

			err := config.Validate(ctx, cfg)
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
		})

		convey.Convey("When a date bound is malformed", func() {
			cfg := config.New()
			cfg.Model.Bounds = []config.Bound{{From: "01/02/2014"}}

			err := config.Validate(ctx, cfg)
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
		})

		convey.Convey("When the metrics section is set from the environment", func() {
			_ = os.Setenv("VOLREGIME_METRICS__NAMESPACE", "brent")
			_ = os.Setenv("VOLREGIME_METRICS__ENABLED", "false")
			_ = os.Setenv("VOLREGIME_METRICS__LABELS__DATASET", "ice")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)
			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.Metrics.Namespace, convey.ShouldEqual, "brent")
			convey.So(cfg.Metrics.Subsystem, convey.ShouldEqual, "engine")
			convey.So(cfg.Metrics.Enabled, convey.ShouldBeFalse)
			convey.So(cfg.Metrics.Labels, convey.ShouldResemble, map[string]string{"dataset": "ice"})
		})

		convey.Convey("When a metric name component is invalid", func() {
			cfg := config.New()
			cfg.Metrics.Namespace = "vol-regime"
			err := config.Validate(ctx, cfg)
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			convey.So(err.Error(), convey.ShouldContainSubstring, "metrics.namespace")

			cfg = config.New()
			cfg.Metrics.Labels = map[string]string{"data set": "brent"}
			convey.So(errors.Is(config.Validate(ctx, cfg), config.ErrInvalidConfig), convey.ShouldBeTrue)
		})

		convey.Convey("When latency buckets are not increasing", func() {
			cfg := config.New()
			cfg.Metrics.Buckets = []float64{10, 10, 100}
			convey.So(errors.Is(config.Validate(ctx, cfg), config.ErrInvalidConfig), convey.ShouldBeTrue)
		})

		convey.Convey("When the metrics address is valid", func() {
			cfg := config.New()
			cfg.MetricsAddr = ":9090"
			convey.So(config.Validate(ctx, cfg), convey.ShouldBeNil)
		})
	})
}

// Helper functions.

func clearConfigEnvVars() {
	envVars := []string{
		"VOLREGIME_CONFIG",
		"VOLREGIME_LOG_LEVEL",
		"VOLREGIME_LOG_FORMAT",
		"VOLREGIME_MODEL__REGIMES",
		"VOLREGIME_SAMPLER__DRAWS",
		"VOLREGIME_SAMPLER__CHAINS",
		"VOLREGIME_EVENTS__WINDOW_DAYS",
		"VOLREGIME_SEGMENTATION__PENALTY",
		"VOLREGIME_METRICS__NAMESPACE",
		"VOLREGIME_METRICS__ENABLED",
		"VOLREGIME_METRICS__LABELS__DATASET",
	}
	for _, envVar := range envVars {
		_ = os.Unsetenv(envVar)
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "volregime-config-*.yaml")
	if err != nil {
		panic(err)
	}

	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}

	if err := tmpFile.Close(); err != nil {
		panic(err)
	}

	return tmpFile.Name()
}
