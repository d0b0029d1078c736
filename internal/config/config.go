// Package config defines process configuration and its loading.
//
// Defaults come from struct tags, then an optional YAML file named by
// VOLREGIME_CONFIG, then VOLREGIME_* environment variables, where a double
// underscore separates nested keys (VOLREGIME_SAMPLER__DRAWS=4000).
package config

import "fmt"

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level" default:"info" validate:"oneof=debug info warn warning error"`

	// LogFormat selects the log encoding: text or json.
	LogFormat string `koanf:"log_format" default:"text" validate:"oneof=text json"`

	// MetricsAddr, when set, serves /metrics on this address during a run.
	MetricsAddr string `koanf:"metrics_addr" validate:"omitempty,hostname_port"`

	Segmentation Segmentation `koanf:"segmentation"`
	Model        Model        `koanf:"model"`
	Sampler      Sampler      `koanf:"sampler"`
	Events       Events       `koanf:"events"`
	Volatility   Volatility   `koanf:"volatility"`
	Data         Data         `koanf:"data"`
	Metrics      Metrics      `koanf:"metrics"`
}

// Segmentation configures the PELT engine.
type Segmentation struct {
	// Penalty fixes the per-breakpoint penalty; 0 means PenaltyFactor·ln(N).
	Penalty       float64 `koanf:"penalty" validate:"gte=0"`
	PenaltyFactor float64 `koanf:"penalty_factor" default:"3" validate:"gt=0"`
	MinSize       int     `koanf:"min_size" default:"2" validate:"gte=1"`
	Jump          int     `koanf:"jump" default:"1" validate:"gte=1"`
}

// Model configures the regime model.
type Model struct {
	Regimes         int     `koanf:"regimes" default:"2" validate:"gte=2"`
	MuPriorSigma    float64 `koanf:"mu_prior_sigma" default:"0.01" validate:"gt=0"`
	SigmaPriorScale float64 `koanf:"sigma_prior_scale" default:"0.1" validate:"gt=0"`

	// Bounds lists one admissible range per breakpoint, by index or by date.
	// Empty means every breakpoint may take any index.
	Bounds []Bound `koanf:"bounds" validate:"dive"`
}

// Bound is a breakpoint range. Either both indices or at least one date
// must be given; dates are inclusive and resolved against the return series.
type Bound struct {
	Lower *int   `koanf:"lower" validate:"omitempty,gte=0"`
	Upper *int   `koanf:"upper" validate:"omitempty,gte=0"`
	From  string `koanf:"from" validate:"omitempty,datetime=2006-01-02"`
	To    string `koanf:"to" validate:"omitempty,datetime=2006-01-02"`
}

// ByDate reports whether the range is anchored to calendar dates.
func (b Bound) ByDate() bool { return b.From != "" || b.To != "" }

// Sampler configures MCMC sampling.
type Sampler struct {
	Draws         int      `koanf:"draws" default:"2000" validate:"gte=1"`
	Tune          int      `koanf:"tune" default:"1000" validate:"gte=0"`
	Chains        int      `koanf:"chains" default:"4" validate:"gte=1"`
	Seed          uint64   `koanf:"seed" default:"42"`
	Seeds         []uint64 `koanf:"seeds"`
	Workers       int      `koanf:"workers" validate:"gte=0"`
	AdaptInterval int      `koanf:"adapt_interval" default:"100" validate:"gte=1"`
}

// Events configures event correlation.
type Events struct {
	WindowDays   int `koanf:"window_days" default:"60" validate:"gte=0"`
	ImpactWindow int `koanf:"impact_window" default:"30" validate:"gte=1"`
}

// Volatility configures the regime volatility report.
type Volatility struct {
	RollingWindow  int `koanf:"rolling_window" default:"180" validate:"gte=1"`
	PeriodsPerYear int `koanf:"periods_per_year" default:"252" validate:"gte=1"`
}

// Data names the input and output locations.
type Data struct {
	PricesPath  string `koanf:"prices_path"`
	EventsPath  string `koanf:"events_path"`
	OutputDir   string `koanf:"output_dir" default:"out"`
	DateColumn  string `koanf:"date_column" default:"Date" validate:"required"`
	PriceColumn string `koanf:"price_column" default:"Price" validate:"required"`
}

// Metrics configures the Prometheus instrumentation.
type Metrics struct {
	Enabled bool `koanf:"enabled" default:"true"`

	// Namespace and Subsystem prefix every metric name.
	Namespace string            `koanf:"namespace" default:"volregime" validate:"required"`
	Subsystem string            `koanf:"subsystem" default:"engine"`
	Labels    map[string]string `koanf:"labels"`  // constant labels, e.g. dataset: brent
	Buckets   []float64         `koanf:"buckets"` // latency buckets in milliseconds
}

// New returns a Config holding only the tagged defaults.
func New() *Config {
	c := &Config{}
	if err := applyDefaults(c); err != nil {
		// Tags are static, so this only fires on a programming error.
		panic(fmt.Sprintf("config: invalid default tag: %v", err))
	}
	return c
}
