// Package config loads run configuration from an optional YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	"panel-journey-audit/internal/panel"
	"panel-journey-audit/internal/reshape"
)

// EnvPrefix prefixes every environment variable, e.g. PANEL_JOURNEY_LOGGING_LEVEL.
const EnvPrefix = "PANEL_JOURNEY"

// Config represents the complete application configuration
type Config struct {
	Columns ColumnsConfig `yaml:"columns" envconfig:"COLUMNS"`
	Run     RunConfig     `yaml:"run" envconfig:"RUN"`
	Logging LoggingConfig `yaml:"logging" envconfig:"LOGGING"`
	Source  SourceConfig  `yaml:"source" envconfig:"SOURCE"`
	Output  OutputConfig  `yaml:"output" envconfig:"OUTPUT"`
}

// ColumnsConfig names the input columns.
type ColumnsConfig struct {
	ID             string   `yaml:"id" envconfig:"ID" validate:"required"`
	QuarterMarker  string   `yaml:"quarter_marker" envconfig:"QUARTER_MARKER"`
	// DetectQuarters selects every header that parses as a quarter instead
	// of the headers containing QuarterMarker.
	DetectQuarters bool     `yaml:"detect_quarters" envconfig:"DETECT_QUARTERS"`
	Quarters       []string `yaml:"quarters" envconfig:"QUARTERS"`
	Inclusion      string   `yaml:"inclusion" envconfig:"INCLUSION" validate:"required"`
	Exclusion      string   `yaml:"exclusion" envconfig:"EXCLUSION" validate:"required"`
	WideSheet      string   `yaml:"wide_sheet" envconfig:"WIDE_SHEET"`
	PanelSheet     string   `yaml:"panel_sheet" envconfig:"PANEL_SHEET"`
}

// RunConfig tunes the reconciliation.
type RunConfig struct {
	Workers    int      `yaml:"workers" envconfig:"WORKERS" validate:"gte=1"`
	Universe   string   `yaml:"universe" envconfig:"UNIVERSE" validate:"oneof=market panel mercado painel"`
	Categories []string `yaml:"categories" envconfig:"CATEGORIES"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn warning error"`
	Output   string `yaml:"output" envconfig:"OUTPUT" validate:"oneof=console file both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" validate:"required_unless=Output console"`
}

// SourceConfig describes optional SQL sources for the input tables.
type SourceConfig struct {
	Driver     string `yaml:"driver" envconfig:"DRIVER" validate:"omitempty,oneof=pgx sqlite3"`
	DSN        string `yaml:"dsn" envconfig:"DSN"`
	WideQuery  string `yaml:"wide_query" envconfig:"WIDE_QUERY"`
	PanelQuery string `yaml:"panel_query" envconfig:"PANEL_QUERY"`
}

// OutputConfig sets where side outputs go.
type OutputConfig struct {
	Dir         string `yaml:"dir" envconfig:"DIR"`
	Format      string `yaml:"format" envconfig:"FORMAT" validate:"oneof=csv xlsx"`
	MetricsFile string `yaml:"metrics_file" envconfig:"METRICS_FILE"`
}

// Load reads path (when non-empty), overlays environment variables and fills
// defaults for anything still unset, then validates the result.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		fileConfig, err := loadFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
		cfg = *fileConfig
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}
	if cfg.Source.DSN == "" {
		cfg.Source.DSN = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func loadFromFile(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	setDefault(&c.Columns.ID, "CRM LINK")
	setDefault(&c.Columns.QuarterMarker, reshape.DefaultMarker)
	setDefault(&c.Columns.Inclusion, panel.DefaultInclusionColumn)
	setDefault(&c.Columns.Exclusion, panel.DefaultExclusionColumn)
	if c.Run.Workers == 0 {
		c.Run.Workers = runtime.GOMAXPROCS(0)
	}
	setDefault(&c.Run.Universe, "market")
	setDefault(&c.Logging.Level, "info")
	setDefault(&c.Logging.Output, "console")
	setDefault(&c.Logging.FilePath, "logs/panel-journey.log")
	setDefault(&c.Output.Format, "csv")
	setDefault(&c.Output.Dir, "output")
}

func setDefault(field *string, value string) {
	if strings.TrimSpace(*field) == "" {
		*field = value
	}
}

// Validate checks field constraints and the source/driver combination.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}

	usesSQL := c.Source.WideQuery != "" || c.Source.PanelQuery != ""
	if usesSQL && c.Source.Driver == "" {
		return errors.New("source.driver is required when a SQL query is configured")
	}
	if usesSQL && c.Source.DSN == "" {
		return errors.New("source.dsn is required when a SQL query is configured (or set DATABASE_URL)")
	}
	return nil
}
