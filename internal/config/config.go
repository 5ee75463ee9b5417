package config

import (
	"os"
	"strings"

	"codeberg.org/mutker/mfcctl/internal/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultLogLevel = "info"

	defaultAdapter        = "sim"
	defaultControllers    = 2
	defaultCycleTime      = 10    // ms
	defaultReceiveTimeout = 2000  // µs
	defaultStateTimeout   = 50000 // µs, SafeOp and Op waits
	defaultSettleTime     = 500   // ms before requesting Operational
	defaultHistoryPoints  = 200
	defaultRecordInterval = 1000 // ms
	defaultRecordBuffer   = 100  // rows
)

type Config struct {
	Adapter        string    `mapstructure:"adapter"`
	Controllers    int       `mapstructure:"controllers"`
	CycleTime      int       `mapstructure:"cycle_time"`      // ms
	ReceiveTimeout int       `mapstructure:"receive_timeout"` // µs
	StateTimeout   int       `mapstructure:"state_timeout"`   // µs
	SettleTime     int       `mapstructure:"settle_time"`     // ms
	HistoryPoints  int       `mapstructure:"history_points"`
	RecordInterval int       `mapstructure:"record_interval"` // ms
	RecordBuffer   int       `mapstructure:"record_buffer"`
	RecordPath     string    `mapstructure:"record_path"`
	Setpoints      []float64 `mapstructure:"setpoints"`
	Metrics        bool      `mapstructure:"metrics"`
	MetricsDB      string    `mapstructure:"metrics_db"`
	LogLevel       string    `mapstructure:"log_level"`
	Debug          bool      `mapstructure:"debug"`
	Verbose        bool      `mapstructure:"verbose"`
}

func Load() (*Config, error) {
	errFactory := errors.New()

	v := viper.New()
	v.SetDefault("adapter", defaultAdapter)
	v.SetDefault("controllers", defaultControllers)
	v.SetDefault("cycle_time", defaultCycleTime)
	v.SetDefault("receive_timeout", defaultReceiveTimeout)
	v.SetDefault("state_timeout", defaultStateTimeout)
	v.SetDefault("settle_time", defaultSettleTime)
	v.SetDefault("history_points", defaultHistoryPoints)
	v.SetDefault("record_interval", defaultRecordInterval)
	v.SetDefault("record_buffer", defaultRecordBuffer)
	v.SetDefault("log_level", DefaultLogLevel)

	flags := pflag.NewFlagSet("mfcctl", pflag.ContinueOnError)
	flags.ParseErrorsWhitelist.UnknownFlags = true
	flags.String("adapter", defaultAdapter, "Bus adapter to open")
	flags.Int("controllers", defaultControllers, "Expected number of controllers on the bus")
	flags.Int("cycle-time", defaultCycleTime, "Cyclic exchange period in milliseconds")
	flags.String("record", "", "CSV file to record telemetry into")
	flags.Bool("metrics", false, "Enable the SQLite sample archive")
	flags.String("log-level", DefaultLogLevel, "Log level (debug, info, warning, error)")
	flags.Bool("debug", false, "Enable debugging mode")
	flags.Bool("verbose", false, "Enable verbose logging")

	if err := flags.Parse(os.Args[1:]); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	// Configuration file: explicit override via MFCCTL_CONFIG, otherwise /etc
	if path := os.Getenv("MFCCTL_CONFIG"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("mfcctl.conf")
		v.SetConfigType("toml")
		v.AddConfigPath("/etc")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, errFactory.WithMessage(errors.ErrReadConfig, "Failed to read config file: "+err.Error())
		}
	}

	// Flags set on the command line override file values
	flags.Visit(func(f *pflag.Flag) {
		key := strings.ReplaceAll(f.Name, "-", "_")
		if f.Name == "record" {
			key = "record_path"
		}
		v.Set(key, f.Value.String())
	})

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) Validate() error {
	errFactory := errors.New()

	if c.Controllers <= 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, "controllers must be positive")
	}
	if c.CycleTime <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, "cycle_time must be positive")
	}
	if c.ReceiveTimeout <= 0 || c.StateTimeout <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, "bus timeouts must be positive")
	}
	if c.HistoryPoints <= 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, "history_points must be positive")
	}
	if c.RecordInterval <= 0 || c.RecordBuffer <= 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, "record settings must be positive")
	}
	if !LogLevel(c.LogLevel).IsValid() {
		return errFactory.New(errors.ErrInvalidLogLevel)
	}

	return nil
}
