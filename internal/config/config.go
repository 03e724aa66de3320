package config

import (
	"os"
	"strings"
	"time"

	"codeberg.org/benchkit/dmmlogd/internal/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultIntervalMS   = 1000
	DefaultTimeoutS     = 5
	DefaultMaxPoints    = 1000
	DefaultTimeWindowS  = 600
	DefaultExportFormat = "CSV"
	DefaultLogLevel     = "info"
	DefaultHTTPListen   = ":8867"
	DefaultArchiveDB    = "dmmlogd.db"
	DefaultMQTTBroker   = "tcp://localhost:1883"
	DefaultMQTTTopic    = "dmmlog"
)

// Device is one instrument entry from the [[devices]] config table.
type Device struct {
	Name    string `mapstructure:"name"`
	Address string `mapstructure:"address"`
	// Function is a measurement function name from the SCPI table,
	// e.g. "DC Voltage".
	Function string `mapstructure:"function"`
	Range    string `mapstructure:"range"`
	Samples  int    `mapstructure:"samples"`
	Label    string `mapstructure:"label"`
	Enabled  bool   `mapstructure:"enabled"`
}

type Config struct {
	IntervalMS    int    `mapstructure:"interval_ms"`
	QueryTimeoutS int    `mapstructure:"query_timeout_s"`
	MaxPoints     int    `mapstructure:"max_points"`
	TimeWindowS   int    `mapstructure:"time_window_s"`
	ExportFormat  string `mapstructure:"export_format"`
	LogLevel      string `mapstructure:"log_level"`

	Archive   bool   `mapstructure:"archive"`
	ArchiveDB string `mapstructure:"archive_db"`

	HTTPEnabled bool   `mapstructure:"http_enabled"`
	HTTPListen  string `mapstructure:"http_listen"`

	MQTTEnabled  bool   `mapstructure:"mqtt_enabled"`
	MQTTBroker   string `mapstructure:"mqtt_broker"`
	MQTTClientID string `mapstructure:"mqtt_client_id"`
	MQTTTopic    string `mapstructure:"mqtt_topic"`

	Devices []Device `mapstructure:"devices"`
}

func (c *Config) Interval() time.Duration {
	return time.Duration(c.IntervalMS) * time.Millisecond
}

func (c *Config) QueryTimeout() time.Duration {
	return time.Duration(c.QueryTimeoutS) * time.Second
}

func (c *Config) TimeWindow() time.Duration {
	return time.Duration(c.TimeWindowS) * time.Second
}

// Load reads configuration from dmmlogd.toml (path override via the
// DMMLOGD_CONFIG environment variable), environment variables with
// prefix DMMLOGD, and the given flag set. Flags override file values.
func Load(flags *pflag.FlagSet) (*Config, error) {
	errFactory := errors.New()

	v := viper.New()

	v.SetDefault("interval_ms", DefaultIntervalMS)
	v.SetDefault("query_timeout_s", DefaultTimeoutS)
	v.SetDefault("max_points", DefaultMaxPoints)
	v.SetDefault("time_window_s", DefaultTimeWindowS)
	v.SetDefault("export_format", DefaultExportFormat)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("archive", false)
	v.SetDefault("archive_db", DefaultArchiveDB)
	v.SetDefault("http_enabled", false)
	v.SetDefault("http_listen", DefaultHTTPListen)
	v.SetDefault("mqtt_enabled", false)
	v.SetDefault("mqtt_broker", DefaultMQTTBroker)
	v.SetDefault("mqtt_client_id", "dmmlogd")
	v.SetDefault("mqtt_topic", DefaultMQTTTopic)

	v.SetConfigType("toml")
	if path := os.Getenv("DMMLOGD_CONFIG"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("dmmlogd")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/dmmlogd")
		v.AddConfigPath("/etc")
	}

	if err := v.ReadInConfig(); err != nil {
		// The config file is optional
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if !os.IsNotExist(err) {
				return nil, errFactory.Wrap(errors.ErrReadConfig, err)
			}
		}
	}

	v.SetEnvPrefix("DMMLOGD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrReadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the loaded configuration for values the daemon
// cannot run with.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if c.IntervalMS <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.IntervalMS)
	}
	if c.QueryTimeoutS <= 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, "query_timeout_s must be positive")
	}
	if c.MaxPoints <= 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, "max_points must be positive")
	}
	if c.TimeWindowS < 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, "time_window_s must not be negative")
	}

	switch strings.ToUpper(c.ExportFormat) {
	case "CSV", "JSON", "TXT":
	default:
		return errFactory.WithData(errors.ErrInvalidConfig, "export_format must be CSV, JSON or TXT")
	}

	switch c.LogLevel {
	case "debug", "info", "warning", "warn", "error":
	default:
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}

	for i := range c.Devices {
		d := &c.Devices[i]
		if d.Name == "" {
			return errFactory.New(errors.ErrBlankName)
		}
		if d.Address == "" {
			return errFactory.WithData(errors.ErrBlankAddress, d.Name)
		}
		if d.Samples <= 0 {
			d.Samples = 1
		}
		if d.Range == "" {
			d.Range = "AUTO"
		}
	}

	return nil
}
