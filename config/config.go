package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. PVSIM_SERVER_PORT.
const EnvPrefix = "pvsim"

var ErrInvalid = errors.New("invalid configuration")

// Config holds the application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Simulation SimulationConfig `mapstructure:"simulation"`
	Reporting  ReportingConfig  `mapstructure:"reporting"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	MQTT       MQTTConfig       `mapstructure:"mqtt"`
	UI         UIConfig         `mapstructure:"ui"`
}

type ServerConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	CommonAddress int    `mapstructure:"common_address"`
}

type SimulationConfig struct {
	TickInterval  time.Duration `mapstructure:"tick_interval"`
	Seed          int64         `mapstructure:"seed"`
	DaylightStart float64       `mapstructure:"daylight_start"`
	DaylightEnd   float64       `mapstructure:"daylight_end"`
	CloudNoise    float64       `mapstructure:"cloud_noise"`
	Efficiency    float64       `mapstructure:"efficiency"`
}

type ReportingConfig struct {
	Cooldown  time.Duration `mapstructure:"cooldown"`
	BatchSize int           `mapstructure:"batch_size"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type HTTPConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

type MQTTConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Broker    string `mapstructure:"broker"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	BaseTopic string `mapstructure:"base_topic"`
	QoS       byte   `mapstructure:"qos"`
}

type UIConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Address is the IEC 104 listen address.
func (s ServerConfig) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 2404)
	v.SetDefault("server.common_address", 1)

	v.SetDefault("simulation.tick_interval", time.Second)
	v.SetDefault("simulation.seed", 0)
	v.SetDefault("simulation.daylight_start", 6.0)
	v.SetDefault("simulation.daylight_end", 18.0)
	v.SetDefault("simulation.cloud_noise", 0.15)
	v.SetDefault("simulation.efficiency", 0.97)

	v.SetDefault("reporting.cooldown", 5*time.Second)
	v.SetDefault("reporting.batch_size", 20)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("http.enabled", false)
	v.SetDefault("http.listen", ":8080")

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.base_topic", "pvsim")
	v.SetDefault("mqtt.qos", 0)

	v.SetDefault("ui.enabled", false)
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg, err := decode(newViper())
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads the configuration. Values come from the built-in defaults,
// then the YAML file at path (or ./config.yaml when path is empty and the
// file exists), then PVSIM_* environment variables. A .env file in the
// working directory is loaded into the environment first.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch {
	case c.Server.Port < 1 || c.Server.Port > 65535:
		return fmt.Errorf("%w: server.port %d out of range", ErrInvalid, c.Server.Port)
	case c.Server.CommonAddress < 1 || c.Server.CommonAddress > 65534:
		return fmt.Errorf("%w: server.common_address %d out of range", ErrInvalid, c.Server.CommonAddress)
	case c.Simulation.TickInterval <= 0:
		return fmt.Errorf("%w: simulation.tick_interval must be positive", ErrInvalid)
	case c.Simulation.DaylightStart < 0 || c.Simulation.DaylightEnd > 24 || c.Simulation.DaylightStart >= c.Simulation.DaylightEnd:
		return fmt.Errorf("%w: daylight window %.2f-%.2f", ErrInvalid, c.Simulation.DaylightStart, c.Simulation.DaylightEnd)
	case c.Simulation.CloudNoise < 0 || c.Simulation.CloudNoise >= 1:
		return fmt.Errorf("%w: simulation.cloud_noise must be in [0,1)", ErrInvalid)
	case c.Simulation.Efficiency <= 0 || c.Simulation.Efficiency > 1:
		return fmt.Errorf("%w: simulation.efficiency must be in (0,1]", ErrInvalid)
	case c.Reporting.Cooldown < 0:
		return fmt.Errorf("%w: reporting.cooldown must not be negative", ErrInvalid)
	case c.Reporting.BatchSize < 1:
		return fmt.Errorf("%w: reporting.batch_size must be at least 1", ErrInvalid)
	case c.MQTT.Enabled && c.MQTT.Broker == "":
		return fmt.Errorf("%w: mqtt.broker is required when mqtt is enabled", ErrInvalid)
	case c.MQTT.QoS > 2:
		return fmt.Errorf("%w: mqtt.qos must be 0, 1 or 2", ErrInvalid)
	case c.Logging.Format != "text" && c.Logging.Format != "json":
		return fmt.Errorf("%w: logging.format must be text or json", ErrInvalid)
	}
	return nil
}

// Redacted returns a copy safe to log.
func (c Config) Redacted() Config {
	if c.MQTT.Username != "" {
		c.MQTT.Username = "*redacted*"
	}
	if c.MQTT.Password != "" {
		c.MQTT.Password = "*redacted*"
	}
	return c
}
