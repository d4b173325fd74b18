package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full application configuration. It is read once at start.
type Config struct {
	Port        string       `mapstructure:"port"`
	DB          DBConfig     `mapstructure:"db"`
	Log         LogConfig    `mapstructure:"log"`
	MQTT        MQTTConfig   `mapstructure:"mqtt"`
	Plugs       []PlugConfig `mapstructure:"plugs"`
	Controllers int          `mapstructure:"controllers"`
	MiscTopics  []string     `mapstructure:"misc_topics"`
	CostPerKWh  float64      `mapstructure:"cost_per_kwh"`
	Toggle      ToggleConfig `mapstructure:"toggle"`
	WS          WSConfig     `mapstructure:"ws"`
	Simulator   SimConfig    `mapstructure:"simulator"`
}

type DBConfig struct {
	Path string `mapstructure:"path"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MQTTConfig describes the broker connection. Nothing here changes at runtime.
type MQTTConfig struct {
	Host             string        `mapstructure:"host"`
	Port             int           `mapstructure:"port"`
	Path             string        `mapstructure:"path"`
	Username         string        `mapstructure:"username"`
	Password         string        `mapstructure:"password"`
	UseTLS           bool          `mapstructure:"use_tls"`
	CleanSession     bool          `mapstructure:"clean_session"`
	ClientID         string        `mapstructure:"client_id"`
	ReconnectTimeout time.Duration `mapstructure:"reconnect_timeout"`
}

// PlugConfig is the static description of one plug.
type PlugConfig struct {
	Name          string `mapstructure:"name"`
	ConfirmToggle bool   `mapstructure:"confirm_toggle"`
	TotalWatts    bool   `mapstructure:"total_watts"`
}

type ToggleConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	QueryTimeout time.Duration `mapstructure:"query_timeout"`
	// ConfirmTimeout is how long a switch-off prompt holds the plug before
	// it is cancelled.
	ConfirmTimeout time.Duration `mapstructure:"confirm_timeout"`
}

type WSConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// SimConfig replaces the broker with simulated devices when Enabled.
type SimConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Tick    time.Duration `mapstructure:"tick"`
}

const envPrefix = "DASHBOARD"

var (
	errNoPlugs       = errors.New("config: at least one plug is required")
	errBadController = errors.New("config: controllers must be between 1 and 9")
)

// DefaultPlugs mirrors the installation the dashboard was first built for.
var DefaultPlugs = []PlugConfig{
	{Name: "15AMP", ConfirmToggle: true, TotalWatts: true},
	{Name: "20AMP", ConfirmToggle: true, TotalWatts: true},
	{Name: "WaterHeater", TotalWatts: true},
	{Name: "AC-Heater"},
	{Name: "HVAC"},
}

// DefaultMiscTopics are the box environment sensor topics.
var DefaultMiscTopics = []string{"Temp", "Hum", "Pres", "Gas"}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("db.path", "app.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("mqtt.host", "localhost")
	v.SetDefault("mqtt.port", 8080)
	v.SetDefault("mqtt.path", "/")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.client_id", "")
	v.SetDefault("mqtt.use_tls", false)
	v.SetDefault("mqtt.clean_session", true)
	v.SetDefault("mqtt.reconnect_timeout", 2*time.Second)
	v.SetDefault("controllers", 3)
	v.SetDefault("misc_topics", DefaultMiscTopics)
	v.SetDefault("cost_per_kwh", 0.1227)
	v.SetDefault("toggle.poll_interval", 50*time.Millisecond)
	v.SetDefault("toggle.query_timeout", 5*time.Second)
	v.SetDefault("toggle.confirm_timeout", 30*time.Second)
	v.SetDefault("ws.interval", time.Second)
	v.SetDefault("simulator.enabled", false)
	v.SetDefault("simulator.tick", 2*time.Second)
}

// Load reads config.yml from the given directories. A missing file is not an
// error; defaults and DASHBOARD_* environment variables still apply.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigName("config")
	v.SetConfigType("yml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if !v.IsSet("plugs") {
		c.Plugs = append([]PlugConfig(nil), DefaultPlugs...)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks the invariants the dashboard relies on.
func (c *Config) Validate() error {
	if len(c.Plugs) == 0 {
		return errNoPlugs
	}
	seen := make(map[string]struct{}, len(c.Plugs))
	for _, p := range c.Plugs {
		if p.Name == "" || strings.Contains(p.Name, "/") {
			return fmt.Errorf("config: invalid plug name %q", p.Name)
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("config: duplicate plug %q", p.Name)
		}
		seen[p.Name] = struct{}{}
	}
	// Controller topics carry a single digit.
	if c.Controllers < 1 || c.Controllers > 9 {
		return errBadController
	}
	if c.Toggle.PollInterval <= 0 || c.Toggle.QueryTimeout <= 0 {
		return errors.New("config: toggle.poll_interval and toggle.query_timeout must be positive")
	}
	if c.Toggle.ConfirmTimeout <= 0 {
		return errors.New("config: toggle.confirm_timeout must be positive")
	}
	if c.Simulator.Enabled && c.Simulator.Tick <= 0 {
		return errors.New("config: simulator.tick must be positive")
	}
	if c.MQTT.ReconnectTimeout <= 0 {
		return errors.New("config: mqtt.reconnect_timeout must be positive")
	}
	return nil
}
