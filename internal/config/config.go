package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/KevinKickass/OpenWalkingPad/internal/types"
	"github.com/spf13/viper"
)

const (
	DefaultModel           = "ksmb.walkingpad.v1"
	DefaultPollingInterval = time.Second
	DefaultRequestTimeout  = 5 * time.Second
	DefaultEnvFile         = ".env"
)

type Config struct {
	WalkingPad WalkingPadConfig `mapstructure:"walkingpad"`
	Server     ServerConfig     `mapstructure:"server"`
	MQTT       MQTTConfig       `mapstructure:"mqtt"`
	Log        LogConfig        `mapstructure:"log"`
	Devices    DevicesConfig    `mapstructure:"device_profiles"`
}

type WalkingPadConfig struct {
	IP              string        `mapstructure:"ip"`
	Token           string        `mapstructure:"token"`
	Model           string        `mapstructure:"model"`
	PollingInterval time.Duration `mapstructure:"-"`
	RequestTimeout  time.Duration `mapstructure:"-"`
}

type ServerConfig struct {
	HTTPPort        int           `mapstructure:"http_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type MQTTConfig struct {
	Broker    string `mapstructure:"broker"`
	TopicRoot string `mapstructure:"topic_root"`
	ClientID  string `mapstructure:"client_id"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	QoS       int    `mapstructure:"qos"`
}

// Enabled reports whether a broker is configured.
func (m MQTTConfig) Enabled() bool {
	return strings.TrimSpace(m.Broker) != ""
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type DevicesConfig struct {
	SearchPaths []string `mapstructure:"search_paths"`
}

type binding struct {
	key string
	env string
}

var bindings = []binding{
	{"walkingpad.ip", "WALKINGPAD_IP"},
	{"walkingpad.token", "WALKINGPAD_TOKEN"},
	{"walkingpad.model", "WALKINGPAD_MODEL"},
	{"walkingpad.polling_interval", "WALKINGPAD_POLLING_INTERVAL"},
	{"walkingpad.request_timeout", "WALKINGPAD_REQUEST_TIMEOUT"},
	{"server.http_port", "WALKINGPAD_HTTP_PORT"},
	{"server.shutdown_timeout", "WALKINGPAD_SHUTDOWN_TIMEOUT"},
	{"mqtt.broker", "WALKINGPAD_MQTT_BROKER"},
	{"mqtt.topic_root", "WALKINGPAD_MQTT_TOPIC_ROOT"},
	{"mqtt.client_id", "WALKINGPAD_MQTT_CLIENT_ID"},
	{"mqtt.username", "WALKINGPAD_MQTT_USERNAME"},
	{"mqtt.password", "WALKINGPAD_MQTT_PASSWORD"},
	{"mqtt.qos", "WALKINGPAD_MQTT_QOS"},
	{"log.level", "WALKINGPAD_LOG_LEVEL"},
	{"log.format", "WALKINGPAD_LOG_FORMAT"},
	{"device_profiles.search_paths", "WALKINGPAD_PROFILE_PATHS"},
}

// Load reads the configuration from the environment. envFile is an optional
// dotenv file; variables already set in the environment take precedence.
// All failures are configuration errors.
func Load(envFile string) (*Config, error) {
	v := viper.New()

	// Defaults setzen
	v.SetDefault("walkingpad.model", DefaultModel)
	v.SetDefault("walkingpad.polling_interval", "1.0")
	v.SetDefault("walkingpad.request_timeout", "5.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("mqtt.topic_root", "walkingpad")
	v.SetDefault("mqtt.client_id", "walkingpad-bridge")
	v.SetDefault("mqtt.qos", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("device_profiles.search_paths", []string{})

	if err := applyEnvFile(v, envFile); err != nil {
		return nil, err
	}

	for _, b := range bindings {
		if err := v.BindEnv(b.key, b.env); err != nil {
			return nil, types.NewConfigurationError(fmt.Sprintf("failed to bind %s: %v", b.env, err))
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, types.NewConfigurationError(fmt.Sprintf("failed to unmarshal config: %v", err))
	}

	if err := config.resolve(v); err != nil {
		return nil, err
	}
	return &config, nil
}

// applyEnvFile uses the dotenv values as defaults so real environment wins.
func applyEnvFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) && path == DefaultEnvFile {
			return nil
		}
		return types.NewConfigurationError(fmt.Sprintf("cannot read env file %s: %v", path, err))
	}

	dv := viper.New()
	dv.SetConfigFile(path)
	dv.SetConfigType("env")
	if err := dv.ReadInConfig(); err != nil {
		return types.NewConfigurationError(fmt.Sprintf("cannot parse env file %s: %v", path, err))
	}

	for _, b := range bindings {
		name := strings.ToLower(b.env)
		if dv.IsSet(name) {
			v.SetDefault(b.key, dv.GetString(name))
		}
	}
	return nil
}

func (c *Config) resolve(v *viper.Viper) error {
	wp := &c.WalkingPad
	wp.IP = strings.TrimSpace(wp.IP)
	wp.Token = strings.TrimSpace(wp.Token)
	wp.Model = strings.TrimSpace(wp.Model)
	if wp.Model == "" {
		wp.Model = DefaultModel
	}

	var missing []string
	if wp.IP == "" {
		missing = append(missing, "WALKINGPAD_IP")
	}
	if wp.Token == "" {
		missing = append(missing, "WALKINGPAD_TOKEN")
	}
	if len(missing) > 0 {
		return types.NewConfigurationError("Missing required environment variables: " + strings.Join(missing, ", "))
	}

	if _, err := hex.DecodeString(wp.Token); err != nil || len(wp.Token) != 32 {
		return types.NewConfigurationError("WALKINGPAD_TOKEN must be 32 hex characters")
	}

	var err error
	if wp.PollingInterval, err = positiveSeconds("WALKINGPAD_POLLING_INTERVAL", v.GetString("walkingpad.polling_interval"), DefaultPollingInterval); err != nil {
		return err
	}
	if wp.RequestTimeout, err = positiveSeconds("WALKINGPAD_REQUEST_TIMEOUT", v.GetString("walkingpad.request_timeout"), DefaultRequestTimeout); err != nil {
		return err
	}

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return types.NewConfigurationError("WALKINGPAD_HTTP_PORT must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return types.NewConfigurationError("WALKINGPAD_MQTT_QOS must be 0, 1 or 2")
	}
	c.Devices.SearchPaths = splitList(c.Devices.SearchPaths)
	return nil
}

// positiveSeconds parses "1.5" as seconds; Go durations like "500ms" are accepted too.
func positiveSeconds(name, raw string, def time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}

	var d time.Duration
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		if f != f {
			return 0, types.NewConfigurationError(name + " must be a number")
		}
		d = time.Duration(f * float64(time.Second))
		if f > 0 && d <= 0 {
			d = time.Nanosecond
		}
	} else if pd, perr := time.ParseDuration(raw); perr == nil {
		d = pd
	} else {
		return 0, types.NewConfigurationError(name + " must be a number")
	}

	if d <= 0 {
		return 0, types.NewConfigurationError(name + " must be > 0")
	}
	return d, nil
}

// splitList accepts both repeated values and a single comma separated string.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
