package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"minicorr/internal/logger"
	"minicorr/internal/mqtt"
	"minicorr/internal/poller"
	"minicorr/internal/protocol"
	"minicorr/internal/server"

	"github.com/spf13/viper"
)

const envPrefix = "MINICORR"

type Device struct {
	Host        string
	Port        int
	AutoConnect bool
	Client      protocol.Options
}

type Monitoring struct {
	Interval  time.Duration
	SampleDir string
	Poller    poller.Options
}

type Logging struct {
	Enabled bool
	Dir     string
}

type Simulator struct {
	Enabled bool
	Addr    string
}

// Config is everything the entrypoint needs. Core packages only see the
// option structs embedded here.
type Config struct {
	LogLevel   string
	HTTPPort   string
	HTTP       server.Options
	DBPath     string
	Device     Device
	Monitoring Monitoring
	Logging    Logging
	Simulator  Simulator
	MQTT       mqtt.Config
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("port", "8080")
	v.SetDefault("db.path", "minicorr.db")

	v.SetDefault("http.read_header_timeout", 10*time.Second)
	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.idle_timeout", 60*time.Second)
	// zero derives the budget from device.reply_timeout
	v.SetDefault("http.write_timeout", 0)

	v.SetDefault("device.host", "192.168.0.100")
	v.SetDefault("device.port", 5100)
	v.SetDefault("device.auto_connect", false)
	v.SetDefault("device.connect_timeout", 5*time.Second)
	v.SetDefault("device.reply_timeout", 5*time.Second)
	v.SetDefault("device.banner_chunk_timeout", 500*time.Millisecond)
	v.SetDefault("device.drain_window", 20*time.Millisecond)

	v.SetDefault("monitoring.interval", 20*time.Second)
	v.SetDefault("monitoring.min_interval", poller.DefaultMinInterval)
	v.SetDefault("monitoring.sleep_floor", poller.DefaultSleepFloor)
	v.SetDefault("monitoring.sample_dir", ".")

	v.SetDefault("logging.enabled", false)
	v.SetDefault("logging.dir", ".")

	v.SetDefault("simulator.enabled", false)
	v.SetDefault("simulator.addr", "127.0.0.1:5100")

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "localhost")
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.client_id", "minicorr")
	v.SetDefault("mqtt.topic_prefix", "minicorr")
	v.SetDefault("mqtt.qos", 0)
	v.SetDefault("mqtt.retain", false)
	v.SetDefault("mqtt.keep_alive", 60*time.Second)
	v.SetDefault("mqtt.publish_timeout", 2*time.Second)
}

// Load reads config.yml from the given directories. A missing file is not an
// error; defaults and MINICORR_* variables still apply.
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

	cfg := fromViper(v)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{
		LogLevel: v.GetString("log.level"),
		HTTPPort: v.GetString("port"),
		DBPath:   v.GetString("db.path"),
		Device: Device{
			Host:        v.GetString("device.host"),
			Port:        v.GetInt("device.port"),
			AutoConnect: v.GetBool("device.auto_connect"),
			Client: protocol.Options{
				ConnectTimeout:     v.GetDuration("device.connect_timeout"),
				ReplyTimeout:       v.GetDuration("device.reply_timeout"),
				BannerChunkTimeout: v.GetDuration("device.banner_chunk_timeout"),
				DrainWindow:        v.GetDuration("device.drain_window"),
			},
		},
		Monitoring: Monitoring{
			Interval:  v.GetDuration("monitoring.interval"),
			SampleDir: v.GetString("monitoring.sample_dir"),
			Poller: poller.Options{
				MinInterval: v.GetDuration("monitoring.min_interval"),
				SleepFloor:  v.GetDuration("monitoring.sleep_floor"),
			},
		},
		Logging: Logging{
			Enabled: v.GetBool("logging.enabled"),
			Dir:     v.GetString("logging.dir"),
		},
		Simulator: Simulator{
			Enabled: v.GetBool("simulator.enabled"),
			Addr:    v.GetString("simulator.addr"),
		},
		MQTT: mqtt.Config{
			Enabled:        v.GetBool("mqtt.enabled"),
			Broker:         v.GetString("mqtt.broker"),
			Port:           v.GetInt("mqtt.port"),
			ClientID:       v.GetString("mqtt.client_id"),
			Username:       v.GetString("mqtt.username"),
			Password:       v.GetString("mqtt.password"),
			TopicPrefix:    v.GetString("mqtt.topic_prefix"),
			QoS:            byte(v.GetUint("mqtt.qos")),
			Retain:         v.GetBool("mqtt.retain"),
			KeepAlive:      v.GetDuration("mqtt.keep_alive"),
			PublishTimeout: v.GetDuration("mqtt.publish_timeout"),
		},
	}
	cfg.HTTP = server.Options{
		ReadHeaderTimeout: v.GetDuration("http.read_header_timeout"),
		ReadTimeout:       v.GetDuration("http.read_timeout"),
		WriteTimeout:      v.GetDuration("http.write_timeout"),
		IdleTimeout:       v.GetDuration("http.idle_timeout"),
		ReplyTimeout:      cfg.Device.Client.ReplyTimeout,
	}
	if cfg.HTTP.WriteTimeout <= 0 {
		cfg.HTTP.WriteTimeout = server.WriteTimeoutFor(cfg.Device.Client.ReplyTimeout)
	}
	return cfg
}

var ErrInvalid = errors.New("invalid configuration")

func (c *Config) validate() error {
	if !logger.ValidLevel(c.LogLevel) {
		return fmt.Errorf("%w: log.level %q", ErrInvalid, c.LogLevel)
	}
	if c.Device.Port < 1 || c.Device.Port > 65535 {
		return fmt.Errorf("%w: device.port %d out of range", ErrInvalid, c.Device.Port)
	}
	if c.Device.Client.ReplyTimeout <= 0 {
		return fmt.Errorf("%w: device.reply_timeout must be positive", ErrInvalid)
	}
	if c.HTTP.WriteTimeout <= c.Device.Client.ReplyTimeout {
		return fmt.Errorf("%w: http.write_timeout %v must exceed device.reply_timeout %v",
			ErrInvalid, c.HTTP.WriteTimeout, c.Device.Client.ReplyTimeout)
	}
	if c.Monitoring.Poller.MinInterval <= 0 || c.Monitoring.Poller.SleepFloor <= 0 {
		return fmt.Errorf("%w: monitoring.min_interval and monitoring.sleep_floor must be positive", ErrInvalid)
	}
	if c.Monitoring.Interval < c.Monitoring.Poller.MinInterval {
		return fmt.Errorf("%w: monitoring.interval %v below monitoring.min_interval %v",
			ErrInvalid, c.Monitoring.Interval, c.Monitoring.Poller.MinInterval)
	}
	if c.MQTT.Enabled && c.MQTT.QoS > 2 {
		return fmt.Errorf("%w: mqtt.qos must be 0, 1 or 2", ErrInvalid)
	}
	return nil
}
