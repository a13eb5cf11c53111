package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the typed view of configs/config.yml plus DEVICE_SYNC_* env overrides.
type Config struct {
	Port        string
	LogLevel    string
	DBPath      string
	Backend     BackendConfig
	Refresh     RefreshConfig
	Push        PushConfig
	JWTSecret   string
	Credentials CredentialsConfig
}

// BackendConfig points the transport at the device backend.
type BackendConfig struct {
	BaseURL  string
	Timeouts Timeouts
}

// Timeouts bound each backend call. There is no retry on elapse.
type Timeouts struct {
	Status     time.Duration
	Stats      time.Duration
	Connect    time.Duration
	Disconnect time.Duration
	Command    time.Duration
}

type RefreshConfig struct {
	Enabled  bool
	Interval time.Duration
}

// PushConfig selects the push channel implementation: "ws", "mqtt" or "none".
type PushConfig struct {
	Transport string
	URL       string
	MQTT      MQTTConfig
}

type MQTTConfig struct {
	Broker   string
	ClientID string
	Prefix   string
}

// CredentialsConfig seeds the credential store on startup when Token is set.
type CredentialsConfig struct {
	Token string
}

const envPrefix = "DEVICE_SYNC"

var (
	errMissingBaseURL   = errors.New("backend.base_url is required")
	errUnknownTransport = errors.New("push.transport must be one of ws, mqtt, none")
	errMissingPushURL   = errors.New("push.url is required for the ws transport")
	errMissingBroker    = errors.New("push.mqtt.broker is required for the mqtt transport")
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("db.path", "app.db")
	v.SetDefault("backend.timeouts.status", "5s")
	v.SetDefault("backend.timeouts.stats", "5s")
	v.SetDefault("backend.timeouts.connect", "10s")
	v.SetDefault("backend.timeouts.disconnect", "5s")
	v.SetDefault("backend.timeouts.command", "5s")
	v.SetDefault("refresh.enabled", true)
	v.SetDefault("refresh.interval", "5s")
	v.SetDefault("push.transport", "none")
	v.SetDefault("push.mqtt.client_id", "device-sync")
	v.SetDefault("push.mqtt.prefix", "device-sync")
}

// Load reads config.yml from the given directories (first match wins).
// A missing file is not an error; defaults and env still apply.
func Load(paths ...string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigName("config")
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		Port:     v.GetString("port"),
		LogLevel: v.GetString("log.level"),
		DBPath:   v.GetString("db.path"),
		Backend: BackendConfig{
			BaseURL: strings.TrimRight(v.GetString("backend.base_url"), "/"),
			Timeouts: Timeouts{
				Status:     v.GetDuration("backend.timeouts.status"),
				Stats:      v.GetDuration("backend.timeouts.stats"),
				Connect:    v.GetDuration("backend.timeouts.connect"),
				Disconnect: v.GetDuration("backend.timeouts.disconnect"),
				Command:    v.GetDuration("backend.timeouts.command"),
			},
		},
		Refresh: RefreshConfig{
			Enabled:  v.GetBool("refresh.enabled"),
			Interval: v.GetDuration("refresh.interval"),
		},
		Push: PushConfig{
			Transport: strings.ToLower(strings.TrimSpace(v.GetString("push.transport"))),
			URL:       v.GetString("push.url"),
			MQTT: MQTTConfig{
				Broker:   v.GetString("push.mqtt.broker"),
				ClientID: v.GetString("push.mqtt.client_id"),
				Prefix:   strings.Trim(v.GetString("push.mqtt.prefix"), "/"),
			},
		},
		JWTSecret:   v.GetString("http.jwt_secret"),
		Credentials: CredentialsConfig{Token: v.GetString("credentials.token")},
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.Backend.BaseURL == "" {
		return errMissingBaseURL
	}
	switch c.Push.Transport {
	case "ws":
		if strings.TrimSpace(c.Push.URL) == "" {
			return errMissingPushURL
		}
	case "mqtt":
		if strings.TrimSpace(c.Push.MQTT.Broker) == "" {
			return errMissingBroker
		}
	case "none":
	default:
		return fmt.Errorf("%w: got %q", errUnknownTransport, c.Push.Transport)
	}
	return nil
}
