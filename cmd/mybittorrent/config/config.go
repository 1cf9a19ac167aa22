// Package config holds the client's runtime settings.
package config

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

// EnvPrefix marks the environment variables Load reads, e.g. MYBT_LOG_LEVEL.
const EnvPrefix = "MYBT_"

// PeerIDPrefix identifies this client in generated peer ids (Azureus style).
const PeerIDPrefix = "-MY0001-"

type Config struct {
	LogLevel string `mapstructure:"log_level"`
	// PeerID must be exactly 20 bytes; one is generated when empty.
	PeerID         string        `mapstructure:"peer_id"`
	Port           int           `mapstructure:"port"`
	DialTimeout    time.Duration `mapstructure:"dial_timeout"`
	TrackerTimeout time.Duration `mapstructure:"tracker_timeout"`
	// IdleTimeout bounds each read from a peer. Zero waits forever.
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
	// RecvBuffer sets SO_RCVBUF on peer sockets when positive.
	RecvBuffer int `mapstructure:"recv_buffer"`
}

func Default() Config {
	return Config{
		LogLevel:       "info",
		Port:           6881,
		DialTimeout:    3 * time.Second,
		TrackerTimeout: 15 * time.Second,
	}
}

// Load builds a Config from the defaults overridden by MYBT_* entries of
// environ (as returned by os.Environ).
func Load(environ []string) (Config, error) {
	cfg := Default()

	values := make(map[string]any)
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		values[strings.ToLower(strings.TrimPrefix(key, EnvPrefix))] = value
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           &cfg,
	})
	if err != nil {
		return cfg, err
	}
	if err := decoder.Decode(values); err != nil {
		return cfg, fmt.Errorf("invalid environment configuration: %w", err)
	}

	if cfg.PeerID == "" {
		if cfg.PeerID, err = GeneratePeerID(); err != nil {
			return cfg, err
		}
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if len(c.PeerID) != 20 {
		return fmt.Errorf("peer id must be 20 bytes, got %d", len(c.PeerID))
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.DialTimeout < 0 || c.TrackerTimeout < 0 || c.IdleTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	if c.RecvBuffer < 0 {
		return fmt.Errorf("receive buffer must not be negative")
	}
	return nil
}

// GeneratePeerID returns PeerIDPrefix followed by 12 random digits.
func GeneratePeerID() (string, error) {
	random := make([]byte, 20-len(PeerIDPrefix))
	if _, err := rand.Read(random); err != nil {
		return "", fmt.Errorf("failed to generate peer ID: %w", err)
	}
	for i := range random {
		random[i] = '0' + random[i]%10
	}
	return PeerIDPrefix + string(random), nil
}
