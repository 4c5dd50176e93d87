package transport

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/vinayprograms/wsrpc/errors"
)

// ErrInsecurePermissions is returned when a config file carrying handshake
// headers is readable by group or others.
var ErrInsecurePermissions = fmt.Errorf("config file has insecure permissions")

// Config holds client settings, usually loaded from wsrpc.toml.
//
//	endpoint = "wss://tools.example.com/rpc"
//	max_attempts = 3
//	backoff = "1s"
//
//	[headers]
//	Authorization = "Bearer ..."
type Config struct {
	Endpoint         string            `toml:"endpoint"`
	Headers          map[string]string `toml:"headers"`
	MaxAttempts      int               `toml:"max_attempts"`
	Backoff          time.Duration     `toml:"backoff"`
	HandshakeTimeout time.Duration     `toml:"handshake_timeout"`
	WriteTimeout     time.Duration     `toml:"write_timeout"`

	// PingInterval is the keepalive period. Zero disables pings.
	PingInterval time.Duration `toml:"ping_interval"`

	// MaxMessageSize caps inbound frames in bytes. Zero means no limit.
	MaxMessageSize int64  `toml:"max_message_size"`
	LogLevel       string `toml:"log_level"`
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:      3,
		Backoff:          time.Second,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		PingInterval:     30 * time.Second,
		MaxMessageSize:   1 << 20,
		LogLevel:         "info",
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.MaxAttempts <= 0 {
		return errors.Newf(errors.ErrCodeInvalidInput, "max_attempts must be positive, got %d", c.MaxAttempts)
	}
	durations := []struct {
		name string
		d    time.Duration
	}{
		{"backoff", c.Backoff},
		{"handshake_timeout", c.HandshakeTimeout},
		{"write_timeout", c.WriteTimeout},
		{"ping_interval", c.PingInterval},
	}
	for _, f := range durations {
		if f.d < 0 {
			return errors.Newf(errors.ErrCodeInvalidInput, "%s must not be negative, got %s", f.name, f.d)
		}
	}
	if c.MaxMessageSize < 0 {
		return errors.Newf(errors.ErrCodeInvalidInput, "max_message_size must not be negative, got %d", c.MaxMessageSize)
	}
	return nil
}

// LoadConfig reads a TOML file on top of DefaultConfig. Unknown keys are
// rejected. A file that sets headers must be private to its owner.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, errors.WrapWithCode(err, errors.ErrCodeInvalidInput, "loading config "+path)
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return Config{}, errors.Newf(errors.ErrCodeInvalidInput, "%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}

	if len(cfg.Headers) > 0 && runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		if err != nil {
			return Config{}, err
		}
		if mode := info.Mode().Perm(); mode&0o077 != 0 {
			return Config{}, fmt.Errorf("%w: %s has mode %04o (headers require 0600 or stricter)",
				ErrInsecurePermissions, path, mode)
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// StandardConfigPaths returns the config locations searched by FindConfig,
// in priority order.
func StandardConfigPaths() []string {
	paths := []string{"wsrpc.toml"}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "wsrpc", "config.toml"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".wsrpc.toml"))
	}
	return paths
}

// FindConfig loads the first existing file from StandardConfigPaths. With no
// file present it returns DefaultConfig and an empty path.
func FindConfig() (Config, string, error) {
	for _, path := range StandardConfigPaths() {
		if _, err := os.Stat(path); err == nil {
			cfg, err := LoadConfig(path)
			return cfg, path, err
		}
	}
	return DefaultConfig(), "", nil
}
