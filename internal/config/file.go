package config

import (
	"fmt"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// fileConfig is the on-disk config layout. cleanenv picks the decoder from the
// file extension (.yaml, .yml, .json, .toml, .env). Values are kept as strings
// and fed through the same parsers as environment variables.
type fileConfig struct {
	Port            string `yaml:"port" json:"port" toml:"port"`
	ListenAddr      string `yaml:"listen_addr" json:"listen_addr" toml:"listen_addr"`
	AllowedOrigins  string `yaml:"allowed_origins" json:"allowed_origins" toml:"allowed_origins"`
	Mode            string `yaml:"mode" json:"mode" toml:"mode"`
	LogFormat       string `yaml:"log_format" json:"log_format" toml:"log_format"`
	LogLevel        string `yaml:"log_level" json:"log_level" toml:"log_level"`
	ShutdownTimeout string `yaml:"shutdown_timeout" json:"shutdown_timeout" toml:"shutdown_timeout"`

	RelayMode                string `yaml:"relay_mode" json:"relay_mode" toml:"relay_mode"`
	KeepaliveInterval        string `yaml:"keepalive_interval" json:"keepalive_interval" toml:"keepalive_interval"`
	ValidateSignaling        string `yaml:"validate_signaling" json:"validate_signaling" toml:"validate_signaling"`
	MaxQueuedMessagesPerRole string `yaml:"max_queued_messages_per_role" json:"max_queued_messages_per_role" toml:"max_queued_messages_per_role"`

	SignalingWSIdleTimeout        string `yaml:"signaling_ws_idle_timeout" json:"signaling_ws_idle_timeout" toml:"signaling_ws_idle_timeout"`
	SignalingWSPingInterval       string `yaml:"signaling_ws_ping_interval" json:"signaling_ws_ping_interval" toml:"signaling_ws_ping_interval"`
	MaxSignalingMessageBytes      string `yaml:"max_signaling_message_bytes" json:"max_signaling_message_bytes" toml:"max_signaling_message_bytes"`
	MaxSignalingMessagesPerSecond string `yaml:"max_signaling_messages_per_second" json:"max_signaling_messages_per_second" toml:"max_signaling_messages_per_second"`
	SignalingSendQueueSize        string `yaml:"signaling_send_queue_size" json:"signaling_send_queue_size" toml:"signaling_send_queue_size"`
}

func readConfigFile(path string) (map[string]string, error) {
	var fc fileConfig
	if err := cleanenv.ReadConfig(path, &fc); err != nil {
		return nil, fmt.Errorf("read config file %q: %w", path, err)
	}
	return fc.values(), nil
}

// values maps file keys onto the environment variable names so the file can
// sit underneath the env lookup.
func (fc fileConfig) values() map[string]string {
	out := map[string]string{
		envVarPort:            fc.Port,
		envVarListenAddr:      fc.ListenAddr,
		envVarAllowedOrigins:  fc.AllowedOrigins,
		envVarMode:            fc.Mode,
		envVarLogFormat:       fc.LogFormat,
		envVarLogLevel:        fc.LogLevel,
		envVarShutdownTimeout: fc.ShutdownTimeout,

		envVarRelayMode:                fc.RelayMode,
		envVarKeepaliveInterval:        fc.KeepaliveInterval,
		envVarValidateSignaling:        fc.ValidateSignaling,
		envVarMaxQueuedMessagesPerRole: fc.MaxQueuedMessagesPerRole,

		envVarSignalingWSIdleTimeout:        fc.SignalingWSIdleTimeout,
		envVarSignalingWSPingInterval:       fc.SignalingWSPingInterval,
		envVarMaxSignalingMessageBytes:      fc.MaxSignalingMessageBytes,
		envVarMaxSignalingMessagesPerSecond: fc.MaxSignalingMessagesPerSecond,
		envVarSignalingSendQueueSize:        fc.SignalingSendQueueSize,
	}
	for k, v := range out {
		v = strings.TrimSpace(v)
		if v == "" {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	return out
}

func withFallback(lookup func(string) (string, bool), fallback map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return v, true
		}
		v, ok := fallback[key]
		return v, ok
	}
}

// boolFlags are the flags that never consume the following argument.
var boolFlags = map[string]bool{
	"validate-signaling": true,
	"h":                  true,
	"help":               true,
}

// configPathFromArgs finds --config before the main flag set is parsed, since
// the file supplies that flag set's defaults. It walks the args the way
// flag.FlagSet does: a non-boolean flag without "=" takes the next argument as
// its value, and parsing stops at "--" or the first positional argument.
func configPathFromArgs(args []string) string {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" || len(arg) < 2 || arg[0] != '-' {
			return ""
		}
		name := strings.TrimPrefix(strings.TrimPrefix(arg, "-"), "-")
		name, value, hasValue := strings.Cut(name, "=")
		if name == "config" {
			if hasValue {
				return value
			}
			if i+1 < len(args) {
				return args[i+1]
			}
			return ""
		}
		if !hasValue && !boolFlags[name] {
			i++
		}
	}
	return ""
}
