package config

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/wilsonzlin/aero/proxy/webrtc-rendezvous-relay/internal/origin"
)

const (
	// envVarPort is the conventional platform-provided port variable.
	envVarPort            = "PORT"
	envVarListenAddr      = "AERO_WEBRTC_RENDEZVOUS_RELAY_LISTEN_ADDR"
	envVarConfigPath      = "CONFIG_PATH"
	envVarAllowedOrigins  = "ALLOWED_ORIGINS"
	envVarLogFormat       = "AERO_WEBRTC_RENDEZVOUS_RELAY_LOG_FORMAT"
	envVarLogLevel        = "AERO_WEBRTC_RENDEZVOUS_RELAY_LOG_LEVEL"
	envVarShutdownTimeout = "AERO_WEBRTC_RENDEZVOUS_RELAY_SHUTDOWN_TIMEOUT"
	envVarMode            = "AERO_WEBRTC_RENDEZVOUS_RELAY_MODE"

	// Rendezvous core.
	envVarRelayMode                = "RELAY_MODE"
	envVarKeepaliveInterval        = "KEEPALIVE_INTERVAL"
	envVarValidateSignaling        = "VALIDATE_SIGNALING"
	envVarMaxQueuedMessagesPerRole = "MAX_QUEUED_MESSAGES_PER_ROLE"

	// Signaling WebSocket hardening.
	envVarSignalingWSIdleTimeout        = "SIGNALING_WS_IDLE_TIMEOUT"
	envVarSignalingWSPingInterval       = "SIGNALING_WS_PING_INTERVAL"
	envVarMaxSignalingMessageBytes      = "MAX_SIGNALING_MESSAGE_BYTES"
	envVarMaxSignalingMessagesPerSecond = "MAX_SIGNALING_MESSAGES_PER_SECOND"
	envVarSignalingSendQueueSize        = "SIGNALING_SEND_QUEUE_SIZE"

	DefaultPort                     = 8080
	DefaultShutdown                 = 15 * time.Second
	DefaultMode           Mode      = ModeDev
	DefaultRelayMode      RelayMode = RelayModeRendezvous
	DefaultAllowedOrigins           = origin.Wildcard

	DefaultKeepaliveInterval = 5 * time.Second

	DefaultSignalingWSIdleTimeout        = 60 * time.Second
	DefaultSignalingWSPingInterval       = 20 * time.Second
	DefaultMaxSignalingMessageBytes      = int64(64 * 1024)
	DefaultMaxSignalingMessagesPerSecond = 50
	DefaultSignalingSendQueueSize        = 256
)

type Mode string

const (
	ModeDev  Mode = "dev"
	ModeProd Mode = "prod"
)

type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

type RelayMode string

const (
	RelayModeRendezvous RelayMode = "rendezvous"
	RelayModeBroadcast  RelayMode = "broadcast"
)

type Config struct {
	ListenAddr string
	// ConfigPath is the optional config file that supplied defaults.
	ConfigPath      string
	AllowedOrigins  []string
	LogFormat       LogFormat
	LogLevel        slog.Level
	ShutdownTimeout time.Duration
	Mode            Mode

	RelayMode         RelayMode
	KeepaliveInterval time.Duration
	ValidateSignaling bool
	// MaxQueuedMessagesPerRole bounds each role's message queue. 0 means
	// unbounded.
	MaxQueuedMessagesPerRole int

	// SignalingWSIdleTimeout closes connections that send nothing (not even a
	// pong frame) for this long. 0 disables it.
	SignalingWSIdleTimeout  time.Duration
	SignalingWSPingInterval time.Duration

	MaxSignalingMessageBytes      int64
	MaxSignalingMessagesPerSecond int
	SignalingSendQueueSize        int
}

func Load(args []string) (Config, error) {
	return load(os.LookupEnv, args)
}

func load(lookup func(string) (string, bool), args []string) (Config, error) {
	configPath := configPathFromArgs(args)
	if configPath == "" {
		configPath = envOrDefault(lookup, envVarConfigPath, "")
	}
	if configPath != "" {
		fileValues, err := readConfigFile(configPath)
		if err != nil {
			return Config{}, err
		}
		lookup = withFallback(lookup, fileValues)
	}

	envMode, _ := lookup(envVarMode)
	modeDefault := string(DefaultMode)
	if envMode != "" {
		modeDefault = envMode
	}

	envLogFormat, envLogFormatOK := lookup(envVarLogFormat)
	envLogFormatSet := envLogFormatOK && envLogFormat != ""
	logFormatDefault := envLogFormat
	if !envLogFormatSet {
		logFormatDefault = defaultLogFormatForMode(modeDefault)
	}

	envLogLevel, envLogLevelOK := lookup(envVarLogLevel)
	envLogLevelSet := envLogLevelOK && envLogLevel != ""
	logLevelDefault := envLogLevel
	if !envLogLevelSet {
		logLevelDefault = defaultLogLevelForMode(modeDefault)
	}

	port, err := envIntOrDefault(lookup, envVarPort, DefaultPort)
	if err != nil {
		return Config{}, err
	}
	listenAddr := envOrDefault(lookup, envVarListenAddr, "")
	allowedOriginsStr := envOrDefault(lookup, envVarAllowedOrigins, DefaultAllowedOrigins)
	relayModeStr := envOrDefault(lookup, envVarRelayMode, string(DefaultRelayMode))

	shutdownTimeout, err := envDurationOrDefault(lookup, envVarShutdownTimeout, DefaultShutdown)
	if err != nil {
		return Config{}, err
	}
	keepaliveInterval, err := envDurationOrDefault(lookup, envVarKeepaliveInterval, DefaultKeepaliveInterval)
	if err != nil {
		return Config{}, err
	}
	validateSignaling, err := envBoolOrDefault(lookup, envVarValidateSignaling, false)
	if err != nil {
		return Config{}, err
	}
	maxQueuedMessagesPerRole, err := envIntOrDefault(lookup, envVarMaxQueuedMessagesPerRole, 0)
	if err != nil {
		return Config{}, err
	}

	signalingWSIdleTimeout, err := envDurationOrDefault(lookup, envVarSignalingWSIdleTimeout, DefaultSignalingWSIdleTimeout)
	if err != nil {
		return Config{}, err
	}
	signalingWSPingInterval, err := envDurationOrDefault(lookup, envVarSignalingWSPingInterval, DefaultSignalingWSPingInterval)
	if err != nil {
		return Config{}, err
	}

	maxSignalingMessageBytes := DefaultMaxSignalingMessageBytes
	if raw, ok := lookup(envVarMaxSignalingMessageBytes); ok && strings.TrimSpace(raw) != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s %q: %w", envVarMaxSignalingMessageBytes, raw, err)
		}
		maxSignalingMessageBytes = n
	}
	maxSignalingMessagesPerSecond, err := envIntOrDefault(lookup, envVarMaxSignalingMessagesPerSecond, DefaultMaxSignalingMessagesPerSecond)
	if err != nil {
		return Config{}, err
	}
	signalingSendQueueSize, err := envIntOrDefault(lookup, envVarSignalingSendQueueSize, DefaultSignalingSendQueueSize)
	if err != nil {
		return Config{}, err
	}

	fs := flag.NewFlagSet("aero-webrtc-rendezvous-relay", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var (
		modeStr      string
		logFormatStr string
		logLevelStr  string
	)

	configFlag := fs.String("config", configPath, "Optional YAML/JSON/TOML config file (env "+envVarConfigPath+"); flags and env override it")
	fs.IntVar(&port, "port", port, "HTTP/WebSocket listen port (env "+envVarPort+")")
	fs.StringVar(&listenAddr, "listen-addr", listenAddr, "HTTP listen address host:port; overrides --port when set (env "+envVarListenAddr+")")
	fs.StringVar(&allowedOriginsStr, "allowed-origins", allowedOriginsStr, "Comma-separated list of allowed browser origins, or * (env "+envVarAllowedOrigins+")")
	fs.StringVar(&modeStr, "mode", modeDefault, "Run mode: dev or prod")
	fs.StringVar(&logFormatStr, "log-format", logFormatDefault, "Log format: text or json")
	fs.StringVar(&logLevelStr, "log-level", logLevelDefault, "Log level: debug, info, warn, error")
	fs.DurationVar(&shutdownTimeout, "shutdown-timeout", shutdownTimeout, "Graceful shutdown timeout (e.g. 15s)")

	fs.StringVar(&relayModeStr, "relay-mode", relayModeStr, "Relay mode: rendezvous or broadcast (env "+envVarRelayMode+")")
	fs.DurationVar(&keepaliveInterval, "keepalive-interval", keepaliveInterval, "Interval between application pings to bound roles (env "+envVarKeepaliveInterval+")")
	fs.BoolVar(&validateSignaling, "validate-signaling", validateSignaling, "Discard offers/answers/candidates whose SDP or candidate does not parse (env "+envVarValidateSignaling+")")
	fs.IntVar(&maxQueuedMessagesPerRole, "max-queued-messages-per-role", maxQueuedMessagesPerRole, "Max stored signaling messages per role (0 = unbounded; env "+envVarMaxQueuedMessagesPerRole+")")

	fs.DurationVar(&signalingWSIdleTimeout, "signaling-ws-idle-timeout", signalingWSIdleTimeout, "Close signaling WebSocket connections idle for this long (0 = never; env "+envVarSignalingWSIdleTimeout+")")
	fs.DurationVar(&signalingWSPingInterval, "signaling-ws-ping-interval", signalingWSPingInterval, "Send WebSocket ping frames at this interval (must be < --signaling-ws-idle-timeout; env "+envVarSignalingWSPingInterval+")")
	fs.Int64Var(&maxSignalingMessageBytes, "max-signaling-message-bytes", maxSignalingMessageBytes, "Max inbound signaling WS message size in bytes (env "+envVarMaxSignalingMessageBytes+")")
	fs.IntVar(&maxSignalingMessagesPerSecond, "max-signaling-messages-per-second", maxSignalingMessagesPerSecond, "Max inbound signaling WS messages per second (0 = unlimited; env "+envVarMaxSignalingMessagesPerSecond+")")
	fs.IntVar(&signalingSendQueueSize, "signaling-send-queue-size", signalingSendQueueSize, "Outbound messages buffered per connection (env "+envVarSignalingSendQueueSize+")")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if *configFlag != configPath {
		return Config{}, fmt.Errorf("--config %q was not found when scanning flags; pass it before any positional argument", *configFlag)
	}

	setFlags := map[string]bool{}
	fs.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})

	mode, err := parseMode(modeStr)
	if err != nil {
		return Config{}, err
	}

	if !envLogFormatSet && !setFlags["log-format"] {
		logFormatStr = defaultLogFormatForMode(string(mode))
	}
	if !envLogLevelSet && !setFlags["log-level"] {
		logLevelStr = defaultLogLevelForMode(string(mode))
	}

	logFormat, err := parseLogFormat(logFormatStr)
	if err != nil {
		return Config{}, err
	}
	level, err := parseLogLevel(logLevelStr)
	if err != nil {
		return Config{}, err
	}
	relayMode, err := parseRelayMode(relayModeStr)
	if err != nil {
		return Config{}, err
	}
	allowedOrigins, err := parseAllowedOrigins(allowedOriginsStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid %s/--allowed-origins: %w", envVarAllowedOrigins, err)
	}

	if port <= 0 || port > 65535 {
		return Config{}, fmt.Errorf("%s/--port must be in 1-65535; got %d", envVarPort, port)
	}
	if strings.TrimSpace(listenAddr) == "" {
		listenAddr = ":" + strconv.Itoa(port)
	}
	if shutdownTimeout <= 0 {
		return Config{}, fmt.Errorf("shutdown timeout must be > 0")
	}
	if keepaliveInterval <= 0 {
		return Config{}, fmt.Errorf("%s/--keepalive-interval must be > 0", envVarKeepaliveInterval)
	}
	if maxQueuedMessagesPerRole < 0 {
		return Config{}, fmt.Errorf("%s/--max-queued-messages-per-role must be >= 0", envVarMaxQueuedMessagesPerRole)
	}
	if signalingWSIdleTimeout < 0 {
		return Config{}, fmt.Errorf("%s/--signaling-ws-idle-timeout must be >= 0", envVarSignalingWSIdleTimeout)
	}
	if signalingWSPingInterval < 0 {
		return Config{}, fmt.Errorf("%s/--signaling-ws-ping-interval must be >= 0", envVarSignalingWSPingInterval)
	}
	if signalingWSIdleTimeout > 0 {
		if signalingWSPingInterval <= 0 {
			return Config{}, fmt.Errorf("%s/--signaling-ws-ping-interval must be > 0 when %s is set", envVarSignalingWSPingInterval, envVarSignalingWSIdleTimeout)
		}
		if signalingWSPingInterval >= signalingWSIdleTimeout {
			return Config{}, fmt.Errorf("%s/--signaling-ws-ping-interval (%s) must be < %s/--signaling-ws-idle-timeout (%s)",
				envVarSignalingWSPingInterval, signalingWSPingInterval,
				envVarSignalingWSIdleTimeout, signalingWSIdleTimeout,
			)
		}
	}
	if maxSignalingMessageBytes <= 0 {
		return Config{}, fmt.Errorf("%s/--max-signaling-message-bytes must be > 0", envVarMaxSignalingMessageBytes)
	}
	if maxSignalingMessagesPerSecond < 0 {
		return Config{}, fmt.Errorf("%s/--max-signaling-messages-per-second must be >= 0", envVarMaxSignalingMessagesPerSecond)
	}
	if signalingSendQueueSize <= 0 {
		return Config{}, fmt.Errorf("%s/--signaling-send-queue-size must be > 0", envVarSignalingSendQueueSize)
	}

	return Config{
		ListenAddr:      listenAddr,
		ConfigPath:      configPath,
		AllowedOrigins:  allowedOrigins,
		LogFormat:       logFormat,
		LogLevel:        level,
		ShutdownTimeout: shutdownTimeout,
		Mode:            mode,

		RelayMode:                relayMode,
		KeepaliveInterval:        keepaliveInterval,
		ValidateSignaling:        validateSignaling,
		MaxQueuedMessagesPerRole: maxQueuedMessagesPerRole,

		SignalingWSIdleTimeout:        signalingWSIdleTimeout,
		SignalingWSPingInterval:       signalingWSPingInterval,
		MaxSignalingMessageBytes:      maxSignalingMessageBytes,
		MaxSignalingMessagesPerSecond: maxSignalingMessagesPerSecond,
		SignalingSendQueueSize:        signalingSendQueueSize,
	}, nil
}

func NewLogger(cfg Config) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	switch cfg.LogFormat {
	case LogFormatText:
		handler = slog.NewTextHandler(os.Stdout, opts)
	case LogFormatJSON:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		return nil, fmt.Errorf("unsupported log format %q", cfg.LogFormat)
	}

	return slog.New(handler), nil
}

func envOrDefault(lookup func(string) (string, bool), key, fallback string) string {
	if v, ok := lookup(key); ok && v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(lookup func(string) (string, bool), key string, fallback int) (int, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func envDurationOrDefault(lookup func(string) (string, bool), key string, fallback time.Duration) (time.Duration, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}

func envBoolOrDefault(lookup func(string) (string, bool), key string, fallback bool) (bool, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

func defaultLogFormatForMode(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case string(ModeProd), "production":
		return string(LogFormatJSON)
	default:
		return string(LogFormatText)
	}
}

func defaultLogLevelForMode(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case string(ModeProd), "production":
		return "info"
	default:
		return "debug"
	}
}

func parseMode(raw string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(ModeDev), "development":
		return ModeDev, nil
	case string(ModeProd), "production":
		return ModeProd, nil
	default:
		return "", fmt.Errorf("invalid mode %q (expected dev or prod)", raw)
	}
}

func parseLogFormat(raw string) (LogFormat, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(LogFormatText):
		return LogFormatText, nil
	case string(LogFormatJSON):
		return LogFormatJSON, nil
	default:
		return "", fmt.Errorf("invalid log format %q (expected text or json)", raw)
	}
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q (expected debug, info, warn, error)", raw)
	}
}

func parseRelayMode(raw string) (RelayMode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(RelayModeRendezvous):
		return RelayModeRendezvous, nil
	case string(RelayModeBroadcast):
		return RelayModeBroadcast, nil
	default:
		return "", fmt.Errorf("invalid %s %q (expected %s or %s)", envVarRelayMode, raw, RelayModeRendezvous, RelayModeBroadcast)
	}
}

func parseAllowedOrigins(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	var out []string
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if entry == origin.Wildcard {
			out = append(out, entry)
			continue
		}

		normalizedOrigin, _, ok := origin.NormalizeHeader(entry)
		if !ok {
			return nil, fmt.Errorf("invalid origin %q (expected full origin like https://example.com)", entry)
		}
		out = append(out, normalizedOrigin)
	}

	return out, nil
}
