package main

import (
	"log/slog"

	"github.com/wilsonzlin/aero/proxy/webrtc-rendezvous-relay/internal/config"
	"github.com/wilsonzlin/aero/proxy/webrtc-rendezvous-relay/internal/origin"
)

func logStartupSecurityWarnings(logger *slog.Logger, cfg config.Config) {
	if logger == nil {
		logger = slog.Default()
	}

	if containsString(cfg.AllowedOrigins, origin.Wildcard) {
		logger.Warn("startup security warning: ALLOWED_ORIGINS contains '*' (any web page can open a signaling connection)",
			"warning_code", "allowed_origins_wildcard",
			"allowed_origins", cfg.AllowedOrigins,
			"mode", cfg.Mode,
		)
	}

	// Role claims are taken at face value, so broadcast mode hands every
	// payload to every connected client.
	if cfg.RelayMode == config.RelayModeBroadcast {
		logger.Warn("startup security warning: RELAY_MODE=broadcast forwards every message to every connected client",
			"warning_code", "relay_mode_broadcast",
			"relay_mode", cfg.RelayMode,
			"mode", cfg.Mode,
		)
	}

	if cfg.Mode == config.ModeProd && cfg.MaxQueuedMessagesPerRole <= 0 {
		logger.Warn("startup security warning: MAX_QUEUED_MESSAGES_PER_ROLE is unset/0 (unbounded message store) while --mode=prod",
			"warning_code", "message_queue_unbounded_in_prod",
			"max_queued_messages_per_role", cfg.MaxQueuedMessagesPerRole,
			"mode", cfg.Mode,
		)
	}

	if cfg.Mode == config.ModeProd && cfg.MaxSignalingMessagesPerSecond <= 0 {
		logger.Warn("startup security warning: MAX_SIGNALING_MESSAGES_PER_SECOND is 0 (unlimited) while --mode=prod",
			"warning_code", "signaling_rate_limit_disabled_in_prod",
			"max_signaling_messages_per_second", cfg.MaxSignalingMessagesPerSecond,
			"mode", cfg.Mode,
		)
	}

	if cfg.SignalingWSIdleTimeout <= 0 {
		logger.Warn("startup security warning: SIGNALING_WS_IDLE_TIMEOUT is 0 (dead connections keep their role bindings until TCP notices)",
			"warning_code", "signaling_ws_idle_timeout_disabled",
			"signaling_ws_idle_timeout", cfg.SignalingWSIdleTimeout,
			"mode", cfg.Mode,
		)
	}

	if cfg.MaxSignalingMessageBytes > 1<<20 { // 1MiB
		logger.Warn("startup security warning: MAX_SIGNALING_MESSAGE_BYTES is very large (stored messages are held in memory until cleared)",
			"warning_code", "max_signaling_message_large",
			"max_signaling_message_bytes", cfg.MaxSignalingMessageBytes,
			"mode", cfg.Mode,
		)
	}
}

func containsString(xs []string, v string) bool {
	for _, s := range xs {
		if s == v {
			return true
		}
	}
	return false
}
