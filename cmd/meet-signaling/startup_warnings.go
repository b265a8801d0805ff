package main

import (
	"log/slog"
	"time"

	"github.com/openmeet/signaling/internal/config"
)

func logStartupSecurityWarnings(logger *slog.Logger, cfg config.Config) {
	if logger == nil {
		logger = slog.Default()
	}

	if containsString(cfg.AllowedOrigins, "*") {
		logger.Warn("startup security warning: ALLOWED_ORIGINS contains '*' (allows any origin)",
			"warning_code", "allowed_origins_wildcard",
			"allowed_origins", cfg.AllowedOrigins,
			"mode", cfg.Mode,
		)
	}

	if cfg.Mode == config.ModeProd && cfg.MaxRooms <= 0 {
		logger.Warn("startup security warning: MEET_SIGNALING_MAX_ROOMS is unset/0 (unlimited) while mode=prod",
			"warning_code", "max_rooms_unlimited_in_prod",
			"max_rooms", cfg.MaxRooms,
			"mode", cfg.Mode,
		)
	}

	if cfg.Mode == config.ModeProd && cfg.MaxMessagesPerSecond <= 0 {
		logger.Warn("startup security warning: MEET_SIGNALING_MAX_MESSAGES_PER_SECOND is unset/0 (unlimited inbound signaling rate) while mode=prod",
			"warning_code", "message_rate_unlimited_in_prod",
			"max_messages_per_second", cfg.MaxMessagesPerSecond,
			"mode", cfg.Mode,
		)
	}

	// Oversized frame caps weaken per-message allocation hardening.
	if cfg.MaxMessageBytes > 1<<20 { // 1MiB
		logger.Warn("startup security warning: MEET_SIGNALING_MAX_MESSAGE_BYTES is very large (increases per-frame allocation risk)",
			"warning_code", "max_message_bytes_large",
			"max_message_bytes", cfg.MaxMessageBytes,
			"mode", cfg.Mode,
		)
	}

	if cfg.WSIdleTimeout > 5*time.Minute {
		logger.Warn("startup security warning: MEET_SIGNALING_WS_IDLE_TIMEOUT is very large (dead connections linger and hold room slots)",
			"warning_code", "ws_idle_timeout_large",
			"ws_idle_timeout", cfg.WSIdleTimeout,
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
