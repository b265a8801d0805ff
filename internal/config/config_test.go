package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

func lookupFromMap(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func baseEnv() map[string]string {
	return map[string]string{
		envVarJWTSecret: "test-secret",
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(lookupFromMap(baseEnv()), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.ListenAddr != DefaultListenAddr {
		t.Errorf("ListenAddr=%q, want %q", cfg.ListenAddr, DefaultListenAddr)
	}
	if cfg.Mode != ModeDev {
		t.Errorf("Mode=%q, want %q", cfg.Mode, ModeDev)
	}
	if cfg.LogFormat != LogFormatText {
		t.Errorf("LogFormat=%q, want %q (dev default)", cfg.LogFormat, LogFormatText)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel=%v, want debug (dev default)", cfg.LogLevel)
	}
	if cfg.AuthTimeout != DefaultAuthTimeout {
		t.Errorf("AuthTimeout=%v, want %v", cfg.AuthTimeout, DefaultAuthTimeout)
	}
	if cfg.DefaultRoomCapacity != DefaultRoomCapacity {
		t.Errorf("DefaultRoomCapacity=%d, want %d", cfg.DefaultRoomCapacity, DefaultRoomCapacity)
	}
	if cfg.MaxRooms != 0 {
		t.Errorf("MaxRooms=%d, want 0 (unlimited)", cfg.MaxRooms)
	}
	if cfg.DuplicateConnectionPolicy != DuplicateAllow {
		t.Errorf("DuplicateConnectionPolicy=%q, want %q", cfg.DuplicateConnectionPolicy, DuplicateAllow)
	}
	if cfg.WSIdleTimeout != DefaultWSIdleTimeout || cfg.WSPingInterval != DefaultWSPingInterval {
		t.Errorf("keepalive=%v/%v, want %v/%v", cfg.WSPingInterval, cfg.WSIdleTimeout, DefaultWSPingInterval, DefaultWSIdleTimeout)
	}
}

func TestLoad_ProdModeDefaultsToJSONInfo(t *testing.T) {
	env := baseEnv()
	env[envVarMode] = "prod"

	cfg, err := load(lookupFromMap(env), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogFormat != LogFormatJSON {
		t.Errorf("LogFormat=%q, want %q", cfg.LogFormat, LogFormatJSON)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel=%v, want info", cfg.LogLevel)
	}
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	env := baseEnv()
	env[envVarListenAddr] = "127.0.0.1:9999"
	env[envVarMaxRooms] = "5"

	cfg, err := load(lookupFromMap(env), []string{
		"--listen-addr", "0.0.0.0:8081",
		"--max-rooms", "10",
		"--duplicate-connection-policy", "replace",
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != "0.0.0.0:8081" {
		t.Errorf("ListenAddr=%q, want flag value", cfg.ListenAddr)
	}
	if cfg.MaxRooms != 10 {
		t.Errorf("MaxRooms=%d, want 10", cfg.MaxRooms)
	}
	if cfg.DuplicateConnectionPolicy != DuplicateReplace {
		t.Errorf("DuplicateConnectionPolicy=%q, want replace", cfg.DuplicateConnectionPolicy)
	}
}

func TestLoad_AllowedOriginsParsed(t *testing.T) {
	env := baseEnv()
	env[envVarAllowedOrigins] = "https://meet.example.com, https://staging.example.com ,"

	cfg, err := load(lookupFromMap(env), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := []string{"https://meet.example.com", "https://staging.example.com"}
	if len(cfg.AllowedOrigins) != len(want) {
		t.Fatalf("AllowedOrigins=%v, want %v", cfg.AllowedOrigins, want)
	}
	for i := range want {
		if cfg.AllowedOrigins[i] != want[i] {
			t.Fatalf("AllowedOrigins=%v, want %v", cfg.AllowedOrigins, want)
		}
	}
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		args    []string
		wantErr string
	}{
		{
			name:    "missing jwt secret",
			env:     map[string]string{},
			wantErr: envVarJWTSecret,
		},
		{
			name:    "zero auth timeout",
			env:     baseEnv(),
			args:    []string{"--auth-timeout", "0s"},
			wantErr: "auth-timeout",
		},
		{
			name:    "zero room capacity",
			env:     baseEnv(),
			args:    []string{"--default-room-capacity", "0"},
			wantErr: "default-room-capacity",
		},
		{
			name:    "ping interval not below idle timeout",
			env:     baseEnv(),
			args:    []string{"--ws-ping-interval", "60s", "--ws-idle-timeout", "60s"},
			wantErr: "ws-ping-interval",
		},
		{
			name:    "zero max message bytes",
			env:     baseEnv(),
			args:    []string{"--max-message-bytes", "0"},
			wantErr: "max-message-bytes",
		},
		{
			name:    "invalid duplicate policy",
			env:     baseEnv(),
			args:    []string{"--duplicate-connection-policy", "last-wins"},
			wantErr: "duplicate connection policy",
		},
		{
			name:    "invalid mode",
			env:     baseEnv(),
			args:    []string{"--mode", "staging"},
			wantErr: "invalid mode",
		},
		{
			name: "invalid env duration",
			env: func() map[string]string {
				env := baseEnv()
				env[envVarWSIdleTimeout] = "soon"
				return env
			}(),
			wantErr: envVarWSIdleTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load(lookupFromMap(tt.env), tt.args)
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_DurationsFromEnv(t *testing.T) {
	env := baseEnv()
	env[envVarAuthTimeout] = "750ms"
	env[envVarWSPingInterval] = "5s"
	env[envVarWSIdleTimeout] = "30s"

	cfg, err := load(lookupFromMap(env), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AuthTimeout != 750*time.Millisecond {
		t.Errorf("AuthTimeout=%v, want 750ms", cfg.AuthTimeout)
	}
	if cfg.WSPingInterval != 5*time.Second || cfg.WSIdleTimeout != 30*time.Second {
		t.Errorf("keepalive=%v/%v, want 5s/30s", cfg.WSPingInterval, cfg.WSIdleTimeout)
	}
}
