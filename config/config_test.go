package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.AppID != "default" {
		t.Errorf("AppID = %q", cfg.AppID)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
	if cfg.HandshakeInterval != 500*time.Millisecond {
		t.Errorf("HandshakeInterval = %v", cfg.HandshakeInterval)
	}
	if cfg.HandshakeTimeout != 5*time.Minute {
		t.Errorf("HandshakeTimeout = %v", cfg.HandshakeTimeout)
	}
	if cfg.CallTimeout != 0 {
		t.Errorf("CallTimeout = %v", cfg.CallTimeout)
	}
	if cfg.StoreDSN != "" || cfg.RedisAddr != "" {
		t.Errorf("store config not empty by default: %q %q", cfg.StoreDSN, cfg.RedisAddr)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("APP_ID", "merchant-7")
	t.Setenv("STORE_DSN", "/var/lib/walletkit/wallet.db")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("HANDSHAKE_TIMEOUT", "1m")
	t.Setenv("CALL_TIMEOUT", "30s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.AppID != "merchant-7" {
		t.Errorf("AppID = %q", cfg.AppID)
	}
	if cfg.StoreDSN != "/var/lib/walletkit/wallet.db" {
		t.Errorf("StoreDSN = %q", cfg.StoreDSN)
	}
	if cfg.RedisAddr != "localhost:6379" {
		t.Errorf("RedisAddr = %q", cfg.RedisAddr)
	}
	if cfg.HandshakeTimeout != time.Minute {
		t.Errorf("HandshakeTimeout = %v", cfg.HandshakeTimeout)
	}
	if cfg.CallTimeout != 30*time.Second {
		t.Errorf("CallTimeout = %v", cfg.CallTimeout)
	}
}
