package config_test

import (
	"testing"
	"time"

	"contest-miniapp-backend/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.RoundDuration != 60*time.Second {
		t.Errorf("Expected 60s round, got %s", cfg.RoundDuration)
	}

	if cfg.SettlementWindow != 5*time.Second {
		t.Errorf("Expected 5s settlement window, got %s", cfg.SettlementWindow)
	}

	balance, err := cfg.StartingBalanceAmount()
	if err != nil {
		t.Fatalf("Starting balance: %v", err)
	}
	if balance.String() != "0.05" {
		t.Errorf("Expected starting balance 0.05, got %s", balance)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ROUND_DURATION", "30s")
	t.Setenv("DEMO_FILL", "true")
	t.Setenv("REDIS_DB", "3")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.RoundDuration != 30*time.Second {
		t.Errorf("Expected 30s round, got %s", cfg.RoundDuration)
	}
	if !cfg.DemoFill {
		t.Error("Expected demo fill enabled")
	}
	if cfg.RedisDB != 3 {
		t.Errorf("Expected redis db 3, got %d", cfg.RedisDB)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]map[string]string{
		"window exceeds round": {"ROUND_DURATION": "5s", "SETTLEMENT_WINDOW": "5s"},
		"bad balance":          {"STARTING_BALANCE": "lots"},
		"negative balance":     {"STARTING_BALANCE": "-1"},
		"production secrets":   {"ENV": "production", "JWT_SECRET": "", "BOT_TOKEN": ""},
	}

	for name, vars := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range vars {
				t.Setenv(k, v)
			}
			if _, err := config.Load(); err == nil {
				t.Error("Expected config error")
			}
		})
	}
}
