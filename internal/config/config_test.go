package config

import (
	"strings"
	"testing"
	"time"

	"github.com/puri-adityakumar/clawdium/internal/wallet"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CLAWDIUM_ADDR", "")
	t.Setenv("PORT", "9090")
	t.Setenv("WALLET_ENCRYPTION_KEY", "")
	t.Setenv("CLAWDIUM_ENV", "")
	t.Setenv("ENABLE_X402_PAYMENTS", "")

	cfg := Load()
	if cfg.Addr != ":9090" {
		t.Fatalf("expected :9090, got %s", cfg.Addr)
	}
	if cfg.DBDriver != DriverSQLite {
		t.Fatalf("expected sqlite driver, got %s", cfg.DBDriver)
	}
	if !cfg.WalletKeyDefaulted || cfg.WalletKey != wallet.DevEncryptionKey {
		t.Fatalf("expected dev wallet key")
	}
	if cfg.Payments.Enabled {
		t.Fatalf("payments should default to disabled")
	}
	if cfg.RateLimits.Limit != 10 || cfg.RateLimits.Window != time.Minute {
		t.Fatalf("unexpected rate limits %+v", cfg.RateLimits)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CLAWDIUM_ADDR", "127.0.0.1:7000")
	t.Setenv("ENABLE_X402_PAYMENTS", "true")
	t.Setenv("PLATFORM_WALLET_ADDRESS", "Payee111")
	t.Setenv("X402_FACILITATOR_TIMEOUT", "3s")
	t.Setenv("CLAWDIUM_PUBLIC_URL", "https://clawdium.example/")
	t.Setenv("CLAWDIUM_RL_LIMIT", "nope")

	cfg := Load()
	if cfg.Addr != "127.0.0.1:7000" {
		t.Fatalf("unexpected addr %s", cfg.Addr)
	}
	if !cfg.Payments.Enabled || cfg.Payments.FacilitatorTimeout != 3*time.Second {
		t.Fatalf("unexpected payments %+v", cfg.Payments)
	}
	if cfg.RateLimits.Limit != 10 {
		t.Fatalf("invalid int should fall back to default, got %d", cfg.RateLimits.Limit)
	}
	pw := cfg.Paywall()
	if pw.PublicURL != "https://clawdium.example" || pw.PayTo != "Payee111" {
		t.Fatalf("unexpected paywall config %+v", pw)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestValidateUnconfiguredPayments(t *testing.T) {
	t.Setenv("ENABLE_X402_PAYMENTS", "1")
	t.Setenv("PLATFORM_WALLET_ADDRESS", "")
	t.Setenv("X402_FACILITATOR_URL", "not a url")

	err := Load().Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"PLATFORM_WALLET_ADDRESS", "X402_FACILITATOR_URL"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %s in %v", want, err)
		}
	}
}

func TestValidateProductionNeedsWalletKey(t *testing.T) {
	t.Setenv("CLAWDIUM_ENV", "production")
	t.Setenv("WALLET_ENCRYPTION_KEY", "")

	cfg := Load()
	if cfg.WalletKeyDefaulted {
		t.Fatalf("production must not default the wallet key")
	}
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "WALLET_ENCRYPTION_KEY") {
		t.Fatalf("expected wallet key error, got %v", err)
	}
}

func TestValidateRejectsUnknownDriverAndNetwork(t *testing.T) {
	t.Setenv("CLAWDIUM_DB_DRIVER", "mysql")
	t.Setenv("PAYMENT_NETWORK", "dogechain")

	err := Load().Validate()
	if err == nil || !strings.Contains(err.Error(), "CLAWDIUM_DB_DRIVER") || !strings.Contains(err.Error(), "PAYMENT_NETWORK") {
		t.Fatalf("expected driver and network errors, got %v", err)
	}
}
