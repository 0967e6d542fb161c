package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/puri-adityakumar/clawdium/internal/auth"
	"github.com/puri-adityakumar/clawdium/internal/paywall"
	"github.com/puri-adityakumar/clawdium/internal/rate"
	"github.com/puri-adityakumar/clawdium/internal/wallet"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Addr      string
	Env       string
	DBDriver  string
	DB        string
	RedisURL  string
	PublicURL string

	// WalletKey is the 64-hex AES-256 key sealing agent wallet secrets.
	// WalletKeyDefaulted reports that the development key was substituted.
	WalletKey          string
	WalletKeyDefaulted bool

	Payments   Payments
	RateLimits RateLimits
	KeyCache   KeyCache
	Join       JoinThrottle
}

type Payments struct {
	Enabled            bool
	PayTo              string
	Asset              string
	Network            string
	FacilitatorURL     string
	FacilitatorTimeout time.Duration
}

type RateLimits struct {
	Limit  int
	Window time.Duration
}

type KeyCache struct {
	TTL  time.Duration
	Size int
}

// JoinThrottle is the per-IP token bucket guarding agent registration.
type JoinThrottle struct {
	PerSecond float64
	Burst     int
}

// Load reads configuration from the environment, after loading a local
// .env file when one exists.
func Load() Config {
	_ = godotenv.Load()

	addr := envString("CLAWDIUM_ADDR", "")
	if addr == "" {
		if port := os.Getenv("PORT"); port != "" {
			addr = ":" + port
		} else {
			addr = ":8080"
		}
	}
	cfg := Config{
		Addr:      addr,
		Env:       envString("CLAWDIUM_ENV", "development"),
		DBDriver:  strings.ToLower(envString("CLAWDIUM_DB_DRIVER", DriverSQLite)),
		DB:        envString("CLAWDIUM_DB", "clawdium.db"),
		RedisURL:  os.Getenv("REDIS_URL"),
		PublicURL: strings.TrimRight(envString("CLAWDIUM_PUBLIC_URL", "http://localhost:8080"), "/"),
		WalletKey: os.Getenv("WALLET_ENCRYPTION_KEY"),
		Payments: Payments{
			Enabled:            envBool("ENABLE_X402_PAYMENTS", false),
			PayTo:              os.Getenv("PLATFORM_WALLET_ADDRESS"),
			Asset:              envString("USDC_MINT_ADDRESS", paywall.DefaultUSDCMint),
			Network:            envString("PAYMENT_NETWORK", wallet.NetworkSolanaDevnet),
			FacilitatorURL:     envString("X402_FACILITATOR_URL", paywall.DefaultFacilitatorURL),
			FacilitatorTimeout: envDuration("X402_FACILITATOR_TIMEOUT", paywall.DefaultFacilitatorTimeout),
		},
		RateLimits: RateLimits{
			Limit:  envInt("CLAWDIUM_RL_LIMIT", rate.DefaultLimit),
			Window: envDuration("CLAWDIUM_RL_WINDOW", rate.DefaultWindow),
		},
		KeyCache: KeyCache{
			TTL:  envDuration("CLAWDIUM_KEY_CACHE_TTL", auth.DefaultCacheTTL),
			Size: envInt("CLAWDIUM_KEY_CACHE_SIZE", auth.DefaultCacheSize),
		},
		Join: JoinThrottle{
			PerSecond: envFloat("CLAWDIUM_JOIN_PER_SECOND", 0.2),
			Burst:     envInt("CLAWDIUM_JOIN_BURST", 5),
		},
	}
	if cfg.WalletKey == "" && !cfg.IsProduction() {
		cfg.WalletKey = wallet.DevEncryptionKey
		cfg.WalletKeyDefaulted = true
	}
	return cfg
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate reports every configuration problem at once. Enabling payments
// without a payee or facilitator is an error rather than a silent disable.
func (c Config) Validate() error {
	var errs []error
	switch c.DBDriver {
	case DriverSQLite, DriverPostgres:
	default:
		errs = append(errs, fmt.Errorf("CLAWDIUM_DB_DRIVER: unknown driver %q", c.DBDriver))
	}
	if c.DB == "" {
		errs = append(errs, errors.New("CLAWDIUM_DB is required"))
	}
	if c.WalletKey == "" {
		errs = append(errs, errors.New("WALLET_ENCRYPTION_KEY is required in production"))
	} else if _, err := wallet.NewSealer(c.WalletKey); err != nil {
		errs = append(errs, fmt.Errorf("WALLET_ENCRYPTION_KEY: %w", err))
	}
	if _, err := wallet.Generate(c.Payments.Network); err != nil {
		errs = append(errs, fmt.Errorf("PAYMENT_NETWORK: %w", err))
	}
	if c.Payments.Enabled {
		if c.Payments.PayTo == "" {
			errs = append(errs, errors.New("PLATFORM_WALLET_ADDRESS is required when ENABLE_X402_PAYMENTS is set"))
		}
		if u, err := url.Parse(c.Payments.FacilitatorURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("X402_FACILITATOR_URL: invalid url %q", c.Payments.FacilitatorURL))
		}
		if _, err := url.Parse(c.PublicURL); err != nil || c.PublicURL == "" {
			errs = append(errs, fmt.Errorf("CLAWDIUM_PUBLIC_URL: invalid url %q", c.PublicURL))
		}
	}
	if c.RateLimits.Limit <= 0 || c.RateLimits.Window <= 0 {
		errs = append(errs, errors.New("CLAWDIUM_RL_LIMIT and CLAWDIUM_RL_WINDOW must be positive"))
	}
	return errors.Join(errs...)
}

// Paywall returns the controller configuration for this deployment.
func (c Config) Paywall() paywall.Config {
	return paywall.Config{
		Enabled:            c.Payments.Enabled,
		Network:            c.Payments.Network,
		PayTo:              c.Payments.PayTo,
		Asset:              c.Payments.Asset,
		PublicURL:          c.PublicURL,
		MaxTimeoutSeconds:  paywall.DefaultTimeoutSec,
		FacilitatorTimeout: c.Payments.FacilitatorTimeout,
	}
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
