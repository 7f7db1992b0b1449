package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Token delivery modes for the OAuth callback redirect.
const (
	TokenDeliveryHandoff = "handoff"
	TokenDeliveryQuery   = "query"
)

// ProviderConfig holds OAuth client settings for one calendar provider.
type ProviderConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	// IssuerURL enables OIDC discovery of the authorize/token endpoints.
	IssuerURL string `yaml:"issuer_url"`
	// Tenant is only used by Outlook (Azure AD v2 endpoint).
	Tenant string `yaml:"tenant"`
	// APIBaseURL overrides the calendar API root, mainly for tests.
	APIBaseURL string `yaml:"api_base_url"`
}

func (p ProviderConfig) configured() bool {
	return p.ClientID != "" && p.ClientSecret != ""
}

type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	BaseURL    string `yaml:"base_url"`
	BasePath   string `yaml:"base_path"`

	// SiteURL is the frontend that receives the post-callback redirects.
	SiteURL     string `yaml:"site_url"`
	SuccessPath string `yaml:"success_path"`
	ErrorPath   string `yaml:"error_path"`

	DB struct {
		DSN string `yaml:"dsn"`
	} `yaml:"db"`

	Google  ProviderConfig `yaml:"google"`
	Outlook ProviderConfig `yaml:"outlook"`

	Tokens struct {
		Secret      string        `yaml:"secret"`
		Delivery    string        `yaml:"delivery"`
		HandoffTTL  time.Duration `yaml:"handoff_ttl"`
		PurgeSpec   string        `yaml:"purge_schedule"`
		ProviderTTL time.Duration `yaml:"provider_timeout"`
	} `yaml:"tokens"`

	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
	PrometheusEnabled  bool     `yaml:"prometheus_enabled"`
	TrustedProxies     []string `yaml:"trusted_proxies"`
}

// CallbackURL is the fixed redirect URI registered with both providers.
func (c *Config) CallbackURL() string {
	return strings.TrimRight(c.BaseURL, "/") + c.BasePath + "/callback"
}

// SuccessURL is the frontend page the callback redirects to after a token exchange.
func (c *Config) SuccessURL() string {
	return strings.TrimRight(c.SiteURL, "/") + c.SuccessPath
}

// ErrorURL is the frontend page the callback redirects to when anything fails.
func (c *Config) ErrorURL() string {
	return strings.TrimRight(c.SiteURL, "/") + c.ErrorPath
}

func Load() (*Config, error) {
	cfg := &Config{}

	if path := os.Getenv("APP_CONFIG_FILE"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	cfg.ListenAddr = getenvDefault("APP_LISTEN_ADDR", orDefault(cfg.ListenAddr, ":8080"))
	cfg.BaseURL = getenvDefault("APP_BASE_URL", orDefault(cfg.BaseURL, "http://localhost:8080"))
	cfg.BasePath = normalizeBasePath(getenvDefault("APP_BASE_PATH", cfg.BasePath))
	cfg.SiteURL = getenvDefault("APP_SITE_URL", orDefault(cfg.SiteURL, "http://localhost:3000"))
	cfg.SuccessPath = getenvDefault("APP_SUCCESS_PATH", orDefault(cfg.SuccessPath, "/sync-success"))
	cfg.ErrorPath = getenvDefault("APP_ERROR_PATH", orDefault(cfg.ErrorPath, "/sync-error"))
	cfg.DB.DSN = getenvDefault("APP_DB_DSN", cfg.DB.DSN)

	if cfg.DB.DSN == "" {
		host := os.Getenv("APP_DB_HOST")
		name := os.Getenv("APP_DB_NAME")
		user := os.Getenv("APP_DB_USER")
		password := os.Getenv("APP_DB_PASSWORD")
		port := getenvDefault("APP_DB_PORT", "5432")
		sslmode := getenvDefault("APP_DB_SSLMODE", "disable")

		if host != "" && name != "" && user != "" && password != "" {
			cfg.DB.DSN = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, password, host, port, name, sslmode)
		}
	}

	cfg.Google.ClientID = getenvDefault("APP_GOOGLE_CLIENT_ID", cfg.Google.ClientID)
	cfg.Google.ClientSecret = getenvDefault("APP_GOOGLE_CLIENT_SECRET", cfg.Google.ClientSecret)
	cfg.Google.IssuerURL = getenvDefault("APP_GOOGLE_ISSUER_URL", cfg.Google.IssuerURL)
	cfg.Google.APIBaseURL = getenvDefault("APP_GOOGLE_API_BASE_URL", cfg.Google.APIBaseURL)

	cfg.Outlook.ClientID = getenvDefault("APP_OUTLOOK_CLIENT_ID", cfg.Outlook.ClientID)
	cfg.Outlook.ClientSecret = getenvDefault("APP_OUTLOOK_CLIENT_SECRET", cfg.Outlook.ClientSecret)
	cfg.Outlook.IssuerURL = getenvDefault("APP_OUTLOOK_ISSUER_URL", cfg.Outlook.IssuerURL)
	cfg.Outlook.Tenant = getenvDefault("APP_OUTLOOK_TENANT", orDefault(cfg.Outlook.Tenant, "common"))
	cfg.Outlook.APIBaseURL = getenvDefault("APP_OUTLOOK_API_BASE_URL", cfg.Outlook.APIBaseURL)

	cfg.Tokens.Secret = getenvDefault("APP_TOKEN_SECRET", cfg.Tokens.Secret)
	cfg.Tokens.Delivery = strings.ToLower(getenvDefault("APP_TOKEN_DELIVERY", orDefault(cfg.Tokens.Delivery, TokenDeliveryHandoff)))
	cfg.Tokens.HandoffTTL = getenvDuration("APP_HANDOFF_TTL", durationOrDefault(cfg.Tokens.HandoffTTL, 5*time.Minute))
	cfg.Tokens.PurgeSpec = getenvDefault("APP_HANDOFF_PURGE", orDefault(cfg.Tokens.PurgeSpec, "@every 5m"))
	cfg.Tokens.ProviderTTL = getenvDuration("APP_PROVIDER_TIMEOUT", durationOrDefault(cfg.Tokens.ProviderTTL, 30*time.Second))

	if origins := getenvList("APP_CORS_ALLOWED_ORIGINS"); origins != nil {
		cfg.CORSAllowedOrigins = origins
	}
	cfg.PrometheusEnabled = getenvBool("APP_PROMETHEUS_ENDPOINT_ENABLED", cfg.PrometheusEnabled)
	if proxies := getenvList("APP_TRUSTED_PROXIES"); proxies != nil {
		cfg.TrustedProxies = proxies
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if len(cfg.TrustedProxies) == 0 {
		fmt.Println("WARNING: No APP_TRUSTED_PROXIES configured. calsync will trust all proxies - Not recommended for public environments.")
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.DB.DSN == "" {
		return errors.New("APP_DB_DSN is required (or set APP_DB_HOST, APP_DB_NAME, APP_DB_USER, and APP_DB_PASSWORD)")
	}
	if !c.Google.configured() {
		return errors.New("google oauth configuration is required: APP_GOOGLE_CLIENT_ID and APP_GOOGLE_CLIENT_SECRET")
	}
	if !c.Outlook.configured() {
		return errors.New("outlook oauth configuration is required: APP_OUTLOOK_CLIENT_ID and APP_OUTLOOK_CLIENT_SECRET")
	}
	switch c.Tokens.Delivery {
	case TokenDeliveryHandoff:
		if c.Tokens.Secret == "" {
			return errors.New("APP_TOKEN_SECRET is required when APP_TOKEN_DELIVERY=handoff")
		}
		if len(c.Tokens.Secret) < 32 {
			return fmt.Errorf("APP_TOKEN_SECRET must be at least 32 characters long (got %d)", len(c.Tokens.Secret))
		}
	case TokenDeliveryQuery:
	default:
		return fmt.Errorf("APP_TOKEN_DELIVERY must be %q or %q (got %q)", TokenDeliveryHandoff, TokenDeliveryQuery, c.Tokens.Delivery)
	}
	if c.Tokens.HandoffTTL <= 0 {
		return errors.New("APP_HANDOFF_TTL must be positive")
	}
	return nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" || p == "/" {
		return ""
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return strings.TrimRight(p, "/")
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func durationOrDefault(v, def time.Duration) time.Duration {
	if v != 0 {
		return v
	}
	return def
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getenvList(key string) []string {
	if v := os.Getenv(key); v != "" {
		var result []string
		for _, item := range strings.Split(v, ",") {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return nil
}
