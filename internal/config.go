package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	razorpayLiveAPIURL = "https://api.razorpay.com/v1"
	defaultCurrency    = "INR"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"http_server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Security      SecurityConfig      `mapstructure:"security" validate:"required"`
	Razorpay      RazorpayConfig      `mapstructure:"razorpay"`
	Platform      PlatformConfig      `mapstructure:"platform"`
	Sync          SyncConfig          `mapstructure:"sync"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	BaseURL           string        `mapstructure:"base_url"`
	AllowedOrigins    string        `mapstructure:"allowed_origins"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	OpenAPIPath       string        `mapstructure:"openapi_path"`

	ConflictBacklogWarn int `mapstructure:"conflict_backlog_warn"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"required,min=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"required,min=1"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"required,min=1m"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time" validate:"required,min=1m"`
	Source          string        `mapstructure:"source"`
}

type SecurityConfig struct {
	JWTSecret            string        `mapstructure:"jwt_secret" validate:"required,min=32"`
	RefreshSecret        string        `mapstructure:"refresh_secret" validate:"required,min=32"`
	AccessTokenDuration  time.Duration `mapstructure:"access_token_duration" validate:"required,min=1m,max=1h"`
	RefreshTokenDuration time.Duration `mapstructure:"refresh_token_duration" validate:"required,min=1h"`
	BCryptCost           int           `mapstructure:"bcrypt_cost" validate:"required,min=10,max=15"`
}

// RazorpayConfig mirrors the merchant-facing payment method settings.
type RazorpayConfig struct {
	Active             bool          `mapstructure:"active"`
	Sandbox            bool          `mapstructure:"sandbox"`
	KeyID              string        `mapstructure:"key_id"`
	KeySecret          string        `mapstructure:"key_secret"`
	WebhookSecret      string        `mapstructure:"webhook_secret"`
	AcceptedCurrencies []string      `mapstructure:"accepted_currencies"`
	GenerateInvoice    bool          `mapstructure:"generate_invoice"`
	InvoiceStatus      string        `mapstructure:"invoice_status"`
	OrderStatus        string        `mapstructure:"order_status"`
	VerifyPaymentOnAPI bool          `mapstructure:"verify_payment_on_api"`
	APIURL             string        `mapstructure:"api_url"`
	SandboxAPIURL      string        `mapstructure:"sandbox_api_url"`
	Timeout            time.Duration `mapstructure:"timeout"`
	MaxRetries         int           `mapstructure:"max_retries"`
	MerchantName       string        `mapstructure:"merchant_name"`
	Logo               string        `mapstructure:"logo"`
	ThemeColor         string        `mapstructure:"theme_color"`
	CallbackURL        string        `mapstructure:"callback_url"`
	SuccessRedirectURL string        `mapstructure:"success_redirect_url"`
	FailureRedirectURL string        `mapstructure:"failure_redirect_url"`
}

type PlatformConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	APIToken     string        `mapstructure:"api_token"`
	AssetBaseURL string        `mapstructure:"asset_base_url"`
	DefaultLogo  string        `mapstructure:"default_logo"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxRetries   int           `mapstructure:"max_retries"`
}

type SyncConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Interval   time.Duration `mapstructure:"interval"`
	StaleAfter time.Duration `mapstructure:"stale_after"`
	BatchSize  int           `mapstructure:"batch_size"`
	MaxWorkers int           `mapstructure:"max_workers"`
	QueueSize  int           `mapstructure:"queue_size"`

	// ExpireAfter is how long an unpaid order lives before a sync expires it.
	ExpireAfter time.Duration `mapstructure:"expire_after"`
}

type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=json text"`
}

// ----------------- LOADING -----------------

// LoadConfigFromEnv builds the configuration from plain environment
// variables. Used in containers where no config.yml is mounted.
func LoadConfigFromEnv() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:              getEnvAsInt("HTTP_SERVER_PORT", 8080),
			BaseURL:           getEnv("HTTP_SERVER_BASE_URL", "http://localhost:8080"),
			AllowedOrigins:    getEnv("HTTP_SERVER_ALLOWED_ORIGINS", "*"),
			ReadHeaderTimeout: getEnvAsDuration("HTTP_SERVER_READ_HEADER_TIMEOUT", 5*time.Second),
			ReadTimeout:       getEnvAsDuration("HTTP_SERVER_READ_TIMEOUT", 15*time.Second),
			IdleTimeout:       getEnvAsDuration("HTTP_SERVER_IDLE_TIMEOUT", 60*time.Second),
			WriteTimeout:      getEnvAsDuration("HTTP_SERVER_WRITE_TIMEOUT", 15*time.Second),
			OpenAPIPath:       getEnv("HTTP_SERVER_OPENAPI_PATH", "api/openapi.yml"),

			ConflictBacklogWarn: getEnvAsInt("HTTP_SERVER_CONFLICT_BACKLOG_WARN", 50),
		},
		Database: DatabaseConfig{
			MaxOpenConns:    getEnvAsInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvAsDuration("DATABASE_CONN_MAX_IDLE_TIME", 5*time.Minute),
			Source:          getEnv("DATABASE_SOURCE", ""),
		},
		Security: SecurityConfig{
			JWTSecret:            getEnv("SECURITY_JWT_SECRET", ""),
			RefreshSecret:        getEnv("SECURITY_REFRESH_SECRET", ""),
			AccessTokenDuration:  getEnvAsDuration("SECURITY_ACCESS_TOKEN_DURATION", 15*time.Minute),
			RefreshTokenDuration: getEnvAsDuration("SECURITY_REFRESH_TOKEN_DURATION", 7*24*time.Hour),
			BCryptCost:           getEnvAsInt("SECURITY_BCRYPT_COST", 12),
		},
		Razorpay: RazorpayConfig{
			Active:             getEnvAsBool("RAZORPAY_ACTIVE", true),
			Sandbox:            getEnvAsBool("RAZORPAY_SANDBOX", false),
			KeyID:              getEnv("RAZORPAY_KEY_ID", ""),
			KeySecret:          getEnv("RAZORPAY_KEY_SECRET", ""),
			WebhookSecret:      getEnv("RAZORPAY_WEBHOOK_SECRET", ""),
			AcceptedCurrencies: getEnvAsList("RAZORPAY_ACCEPTED_CURRENCIES", []string{defaultCurrency}),
			GenerateInvoice:    getEnvAsBool("RAZORPAY_GENERATE_INVOICE", false),
			InvoiceStatus:      getEnv("RAZORPAY_INVOICE_STATUS", "paid"),
			OrderStatus:        getEnv("RAZORPAY_ORDER_STATUS", "processing"),
			VerifyPaymentOnAPI: getEnvAsBool("RAZORPAY_VERIFY_PAYMENT_ON_API", false),
			APIURL:             getEnv("RAZORPAY_API_URL", razorpayLiveAPIURL),
			SandboxAPIURL:      getEnv("RAZORPAY_SANDBOX_API_URL", razorpayLiveAPIURL),
			Timeout:            getEnvAsDuration("RAZORPAY_TIMEOUT", 10*time.Second),
			MaxRetries:         getEnvAsInt("RAZORPAY_MAX_RETRIES", 3),
			MerchantName:       getEnv("RAZORPAY_MERCHANT_NAME", ""),
			Logo:               getEnv("RAZORPAY_LOGO", ""),
			ThemeColor:         getEnv("RAZORPAY_THEME_COLOR", "#3399cc"),
			CallbackURL:        getEnv("RAZORPAY_CALLBACK_URL", ""),
			SuccessRedirectURL: getEnv("RAZORPAY_SUCCESS_REDIRECT_URL", ""),
			FailureRedirectURL: getEnv("RAZORPAY_FAILURE_REDIRECT_URL", ""),
		},
		Platform: PlatformConfig{
			BaseURL:      getEnv("PLATFORM_BASE_URL", ""),
			APIToken:     getEnv("PLATFORM_API_TOKEN", ""),
			AssetBaseURL: getEnv("PLATFORM_ASSET_BASE_URL", ""),
			DefaultLogo:  getEnv("PLATFORM_DEFAULT_LOGO", "images/razorpay.png"),
			Timeout:      getEnvAsDuration("PLATFORM_TIMEOUT", 10*time.Second),
			MaxRetries:   getEnvAsInt("PLATFORM_MAX_RETRIES", 3),
		},
		Sync: SyncConfig{
			Enabled:     getEnvAsBool("SYNC_ENABLED", true),
			Interval:    getEnvAsDuration("SYNC_INTERVAL", time.Minute),
			StaleAfter:  getEnvAsDuration("SYNC_STALE_AFTER", 15*time.Minute),
			BatchSize:   getEnvAsInt("SYNC_BATCH_SIZE", 50),
			MaxWorkers:  getEnvAsInt("SYNC_MAX_WORKERS", 5),
			QueueSize:   getEnvAsInt("SYNC_QUEUE_SIZE", 100),
			ExpireAfter: getEnvAsDuration("SYNC_EXPIRE_AFTER", 24*time.Hour),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "json"),
			},
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ----------------- HELPERS -----------------

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvAsList(key string, defaultVal []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultVal
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Security.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("security config: %v", err))
	}

	if err := c.Razorpay.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("razorpay config: %v", err))
	}

	if err := c.Sync.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("sync config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.AllowedOrigins != "" {
		origins := strings.Split(c.AllowedOrigins, ",")
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin == "*" {
				continue
			}
			if _, err := url.Parse(origin); err != nil {
				return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
			}
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

func (c *SecurityConfig) Validate() error {
	if len(c.JWTSecret) < 32 {
		return errors.New("jwt_secret must be at least 32 characters")
	}
	if len(c.RefreshSecret) < 32 {
		return errors.New("refresh_secret must be at least 32 characters")
	}
	if c.BCryptCost != 0 && (c.BCryptCost < 10 || c.BCryptCost > 15) {
		return errors.New("bcrypt_cost must be between 10 and 15")
	}
	return nil
}

func (c *RazorpayConfig) Validate() error {
	if !c.Active {
		return nil
	}
	if c.KeyID == "" || c.KeySecret == "" {
		return errors.New("key_id and key_secret are required when razorpay is active")
	}
	if c.WebhookSecret == "" {
		return errors.New("webhook_secret is required when razorpay is active")
	}
	for _, cur := range c.AcceptedCurrencies {
		if len(strings.TrimSpace(cur)) != 3 {
			return fmt.Errorf("invalid accepted currency %q", cur)
		}
	}
	return nil
}

// BaseURL picks the REST endpoint for the configured mode.
func (c *RazorpayConfig) BaseURL() string {
	if c.Sandbox && c.SandboxAPIURL != "" {
		return c.SandboxAPIURL
	}
	if c.APIURL != "" {
		return c.APIURL
	}
	return razorpayLiveAPIURL
}

// Currencies returns the upper-cased allow list, defaulting to INR.
func (c *RazorpayConfig) Currencies() []string {
	if len(c.AcceptedCurrencies) == 0 {
		return []string{defaultCurrency}
	}
	out := make([]string, 0, len(c.AcceptedCurrencies))
	for _, cur := range c.AcceptedCurrencies {
		out = append(out, strings.ToUpper(strings.TrimSpace(cur)))
	}
	return out
}

// LogValue keeps credentials out of structured logs.
func (c RazorpayConfig) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Bool("active", c.Active),
		slog.Bool("sandbox", c.Sandbox),
		slog.String("key_id", c.KeyID),
		slog.String("key_secret", redact(c.KeySecret)),
		slog.String("webhook_secret", redact(c.WebhookSecret)),
		slog.Any("accepted_currencies", c.Currencies()),
		slog.Bool("generate_invoice", c.GenerateInvoice),
	)
}

func (c *SyncConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Interval <= 0 {
		return errors.New("interval must be positive")
	}
	if c.MaxWorkers < 1 {
		return errors.New("max_workers must be at least 1")
	}
	return nil
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}
	return "[REDACTED]"
}
