package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config is the top-level smsverify configuration.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	SMS     SMSConfig     `toml:"sms"`
	Logging LoggingConfig `toml:"logging"`
}

type ServerConfig struct {
	Host            string `toml:"host"`
	Port            int    `toml:"port"`
	RateLimit       int    `toml:"rate_limit"` // requests per minute per IP, 0 disables
	ShutdownTimeout int    `toml:"shutdown_timeout"`
}

// SMSConfig controls code issuance and the delivery gateways.
type SMSConfig struct {
	CountryCode    string       `toml:"country_code"`
	CodeLength     int          `toml:"code_length"`
	CodeTTL        int          `toml:"code_ttl"` // seconds
	Cooldown       int          `toml:"cooldown"` // seconds
	MaxAttempts    int          `toml:"max_attempts"`
	SenderText     string       `toml:"sender_text"`
	Locale         string       `toml:"locale"`
	Gateways       []string     `toml:"gateways"` // tried in order: "eskiz", "twilio", "log"
	GatewayTimeout int          `toml:"gateway_timeout"` // seconds per send attempt
	FixturePhone   string       `toml:"fixture_phone"`
	FixtureCode    string       `toml:"fixture_code"`
	Eskiz          EskizConfig  `toml:"eskiz"`
	Twilio         TwilioConfig `toml:"twilio"`
}

type EskizConfig struct {
	Email    string `toml:"email"`
	Password string `toml:"password"`
	From     string `toml:"from"`
	BaseURL  string `toml:"base_url"`
}

type TwilioConfig struct {
	AccountSID string `toml:"account_sid"`
	AuthToken  string `toml:"auth_token"`
	FromNumber string `toml:"from_number"`
	BaseURL    string `toml:"base_url"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Default returns a Config with all defaults applied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8091,
			RateLimit:       10,
			ShutdownTimeout: 10,
		},
		SMS: SMSConfig{
			CountryCode:    "998",
			CodeLength:     6,
			CodeTTL:        600,
			Cooldown:       60,
			MaxAttempts:    3,
			SenderText:     "Код подтверждения авторизации в приложении Oson Ish",
			Locale:         "ru",
			Gateways:       []string{"log"},
			GatewayTimeout: 10,
			Eskiz: EskizConfig{
				From: "4546",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configuration with priority: defaults → smsverify.toml → env vars → CLI flags.
// The flags parameter allows CLI flag overrides to be passed in.
func Load(configPath string, flags map[string]string) (*Config, error) {
	cfg := Default()

	if configPath == "" {
		configPath = "smsverify.toml"
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", configPath, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	applyFlags(cfg, flags)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("server.rate_limit must be non-negative, got %d", c.Server.RateLimit)
	}
	if c.SMS.CountryCode == "" {
		return fmt.Errorf("sms.country_code is required")
	}
	for _, r := range c.SMS.CountryCode {
		if r < '0' || r > '9' {
			return fmt.Errorf("sms.country_code must be digits only, got %q", c.SMS.CountryCode)
		}
	}
	if c.SMS.CodeLength < 4 || c.SMS.CodeLength > 8 {
		return fmt.Errorf("sms.code_length must be between 4 and 8, got %d", c.SMS.CodeLength)
	}
	if c.SMS.CodeTTL < 1 {
		return fmt.Errorf("sms.code_ttl must be at least 1 second, got %d", c.SMS.CodeTTL)
	}
	if c.SMS.Cooldown < 0 {
		return fmt.Errorf("sms.cooldown must be non-negative, got %d", c.SMS.Cooldown)
	}
	if c.SMS.Cooldown > c.SMS.CodeTTL {
		return fmt.Errorf("sms.cooldown (%d) cannot exceed sms.code_ttl (%d)", c.SMS.Cooldown, c.SMS.CodeTTL)
	}
	if c.SMS.MaxAttempts < 1 {
		return fmt.Errorf("sms.max_attempts must be at least 1, got %d", c.SMS.MaxAttempts)
	}
	if c.SMS.GatewayTimeout < 1 {
		return fmt.Errorf("sms.gateway_timeout must be at least 1 second, got %d", c.SMS.GatewayTimeout)
	}
	switch c.SMS.Locale {
	case "ru", "uz", "en":
	default:
		return fmt.Errorf("sms.locale must be one of: ru, uz, en; got %q", c.SMS.Locale)
	}
	if len(c.SMS.Gateways) == 0 {
		return fmt.Errorf("sms.gateways must name at least one gateway")
	}
	for _, name := range c.SMS.Gateways {
		switch name {
		case "eskiz":
			if c.SMS.Eskiz.Email == "" || c.SMS.Eskiz.Password == "" {
				return fmt.Errorf("sms.eskiz.email and sms.eskiz.password are required when the eskiz gateway is enabled")
			}
		case "twilio":
			if c.SMS.Twilio.AccountSID == "" || c.SMS.Twilio.AuthToken == "" {
				return fmt.Errorf("sms.twilio.account_sid and sms.twilio.auth_token are required when the twilio gateway is enabled")
			}
			if c.SMS.Twilio.FromNumber == "" {
				return fmt.Errorf("sms.twilio.from_number is required when the twilio gateway is enabled")
			}
		case "log":
		default:
			return fmt.Errorf("sms.gateways entries must be \"eskiz\", \"twilio\", or \"log\"; got %q", name)
		}
	}
	if (c.SMS.FixturePhone == "") != (c.SMS.FixtureCode == "") {
		return fmt.Errorf("sms.fixture_phone and sms.fixture_code must be set together")
	}
	if c.Logging.Level != "" {
		switch c.Logging.Level {
		case "debug", "info", "warn", "error":
		default:
			return fmt.Errorf("logging.level must be one of: debug, info, warn, error; got %q", c.Logging.Level)
		}
	}
	if c.Logging.Format != "" {
		switch c.Logging.Format {
		case "json", "text":
		default:
			return fmt.Errorf("logging.format must be \"json\" or \"text\", got %q", c.Logging.Format)
		}
	}
	return nil
}

// Address returns the host:port string for the server to listen on.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// TTL returns the code lifetime as a duration.
func (c *SMSConfig) TTL() time.Duration { return time.Duration(c.CodeTTL) * time.Second }

// CooldownDuration returns the resend cooldown as a duration.
func (c *SMSConfig) CooldownDuration() time.Duration {
	return time.Duration(c.Cooldown) * time.Second
}

// SendTimeout returns the per-gateway send timeout as a duration.
func (c *SMSConfig) SendTimeout() time.Duration {
	return time.Duration(c.GatewayTimeout) * time.Second
}

// GenerateDefault writes a commented default smsverify.toml to the given path.
func GenerateDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(defaultTOML), 0o644)
}

// ToTOML returns the config serialized as TOML.
func (c *Config) ToTOML() (string, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// envInt reads an integer from the named environment variable.
// Returns an error if the value is set but not a valid integer.
func envInt(name string, dest *int) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %q is not an integer", name, v)
	}
	*dest = n
	return nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("SMSVERIFY_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if err := envInt("SMSVERIFY_SERVER_PORT", &cfg.Server.Port); err != nil {
		return err
	}
	if err := envInt("SMSVERIFY_SERVER_RATE_LIMIT", &cfg.Server.RateLimit); err != nil {
		return err
	}
	if v := os.Getenv("SMSVERIFY_SMS_COUNTRY_CODE"); v != "" {
		cfg.SMS.CountryCode = v
	}
	if err := envInt("SMSVERIFY_SMS_CODE_LENGTH", &cfg.SMS.CodeLength); err != nil {
		return err
	}
	if err := envInt("SMSVERIFY_SMS_CODE_TTL", &cfg.SMS.CodeTTL); err != nil {
		return err
	}
	if err := envInt("SMSVERIFY_SMS_COOLDOWN", &cfg.SMS.Cooldown); err != nil {
		return err
	}
	if err := envInt("SMSVERIFY_SMS_MAX_ATTEMPTS", &cfg.SMS.MaxAttempts); err != nil {
		return err
	}
	if v := os.Getenv("SMSVERIFY_SMS_SENDER_TEXT"); v != "" {
		cfg.SMS.SenderText = v
	}
	if v := os.Getenv("SMSVERIFY_SMS_LOCALE"); v != "" {
		cfg.SMS.Locale = v
	}
	if v := os.Getenv("SMSVERIFY_SMS_GATEWAYS"); v != "" {
		cfg.SMS.Gateways = strings.Split(v, ",")
	}
	if err := envInt("SMSVERIFY_SMS_GATEWAY_TIMEOUT", &cfg.SMS.GatewayTimeout); err != nil {
		return err
	}
	if v := os.Getenv("SMSVERIFY_SMS_FIXTURE_PHONE"); v != "" {
		cfg.SMS.FixturePhone = v
	}
	if v := os.Getenv("SMSVERIFY_SMS_FIXTURE_CODE"); v != "" {
		cfg.SMS.FixtureCode = v
	}
	if v := os.Getenv("SMSVERIFY_ESKIZ_EMAIL"); v != "" {
		cfg.SMS.Eskiz.Email = v
	}
	if v := os.Getenv("SMSVERIFY_ESKIZ_PASSWORD"); v != "" {
		cfg.SMS.Eskiz.Password = v
	}
	if v := os.Getenv("SMSVERIFY_ESKIZ_FROM"); v != "" {
		cfg.SMS.Eskiz.From = v
	}
	if v := os.Getenv("SMSVERIFY_ESKIZ_BASE_URL"); v != "" {
		cfg.SMS.Eskiz.BaseURL = v
	}
	if v := os.Getenv("SMSVERIFY_TWILIO_ACCOUNT_SID"); v != "" {
		cfg.SMS.Twilio.AccountSID = v
	}
	if v := os.Getenv("SMSVERIFY_TWILIO_AUTH_TOKEN"); v != "" {
		cfg.SMS.Twilio.AuthToken = v
	}
	if v := os.Getenv("SMSVERIFY_TWILIO_FROM_NUMBER"); v != "" {
		cfg.SMS.Twilio.FromNumber = v
	}
	if v := os.Getenv("SMSVERIFY_TWILIO_BASE_URL"); v != "" {
		cfg.SMS.Twilio.BaseURL = v
	}
	if v := os.Getenv("SMSVERIFY_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SMSVERIFY_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	return nil
}

func applyFlags(cfg *Config, flags map[string]string) {
	if flags == nil {
		return
	}
	if v, ok := flags["port"]; ok && v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v, ok := flags["host"]; ok && v != "" {
		cfg.Server.Host = v
	}
	if v, ok := flags["gateways"]; ok && v != "" {
		cfg.SMS.Gateways = strings.Split(v, ",")
	}
}

// validKeys is the complete set of dot-separated config keys.
var validKeys = map[string]bool{
	"server.host": true, "server.port": true, "server.rate_limit": true,
	"server.shutdown_timeout": true,
	"sms.country_code": true, "sms.code_length": true, "sms.code_ttl": true,
	"sms.cooldown": true, "sms.max_attempts": true, "sms.sender_text": true,
	"sms.locale": true, "sms.gateways": true, "sms.gateway_timeout": true,
	"sms.fixture_phone": true, "sms.fixture_code": true,
	"sms.eskiz.email": true, "sms.eskiz.password": true, "sms.eskiz.from": true,
	"sms.eskiz.base_url": true,
	"sms.twilio.account_sid": true, "sms.twilio.auth_token": true,
	"sms.twilio.from_number": true, "sms.twilio.base_url": true,
	"logging.level": true, "logging.format": true,
}

// IsValidKey returns true if the dotted key is a recognized config key.
func IsValidKey(key string) bool {
	return validKeys[key]
}

// GetValue returns the value for a dotted config key (e.g. "server.port").
func GetValue(cfg *Config, key string) (any, error) {
	switch key {
	case "server.host":
		return cfg.Server.Host, nil
	case "server.port":
		return cfg.Server.Port, nil
	case "server.rate_limit":
		return cfg.Server.RateLimit, nil
	case "server.shutdown_timeout":
		return cfg.Server.ShutdownTimeout, nil
	case "sms.country_code":
		return cfg.SMS.CountryCode, nil
	case "sms.code_length":
		return cfg.SMS.CodeLength, nil
	case "sms.code_ttl":
		return cfg.SMS.CodeTTL, nil
	case "sms.cooldown":
		return cfg.SMS.Cooldown, nil
	case "sms.max_attempts":
		return cfg.SMS.MaxAttempts, nil
	case "sms.sender_text":
		return cfg.SMS.SenderText, nil
	case "sms.locale":
		return cfg.SMS.Locale, nil
	case "sms.gateways":
		return strings.Join(cfg.SMS.Gateways, ","), nil
	case "sms.gateway_timeout":
		return cfg.SMS.GatewayTimeout, nil
	case "sms.fixture_phone":
		return cfg.SMS.FixturePhone, nil
	case "sms.fixture_code":
		return cfg.SMS.FixtureCode, nil
	case "sms.eskiz.email":
		return cfg.SMS.Eskiz.Email, nil
	case "sms.eskiz.password":
		return cfg.SMS.Eskiz.Password, nil
	case "sms.eskiz.from":
		return cfg.SMS.Eskiz.From, nil
	case "sms.eskiz.base_url":
		return cfg.SMS.Eskiz.BaseURL, nil
	case "sms.twilio.account_sid":
		return cfg.SMS.Twilio.AccountSID, nil
	case "sms.twilio.auth_token":
		return cfg.SMS.Twilio.AuthToken, nil
	case "sms.twilio.from_number":
		return cfg.SMS.Twilio.FromNumber, nil
	case "sms.twilio.base_url":
		return cfg.SMS.Twilio.BaseURL, nil
	case "logging.level":
		return cfg.Logging.Level, nil
	case "logging.format":
		return cfg.Logging.Format, nil
	default:
		return nil, fmt.Errorf("unknown configuration key: %s", key)
	}
}

// SetValue reads the existing TOML file, updates a single key, and writes it back.
// Creates the file with just the key if it doesn't exist.
func SetValue(configPath, key, value string) error {
	var data map[string]any
	if raw, err := os.ReadFile(configPath); err == nil {
		if err := toml.Unmarshal(raw, &data); err != nil {
			return fmt.Errorf("parsing %s: %w", configPath, err)
		}
	}
	if data == nil {
		data = make(map[string]any)
	}

	// Walk into nested sections, creating maps as needed. Keys look like
	// "sms.eskiz.email"; everything before the last dot names sections.
	parts := strings.Split(key, ".")
	if len(parts) < 2 {
		return fmt.Errorf("invalid key format: %s (expected section.field)", key)
	}
	section := data
	for _, name := range parts[:len(parts)-1] {
		child, ok := section[name].(map[string]any)
		if !ok {
			child = make(map[string]any)
			section[name] = child
		}
		section = child
	}
	section[parts[len(parts)-1]] = coerceValue(key, value)

	out, err := toml.Marshal(data)
	if err != nil {
		return fmt.Errorf("serializing config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	return os.WriteFile(configPath, out, 0o644)
}

// coerceValue converts a string value to the appropriate Go type for TOML serialization.
func coerceValue(key, value string) any {
	switch key {
	case "server.port", "server.rate_limit", "server.shutdown_timeout",
		"sms.code_length", "sms.code_ttl", "sms.cooldown",
		"sms.max_attempts", "sms.gateway_timeout":
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	case "sms.gateways":
		return strings.Split(value, ",")
	}
	return value
}

const defaultTOML = `# smsverify configuration

[server]
# Address to listen on.
host = "0.0.0.0"
port = 8091

# Code requests per minute per client IP. 0 disables rate limiting.
rate_limit = 10

# Seconds to wait for in-flight requests during shutdown.
shutdown_timeout = 10

[sms]
# Country calling code used to normalize subscriber numbers.
country_code = "998"

# Length of generated verification codes (4-8 digits).
code_length = 6

# Seconds a code stays valid after issuance.
code_ttl = 600

# Seconds before a new code may be requested for the same number.
cooldown = 60

# Wrong submissions allowed before the code is invalidated.
max_attempts = 3

# Text appended to every code message.
sender_text = "Код подтверждения авторизации в приложении Oson Ish"

# Default locale for user-facing error messages: ru, uz, or en.
# Overridden per request by the Accept-Language header.
locale = "ru"

# Delivery gateways, tried in order. "log" prints codes to the console (dev mode).
gateways = ["log"]

# Seconds allowed per gateway send attempt.
gateway_timeout = 10

# Review fixture: requests for this exact number skip the gateways and
# accept the fixture code. Leave both unset in production.
# fixture_phone = "998999999999"
# fixture_code = "123456"

# Eskiz.uz settings (gateways includes "eskiz").
# [sms.eskiz]
# email = ""
# password = ""
# from = "4546"

# Twilio settings (gateways includes "twilio").
# [sms.twilio]
# account_sid = ""
# auth_token = ""
# from_number = ""

[logging]
# Log level: debug, info, warn, error.
level = "info"

# Log format: json or text.
format = "json"
`
