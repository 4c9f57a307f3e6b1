package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/osonish/smsverify/internal/testutil"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	testutil.Equal(t, "0.0.0.0", cfg.Server.Host)
	testutil.Equal(t, 8091, cfg.Server.Port)
	testutil.Equal(t, 10, cfg.Server.RateLimit)
	testutil.Equal(t, 10, cfg.Server.ShutdownTimeout)

	testutil.Equal(t, "998", cfg.SMS.CountryCode)
	testutil.Equal(t, 6, cfg.SMS.CodeLength)
	testutil.Equal(t, 600, cfg.SMS.CodeTTL)
	testutil.Equal(t, 60, cfg.SMS.Cooldown)
	testutil.Equal(t, 3, cfg.SMS.MaxAttempts)
	testutil.Equal(t, "ru", cfg.SMS.Locale)
	testutil.Equal(t, 10, cfg.SMS.GatewayTimeout)
	testutil.SliceLen(t, cfg.SMS.Gateways, 1)
	testutil.Equal(t, "log", cfg.SMS.Gateways[0])
	testutil.Equal(t, "4546", cfg.SMS.Eskiz.From)

	testutil.Equal(t, "info", cfg.Logging.Level)
	testutil.Equal(t, "json", cfg.Logging.Format)
}

func TestAddress(t *testing.T) {
	tests := []struct {
		name string
		host string
		port int
		want string
	}{
		{name: "default", host: "0.0.0.0", port: 8091, want: "0.0.0.0:8091"},
		{name: "localhost", host: "127.0.0.1", port: 3000, want: "127.0.0.1:3000"},
		{name: "custom host", host: "sms.internal", port: 443, want: "sms.internal:443"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Server: ServerConfig{Host: tt.host, Port: tt.port}}
			testutil.Equal(t, tt.want, cfg.Address())
		})
	}
}

func TestDurations(t *testing.T) {
	sms := SMSConfig{CodeTTL: 600, Cooldown: 60, GatewayTimeout: 10}
	testutil.Equal(t, "10m0s", sms.TTL().String())
	testutil.Equal(t, "1m0s", sms.CooldownDuration().String())
	testutil.Equal(t, "10s", sms.SendTimeout().String())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{
			name:   "valid defaults",
			modify: func(c *Config) {},
		},
		{
			name:    "port zero",
			modify:  func(c *Config) { c.Server.Port = 0 },
			wantErr: "server.port must be between 1 and 65535",
		},
		{
			name:    "port too high",
			modify:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "server.port must be between 1 and 65535",
		},
		{
			name:   "port 65535 valid",
			modify: func(c *Config) { c.Server.Port = 65535 },
		},
		{
			name:    "rate limit negative",
			modify:  func(c *Config) { c.Server.RateLimit = -1 },
			wantErr: "server.rate_limit must be non-negative",
		},
		{
			name:   "rate limit zero disables",
			modify: func(c *Config) { c.Server.RateLimit = 0 },
		},
		{
			name:    "country code empty",
			modify:  func(c *Config) { c.SMS.CountryCode = "" },
			wantErr: "sms.country_code is required",
		},
		{
			name:    "country code non-digit",
			modify:  func(c *Config) { c.SMS.CountryCode = "+998" },
			wantErr: "sms.country_code must be digits only",
		},
		{
			name:    "code length too short",
			modify:  func(c *Config) { c.SMS.CodeLength = 3 },
			wantErr: "sms.code_length must be between 4 and 8",
		},
		{
			name:    "code length too long",
			modify:  func(c *Config) { c.SMS.CodeLength = 9 },
			wantErr: "sms.code_length must be between 4 and 8",
		},
		{
			name:   "code length 4 valid",
			modify: func(c *Config) { c.SMS.CodeLength = 4 },
		},
		{
			name:    "ttl zero",
			modify:  func(c *Config) { c.SMS.CodeTTL = 0 },
			wantErr: "sms.code_ttl must be at least 1 second",
		},
		{
			name:    "cooldown negative",
			modify:  func(c *Config) { c.SMS.Cooldown = -1 },
			wantErr: "sms.cooldown must be non-negative",
		},
		{
			name: "cooldown exceeds ttl",
			modify: func(c *Config) {
				c.SMS.CodeTTL = 30
				c.SMS.Cooldown = 60
			},
			wantErr: "sms.cooldown (60) cannot exceed sms.code_ttl (30)",
		},
		{
			name:    "max attempts zero",
			modify:  func(c *Config) { c.SMS.MaxAttempts = 0 },
			wantErr: "sms.max_attempts must be at least 1",
		},
		{
			name:    "gateway timeout zero",
			modify:  func(c *Config) { c.SMS.GatewayTimeout = 0 },
			wantErr: "sms.gateway_timeout must be at least 1 second",
		},
		{
			name:    "unknown locale",
			modify:  func(c *Config) { c.SMS.Locale = "fr" },
			wantErr: "sms.locale must be one of",
		},
		{
			name:   "uz locale valid",
			modify: func(c *Config) { c.SMS.Locale = "uz" },
		},
		{
			name:    "no gateways",
			modify:  func(c *Config) { c.SMS.Gateways = nil },
			wantErr: "sms.gateways must name at least one gateway",
		},
		{
			name:    "unknown gateway",
			modify:  func(c *Config) { c.SMS.Gateways = []string{"vonage"} },
			wantErr: `sms.gateways entries must be`,
		},
		{
			name: "eskiz without credentials",
			modify: func(c *Config) {
				c.SMS.Gateways = []string{"eskiz"}
			},
			wantErr: "sms.eskiz.email and sms.eskiz.password are required",
		},
		{
			name: "eskiz with credentials",
			modify: func(c *Config) {
				c.SMS.Gateways = []string{"eskiz"}
				c.SMS.Eskiz.Email = "ops@example.com"
				c.SMS.Eskiz.Password = "secret"
			},
		},
		{
			name: "twilio without credentials",
			modify: func(c *Config) {
				c.SMS.Gateways = []string{"twilio"}
			},
			wantErr: "sms.twilio.account_sid and sms.twilio.auth_token are required",
		},
		{
			name: "twilio without from number",
			modify: func(c *Config) {
				c.SMS.Gateways = []string{"twilio"}
				c.SMS.Twilio.AccountSID = "AC123"
				c.SMS.Twilio.AuthToken = "token"
			},
			wantErr: "sms.twilio.from_number is required",
		},
		{
			name: "eskiz with twilio failover",
			modify: func(c *Config) {
				c.SMS.Gateways = []string{"eskiz", "twilio"}
				c.SMS.Eskiz.Email = "ops@example.com"
				c.SMS.Eskiz.Password = "secret"
				c.SMS.Twilio.AccountSID = "AC123"
				c.SMS.Twilio.AuthToken = "token"
				c.SMS.Twilio.FromNumber = "+15005550006"
			},
		},
		{
			name:    "fixture phone without code",
			modify:  func(c *Config) { c.SMS.FixturePhone = "998999999999" },
			wantErr: "sms.fixture_phone and sms.fixture_code must be set together",
		},
		{
			name:    "fixture code without phone",
			modify:  func(c *Config) { c.SMS.FixtureCode = "123456" },
			wantErr: "sms.fixture_phone and sms.fixture_code must be set together",
		},
		{
			name: "fixture pair valid",
			modify: func(c *Config) {
				c.SMS.FixturePhone = "998999999999"
				c.SMS.FixtureCode = "123456"
			},
		},
		{
			name:    "invalid log level",
			modify:  func(c *Config) { c.Logging.Level = "trace" },
			wantErr: "logging.level must be one of",
		},
		{
			name:   "debug log level",
			modify: func(c *Config) { c.Logging.Level = "debug" },
		},
		{
			name:    "invalid log format",
			modify:  func(c *Config) { c.Logging.Format = "logfmt" },
			wantErr: `logging.format must be "json" or "text"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				testutil.NoError(t, err)
			} else {
				testutil.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	tomlPath := filepath.Join(dir, "smsverify.toml")

	content := `
[server]
host = "127.0.0.1"
port = 3000

[sms]
cooldown = 30
gateways = ["eskiz"]

[sms.eskiz]
email = "ops@example.com"
password = "secret"
from = "7777"

[logging]
level = "debug"
format = "text"
`
	err := os.WriteFile(tomlPath, []byte(content), 0o644)
	testutil.NoError(t, err)

	cfg, err := Load(tomlPath, nil)
	testutil.NoError(t, err)

	testutil.Equal(t, "127.0.0.1", cfg.Server.Host)
	testutil.Equal(t, 3000, cfg.Server.Port)
	testutil.Equal(t, 30, cfg.SMS.Cooldown)
	testutil.SliceLen(t, cfg.SMS.Gateways, 1)
	testutil.Equal(t, "eskiz", cfg.SMS.Gateways[0])
	testutil.Equal(t, "ops@example.com", cfg.SMS.Eskiz.Email)
	testutil.Equal(t, "7777", cfg.SMS.Eskiz.From)
	testutil.Equal(t, "debug", cfg.Logging.Level)
	testutil.Equal(t, "text", cfg.Logging.Format)

	// Defaults preserved for unset fields.
	testutil.Equal(t, 600, cfg.SMS.CodeTTL)
	testutil.Equal(t, "998", cfg.SMS.CountryCode)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load("/nonexistent/smsverify.toml", nil)
	testutil.NoError(t, err)
	testutil.Equal(t, 8091, cfg.Server.Port)
	testutil.Equal(t, "0.0.0.0", cfg.Server.Host)
}

func TestLoadInvalidTOML(t *testing.T) {
	dir := t.TempDir()
	tomlPath := filepath.Join(dir, "smsverify.toml")
	err := os.WriteFile(tomlPath, []byte("this is not valid toml [[["), 0o644)
	testutil.NoError(t, err)

	_, err = Load(tomlPath, nil)
	testutil.ErrorContains(t, err, "parsing")
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	tomlPath := filepath.Join(dir, "smsverify.toml")
	err := os.WriteFile(tomlPath, []byte("[sms]\ncode_length = 12\n"), 0o644)
	testutil.NoError(t, err)

	_, err = Load(tomlPath, nil)
	testutil.ErrorContains(t, err, "config validation")
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SMSVERIFY_SERVER_HOST", "envhost")
	t.Setenv("SMSVERIFY_SERVER_PORT", "9999")
	t.Setenv("SMSVERIFY_SMS_COOLDOWN", "15")
	t.Setenv("SMSVERIFY_SMS_GATEWAYS", "eskiz,log")
	t.Setenv("SMSVERIFY_ESKIZ_EMAIL", "env@example.com")
	t.Setenv("SMSVERIFY_ESKIZ_PASSWORD", "envsecret")
	t.Setenv("SMSVERIFY_LOG_LEVEL", "warn")

	cfg, err := Load("/nonexistent/smsverify.toml", nil)
	testutil.NoError(t, err)

	testutil.Equal(t, "envhost", cfg.Server.Host)
	testutil.Equal(t, 9999, cfg.Server.Port)
	testutil.Equal(t, 15, cfg.SMS.Cooldown)
	testutil.SliceLen(t, cfg.SMS.Gateways, 2)
	testutil.Equal(t, "eskiz", cfg.SMS.Gateways[0])
	testutil.Equal(t, "env@example.com", cfg.SMS.Eskiz.Email)
	testutil.Equal(t, "envsecret", cfg.SMS.Eskiz.Password)
	testutil.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadTwilioEnvVars(t *testing.T) {
	t.Setenv("SMSVERIFY_SMS_GATEWAYS", "twilio")
	t.Setenv("SMSVERIFY_TWILIO_ACCOUNT_SID", "AC_env")
	t.Setenv("SMSVERIFY_TWILIO_AUTH_TOKEN", "tok_env")
	t.Setenv("SMSVERIFY_TWILIO_FROM_NUMBER", "+15005550006")

	cfg, err := Load("/nonexistent/smsverify.toml", nil)
	testutil.NoError(t, err)

	testutil.Equal(t, "AC_env", cfg.SMS.Twilio.AccountSID)
	testutil.Equal(t, "tok_env", cfg.SMS.Twilio.AuthToken)
	testutil.Equal(t, "+15005550006", cfg.SMS.Twilio.FromNumber)
}

func TestLoadFlagOverrides(t *testing.T) {
	flags := map[string]string{
		"port":     "7777",
		"host":     "flaghost",
		"gateways": "log",
	}

	cfg, err := Load("/nonexistent/smsverify.toml", flags)
	testutil.NoError(t, err)

	testutil.Equal(t, 7777, cfg.Server.Port)
	testutil.Equal(t, "flaghost", cfg.Server.Host)
	testutil.SliceLen(t, cfg.SMS.Gateways, 1)
}

func TestLoadPriority(t *testing.T) {
	// File sets port=3000, env sets port=4000, flag sets port=5000.
	// Expected priority: flag > env > file > default.
	dir := t.TempDir()
	tomlPath := filepath.Join(dir, "smsverify.toml")
	err := os.WriteFile(tomlPath, []byte("[server]\nport = 3000\n"), 0o644)
	testutil.NoError(t, err)

	t.Setenv("SMSVERIFY_SERVER_PORT", "4000")
	flags := map[string]string{"port": "5000"}

	cfg, err := Load(tomlPath, flags)
	testutil.NoError(t, err)
	testutil.Equal(t, 5000, cfg.Server.Port)

	// Without flag, env wins over file.
	cfg, err = Load(tomlPath, nil)
	testutil.NoError(t, err)
	testutil.Equal(t, 4000, cfg.Server.Port)
}

func TestGenerateDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "subdir", "smsverify.toml")

	err := GenerateDefault(path)
	testutil.NoError(t, err)

	data, err := os.ReadFile(path)
	testutil.NoError(t, err)
	content := string(data)

	testutil.Contains(t, content, "[server]")
	testutil.Contains(t, content, "[sms]")
	testutil.Contains(t, content, "[logging]")
	testutil.Contains(t, content, "port = 8091")
	testutil.Contains(t, content, "code_ttl = 600")
	testutil.Contains(t, content, "cooldown = 60")
	testutil.Contains(t, content, "max_attempts = 3")

	// The generated file must itself load cleanly.
	cfg, err := Load(path, nil)
	testutil.NoError(t, err)
	testutil.Equal(t, 600, cfg.SMS.CodeTTL)
}

func TestToTOML(t *testing.T) {
	cfg := Default()
	s, err := cfg.ToTOML()
	testutil.NoError(t, err)
	testutil.Contains(t, s, "host = '0.0.0.0'")
	testutil.Contains(t, s, "port = 8091")
}

func TestApplyFlagsNilSafe(t *testing.T) {
	cfg := Default()
	applyFlags(cfg, nil)
	testutil.Equal(t, 8091, cfg.Server.Port)
}

func TestApplyEnvInvalidPort(t *testing.T) {
	t.Setenv("SMSVERIFY_SERVER_PORT", "notanumber")
	cfg := Default()
	err := applyEnv(cfg)
	testutil.ErrorContains(t, err, "not an integer")
	testutil.Equal(t, 8091, cfg.Server.Port) // unchanged on error
}

func TestIsValidKey(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"server.port", true},
		{"server.host", true},
		{"sms.country_code", true},
		{"sms.cooldown", true},
		{"sms.eskiz.email", true},
		{"sms.twilio.account_sid", true},
		{"logging.level", true},
		{"server.nonexistent", false},
		{"", false},
		{"invalid", false},
		{"sms", false},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			testutil.Equal(t, tt.want, IsValidKey(tt.key))
		})
	}
}

func TestGetValue(t *testing.T) {
	cfg := Default()

	tests := []struct {
		key     string
		want    any
		wantErr bool
	}{
		{"server.host", "0.0.0.0", false},
		{"server.port", 8091, false},
		{"sms.country_code", "998", false},
		{"sms.cooldown", 60, false},
		{"sms.gateways", "log", false},
		{"sms.eskiz.from", "4546", false},
		{"logging.level", "info", false},
		{"unknown.key", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			val, err := GetValue(cfg, tt.key)
			if tt.wantErr {
				testutil.NotNil(t, err)
			} else {
				testutil.NoError(t, err)
				testutil.Equal(t, tt.want, val)
			}
		})
	}
}

func TestSetValue(t *testing.T) {
	dir := t.TempDir()
	tomlPath := filepath.Join(dir, "smsverify.toml")

	err := SetValue(tomlPath, "server.port", "3000")
	testutil.NoError(t, err)

	data, err := os.ReadFile(tomlPath)
	testutil.NoError(t, err)
	testutil.Contains(t, string(data), "port = 3000")

	err = SetValue(tomlPath, "server.host", "127.0.0.1")
	testutil.NoError(t, err)

	cfg, err := Load(tomlPath, nil)
	testutil.NoError(t, err)
	testutil.Equal(t, 3000, cfg.Server.Port)
	testutil.Equal(t, "127.0.0.1", cfg.Server.Host)
}

func TestSetValueNestedSection(t *testing.T) {
	dir := t.TempDir()
	tomlPath := filepath.Join(dir, "smsverify.toml")

	err := SetValue(tomlPath, "sms.eskiz.email", "ops@example.com")
	testutil.NoError(t, err)

	cfg, err := Load(tomlPath, nil)
	testutil.NoError(t, err)
	testutil.Equal(t, "ops@example.com", cfg.SMS.Eskiz.Email)
}

func TestSetValueInvalidKey(t *testing.T) {
	dir := t.TempDir()
	tomlPath := filepath.Join(dir, "smsverify.toml")

	err := SetValue(tomlPath, "invalid", "value")
	testutil.ErrorContains(t, err, "invalid key format")
}

func TestSetValuePreservesExisting(t *testing.T) {
	dir := t.TempDir()
	tomlPath := filepath.Join(dir, "smsverify.toml")

	err := os.WriteFile(tomlPath, []byte("[server]\nhost = '0.0.0.0'\nport = 8091\n"), 0o644)
	testutil.NoError(t, err)

	err = SetValue(tomlPath, "server.port", "3000")
	testutil.NoError(t, err)

	cfg, err := Load(tomlPath, nil)
	testutil.NoError(t, err)
	testutil.Equal(t, 3000, cfg.Server.Port)
	testutil.Equal(t, "0.0.0.0", cfg.Server.Host)
}

func TestCoerceValue(t *testing.T) {
	tests := []struct {
		key   string
		value string
		want  any
	}{
		{"server.port", "3000", 3000},
		{"sms.cooldown", "30", 30},
		{"server.host", "myhost", "myhost"},
		{"sms.eskiz.email", "ops@example.com", "ops@example.com"},
		{"server.port", "notanumber", "notanumber"}, // falls through to string
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			got := coerceValue(tt.key, tt.value)
			testutil.Equal(t, tt.want, got)
		})
	}
}
