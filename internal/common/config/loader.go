// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	loadEnvFile()

	// Base config
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../../configs")
	viper.AddConfigPath(".")

	// Enable ENV override like GATEWAY_HASH_KEY
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	// Per-environment overlay, ignored if not found
	envConfigFile := fmt.Sprintf("config.%s", env)
	viper.SetConfigName(envConfigFile)
	_ = viper.MergeInConfig()

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// loadEnvFile tries .env from several locations so binaries and tests can
// run from different directories.
func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
		"../../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// Find project root by looking for go.mod
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		val := v.Get(key)

		if strVal, ok := val.(string); ok {
			if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
				expanded := os.ExpandEnv(strVal)
				if expanded != strVal && expanded != "" {
					v.Set(key, expanded)
				}
			}
		}
	}
}

// overrideEmptyConfig fills secrets from the environment when the YAML left
// them blank.
func overrideEmptyConfig(cfg *Config) {
	if cfg.Gateway.MerchantID == "" {
		if val := os.Getenv("GATEWAY_MERCHANT_ID"); val != "" {
			cfg.Gateway.MerchantID = val
		}
	}
	if cfg.Gateway.HashKey == "" {
		if val := os.Getenv("GATEWAY_HASH_KEY"); val != "" {
			cfg.Gateway.HashKey = val
		}
	}
	if cfg.Gateway.HashIV == "" {
		if val := os.Getenv("GATEWAY_HASH_IV"); val != "" {
			cfg.Gateway.HashIV = val
		}
	}

	if cfg.Sheets.SpreadsheetID == "" {
		if val := os.Getenv("SHEETS_SPREADSHEET_ID"); val != "" {
			cfg.Sheets.SpreadsheetID = val
		}
	}
	if cfg.Sheets.CredentialsFile == "" {
		if val := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); val != "" {
			cfg.Sheets.CredentialsFile = val
		}
	}

	if cfg.Notifications.SMTP.Username == "" {
		if val := os.Getenv("SMTP_USERNAME"); val != "" {
			cfg.Notifications.SMTP.Username = val
		}
	}
	if cfg.Notifications.SMTP.Password == "" {
		if val := os.Getenv("SMTP_PASSWORD"); val != "" {
			cfg.Notifications.SMTP.Password = val
		}
	}

	if cfg.Database.Postgres.User == "" {
		if val := os.Getenv("DB_USER"); val != "" {
			cfg.Database.Postgres.User = val
		}
	}
	if cfg.Database.Postgres.Password == "" {
		if val := os.Getenv("DB_PASSWORD"); val != "" {
			cfg.Database.Postgres.Password = val
		}
	}
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 10000
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 15000
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 30000
	}

	if cfg.Gateway.CheckoutURL == "" {
		cfg.Gateway.CheckoutURL = "https://payment-stage.ecpay.com.tw/Cashier/AioCheckOut/V5"
	}
	if cfg.Gateway.QueryURL == "" {
		cfg.Gateway.QueryURL = "https://payment-stage.ecpay.com.tw/Cashier/QueryTradeInfo/V5"
	}
	if cfg.Gateway.EncodeTable == "" {
		cfg.Gateway.EncodeTable = "dotnet"
	}

	if cfg.Sheets.MembersSheet == "" {
		cfg.Sheets.MembersSheet = "members"
	}

	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}

	if cfg.Notifications.Email.Provider == "" {
		cfg.Notifications.Email.Provider = "smtp"
	}
	if cfg.Notifications.SMTP.Port == 0 {
		cfg.Notifications.SMTP.Port = 587
	}
	if cfg.Notifications.Email.Subject == "" {
		cfg.Notifications.Email.Subject = "Your membership payment link"
	}

	if cfg.Billing.Amount == 0 {
		cfg.Billing.Amount = 300
	}
	if cfg.Billing.ItemName == "" {
		cfg.Billing.ItemName = "Membership Fee"
	}

	if cfg.Batch.Size == 0 {
		cfg.Batch.Size = 10
	}
	if cfg.Batch.DelayMs == 0 {
		cfg.Batch.DelayMs = 1000
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	if cfg.Gateway.MerchantID == "" {
		return fmt.Errorf("gateway.merchant_id is required")
	}
	if cfg.Gateway.HashKey == "" {
		return fmt.Errorf("gateway.hash_key is required")
	}
	if cfg.Gateway.HashIV == "" {
		return fmt.Errorf("gateway.hash_iv is required")
	}
	if cfg.Gateway.EncodeTable != "dotnet" && cfg.Gateway.EncodeTable != "space-only" {
		return fmt.Errorf("gateway.encode_table must be \"dotnet\" or \"space-only\"")
	}

	if cfg.Sheets.SpreadsheetID == "" {
		return fmt.Errorf("sheets.spreadsheet_id is required")
	}

	if cfg.Database.Postgres.Host == "" {
		return fmt.Errorf("database.postgres.host is required")
	}
	if cfg.Database.Postgres.Database == "" {
		return fmt.Errorf("database.postgres.database is required")
	}
	if cfg.Database.Postgres.User == "" {
		return fmt.Errorf("database.postgres.user is required")
	}

	if cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required")
	}

	if cfg.Notifications.Email.Provider == "smtp" && cfg.Notifications.SMTP.Host == "" {
		return fmt.Errorf("notifications.smtp.host is required for the smtp provider")
	}
	if cfg.Notifications.Email.Provider == "ses" && cfg.Notifications.AWS.Region == "" {
		return fmt.Errorf("notifications.aws.region is required for the ses provider")
	}

	if cfg.Billing.Amount <= 0 {
		return fmt.Errorf("billing.amount must be positive")
	}
	if cfg.Billing.LinkBaseURL == "" {
		return fmt.Errorf("billing.link_base_url is required")
	}

	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
