// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig          `mapstructure:"app"`
	Server        ServerConfig       `mapstructure:"server"`
	Gateway       GatewayConfig      `mapstructure:"gateway"`
	Sheets        SheetsConfig       `mapstructure:"sheets"`
	Database      DatabaseConfig     `mapstructure:"database"`
	Billing       BillingConfig      `mapstructure:"billing"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Batch         BatchConfig        `mapstructure:"batch"`
	Logging       LoggingConfig      `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Address        string `mapstructure:"address"`
	ReadTimeout    int    `mapstructure:"read_timeout"`    // milliseconds
	WriteTimeout   int    `mapstructure:"write_timeout"`   // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

// GatewayConfig holds the payment gateway merchant credentials and endpoints.
type GatewayConfig struct {
	MerchantID  string `mapstructure:"merchant_id"`
	HashKey     string `mapstructure:"hash_key"`
	HashIV      string `mapstructure:"hash_iv"`
	CheckoutURL string `mapstructure:"checkout_url"`
	QueryURL    string `mapstructure:"query_url"`
	ReturnURL   string `mapstructure:"return_url"`

	// EncodeTable selects the character-restoration table applied to the
	// percent-encoded signing string: "dotnet" or "space-only". The live
	// verifier accepts exactly one of them; pin it with a golden test
	// against a real gateway response before changing it.
	EncodeTable       string `mapstructure:"encode_table"`
	TrailingAmpersand bool   `mapstructure:"trailing_ampersand"`
}

// SheetsConfig addresses the spreadsheet backing the payment record store.
type SheetsConfig struct {
	SpreadsheetID   string `mapstructure:"spreadsheet_id"`
	MembersSheet    string `mapstructure:"members_sheet"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// NotificationConfig holds settings for the payment-link notification run.
type NotificationConfig struct {
	Email struct {
		Provider  string `mapstructure:"provider"` // "smtp" or "ses"
		FromEmail string `mapstructure:"from_email"`
		Subject   string `mapstructure:"subject"`
	} `mapstructure:"email"`

	SMTP struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		Username string `mapstructure:"username"`
		Password string `mapstructure:"password"`
		UseTLS   bool   `mapstructure:"use_tls"`
	} `mapstructure:"smtp"`

	AWS struct {
		Region string `mapstructure:"region"`
		SES    struct {
			Enabled bool `mapstructure:"enabled"`
		} `mapstructure:"ses"`
		SNS struct {
			Enabled  bool   `mapstructure:"enabled"`
			TopicARN string `mapstructure:"topic_arn"`
		} `mapstructure:"sns"`
	} `mapstructure:"aws"`
}

// BillingConfig sets the membership fee and where the checkout links point.
type BillingConfig struct {
	Amount      int    `mapstructure:"amount"`    // fee in TWD
	ItemName    string `mapstructure:"item_name"` // label on the checkout page
	LinkBaseURL string `mapstructure:"link_base_url"`
}

// BatchConfig tunes the batch dispatcher used by email sends and row updates.
type BatchConfig struct {
	Size    int `mapstructure:"size"`
	DelayMs int `mapstructure:"delay_ms"` // pause between chunks
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
