package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the identity server configuration
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Ledger        LedgerConfig        `mapstructure:"ledger"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Authenticator AuthenticatorConfig `mapstructure:"authenticator"`
	Face          FaceConfig          `mapstructure:"face"`
	Session       SessionConfig       `mapstructure:"session"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Logging       LoggingConfig       `mapstructure:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig contains database connection settings
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

// RedisConfig contains settings for the session cache
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LedgerConfig contains settings for the credential ledger (on-chain registry)
type LedgerConfig struct {
	RPCURL           string        `mapstructure:"rpc_url"`
	ChainID          int64         `mapstructure:"chain_id"`
	RegistryContract string        `mapstructure:"registry_contract"`
	SignerPrivateKey string        `mapstructure:"signer_private_key"`
	GasLimit         uint64        `mapstructure:"gas_limit"`
	CallTimeout      time.Duration `mapstructure:"call_timeout"`
}

// StorageConfig contains settings for the face template store
type StorageConfig struct {
	Root           string `mapstructure:"root"`
	MaxUploadBytes int64  `mapstructure:"max_upload_bytes"`
}

// AuthenticatorConfig contains WebAuthn relying-party settings
type AuthenticatorConfig struct {
	RPID          string        `mapstructure:"rp_id"`
	RPDisplayName string        `mapstructure:"rp_display_name"`
	RPOrigins     []string      `mapstructure:"rp_origins"`
	PromptTimeout time.Duration `mapstructure:"prompt_timeout"`
}

// FaceConfig contains face recognition engine settings
type FaceConfig struct {
	EngineURL      string        `mapstructure:"engine_url"`
	MatchThreshold float64       `mapstructure:"match_threshold"`
	DetectTimeout  time.Duration `mapstructure:"detect_timeout"`
}

// SessionConfig contains enrollment/verification session settings
type SessionConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// AuthConfig contains session token settings
type AuthConfig struct {
	JWTSecret  string        `mapstructure:"jwt_secret"`
	JWTIssuer  string        `mapstructure:"jwt_issuer"`
	SessionTTL time.Duration `mapstructure:"session_ttl"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "60s")
	viper.SetDefault("server.shutdown_timeout", "30s")

	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.database", "identity")

	// Redis defaults
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.db", 0)

	// Ledger defaults
	viper.SetDefault("ledger.gas_limit", 300000)
	viper.SetDefault("ledger.call_timeout", "30s")

	// Storage defaults
	viper.SetDefault("storage.root", "templates")
	viper.SetDefault("storage.max_upload_bytes", 1<<20)

	// Authenticator defaults
	viper.SetDefault("authenticator.rp_display_name", "Web3 Job Marketplace")
	viper.SetDefault("authenticator.prompt_timeout", "60s")

	// Face defaults
	viper.SetDefault("face.match_threshold", 0.5)
	viper.SetDefault("face.detect_timeout", "10s")

	// Session defaults
	viper.SetDefault("session.ttl", "10m")

	// Auth defaults
	viper.SetDefault("auth.jwt_issuer", "identity-middleware")
	viper.SetDefault("auth.session_ttl", "1h")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output_path", "stdout")
}

func validate(config *Config) error {
	if config.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if config.Ledger.RPCURL == "" {
		return fmt.Errorf("ledger.rpc_url is required")
	}
	if config.Ledger.RegistryContract == "" {
		return fmt.Errorf("ledger.registry_contract is required")
	}
	if config.Authenticator.RPID == "" {
		return fmt.Errorf("authenticator.rp_id is required")
	}
	if config.Face.EngineURL == "" {
		return fmt.Errorf("face.engine_url is required")
	}
	if config.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	return nil
}

// GetConnectionString returns a PostgreSQL connection string
func (c *DatabaseConfig) GetConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
