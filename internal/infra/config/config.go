package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// Wave portal contract on Starknet mainnet
	DefaultContractAddress = "0x0638aa7782bfa69cbd9162fd3cfc086038dfc055fe200fe115a9b1c88b20b941"
	// Key of the event the contract emits for every wave
	DefaultEventKey = "0x01b1d6c3fc5d2623b725e2a645cba4333d2b8bc1a81895c633380cff638b293f"
	// First block scanned for wave events (contract deployment)
	DefaultFromBlock = 1410539
	DefaultRPCURL    = "https://starknet-mainnet.public.blastapi.io/rpc/v0_8"
	// USDC on Starknet mainnet, used by the transfer command
	DefaultTransferToken = "0x053c91253bc9682c04929ca02ed00b3e423f6710d2ee7e0d5ebb06f3ecf368a8"
)

// Config - application configuration
type Config struct {
	Starknet StarknetConfig `mapstructure:"starknet"`
	Writer   WriterConfig   `mapstructure:"writer"`
	Signer   SignerConfig   `mapstructure:"signer"`
	Identity IdentityConfig `mapstructure:"identity"`
	Poller   PollerConfig   `mapstructure:"poller"`
	Refresh  RefreshConfig  `mapstructure:"refresh"`
	Transfer TransferConfig `mapstructure:"transfer"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Server   ServerConfig   `mapstructure:"server"`
	App      AppConfig      `mapstructure:"app"`
	Log      LogConfig      `mapstructure:"log"`
}

// StarknetConfig - read side (JSON-RPC)
type StarknetConfig struct {
	RPCURL          string `mapstructure:"rpc_url"`
	ContractAddress string `mapstructure:"contract_address"`
	EventKey        string `mapstructure:"event_key"`
	FromBlock       uint64 `mapstructure:"from_block"`
	ChunkSize       int    `mapstructure:"chunk_size"`
	MaxPages        int    `mapstructure:"max_pages"`
	MaxRetries      int    `mapstructure:"max_retries"`
	RequestTimeout  int    `mapstructure:"request_timeout"` // seconds
	ExplorerTxURL   string `mapstructure:"explorer_tx_url"`
}

// WriterConfig - which write strategy is active, plus the direct account
type WriterConfig struct {
	Strategy          string `mapstructure:"strategy"` // custodial or direct
	AccountAddress    string `mapstructure:"account_address"`
	AccountPublicKey  string `mapstructure:"account_public_key"`
	AccountPrivateKey string `mapstructure:"account_private_key"`
}

// SignerConfig - hosted custodial signing service
type SignerConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	CallPath       string `mapstructure:"call_path"`
	APIKey         string `mapstructure:"api_key"`
	Network        string `mapstructure:"network"`
	RequestTimeout int    `mapstructure:"request_timeout"` // seconds
}

// IdentityConfig - identity provider backend API
type IdentityConfig struct {
	BaseURL       string `mapstructure:"base_url"`
	SecretKey     string `mapstructure:"secret_key"`
	JWTTemplate   string `mapstructure:"jwt_template"`
	SignInURL     string `mapstructure:"sign_in_url"`
	OnboardingURL string `mapstructure:"onboarding_url"`
	// CLI commands act on behalf of this session
	SessionID string `mapstructure:"session_id"`
}

type PollerConfig struct {
	MaxAttempts int  `mapstructure:"max_attempts"`
	Interval    int  `mapstructure:"interval"` // seconds
	RequireL1   bool `mapstructure:"require_l1"`
}

type RefreshConfig struct {
	General     int `mapstructure:"general"`     // seconds
	Pending     int `mapstructure:"pending"`     // seconds
	Celebration int `mapstructure:"celebration"` // seconds
}

type TransferConfig struct {
	TokenAddress string `mapstructure:"token_address"`
	Decimals     int    `mapstructure:"decimals"`
}

type TelegramConfig struct {
	BotToken      string `mapstructure:"bot_token"`
	ChatID        string `mapstructure:"chat_id"`
	CheckInterval int    `mapstructure:"check_interval"` // seconds
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type AppConfig struct {
	DataDir         string `mapstructure:"data_dir"`
	MaxResponseSize int64  `mapstructure:"max_response_size"`
}

type LogConfig struct {
	Dir     string `mapstructure:"dir"`
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
}

func (c PollerConfig) IntervalDuration() time.Duration {
	return time.Duration(c.Interval) * time.Second
}

func (c RefreshConfig) GeneralDuration() time.Duration {
	return time.Duration(c.General) * time.Second
}

func (c RefreshConfig) PendingDuration() time.Duration {
	return time.Duration(c.Pending) * time.Second
}

func (c RefreshConfig) CelebrationDuration() time.Duration {
	return time.Duration(c.Celebration) * time.Second
}

func (c TelegramConfig) CheckIntervalDuration() time.Duration {
	return time.Duration(c.CheckInterval) * time.Second
}

func (c StarknetConfig) Timeout() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

func (c SignerConfig) Timeout() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// LoadConfig from, lowest priority first:
// 1. defaults
// 2. config.yaml (or --config)
// 3. .env and the process environment
// 4. command line flags
func LoadConfig(flags *pflag.FlagSet) (*Config, error) {
	// .env only fills variables that are not already exported
	godotenv.Load(".env")

	v := viper.New()
	setDefaults(v)

	configFile := ""
	if flags != nil {
		if f := flags.Lookup("config"); f != nil {
			configFile = f.Value.String()
		}
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		// a missing config.yaml is fine
		v.ReadInConfig()
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("WAVE")
	v.AutomaticEnv()
	setupEnvAliases(v)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setupEnvAliases(v *viper.Viper) {
	// WAVE_STARKNET_RPC_URL works through AutomaticEnv, these are the short names
	v.BindEnv("starknet.rpc_url", "WAVE_STARKNET_RPC_URL", "STARKNET_RPC_URL")
	v.BindEnv("starknet.contract_address", "WAVE_STARKNET_CONTRACT_ADDRESS", "CONTRACT_ADDRESS")
	v.BindEnv("starknet.event_key", "WAVE_STARKNET_EVENT_KEY", "EVENT_KEY")

	v.BindEnv("writer.strategy", "WAVE_WRITER_STRATEGY", "WRITER_STRATEGY")
	v.BindEnv("writer.account_address", "WAVE_WRITER_ACCOUNT_ADDRESS", "STARKNET_ACCOUNT_ADDRESS")
	v.BindEnv("writer.account_public_key", "WAVE_WRITER_ACCOUNT_PUBLIC_KEY", "STARKNET_PUBLIC_KEY")
	v.BindEnv("writer.account_private_key", "WAVE_WRITER_ACCOUNT_PRIVATE_KEY", "STARKNET_PRIVATE_KEY")

	v.BindEnv("signer.base_url", "WAVE_SIGNER_BASE_URL", "CHIPI_API_URL")
	v.BindEnv("signer.api_key", "WAVE_SIGNER_API_KEY", "CHIPI_API_KEY", "NEXT_PUBLIC_CHIPI_API_KEY")

	v.BindEnv("identity.base_url", "WAVE_IDENTITY_BASE_URL", "CLERK_API_URL")
	v.BindEnv("identity.secret_key", "WAVE_IDENTITY_SECRET_KEY", "CLERK_SECRET_KEY")
	v.BindEnv("identity.sign_in_url", "WAVE_IDENTITY_SIGN_IN_URL", "CLERK_SIGN_IN_URL")
	v.BindEnv("identity.session_id", "WAVE_IDENTITY_SESSION_ID", "CLERK_SESSION_ID")

	v.BindEnv("telegram.bot_token", "WAVE_TELEGRAM_BOT_TOKEN", "TELEGRAM_BOT_TOKEN")
	v.BindEnv("telegram.chat_id", "WAVE_TELEGRAM_CHAT_ID", "TELEGRAM_CHAT_ID")

	v.BindEnv("server.addr", "WAVE_SERVER_ADDR", "HTTP_ADDR")
	v.BindEnv("log.level", "WAVE_LOG_LEVEL", "LOG_LEVEL")
}

// setDefaults by default
func setDefaults(v *viper.Viper) {
	v.SetDefault("starknet.rpc_url", DefaultRPCURL)
	v.SetDefault("starknet.contract_address", DefaultContractAddress)
	v.SetDefault("starknet.event_key", DefaultEventKey)
	v.SetDefault("starknet.from_block", DefaultFromBlock)
	v.SetDefault("starknet.chunk_size", 20)
	v.SetDefault("starknet.max_pages", 50)
	v.SetDefault("starknet.max_retries", 3)
	v.SetDefault("starknet.request_timeout", 30)
	v.SetDefault("starknet.explorer_tx_url", "https://voyager.online/tx/")

	v.SetDefault("writer.strategy", "custodial")

	v.SetDefault("signer.base_url", "https://api.chipipay.com/v1")
	v.SetDefault("signer.call_path", "/transactions/call-any-contract")
	v.SetDefault("signer.network", "")
	v.SetDefault("signer.request_timeout", 60)

	v.SetDefault("identity.base_url", "https://api.clerk.com")
	v.SetDefault("identity.jwt_template", "payot-io")
	v.SetDefault("identity.sign_in_url", "/sign-in")
	v.SetDefault("identity.onboarding_url", "/onboarding")

	v.SetDefault("poller.max_attempts", 20)
	v.SetDefault("poller.interval", 6)
	v.SetDefault("poller.require_l1", false)

	v.SetDefault("refresh.general", 15)
	v.SetDefault("refresh.pending", 5)
	v.SetDefault("refresh.celebration", 5)

	v.SetDefault("transfer.token_address", DefaultTransferToken)
	v.SetDefault("transfer.decimals", 6)

	v.SetDefault("telegram.check_interval", 30)

	v.SetDefault("server.addr", ":8080")

	v.SetDefault("app.data_dir", "data_out")
	v.SetDefault("app.max_response_size", 10*1024*1024) // 10MB

	v.SetDefault("log.dir", "logs")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.console", true)
}

// RegisterFlags adds the flags every command understands
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Path to a YAML config file (default ./config.yaml)")
	fs.String("starknet.rpc_url", DefaultRPCURL, "Starknet JSON-RPC endpoint (env: STARKNET_RPC_URL)")
	fs.String("starknet.contract_address", DefaultContractAddress, "Wave portal contract address (env: CONTRACT_ADDRESS)")
	fs.Uint64("starknet.from_block", DefaultFromBlock, "First block scanned for wave events")
	fs.String("writer.strategy", "custodial", "Write strategy: custodial or direct (env: WRITER_STRATEGY)")
	fs.String("log.level", "info", "Log level: debug, info, warn, error (env: LOG_LEVEL)")
	fs.String("app.data_dir", "data_out", "Directory for JSON snapshots")
}

func validateConfig(cfg *Config) error {
	if cfg.Starknet.RPCURL == "" {
		return fmt.Errorf("starknet.rpc_url is required")
	}
	if cfg.Starknet.ContractAddress == "" || cfg.Starknet.EventKey == "" {
		return fmt.Errorf("starknet.contract_address and starknet.event_key are required")
	}
	if cfg.Starknet.ChunkSize <= 0 {
		return fmt.Errorf("starknet.chunk_size must be positive, got %d", cfg.Starknet.ChunkSize)
	}
	if cfg.Poller.MaxAttempts <= 0 || cfg.Poller.Interval <= 0 {
		return fmt.Errorf("poller.max_attempts and poller.interval must be positive")
	}
	if cfg.Refresh.General <= 0 || cfg.Refresh.Pending <= 0 {
		return fmt.Errorf("refresh.general and refresh.pending must be positive")
	}
	switch cfg.Writer.Strategy {
	case "custodial", "direct":
	default:
		return fmt.Errorf("writer.strategy must be custodial or direct, got %q", cfg.Writer.Strategy)
	}
	return nil
}

// RequireSigner checks what the custodial write path needs
func (c *Config) RequireSigner() error {
	if c.Signer.BaseURL == "" {
		return fmt.Errorf("signer.base_url is required")
	}
	if c.Signer.APIKey == "" {
		return fmt.Errorf("signer.api_key is required (env: CHIPI_API_KEY)")
	}
	return nil
}

// RequireIdentity checks what the identity provider client needs
func (c *Config) RequireIdentity() error {
	if c.Identity.SecretKey == "" {
		return fmt.Errorf("identity.secret_key is required (env: CLERK_SECRET_KEY)")
	}
	return nil
}

// RequireDirectAccount checks what the direct write path needs
func (c *Config) RequireDirectAccount() error {
	if c.Writer.AccountAddress == "" || c.Writer.AccountPublicKey == "" || c.Writer.AccountPrivateKey == "" {
		return fmt.Errorf("direct strategy needs writer.account_address, writer.account_public_key and writer.account_private_key")
	}
	return nil
}

func (c *Config) RequireTelegram() error {
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.bot_token is required (env: TELEGRAM_BOT_TOKEN)")
	}
	if c.Telegram.ChatID == "" {
		return fmt.Errorf("telegram.chat_id is required (env: TELEGRAM_CHAT_ID)")
	}
	return nil
}
