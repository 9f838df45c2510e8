package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

type GlobalFlags struct {
	ConfigPath     string
	EnvFile        string
	JSON           bool
	Plain          bool
	Select         string
	ResultsOnly    bool
	Timeout        string
	Retries        int
	User           string
	LogLevel       string
	PendingBackend string
	AllowedKinds   string
}

// BindFlags registers the global flags on fs.
func BindFlags(fs *pflag.FlagSet, flags *GlobalFlags) {
	fs.StringVar(&flags.ConfigPath, "config", "", "Path to config file")
	fs.StringVar(&flags.EnvFile, "env-file", "", "Load environment variables from this .env file (default ./.env when present)")
	fs.BoolVar(&flags.JSON, "json", false, "Output JSON envelope")
	fs.BoolVar(&flags.Plain, "plain", false, "Output plain text")
	fs.StringVar(&flags.Select, "select", "", "Select fields from data (comma-separated)")
	fs.BoolVar(&flags.ResultsOnly, "results-only", false, "Output only data payload")
	fs.StringVar(&flags.Timeout, "timeout", "", "Provider request timeout")
	fs.IntVar(&flags.Retries, "retries", -1, "Retries per provider request")
	fs.StringVar(&flags.User, "user", "", "User id whose wallet and pending action are used")
	fs.StringVar(&flags.LogLevel, "log-level", "", "Log level (debug|info|warn|error)")
	fs.StringVar(&flags.PendingBackend, "pending-backend", "", "Pending action store (memory|sqlite|redis)")
	fs.StringVar(&flags.AllowedKinds, "allowed-kinds", "", "Comma-separated action kinds that may be previewed")
}

type Settings struct {
	OutputMode   string
	SelectFields []string
	ResultsOnly  bool
	Timeout      time.Duration
	Retries      int
	UserID       string

	LogLevel  string
	LogFormat string

	RPCOverrides map[int64]string

	PendingBackend  string
	PendingMaxAge   time.Duration
	PendingPath     string
	PendingLockPath string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	RedisPrefix     string

	JournalPath     string
	JournalLockPath string

	// WalletMode is "keystore" for per-user key files or "env" for a single
	// key loaded by the signer package.
	WalletMode         string
	KeystoreDir        string
	KeystorePassphrase string

	BungeeAPIKey  string
	BungeeBaseURL string

	VaultAddress        string
	PerpsReaderAddress  string
	PerpsPositionRouter string

	Simulate           bool
	GasMultiplier      float64
	MaxFeeGwei         string
	MaxPriorityFeeGwei string
	WaitApproval       bool
	ApprovalTimeout    time.Duration
	WaitReceipt        bool
	ReceiptTimeout     time.Duration
	AllowMaxApproval   bool

	AllowedKinds   []string
	ReinvestBefore []string

	ListenAddr     string
	RateLimitPerIP int
}

type fileConfig struct {
	Output  string           `yaml:"output"`
	Timeout string           `yaml:"timeout"`
	Retries *int             `yaml:"retries"`
	User    string           `yaml:"user"`
	RPC     map[int64]string `yaml:"rpc"`
	Log     struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Pending struct {
		Backend  string `yaml:"backend"`
		MaxAge   string `yaml:"max_age"`
		Path     string `yaml:"path"`
		LockPath string `yaml:"lock_path"`
		Redis    struct {
			Addr        string `yaml:"addr"`
			Password    string `yaml:"password"`
			PasswordEnv string `yaml:"password_env"`
			DB          *int   `yaml:"db"`
			Prefix      string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"pending"`
	Journal struct {
		Path     string `yaml:"path"`
		LockPath string `yaml:"lock_path"`
	} `yaml:"journal"`
	Wallet struct {
		Mode          string `yaml:"mode"`
		KeystoreDir   string `yaml:"keystore_dir"`
		PassphraseEnv string `yaml:"passphrase_env"`
	} `yaml:"wallet"`
	Execution struct {
		Simulate           *bool    `yaml:"simulate"`
		GasMultiplier      *float64 `yaml:"gas_multiplier"`
		MaxFeeGwei         string   `yaml:"max_fee_gwei"`
		MaxPriorityFeeGwei string   `yaml:"max_priority_fee_gwei"`
		WaitApproval       *bool    `yaml:"wait_approval"`
		ApprovalTimeout    string   `yaml:"approval_timeout"`
		WaitReceipt        *bool    `yaml:"wait_receipt"`
		ReceiptTimeout     string   `yaml:"receipt_timeout"`
		AllowMaxApproval   *bool    `yaml:"allow_max_approval"`
	} `yaml:"execution"`
	Policy struct {
		AllowedKinds   []string `yaml:"allowed_kinds"`
		ReinvestBefore []string `yaml:"reinvest_before"`
	} `yaml:"policy"`
	Providers struct {
		Bungee struct {
			APIKey    string `yaml:"api_key"`
			APIKeyEnv string `yaml:"api_key_env"`
			BaseURL   string `yaml:"base_url"`
		} `yaml:"bungee"`
		Vault struct {
			Address string `yaml:"address"`
		} `yaml:"vault"`
		Perps struct {
			Reader         string `yaml:"reader"`
			PositionRouter string `yaml:"position_router"`
		} `yaml:"perps"`
	} `yaml:"providers"`
	Server struct {
		Listen         string `yaml:"listen"`
		RateLimitPerIP *int   `yaml:"rate_limit_per_ip"`
	} `yaml:"server"`
}

func Load(flags GlobalFlags) (Settings, error) {
	settings, err := defaultSettings()
	if err != nil {
		return Settings{}, err
	}

	cfgPath, err := resolveConfigPath(flags.ConfigPath)
	if err != nil {
		return Settings{}, err
	}

	if err := applyFileConfig(cfgPath, &settings); err != nil {
		return Settings{}, err
	}

	if err := loadEnvFile(flags.EnvFile); err != nil {
		return Settings{}, err
	}
	applyEnv(&settings)

	if err := applyFlags(flags, &settings); err != nil {
		return Settings{}, err
	}

	if settings.OutputMode == "" {
		settings.OutputMode = "json"
	}
	if settings.Timeout <= 0 {
		settings.Timeout = 10 * time.Second
	}
	if settings.Retries < 0 {
		settings.Retries = 0
	}
	if settings.PendingMaxAge < 0 {
		settings.PendingMaxAge = 0
	}
	if settings.GasMultiplier <= 0 {
		settings.GasMultiplier = 1.2
	}
	if settings.GasMultiplier < 1 {
		return Settings{}, fmt.Errorf("gas multiplier must be at least 1")
	}
	switch settings.PendingBackend {
	case "memory", "sqlite", "redis":
	default:
		return Settings{}, fmt.Errorf("pending backend must be memory, sqlite or redis")
	}
	switch settings.WalletMode {
	case "keystore", "env":
	default:
		return Settings{}, fmt.Errorf("wallet mode must be keystore or env")
	}

	return settings, nil
}

func defaultSettings() (Settings, error) {
	dataDir, err := defaultDataDir()
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		OutputMode:      "json",
		Timeout:         10 * time.Second,
		Retries:         2,
		UserID:          "local",
		LogLevel:        "warn",
		LogFormat:       "json",
		RPCOverrides:    map[int64]string{},
		PendingBackend:  "sqlite",
		PendingMaxAge:   10 * time.Minute,
		PendingPath:     filepath.Join(dataDir, "pending.db"),
		PendingLockPath: filepath.Join(dataDir, "pending.lock"),
		RedisAddr:       "127.0.0.1:6379",
		RedisPrefix:     "intents:pending:",
		JournalPath:     filepath.Join(dataDir, "journal.db"),
		JournalLockPath: filepath.Join(dataDir, "journal.lock"),
		WalletMode:      "keystore",
		KeystoreDir:     filepath.Join(dataDir, "keystore"),
		Simulate:        true,
		GasMultiplier:   1.2,
		ApprovalTimeout: 2 * time.Minute,
		ReceiptTimeout:  2 * time.Minute,
		ListenAddr:      "127.0.0.1:8080",
		RateLimitPerIP:  60,
	}, nil
}

func resolveConfigPath(input string) (string, error) {
	if strings.TrimSpace(input) != "" {
		return input, nil
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "defi-intents", "config.yaml"), nil
}

func defaultDataDir() (string, error) {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, "defi-intents"), nil
}

// loadEnvFile reads a .env file without overriding variables already set.
// An explicit path must exist; the default ./.env is optional.
func loadEnvFile(path string) error {
	if strings.TrimSpace(path) != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func applyFileConfig(path string, settings *Settings) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}

	if cfg.Output != "" {
		settings.OutputMode = strings.ToLower(cfg.Output)
	}
	if err := setDuration(&settings.Timeout, cfg.Timeout, "timeout"); err != nil {
		return err
	}
	if cfg.Retries != nil {
		settings.Retries = *cfg.Retries
	}
	if cfg.User != "" {
		settings.UserID = cfg.User
	}
	for chainID, url := range cfg.RPC {
		settings.RPCOverrides[chainID] = url
	}
	setString(&settings.LogLevel, cfg.Log.Level)
	setString(&settings.LogFormat, cfg.Log.Format)

	setString(&settings.PendingBackend, strings.ToLower(cfg.Pending.Backend))
	if err := setDuration(&settings.PendingMaxAge, cfg.Pending.MaxAge, "pending.max_age"); err != nil {
		return err
	}
	setString(&settings.PendingPath, cfg.Pending.Path)
	setString(&settings.PendingLockPath, cfg.Pending.LockPath)
	setString(&settings.RedisAddr, cfg.Pending.Redis.Addr)
	setString(&settings.RedisPassword, cfg.Pending.Redis.Password)
	if cfg.Pending.Redis.PasswordEnv != "" {
		settings.RedisPassword = os.Getenv(cfg.Pending.Redis.PasswordEnv)
	}
	if cfg.Pending.Redis.DB != nil {
		settings.RedisDB = *cfg.Pending.Redis.DB
	}
	setString(&settings.RedisPrefix, cfg.Pending.Redis.Prefix)
	setString(&settings.JournalPath, cfg.Journal.Path)
	setString(&settings.JournalLockPath, cfg.Journal.LockPath)

	setString(&settings.WalletMode, strings.ToLower(cfg.Wallet.Mode))
	setString(&settings.KeystoreDir, cfg.Wallet.KeystoreDir)
	if cfg.Wallet.PassphraseEnv != "" {
		settings.KeystorePassphrase = os.Getenv(cfg.Wallet.PassphraseEnv)
	}

	ex := cfg.Execution
	setBool(&settings.Simulate, ex.Simulate)
	if ex.GasMultiplier != nil {
		settings.GasMultiplier = *ex.GasMultiplier
	}
	setString(&settings.MaxFeeGwei, ex.MaxFeeGwei)
	setString(&settings.MaxPriorityFeeGwei, ex.MaxPriorityFeeGwei)
	setBool(&settings.WaitApproval, ex.WaitApproval)
	if err := setDuration(&settings.ApprovalTimeout, ex.ApprovalTimeout, "execution.approval_timeout"); err != nil {
		return err
	}
	setBool(&settings.WaitReceipt, ex.WaitReceipt)
	if err := setDuration(&settings.ReceiptTimeout, ex.ReceiptTimeout, "execution.receipt_timeout"); err != nil {
		return err
	}
	setBool(&settings.AllowMaxApproval, ex.AllowMaxApproval)

	if len(cfg.Policy.AllowedKinds) > 0 {
		settings.AllowedKinds = cfg.Policy.AllowedKinds
	}
	if len(cfg.Policy.ReinvestBefore) > 0 {
		settings.ReinvestBefore = cfg.Policy.ReinvestBefore
	}

	setString(&settings.BungeeAPIKey, cfg.Providers.Bungee.APIKey)
	if cfg.Providers.Bungee.APIKeyEnv != "" {
		settings.BungeeAPIKey = os.Getenv(cfg.Providers.Bungee.APIKeyEnv)
	}
	setString(&settings.BungeeBaseURL, cfg.Providers.Bungee.BaseURL)
	setString(&settings.VaultAddress, cfg.Providers.Vault.Address)
	setString(&settings.PerpsReaderAddress, cfg.Providers.Perps.Reader)
	setString(&settings.PerpsPositionRouter, cfg.Providers.Perps.PositionRouter)

	setString(&settings.ListenAddr, cfg.Server.Listen)
	if cfg.Server.RateLimitPerIP != nil {
		settings.RateLimitPerIP = *cfg.Server.RateLimitPerIP
	}
	return nil
}

func applyEnv(settings *Settings) {
	if v := os.Getenv("DEFI_OUTPUT"); v != "" {
		settings.OutputMode = strings.ToLower(v)
	}
	if v := os.Getenv("DEFI_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.Timeout = d
		}
	}
	if v := os.Getenv("DEFI_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			settings.Retries = n
		}
	}
	envString(&settings.UserID, "DEFI_USER")
	envString(&settings.LogLevel, "DEFI_LOG_LEVEL")
	envString(&settings.LogFormat, "DEFI_LOG_FORMAT")

	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || value == "" || !strings.HasPrefix(key, "DEFI_RPC_URL_") {
			continue
		}
		if chainID, err := strconv.ParseInt(strings.TrimPrefix(key, "DEFI_RPC_URL_"), 10, 64); err == nil {
			settings.RPCOverrides[chainID] = value
		}
	}

	if v := os.Getenv("DEFI_PENDING_BACKEND"); v != "" {
		settings.PendingBackend = strings.ToLower(v)
	}
	if v := os.Getenv("DEFI_PENDING_MAX_AGE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.PendingMaxAge = d
		}
	}
	envString(&settings.PendingPath, "DEFI_PENDING_PATH")
	envString(&settings.PendingLockPath, "DEFI_PENDING_LOCK_PATH")
	envString(&settings.RedisAddr, "DEFI_REDIS_ADDR")
	envString(&settings.RedisPassword, "DEFI_REDIS_PASSWORD")
	if v := os.Getenv("DEFI_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			settings.RedisDB = n
		}
	}
	envString(&settings.JournalPath, "DEFI_JOURNAL_PATH")
	envString(&settings.JournalLockPath, "DEFI_JOURNAL_LOCK_PATH")

	if v := os.Getenv("DEFI_WALLET_MODE"); v != "" {
		settings.WalletMode = strings.ToLower(v)
	}
	envString(&settings.KeystoreDir, "DEFI_WALLET_DIR")
	envString(&settings.KeystorePassphrase, "DEFI_WALLET_PASSPHRASE")

	envString(&settings.BungeeAPIKey, "DEFI_BUNGEE_API_KEY")
	envString(&settings.BungeeBaseURL, "DEFI_BUNGEE_BASE_URL")
	envString(&settings.VaultAddress, "DEFI_VAULT_ADDRESS")
	envString(&settings.PerpsReaderAddress, "DEFI_PERPS_READER")
	envString(&settings.PerpsPositionRouter, "DEFI_PERPS_POSITION_ROUTER")

	envBool(&settings.Simulate, "DEFI_SIMULATE")
	if v := os.Getenv("DEFI_GAS_MULTIPLIER"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			settings.GasMultiplier = f
		}
	}
	envString(&settings.MaxFeeGwei, "DEFI_MAX_FEE_GWEI")
	envString(&settings.MaxPriorityFeeGwei, "DEFI_MAX_PRIORITY_FEE_GWEI")
	envBool(&settings.WaitApproval, "DEFI_WAIT_APPROVAL")
	envBool(&settings.WaitReceipt, "DEFI_WAIT_RECEIPT")
	envBool(&settings.AllowMaxApproval, "DEFI_ALLOW_MAX_APPROVAL")

	if v := os.Getenv("DEFI_ALLOWED_KINDS"); v != "" {
		settings.AllowedKinds = splitList(v)
	}
	if v := os.Getenv("DEFI_REINVEST_BEFORE"); v != "" {
		settings.ReinvestBefore = splitList(v)
	}
	envString(&settings.ListenAddr, "DEFI_LISTEN_ADDR")
}

func applyFlags(flags GlobalFlags, settings *Settings) error {
	if flags.JSON && flags.Plain {
		return fmt.Errorf("cannot use --json and --plain together")
	}
	if flags.JSON {
		settings.OutputMode = "json"
	}
	if flags.Plain {
		settings.OutputMode = "plain"
	}
	if strings.TrimSpace(flags.Select) != "" {
		settings.SelectFields = splitList(flags.Select)
	}
	settings.ResultsOnly = flags.ResultsOnly

	if flags.Timeout != "" {
		d, err := time.ParseDuration(flags.Timeout)
		if err != nil {
			return fmt.Errorf("parse --timeout: %w", err)
		}
		settings.Timeout = d
	}
	if flags.Retries >= 0 {
		settings.Retries = flags.Retries
	}
	setString(&settings.UserID, strings.TrimSpace(flags.User))
	setString(&settings.LogLevel, flags.LogLevel)
	setString(&settings.PendingBackend, strings.ToLower(flags.PendingBackend))
	if strings.TrimSpace(flags.AllowedKinds) != "" {
		settings.AllowedKinds = splitList(flags.AllowedKinds)
	}

	if settings.OutputMode != "json" && settings.OutputMode != "plain" {
		return fmt.Errorf("output must be json or plain")
	}
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v, name string) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("config %s: %w", name, err)
	}
	*dst = d
	return nil
}

func envString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
