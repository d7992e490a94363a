// File: internal/config/config.go
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Supported LLM providers.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Config holds the entire application configuration.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Executor  ExecutorConfig  `mapstructure:"executor" yaml:"executor"`
	LLM       LLMConfig       `mapstructure:"llm" yaml:"llm"`
	Transform TransformConfig `mapstructure:"transform" yaml:"transform"`
	Harvest   HarvestConfig   `mapstructure:"harvest" yaml:"harvest"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// ExecutorConfig tunes the connection to the automation executor.
type ExecutorConfig struct {
	// Endpoint is the DevTools endpoint of the long-lived, already
	// authenticated browser the core attaches to.
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
	// AgentURL is the base URL of the execution-agent service that receives
	// dispatched instructions.
	AgentURL string `mapstructure:"agent_url" yaml:"agent_url"`
	// MaxRetries bounds persistent-attach attempts before falling back.
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries"`
	// AcquireTimeout bounds a single connection attempt.
	AcquireTimeout time.Duration `mapstructure:"acquire_timeout" yaml:"acquire_timeout"`
	KeepAlive      bool          `mapstructure:"keep_alive" yaml:"keep_alive"`
	// UserDataDir is the private profile directory used only by the fallback
	// session flavor for cookie persistence.
	UserDataDir string `mapstructure:"user_data_dir" yaml:"user_data_dir"`
	Headless    bool   `mapstructure:"headless" yaml:"headless"`
	// DebugPort is the remote-debugging port used by `launch-chrome` and by
	// the default endpoint.
	DebugPort int `mapstructure:"debug_port" yaml:"debug_port"`
}

// LLMConfig selects and tunes the text-generation provider.
type LLMConfig struct {
	Provider    string        `mapstructure:"provider" yaml:"provider"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"-"`
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout  time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature float32       `mapstructure:"temperature" yaml:"temperature"`
}

// TransformConfig tunes the prompt transformation pipeline.
type TransformConfig struct {
	UseTemplates bool `mapstructure:"use_templates" yaml:"use_templates"`
	UseLLM       bool `mapstructure:"use_llm" yaml:"use_llm"`
	// CacheSize bounds the classification memoization cache (LRU entries).
	CacheSize int `mapstructure:"cache_size" yaml:"cache_size"`
	// DraftPhrases is the phrase table that switches a comment phase into
	// draft-only mode. Kept configurable rather than inferring a grammar.
	DraftPhrases []string `mapstructure:"draft_phrases" yaml:"draft_phrases"`
}

// HarvestConfig tunes harvest orchestration.
type HarvestConfig struct {
	// DispatchInterval paces consecutive agent dispatches.
	DispatchInterval time.Duration `mapstructure:"dispatch_interval" yaml:"dispatch_interval"`
	DispatchBurst    int           `mapstructure:"dispatch_burst" yaml:"dispatch_burst"`
}

// ServerConfig tunes the HTTP boundary.
type ServerConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
	// JobTTL bounds how long finished jobs stay queryable.
	JobTTL time.Duration `mapstructure:"job_ttl" yaml:"job_ttl"`
}

// SetDefaults registers every default value on the given viper instance.
// Callers override via config file or LINKHAWK_* environment variables.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "linkhawk")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 28)

	v.SetDefault("executor.endpoint", "http://localhost:9222")
	v.SetDefault("executor.agent_url", "http://localhost:8931")
	v.SetDefault("executor.max_retries", 3)
	v.SetDefault("executor.acquire_timeout", 10*time.Second)
	v.SetDefault("executor.keep_alive", true)
	v.SetDefault("executor.user_data_dir", defaultUserDataDir())
	v.SetDefault("executor.headless", false)
	v.SetDefault("executor.debug_port", 9222)

	v.SetDefault("llm.provider", ProviderGemini)
	v.SetDefault("llm.model", "gemini-2.0-flash")
	// Registered empty so the LINKHAWK_LLM_API_KEY env binding resolves
	// during Unmarshal.
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.endpoint", "")
	v.SetDefault("llm.api_timeout", 60*time.Second)
	v.SetDefault("llm.max_tokens", 1024)
	v.SetDefault("llm.temperature", 0.2)

	v.SetDefault("transform.use_templates", true)
	v.SetDefault("transform.use_llm", false)
	v.SetDefault("transform.cache_size", 256)
	v.SetDefault("transform.draft_phrases", []string{"don't post", "do not post", "draft"})

	v.SetDefault("harvest.dispatch_interval", 5*time.Second)
	v.SetDefault("harvest.dispatch_burst", 1)

	v.SetDefault("server.addr", ":5000")
	v.SetDefault("server.job_ttl", 30*time.Minute)
}

// Load reads configuration from the optional file path, the working
// directory, and the environment, and returns the validated Config.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("LINKHAWK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; proceed with defaults and env vars.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field invariants that viper cannot express.
func (c *Config) Validate() error {
	if c.Executor.MaxRetries < 1 {
		return fmt.Errorf("executor.max_retries must be >= 1, got %d", c.Executor.MaxRetries)
	}
	if c.Executor.AcquireTimeout <= 0 {
		return fmt.Errorf("executor.acquire_timeout must be positive, got %s", c.Executor.AcquireTimeout)
	}
	if c.Transform.CacheSize < 1 {
		return fmt.Errorf("transform.cache_size must be >= 1, got %d", c.Transform.CacheSize)
	}
	switch c.LLM.Provider {
	case ProviderGemini, ProviderOpenAI:
	default:
		return fmt.Errorf("unknown llm.provider %q (supported: %s, %s)", c.LLM.Provider, ProviderGemini, ProviderOpenAI)
	}
	if c.Harvest.DispatchBurst < 1 {
		return fmt.Errorf("harvest.dispatch_burst must be >= 1, got %d", c.Harvest.DispatchBurst)
	}
	return nil
}

// defaultUserDataDir resolves the fallback profile directory under the user's
// home, degrading to a relative path when the home cannot be determined.
func defaultUserDataDir() string {
	home, err := homedir.Dir()
	if err != nil {
		return ".linkhawk/browser-profile"
	}
	return filepath.Join(home, ".linkhawk", "browser-profile")
}
