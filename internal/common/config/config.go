// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig               `mapstructure:"app"`
	Camunda       CamundaConfig           `mapstructure:"camunda"`
	Database      DatabaseConfig          `mapstructure:"database"`
	Workers       map[string]WorkerConfig `mapstructure:"workers"`
	LLM           LLMConfig               `mapstructure:"llm"`
	Alerts        AlertsConfig            `mapstructure:"alerts"`
	Actions       ActionsConfig           `mapstructure:"actions"`
	Conversation  ConversationConfig      `mapstructure:"conversation"`
	Notifications NotificationConfig      `mapstructure:"notifications"`
	Logging       LoggingConfig           `mapstructure:"logging"`
	Metrics       MetricsConfig           `mapstructure:"metrics"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type CamundaConfig struct {
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
	UsePlaintext   bool   `mapstructure:"use_plaintext"`
}

type DatabaseConfig struct {
	Redis RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// WorkerConfig holds the core settings applicable to every worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"`     // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"` // For error handling
}

// --- Decision Core Sections ---

// LLM providers understood by intent.NewCompleter.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGenAI     = "genai"
)

// LLMConfig configures the completion capability behind the intent classifier.
type LLMConfig struct {
	Provider    string  `mapstructure:"provider"`
	Model       string  `mapstructure:"model"`
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Timeout     int     `mapstructure:"timeout"` // milliseconds
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
	MaxRetries  int     `mapstructure:"max_retries"`
	CacheTTL    int     `mapstructure:"cache_ttl"` // milliseconds, 0 disables the cache
}

// AlertPatternConfig is one ordered entry of the alert type-pattern list.
type AlertPatternConfig struct {
	Pattern  string `mapstructure:"pattern"`
	Severity string `mapstructure:"severity"`
}

// AlertRuleConfig maps an exact event type to a registered rule id.
// Kept as a list because viper splits map keys on dots.
type AlertRuleConfig struct {
	EventType string `mapstructure:"event_type"`
	RuleID    string `mapstructure:"rule_id"`
}

// AlertsConfig holds the severity classifier's static configuration.
type AlertsConfig struct {
	RegistryPath string               `mapstructure:"registry_path"`
	Streams      []string             `mapstructure:"streams"`
	Patterns     []AlertPatternConfig `mapstructure:"patterns"`
	Rules        []AlertRuleConfig    `mapstructure:"rules"`
	DedupTTL     int                  `mapstructure:"dedup_ttl"` // milliseconds
	MessageName  string               `mapstructure:"message_name"`
}

// ActionsConfig configures the action execution side channel.
type ActionsConfig struct {
	BaseURL  string `mapstructure:"base_url"`
	APIToken string `mapstructure:"api_token"`
	Timeout  int    `mapstructure:"timeout"` // milliseconds
}

// ConversationConfig controls how long idle sessions are kept in memory.
type ConversationConfig struct {
	IdleTimeout   int    `mapstructure:"idle_timeout"`   // milliseconds
	SweepSchedule string `mapstructure:"sweep_schedule"` // 5-field cron expression
}

// NotificationConfig holds settings for the alert notifier.
type NotificationConfig struct {
	Email struct {
		Enabled           bool     `mapstructure:"enabled"`
		FromEmail         string   `mapstructure:"from_email"`
		Recipients        []string `mapstructure:"recipients"`
		PriorityThreshold string   `mapstructure:"priority_threshold"`
	} `mapstructure:"email"`
	SMS struct {
		Enabled           bool   `mapstructure:"enabled"`
		TopicARN          string `mapstructure:"topic_arn"`
		PhoneNumber       string `mapstructure:"phone_number"`
		PriorityThreshold string `mapstructure:"priority_threshold"`
	} `mapstructure:"sms"`
	AWS struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"aws"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

type MetricsConfig struct {
	Address string `mapstructure:"address"`
}

// GetAddress returns the Redis address with a localhost fallback.
func (r RedisConfig) GetAddress() string {
	if r.Address != "" {
		return r.Address
	}
	return fmt.Sprintf("%s:%d", "localhost", 6379)
}
