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

var validProviders = map[string]bool{
	ProviderAnthropic: true,
	ProviderOpenAI:    true,
	ProviderGenAI:     true,
}

var validSeverities = map[string]bool{
	"critical": true,
	"high":     true,
	"medium":   true,
	"low":      true,
}

// Load reads configs/config.yaml, merges configs/config.<APP_ENVIRONMENT>.yaml on top and
// applies environment overrides.
func Load() (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // optional overlay

	return finalize(v)
}

// LoadFromFile reads a single YAML file. Used by tools and tests.
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finalize(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

func finalize(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	// An explicit zero disables retries, so this default cannot live in applyDefaults.
	v.SetDefault("llm.max_retries", 2)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env", // test/e2e
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
			return ""
		}
		dir = parent
	}
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			expanded := os.ExpandEnv(strVal)
			if expanded != strVal && expanded != "" {
				v.Set(key, expanded)
			}
		}
	}
}

func envFallback(target *string, names ...string) {
	if *target != "" {
		return
	}
	for _, name := range names {
		if val := os.Getenv(name); val != "" {
			*target = val
			return
		}
	}
}

func overrideEmptyConfig(cfg *Config) {
	switch cfg.LLM.Provider {
	case ProviderAnthropic:
		envFallback(&cfg.LLM.APIKey, "ANTHROPIC_API_KEY")
	case ProviderOpenAI:
		envFallback(&cfg.LLM.APIKey, "OPENAI_API_KEY")
	default:
		envFallback(&cfg.LLM.APIKey, "GENAI_API_KEY")
	}

	envFallback(&cfg.Camunda.BrokerAddress, "ZEEBE_ADDRESS")
	envFallback(&cfg.Database.Redis.Password, "REDIS_PASSWORD")
	envFallback(&cfg.Actions.APIToken, "ACTIONS_API_TOKEN")
	envFallback(&cfg.Notifications.AWS.Region, "AWS_REGION")
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "decision-workers"
	}

	if cfg.Camunda.MaxJobsActive == 0 {
		cfg.Camunda.MaxJobsActive = 10
	}
	if cfg.Camunda.Timeout == 0 {
		cfg.Camunda.Timeout = 30000
	}
	if cfg.Camunda.RequestTimeout == 0 {
		cfg.Camunda.RequestTimeout = 30000
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

	for key, worker := range cfg.Workers {
		if worker.MaxJobsActive == 0 {
			worker.MaxJobsActive = 5
		}
		if worker.Timeout == 0 {
			worker.Timeout = 30000
		}
		if worker.MaxRetries == 0 {
			worker.MaxRetries = 3
		}
		cfg.Workers[key] = worker
	}

	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = ProviderGenAI
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = 15000
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 512
	}

	if cfg.Alerts.DedupTTL == 0 {
		cfg.Alerts.DedupTTL = 24 * 60 * 60 * 1000
	}
	if cfg.Alerts.MessageName == "" {
		cfg.Alerts.MessageName = "alert-raised"
	}
	for i := range cfg.Alerts.Patterns {
		if cfg.Alerts.Patterns[i].Severity == "" {
			cfg.Alerts.Patterns[i].Severity = "medium"
		}
	}

	if cfg.Actions.Timeout == 0 {
		cfg.Actions.Timeout = 10000
	}

	if cfg.Conversation.IdleTimeout == 0 {
		cfg.Conversation.IdleTimeout = 2 * 60 * 60 * 1000
	}
	if cfg.Conversation.SweepSchedule == "" {
		cfg.Conversation.SweepSchedule = "*/10 * * * *"
	}

	if cfg.Notifications.SMS.PriorityThreshold == "" {
		cfg.Notifications.SMS.PriorityThreshold = "critical"
	}
	if cfg.Notifications.Email.PriorityThreshold == "" {
		cfg.Notifications.Email.PriorityThreshold = "high"
	}

	if cfg.Metrics.Address == "" {
		cfg.Metrics.Address = ":8080"
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Camunda.BrokerAddress == "" {
		return fmt.Errorf("camunda.broker_address is required")
	}

	if cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required")
	}

	if !validProviders[cfg.LLM.Provider] {
		return fmt.Errorf("llm.provider %q is not supported", cfg.LLM.Provider)
	}
	if cfg.LLM.Provider == ProviderGenAI && cfg.LLM.BaseURL == "" {
		return fmt.Errorf("llm.base_url is required for the genai provider")
	}
	if cfg.LLM.MaxRetries < 0 {
		return fmt.Errorf("llm.max_retries must not be negative")
	}

	for i, p := range cfg.Alerts.Patterns {
		if strings.TrimSpace(p.Pattern) == "" {
			return fmt.Errorf("alerts.patterns[%d].pattern is empty", i)
		}
		if !validSeverities[p.Severity] {
			return fmt.Errorf("alerts.patterns[%d].severity %q is invalid", i, p.Severity)
		}
	}
	for i, r := range cfg.Alerts.Rules {
		if r.EventType == "" || r.RuleID == "" {
			return fmt.Errorf("alerts.rules[%d] needs event_type and rule_id", i)
		}
	}

	if cfg.Actions.BaseURL == "" {
		return fmt.Errorf("actions.base_url is required")
	}

	if !validSeverities[cfg.Notifications.SMS.PriorityThreshold] {
		return fmt.Errorf("notifications.sms.priority_threshold %q is invalid", cfg.Notifications.SMS.PriorityThreshold)
	}
	if !validSeverities[cfg.Notifications.Email.PriorityThreshold] {
		return fmt.Errorf("notifications.email.priority_threshold %q is invalid", cfg.Notifications.Email.PriorityThreshold)
	}

	return nil
}

func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

func GetWorkerConfig(cfg *Config, workerName string) WorkerConfig {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker
	}

	return WorkerConfig{
		Enabled:       true,
		MaxJobsActive: 5,
		Timeout:       30000,
		MaxRetries:    3,
	}
}

func IsWorkerEnabled(cfg *Config, workerName string) bool {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker.Enabled
	}
	return true
}
