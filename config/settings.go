// Package config provides application settings loaded from environment variables.
//
// Settings are created via New() which handles:
// - Environment variable parsing with validation
// - Default value application
// - Provider-specific configuration lookup

package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Settings holds all application configuration.
type Settings struct {
	LLM        LLMConfig
	Light      LLMConfig
	Search     SearchConfig
	Rerank     RerankConfig
	Embeddings EmbeddingsConfig
	Tools      ToolsConfig
	Scheduler  SchedulerConfig
	Server     ServerConfig
	LogLevel   string
}

// LLMConfig holds LLM provider configuration.
type LLMConfig struct {
	Provider    string
	Model       string
	BaseURL     string
	MaxTokens   uint32
	Temperature float64
	Tier        string
}

// SearchConfig configures the Tavily web search adapter. An empty APIKey
// disables web search.
type SearchConfig struct {
	APIKey string
	APIURL string
	Limit  int
	Depth  string
}

// RerankConfig configures the cross-encoder reranker. An empty Provider
// selects the keyword fallback.
type RerankConfig struct {
	Provider string
	Model    string
	APIKey   string
	APIURL   string
}

// EmbeddingsConfig configures the embeddings adapter. An empty Provider
// disables semantic context budgeting.
type EmbeddingsConfig struct {
	Provider string
	Model    string
}

// ToolsConfig holds the shared retry policy of tool adapters.
type ToolsConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Timeout    time.Duration
}

// SchedulerConfig tunes turns.
type SchedulerConfig struct {
	ContextBudget       int
	MaxSources          int
	MaxRelatedQuestions int
	// FilterPath points at a YAML file of context filter rules.
	FilterPath string
}

// ServerConfig configures the HTTP transport and its journal.
type ServerConfig struct {
	Addr   string
	DBPath string
}

// providerInfo holds configuration for a specific LLM provider.
type providerInfo struct {
	modelEnv     string
	defaultModel string
	lightModel   string
	apiKeyEnv    string
}

// Supported providers and their configuration.
var providers = map[string]providerInfo{
	"openai":    {"OPENAI_MODEL", "gpt-4o", "gpt-4o-mini", "OPENAI_API_KEY"},
	"anthropic": {"ANTHROPIC_MODEL", "claude-sonnet-4-20250514", "claude-3-5-haiku-latest", "ANTHROPIC_API_KEY"},
	"deepseek":  {"DEEPSEEK_MODEL", "deepseek-chat", "deepseek-chat", "DEEPSEEK_API_KEY"},
	"gemini":    {"GEMINI_MODEL", "gemini-2.5-flash", "gemini-2.5-flash", "GEMINI_API_KEY"},
}

// Provider aliases map to canonical names.
var providerAliases = map[string]string{
	"claude": "anthropic",
	"google": "gemini",
	"gpt":    "openai",
}

// New creates settings for the specified provider, loading values from environment variables.
// Returns an error if the provider is unknown or environment variables contain invalid values.
func New(provider string) (Settings, error) {
	main, err := loadLLM(provider, "LLM", false)
	if err != nil {
		return Settings{}, err
	}

	lightProvider := os.Getenv("LIGHT_LLM_PROVIDER")
	if lightProvider == "" {
		lightProvider = main.Provider
	}
	light, err := loadLLM(lightProvider, "LIGHT_LLM", true)
	if err != nil {
		return Settings{}, err
	}

	searchLimit, err := getEnvInt("SEARCH_LIMIT", 8)
	if err != nil {
		return Settings{}, err
	}

	maxRetries, err := getEnvInt("TOOL_MAX_RETRIES", 2)
	if err != nil {
		return Settings{}, err
	}
	baseDelay, err := getEnvDuration("TOOL_BASE_DELAY", 100*time.Millisecond)
	if err != nil {
		return Settings{}, err
	}
	maxDelay, err := getEnvDuration("TOOL_MAX_DELAY", 5*time.Second)
	if err != nil {
		return Settings{}, err
	}
	timeout, err := getEnvDuration("TOOL_TIMEOUT", 30*time.Second)
	if err != nil {
		return Settings{}, err
	}

	budget, err := getEnvInt("CONTEXT_BUDGET", 6000)
	if err != nil {
		return Settings{}, err
	}
	maxSources, err := getEnvInt("MAX_SOURCES", 8)
	if err != nil {
		return Settings{}, err
	}
	maxQuestions, err := getEnvInt("MAX_RELATED_QUESTIONS", 3)
	if err != nil {
		return Settings{}, err
	}

	return Settings{
		LLM:   main,
		Light: light,
		Search: SearchConfig{
			APIKey: os.Getenv("TAVILY_API_KEY"),
			APIURL: os.Getenv("TAVILY_API_URL"),
			Limit:  searchLimit,
			Depth:  getEnvString("SEARCH_DEPTH", "basic"),
		},
		Rerank: RerankConfig{
			Provider: os.Getenv("RERANK_PROVIDER"),
			Model:    os.Getenv("RERANK_MODEL"),
			APIKey:   os.Getenv("RERANK_API_KEY"),
			APIURL:   os.Getenv("RERANK_API_URL"),
		},
		Embeddings: EmbeddingsConfig{
			Provider: os.Getenv("EMBEDDINGS_PROVIDER"),
			Model:    os.Getenv("EMBEDDINGS_MODEL"),
		},
		Tools: ToolsConfig{
			MaxRetries: maxRetries,
			BaseDelay:  baseDelay,
			MaxDelay:   maxDelay,
			Timeout:    timeout,
		},
		Scheduler: SchedulerConfig{
			ContextBudget:       budget,
			MaxSources:          maxSources,
			MaxRelatedQuestions: maxQuestions,
			FilterPath:          os.Getenv("CONTEXT_FILTER_PATH"),
		},
		Server: ServerConfig{
			Addr:   getEnvString("SERVER_ADDR", ":8080"),
			DBPath: getEnvString("DB_PATH", "data/skillflow.db"),
		},
		LogLevel: getEnvString("LOG_LEVEL", "info"),
	}, nil
}

// loadLLM reads the model settings under prefix (LLM or LIGHT_LLM).
func loadLLM(provider, prefix string, light bool) (LLMConfig, error) {
	provider = normalizeProvider(provider)
	info, err := getProviderInfo(provider)
	if err != nil {
		return LLMConfig{}, err
	}

	maxTokens, err := getEnvUint32(prefix+"_MAX_TOKENS", 4096)
	if err != nil {
		return LLMConfig{}, err
	}

	defaultTemp, defaultTier := 0.7, "premium"
	model := os.Getenv(info.modelEnv)
	if model == "" {
		model = info.defaultModel
	}
	if light {
		defaultTemp, defaultTier = 0, "basic"
		model = getEnvString("LIGHT_LLM_MODEL", info.lightModel)
	}

	temperature, err := getEnvFloat64(prefix+"_TEMPERATURE", defaultTemp)
	if err != nil {
		return LLMConfig{}, err
	}

	return LLMConfig{
		Provider:    provider,
		Model:       model,
		BaseURL:     os.Getenv(prefix + "_BASE_URL"),
		MaxTokens:   maxTokens,
		Temperature: temperature,
		Tier:        getEnvString(prefix+"_TIER", defaultTier),
	}, nil
}

// normalizeProvider converts provider aliases to canonical names.
func normalizeProvider(provider string) string {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if canonical, ok := providerAliases[provider]; ok {
		return canonical
	}
	return provider
}

// getProviderInfo returns configuration for a provider.
func getProviderInfo(provider string) (providerInfo, error) {
	info, ok := providers[provider]
	if !ok {
		return providerInfo{}, fmt.Errorf("unknown provider: %q", provider)
	}
	return info, nil
}

// APIKeyFor returns the API key for a provider from environment variables.
func APIKeyFor(provider string) (string, error) {
	provider = normalizeProvider(provider)

	info, err := getProviderInfo(provider)
	if err != nil {
		return "", err
	}

	key := os.Getenv(info.apiKeyEnv)
	if key == "" {
		return "", fmt.Errorf("%s environment variable not set", info.apiKeyEnv)
	}
	return key, nil
}

// SupportedProviders returns the supported provider names, sorted.
func SupportedProviders() []string {
	result := make([]string, 0, len(providers))
	for name := range providers {
		result = append(result, name)
	}
	sort.Strings(result)
	return result
}

// Environment variable helpers with proper error handling

func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return i, nil
}

func getEnvUint32(key string, defaultVal uint32) (uint32, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.ParseUint(val, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return uint32(i), nil
}

func getEnvFloat64(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return f, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return d, nil
}
