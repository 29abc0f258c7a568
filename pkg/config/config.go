// Package config provides configuration loading, validation, and management
// for the swarm.
//
// KEY PRINCIPLES:
//
//  1. SEPARATION OF CONCERNS:
//     - Project Config: Per-project settings (agents, workflow, search) saved to .codeswarm/config.json
//     - Constants: Hardcoded algorithm parameters that users should not modify
//     - State/Metadata: Run history, pattern scores, timestamps belong in the DATABASE, never in config
//
//  2. SCHEMA VERSIONING: All config changes MUST increment SchemaVersion to prevent breaking changes.
//
//  3. GLOBAL SINGLETON: A single global Config instance is maintained in memory, protected by
//     mutex for thread safety.
//
//  4. VALUE-BASED ACCESS: GetConfig() returns the config BY VALUE (copy, not reference) to
//     prevent external mutation. All updates MUST go through the Update* functions.
//
//  5. VALIDATION FIRST: All config updates are validated before persistence.
//
// USAGE PATTERNS:
//
//	// Load config from file (usually done once at startup)
//	err := config.LoadConfig(projectDir)
//
//	// Access config (always by value)
//	cfg, err := config.GetConfig()
//
//	// Update workflow config atomically with validation
//	err := config.UpdateWorkflow(&newWorkflowConfig)
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"codeswarm/pkg/logx"
)

// Global config instance with mutex protection.
// projectDir is set once during LoadConfig and never changes.
//
//nolint:gochecknoglobals // Intentional singleton pattern for config management
var (
	config     *Config
	projectDir string       // Immutable after LoadConfig - set once at startup
	logger     *logx.Logger // Package logger for config operations
	mu         sync.RWMutex
)

// getLogger returns the config logger, initializing it if needed.
func getLogger() *logx.Logger {
	if logger == nil {
		logger = logx.NewLogger("config")
	}
	return logger
}

// LogInfo logs an info message using the config logger.
// This is exposed for other packages (like main) to use consistent logging.
func LogInfo(format string, args ...interface{}) {
	getLogger().Info(format, args...)
}

// ModelInfo contains static information about a known LLM model.
// This data is hardcoded in the application, not user-configurable.
type ModelInfo struct {
	Provider         string  // API provider (anthropic, openai, google, ollama)
	InputCPM         float64 // Cost per million input tokens (USD)
	OutputCPM        float64 // Cost per million output tokens (USD)
	MaxContextTokens int     // Maximum context window size in tokens
	MaxOutputTokens  int     // Maximum output tokens per request
}

// KnownModels registry contains pricing and provider information for common
// models. This is optional - unknown models will be inferred via
// ProviderPatterns.
//
//nolint:gochecknoglobals // Intentional global for static model registry
var KnownModels = map[string]ModelInfo{
	// Claude models (Anthropic)
	"claude-sonnet-4-5": {
		Provider:         ProviderAnthropic,
		InputCPM:         3.0,
		OutputCPM:        15.0,
		MaxContextTokens: 200000,
		MaxOutputTokens:  8192,
	},
	"claude-opus-4-1": {
		Provider:         ProviderAnthropic,
		InputCPM:         15.0,
		OutputCPM:        75.0,
		MaxContextTokens: 200000,
		MaxOutputTokens:  16384,
	},

	// OpenAI GPT models
	"gpt-4o": {
		Provider:         ProviderOpenAI,
		InputCPM:         2.5,
		OutputCPM:        10.0,
		MaxContextTokens: 128000,
		MaxOutputTokens:  4096,
	},
	"gpt-5-pro": {
		Provider:         ProviderOpenAI,
		InputCPM:         20.0,
		OutputCPM:        60.0,
		MaxContextTokens: 200000,
		MaxOutputTokens:  16384,
	},

	// Google Gemini models
	"gemini-2.5-flash": {
		Provider:         ProviderGoogle,
		InputCPM:         0.30,
		OutputCPM:        2.50,
		MaxContextTokens: 1048576,
		MaxOutputTokens:  65536,
	},
	"gemini-2.5-pro": {
		Provider:         ProviderGoogle,
		InputCPM:         1.25,
		OutputCPM:        10.0,
		MaxContextTokens: 1048576,
		MaxOutputTokens:  65536,
	},
}

// ProviderPattern represents a pattern for inferring provider from model name.
type ProviderPattern struct {
	Prefix   string
	Provider string
}

// ProviderPatterns defines rules for inferring providers from unknown model
// names. Allows using new models without code changes.
//
//nolint:gochecknoglobals // Intentional global for inference rules
var ProviderPatterns = []ProviderPattern{
	{"claude", ProviderAnthropic},
	{"gpt", ProviderOpenAI},
	{"o1", ProviderOpenAI},
	{"o3", ProviderOpenAI},
	{"o4", ProviderOpenAI},
	{"gemini", ProviderGoogle},
	// Ollama models - common open-source model prefixes
	{"phi", ProviderOllama},
	{"llama", ProviderOllama},
	{"qwen", ProviderOllama},
	{"mistral", ProviderOllama},
	{"codellama", ProviderOllama},
	{"deepseek", ProviderOllama},
	{"ollama:", ProviderOllama}, // Explicit prefix like "ollama:phi4"
}

// GetModelProvider returns the API provider for a given model.
// First checks KnownModels, then tries pattern matching.
// Returns error if model cannot be mapped to a provider (FATAL).
func GetModelProvider(modelName string) (string, error) {
	if info, exists := KnownModels[modelName]; exists {
		return info.Provider, nil
	}

	for i := range ProviderPatterns {
		if strings.HasPrefix(modelName, ProviderPatterns[i].Prefix) {
			return ProviderPatterns[i].Provider, nil
		}
	}

	return "", fmt.Errorf("unknown model '%s': no known provider mapping or pattern match - cannot determine API provider", modelName)
}

// GetModelInfo returns the ModelInfo for a given model name.
// Returns the info and true if found in KnownModels, or a default info with
// inferred provider and false if not found.
func GetModelInfo(modelName string) (ModelInfo, bool) {
	if info, exists := KnownModels[modelName]; exists {
		return info, true
	}

	provider := ""
	for i := range ProviderPatterns {
		if strings.HasPrefix(modelName, ProviderPatterns[i].Prefix) {
			provider = ProviderPatterns[i].Provider
			break
		}
	}

	// Conservative defaults for unknown models, no cost tracking.
	return ModelInfo{
		Provider:         provider,
		InputCPM:         0.0,
		OutputCPM:        0.0,
		MaxContextTokens: 32000,
		MaxOutputTokens:  4096,
	}, false
}

// RetryConfig defines configuration for retry behavior.
type RetryConfig struct {
	MaxAttempts   int           `json:"max_attempts"`   // Maximum number of attempts (including initial)
	InitialDelay  time.Duration `json:"initial_delay"`  // Initial delay before first retry
	MaxDelay      time.Duration `json:"max_delay"`      // Maximum delay between retries
	BackoffFactor float64       `json:"backoff_factor"` // Multiplier for exponential backoff
	Jitter        bool          `json:"jitter"`         // Add random jitter to prevent thundering herd
}

// ProviderLimits defines rate limiting configuration for a specific API provider.
type ProviderLimits struct {
	TokensPerMinute int `json:"tokens_per_minute"` // Rate limit in tokens per minute
	MaxConcurrency  int `json:"max_concurrency"`   // Maximum concurrent requests
}

// RateLimitConfig defines rate limiting configuration grouped by API provider.
type RateLimitConfig struct {
	Anthropic ProviderLimits `json:"anthropic"`
	OpenAI    ProviderLimits `json:"openai"`
	Google    ProviderLimits `json:"google"`
	Ollama    ProviderLimits `json:"ollama"`
}

// ProviderDefaults defines default rate limits for each provider.
//
//nolint:gochecknoglobals // Intentional global for provider defaults
var ProviderDefaults = map[string]ProviderLimits{
	ProviderAnthropic: {
		TokensPerMinute: 300000,
		MaxConcurrency:  5,
	},
	ProviderOpenAI: {
		TokensPerMinute: 150000,
		MaxConcurrency:  5,
	},
	ProviderGoogle: {
		TokensPerMinute: 1200000,
		MaxConcurrency:  5,
	},
	ProviderOllama: {
		TokensPerMinute: 1000000, // Effectively unlimited for local inference
		MaxConcurrency:  2,       // Limited by GPU memory
	},
}

// ResilienceConfig bundles all resilience-related middleware configuration.
type ResilienceConfig struct {
	Retry          RetryConfig     `json:"retry"`            // Retry policy settings
	RateLimit      RateLimitConfig `json:"rate_limit"`       // Rate limiting settings
	Timeout        time.Duration   `json:"timeout"`          // Per-request timeout
	DailyBudgetUSD float64         `json:"daily_budget_usd"` // Daily spend ceiling across all providers (0 = unlimited)
}

// MetricsConfig defines configuration for metrics collection.
type MetricsConfig struct {
	Enabled       bool   `json:"enabled"`        // Whether metrics collection is enabled
	Exporter      string `json:"exporter"`       // Metrics exporter type ("prometheus", "noop")
	Namespace     string `json:"namespace"`      // Metrics namespace for grouping
	ListenAddr    string `json:"listen_addr"`    // Address for the /metrics endpoint (default: ":9120")
	PrometheusURL string `json:"prometheus_url"` // Prometheus server URL for querying metrics
}

// DebugConfig defines configuration for debug logging.
type DebugConfig struct {
	LLMMessages bool `json:"llm_messages"` // Enable debug logging for LLM message formatting (default: false)
}

// AgentModelConfig binds one generation agent to a model and sampling settings.
type AgentModelConfig struct {
	Model       string  `json:"model"`       // Model name (mapped to provider via KnownModels)
	Temperature float32 `json:"temperature"` // Sampling temperature for this agent
	MaxTokens   int     `json:"max_tokens"`  // Response token budget for this agent
}

// OfflineAgentConfig defines model overrides for offline mode.
// All models should be Ollama-compatible (e.g., "qwen2.5-coder:32b").
type OfflineAgentConfig struct {
	ArchitectureModel   string `json:"architecture_model,omitempty"`
	ImplementationModel string `json:"implementation_model,omitempty"`
	SecurityModel       string `json:"security_model,omitempty"`
	TestingModel        string `json:"testing_model,omitempty"`
}

// AgentsConfig defines which models back each generation agent.
type AgentsConfig struct {
	Architecture   AgentModelConfig `json:"architecture"`
	Implementation AgentModelConfig `json:"implementation"`
	Security       AgentModelConfig `json:"security"`
	Testing        AgentModelConfig `json:"testing"`
	Vision         AgentModelConfig `json:"vision"`

	// Offline mode model overrides
	Offline *OfflineAgentConfig `json:"offline,omitempty"`
}

// WorkflowConfig defines the generation pipeline behavior.
type WorkflowConfig struct {
	QualityThreshold float64 `json:"quality_threshold"` // Minimum average score to persist a pattern (default: 90.0)
	MaxIterations    int     `json:"max_iterations"`    // Regeneration attempts per agent (default: 3)
	RetrievalLimit   int     `json:"retrieval_limit"`   // Max prior patterns fed into a run (default: 5)
	ScrapeDocs       bool    `json:"scrape_docs"`       // Fetch live documentation before generating (default: true)
	AutoDeploy       bool    `json:"auto_deploy"`       // Reserved for deployment integration (default: false)
	UserID           string  `json:"user_id"`           // Owner recorded on stored patterns
}

// EvalConfig defines the external scoring service connection.
// When Endpoint is empty the deterministic local scorer is used.
type EvalConfig struct {
	Endpoint  string        `json:"endpoint"`   // Scoring service base URL ("" = local heuristic scorer)
	TimeoutMs int           `json:"timeout_ms"` // Per-request timeout in milliseconds (default: 15000)
	timeout   time.Duration `json:"-"`
}

// Timeout returns the scoring request timeout as a duration.
func (e *EvalConfig) Timeout() time.Duration {
	if e.timeout == 0 {
		e.timeout = time.Duration(e.TimeoutMs) * time.Millisecond
	}
	return e.timeout
}

// SearchConfig defines documentation search configuration.
// Search is auto-enabled when API keys are detected, but can be explicitly disabled.
type SearchConfig struct {
	Enabled    *bool `json:"enabled,omitempty"`     // nil = auto-detect from API keys
	MaxResults int   `json:"max_results,omitempty"` // Results per documentation query (default: 5)
}

// All constants bundled together for easy maintenance.
const (
	// Workflow behavior constants.
	DefaultQualityThreshold = 90.0 // Gate for persisting patterns and for early-exit per agent
	DefaultMaxIterations    = 3    // Regeneration attempts per agent
	DefaultRetrievalLimit   = 5    // Prior patterns fed into a run
	DefaultPatternMinScore  = 90.0 // Retrieval floor for prior patterns

	// Improvement loop constants.
	PreviousAttemptExcerpt = 500 // Chars of the previous attempt embedded in retry prompts

	// Pattern storage caps.
	PatternTaskMaxChars = 500   // Task text stored per pattern
	PatternCodeMaxChars = 10000 // Combined code stored per pattern

	// Default model for offline mode - a capable local model available via Ollama.
	DefaultOfflineModel = "qwen2.5-coder:32b"

	// DefaultRequestTimeout bounds a single model call.
	DefaultRequestTimeout = 5 * time.Minute

	// Model name constants.
	ModelClaudeSonnet45 = "claude-sonnet-4-5"
	ModelClaudeOpus41   = "claude-opus-4-1"
	ModelGPT5Pro        = "gpt-5-pro"
	ModelGPT4o          = "gpt-4o"
	ModelGemini25Pro    = "gemini-2.5-pro"
	ModelGemini25Flash  = "gemini-2.5-flash"

	// Default agent model assignments. Each agent runs on a different
	// provider so the swarm is never hostage to one vendor's outage.
	DefaultArchitectureModel   = ModelClaudeSonnet45
	DefaultImplementationModel = ModelGPT5Pro
	DefaultSecurityModel       = ModelClaudeOpus41
	DefaultTestingModel        = ModelGemini25Pro
	DefaultVisionModel         = ModelGemini25Flash

	// Default agent sampling settings.
	DefaultArchitectureTemp      = 0.7
	DefaultImplementationTemp    = 0.5
	DefaultSecurityTemp          = 0.3
	DefaultTestingTemp           = 0.4
	DefaultArchitectureTokens    = 4000
	DefaultImplementationTokens  = 6000
	DefaultSecurityTokens        = 4000
	DefaultTestingTokens         = 5000
	DefaultVisionTokens          = 2000
	DefaultVisionTemp            = 0.2

	// Operating mode constants (connectivity mode).
	// Controls whether the swarm uses cloud APIs or local-only inference.
	OperatingModeStandard = "standard" // Default: cloud provider APIs
	OperatingModeOffline  = "offline"  // Local Ollama models only

	// Project config constants.
	ProjectConfigFilename = "config.json"
	ProjectConfigDir      = ".codeswarm"
	DatabaseFilename      = "codeswarm.db"
	SchemaVersion         = "1.0"

	// Provider constants for middleware rate limiting.
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGoogle    = "google"
	ProviderOllama    = "ollama"

	// API key environment variable names.
	EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"
	EnvOpenAIAPIKey    = "OPENAI_API_KEY"
	EnvGoogleAPIKey    = "GOOGLE_GENAI_API_KEY"
	EnvOllamaHost      = "OLLAMA_HOST"
	EnvTavilyAPIKey    = "TAVILY_API_KEY"
	EnvEvalAPIKey      = "EVAL_API_KEY"
)

// Config represents the main configuration for the swarm.
//
// IMPORTANT: This structure contains only user-configurable project settings.
// Model pricing, provider mappings, and other static data are hardcoded in
// KnownModels and ProviderDefaults.
//
// Schema versioning prevents breaking changes - increment SchemaVersion for
// any structural changes.
type Config struct {
	SchemaVersion string `json:"schema_version"` // MUST increment for breaking changes

	// DefaultMode controls connectivity: "standard" (cloud APIs) or "offline"
	// (local Ollama only). Can be overridden at runtime with --offline.
	DefaultMode string `json:"default_mode,omitempty"`

	Agents     *AgentsConfig     `json:"agents"`     // Which models back each generation agent
	Workflow   *WorkflowConfig   `json:"workflow"`   // Pipeline thresholds and iteration limits
	Eval       *EvalConfig       `json:"eval"`       // Scoring service connection
	Search     *SearchConfig     `json:"search"`     // Documentation search settings
	Metrics    *MetricsConfig    `json:"metrics"`    // Metrics collection configuration
	Resilience *ResilienceConfig `json:"resilience"` // Retry, rate limit, and budget settings
	Debug      *DebugConfig      `json:"debug"`      // Debug settings

	// === RUNTIME-ONLY STATE (NOT PERSISTED) ===
	SessionID     string `json:"-"` // Current session UUID (generated at startup)
	OperatingMode string `json:"-"` // Resolved operating mode for this session
}

// GetProjectSwarmDir returns the path to the .codeswarm directory.
// Must call LoadConfig first to initialize projectDir.
func GetProjectSwarmDir() (string, error) {
	mu.RLock()
	defer mu.RUnlock()
	if projectDir == "" {
		return "", fmt.Errorf("config not initialized - call LoadConfig first")
	}
	return filepath.Join(projectDir, ProjectConfigDir), nil
}

// GetProjectDir returns the current project directory.
func GetProjectDir() string {
	mu.RLock()
	defer mu.RUnlock()
	return projectDir
}

// GetConfig returns the current global config BY VALUE (copy, not reference).
// Must call LoadConfig first to initialize the global config.
func GetConfig() (Config, error) {
	mu.RLock()
	defer mu.RUnlock()
	if config == nil {
		return Config{}, fmt.Errorf("config not initialized - call LoadConfig first")
	}
	return *config, nil
}

// SetConfigForTesting sets the global config for testing purposes.
// Pass nil to reset. This bypasses normal initialization and should only be
// used in tests.
func SetConfigForTesting(cfg *Config) {
	mu.Lock()
	defer mu.Unlock()
	config = cfg
	if cfg == nil {
		projectDir = ""
	}
}

// SetProjectDirForTesting sets the project directory for testing purposes.
func SetProjectDirForTesting(dir string) {
	mu.Lock()
	defer mu.Unlock()
	projectDir = dir
}

// LoadConfig loads the entire configuration from
// <projectDir>/.codeswarm/config.json into the global singleton.
//
// Behavior:
// - Missing file: Creates new config with defaults and saves it
// - Existing file: Loads and validates, applying defaults for missing fields
// - Unparseable file: Returns error to avoid overwriting user changes
//
// This should typically be called once at application startup.
func LoadConfig(inputProjectDir string) error {
	mu.Lock()
	defer mu.Unlock()

	projectDir = inputProjectDir
	configPath := filepath.Join(projectDir, ProjectConfigDir, ProjectConfigFilename)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		getLogger().Info("Config file not found, creating new config at %s", configPath)
		config = createDefaultConfig()

		if err := validateConfig(config); err != nil {
			return fmt.Errorf("default config validation failed: %w", err)
		}
		if err := saveConfigLocked(); err != nil {
			return fmt.Errorf("failed to save initial config: %w", err)
		}
		return nil
	}

	getLogger().Info("Loading config from %s", configPath)
	loadedConfig, err := loadConfigFromFile(configPath)
	if err != nil {
		return fmt.Errorf("fatal: config file exists but cannot be parsed (to avoid overwriting your changes): %w", err)
	}

	applyDefaults(loadedConfig)
	if err := validateConfig(loadedConfig); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	config = loadedConfig

	// Save config back to disk with applied defaults so old configs get updated.
	if err := saveConfigLocked(); err != nil {
		return fmt.Errorf("failed to save config with applied defaults: %w", err)
	}

	getLogger().Info("Config loaded and validated successfully")
	return nil
}

// UpdateAgents updates the agent configuration and persists to disk.
func UpdateAgents(agents *AgentsConfig) error {
	mu.Lock()
	defer mu.Unlock()

	oldAgents := config.Agents
	config.Agents = agents

	for _, binding := range []struct {
		role  string
		model string
	}{
		{"architecture", agents.Architecture.Model},
		{"implementation", agents.Implementation.Model},
		{"security", agents.Security.Model},
		{"testing", agents.Testing.Model},
	} {
		if _, err := GetModelProvider(binding.model); err != nil {
			config.Agents = oldAgents
			return fmt.Errorf("invalid %s model: %w", binding.role, err)
		}
	}

	return saveConfigLocked()
}

// UpdateWorkflow updates the workflow configuration and persists to disk.
func UpdateWorkflow(workflow *WorkflowConfig) error {
	mu.Lock()
	defer mu.Unlock()

	if workflow.QualityThreshold < 0 || workflow.QualityThreshold > 100 {
		return fmt.Errorf("quality threshold must be between 0 and 100, got %.1f", workflow.QualityThreshold)
	}
	if workflow.MaxIterations < 1 {
		return fmt.Errorf("max iterations must be at least 1, got %d", workflow.MaxIterations)
	}

	config.Workflow = workflow
	return saveConfigLocked()
}

// SetSessionID records the runtime session identifier (not persisted).
func SetSessionID(sessionID string) {
	mu.Lock()
	defer mu.Unlock()
	if config != nil {
		config.SessionID = sessionID
	}
}

// SetOperatingMode resolves the operating mode for this session (not persisted).
func SetOperatingMode(mode string) error {
	if mode != OperatingModeStandard && mode != OperatingModeOffline {
		return fmt.Errorf("invalid operating mode %q (want %q or %q)", mode, OperatingModeStandard, OperatingModeOffline)
	}
	mu.Lock()
	defer mu.Unlock()
	if config != nil {
		config.OperatingMode = mode
	}
	return nil
}

// IsOfflineMode reports whether the session runs on local models only.
func IsOfflineMode() bool {
	mu.RLock()
	defer mu.RUnlock()
	if config == nil {
		return false
	}
	if config.OperatingMode != "" {
		return config.OperatingMode == OperatingModeOffline
	}
	return config.DefaultMode == OperatingModeOffline
}

// GetAPIKeyEnvForProvider returns the environment variable name holding the
// provider's API key.
func GetAPIKeyEnvForProvider(provider string) (string, error) {
	switch provider {
	case ProviderAnthropic:
		return EnvAnthropicAPIKey, nil
	case ProviderOpenAI:
		return EnvOpenAIAPIKey, nil
	case ProviderGoogle:
		return EnvGoogleAPIKey, nil
	case ProviderOllama:
		return EnvOllamaHost, nil
	default:
		return "", fmt.Errorf("no API key mapping for provider %q", provider)
	}
}

// GetAPIKeyForProvider resolves the provider's API key through the secrets
// file then environment precedence.
func GetAPIKeyForProvider(provider string) (string, error) {
	envName, err := GetAPIKeyEnvForProvider(provider)
	if err != nil {
		return "", err
	}
	key, err := GetSecret(envName)
	if err != nil {
		return "", fmt.Errorf("API key for provider %q not configured: %w", provider, err)
	}
	return key, nil
}

// saveConfigLocked persists the current config. Caller must hold mu.
func saveConfigLocked() error {
	if config == nil {
		return fmt.Errorf("no config to save")
	}
	if projectDir == "" {
		return fmt.Errorf("project directory not set")
	}

	configDir := filepath.Join(projectDir, ProjectConfigDir)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write to temp file then rename for atomicity.
	configPath := filepath.Join(configDir, ProjectConfigFilename)
	tmpPath := configPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.Rename(tmpPath, configPath); err != nil {
		return fmt.Errorf("failed to finalize config write: %w", err)
	}
	return nil
}

func loadConfigFromFile(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &cfg, nil
}

// createDefaultConfig builds a fresh config with all defaults applied.
func createDefaultConfig() *Config {
	cfg := &Config{
		SchemaVersion: SchemaVersion,
		DefaultMode:   OperatingModeStandard,
	}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults fills in any missing sections or zero values.
func applyDefaults(cfg *Config) {
	if cfg.SchemaVersion == "" {
		cfg.SchemaVersion = SchemaVersion
	}

	if cfg.Agents == nil {
		cfg.Agents = &AgentsConfig{}
	}
	applyAgentDefaults(&cfg.Agents.Architecture, DefaultArchitectureModel, DefaultArchitectureTemp, DefaultArchitectureTokens)
	applyAgentDefaults(&cfg.Agents.Implementation, DefaultImplementationModel, DefaultImplementationTemp, DefaultImplementationTokens)
	applyAgentDefaults(&cfg.Agents.Security, DefaultSecurityModel, DefaultSecurityTemp, DefaultSecurityTokens)
	applyAgentDefaults(&cfg.Agents.Testing, DefaultTestingModel, DefaultTestingTemp, DefaultTestingTokens)
	applyAgentDefaults(&cfg.Agents.Vision, DefaultVisionModel, DefaultVisionTemp, DefaultVisionTokens)

	if cfg.Workflow == nil {
		cfg.Workflow = &WorkflowConfig{}
	}
	if cfg.Workflow.QualityThreshold == 0 {
		cfg.Workflow.QualityThreshold = DefaultQualityThreshold
	}
	if cfg.Workflow.MaxIterations == 0 {
		cfg.Workflow.MaxIterations = DefaultMaxIterations
		cfg.Workflow.ScrapeDocs = true
	}
	if cfg.Workflow.RetrievalLimit == 0 {
		cfg.Workflow.RetrievalLimit = DefaultRetrievalLimit
	}

	if cfg.Eval == nil {
		cfg.Eval = &EvalConfig{}
	}
	if cfg.Eval.TimeoutMs == 0 {
		cfg.Eval.TimeoutMs = 15000
	}

	if cfg.Search == nil {
		cfg.Search = &SearchConfig{}
	}
	if cfg.Search.MaxResults == 0 {
		cfg.Search.MaxResults = 5
	}

	if cfg.Metrics == nil {
		cfg.Metrics = &MetricsConfig{
			Enabled:   true,
			Exporter:  "prometheus",
			Namespace: "codeswarm",
		}
	}
	if cfg.Metrics.ListenAddr == "" {
		cfg.Metrics.ListenAddr = ":9120"
	}

	if cfg.Resilience == nil {
		cfg.Resilience = &ResilienceConfig{}
	}
	if cfg.Resilience.Retry.MaxAttempts == 0 {
		cfg.Resilience.Retry = RetryConfig{
			MaxAttempts:   4,
			InitialDelay:  time.Second,
			MaxDelay:      30 * time.Second,
			BackoffFactor: 2.0,
			Jitter:        true,
		}
	}
	if cfg.Resilience.Timeout == 0 {
		cfg.Resilience.Timeout = DefaultRequestTimeout
	}
	applyProviderLimitDefaults(&cfg.Resilience.RateLimit)

	if cfg.Debug == nil {
		cfg.Debug = &DebugConfig{}
	}
}

func applyAgentDefaults(agent *AgentModelConfig, model string, temp float32, maxTokens int) {
	if agent.Model == "" {
		agent.Model = model
		agent.Temperature = temp
	}
	if agent.MaxTokens == 0 {
		agent.MaxTokens = maxTokens
	}
}

func applyProviderLimitDefaults(rl *RateLimitConfig) {
	if rl.Anthropic.TokensPerMinute == 0 {
		rl.Anthropic = ProviderDefaults[ProviderAnthropic]
	}
	if rl.OpenAI.TokensPerMinute == 0 {
		rl.OpenAI = ProviderDefaults[ProviderOpenAI]
	}
	if rl.Google.TokensPerMinute == 0 {
		rl.Google = ProviderDefaults[ProviderGoogle]
	}
	if rl.Ollama.TokensPerMinute == 0 {
		rl.Ollama = ProviderDefaults[ProviderOllama]
	}
}

// validateConfig checks invariants that would make a run misbehave.
func validateConfig(cfg *Config) error {
	if cfg.Agents == nil || cfg.Workflow == nil {
		return fmt.Errorf("config missing required sections")
	}

	for _, binding := range []struct {
		role  string
		agent AgentModelConfig
	}{
		{"architecture", cfg.Agents.Architecture},
		{"implementation", cfg.Agents.Implementation},
		{"security", cfg.Agents.Security},
		{"testing", cfg.Agents.Testing},
	} {
		if _, err := GetModelProvider(binding.agent.Model); err != nil {
			return fmt.Errorf("%s agent: %w", binding.role, err)
		}
		if binding.agent.Temperature < 0 || binding.agent.Temperature > 2.0 {
			return fmt.Errorf("%s agent: temperature %.2f out of range [0, 2]", binding.role, binding.agent.Temperature)
		}
		if binding.agent.MaxTokens <= 0 {
			return fmt.Errorf("%s agent: max tokens must be positive", binding.role)
		}
	}

	if cfg.Workflow.QualityThreshold < 0 || cfg.Workflow.QualityThreshold > 100 {
		return fmt.Errorf("quality threshold %.1f out of range [0, 100]", cfg.Workflow.QualityThreshold)
	}
	if cfg.Workflow.MaxIterations < 1 {
		return fmt.Errorf("max iterations must be at least 1")
	}

	return nil
}

// GetProviderLimits returns the configured rate limits for a provider,
// falling back to package defaults.
func GetProviderLimits(provider string) ProviderLimits {
	cfg, err := GetConfig()
	if err != nil || cfg.Resilience == nil {
		return ProviderDefaults[provider]
	}
	switch provider {
	case ProviderAnthropic:
		return cfg.Resilience.RateLimit.Anthropic
	case ProviderOpenAI:
		return cfg.Resilience.RateLimit.OpenAI
	case ProviderGoogle:
		return cfg.Resilience.RateLimit.Google
	case ProviderOllama:
		return cfg.Resilience.RateLimit.Ollama
	default:
		return ProviderLimits{}
	}
}
