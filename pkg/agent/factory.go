// Package agent provides LLM client construction with middleware chain assembly.
package agent

import (
	"fmt"
	"os"
	"strings"

	"codeswarm/pkg/agent/internal/llmimpl/anthropic"
	"codeswarm/pkg/agent/internal/llmimpl/google"
	"codeswarm/pkg/agent/internal/llmimpl/ollama"
	"codeswarm/pkg/agent/internal/llmimpl/openai"
	"codeswarm/pkg/agent/llm"
	"codeswarm/pkg/agent/middleware/metrics"
	"codeswarm/pkg/agent/middleware/ratelimit"
	"codeswarm/pkg/agent/middleware/retry"
	"codeswarm/pkg/agent/middleware/timeout"
	"codeswarm/pkg/config"
	"codeswarm/pkg/limiter"
	"codeswarm/pkg/logx"
)

// DefaultOllamaHost is used when OLLAMA_HOST is not set.
const DefaultOllamaHost = "http://localhost:11434"

// ClientFactory creates LLM clients with properly configured middleware chains.
type ClientFactory struct {
	config   config.Config
	recorder metrics.Recorder
	limiter  *limiter.Limiter
}

// NewClientFactory creates a new LLM client factory with the given configuration.
// The recorder may be nil, in which case metrics are discarded.
func NewClientFactory(cfg config.Config, recorder metrics.Recorder, lim *limiter.Limiter) *ClientFactory {
	if recorder == nil {
		recorder = metrics.Nop()
	}
	return &ClientFactory{
		config:   cfg,
		recorder: recorder,
		limiter:  lim,
	}
}

// CreateClient creates an LLM client for the given model with the full
// middleware chain. The API key is resolved through the secrets file then
// environment. In offline mode every model is served by the local Ollama
// runtime instead of its cloud provider.
func (f *ClientFactory) CreateClient(modelName string, runInfo metrics.RunInfoProvider, logger *logx.Logger) (llm.LLMClient, error) {
	if config.IsOfflineMode() {
		return f.createOfflineClient(modelName, runInfo, logger)
	}

	provider, err := config.GetModelProvider(modelName)
	if err != nil {
		return nil, fmt.Errorf("failed to determine provider for model %s: %w", modelName, err)
	}

	var rawClient llm.LLMClient
	switch provider {
	case config.ProviderOllama:
		// "ollama:" is a routing prefix, not part of the model name.
		rawClient = ollama.NewOllamaClientWithModel(ollamaHost(), strings.TrimPrefix(modelName, "ollama:"))
	case config.ProviderAnthropic, config.ProviderOpenAI, config.ProviderGoogle:
		apiKey, keyErr := config.GetAPIKeyForProvider(provider)
		if keyErr != nil {
			return nil, fmt.Errorf("failed to get API key for provider %s: %w", provider, keyErr)
		}
		switch provider {
		case config.ProviderAnthropic:
			rawClient = anthropic.NewClaudeClientWithModel(apiKey, modelName)
		case config.ProviderOpenAI:
			rawClient = openai.NewClientWithModel(apiKey, modelName)
		case config.ProviderGoogle:
			rawClient = google.NewGeminiClientWithModel(apiKey, modelName)
		}
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}

	return f.wrap(rawClient, runInfo, logger), nil
}

// createOfflineClient routes a model to the local Ollama runtime. The model
// name maps through the offline overrides when one is configured.
func (f *ClientFactory) createOfflineClient(modelName string, runInfo metrics.RunInfoProvider, logger *logx.Logger) (llm.LLMClient, error) {
	offlineModel := f.offlineModelFor(modelName)
	rawClient := ollama.NewOllamaClientWithModel(ollamaHost(), offlineModel)
	return f.wrap(rawClient, runInfo, logger), nil
}

// offlineModelFor maps a configured cloud model to its offline replacement.
func (f *ClientFactory) offlineModelFor(modelName string) string {
	agents := f.config.Agents
	if agents == nil || agents.Offline == nil {
		return config.DefaultOfflineModel
	}

	off := agents.Offline
	var replacement string
	switch modelName {
	case agents.Architecture.Model:
		replacement = off.ArchitectureModel
	case agents.Implementation.Model:
		replacement = off.ImplementationModel
	case agents.Security.Model:
		replacement = off.SecurityModel
	case agents.Testing.Model:
		replacement = off.TestingModel
	}
	if replacement == "" {
		return config.DefaultOfflineModel
	}
	return replacement
}

// wrap applies the middleware chain:
// Metrics -> Retry -> RateLimit -> Timeout -> RawClient.
func (f *ClientFactory) wrap(rawClient llm.LLMClient, runInfo metrics.RunInfoProvider, logger *logx.Logger) llm.LLMClient {
	retryConfig := retry.DefaultConfig
	requestTimeout := config.DefaultRequestTimeout
	if f.config.Resilience != nil {
		retryConfig = retry.Config{
			MaxAttempts:   f.config.Resilience.Retry.MaxAttempts,
			InitialDelay:  f.config.Resilience.Retry.InitialDelay,
			MaxDelay:      f.config.Resilience.Retry.MaxDelay,
			BackoffFactor: f.config.Resilience.Retry.BackoffFactor,
			Jitter:        f.config.Resilience.Retry.Jitter,
		}
		if f.config.Resilience.Timeout > 0 {
			requestTimeout = f.config.Resilience.Timeout
		}
	}
	retryPolicy := retry.NewPolicy(retryConfig, nil) // Use default classifier

	middlewares := []llm.Middleware{
		metrics.Middleware(f.recorder, nil, runInfo, logger),
		retry.Middleware(retryPolicy),
	}
	if f.limiter != nil {
		middlewares = append(middlewares, ratelimit.Middleware(f.limiter, nil, f.recorder))
	}
	middlewares = append(middlewares, timeout.Middleware(requestTimeout))

	return llm.Chain(rawClient, middlewares...)
}

func ollamaHost() string {
	if host := os.Getenv(config.EnvOllamaHost); host != "" {
		return host
	}
	return DefaultOllamaHost
}
