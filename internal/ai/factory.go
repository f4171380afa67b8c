package ai

import (
	"go.uber.org/zap"

	"github.com/Ananth-NQI/chatdesk-backend/internal/config"
	"github.com/Ananth-NQI/chatdesk-backend/internal/logger"
)

// NewChainFromConfig builds the provider chain in the order listed by
// AI_PROVIDERS. Providers without an API key are skipped.
func NewChainFromConfig(cfg *config.Config) *Chain {
	var providers []Provider
	for _, name := range cfg.AIProviders {
		p := providerFromConfig(cfg, name)
		if p == nil {
			logger.Warn("AI provider skipped", zap.String("provider", name))
			continue
		}
		providers = append(providers, p)
	}
	logger.Info("AI provider chain ready", zap.Int("providers", len(providers)))
	return NewChain(cfg.AITimeout, providers...)
}

func providerFromConfig(cfg *config.Config, name string) Provider {
	switch name {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil
		}
		return NewOpenAI(OpenAIConfig{Name: "openai", APIKey: cfg.OpenAIAPIKey, BaseURL: cfg.OpenAIBaseURL, Model: cfg.OpenAIModel, Timeout: cfg.AITimeout})
	case "deepseek":
		if cfg.DeepSeekKey == "" {
			return nil
		}
		return NewOpenAI(OpenAIConfig{Name: "deepseek", APIKey: cfg.DeepSeekKey, BaseURL: DeepSeekBaseURL, Model: cfg.DeepSeekModel, Timeout: cfg.AITimeout})
	case "groq":
		if cfg.GroqAPIKey == "" {
			return nil
		}
		return NewOpenAI(OpenAIConfig{Name: "groq", APIKey: cfg.GroqAPIKey, BaseURL: GroqBaseURL, Model: cfg.GroqModel, Timeout: cfg.AITimeout})
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			return nil
		}
		return NewGemini(GeminiConfig{APIKey: cfg.GeminiAPIKey, Model: cfg.GeminiModel, Timeout: cfg.AITimeout})
	default:
		return nil
	}
}
