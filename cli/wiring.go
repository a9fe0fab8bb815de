// Scheduler assembly from settings.
//
// Information Hiding:
// - Provider construction and API key lookup hidden
// - Optional adapters enabled only when configured

package cli

import (
	"fmt"
	"net/http"

	"github.com/zhfg/refly-sub011/config"
	"github.com/zhfg/refly-sub011/internal/logging"
	"github.com/zhfg/refly-sub011/llm"
	"github.com/zhfg/refly-sub011/scheduler"
	"github.com/zhfg/refly-sub011/tools"
)

// BuildScheduler wires providers and tool adapters from settings. fetcher
// may be nil.
func BuildScheduler(settings config.Settings, fetcher scheduler.Fetcher, logger logging.Logger) (*scheduler.Scheduler, error) {
	chat, err := createProvider(settings.LLM)
	if err != nil {
		return nil, fmt.Errorf("main model: %w", err)
	}
	light, err := createProvider(settings.Light)
	if err != nil {
		return nil, fmt.Errorf("light model: %w", err)
	}

	exec := tools.NewExecutor(tools.Config{
		MaxRetries: settings.Tools.MaxRetries,
		BaseDelay:  settings.Tools.BaseDelay,
		MaxDelay:   settings.Tools.MaxDelay,
		Timeout:    settings.Tools.Timeout,
	})

	builder := scheduler.NewBuilder(llm.WithTier(chat, llm.Tier(settings.LLM.Tier))).
		Light(llm.WithTier(light, llm.Tier(settings.Light.Tier))).
		Reader(tools.NewURLReader(&http.Client{Timeout: settings.Tools.Timeout}, exec)).
		Logger(logger).
		Options(scheduler.Options{
			ContextBudget:       settings.Scheduler.ContextBudget,
			MaxSources:          settings.Scheduler.MaxSources,
			MaxRelatedQuestions: settings.Scheduler.MaxRelatedQuestions,
		})
	if fetcher != nil {
		builder = builder.Fetcher(fetcher)
	}

	if settings.Search.APIKey != "" {
		tavily, err := tools.NewTavilyProvider(settings.Search.APIKey, settings.Search.APIURL)
		if err != nil {
			return nil, err
		}
		builder = builder.Search(tools.NewWebSearch(tavily, exec, tools.SearchConfig{
			Limit: settings.Search.Limit,
			Depth: settings.Search.Depth,
		}))
	} else {
		logger.Info("TAVILY_API_KEY not set, web search disabled")
	}

	if settings.Rerank.Provider != "" {
		client, err := tools.NewRerankClient(tools.RerankConfig{
			Provider: settings.Rerank.Provider,
			Model:    settings.Rerank.Model,
			APIKey:   settings.Rerank.APIKey,
			APIURL:   settings.Rerank.APIURL,
		})
		if err != nil {
			return nil, fmt.Errorf("reranker: %w", err)
		}
		builder = builder.Reranker(tools.NewReranker(client, exec))
	}

	if settings.Embeddings.Provider != "" {
		embedder, err := createEmbedder(settings.Embeddings)
		if err != nil {
			return nil, fmt.Errorf("embeddings: %w", err)
		}
		builder = builder.Embeddings(tools.NewEmbeddings(embedder, exec))
	}

	return builder.Build()
}

func createProvider(cfg config.LLMConfig) (llm.Provider, error) {
	providerType, err := llm.ParseProviderType(cfg.Provider)
	if err != nil {
		return nil, err
	}

	apiKey, err := config.APIKeyFor(cfg.Provider)
	if err != nil {
		return nil, err
	}

	return providerType.
		Model(cfg.Model).
		BaseURL(cfg.BaseURL).
		MaxTokens(cfg.MaxTokens).
		Temperature(float32(cfg.Temperature)).
		APIKey(apiKey)
}

func createEmbedder(cfg config.EmbeddingsConfig) (llm.Embedder, error) {
	providerType, err := llm.ParseProviderType(cfg.Provider)
	if err != nil {
		return nil, err
	}
	apiKey, err := config.APIKeyFor(cfg.Provider)
	if err != nil {
		return nil, err
	}
	return llm.NewEmbedder(providerType, apiKey, "", cfg.Model)
}
