package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// RerankClient scores (query, document) pairs for relevance.
type RerankClient interface {
	Rerank(ctx context.Context, query string, documents []string) ([]RerankResult, error)
}

// RerankResult holds the relevance score for a single document.
type RerankResult struct {
	Index          int
	RelevanceScore float64
}

// RerankConfig configures a reranking provider.
type RerankConfig struct {
	Provider string // "cohere", "jina", or "generic"
	Model    string
	APIKey   string
	APIURL   string
}

type rerankProvider struct {
	client   *http.Client
	provider string
	model    string
	apiKey   string
	apiURL   string
}

// NewRerankClient creates a reranking client for the given provider.
func NewRerankClient(cfg RerankConfig) (RerankClient, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		return nil, errors.New("reranker provider is required")
	}

	apiURL := strings.TrimRight(cfg.APIURL, "/")
	switch provider {
	case "cohere":
		if apiURL == "" {
			apiURL = "https://api.cohere.com/v2"
		}
	case "jina":
		if apiURL == "" {
			apiURL = "https://api.jina.ai/v1"
		}
	case "generic":
		if apiURL == "" {
			return nil, errors.New("RERANKER_API_URL is required for generic provider")
		}
	default:
		return nil, fmt.Errorf("unknown reranker provider %q", provider)
	}

	return &rerankProvider{
		client:   &http.Client{Timeout: 30 * time.Second},
		provider: provider,
		model:    cfg.Model,
		apiKey:   cfg.APIKey,
		apiURL:   apiURL,
	}, nil
}

// Cohere v2, Jina and the generic /rerank pattern share one wire shape.
type rerankRequest struct {
	Model     string   `json:"model,omitempty"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

func (p *rerankProvider) Rerank(ctx context.Context, query string, documents []string) ([]RerankResult, error) {
	if len(documents) == 0 {
		return nil, nil
	}

	payload, err := json.Marshal(rerankRequest{Model: p.model, Query: query, Documents: documents})
	if err != nil {
		return nil, Permanentf("%s rerank: marshal: %w", p.provider, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL+"/rerank", bytes.NewReader(payload))
	if err != nil {
		return nil, Permanentf("%s rerank: %w", p.provider, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s rerank: %w", p.provider, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(p.provider+" rerank", resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s rerank: read: %w", p.provider, err)
	}
	var decoded rerankResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("%s rerank: decode: %w", p.provider, err)
	}

	results := make([]RerankResult, len(decoded.Results))
	for i, r := range decoded.Results {
		if r.Index < 0 || r.Index >= len(documents) {
			return nil, Permanentf("%s rerank: index %d out of range", p.provider, r.Index)
		}
		results[i] = RerankResult{Index: r.Index, RelevanceScore: r.RelevanceScore}
	}
	return results, nil
}
