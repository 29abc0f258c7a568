// Package metrics provides the optional /metrics endpoint and a query
// service for aggregating usage data from Prometheus.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// RunUsage is the aggregated token and cost usage for one pipeline run.
type RunUsage struct {
	RunID            string  `json:"run_id"`
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	TotalTokens      int64   `json:"total_tokens"`
	TotalCost        float64 `json:"total_cost_usd"`
}

// QueryService queries aggregated usage from a Prometheus server.
type QueryService struct {
	client   api.Client
	queryAPI v1.API
}

// NewQueryService creates a query service against the given Prometheus URL.
func NewQueryService(prometheusURL string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{
		Address: prometheusURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}

	return &QueryService{
		client:   client,
		queryAPI: v1.NewAPI(client),
	}, nil
}

func (q *QueryService) scalar(ctx context.Context, query string) (float64, error) {
	result, _, err := q.queryAPI.Query(ctx, query, time.Now())
	if err != nil {
		return 0, fmt.Errorf("query %q failed: %w", query, err)
	}
	if vector, ok := result.(model.Vector); ok && len(vector) > 0 {
		return float64(vector[0].Value), nil
	}
	return 0, nil
}

// GetRunUsage retrieves token and cost totals for one run, summed
// across all agents and models.
func (q *QueryService) GetRunUsage(ctx context.Context, runID string) (*RunUsage, error) {
	usage := &RunUsage{RunID: runID}

	prompt, err := q.scalar(ctx, fmt.Sprintf(`sum(llm_tokens_total{run_id=%q, type="prompt"})`, runID))
	if err != nil {
		return nil, fmt.Errorf("failed to query prompt tokens: %w", err)
	}
	usage.PromptTokens = int64(prompt)

	completion, err := q.scalar(ctx, fmt.Sprintf(`sum(llm_tokens_total{run_id=%q, type="completion"})`, runID))
	if err != nil {
		return nil, fmt.Errorf("failed to query completion tokens: %w", err)
	}
	usage.CompletionTokens = int64(completion)
	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens

	cost, err := q.scalar(ctx, fmt.Sprintf(`sum(llm_costs_total{run_id=%q})`, runID))
	if err != nil {
		return nil, fmt.Errorf("failed to query total cost: %w", err)
	}
	usage.TotalCost = cost

	return usage, nil
}

// GetRunUsageByModel breaks one run's usage down per model.
func (q *QueryService) GetRunUsageByModel(ctx context.Context, runID string) (map[string]*RunUsage, error) {
	result := make(map[string]*RunUsage)

	modelsResult, _, err := q.queryAPI.Query(ctx,
		fmt.Sprintf(`group by (model) (llm_tokens_total{run_id=%q})`, runID), time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query models: %w", err)
	}

	var models []string
	if vector, ok := modelsResult.(model.Vector); ok {
		for _, sample := range vector {
			if modelName, ok := sample.Metric["model"]; ok {
				models = append(models, string(modelName))
			}
		}
	}

	for _, modelName := range models {
		usage := &RunUsage{RunID: runID}

		prompt, err := q.scalar(ctx,
			fmt.Sprintf(`sum(llm_tokens_total{run_id=%q, model=%q, type="prompt"})`, runID, modelName))
		if err != nil {
			return nil, fmt.Errorf("failed to query prompt tokens for model %s: %w", modelName, err)
		}
		usage.PromptTokens = int64(prompt)

		completion, err := q.scalar(ctx,
			fmt.Sprintf(`sum(llm_tokens_total{run_id=%q, model=%q, type="completion"})`, runID, modelName))
		if err != nil {
			return nil, fmt.Errorf("failed to query completion tokens for model %s: %w", modelName, err)
		}
		usage.CompletionTokens = int64(completion)
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens

		cost, err := q.scalar(ctx,
			fmt.Sprintf(`sum(llm_costs_total{run_id=%q, model=%q})`, runID, modelName))
		if err != nil {
			return nil, fmt.Errorf("failed to query cost for model %s: %w", modelName, err)
		}
		usage.TotalCost = cost

		result[modelName] = usage
	}

	return result, nil
}

// GetTotalCost returns USD spend across all runs in the lookback window.
func (q *QueryService) GetTotalCost(ctx context.Context, window time.Duration) (float64, error) {
	cost, err := q.scalar(ctx, fmt.Sprintf(`sum(increase(llm_costs_total[%s]))`, model.Duration(window)))
	if err != nil {
		return 0, fmt.Errorf("failed to query total cost: %w", err)
	}
	return cost, nil
}
