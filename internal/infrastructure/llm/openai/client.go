// Package openai implements the rewrite and embedding capabilities on top
// of any OpenAI-compatible API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kirillkom/search-orchestrator/internal/core/domain"
	"github.com/kirillkom/search-orchestrator/internal/core/heuristic"
	"github.com/kirillkom/search-orchestrator/internal/infrastructure/llm"
	"github.com/kirillkom/search-orchestrator/internal/infrastructure/resilience"
)

type Config struct {
	APIKey     string
	BaseURL    string
	ChatModel  string
	EmbedModel string
	Dimensions int
}

func newClient(cfg Config) *openai.Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if strings.TrimSpace(cfg.BaseURL) != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return openai.NewClientWithConfig(clientCfg)
}

// Rewriter asks a chat model for JSON rewrite hints and merges them over the
// heuristic analysis.
type Rewriter struct {
	client   *openai.Client
	model    string
	analyzer *heuristic.Analyzer
}

func NewRewriter(cfg Config, analyzer *heuristic.Analyzer) *Rewriter {
	if analyzer == nil {
		analyzer = heuristic.NewAnalyzer(nil)
	}
	return &Rewriter{client: newClient(cfg), model: cfg.ChatModel, analyzer: analyzer}
}

func (r *Rewriter) Rewrite(ctx context.Context, query string, filters map[string][]string) (domain.RewriteOutput, error) {
	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: r.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: llm.RewriteSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: llm.BuildRewritePrompt(query, filters)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return domain.RewriteOutput{}, mapAPIError("openai rewrite", err)
	}
	if len(resp.Choices) == 0 {
		return domain.RewriteOutput{}, domain.WrapError(domain.ErrPermanent, "openai rewrite", errors.New("no choices in response"))
	}

	ai, err := llm.ParseRewrite(resp.Choices[0].Message.Content)
	if err != nil {
		return domain.RewriteOutput{}, domain.WrapError(domain.ErrPermanent, "openai rewrite", err)
	}
	return heuristic.Merge(r.analyzer.Analyze(query), ai), nil
}

type Embedder struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
}

func NewEmbedder(cfg Config) *Embedder {
	return &Embedder{
		client:     newClient(cfg),
		model:      openai.EmbeddingModel(cfg.EmbedModel),
		dimensions: cfg.Dimensions,
	}
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "openai embed", errors.New("empty text"))
	}

	req := openai.EmbeddingRequest{
		Input:          []string{text},
		Model:          e.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}
	if e.dimensions > 0 {
		req.Dimensions = e.dimensions
	}

	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, mapAPIError("openai embed", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, domain.WrapError(domain.ErrPermanent, "openai embed", errors.New("empty embedding response"))
	}
	return resp.Data[0].Embedding, nil
}

// mapAPIError turns go-openai errors into the kinds the retry classifier
// understands. Quota exhaustion and 5xx keep their provider kind; every
// other status becomes an HTTPStatusError.
func mapAPIError(op string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests && isQuotaError(apiErr) {
			return domain.WrapError(domain.ErrProviderQuota, op, err)
		}
		if apiErr.HTTPStatusCode >= 500 {
			return domain.WrapError(domain.ErrProviderInternal, op, err)
		}
		return &resilience.HTTPStatusError{
			Operation:  op,
			StatusCode: apiErr.HTTPStatusCode,
			Status:     http.StatusText(apiErr.HTTPStatusCode),
			Body:       apiErr.Message,
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode >= 500 {
			return domain.WrapError(domain.ErrProviderInternal, op, err)
		}
		return &resilience.HTTPStatusError{
			Operation:  op,
			StatusCode: reqErr.HTTPStatusCode,
			Status:     reqErr.HTTPStatus,
			Body:       string(reqErr.Body),
		}
	}

	return fmt.Errorf("%s request: %w", op, err)
}

func isQuotaError(apiErr *openai.APIError) bool {
	code := fmt.Sprint(apiErr.Code)
	return code == "insufficient_quota" || apiErr.Type == "insufficient_quota"
}
