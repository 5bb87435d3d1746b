package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/search-orchestrator/internal/core/domain"
	"github.com/kirillkom/search-orchestrator/internal/core/heuristic"
	"github.com/kirillkom/search-orchestrator/internal/infrastructure/llm"
)

type Client struct {
	baseURL    string
	genModel   string
	embedModel string
	httpClient *http.Client
}

// New builds a client for a local Ollama server. Per-call deadlines come
// from the caller's context; the http timeout is only a backstop.
func New(baseURL, genModel, embedModel string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Rewriter asks the generation model for structured hints and layers them
// over the heuristic analysis of the same query.
type Rewriter struct {
	client   *Client
	analyzer *heuristic.Analyzer
}

func NewRewriter(client *Client, analyzer *heuristic.Analyzer) *Rewriter {
	if analyzer == nil {
		analyzer = heuristic.NewAnalyzer(nil)
	}
	return &Rewriter{client: client, analyzer: analyzer}
}

func (r *Rewriter) Rewrite(ctx context.Context, query string, filters map[string][]string) (domain.RewriteOutput, error) {
	prompt := llm.RewriteSystemPrompt + "\n\n" + llm.BuildRewritePrompt(query, filters)
	respText, err := r.client.generateJSON(ctx, prompt)
	if err != nil {
		return domain.RewriteOutput{}, err
	}

	ai, err := llm.ParseRewrite(respText)
	if err != nil {
		return domain.RewriteOutput{}, domain.WrapError(domain.ErrPermanent, "ollama rewrite", err)
	}
	return heuristic.Merge(r.analyzer.Analyze(query), ai), nil
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ollama embed", fmt.Errorf("empty text"))
	}

	response, err := post[embedResponse](ctx, e.client, "/api/embed", "embed", embedRequest{
		Model: e.client.embedModel,
		Input: []string{text},
	})
	if err != nil {
		return nil, err
	}
	if len(response.Embeddings) == 0 || len(response.Embeddings[0]) == 0 {
		return nil, domain.WrapError(domain.ErrPermanent, "ollama embed", fmt.Errorf("empty embedding result"))
	}
	return response.Embeddings[0], nil
}

func (c *Client) generateJSON(ctx context.Context, prompt string) (string, error) {
	response, err := post[generateResponse](ctx, c, "/api/generate", "generate", generateRequest{
		Model:  c.genModel,
		Prompt: prompt,
		Format: "json",
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Response), nil
}
