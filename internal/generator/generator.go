// Package generator defines the external content-generation capability the
// worker invokes per job: LLM article drafts, image generation, translation,
// and SEO rewrites. The service never retries a generator call itself; the
// job-level retry policy owns that.
package generator

import (
	"context"
	"encoding/json"

	"github.com/medvoyage/content-service/internal/queue"
)

// Usage is the metadata a provider reports alongside a result.
type Usage struct {
	Model            string `json:"model,omitempty"`
	PromptTokens     int    `json:"prompt_tokens,omitempty"`
	CompletionTokens int    `json:"completion_tokens,omitempty"`
	ElapsedMs        int64  `json:"elapsed_ms,omitempty"`
}

// Result is one successful generator response: the produced document plus
// usage metadata.
type Result struct {
	Data  json.RawMessage `json:"data"`
	Usage Usage           `json:"usage"`
}

// Generator is the external capability, one method per job type. A single
// call blocks for the full provider round trip, which for LLM completions
// can take tens of seconds; callers must not hold exclusive state across it.
type Generator interface {
	GenerateContent(ctx context.Context, p queue.ContentPayload) (*Result, error)
	GenerateImage(ctx context.Context, p queue.ImagePayload) (*Result, error)
	Translate(ctx context.Context, p queue.TranslationPayload) (*Result, error)
	OptimizeSEO(ctx context.Context, p queue.SEOPayload) (*Result, error)
}

// ArticleDocument is the shape GenerateContent and Translate produce.
type ArticleDocument struct {
	Title           string   `json:"title"`
	Slug            string   `json:"slug,omitempty"`
	Body            string   `json:"body"`
	Excerpt         string   `json:"excerpt,omitempty"`
	MetaTitle       string   `json:"meta_title,omitempty"`
	MetaDescription string   `json:"meta_description,omitempty"`
	Tags            []string `json:"tags,omitempty"`
}

// SEODocument is the shape OptimizeSEO produces.
type SEODocument struct {
	MetaTitle       string `json:"meta_title"`
	MetaDescription string `json:"meta_description"`
}

// ImageDocument is the shape GenerateImage produces.
type ImageDocument struct {
	URL    string `json:"url"`
	Alt    string `json:"alt,omitempty"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}
