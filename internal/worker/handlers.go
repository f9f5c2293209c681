package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/medvoyage/content-service/internal/database"
	"github.com/medvoyage/content-service/internal/generator"
	"github.com/medvoyage/content-service/internal/locales"
	"github.com/medvoyage/content-service/internal/queue"
)

// JobResult is stored on the completed job record: the id of the persisted
// content plus provider usage so batch costs can be reconstructed later.
type JobResult struct {
	ContentID        string `json:"content_id,omitempty"`
	Model            string `json:"model,omitempty"`
	PromptTokens     int    `json:"prompt_tokens,omitempty"`
	CompletionTokens int    `json:"completion_tokens,omitempty"`
	ElapsedMs        int64  `json:"elapsed_ms,omitempty"`
}

func resultFrom(contentID string, u generator.Usage) *JobResult {
	return &JobResult{
		ContentID:        contentID,
		Model:            u.Model,
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		ElapsedMs:        u.ElapsedMs,
	}
}

func (w *Worker) handleContent(ctx context.Context, job *queue.Job) (*JobResult, error) {
	var p queue.ContentPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	loc, err := locales.Normalize(p.Locale)
	if err != nil {
		return nil, err
	}
	p.Locale = loc

	gen, err := w.gen.GenerateContent(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}
	var doc generator.ArticleDocument
	if err := json.Unmarshal(gen.Data, &doc); err != nil {
		return nil, fmt.Errorf("decode article document: %w", err)
	}
	if doc.Title == "" || doc.Body == "" {
		return nil, fmt.Errorf("generator returned incomplete article for %q", p.Keyword)
	}

	if w.store == nil {
		return resultFrom("", gen.Usage), nil
	}
	id, err := w.store.SaveArticle(ctx, database.ArticleInput{
		Keyword:         p.Keyword,
		Locale:          p.Locale,
		CategoryID:      p.CategoryID,
		Title:           doc.Title,
		Slug:            slugOrDefault(doc.Slug, doc.Title),
		Body:            doc.Body,
		Excerpt:         doc.Excerpt,
		MetaTitle:       doc.MetaTitle,
		MetaDescription: doc.MetaDescription,
		Tags:            doc.Tags,
		Model:           gen.Usage.Model,
		AutoPublish:     p.AutoPublish,
	})
	if err != nil {
		return nil, fmt.Errorf("persist article: %w", err)
	}
	return resultFrom(id, gen.Usage), nil
}

func (w *Worker) handleImage(ctx context.Context, job *queue.Job) (*JobResult, error) {
	var p queue.ImagePayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}

	gen, err := w.gen.GenerateImage(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("generate image: %w", err)
	}
	var doc generator.ImageDocument
	if err := json.Unmarshal(gen.Data, &doc); err != nil {
		return nil, fmt.Errorf("decode image document: %w", err)
	}
	if doc.URL == "" {
		return nil, fmt.Errorf("generator returned no image url for article %s", p.ArticleID)
	}

	if w.store == nil {
		return resultFrom("", gen.Usage), nil
	}
	id, err := w.store.SaveImage(ctx, database.ImageInput{
		ArticleID: p.ArticleID,
		URL:       doc.URL,
		Alt:       doc.Alt,
		Width:     doc.Width,
		Height:    doc.Height,
		Model:     gen.Usage.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("persist image: %w", err)
	}
	return resultFrom(id, gen.Usage), nil
}

func (w *Worker) handleTranslation(ctx context.Context, job *queue.Job) (*JobResult, error) {
	var p queue.TranslationPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	target, err := locales.Normalize(p.TargetLocale)
	if err != nil {
		return nil, err
	}
	p.TargetLocale = target

	gen, err := w.gen.Translate(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("translate: %w", err)
	}
	var doc generator.ArticleDocument
	if err := json.Unmarshal(gen.Data, &doc); err != nil {
		return nil, fmt.Errorf("decode article document: %w", err)
	}
	if doc.Title == "" || doc.Body == "" {
		return nil, fmt.Errorf("generator returned incomplete translation for %s", p.ArticleID)
	}

	if w.store == nil {
		return resultFrom("", gen.Usage), nil
	}
	id, err := w.store.SaveTranslation(ctx, database.TranslationInput{
		ArticleID:       p.ArticleID,
		Locale:          p.TargetLocale,
		Title:           doc.Title,
		Body:            doc.Body,
		Excerpt:         doc.Excerpt,
		MetaTitle:       doc.MetaTitle,
		MetaDescription: doc.MetaDescription,
		Model:           gen.Usage.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("persist translation: %w", err)
	}
	return resultFrom(id, gen.Usage), nil
}

func (w *Worker) handleSEO(ctx context.Context, job *queue.Job) (*JobResult, error) {
	var p queue.SEOPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}

	gen, err := w.gen.OptimizeSEO(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("optimize seo: %w", err)
	}
	var doc generator.SEODocument
	if err := json.Unmarshal(gen.Data, &doc); err != nil {
		return nil, fmt.Errorf("decode seo document: %w", err)
	}
	if doc.MetaTitle == "" && doc.MetaDescription == "" {
		return nil, fmt.Errorf("generator returned empty metadata for article %s", p.ArticleID)
	}

	if w.store != nil {
		if err := w.store.UpdateArticleSEO(ctx, database.SEOUpdate{
			ArticleID:       p.ArticleID,
			Locale:          p.Locale,
			MetaTitle:       doc.MetaTitle,
			MetaDescription: doc.MetaDescription,
		}); err != nil {
			return nil, fmt.Errorf("persist seo update: %w", err)
		}
	}
	return resultFrom(p.ArticleID, gen.Usage), nil
}

// slugOrDefault falls back to a slug derived from the title when the
// generator omits one.
func slugOrDefault(slug, title string) string {
	if slug != "" {
		return slug
	}
	s := strings.ToLower(title)
	var b strings.Builder
	lastDash := true
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}
