package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medvoyage/content-service/internal/pkg/cuid2"
)

// ContentStore persists generation results: locale-specific articles and
// their translations, generated images, and the companion request rows that
// track which job produced (or failed to produce) which record.
type ContentStore struct {
	pool *pgxpool.Pool
}

// NewContentStore wraps a connection pool.
func NewContentStore(pool *pgxpool.Pool) *ContentStore {
	return &ContentStore{pool: pool}
}

// ArticleInput is one generated article ready for insert.
type ArticleInput struct {
	Keyword         string
	Locale          string
	CategoryID      string
	Title           string
	Slug            string
	Body            string
	Excerpt         string
	MetaTitle       string
	MetaDescription string
	Tags            []string
	Model           string
	AutoPublish     bool
}

// SaveArticle inserts a generated article and returns its id. Auto-published
// articles go live immediately; the rest land as drafts for editor review.
func (s *ContentStore) SaveArticle(ctx context.Context, in ArticleInput) (string, error) {
	id := cuid2.New("art")
	status := "draft"
	var publishedAt *time.Time
	if in.AutoPublish {
		status = "published"
		now := time.Now().UTC()
		publishedAt = &now
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO articles (
			id, keyword, locale, category_id, title, slug, body, excerpt,
			meta_title, meta_description, tags, model, status, published_at,
			created_at, updated_at
		) VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW(), NOW())
	`, id, in.Keyword, in.Locale, in.CategoryID, in.Title, in.Slug, in.Body, in.Excerpt,
		in.MetaTitle, in.MetaDescription, in.Tags, in.Model, status, publishedAt)
	if err != nil {
		return "", fmt.Errorf("insert article: %w", err)
	}
	return id, nil
}

// TranslationInput is one translated article variant.
type TranslationInput struct {
	ArticleID       string
	Locale          string
	Title           string
	Body            string
	Excerpt         string
	MetaTitle       string
	MetaDescription string
	Model           string
}

// SaveTranslation inserts a locale variant for an existing article. One row
// per (article, locale); regenerating a translation replaces the old one.
func (s *ContentStore) SaveTranslation(ctx context.Context, in TranslationInput) (string, error) {
	id := cuid2.New("trn")
	_, err := s.pool.Exec(ctx, `
		INSERT INTO article_translations (
			id, article_id, locale, title, body, excerpt,
			meta_title, meta_description, model, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		ON CONFLICT (article_id, locale) DO UPDATE SET
			title = EXCLUDED.title,
			body = EXCLUDED.body,
			excerpt = EXCLUDED.excerpt,
			meta_title = EXCLUDED.meta_title,
			meta_description = EXCLUDED.meta_description,
			model = EXCLUDED.model,
			updated_at = NOW()
	`, id, in.ArticleID, in.Locale, in.Title, in.Body, in.Excerpt,
		in.MetaTitle, in.MetaDescription, in.Model)
	if err != nil {
		return "", fmt.Errorf("insert translation: %w", err)
	}
	return id, nil
}

// ImageInput is one generated image asset.
type ImageInput struct {
	ArticleID string
	URL       string
	Alt       string
	Width     int
	Height    int
	Model     string
}

// SaveImage inserts a generated image asset bound to an article.
func (s *ContentStore) SaveImage(ctx context.Context, in ImageInput) (string, error) {
	id := cuid2.New("img")
	_, err := s.pool.Exec(ctx, `
		INSERT INTO image_assets (
			id, article_id, url, alt, width, height, model, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
	`, id, in.ArticleID, in.URL, in.Alt, in.Width, in.Height, in.Model)
	if err != nil {
		return "", fmt.Errorf("insert image: %w", err)
	}
	return id, nil
}

// SEOUpdate reworks an article's metadata in place.
type SEOUpdate struct {
	ArticleID       string
	Locale          string
	MetaTitle       string
	MetaDescription string
}

// UpdateArticleSEO applies regenerated metadata to the base article or, for
// non-base locales, its translation row.
func (s *ContentStore) UpdateArticleSEO(ctx context.Context, in SEOUpdate) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE articles
		SET meta_title = $2, meta_description = $3, updated_at = NOW()
		WHERE id = $1 AND locale = $4
	`, in.ArticleID, in.MetaTitle, in.MetaDescription, in.Locale)
	if err != nil {
		return fmt.Errorf("update article seo: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	tag, err = s.pool.Exec(ctx, `
		UPDATE article_translations
		SET meta_title = $2, meta_description = $3, updated_at = NOW()
		WHERE article_id = $1 AND locale = $4
	`, in.ArticleID, in.MetaTitle, in.MetaDescription, in.Locale)
	if err != nil {
		return fmt.Errorf("update translation seo: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no article %s for locale %s", in.ArticleID, in.Locale)
	}
	return nil
}

// RequestUpsert mirrors a job into its generation_requests row.
type RequestUpsert struct {
	JobID   string
	BatchID string
	Type    string
	Keyword string
	Locale  string
	Status  string
}

// UpsertRequest records that a job started (or restarted) processing.
func (s *ContentStore) UpsertRequest(ctx context.Context, in RequestUpsert) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO generation_requests (
			job_id, batch_id, request_type, keyword, locale, status, created_at, updated_at
		) VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, NOW(), NOW())
		ON CONFLICT (job_id) DO UPDATE SET
			status = EXCLUDED.status,
			updated_at = NOW()
	`, in.JobID, in.BatchID, in.Type, in.Keyword, in.Locale, in.Status)
	if err != nil {
		return fmt.Errorf("upsert request %s: %w", in.JobID, err)
	}
	return nil
}

// MarkRequestCompleted points the request row at the created content record.
func (s *ContentStore) MarkRequestCompleted(ctx context.Context, jobID, contentID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE generation_requests
		SET status = 'completed', content_id = $2, error = NULL, updated_at = NOW()
		WHERE job_id = $1
	`, jobID, contentID)
	if err != nil {
		return fmt.Errorf("complete request %s: %w", jobID, err)
	}
	return nil
}

// MarkRequestFailed records the failure reason without touching content rows.
func (s *ContentStore) MarkRequestFailed(ctx context.Context, jobID, reason string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE generation_requests
		SET status = 'failed', error = $2, updated_at = NOW()
		WHERE job_id = $1
	`, jobID, reason)
	if err != nil {
		return fmt.Errorf("fail request %s: %w", jobID, err)
	}
	return nil
}
