package database

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupContentDB starts a throwaway Postgres container with the content
// schema. Skipped in short mode and when Docker is unavailable.
func setupContentDB(t *testing.T) (*ContentStore, *pgxpool.Pool) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("content_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForAll(
				wait.ForListeningPort("5432/tcp").
					WithStartupTimeout(60*time.Second),
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(1).
					WithStartupTimeout(60*time.Second),
			),
		),
	)
	if err != nil {
		t.Skipf("skipping, cannot start postgres container: %v", err)
	}
	t.Cleanup(func() { container.Terminate(ctx) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, contentTestSchema)
	require.NoError(t, err)

	return NewContentStore(pool), pool
}

const contentTestSchema = `
	CREATE TABLE articles (
		id TEXT PRIMARY KEY,
		keyword TEXT NOT NULL,
		locale TEXT NOT NULL,
		category_id TEXT,
		title TEXT NOT NULL,
		slug TEXT NOT NULL,
		body TEXT NOT NULL,
		excerpt TEXT,
		meta_title TEXT,
		meta_description TEXT,
		tags TEXT[],
		model TEXT,
		status TEXT NOT NULL,
		published_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE article_translations (
		id TEXT PRIMARY KEY,
		article_id TEXT NOT NULL REFERENCES articles(id),
		locale TEXT NOT NULL,
		title TEXT NOT NULL,
		body TEXT NOT NULL,
		excerpt TEXT,
		meta_title TEXT,
		meta_description TEXT,
		model TEXT,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		UNIQUE (article_id, locale)
	);

	CREATE TABLE image_assets (
		id TEXT PRIMARY KEY,
		article_id TEXT NOT NULL REFERENCES articles(id),
		url TEXT NOT NULL,
		alt TEXT,
		width INTEGER,
		height INTEGER,
		model TEXT,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE generation_requests (
		job_id TEXT PRIMARY KEY,
		batch_id TEXT,
		request_type TEXT NOT NULL,
		keyword TEXT,
		locale TEXT,
		status TEXT NOT NULL,
		content_id TEXT,
		error TEXT,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);
`

func insertTestArticle(t *testing.T, store *ContentStore, in ArticleInput) string {
	t.Helper()
	if in.Keyword == "" {
		in.Keyword = "dental implants turkey"
	}
	if in.Locale == "" {
		in.Locale = "en"
	}
	if in.Title == "" {
		in.Title = "Dental Implants in Turkey"
	}
	if in.Slug == "" {
		in.Slug = "dental-implants-turkey"
	}
	if in.Body == "" {
		in.Body = "Full guide body."
	}
	id, err := store.SaveArticle(context.Background(), in)
	require.NoError(t, err)
	return id
}

func TestSaveArticleDraftByDefault(t *testing.T) {
	store, pool := setupContentDB(t)
	ctx := context.Background()

	id := insertTestArticle(t, store, ArticleInput{
		Excerpt:         "Short excerpt.",
		MetaTitle:       "Dental Implants in Turkey | MedVoyage",
		MetaDescription: "Costs, clinics and recovery.",
		Tags:            []string{"dental", "turkey"},
		Model:           "gpt-4o",
	})
	assert.Contains(t, id, "art_")

	var status string
	var publishedAt *time.Time
	var categoryID *string
	err := pool.QueryRow(ctx,
		`SELECT status, published_at, category_id FROM articles WHERE id = $1`, id).
		Scan(&status, &publishedAt, &categoryID)
	require.NoError(t, err)
	assert.Equal(t, "draft", status)
	assert.Nil(t, publishedAt)
	assert.Nil(t, categoryID)
}

func TestSaveArticleAutoPublish(t *testing.T) {
	store, pool := setupContentDB(t)
	ctx := context.Background()

	id := insertTestArticle(t, store, ArticleInput{
		CategoryID:  "cat_dental",
		AutoPublish: true,
	})

	var status string
	var publishedAt *time.Time
	var categoryID string
	err := pool.QueryRow(ctx,
		`SELECT status, published_at, category_id FROM articles WHERE id = $1`, id).
		Scan(&status, &publishedAt, &categoryID)
	require.NoError(t, err)
	assert.Equal(t, "published", status)
	require.NotNil(t, publishedAt)
	assert.WithinDuration(t, time.Now().UTC(), *publishedAt, time.Minute)
	assert.Equal(t, "cat_dental", categoryID)
}

func TestSaveTranslationUpsertsPerLocale(t *testing.T) {
	store, pool := setupContentDB(t)
	ctx := context.Background()

	articleID := insertTestArticle(t, store, ArticleInput{})

	_, err := store.SaveTranslation(ctx, TranslationInput{
		ArticleID: articleID,
		Locale:    "de",
		Title:     "Zahnimplantate in der Tuerkei",
		Body:      "Erste Fassung.",
		Model:     "gpt-4o",
	})
	require.NoError(t, err)

	// Regenerating the same locale replaces the row instead of adding one.
	_, err = store.SaveTranslation(ctx, TranslationInput{
		ArticleID: articleID,
		Locale:    "de",
		Title:     "Zahnimplantate in der Tuerkei",
		Body:      "Zweite Fassung.",
		Model:     "gpt-4o",
	})
	require.NoError(t, err)

	var count int
	var body string
	err = pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM article_translations WHERE article_id = $1 AND locale = 'de'`,
		articleID).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	err = pool.QueryRow(ctx,
		`SELECT body FROM article_translations WHERE article_id = $1 AND locale = 'de'`,
		articleID).Scan(&body)
	require.NoError(t, err)
	assert.Equal(t, "Zweite Fassung.", body)

	// A different locale is its own row.
	_, err = store.SaveTranslation(ctx, TranslationInput{
		ArticleID: articleID,
		Locale:    "fr",
		Title:     "Implants dentaires en Turquie",
		Body:      "Guide complet.",
	})
	require.NoError(t, err)

	err = pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM article_translations WHERE article_id = $1`, articleID).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestSaveImage(t *testing.T) {
	store, pool := setupContentDB(t)
	ctx := context.Background()

	articleID := insertTestArticle(t, store, ArticleInput{})
	id, err := store.SaveImage(ctx, ImageInput{
		ArticleID: articleID,
		URL:       "https://cdn.medvoyage.health/img/hero.webp",
		Alt:       "Clinic exterior",
		Width:     1200,
		Height:    630,
		Model:     "dall-e-3",
	})
	require.NoError(t, err)
	assert.Contains(t, id, "img_")

	var url string
	var width int
	err = pool.QueryRow(ctx,
		`SELECT url, width FROM image_assets WHERE id = $1`, id).Scan(&url, &width)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.medvoyage.health/img/hero.webp", url)
	assert.Equal(t, 1200, width)
}

func TestUpdateArticleSEOTargetsBaseOrTranslation(t *testing.T) {
	store, pool := setupContentDB(t)
	ctx := context.Background()

	articleID := insertTestArticle(t, store, ArticleInput{Locale: "en"})
	_, err := store.SaveTranslation(ctx, TranslationInput{
		ArticleID: articleID,
		Locale:    "de",
		Title:     "Titel",
		Body:      "Text",
	})
	require.NoError(t, err)

	// Base locale updates the articles row.
	err = store.UpdateArticleSEO(ctx, SEOUpdate{
		ArticleID:       articleID,
		Locale:          "en",
		MetaTitle:       "New Meta",
		MetaDescription: "New description.",
	})
	require.NoError(t, err)

	var metaTitle string
	err = pool.QueryRow(ctx,
		`SELECT meta_title FROM articles WHERE id = $1`, articleID).Scan(&metaTitle)
	require.NoError(t, err)
	assert.Equal(t, "New Meta", metaTitle)

	// Another locale falls through to the translation row.
	err = store.UpdateArticleSEO(ctx, SEOUpdate{
		ArticleID:       articleID,
		Locale:          "de",
		MetaTitle:       "Neuer Meta-Titel",
		MetaDescription: "Neue Beschreibung.",
	})
	require.NoError(t, err)

	err = pool.QueryRow(ctx,
		`SELECT meta_title FROM article_translations WHERE article_id = $1 AND locale = 'de'`,
		articleID).Scan(&metaTitle)
	require.NoError(t, err)
	assert.Equal(t, "Neuer Meta-Titel", metaTitle)

	// A locale with no row at all is an error.
	err = store.UpdateArticleSEO(ctx, SEOUpdate{
		ArticleID: articleID,
		Locale:    "fr",
		MetaTitle: "Titre",
	})
	assert.Error(t, err)
}

func TestRequestLifecycle(t *testing.T) {
	store, pool := setupContentDB(t)
	ctx := context.Background()

	req := RequestUpsert{
		JobID:   "job_test1",
		Type:    "content_generation",
		Keyword: "hair transplant istanbul",
		Locale:  "en",
		Status:  "processing",
	}
	require.NoError(t, store.UpsertRequest(ctx, req))

	// Re-running the same job updates the row in place.
	req.Status = "processing"
	require.NoError(t, store.UpsertRequest(ctx, req))

	var count int
	err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM generation_requests`).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	var batchID *string
	err = pool.QueryRow(ctx,
		`SELECT batch_id FROM generation_requests WHERE job_id = 'job_test1'`).Scan(&batchID)
	require.NoError(t, err)
	assert.Nil(t, batchID)

	require.NoError(t, store.MarkRequestCompleted(ctx, "job_test1", "art_abc"))

	var status string
	var contentID *string
	err = pool.QueryRow(ctx,
		`SELECT status, content_id FROM generation_requests WHERE job_id = 'job_test1'`).
		Scan(&status, &contentID)
	require.NoError(t, err)
	assert.Equal(t, "completed", status)
	require.NotNil(t, contentID)
	assert.Equal(t, "art_abc", *contentID)
}

func TestMarkRequestFailed(t *testing.T) {
	store, pool := setupContentDB(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertRequest(ctx, RequestUpsert{
		JobID:  "job_test2",
		Type:   "image_generation",
		Status: "processing",
	}))
	require.NoError(t, store.MarkRequestFailed(ctx, "job_test2", "provider timeout"))

	var status string
	var errMsg *string
	err := pool.QueryRow(ctx,
		`SELECT status, error FROM generation_requests WHERE job_id = 'job_test2'`).
		Scan(&status, &errMsg)
	require.NoError(t, err)
	assert.Equal(t, "failed", status)
	require.NotNil(t, errMsg)
	assert.Equal(t, "provider timeout", *errMsg)
}
