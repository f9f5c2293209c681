package queue

import (
	"encoding/json"
	"fmt"
	"time"
)

// JobType identifies the kind of generation work a job carries.
type JobType string

const (
	TypeContent     JobType = "content_generation"
	TypeImage       JobType = "image_generation"
	TypeTranslation JobType = "translation"
	TypeSEO         JobType = "seo_optimization"
)

// AllTypes lists every job type in worker-dispatch order.
var AllTypes = []JobType{TypeContent, TypeImage, TypeTranslation, TypeSEO}

// Valid reports whether t is a known job type.
func (t JobType) Valid() bool {
	switch t {
	case TypeContent, TypeImage, TypeTranslation, TypeSEO:
		return true
	}
	return false
}

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusDead       Status = "dead"
)

// Priority is the coarse ordering class among pending jobs. It only orders
// the queue head; it never preempts running work.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// Tier returns the numeric ordering tier; higher sorts first.
func (p Priority) Tier() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityLow:
		return 1
	default:
		return 2
	}
}

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityNormal, PriorityLow:
		return true
	}
	return false
}

// Job is the serializable unit of asynchronous work. Timestamps are epoch
// milliseconds.
type Job struct {
	ID          string          `json:"id"`
	Type        JobType         `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Priority    Priority        `json:"priority"`
	Status      Status          `json:"status"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	BatchID     string          `json:"batch_id,omitempty"`
	CreatedAt   int64           `json:"created_at"`
	UpdatedAt   int64           `json:"updated_at"`
	ScheduledAt int64           `json:"scheduled_at,omitempty"`
	StartedAt   int64           `json:"started_at,omitempty"`
	CompletedAt int64           `json:"completed_at,omitempty"`
	FailedAt    int64           `json:"failed_at,omitempty"`
	Error       string          `json:"error,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
}

// ContentPayload asks the generator for a locale-specific article.
type ContentPayload struct {
	Keyword     string `json:"keyword"`
	Locale      string `json:"locale"`
	CategoryID  string `json:"category_id,omitempty"`
	AutoPublish bool   `json:"auto_publish,omitempty"`
}

// ImagePayload asks the generator for a hero image.
type ImagePayload struct {
	ArticleID string `json:"article_id"`
	Prompt    string `json:"prompt"`
	Style     string `json:"style,omitempty"`
}

// TranslationPayload asks the generator to translate an existing article.
type TranslationPayload struct {
	ArticleID    string `json:"article_id"`
	SourceLocale string `json:"source_locale"`
	TargetLocale string `json:"target_locale"`
}

// SEOPayload asks the generator to rework an article's metadata.
type SEOPayload struct {
	ArticleID string `json:"article_id"`
	Locale    string `json:"locale"`
}

// DecodePayload unmarshals raw into the payload type matching t. The switch
// is exhaustive over the closed set of job types.
func DecodePayload(t JobType, raw json.RawMessage) (interface{}, error) {
	switch t {
	case TypeContent:
		var p ContentPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode content payload: %w", err)
		}
		return p, nil
	case TypeImage:
		var p ImagePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode image payload: %w", err)
		}
		return p, nil
	case TypeTranslation:
		var p TranslationPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode translation payload: %w", err)
		}
		return p, nil
	case TypeSEO:
		var p SEOPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode seo payload: %w", err)
		}
		return p, nil
	}
	return nil, fmt.Errorf("unknown job type %q", t)
}

// BatchStatus aggregates member outcomes.
type BatchStatus string

const (
	BatchPending    BatchStatus = "pending"
	BatchProcessing BatchStatus = "processing"
	BatchCompleted  BatchStatus = "completed"
	BatchPartial    BatchStatus = "partial"
	BatchFailed     BatchStatus = "failed"
)

// Batch is a cohort of jobs submitted and tracked together. Counters are
// mutated incrementally by the worker as members finish.
type Batch struct {
	ID          string      `json:"id"`
	Keywords    []string    `json:"keywords"`
	Total       int         `json:"total"`
	Completed   int         `json:"completed"`
	Failed      int         `json:"failed"`
	Status      BatchStatus `json:"status"`
	RequestedBy string      `json:"requested_by,omitempty"`
	AutoPublish bool        `json:"auto_publish"`
	CreatedAt   int64       `json:"created_at"`
	UpdatedAt   int64       `json:"updated_at"`
}

// Policy carries the retry and retention constants for one queue instance.
type Policy struct {
	MaxAttempts        int
	InitialDelay       time.Duration
	BackoffMultiplier  float64
	MaxDelay           time.Duration
	ProcessingTimeout  time.Duration
	CompletedRetention time.Duration
	DeadRetention      time.Duration
	StatsRetention     time.Duration
	// JobTTL is a safety net on the shared record keys; precise retention is
	// the purge routine's job.
	JobTTL time.Duration
	// PromoteBatch bounds how many due delayed jobs one promotion moves.
	PromoteBatch int64
}

// DefaultPolicy returns the production defaults.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:        3,
		InitialDelay:       5 * time.Second,
		BackoffMultiplier:  2,
		MaxDelay:           5 * time.Minute,
		ProcessingTimeout:  30 * time.Minute,
		CompletedRetention: 24 * time.Hour,
		DeadRetention:      30 * 24 * time.Hour,
		StatsRetention:     35 * 24 * time.Hour,
		JobTTL:             7 * 24 * time.Hour,
		PromoteBatch:       200,
	}
}

// RetryDelay computes the backoff before the given attempt number is retried:
// initialDelay * multiplier^(attempts-1), capped at MaxDelay.
func (p Policy) RetryDelay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	delay := float64(p.InitialDelay)
	for i := 1; i < attempts; i++ {
		delay *= p.BackoffMultiplier
		if delay >= float64(p.MaxDelay) {
			return p.MaxDelay
		}
	}
	if delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(delay)
}
