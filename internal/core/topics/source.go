package topics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
)

// Source lists the accounts curated for a topic, best first.
type Source interface {
	// Fetch returns at most limit federation ids for the topic, in rank order.
	Fetch(ctx context.Context, slug string, limit int) ([]string, error)
}

// HTTPSourceConfig configures an HTTPSource.
type HTTPSourceConfig struct {
	BaseURL    string
	UserAgent  string
	Timeout    time.Duration
	PageSize   int
	MaxRetries uint64
}

// HTTPSource pages through GET {base}/topics/{slug}/accounts.
type HTTPSource struct {
	client     *resty.Client
	pageSize   int
	maxRetries uint64
	// initialBackoff is overridden in tests
	initialBackoff time.Duration
}

type accountsPage struct {
	NextPage *int `json:"nextPage"`
	Accounts []struct {
		ApID string `json:"apId"`
	} `json:"accounts"`
}

// StatusError is returned for a non-retryable HTTP status.
type StatusError struct {
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("topic source returned status %d", e.Status)
}

// NewHTTPSource creates a paginated HTTP source.
func NewHTTPSource(cfg HTTPSourceConfig) *HTTPSource {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 50
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	c := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetHeader("Accept", "application/json").
		SetTimeout(cfg.Timeout)
	if cfg.UserAgent != "" {
		c.SetHeader("User-Agent", cfg.UserAgent)
	}
	return &HTTPSource{
		client:         c,
		pageSize:       cfg.PageSize,
		maxRetries:     cfg.MaxRetries,
		initialBackoff: 500 * time.Millisecond,
	}
}

// Fetch walks pages until limit ids are collected or the source runs out.
// Transient failures (network errors, 5xx, 429) are retried with exponential
// backoff; other statuses fail immediately.
func (s *HTTPSource) Fetch(ctx context.Context, slug string, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	ids := make([]string, 0, limit)
	page := 1
	for len(ids) < limit {
		result, err := s.fetchPage(ctx, slug, page)
		if err != nil {
			return nil, err
		}
		for _, a := range result.Accounts {
			if a.ApID == "" {
				continue
			}
			ids = append(ids, a.ApID)
			if len(ids) == limit {
				break
			}
		}
		if result.NextPage == nil || *result.NextPage <= page || len(result.Accounts) == 0 {
			break
		}
		page = *result.NextPage
	}
	return ids, nil
}

func (s *HTTPSource) fetchPage(ctx context.Context, slug string, page int) (*accountsPage, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.initialBackoff
	policy.Multiplier = 2
	policy.MaxInterval = 10 * time.Second
	withCtx := backoff.WithContext(backoff.WithMaxRetries(policy, s.maxRetries), ctx)

	var out accountsPage
	op := func() error {
		out = accountsPage{}
		resp, err := s.client.R().
			SetContext(ctx).
			SetPathParam("slug", slug).
			SetQueryParam("page", fmt.Sprint(page)).
			SetQueryParam("limit", fmt.Sprint(s.pageSize)).
			SetResult(&out).
			ForceContentType("application/json").
			Get("/topics/{slug}/accounts")
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		switch status := resp.StatusCode(); {
		case status == http.StatusOK:
			return nil
		case status == http.StatusTooManyRequests || status >= 500:
			return fmt.Errorf("topic source returned status %d", status)
		default:
			return backoff.Permanent(&StatusError{Status: status})
		}
	}
	if err := backoff.Retry(op, withCtx); err != nil {
		return nil, fmt.Errorf("failed to fetch topic %s page %d: %w", slug, page, err)
	}
	return &out, nil
}
