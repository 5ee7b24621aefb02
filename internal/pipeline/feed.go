package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"tidemark/internal/news"
)

// FeedConfig points at the external news collaborator.
type FeedConfig struct {
	FeedURL       string
	ClassifierURL string
	AuthToken     string
	Timeout       time.Duration
}

// FeedClient implements NewsProvider over HTTP. The feed endpoint returns a
// CryptoPanic-style results array; the classifier endpoint returns a JSON
// document validated against the classifier schema.
type FeedClient struct {
	cfg     FeedConfig
	http    *http.Client
	breaker *failureBreaker
}

func NewFeedClient(cfg FeedConfig) *FeedClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &FeedClient{
		cfg:     cfg,
		http:    &http.Client{Timeout: timeout},
		breaker: newFailureBreaker("news-classifier", 5, time.Minute),
	}
}

var _ NewsProvider = (*FeedClient)(nil)

// Events fetches the deduplicated stream for one symbol since the given time.
func (c *FeedClient) Events(ctx context.Context, symbol string, since time.Time) ([]news.Event, error) {
	if c.cfg.FeedURL == "" {
		return nil, nil
	}
	q := url.Values{}
	q.Set("currencies", symbol)
	q.Set("since", since.UTC().Format(time.RFC3339))
	if c.cfg.AuthToken != "" {
		q.Set("auth_token", c.cfg.AuthToken)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.FeedURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("news feed request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("news feed status %d", resp.StatusCode)
	}
	payload, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	out := make([]news.Event, 0)
	for _, ev := range news.ParseEvents(payload, symbol) {
		if !ev.PublishedAt.Before(since) {
			out = append(out, ev)
		}
	}
	return out, nil
}

// Classify sends one event to the external classifier. Any transport or
// schema failure maps to news.ErrClassifierUnavailable so callers treat the
// event as neutral.
func (c *FeedClient) Classify(ctx context.Context, ev news.Event) (*news.ClassifierResult, error) {
	if c.cfg.ClassifierURL == "" {
		return nil, news.ErrClassifierUnavailable
	}
	if !c.breaker.allow() {
		return nil, fmt.Errorf("%w: circuit open", news.ErrClassifierUnavailable)
	}
	body, err := json.Marshal(map[string]string{
		"id":       ev.ID,
		"symbol":   ev.Symbol,
		"title":    ev.Title,
		"category": ev.Category,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.ClassifierURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		c.breaker.failure()
		return nil, fmt.Errorf("%w: %v", news.ErrClassifierUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.breaker.failure()
		return nil, fmt.Errorf("%w: status %d", news.ErrClassifierUnavailable, resp.StatusCode)
	}
	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		c.breaker.failure()
		return nil, fmt.Errorf("%w: %v", news.ErrClassifierUnavailable, err)
	}
	res, err := news.ParseClassifierPayload(payload)
	if err != nil {
		c.breaker.failure()
		return nil, err
	}
	c.breaker.success()
	return res, nil
}
