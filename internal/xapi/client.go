// Package xapi - минимальный клиент X API v2 (recent search) с bearer-аутентификацией.
package xapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultBaseURL - адрес публичного API.
	DefaultBaseURL = "https://api.twitter.com"

	searchPath = "/2/tweets/search/recent"

	minResults = 10
	maxResults = 100
)

// ErrNoToken возвращается, если bearer-токен не задан.
var ErrNoToken = errors.New("bearer token is empty")

// Tweet - пост из ответа поиска.
type Tweet struct {
	ID            string    `json:"id"`
	Text          string    `json:"text"`
	AuthorID      string    `json:"author_id"`
	CreatedAt     time.Time `json:"created_at"`
	PublicMetrics struct {
		RetweetCount int `json:"retweet_count"`
		ReplyCount   int `json:"reply_count"`
		LikeCount    int `json:"like_count"`
		QuoteCount   int `json:"quote_count"`
	} `json:"public_metrics"`
}

// SearchResult - ответ /2/tweets/search/recent.
type SearchResult struct {
	Data []Tweet `json:"data"`
	Meta struct {
		ResultCount int    `json:"result_count"`
		NewestID    string `json:"newest_id"`
		OldestID    string `json:"oldest_id"`
	} `json:"meta"`
}

// APIError - тело ошибки X API.
type APIError struct {
	Status int
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

func (e *APIError) Error() string {
	msg := e.Detail
	if msg == "" {
		msg = e.Title
	}
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("x api: %d %s", e.Status, msg)
}

// Client выполняет запросы к X API.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// New создает клиент с таймаутом по умолчанию.
func New(baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// SearchRecent ищет посты за последние 7 дней.
// max приводится к допустимому диапазону API [10, 100].
func (c *Client) SearchRecent(ctx context.Context, query string, max int) (SearchResult, error) {
	if c.Token == "" {
		return SearchResult{}, ErrNoToken
	}
	if max < minResults {
		max = minResults
	}
	if max > maxResults {
		max = maxResults
	}

	q := url.Values{}
	q.Set("query", query)
	q.Set("max_results", strconv.Itoa(max))
	q.Set("tweet.fields", "author_id,created_at,public_metrics")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+searchPath+"?"+q.Encode(), nil)
	if err != nil {
		return SearchResult{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return SearchResult{}, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return SearchResult{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.Unmarshal(body, apiErr)
		return SearchResult{}, apiErr
	}

	var out SearchResult
	if err := json.Unmarshal(body, &out); err != nil {
		return SearchResult{}, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}
