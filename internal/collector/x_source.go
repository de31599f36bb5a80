package collector

import (
	"context"

	"intelterm/internal/core"
	"intelterm/internal/xapi"
)

// DefaultXQuery используется, когда пользователь не передал запрос.
const DefaultXQuery = "NEAR Protocol -is:retweet"

// Searcher - часть xapi.Client, нужная источнику.
type Searcher interface {
	SearchRecent(ctx context.Context, query string, max int) (xapi.SearchResult, error)
}

// XSource берет свежие посты из X recent search.
type XSource struct {
	Client     Searcher
	MaxResults int
}

func (s *XSource) Name() string { return "x" }

func (s *XSource) Fetch(ctx context.Context, query string) ([]core.Item, error) {
	if query == "" {
		query = DefaultXQuery
	}
	res, err := s.Client.SearchRecent(ctx, query, s.MaxResults)
	if err != nil {
		return nil, err
	}
	items := make([]core.Item, 0, len(res.Data))
	for _, tw := range res.Data {
		items = append(items, core.Item{
			Source:    "x",
			ID:        tw.ID,
			Author:    tw.AuthorID,
			Text:      tw.Text,
			URL:       "https://x.com/i/web/status/" + tw.ID,
			CreatedAt: tw.CreatedAt,
			Metrics: map[string]int{
				"likes":    tw.PublicMetrics.LikeCount,
				"retweets": tw.PublicMetrics.RetweetCount,
				"replies":  tw.PublicMetrics.ReplyCount,
				"quotes":   tw.PublicMetrics.QuoteCount,
			},
		})
	}
	return items, nil
}
