// Package probe проверяет наличие учетных данных X API и работоспособность bearer-токена.
package probe

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"intelterm/internal/xapi"
)

// Keys - переменные окружения, которые проверяет probe.
var Keys = []string{
	"TWITTER_API_KEY",
	"TWITTER_API_SECRET",
	"TWITTER_BEARER_TOKEN",
	"TWITTER_ACCESS_TOKEN",
	"TWITTER_ACCESS_TOKEN_SECRET",
	"TWITTER_CLIENT_ID",
	"TWITTER_CLIENT_SECRET",
}

const (
	// minSecretLen - значения не длиннее считаются отсутствующими.
	minSecretLen = 10

	liveQuery   = "hello"
	liveResults = 5
)

// LookupFunc совпадает по сигнатуре с os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// Searcher - часть xapi.Client, нужная для живой проверки.
type Searcher interface {
	SearchRecent(ctx context.Context, query string, max int) (xapi.SearchResult, error)
}

// Check - результат проверки одного ключа.
type Check struct {
	Key    string
	Length int
	Valid  bool
}

// Inspect проверяет все Keys.
func Inspect(lookup LookupFunc) []Check {
	checks := make([]Check, 0, len(Keys))
	for _, key := range Keys {
		value, _ := lookup(key)
		checks = append(checks, Check{
			Key:    key,
			Length: len(value),
			Valid:  len(value) > minSecretLen,
		})
	}
	return checks
}

// Run печатает отчет в w. Ошибки живой проверки только печатаются.
func Run(ctx context.Context, w io.Writer, lookup LookupFunc, searcher Searcher) {
	r := lipgloss.NewRenderer(w)
	title := r.NewStyle().Bold(true)
	ok := r.NewStyle().Foreground(lipgloss.Color("10"))
	bad := r.NewStyle().Foreground(lipgloss.Color("9"))

	fmt.Fprintln(w, title.Render("🔑 X API Keys Test"))
	fmt.Fprintln(w, "==================")

	for _, c := range Inspect(lookup) {
		if c.Valid {
			fmt.Fprintln(w, ok.Render(fmt.Sprintf("✅ %s: %d chars", c.Key, c.Length)))
		} else {
			fmt.Fprintln(w, bad.Render(fmt.Sprintf("❌ %s: Missing", c.Key)))
		}
	}

	res, err := searcher.SearchRecent(ctx, liveQuery, liveResults)
	if err != nil {
		fmt.Fprintln(w, bad.Render(fmt.Sprintf("❌ Bearer Token failed: %s", err)))
		return
	}
	fmt.Fprintln(w, ok.Render(fmt.Sprintf("✅ Bearer Token works: %d tweets", len(res.Data))))
}
