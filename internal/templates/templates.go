// Package templates содержит встроенные шаблоны аналитических команд.
package templates

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"sort"
	"strings"
	"text/template"
	"time"

	"intelterm/internal/core"
)

const maxHighlights = 5

// Registry - реестр шаблонов по имени. Read-only после сборки.
type Registry struct {
	byName map[string]core.Template
}

// NewRegistry создает реестр из набора шаблонов.
func NewRegistry(tmpls ...*Template) *Registry {
	r := &Registry{byName: make(map[string]core.Template, len(tmpls))}
	for _, t := range tmpls {
		r.byName[t.Name] = t
	}
	return r
}

// Lookup реализует core.TemplateRegistry.
func (r *Registry) Lookup(name string) (core.Template, bool) {
	t, ok := r.byName[name]
	return t, ok
}

// Names возвращает имена шаблонов по алфавиту.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Template рендерит Markdown для терминала и HTML для Telegram.
type Template struct {
	Name     string
	Title    string
	content  *template.Template
	telegram *template.Template
}

// MustNew компилирует шаблон; паникует на синтаксической ошибке.
func MustNew(name, title, content, telegram string) *Template {
	funcs := template.FuncMap{
		"esc":   html.EscapeString,
		"trunc": truncate,
	}
	return &Template{
		Name:     name,
		Title:    title,
		content:  template.Must(template.New(name + ".md").Funcs(funcs).Parse(content)),
		telegram: template.Must(template.New(name + ".tg").Funcs(funcs).Parse(telegram)),
	}
}

type view struct {
	Title      string
	Query      string
	Date       string
	Highlights []core.Item
	Total      int
	Sources    string
	Failures   map[string]string
}

// Generate реализует core.Template.
func (t *Template) Generate(ctx context.Context, data core.Dataset) (core.Rendered, error) {
	if err := ctx.Err(); err != nil {
		return core.Rendered{}, err
	}
	collected := data.CollectedAt
	if collected.IsZero() {
		collected = time.Now().UTC()
	}
	v := view{
		Title:      t.Title,
		Query:      data.Query,
		Date:       collected.Format("2006-01-02"),
		Highlights: highlights(data.Items, maxHighlights),
		Total:      len(data.Items),
		Sources:    strings.Join(data.Sources, ", "),
		Failures:   data.Failures,
	}

	var content, tg bytes.Buffer
	if err := t.content.Execute(&content, v); err != nil {
		return core.Rendered{}, fmt.Errorf("render %s: %w", t.Name, err)
	}
	if err := t.telegram.Execute(&tg, v); err != nil {
		return core.Rendered{}, fmt.Errorf("render %s telegram: %w", t.Name, err)
	}
	return core.Rendered{
		Content:  strings.TrimSpace(content.String()),
		Telegram: strings.TrimSpace(tg.String()),
		Metadata: map[string]any{
			"template":     t.Name,
			"query":        data.Query,
			"items":        len(data.Items),
			"sources":      append([]string(nil), data.Sources...),
			"collected_at": collected.Format(time.RFC3339),
		},
	}, nil
}

// highlights выбирает самые обсуждаемые элементы.
func highlights(items []core.Item, n int) []core.Item {
	sorted := append([]core.Item(nil), items...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return engagement(sorted[i]) > engagement(sorted[j])
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

func engagement(it core.Item) int {
	total := 0
	for _, v := range it.Metrics {
		total += v
	}
	return total
}

func truncate(n int, s string) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
