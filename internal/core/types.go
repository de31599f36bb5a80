package core

import (
	"context"
	"time"
)

// ResultType классифицирует результат команды для фронтендов.
type ResultType string

const (
	TypeAnalysis ResultType = "analysis"
	TypeHelp     ResultType = "help"
	TypeStatus   ResultType = "status"
	TypeClear    ResultType = "clear"
	TypeUnknown  ResultType = "unknown_command"
	TypeError    ResultType = "error"
)

// Result описывает унифицированный результат выполнения команды.
type Result struct {
	Success  bool           `json:"success"`
	Message  string         `json:"message"`
	Type     ResultType     `json:"type"`
	Metadata map[string]any `json:"metadata,omitempty"`

	err error
}

// MetaContent - ключ Metadata с Markdown-версией аналитики, когда Message
// занят Telegram-рендерингом.
const MetaContent = "content"

// Content возвращает Markdown-версию сообщения для терминала, если она есть.
func (r Result) Content() string {
	if c, ok := r.Metadata[MetaContent].(string); ok && c != "" {
		return c
	}
	return r.Message
}

// Err возвращает причину неуспеха, если она известна (ErrUnknownCommand, ErrTemplateNotFound и т.п.).
func (r Result) Err() error { return r.err }

// Item - единица собранных данных.
type Item struct {
	Source    string         `json:"source"`
	ID        string         `json:"id,omitempty"`
	Author    string         `json:"author,omitempty"`
	Text      string         `json:"text"`
	URL       string         `json:"url,omitempty"`
	CreatedAt time.Time      `json:"created_at,omitempty"`
	Metrics   map[string]int `json:"metrics,omitempty"`
}

// Dataset - данные, собранные по одному запросу.
type Dataset struct {
	Query       string            `json:"query"`
	Items       []Item            `json:"items"`
	Sources     []string          `json:"sources"`
	Failures    map[string]string `json:"failures,omitempty"`
	CollectedAt time.Time         `json:"collected_at"`
}

// CollectOptions задает параметры сбора данных.
type CollectOptions struct {
	Query string
}

// DataCollector собирает данные для шаблонов.
type DataCollector interface {
	CollectAll(ctx context.Context, opts CollectOptions) (Dataset, error)
}

// Rendered - результат генерации шаблона.
// Telegram заполняется, если шаблон умеет рендерить под канал.
type Rendered struct {
	Content  string
	Telegram string
	Metadata map[string]any
}

// Template превращает собранные данные в сообщение.
type Template interface {
	Generate(ctx context.Context, data Dataset) (Rendered, error)
}

// TemplateRegistry ищет шаблоны по имени.
type TemplateRegistry interface {
	Lookup(name string) (Template, bool)
}

// Diagnostics отдает снимок состояния системы для команды status.
type Diagnostics interface {
	Snapshot(ctx context.Context) (map[string]any, error)
}
