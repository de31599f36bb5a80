package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound возвращается, когда запись отсутствует.
var ErrNotFound = errors.New("record not found")

// CommandRecord фиксирует выполнение команды через транспорт.
type CommandRecord struct {
	Source    string    `json:"source"`
	Subject   string    `json:"subject"`
	Command   string    `json:"command"`
	Args      []string  `json:"args"`
	Success   bool      `json:"success"`
	Type      string    `json:"type"`
	RequestID string    `json:"request_id"`
	TS        time.Time `json:"ts"`
}

// DigestRecord хранит результат плановой команды.
type DigestRecord struct {
	Command  string          `json:"command"`
	Message  string          `json:"message"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
	TS       time.Time       `json:"ts"`
}

// HistoryQuery задает фильтры выборки истории.
type HistoryQuery struct {
	From    time.Time
	To      time.Time
	Subject string
	Limit   int
}

// Store описывает операции хранилища.
type Store interface {
	SaveCommand(ctx context.Context, rec CommandRecord) error
	SaveDigest(ctx context.Context, rec DigestRecord) error
	LatestDigest(ctx context.Context, command string) (DigestRecord, error)
	QueryHistory(ctx context.Context, q HistoryQuery) ([]CommandRecord, error)
	Close() error
}
