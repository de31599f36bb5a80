package storage

import "context"

// HistoryWriter позволяет использовать Store как sink истории команд.
type HistoryWriter interface {
	Write(ctx context.Context, rec CommandRecord) error
}
