package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	errTransportExists  = errors.New("transport already registered")
	errUnknownTransport = errors.New("unknown transport")
)

// TransportAdapter определяет жизненный цикл входного транспорта.
type TransportAdapter interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// TransportManager запускает транспорты в порядке регистрации
// и останавливает в обратном.
type TransportManager struct {
	mu         sync.Mutex
	order      []string
	transports map[string]TransportAdapter
	started    []TransportAdapter
}

// NewTransportManager создает пустой менеджер транспортов.
func NewTransportManager() *TransportManager {
	return &TransportManager{transports: make(map[string]TransportAdapter)}
}

// Register добавляет транспорт; имена должны быть уникальны.
func (m *TransportManager) Register(adapter TransportAdapter) error {
	if adapter == nil {
		return fmt.Errorf("transport is nil: %w", errInvalidArguments)
	}
	name := adapter.Name()
	if name == "" {
		return fmt.Errorf("transport name is empty: %w", errInvalidArguments)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.transports[name]; exists {
		return fmt.Errorf("%s: %w", name, errTransportExists)
	}
	m.transports[name] = adapter
	m.order = append(m.order, name)
	return nil
}

// Names возвращает имена транспортов в порядке регистрации.
func (m *TransportManager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.order...)
}

// StartAll запускает все транспорты. Если один не стартовал,
// уже запущенные останавливаются.
func (m *TransportManager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, name := range m.order {
		tr := m.transports[name]
		if err := tr.Start(ctx); err != nil {
			_ = m.stopStartedLocked(ctx)
			return fmt.Errorf("start transport %s: %w", name, err)
		}
		m.started = append(m.started, tr)
	}
	return nil
}

// StopAll останавливает запущенные транспорты; возвращает первую ошибку.
func (m *TransportManager) StopAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopStartedLocked(ctx)
}

func (m *TransportManager) stopStartedLocked(ctx context.Context) error {
	var first error
	for i := len(m.started) - 1; i >= 0; i-- {
		tr := m.started[i]
		if err := tr.Stop(ctx); err != nil && first == nil {
			first = fmt.Errorf("stop transport %s: %w", tr.Name(), err)
		}
	}
	m.started = nil
	return first
}

// StopOne останавливает конкретный транспорт по имени.
func (m *TransportManager) StopOne(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tr, ok := m.transports[name]
	if !ok {
		return fmt.Errorf("%s: %w", name, errUnknownTransport)
	}
	if err := tr.Stop(ctx); err != nil {
		return fmt.Errorf("stop transport %s: %w", name, err)
	}
	kept := m.started[:0]
	for _, s := range m.started {
		if s.Name() != name {
			kept = append(kept, s)
		}
	}
	m.started = kept
	return nil
}
