package telegram

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"intelterm/internal/core"
	"intelterm/internal/storage"
	"intelterm/internal/transports/common"
)

// ErrNotRunning возвращается, если адаптер не запущен.
var ErrNotRunning = errors.New("telegram transport is not running")

// Reply - ответ бота на одно сообщение чата.
type Reply struct {
	Text      string
	ParseMode string
	Result    core.Result
}

// Adapter предоставляет transport-слой для Telegram: внешний бот передает
// сюда текст сообщения и отправляет Reply обратно в чат.
type Adapter struct {
	svc     *common.Service
	mu      sync.Mutex
	running bool
}

// NewAdapter создает Telegram адаптер.
func NewAdapter(proc common.Processor, authorizer core.Authorizer, limiter *common.RateLimiter, history storage.HistoryWriter, logger *zap.Logger) *Adapter {
	return &Adapter{
		svc: &common.Service{
			Source:      "telegram",
			Processor:   proc,
			Authorizer:  authorizer,
			RateLimiter: limiter,
			History:     history,
			Logger:      logger,
		},
	}
}

func (a *Adapter) Name() string { return "telegram" }

// Start открывает прием команд. Сообщения из чата доставляет внешний бот
// через HandleCommand; сам адаптер сетевых соединений не держит.
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	a.running = true
	a.mu.Unlock()
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	a.running = false
	a.mu.Unlock()
	return nil
}

// HandleCommand принимает команду в чат-формате и исполняет через core.
// Отказ в доступе и лимит тоже превращаются в Reply, чтобы бот мог ответить.
func (a *Adapter) HandleCommand(ctx context.Context, userID, text string) (Reply, error) {
	a.mu.Lock()
	running := a.running
	a.mu.Unlock()
	if !running {
		return Reply{}, ErrNotRunning
	}
	res, err := a.svc.ExecuteText(ctx, userID, text)
	reply := Reply{Text: res.Message, Result: res}
	if res.Type == core.TypeAnalysis {
		reply.ParseMode = "HTML"
	}
	return reply, err
}
