package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"intelterm/internal/collector"
	"intelterm/internal/config"
	"intelterm/internal/core"
	"intelterm/internal/modules/host"
	"intelterm/internal/storage"
	"intelterm/internal/storage/sqlite"
	"intelterm/internal/templates"
	"intelterm/internal/transports/common"
	"intelterm/internal/transports/telegram"
	"intelterm/internal/transports/web"
	"intelterm/internal/xapi"
)

// ErrStorageDisabled возвращается операциями, которым нужна SQLite.
var ErrStorageDisabled = errors.New("sqlite storage is disabled")

// App агрегирует зависимости ядра.
type App struct {
	Config     config.Config
	Logger     *zap.Logger
	Processor  *core.Processor
	Transports *core.TransportManager
	Telegram   *telegram.Adapter
	Authorizer core.Authorizer
	// Store равен nil, если sqlite.enabled = false.
	Store storage.Store
}

// NewApp строит приложение: процессор команд, хранилище и транспорты.
func NewApp(cfg config.Config, logger *zap.Logger, version string) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var sources []collector.Source
	if cfg.X.BearerToken != "" {
		sources = append(sources, &collector.XSource{
			Client:     xapi.New(cfg.X.BaseURL, cfg.X.BearerToken),
			MaxResults: cfg.Collector.MaxResults,
		})
	} else {
		logger.Warn("x bearer token is not configured, analysis commands will render empty datasets")
	}
	coll := collector.New(time.Duration(cfg.Collector.TimeoutMS)*time.Millisecond, logger, sources...)

	proc, err := core.NewProcessor(templates.Builtin(), coll,
		core.WithLogger(logger),
		core.WithDiagnostics(host.New(version)),
	)
	if err != nil {
		return nil, fmt.Errorf("build processor: %w", err)
	}

	a := &App{
		Config:     cfg,
		Logger:     logger,
		Processor:  proc,
		Transports: core.NewTransportManager(),
		Authorizer: core.NewAllowlistAuthorizer(cfg.Security.AuthAllowlist),
	}

	var history storage.HistoryWriter
	if cfg.SQLite.Enabled {
		st, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("open storage: %w", err)
		}
		a.Store = st
		history = st
	}

	limiter := common.NewRateLimiter(cfg.Security.RateLimit, time.Duration(cfg.Security.RateWindowMS)*time.Millisecond)

	if cfg.Telegram.Enabled {
		a.Telegram = telegram.NewAdapter(proc, a.Authorizer, limiter, history, logger)
		if err := a.Transports.Register(a.Telegram); err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("register telegram transport: %w", err)
		}
	}
	if cfg.Web.Enabled {
		tokens := make([]web.TokenEntry, 0, len(cfg.Web.Tokens))
		for _, token := range cfg.Web.Tokens {
			tokens = append(tokens, web.TokenEntry{
				ID:          token.ID,
				TokenSHA256: token.TokenSHA256,
				Subject:     token.Subject,
				Enabled:     token.Enabled,
			})
		}
		webAdapter := web.NewAdapter(proc, a.Authorizer, limiter, a.Store, web.Config{
			ListenAddr:      cfg.Web.ListenAddr,
			RequestTimeout:  time.Duration(cfg.Web.RequestTimeoutMS) * time.Millisecond,
			ShutdownTimeout: time.Duration(cfg.Web.ShutdownTimeoutS) * time.Second,
			Tokens:          tokens,
			AllowedOrigins:  cfg.Web.AllowedOrigins,
		}, logger)
		if err := a.Transports.Register(webAdapter); err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("register web transport: %w", err)
		}
	}

	return a, nil
}

// Close высвобождает ресурсы приложения.
func (a *App) Close() error {
	if a.Store != nil {
		return a.Store.Close()
	}
	return nil
}

// RunDigest выполняет команду и сохраняет успешный результат как дайджест.
func (a *App) RunDigest(ctx context.Context, command string) error {
	if a.Store == nil {
		return ErrStorageDisabled
	}
	res := a.Processor.Process(ctx, command, nil)
	if !res.Success {
		return fmt.Errorf("digest %s: %s", command, res.Message)
	}
	meta, err := sqlite.MarshalMetadata(res.Metadata)
	if err != nil {
		return err
	}
	return a.Store.SaveDigest(ctx, storage.DigestRecord{Command: command, Message: res.Message, Metadata: meta})
}

// Serve запускает транспорты и планировщик дайджестов до отмены контекста.
func (a *App) Serve(ctx context.Context) error {
	if err := a.Transports.StartAll(ctx); err != nil {
		return fmt.Errorf("start transports: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Transports.StopAll(stopCtx)
	}()
	a.Logger.Info("intelterm serving", zap.Strings("transports", a.Transports.Names()))

	if a.Store == nil || len(a.Config.Scheduler.Commands) == 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	interval := time.Duration(a.Config.Scheduler.IntervalSeconds) * time.Second
	timeout := time.Duration(a.Config.Scheduler.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = time.Minute
	}
	sched := core.NewScheduler(interval, a.Logger)
	for _, command := range a.Config.Scheduler.Commands {
		sched.Add("digest:"+command, func(jobCtx context.Context) error {
			runCtx, cancel := context.WithTimeout(jobCtx, timeout)
			defer cancel()
			return a.RunDigest(runCtx, command)
		})
	}

	sched.Start(ctx)
	return ctx.Err()
}
