package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

var (
	// ErrUnknownCommand - имя команды отсутствует в таблице.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrTemplateNotFound - шаблон команды отсутствует в реестре.
	ErrTemplateNotFound = errors.New("template not found")

	errInvalidArguments = errors.New("invalid arguments")
)

// DefaultCryptoSymbol используется командой crypto без аргументов.
const DefaultCryptoSymbol = "NEAR"

// HelpText - справка, которую возвращает команда help.
const HelpText = `
🤖 NEARWEEK Intelligence Terminal Commands:

/intel [query]    - Run intelligence analysis
/crypto [symbol]  - Analyze crypto project (default: NEAR)
/verify [claim]   - Fact-check statement
/agents           - List active AI agents
/status           - System diagnostics
/clear            - Clear terminal
/help             - Show this help

Examples:
/intel AI adoption trends
/crypto NEAR
/verify "Bitcoin hit $100k"
`

type handler func(ctx context.Context, args []string) (Result, error)

// Processor маршрутизирует команды к обработчикам.
// Таблица обработчиков строится в NewProcessor и дальше не меняется,
// поэтому Processor безопасен для конкурентного использования.
type Processor struct {
	handlers    map[Command]handler
	templates   TemplateRegistry
	collector   DataCollector
	diagnostics Diagnostics
	logger      *zap.Logger
}

// Option настраивает Processor.
type Option func(*Processor)

// WithLogger задает логгер; по умолчанию zap.NewNop.
func WithLogger(l *zap.Logger) Option {
	return func(p *Processor) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithDiagnostics подключает источник метрик для команды status.
func WithDiagnostics(d Diagnostics) Option {
	return func(p *Processor) { p.diagnostics = d }
}

// NewProcessor создает процессор с реестром шаблонов и сборщиком данных.
func NewProcessor(templates TemplateRegistry, collector DataCollector, opts ...Option) (*Processor, error) {
	if templates == nil {
		return nil, fmt.Errorf("template registry is nil: %w", errInvalidArguments)
	}
	if collector == nil {
		return nil, fmt.Errorf("data collector is nil: %w", errInvalidArguments)
	}
	p := &Processor{
		templates: templates,
		collector: collector,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.handlers = map[Command]handler{
		CmdHelp:   p.help,
		CmdIntel:  p.analysis(CmdIntel, "Intelligence analysis", joinArgs),
		CmdCrypto: p.analysis(CmdCrypto, "Crypto analysis", cryptoSymbol),
		CmdVerify: p.analysis(CmdVerify, "Fact verification", joinArgs),
		CmdAgents: p.analysis(CmdAgents, "Agent activity", joinArgs),
		CmdStatus: p.status,
		CmdClear:  p.clear,
	}
	return p, nil
}

// Process выполняет команду и всегда возвращает Result: ошибки обработчиков
// и паники перехватываются здесь и не уходят выше.
func (p *Processor) Process(ctx context.Context, command string, args []string) (res Result) {
	p.logger.Info("Processing command", zap.String("command", command), zap.Strings("args", args))

	cmd, ok := ParseCommand(command)
	if !ok {
		return unknownCommand(command)
	}
	h := p.handlers[cmd]

	defer func() {
		if r := recover(); r != nil {
			res = p.failure(command, fmt.Errorf("%v", r))
		}
	}()

	var err error
	res, err = h(ctx, args)
	if err != nil {
		return p.failure(command, err)
	}
	return res
}

func (p *Processor) failure(command string, err error) Result {
	p.logger.Error("Command processing error", zap.String("command", command), zap.Error(err))
	return Result{
		Success: false,
		Message: "Error executing command: " + err.Error(),
		Type:    TypeError,
		err:     err,
	}
}

func unknownCommand(command string) Result {
	return Result{
		Success: false,
		Message: fmt.Sprintf("Unknown command: %s. Type /help for available commands.", command),
		Type:    TypeUnknown,
		err:     fmt.Errorf("%s: %w", command, ErrUnknownCommand),
	}
}

func (p *Processor) help(ctx context.Context, args []string) (Result, error) {
	return Result{Success: true, Message: HelpText, Type: TypeHelp}, nil
}

// analysis собирает обработчик вида lookup -> collect -> generate.
func (p *Processor) analysis(cmd Command, label string, query func([]string) string) handler {
	name, _ := cmd.Template()
	return func(ctx context.Context, args []string) (Result, error) {
		tmpl, ok := p.templates.Lookup(name)
		if !ok {
			return Result{
				Success: false,
				Message: label + " template not found",
				Type:    TypeError,
				err:     fmt.Errorf("%s: %w", name, ErrTemplateNotFound),
			}, nil
		}
		data, err := p.collector.CollectAll(ctx, CollectOptions{Query: query(args)})
		if err != nil {
			return Result{}, err
		}
		out, err := tmpl.Generate(ctx, data)
		if err != nil {
			return Result{}, err
		}
		res := Result{Success: true, Message: out.Content, Type: TypeAnalysis, Metadata: out.Metadata}
		if out.Telegram != "" {
			res.Message = out.Telegram
			if out.Content != "" {
				res.Metadata = make(map[string]any, len(out.Metadata)+1)
				for k, v := range out.Metadata {
					res.Metadata[k] = v
				}
				res.Metadata[MetaContent] = out.Content
			}
		}
		return res, nil
	}
}

func (p *Processor) status(ctx context.Context, args []string) (Result, error) {
	res := Result{Success: true, Message: "All systems operational", Type: TypeStatus}
	if p.diagnostics == nil {
		return res, nil
	}
	snap, err := p.diagnostics.Snapshot(ctx)
	if err != nil {
		p.logger.Warn("diagnostics unavailable", zap.Error(err))
		return res, nil
	}
	res.Metadata = snap
	return res, nil
}

func (p *Processor) clear(ctx context.Context, args []string) (Result, error) {
	return Result{Success: true, Message: "Terminal cleared", Type: TypeClear}, nil
}

func joinArgs(args []string) string {
	return strings.Join(args, " ")
}

func cryptoSymbol(args []string) string {
	if len(args) == 0 {
		return DefaultCryptoSymbol
	}
	return joinArgs(args)
}
