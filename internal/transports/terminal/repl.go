// Package terminal - интерактивный терминальный интерфейс к процессору команд.
package terminal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/peterh/liner"
	"go.uber.org/zap"

	"intelterm/internal/core"
	"intelterm/internal/transports/common"
)

// ClearScreen - ANSI-последовательность очистки экрана.
const ClearScreen = "\x1b[H\x1b[2J"

// RenderMarkdown включает рендеринг аналитики через glamour.
const RenderMarkdown = "markdown"

// Options задает параметры REPL.
type Options struct {
	Prompt      string
	HistoryFile string
	Render      string
}

// REPL читает команды со строки ввода и печатает результаты.
type REPL struct {
	proc   common.Processor
	opts   Options
	out    io.Writer
	logger *zap.Logger

	md     *glamour.TermRenderer
	title  lipgloss.Style
	ok     lipgloss.Style
	failed lipgloss.Style
	dim    lipgloss.Style
}

// New создает REPL, печатающий в out.
func New(proc common.Processor, opts Options, out io.Writer, logger *zap.Logger) (*REPL, error) {
	if opts.Prompt == "" {
		opts.Prompt = "intel> "
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := lipgloss.NewRenderer(out)
	repl := &REPL{
		proc:   proc,
		opts:   opts,
		out:    out,
		logger: logger,
		title:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		ok:     r.NewStyle().Foreground(lipgloss.Color("10")),
		failed: r.NewStyle().Foreground(lipgloss.Color("9")),
		dim:    r.NewStyle().Faint(true),
	}
	if opts.Render == RenderMarkdown {
		md, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(100),
		)
		if err != nil {
			return nil, fmt.Errorf("markdown renderer: %w", err)
		}
		repl.md = md
	}
	return repl, nil
}

// Exec выполняет одну строку ввода. Возвращает true, если сессию пора завершить.
func (r *REPL) Exec(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	switch line {
	case "":
		return false
	case "quit", "exit", "/quit", "/exit":
		return true
	}
	command, args, err := common.ParseTextCommand(line)
	if err != nil {
		return false
	}
	res := r.proc.Process(ctx, command, args)
	fmt.Fprintln(r.out, r.Render(res))
	return false
}

// Render форматирует результат для терминала.
func (r *REPL) Render(res core.Result) string {
	if res.Type == core.TypeClear {
		return ClearScreen + r.dim.Render(res.Message)
	}
	if !res.Success {
		return r.failed.Render("❌ " + res.Message)
	}
	switch res.Type {
	case core.TypeAnalysis:
		content := res.Content()
		if r.md != nil {
			out, err := r.md.Render(content)
			if err == nil {
				return strings.TrimRight(out, "\n")
			}
			r.logger.Warn("markdown render failed", zap.Error(err))
		}
		return content
	case core.TypeStatus:
		var b strings.Builder
		b.WriteString(r.ok.Render("✅ " + res.Message))
		for _, key := range slices.Sorted(maps.Keys(res.Metadata)) {
			fmt.Fprintf(&b, "\n%s %v", r.dim.Render(key+":"), res.Metadata[key])
		}
		return b.String()
	default:
		return res.Message
	}
}

// Run запускает интерактивный цикл до quit/exit, Ctrl-D или отмены контекста.
func (r *REPL) Run(ctx context.Context) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	line.SetCompleter(complete)

	r.loadHistory(line)
	defer r.saveHistory(line)

	fmt.Fprintln(r.out, r.title.Render("Intel Terminal")+" "+r.dim.Render("type /help for commands, exit to quit"))

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		input, err := line.Prompt(r.opts.Prompt)
		if errors.Is(err, liner.ErrPromptAborted) {
			continue
		}
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(r.out)
			return nil
		}
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		if strings.TrimSpace(input) != "" {
			line.AppendHistory(input)
		}
		if r.Exec(ctx, input) {
			return nil
		}
	}
}

func (r *REPL) loadHistory(line *liner.State) {
	if r.opts.HistoryFile == "" {
		return
	}
	f, err := os.Open(r.opts.HistoryFile)
	if err != nil {
		return
	}
	defer f.Close()
	if _, err := line.ReadHistory(f); err != nil {
		r.logger.Warn("read terminal history", zap.Error(err))
	}
}

func (r *REPL) saveHistory(line *liner.State) {
	if r.opts.HistoryFile == "" {
		return
	}
	f, err := os.OpenFile(r.opts.HistoryFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		r.logger.Warn("open terminal history", zap.Error(err))
		return
	}
	defer f.Close()
	if _, err := line.WriteHistory(f); err != nil {
		r.logger.Warn("write terminal history", zap.Error(err))
	}
}

func complete(line string) []string {
	prefix := strings.TrimPrefix(line, "/")
	var out []string
	for _, c := range core.Commands() {
		if strings.HasPrefix(c.String(), prefix) {
			out = append(out, "/"+c.String())
		}
	}
	return out
}
