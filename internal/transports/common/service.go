package common

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"intelterm/internal/core"
	"intelterm/internal/storage"
)

var (
	errEmptyCommand = errors.New("empty command")
	// ErrRateLimited - субъект превысил лимит команд.
	ErrRateLimited = errors.New("rate limit exceeded")
)

// Processor - то, что транспорты знают о ядре.
type Processor interface {
	Process(ctx context.Context, command string, args []string) core.Result
}

// Service объединяет общий пайплайн text->authz->ratelimit->processor->history.
type Service struct {
	Source      string
	Processor   Processor
	Authorizer  core.Authorizer
	RateLimiter *RateLimiter
	History     storage.HistoryWriter
	Logger      *zap.Logger
}

// ExecuteText парсит чат-команду ("/intel AI trends") и выполняет ее.
func (s *Service) ExecuteText(ctx context.Context, subjectID, text string) (core.Result, error) {
	command, args, err := ParseTextCommand(text)
	if err != nil {
		return core.Result{Success: false, Message: "Empty command. Type /help for available commands.", Type: core.TypeUnknown}, err
	}
	return s.Execute(ctx, subjectID, command, args)
}

// Execute проверяет доступ и лимиты и передает команду процессору.
// Ошибка возвращается только при отказе в доступе или по лимиту.
func (s *Service) Execute(ctx context.Context, subjectID, command string, args []string) (core.Result, error) {
	subject := core.Subject{Source: s.Source, ID: subjectID}
	if s.Authorizer != nil {
		if err := s.Authorizer.Authorize(subject, core.Action{Command: command}); err != nil {
			s.writeHistory(ctx, subject, command, args, core.Result{Type: "denied"})
			return core.Result{Success: false, Message: "Access denied", Type: core.TypeError}, err
		}
	}
	if s.RateLimiter != nil {
		if !s.RateLimiter.Allow(fmt.Sprintf("%s:%s", s.Source, subjectID), time.Now()) {
			s.writeHistory(ctx, subject, command, args, core.Result{Type: "rate_limited"})
			return core.Result{Success: false, Message: "Too many commands, slow down", Type: core.TypeError}, ErrRateLimited
		}
	}
	res := s.Processor.Process(ctx, command, args)
	s.writeHistory(ctx, subject, command, args, res)
	return res, nil
}

func (s *Service) writeHistory(ctx context.Context, subject core.Subject, command string, args []string, res core.Result) {
	if s.History == nil {
		return
	}
	err := s.History.Write(ctx, storage.CommandRecord{
		Source:    subject.Source,
		Subject:   subject.ID,
		Command:   command,
		Args:      args,
		Success:   res.Success,
		Type:      string(res.Type),
		RequestID: newRequestID(),
	})
	if err != nil && s.Logger != nil {
		s.Logger.Warn("history write failed", zap.String("command", command), zap.Error(err))
	}
}

// ParseTextCommand переводит текст в (command, args).
// Формат: /command arg1 "quoted arg"; ведущий "/" и суффикс @botname необязательны.
func ParseTextCommand(text string) (string, []string, error) {
	t := strings.TrimSpace(text)
	t = strings.TrimPrefix(t, "/")
	parts := SplitArgs(t)
	if len(parts) == 0 || parts[0] == "" {
		return "", nil, errEmptyCommand
	}
	command := parts[0]
	if i := strings.IndexByte(command, '@'); i > 0 {
		command = command[:i]
	}
	args := []string{}
	if len(parts) > 1 {
		args = parts[1:]
	}
	return command, args, nil
}

// SplitArgs делит строку на токены с учетом одинарных и двойных кавычек.
func SplitArgs(input string) []string {
	var tokens []string
	var current strings.Builder
	var inSingle, inDouble, hasToken bool

	for _, r := range input {
		switch {
		case r == '\'' && !inDouble:
			inSingle = !inSingle
			hasToken = true
		case r == '"' && !inSingle:
			inDouble = !inDouble
			hasToken = true
		case (r == ' ' || r == '\t' || r == '\n') && !inSingle && !inDouble:
			if hasToken {
				tokens = append(tokens, current.String())
				current.Reset()
				hasToken = false
			}
		default:
			current.WriteRune(r)
			hasToken = true
		}
	}
	if hasToken {
		tokens = append(tokens, current.String())
	}
	return tokens
}
