package core

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type stubCollector struct {
	mu    sync.Mutex
	data  Dataset
	err   error
	calls []CollectOptions
}

func (s *stubCollector) CollectAll(ctx context.Context, opts CollectOptions) (Dataset, error) {
	s.mu.Lock()
	s.calls = append(s.calls, opts)
	s.mu.Unlock()
	if s.err != nil {
		return Dataset{}, s.err
	}
	d := s.data
	d.Query = opts.Query
	return d, nil
}

type templateFunc func(ctx context.Context, data Dataset) (Rendered, error)

func (f templateFunc) Generate(ctx context.Context, data Dataset) (Rendered, error) {
	return f(ctx, data)
}

type stubRegistry map[string]Template

func (r stubRegistry) Lookup(name string) (Template, bool) {
	t, ok := r[name]
	return t, ok
}

type stubDiagnostics struct {
	snap map[string]any
	err  error
}

func (d stubDiagnostics) Snapshot(ctx context.Context) (map[string]any, error) {
	return d.snap, d.err
}

func contentTemplate(content string) Template {
	return templateFunc(func(ctx context.Context, data Dataset) (Rendered, error) {
		return Rendered{Content: content}, nil
	})
}

func allTemplates(content string) stubRegistry {
	return stubRegistry{
		TemplateDailyEcosystem: contentTemplate(content),
		TemplateProjectSpot:    contentTemplate(content),
		TemplateVCIntelligence: contentTemplate(content),
		TemplateGithubUpdates:  contentTemplate(content),
	}
}

func newTestProcessor(t *testing.T, reg TemplateRegistry, col DataCollector, opts ...Option) *Processor {
	t.Helper()
	p, err := NewProcessor(reg, col, opts...)
	require.NoError(t, err)
	return p
}

var ignoreErr = cmpopts.IgnoreUnexported(Result{})

func TestNewProcessorRejectsNilDependencies(t *testing.T) {
	_, err := NewProcessor(nil, &stubCollector{})
	require.ErrorIs(t, err, errInvalidArguments)

	_, err = NewProcessor(stubRegistry{}, nil)
	require.ErrorIs(t, err, errInvalidArguments)
}

func TestEveryCommandHasHandler(t *testing.T) {
	p := newTestProcessor(t, stubRegistry{}, &stubCollector{})
	for _, c := range Commands() {
		assert.NotNil(t, p.handlers[c], "command %s has no handler", c)
	}
	assert.Len(t, p.handlers, len(Commands()))
}

func TestRegisteredCommandsNeverFailShape(t *testing.T) {
	p := newTestProcessor(t, allTemplates("ok"), &stubCollector{})
	for _, c := range Commands() {
		res := p.Process(context.Background(), c.String(), nil)
		assert.NotEmpty(t, res.Message, "command %s", c)
		assert.True(t, res.Success, "command %s", c)
	}
}

func TestUnknownCommand(t *testing.T) {
	p := newTestProcessor(t, stubRegistry{}, &stubCollector{})
	res := p.Process(context.Background(), "nonexistent", []string{})

	assert.False(t, res.Success)
	assert.Equal(t, TypeUnknown, res.Type)
	assert.Contains(t, res.Message, "nonexistent")
	assert.True(t, errors.Is(res.Err(), ErrUnknownCommand))
}

func TestCommandMatchingIsExact(t *testing.T) {
	p := newTestProcessor(t, allTemplates("ok"), &stubCollector{})
	for _, name := range []string{"HELP", " help", "help ", "/help"} {
		res := p.Process(context.Background(), name, nil)
		assert.Equal(t, TypeUnknown, res.Type, "input %q", name)
	}
}

func TestHelp(t *testing.T) {
	p := newTestProcessor(t, stubRegistry{}, &stubCollector{})
	res := p.Process(context.Background(), "help", []string{})

	require.True(t, res.Success)
	assert.Equal(t, TypeHelp, res.Type)
	for _, want := range []string{"/intel", "/crypto", "/verify", "/agents", "/status", "/clear"} {
		assert.Contains(t, res.Message, want)
	}
}

func TestHelpIsIdempotent(t *testing.T) {
	p := newTestProcessor(t, stubRegistry{}, &stubCollector{})
	first := p.Process(context.Background(), "help", []string{})
	second := p.Process(context.Background(), "help", []string{})
	if diff := cmp.Diff(first, second, ignoreErr); diff != "" {
		t.Fatalf("help output changed between calls (-first +second):\n%s", diff)
	}
}

func TestIntelRendersContent(t *testing.T) {
	col := &stubCollector{data: Dataset{Items: []Item{{Source: "x", Text: "hello"}}}}
	var seen Dataset
	reg := stubRegistry{
		TemplateDailyEcosystem: templateFunc(func(ctx context.Context, data Dataset) (Rendered, error) {
			seen = data
			return Rendered{Content: "X"}, nil
		}),
	}
	p := newTestProcessor(t, reg, col)

	res := p.Process(context.Background(), "intel", []string{"AI", "trends"})

	want := Result{Success: true, Message: "X", Type: TypeAnalysis}
	if diff := cmp.Diff(want, res, ignoreErr); diff != "" {
		t.Fatalf("unexpected result (-want +got):\n%s", diff)
	}
	assert.Equal(t, "X", res.Content())
	require.Len(t, col.calls, 1)
	assert.Equal(t, "AI trends", col.calls[0].Query)
	assert.Equal(t, "AI trends", seen.Query)
	assert.Len(t, seen.Items, 1)
}

func TestAnalysisPrefersTelegramRendering(t *testing.T) {
	reg := stubRegistry{
		TemplateGithubUpdates: templateFunc(func(ctx context.Context, data Dataset) (Rendered, error) {
			return Rendered{
				Content:  "plain",
				Telegram: "<b>tg</b>",
				Metadata: map[string]any{"items": 0},
			}, nil
		}),
	}
	p := newTestProcessor(t, reg, &stubCollector{})

	res := p.Process(context.Background(), "agents", nil)

	require.True(t, res.Success)
	assert.Equal(t, "<b>tg</b>", res.Message)
	assert.Equal(t, map[string]any{"items": 0, MetaContent: "plain"}, res.Metadata)
	assert.Equal(t, "plain", res.Content())
}

func TestCryptoDefaultsToNEAR(t *testing.T) {
	col := &stubCollector{}
	p := newTestProcessor(t, allTemplates("ok"), col)

	p.Process(context.Background(), "crypto", nil)
	p.Process(context.Background(), "crypto", []string{"BTC"})

	require.Len(t, col.calls, 2)
	assert.Equal(t, DefaultCryptoSymbol, col.calls[0].Query)
	assert.Equal(t, "BTC", col.calls[1].Query)
}

func TestCollectorFailureIsWrapped(t *testing.T) {
	obs, logs := observer.New(zapcore.InfoLevel)
	col := &stubCollector{err: errors.New("upstream timeout")}
	p := newTestProcessor(t, allTemplates("ok"), col, WithLogger(zap.New(obs)))

	res := p.Process(context.Background(), "intel", []string{})

	assert.False(t, res.Success)
	assert.Equal(t, TypeError, res.Type)
	assert.Equal(t, "Error executing command: upstream timeout", res.Message)

	errs := logs.FilterMessage("Command processing error").All()
	require.Len(t, errs, 1)
	fields := errs[0].ContextMap()
	assert.Equal(t, "intel", fields["command"])
	assert.Equal(t, "upstream timeout", fields["error"])
}

func TestTemplateFailureIsWrapped(t *testing.T) {
	reg := stubRegistry{
		TemplateVCIntelligence: templateFunc(func(ctx context.Context, data Dataset) (Rendered, error) {
			return Rendered{}, errors.New("render failed")
		}),
	}
	p := newTestProcessor(t, reg, &stubCollector{})

	res := p.Process(context.Background(), "verify", []string{"claim"})

	assert.False(t, res.Success)
	assert.Equal(t, TypeError, res.Type)
	assert.Contains(t, res.Message, "render failed")
}

func TestHandlerPanicIsRecovered(t *testing.T) {
	reg := stubRegistry{
		TemplateDailyEcosystem: templateFunc(func(ctx context.Context, data Dataset) (Rendered, error) {
			panic("boom")
		}),
	}
	p := newTestProcessor(t, reg, &stubCollector{})

	var res Result
	require.NotPanics(t, func() {
		res = p.Process(context.Background(), "intel", nil)
	})
	assert.False(t, res.Success)
	assert.Equal(t, "Error executing command: boom", res.Message)
}

func TestMissingTemplate(t *testing.T) {
	col := &stubCollector{}
	p := newTestProcessor(t, stubRegistry{}, col)

	res := p.Process(context.Background(), "crypto", []string{"NEAR"})

	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "template not found")
	assert.True(t, errors.Is(res.Err(), ErrTemplateNotFound))
	assert.Empty(t, col.calls, "collector must not run without a template")
}

func TestStatusAndClear(t *testing.T) {
	p := newTestProcessor(t, stubRegistry{}, &stubCollector{})

	status := p.Process(context.Background(), "status", nil)
	assert.True(t, status.Success)
	assert.Equal(t, TypeStatus, status.Type)
	assert.Nil(t, status.Metadata)

	cleared := p.Process(context.Background(), "clear", nil)
	assert.True(t, cleared.Success)
	assert.Equal(t, TypeClear, cleared.Type)
}

func TestStatusAttachesDiagnostics(t *testing.T) {
	snap := map[string]any{"hostname": "n1"}
	p := newTestProcessor(t, stubRegistry{}, &stubCollector{}, WithDiagnostics(stubDiagnostics{snap: snap}))
	res := p.Process(context.Background(), "status", nil)
	assert.True(t, res.Success)
	assert.Equal(t, snap, res.Metadata)

	p = newTestProcessor(t, stubRegistry{}, &stubCollector{}, WithDiagnostics(stubDiagnostics{err: errors.New("no procfs")}))
	res = p.Process(context.Background(), "status", nil)
	assert.True(t, res.Success, "diagnostics failure must not fail status")
	assert.Nil(t, res.Metadata)
}

func TestEveryInvocationIsLogged(t *testing.T) {
	obs, logs := observer.New(zapcore.InfoLevel)
	p := newTestProcessor(t, stubRegistry{}, &stubCollector{}, WithLogger(zap.New(obs)))

	p.Process(context.Background(), "help", []string{"a"})
	p.Process(context.Background(), "bogus", nil)

	entries := logs.FilterMessage("Processing command").All()
	require.Len(t, entries, 2)
	assert.Equal(t, "help", entries[0].ContextMap()["command"])
	assert.Equal(t, "bogus", entries[1].ContextMap()["command"])
}

func TestProcessConcurrentUse(t *testing.T) {
	p := newTestProcessor(t, allTemplates("ok"), &stubCollector{})
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := Commands()[i%len(Commands())]
			res := p.Process(context.Background(), c.String(), []string{"q"})
			if !res.Success {
				t.Errorf("command %s failed: %s", c, res.Message)
			}
		}(i)
	}
	wg.Wait()
}

func TestParseCommand(t *testing.T) {
	for _, c := range Commands() {
		got, ok := ParseCommand(c.String())
		require.True(t, ok)
		assert.Equal(t, c, got)
	}
	_, ok := ParseCommand("")
	assert.False(t, ok)
	assert.Equal(t, "unknown", Command(0).String())
}
