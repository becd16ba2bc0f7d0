package workflow

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/goclaw/reactor/config"
	"github.com/goclaw/reactor/pkg/logger"
	"github.com/goclaw/reactor/pkg/reactor"
)

const doubleSum = `
name: double-sum
description: doubles two inputs and adds them
inputs: [param1, param2]
steps:
  - name: double1
    type: multiply
    args: {x: "input:param1"}
    config: {factor: 2}
  - name: double2
    type: multiply
    args: {x: "input:param2"}
    config: {factor: 2}
  - name: sum
    type: add
    args:
      a: "step:double1"
      b: "step:double2"
return: sum
`

func executor() *reactor.Executor {
	return reactor.NewExecutor(
		reactor.WithLogger(logger.New(&logger.Config{Level: logger.ErrorLevel, Output: "discard"})),
		reactor.WithDefaultBackoff(reactor.BackoffPolicy{Initial: time.Millisecond, Max: time.Millisecond, Factor: 1}),
	)
}

func build(t *testing.T, src string) *reactor.Workflow {
	t.Helper()
	def, err := Parse([]byte(src), "test.yaml")
	require.NoError(t, err)
	wf, err := Build(def, DefaultRegistry())
	require.NoError(t, err)
	return wf
}

func TestParseAndRun_DoubleSum(t *testing.T) {
	wf := build(t, doubleSum)
	assert.Equal(t, "double-sum", wf.Name())
	assert.Equal(t, []string{"param1", "param2"}, wf.Inputs())

	result := executor().Execute(context.Background(), wf, map[string]any{"param1": 5, "param2": 5})
	require.Equal(t, reactor.StatusCompleted, result.Status, "err: %v", result.Err)
	assert.Equal(t, 20, result.ReturnValue)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"empty", ""},
		{"unknown key", "name: x\nsteps: [{name: a, type: const}]\nreturn: a\ncolour: red\n"},
		{"no steps", "name: x\nreturn: a\n"},
		{"no return", "name: x\nsteps: [{name: a, type: const}]\n"},
		{"bad on_error", "name: x\nsteps: [{name: a, type: const, on_error: ignore}]\nreturn: a\n"},
		{"duplicate step", "name: x\nsteps: [{name: a, type: const}, {name: a, type: const}]\nreturn: a\n"},
		{"bad timeout", "name: x\nsteps: [{name: a, type: const, timeout: soon}]\nreturn: a\n"},
		{"negative retries", "name: x\nsteps: [{name: a, type: const, retries: -1}]\nreturn: a\n"},
		{"undo value arg clash", "name: x\nsteps: [{name: a, type: const, args: {value: \"input:v\"}, undo: {type: const}}]\nreturn: a\n"},
		{"backoff max below initial", "name: x\nsteps: [{name: a, type: const, backoff: {initial: 1s, max: 10ms}}]\nreturn: a\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src), "bad.yaml")
			require.Error(t, err)
			assert.Contains(t, err.Error(), "bad.yaml")
		})
	}
}

func TestBuild_Errors(t *testing.T) {
	reg := DefaultRegistry()

	unknown := &Definition{Name: "x", Steps: []StepDef{{Name: "a", Type: "teleport"}}, Return: "a"}
	_, err := Build(unknown, reg)
	assert.ErrorContains(t, err, "unknown step type: teleport")

	badConfig := &Definition{Name: "x", Steps: []StepDef{{Name: "a", Type: "sleep", Config: map[string]any{"duration": "forever"}}}, Return: "a"}
	_, err = Build(badConfig, reg)
	assert.ErrorContains(t, err, "sleep handler")

	cyclic := &Definition{Name: "x", Steps: []StepDef{
		{Name: "a", Type: "const", DependsOn: []string{"b"}},
		{Name: "b", Type: "const", Args: map[string]string{"v": "step:a"}},
	}, Return: "b"}
	_, err = Build(cyclic, reg)
	var cycle *reactor.CycleDetectedError
	assert.ErrorAs(t, err, &cycle)

	badUndo := &Definition{Name: "x", Steps: []StepDef{{Name: "a", Type: "const", Undo: &UndoDef{Type: "nope"}}}, Return: "a"}
	_, err = Build(badUndo, reg)
	assert.ErrorContains(t, err, "undo")
}

func TestOnError_Policies(t *testing.T) {
	src := `
name: policies
steps:
  - name: flaky
    type: fail
    retries: 2
    config: {times: 2, value: ok}
  - name: optional
    type: fail
    on_error: skip
    fallback: none
  - name: tolerant
    type: fail
    on_error: continue
    fallback: 7
  - name: report
    type: script
    args:
      flaky: "step:flaky"
      optional: "step:optional"
      tolerant: "step:tolerant"
    config:
      code: 'return flaky + "/" + optional + "/" + tolerant;'
return: report
`
	result := executor().Execute(context.Background(), build(t, src), nil)
	require.Equal(t, reactor.StatusCompleted, result.Status, "err: %v", result.Err)
	assert.Equal(t, "ok/none/7", result.ReturnValue)
	assert.Equal(t, 3, result.Step("flaky").Attempts)
	assert.Equal(t, reactor.StateSkipped, result.Step("optional").State)
	assert.True(t, result.Step("tolerant").Continued)
}

func TestOnError_AbortSkipsRetries(t *testing.T) {
	src := `
name: strict
steps:
  - name: charge
    type: fail
    retries: 3
    on_error: abort
return: charge
`
	result := executor().Execute(context.Background(), build(t, src), nil)
	assert.Equal(t, reactor.StatusFailed, result.Status)
	assert.Equal(t, 1, result.Step("charge").Attempts)
}

func TestUndoHandler(t *testing.T) {
	var undone []any
	reg := DefaultRegistry()
	require.NoError(t, reg.Register("record", func(map[string]any) (reactor.RunFunc, error) {
		return func(_ *reactor.StepContext, args reactor.Args) (any, error) {
			undone = append(undone, args["value"])
			return nil, nil
		}, nil
	}))

	def, err := Parse([]byte(`
name: booking
steps:
  - name: hold
    type: const
    config: {value: seat-12}
    undo: {type: record}
  - name: pay
    type: fail
    depends_on: [hold]
    config: {message: card declined}
return: pay
`), "booking.yaml")
	require.NoError(t, err)
	wf, err := Build(def, reg)
	require.NoError(t, err)

	result := executor().Execute(context.Background(), wf, nil)
	require.Equal(t, reactor.StatusFailed, result.Status)
	assert.Equal(t, []any{"seat-12"}, undone)
	assert.Equal(t, []string{"hold"}, result.Rollback.Undone)
	assert.ErrorContains(t, result.Err, "card declined")
}

func TestScriptStep(t *testing.T) {
	src := `
name: js
inputs: [a]
steps:
  - name: calc
    type: script
    args: {a: "input:a"}
    config:
      code: 'return {total: a * 2, step: ctx.step};'
return: calc
`
	result := executor().Execute(context.Background(), build(t, src), map[string]any{"a": 21})
	require.Equal(t, reactor.StatusCompleted, result.Status, "err: %v", result.Err)
	assert.Equal(t, map[string]any{"total": int64(42), "step": "calc"}, result.ReturnValue)

	_, err := scriptStep(map[string]any{})
	assert.Error(t, err)
	_, err = scriptStep(map[string]any{"code": "return ("})
	assert.ErrorContains(t, err, "compile script")
}

func TestScriptStep_ThrowAndTimeout(t *testing.T) {
	src := `
name: js-fail
steps:
  - name: boom
    type: script
    config: {code: 'throw new Error("bad input");'}
return: boom
`
	result := executor().Execute(context.Background(), build(t, src), nil)
	require.Equal(t, reactor.StatusFailed, result.Status)
	assert.ErrorContains(t, result.Step("boom").Err, "bad input")

	src = `
name: js-spin
steps:
  - name: spin
    type: script
    timeout: 50ms
    config: {code: 'while (true) {}'}
return: spin
`
	result = executor().Execute(context.Background(), build(t, src), nil)
	require.Equal(t, reactor.StatusFailed, result.Status)
	var stepErr *reactor.StepExecutionError
	require.ErrorAs(t, result.Step("spin").Err, &stepErr)
	assert.True(t, stepErr.Timeout())
}

func TestHTTPStep(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		assert.Equal(t, http.MethodPost, r.Method)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	run, err := httpStep(map[string]any{"url": srv.URL + "/ok", "method": "post", "body": "{}"})
	require.NoError(t, err)

	wf, err := reactor.New("http").
		Input("target").
		Step("call", reactor.Run(run)).
		Step("missing", reactor.FromInput("url", "target"), reactor.Run(run), reactor.SkipOnExhaustion()).
		Step("done", reactor.FromStep("status", "call"), reactor.DependsOn("missing"),
			reactor.Run(func(_ *reactor.StepContext, args reactor.Args) (any, error) { return args["status"], nil })).
		Return("done").
		Build()
	require.NoError(t, err)

	result := executor().Execute(context.Background(), wf, map[string]any{"target": srv.URL + "/missing"})
	require.Equal(t, reactor.StatusCompleted, result.Status, "err: %v", result.Err)
	assert.Equal(t, http.StatusAccepted, result.ReturnValue)
	assert.Equal(t, reactor.StateSkipped, result.Step("missing").State)
	assert.ErrorContains(t, result.Step("missing").Err, "status 404")

	_, err = httpStep(map[string]any{"timeout": "later"})
	assert.Error(t, err)
}

func TestSleepStep_Cancelled(t *testing.T) {
	src := `
name: slow
steps:
  - name: nap
    type: sleep
    config: {duration: 10s}
return: nap
`
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	result := executor().Execute(ctx, build(t, src), nil)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, reactor.StatusCancelled, result.Status)
}

func TestRegistry(t *testing.T) {
	reg := DefaultRegistry()
	assert.Equal(t, []string{"add", "const", "fail", "http", "multiply", "script", "sleep"}, reg.Types())

	assert.Error(t, reg.Register("const", constStep))
	assert.Error(t, reg.Register("", constStep))
	assert.Error(t, reg.Register("nil", nil))
	assert.Panics(t, func() { reg.MustRegister("add", addStep) })

	_, err := NewRegistry().Lookup("const")
	assert.Error(t, err)
}

func TestArithmetic(t *testing.T) {
	add, err := addStep(map[string]any{"plus": 0.5})
	require.NoError(t, err)
	v, err := add(nil, reactor.Args{"a": 1, "b": int64(2)})
	require.NoError(t, err)
	assert.Equal(t, 3.5, v)

	mul, err := multiplyStep(nil)
	require.NoError(t, err)
	v, err = mul(nil, reactor.Args{"a": 3, "b": 4})
	require.NoError(t, err)
	assert.Equal(t, 12, v)

	_, err = mul(nil, reactor.Args{"a": "three"})
	assert.ErrorContains(t, err, `argument "a"`)

	_, err = addStep(map[string]any{"plus": "x"})
	assert.Error(t, err)
	_, err = failStep(map[string]any{"times": -1})
	assert.Error(t, err)
}

func TestLoadDirAndCatalog(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yaml"), []byte(doubleSum), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yml"), []byte("name: hello\nsteps: [{name: greet, type: const, config: {value: hi}}]\nreturn: greet\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))

	defs, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, "hello", defs[0].Name)
	assert.Equal(t, filepath.Join(dir, "a.yml"), defs[0].Source)

	catalog, err := LoadCatalog(config.WorkflowsConfig{Dir: dir}, DefaultRegistry())
	require.NoError(t, err)
	assert.Equal(t, []string{"double-sum", "hello"}, catalog.Names())
	assert.Equal(t, 2, catalog.Len())

	wf, ok := catalog.Get("hello")
	require.True(t, ok)
	assert.Equal(t, "greet", wf.Return())
	def, ok := catalog.Definition("double-sum")
	require.True(t, ok)
	assert.Len(t, def.Steps, 3)

	_, err = LoadCatalog(config.WorkflowsConfig{Dir: dir, Files: []string{filepath.Join(dir, "b.yaml")}}, DefaultRegistry())
	assert.ErrorContains(t, err, "defined twice")

	_, err = LoadDir(filepath.Join(dir, "missing"))
	assert.Error(t, err)
	_, err = LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestUndoWith_PassesValue(t *testing.T) {
	var got reactor.Args
	undo := undoWith(func(_ *reactor.StepContext, args reactor.Args) (any, error) {
		got = args
		return nil, errors.New("refund failed")
	})
	args := reactor.Args{"amount": 10}
	err := undo(nil, "tx-1", args)
	assert.EqualError(t, err, "refund failed")
	assert.Equal(t, reactor.Args{"amount": 10, "value": "tx-1"}, got)
	assert.NotContains(t, args, "value")
}

func TestParse_ValueArgAllowedWithoutUndo(t *testing.T) {
	def, err := Parse([]byte(`
name: x
inputs: [v]
steps:
  - name: a
    type: add
    args: {value: "input:v"}
return: a
`), "ok.yaml")
	require.NoError(t, err)
	assert.Equal(t, "input:v", def.Steps[0].Args[UndoValueArg])
}

func TestHTTPStep_PropagatesTraceContext(t *testing.T) {
	prevProvider := otel.GetTracerProvider()
	prevPropagator := otel.GetTextMapPropagator()
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	defer func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prevProvider)
		otel.SetTextMapPropagator(prevPropagator)
	}()

	got := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got <- r.Header.Get("traceparent")
	}))
	defer srv.Close()

	run, err := httpStep(map[string]any{"url": srv.URL})
	require.NoError(t, err)
	wf, err := reactor.New("traced").Step("call", reactor.Run(run)).Return("call").Build()
	require.NoError(t, err)

	ctx, span := tp.Tracer("test").Start(context.Background(), "caller")
	defer span.End()
	result := executor().Execute(ctx, wf, nil)
	require.Equal(t, reactor.StatusCompleted, result.Status, "err: %v", result.Err)

	assert.Contains(t, <-got, span.SpanContext().TraceID().String())
}
