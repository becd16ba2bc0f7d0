package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/dop251/goja"

	"github.com/goclaw/reactor/pkg/reactor"
	"github.com/goclaw/reactor/pkg/telemetry/tracing"
)

func registerBuiltins(r *Registry) {
	r.MustRegister("const", constStep)
	r.MustRegister("add", addStep)
	r.MustRegister("multiply", multiplyStep)
	r.MustRegister("fail", failStep)
	r.MustRegister("sleep", sleepStep)
	r.MustRegister("script", scriptStep)
	r.MustRegister("http", httpStep)
}

// const returns config.value.
func constStep(cfg map[string]any) (reactor.RunFunc, error) {
	value := cfg["value"]
	return func(*reactor.StepContext, reactor.Args) (any, error) {
		return value, nil
	}, nil
}

// add sums every argument plus the optional config.plus.
func addStep(cfg map[string]any) (reactor.RunFunc, error) {
	plus, err := optionalNumber(cfg, "plus", 0)
	if err != nil {
		return nil, err
	}
	return func(_ *reactor.StepContext, args reactor.Args) (any, error) {
		nums, err := argNumbers(args)
		if err != nil {
			return nil, err
		}
		nums = append(nums, plus)
		sum := number{i: 0, integral: true}
		for _, n := range nums {
			sum = sum.add(n)
		}
		return sum.value(), nil
	}, nil
}

// multiply multiplies every argument and the optional config.factor.
func multiplyStep(cfg map[string]any) (reactor.RunFunc, error) {
	factor, err := optionalNumber(cfg, "factor", 1)
	if err != nil {
		return nil, err
	}
	return func(_ *reactor.StepContext, args reactor.Args) (any, error) {
		nums, err := argNumbers(args)
		if err != nil {
			return nil, err
		}
		nums = append(nums, factor)
		product := number{i: 1, integral: true}
		for _, n := range nums {
			product = product.mul(n)
		}
		return product.value(), nil
	}, nil
}

// fail returns an error for the first config.times attempts, or forever
// when times is zero, then config.value.
func failStep(cfg map[string]any) (reactor.RunFunc, error) {
	message, _ := cfg["message"].(string)
	if message == "" {
		message = "step failed"
	}
	times, err := optionalInt(cfg, "times")
	if err != nil {
		return nil, err
	}
	value := cfg["value"]
	return func(sc *reactor.StepContext, _ reactor.Args) (any, error) {
		if times == 0 || sc.Attempt() <= times {
			return nil, errors.New(message)
		}
		return value, nil
	}, nil
}

// sleep waits config.duration, then returns config.value.
func sleepStep(cfg map[string]any) (reactor.RunFunc, error) {
	raw, _ := cfg["duration"].(string)
	d, err := time.ParseDuration(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	value := cfg["value"]
	return func(sc *reactor.StepContext, _ reactor.Args) (any, error) {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
			return value, nil
		case <-sc.Done():
			return nil, sc.Err()
		}
	}, nil
}

// script runs config.code as the body of a JavaScript function. Arguments
// are bound as variables and ctx holds run_id, step and attempt. Whatever
// the function returns is the step value; a thrown exception fails the
// step.
func scriptStep(cfg map[string]any) (reactor.RunFunc, error) {
	code, ok := cfg["code"].(string)
	if !ok || strings.TrimSpace(code) == "" {
		return nil, errors.New("missing 'code' in script step")
	}
	program, err := goja.Compile("script", "(function() {\n"+code+"\n})()", false)
	if err != nil {
		return nil, fmt.Errorf("compile script: %w", err)
	}

	return func(sc *reactor.StepContext, args reactor.Args) (any, error) {
		vm := goja.New()
		for name, v := range args {
			if err := vm.Set(name, v); err != nil {
				return nil, fmt.Errorf("bind %q: %w", name, err)
			}
		}
		meta := map[string]any{
			"run_id":  sc.RunID(),
			"step":    sc.Step(),
			"attempt": sc.Attempt(),
		}
		if err := vm.Set("ctx", meta); err != nil {
			return nil, fmt.Errorf("bind ctx: %w", err)
		}

		stop := context.AfterFunc(sc, func() { vm.Interrupt(sc.Err()) })
		defer stop()

		result, err := vm.RunProgram(program)
		if err != nil {
			var interrupted *goja.InterruptedError
			if errors.As(err, &interrupted) && sc.Err() != nil {
				return nil, sc.Err()
			}
			return nil, fmt.Errorf("script: %w", err)
		}
		if result == nil || goja.IsUndefined(result) || goja.IsNull(result) {
			return nil, nil
		}
		return result.Export(), nil
	}, nil
}

// http issues a request to config.url (or the url argument) and returns
// the status code. The attempt's trace context travels in the headers.
// Status codes of 400 and above fail the step.
func httpStep(cfg map[string]any) (reactor.RunFunc, error) {
	url, _ := cfg["url"].(string)
	method, _ := cfg["method"].(string)
	if method == "" {
		method = http.MethodGet
	}
	method = strings.ToUpper(method)
	body, _ := cfg["body"].(string)

	timeout := 30 * time.Second
	if raw, ok := cfg["timeout"].(string); ok {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout %q: %w", raw, err)
		}
		timeout = d
	}
	client := &http.Client{Timeout: timeout}

	return func(sc *reactor.StepContext, args reactor.Args) (any, error) {
		target := url
		if v, ok := args["url"].(string); ok && v != "" {
			target = v
		}
		if target == "" {
			return nil, errors.New("http step has no url")
		}

		var reader io.Reader
		if body != "" {
			reader = strings.NewReader(body)
		}
		req, err := http.NewRequestWithContext(sc, method, target, reader)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		tracing.InjectHTTP(sc, req.Header)
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)

		if resp.StatusCode >= http.StatusBadRequest {
			return nil, fmt.Errorf("%s %s: status %d", method, target, resp.StatusCode)
		}
		return resp.StatusCode, nil
	}, nil
}

func argNumbers(args reactor.Args) ([]number, error) {
	names := make([]string, 0, len(args))
	for name := range args {
		names = append(names, name)
	}
	sort.Strings(names)

	nums := make([]number, 0, len(names))
	for _, name := range names {
		n, err := toNumber(args[name])
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", name, err)
		}
		nums = append(nums, n)
	}
	return nums, nil
}

func optionalNumber(cfg map[string]any, key string, def int64) (number, error) {
	v, ok := cfg[key]
	if !ok {
		return number{i: def, integral: true}, nil
	}
	n, err := toNumber(v)
	if err != nil {
		return number{}, fmt.Errorf("config %q: %w", key, err)
	}
	return n, nil
}

func optionalInt(cfg map[string]any, key string) (int, error) {
	v, ok := cfg[key]
	if !ok {
		return 0, nil
	}
	n, err := toNumber(v)
	if err != nil || !n.integral || n.i < 0 {
		return 0, fmt.Errorf("config %q must be a non-negative integer", key)
	}
	return int(n.i), nil
}
