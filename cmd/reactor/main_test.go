package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goclaw/reactor/config"
	"github.com/goclaw/reactor/pkg/api/models"
	"github.com/goclaw/reactor/pkg/ledger"
	"github.com/goclaw/reactor/pkg/logger"
)

const doubleSumYAML = `
name: double-sum
inputs: [param1, param2]
steps:
  - name: double
    type: multiply
    args: {x: "input:param1"}
    config: {factor: 2}
  - name: sum
    type: add
    args: {a: "step:double", b: "input:param2"}
return: sum
`

const brokenYAML = `
name: broken
steps:
  - name: boom
    type: fail
    config: {message: "kaboom"}
return: boom
`

// writeFixture lays out a config file and a workflow directory.
func writeFixture(t *testing.T, extra string) (dir, cfgPath string) {
	t.Helper()
	dir = t.TempDir()
	wfDir := filepath.Join(dir, "workflows")
	require.NoError(t, os.MkdirAll(wfDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(wfDir, "double.yaml"), []byte(doubleSumYAML), 0o644))

	cfg := fmt.Sprintf(`
log:
  level: error
  output: discard
metrics:
  enabled: false
workflows:
  dir: %s
%s`, wfDir, extra)
	cfgPath = filepath.Join(dir, "reactor.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))
	return dir, cfgPath
}

func decodeRun(t *testing.T, out *bytes.Buffer) models.RunResponse {
	t.Helper()
	var resp models.RunResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp), out.String())
	return resp
}

func TestInputFlags(t *testing.T) {
	f := inputFlags{}
	require.NoError(t, f.Set("count=5"))
	require.NoError(t, f.Set("ratio=0.5"))
	require.NoError(t, f.Set("dry=true"))
	require.NoError(t, f.Set("who=alice"))
	require.NoError(t, f.Set("empty="))
	require.NoError(t, f.Set("expr=a=b"))

	assert.Equal(t, inputFlags{
		"count": 5,
		"ratio": 0.5,
		"dry":   true,
		"who":   "alice",
		"empty": "",
		"expr":  "a=b",
	}, f)
	assert.Equal(t, "count,dry,empty,expr,ratio,who", f.String())

	assert.Error(t, f.Set("novalue"))
	assert.Error(t, f.Set("=5"))
}

func TestRun_Version(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-version"}, &stdout, &stderr)

	assert.Equal(t, exitOK, code)
	assert.True(t, strings.HasPrefix(stdout.String(), "reactor "), stdout.String())
}

func TestRun_UsageErrors(t *testing.T) {
	_, cfgPath := writeFixture(t, "")

	tests := []struct {
		name string
		args []string
	}{
		{name: "unknown flag", args: []string{"-nope"}},
		{name: "no workflow", args: []string{"-config", cfgPath}},
		{name: "unknown workflow", args: []string{"-config", cfgPath, "-workflow", "missing"}},
		{name: "missing config", args: []string{"-config", filepath.Join(t.TempDir(), "absent.yaml"), "-workflow", "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			assert.Equal(t, exitUsage, run(context.Background(), tt.args, &stdout, &stderr))
			assert.Empty(t, stdout.String())
		})
	}
}

func TestRun_CatalogWorkflow(t *testing.T) {
	_, cfgPath := writeFixture(t, "")

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{
		"-config", cfgPath,
		"-workflow", "double-sum",
		"-input", "param1=5",
		"-input", "param2=10",
	}, &stdout, &stderr)

	require.Equal(t, exitOK, code, stderr.String())
	resp := decodeRun(t, &stdout)
	assert.Equal(t, "completed", resp.Status)
	assert.Equal(t, float64(20), resp.ReturnValue)
	assert.Equal(t, float64(10), resp.Steps["double"].Value)
}

func TestRun_PrintsPlan(t *testing.T) {
	_, cfgPath := writeFixture(t, "")

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{
		"-config", cfgPath,
		"-workflow", "double-sum",
		"-plan",
	}, &stdout, &stderr)

	require.Equal(t, exitOK, code, stderr.String())
	out := stdout.String()
	assert.Contains(t, out, "return sum")
	assert.Contains(t, out, "Layer 0: double")
	assert.Contains(t, out, "Layer 1: sum")
	assert.Contains(t, out, "Critical path: double → sum")
}

func TestRun_WorkflowFileFails(t *testing.T) {
	dir, cfgPath := writeFixture(t, "")
	wfPath := filepath.Join(dir, "broken.yml")
	require.NoError(t, os.WriteFile(wfPath, []byte(brokenYAML), 0o644))

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-config", cfgPath, "-workflow", wfPath}, &stdout, &stderr)

	assert.Equal(t, exitRunFailed, code)
	resp := decodeRun(t, &stdout)
	assert.Equal(t, "failed", resp.Status)
	assert.Contains(t, resp.Error, "kaboom")
}

func TestRun_CancelledContext(t *testing.T) {
	_, cfgPath := writeFixture(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var stdout, stderr bytes.Buffer
	code := run(ctx, []string{"-config", cfgPath, "-workflow", "double-sum", "-input", "param1=1", "-input", "param2=2"}, &stdout, &stderr)

	assert.Equal(t, exitCancelled, code)
	assert.Equal(t, "cancelled", decodeRun(t, &stdout).Status)
}

func TestRun_LedgerRecordsTransitions(t *testing.T) {
	dir := t.TempDir()
	ledgerPath := filepath.Join(dir, "ledger.log")
	_, cfgPath := writeFixture(t, fmt.Sprintf(`ledger:
  enabled: true
  backend: file
  role: cli
  path: %s
`, ledgerPath))

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{
		"-config", cfgPath,
		"-workflow", "double-sum",
		"-input", "param1=1",
		"-input", "param2=2",
	}, &stdout, &stderr)
	require.Equal(t, exitOK, code, stderr.String())
	resp := decodeRun(t, &stdout)

	l, err := ledger.NewFileLedger(ledgerPath, false)
	require.NoError(t, err)
	defer l.Close()
	entries, err := l.Entries(context.Background(), resp.RunID)
	require.NoError(t, err)

	var roles []string
	for _, e := range entries {
		roles = append(roles, e.Role+"="+e.Status)
	}
	assert.Equal(t, []string{
		"cli.double=" + ledger.StatusActive,
		"cli.double=" + ledger.StatusComplete,
		"cli.sum=" + ledger.StatusActive,
		"cli.sum=" + ledger.StatusComplete,
	}, roles)
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestRuntime_Serve(t *testing.T) {
	_, cfgPath := writeFixture(t, "")
	cfg, err := config.Load(cfgPath, map[string]interface{}{
		"server.host": "127.0.0.1",
		"server.port": freePort(t),
	})
	require.NoError(t, err)

	log := logger.New(&logger.Config{Level: logger.ErrorLevel, Output: "discard"})
	rt, err := newRuntime(context.Background(), cfg, log)
	require.NoError(t, err)
	defer rt.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- rt.serve(ctx, "", nil) }()

	base := "http://" + cfg.Server.Address()
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/health")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 3*time.Second, 20*time.Millisecond)

	resp, err := http.Post(base+"/runs/double-sum", "application/json", strings.NewReader(`{"inputs":{"param1":2,"param2":3}}`))
	require.NoError(t, err)
	var runResp models.RunResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&runResp))
	_ = resp.Body.Close()
	assert.Equal(t, "completed", runResp.Status)
	assert.Equal(t, float64(7), runResp.ReturnValue)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop")
	}
}

func TestRuntime_ApplyReload(t *testing.T) {
	_, cfgPath := writeFixture(t, "")
	cfg, err := config.Load(cfgPath, nil)
	require.NoError(t, err)

	log := logger.New(&logger.Config{Level: logger.ErrorLevel, Output: "discard"})
	rt, err := newRuntime(context.Background(), cfg, log)
	require.NoError(t, err)
	defer rt.Close()

	next, err := config.Load(cfgPath, map[string]interface{}{
		"log.level":                     "debug",
		"executor.max_concurrency":      1,
		"executor.timeout":              5 * time.Second,
		"executor.default_step_timeout": 2 * time.Second,
		"server.rate_limit":             0.0,
	})
	require.NoError(t, err)

	rt.applyReload(next)

	got := rt.runner.Settings()
	assert.Equal(t, 1, got.MaxConcurrency)
	assert.Equal(t, 5*time.Second, got.RunTimeout)
	assert.Equal(t, 2*time.Second, got.DefaultStepTimeout)
	assert.Equal(t, logger.DebugLevel, log.GetLevel())
	for i := 0; i < 500; i++ {
		ok, _ := rt.limiter.Allow("client")
		require.True(t, ok)
	}
}
