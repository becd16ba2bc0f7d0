package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"gopkg.in/yaml.v3"

	"github.com/goclaw/reactor/config"
	"github.com/goclaw/reactor/pkg/api/models"
	"github.com/goclaw/reactor/pkg/logger"
	"github.com/goclaw/reactor/pkg/reactor"
	"github.com/goclaw/reactor/pkg/version"
	"github.com/goclaw/reactor/pkg/workflow"
)

// Exit codes.
const (
	exitOK        = 0
	exitRunFailed = 1
	exitUsage     = 2
	exitCancelled = 3
)

// inputFlags collects repeated -input name=value pairs.
type inputFlags map[string]any

func (f inputFlags) String() string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ",")
}

// Set parses name=value. The value is read as a YAML scalar so numbers and
// booleans keep their type.
func (f inputFlags) Set(s string) error {
	name, raw, ok := strings.Cut(s, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return fmt.Errorf("input %q must be name=value", s)
	}
	var value any
	if err := yaml.Unmarshal([]byte(raw), &value); err != nil || value == nil {
		value = raw
	}
	f[name] = value
	return nil
}

type options struct {
	configPath string
	workflow   string
	inputs     inputFlags
	serve      bool
	plan       bool
	version    bool
	logLevel   string
	port       int
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	opts := &options{inputs: inputFlags{}}
	fs := flag.NewFlagSet("reactor", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configPath, "config", "", "Path to configuration file")
	fs.StringVar(&opts.workflow, "workflow", "", "Workflow name from the catalog, or a path to a definition file")
	fs.Var(opts.inputs, "input", "Workflow input as name=value (repeatable)")
	fs.BoolVar(&opts.serve, "serve", false, "Serve the HTTP API")
	fs.BoolVar(&opts.plan, "plan", false, "Print the workflow's schedule plan instead of running it")
	fs.BoolVar(&opts.version, "version", false, "Print version information")
	fs.StringVar(&opts.logLevel, "log-level", "", "Override log level")
	fs.IntVar(&opts.port, "port", 0, "Override server port")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: reactor [options]\n\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  reactor -workflow double-sum -input param1=5 -input param2=10\n")
		fmt.Fprintf(stderr, "  reactor -workflow ./workflows/orders.yaml -input order=42\n")
		fmt.Fprintf(stderr, "  reactor -workflow double-sum -plan\n")
		fmt.Fprintf(stderr, "  reactor -config reactor.yaml -serve\n")
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return opts, nil
}

func (o *options) overrides() map[string]interface{} {
	overrides := make(map[string]interface{})
	if o.logLevel != "" {
		overrides["log.level"] = o.logLevel
	}
	if o.port != 0 {
		overrides["server.port"] = o.port
	}
	return overrides
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	if opts.version {
		fmt.Fprintln(stdout, version.Get().String())
		return exitOK
	}

	overrides := opts.overrides()
	loader := config.NewLoader()
	cfg, err := loader.Load(opts.configPath, overrides)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load configuration:\n%s\n", err)
		return exitUsage
	}

	logCfg := &logger.Config{
		Level:  logger.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	}
	if cfg.App.Debug {
		logCfg.Level = logger.DebugLevel
	}
	log := logger.New(logCfg)
	logger.SetGlobal(log)
	defer log.Close()

	log.Debug("Configuration loaded", "config", cfg.String())

	rt, err := newRuntime(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to initialize runtime", "error", err)
		fmt.Fprintf(stderr, "reactor: %v\n", err)
		return exitUsage
	}
	defer rt.Close()

	if opts.serve || cfg.Server.Enabled {
		if err := rt.serve(ctx, loader.Source(), overrides); err != nil {
			log.Error("Server stopped with error", "error", err)
			return exitRunFailed
		}
		return exitOK
	}

	if opts.workflow == "" {
		fmt.Fprintln(stderr, "reactor: -workflow or -serve is required")
		return exitUsage
	}
	wf, err := resolveWorkflow(rt.catalog, opts.workflow)
	if err != nil {
		fmt.Fprintf(stderr, "reactor: %v\n", err)
		return exitUsage
	}

	if opts.plan {
		fmt.Fprint(stdout, wf.Plan().String())
		return exitOK
	}

	result := rt.runner.Execute(ctx, wf, opts.inputs)
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(models.FromResult(result)); err != nil {
		fmt.Fprintf(stderr, "reactor: encode result: %v\n", err)
		return exitRunFailed
	}

	switch result.Status {
	case reactor.StatusCompleted:
		return exitOK
	case reactor.StatusCancelled:
		return exitCancelled
	default:
		return exitRunFailed
	}
}

// resolveWorkflow looks ref up in the catalog, or loads it as a definition
// file when it names a YAML file.
func resolveWorkflow(catalog *workflow.Catalog, ref string) (*reactor.Workflow, error) {
	if wf, ok := catalog.Get(ref); ok {
		return wf, nil
	}
	ext := strings.ToLower(filepath.Ext(ref))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("unknown workflow %q (loaded: %s)", ref, strings.Join(catalog.Names(), ", "))
	}
	def, err := workflow.LoadFile(ref)
	if err != nil {
		return nil, err
	}
	return workflow.Build(def, workflow.DefaultRegistry())
}
