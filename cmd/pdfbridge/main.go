package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goliatone/go-command/dispatcher"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	bridgeprocess "github.com/goliatone/go-pdfbridge/adapters/process"
	storefs "github.com/goliatone/go-pdfbridge/adapters/store/fs"
	"github.com/goliatone/go-pdfbridge/bridge"
	"github.com/goliatone/go-pdfbridge/command"
	"github.com/goliatone/go-pdfbridge/config"
	"github.com/goliatone/go-pdfbridge/internal/logging"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

type options struct {
	templatePath string
	inputsPath   string
	outputPath   string
	artifactKey  string
	batchPath    string
	configPath   string
	rendererPath string
	runtime      string
	storeRoot    string
	logLevel     string
	logFormat    string
	timeout      time.Duration
	concurrency  int
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	var opts options
	flags := pflag.NewFlagSet("pdfbridge", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.StringVarP(&opts.templatePath, "template", "t", "", "Template JSON file")
	flags.StringVarP(&opts.inputsPath, "inputs", "i", "", "Inputs JSON file (a list of records)")
	flags.StringVarP(&opts.outputPath, "output", "o", "", "Output PDF file (stdout when empty or -)")
	flags.StringVar(&opts.artifactKey, "key", "", "Store the document under this key in the store root")
	flags.StringVar(&opts.batchPath, "batch", "", "JSON file of {request, output} items rendered concurrently")
	flags.StringVarP(&opts.configPath, "config", "c", "", "Configuration file (yaml)")
	flags.StringVar(&opts.rendererPath, "renderer", "", "Renderer script or executable")
	flags.StringVar(&opts.runtime, "runtime", "", "Runtime used to run the renderer script")
	flags.StringVar(&opts.storeRoot, "store", "", "Document store root directory")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level: debug|info|warn|error")
	flags.StringVar(&opts.logFormat, "log-format", "", "Log format: console|json")
	flags.DurationVar(&opts.timeout, "timeout", 0, "Renderer timeout (negative disables)")
	flags.IntVar(&opts.concurrency, "concurrency", 0, "Concurrent renderer processes for batches")
	flags.Usage = func() {
		fmt.Fprintln(stderr, "Usage: pdfbridge --template FILE --inputs FILE [--output FILE | --key KEY]")
		fmt.Fprintln(stderr, "       pdfbridge --batch FILE")
		fmt.Fprintln(stderr, "\nFlags:")
		flags.PrintDefaults()
	}

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if opts.batchPath == "" && (opts.templatePath == "" || opts.inputsPath == "") {
		fmt.Fprintln(stderr, "either --batch or both --template and --inputs are required")
		flags.Usage()
		return exitUsage
	}
	if opts.outputPath != "" && opts.outputPath != "-" && opts.artifactKey != "" {
		fmt.Fprintln(stderr, "--output and --key are mutually exclusive")
		return exitUsage
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "load config: %v\n", err)
		return exitFailure
	}
	applyFlags(flags, &opts, cfg)

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(stderr, "init logger: %v\n", err)
		return exitFailure
	}
	defer func() { _ = logger.Sync() }()
	bridgeLogger := logging.Bridge(logger)

	engine, err := bridgeprocess.New(cfg.EngineConfig(bridgeLogger))
	if err != nil {
		logger.Error("configure renderer", zap.Error(err))
		return exitFailure
	}
	gen, err := bridge.NewGenerator(bridge.GeneratorConfig{
		Engine:      engine,
		Logger:      bridgeLogger,
		Concurrency: cfg.Generator.Concurrency,
	})
	if err != nil {
		logger.Error("configure generator", zap.Error(err))
		return exitFailure
	}

	var store bridge.ArtifactStore
	if cfg.Store.Root != "" {
		store = storefs.NewStore(cfg.Store.Root)
	}
	limits := command.WithBatchLimits(command.BatchLimits{MaxRequests: cfg.Generator.MaxRequests})

	if opts.batchPath != "" {
		report, err := command.NewBatchCommand(gen, nil, limits).Run(ctx, opts.batchPath)
		for _, failure := range report.Failures {
			logger.Error("batch item failed",
				zap.Int("index", failure.Index),
				zap.String("output", failure.Output),
				zap.Error(failure.Err))
		}
		if err != nil {
			logger.Error("batch failed", zap.Int("succeeded", report.Succeeded), zap.Error(err))
			return exitFailure
		}
		logger.Info("batch completed", zap.Int("documents", report.Succeeded))
		return exitOK
	}

	subs, err := command.RegisterHandlers(nil, gen, store, limits)
	if err != nil {
		logger.Error("register handlers", zap.Error(err))
		return exitFailure
	}
	defer func() {
		for _, sub := range subs {
			sub.Unsubscribe()
		}
	}()

	req, err := readRequest(opts.templatePath, opts.inputsPath)
	if err != nil {
		logger.Error("read request", zap.Error(err))
		return exitFailure
	}

	msg := command.GenerateDocument{Request: req, ArtifactKey: opts.artifactKey}
	if opts.outputPath != "-" {
		msg.OutputPath = opts.outputPath
	}
	result, err := dispatcher.DispatchWithResult[command.GenerateDocument, command.GenerateResult](ctx, msg)
	if err != nil {
		logger.Error("generate document", zap.Error(err))
		return exitFailure
	}

	if result.Document != nil {
		if _, err := stdout.Write(result.Document); err != nil {
			logger.Error("write document", zap.Error(err))
			return exitFailure
		}
	}
	return exitOK
}

// applyFlags lets explicitly set flags override loaded configuration.
func applyFlags(flags *pflag.FlagSet, opts *options, cfg *config.Config) {
	if flags.Changed("renderer") {
		cfg.Renderer.Path = opts.rendererPath
	}
	if flags.Changed("runtime") {
		cfg.Renderer.Runtime = opts.runtime
	}
	if flags.Changed("timeout") {
		cfg.Renderer.Timeout = opts.timeout
	}
	if flags.Changed("concurrency") {
		cfg.Generator.Concurrency = opts.concurrency
	}
	if flags.Changed("store") {
		cfg.Store.Root = opts.storeRoot
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = opts.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = opts.logFormat
	}
}

func readRequest(templatePath, inputsPath string) (bridge.Request, error) {
	var req bridge.Request
	content, err := os.ReadFile(templatePath)
	if err != nil {
		return req, fmt.Errorf("read template: %w", err)
	}
	if err := json.Unmarshal(content, &req.Template); err != nil {
		return req, fmt.Errorf("decode template %s: %w", templatePath, err)
	}
	content, err = os.ReadFile(inputsPath)
	if err != nil {
		return req, fmt.Errorf("read inputs: %w", err)
	}
	if err := json.Unmarshal(content, &req.Inputs); err != nil {
		return req, fmt.Errorf("decode inputs %s: %w", inputsPath, err)
	}
	return req, nil
}
