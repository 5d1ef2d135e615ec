package command

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	gcmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-pdfbridge/bridge"
)

// BatchItem pairs a request with the file its document is written to.
type BatchItem struct {
	Request bridge.Request `json:"request"`
	Output  string         `json:"output"`
}

// BatchLoader loads batch items from a source.
type BatchLoader func(ctx context.Context) ([]BatchItem, error)

// BatchGenerator renders independent requests together.
type BatchGenerator interface {
	GenerateAll(ctx context.Context, reqs []bridge.Request) []bridge.Result
}

// BatchLimits bounds batch execution. Batches over MaxRequests are rejected
// whole.
type BatchLimits struct {
	MaxRequests int
}

// BatchFailure reports one failed batch item.
type BatchFailure struct {
	Index  int
	Output string
	Err    error
}

// BatchReport summarizes a batch run.
type BatchReport struct {
	Succeeded int
	Failures  []BatchFailure
}

// BatchCommand wires CLI/Cron execution for document batches.
type BatchCommand struct {
	generator  BatchGenerator
	loader     BatchLoader
	cliConfig  gcmd.CLIConfig
	cronConfig gcmd.HandlerConfig
	limits     BatchLimits
}

// BatchOption customizes batch commands.
type BatchOption func(*BatchCommand)

// WithBatchCLIConfig overrides CLI configuration.
func WithBatchCLIConfig(cfg gcmd.CLIConfig) BatchOption {
	return func(cmd *BatchCommand) {
		cmd.cliConfig = cfg
	}
}

// WithBatchCronConfig overrides cron configuration.
func WithBatchCronConfig(cfg gcmd.HandlerConfig) BatchOption {
	return func(cmd *BatchCommand) {
		cmd.cronConfig = cfg
	}
}

// WithBatchLimits overrides batch execution limits.
func WithBatchLimits(limits BatchLimits) BatchOption {
	return func(cmd *BatchCommand) {
		cmd.limits = limits
	}
}

// WithBatchLoader sets the loader used when no batch file is given.
func WithBatchLoader(loader BatchLoader) BatchOption {
	return func(cmd *BatchCommand) {
		cmd.loader = loader
	}
}

// NewBatchCommand creates a CLI/Cron command that renders a batch of
// requests concurrently and writes each document to its output file.
func NewBatchCommand(generator BatchGenerator, loader BatchLoader, opts ...BatchOption) *BatchCommand {
	cmd := &BatchCommand{
		generator: generator,
		loader:    loader,
		cliConfig: gcmd.CLIConfig{
			Path:        []string{"pdf-batch"},
			Description: "Render a batch of pdfme documents",
			Group:       "pdf",
		},
		cronConfig: gcmd.HandlerConfig{Expression: "0 0 * * *"},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cmd)
		}
	}
	return cmd
}

// CronHandler renders the batch provided by the loader.
func (c *BatchCommand) CronHandler() func() error {
	return func() error {
		_, err := c.Run(context.Background(), "")
		return err
	}
}

// CronOptions returns cron configuration.
func (c *BatchCommand) CronOptions() gcmd.HandlerConfig {
	if c == nil {
		return gcmd.HandlerConfig{}
	}
	return c.cronConfig
}

// CLIHandler exposes the CLI handler.
func (c *BatchCommand) CLIHandler() any {
	return &batchCLI{cmd: c}
}

// CLIOptions returns CLI configuration.
func (c *BatchCommand) CLIOptions() gcmd.CLIConfig {
	if c == nil {
		return gcmd.CLIConfig{}
	}
	return c.cliConfig
}

// Run renders the batch read from the file at from, or from the loader when
// from is empty. Items fail independently; the returned error summarizes
// any failures listed in the report.
func (c *BatchCommand) Run(ctx context.Context, from string) (BatchReport, error) {
	if c == nil {
		return BatchReport{}, errors.New("batch command is nil", errors.CategoryInternal).
			WithTextCode("BATCH_CMD_NIL")
	}
	if c.generator == nil {
		return BatchReport{}, errors.New("batch generator is required", errors.CategoryValidation).
			WithTextCode("GENERATOR_REQUIRED")
	}

	items, err := c.loadItems(ctx, from)
	if err != nil {
		return BatchReport{}, err
	}
	if c.limits.MaxRequests > 0 && len(items) > c.limits.MaxRequests {
		return BatchReport{}, errors.New(fmt.Sprintf("batch has %d items, limit is %d", len(items), c.limits.MaxRequests), errors.CategoryValidation).
			WithTextCode("BATCH_TOO_LARGE")
	}
	for i, item := range items {
		if strings.TrimSpace(item.Output) == "" {
			return BatchReport{}, errors.New(fmt.Sprintf("batch item %d has no output path", i), errors.CategoryValidation).
				WithTextCode("BATCH_OUTPUT_REQUIRED")
		}
	}

	reqs := make([]bridge.Request, len(items))
	for i, item := range items {
		reqs[i] = item.Request
	}

	var report BatchReport
	for i, result := range c.generator.GenerateAll(ctx, reqs) {
		err := result.Err
		if err == nil {
			_, err = bridge.WriteFile(ctx, items[i].Output, bytes.NewReader(result.Document), bridge.DefaultFileMode)
		}
		if err != nil {
			report.Failures = append(report.Failures, BatchFailure{Index: i, Output: items[i].Output, Err: err})
			continue
		}
		report.Succeeded++
	}

	if len(report.Failures) > 0 {
		first := report.Failures[0]
		return report, errors.Wrap(first.Err, errors.CategoryOperation,
			fmt.Sprintf("%d of %d batch documents failed", len(report.Failures), len(items))).
			WithTextCode("BATCH_FAILED")
	}
	return report, nil
}

func (c *BatchCommand) loadItems(ctx context.Context, from string) ([]BatchItem, error) {
	if strings.TrimSpace(from) != "" {
		return loadBatchItemsFromFile(from)
	}
	if c.loader == nil {
		return nil, errors.New("batch loader not configured", errors.CategoryValidation).
			WithTextCode("LOADER_REQUIRED")
	}
	return c.loader(ctx)
}

type batchCLI struct {
	cmd  *BatchCommand
	From string `kong:"name='from',help='Path to a JSON file of {request, output} items'"`
}

func (c *batchCLI) Run() error {
	if c == nil || c.cmd == nil {
		return errors.New("batch command is required", errors.CategoryInternal).
			WithTextCode("BATCH_CMD_NIL")
	}
	_, err := c.cmd.Run(context.Background(), c.From)
	return err
}

func loadBatchItemsFromFile(path string) ([]BatchItem, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryExternal, "read batch file failed").
			WithTextCode("BATCH_FILE_READ")
	}

	var items []BatchItem
	if err := json.Unmarshal(content, &items); err != nil {
		return nil, errors.Wrap(err, errors.CategoryValidation, "batch file invalid JSON").
			WithTextCode("BATCH_FILE_INVALID")
	}
	return items, nil
}
