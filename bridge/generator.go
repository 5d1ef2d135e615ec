package bridge

import (
	"bytes"
	"context"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// GeneratorConfig supplies dependencies for Generator.
type GeneratorConfig struct {
	Engine      Engine
	Logger      Logger
	Concurrency int
	Now         func() time.Time
	IDGenerator func() string
}

// Generator turns templates and input sets into documents by way of an
// external renderer. It holds no mutable state and is safe for concurrent use.
type Generator struct {
	engine      Engine
	logger      Logger
	concurrency int
	now         func() time.Time
	idGenerator func() string
}

// NewGenerator creates a Generator with the provided configuration.
func NewGenerator(cfg GeneratorConfig) (*Generator, error) {
	if cfg.Engine == nil {
		return nil, NewError(KindValidation, "generator requires engine", nil)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = NopLogger{}
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}
	nowFn := cfg.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	idGen := cfg.IDGenerator
	if idGen == nil {
		idGen = uuid.NewString
	}

	return &Generator{
		engine:      cfg.Engine,
		logger:      logger,
		concurrency: concurrency,
		now:         nowFn,
		idGenerator: idGen,
	}, nil
}

// Rendition is a generated document together with the identifiers logged
// for it.
type Rendition struct {
	RequestID    string
	TemplateHash string
	Document     []byte
	Duration     time.Duration
}

// Generate renders one document. Failures are always *Error values.
func (g *Generator) Generate(ctx context.Context, tpl Template, inputs InputSet) ([]byte, error) {
	rendition, err := g.Render(ctx, Request{Template: tpl, Inputs: inputs})
	if err != nil {
		return nil, err
	}
	return rendition.Document, nil
}

// Render renders the document described by req and reports the request id
// and template hash used in its log lines.
func (g *Generator) Render(ctx context.Context, req Request) (Rendition, error) {
	if g == nil || g.engine == nil {
		return Rendition{}, NewError(KindValidation, "generator is not configured", nil)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	id := g.idGenerator()
	started := g.now()

	payload, err := Marshal(req.Template, req.Inputs)
	if err != nil {
		g.logger.Errorf("pdf generation %s rejected: %v", id, err)
		return Rendition{RequestID: id}, err
	}
	templateHash := HashTemplate(payload.Template)
	g.logger.Debugf("pdf generation %s started template=%s inputs=%d", id, templateHash, len(req.Inputs))

	doc, err := g.engine.Render(ctx, payload)
	if err == nil && len(doc) == 0 {
		err = NewInvocationError("renderer produced no output", 0, "", nil)
	}
	duration := g.now().Sub(started)
	if err != nil {
		err = normalizeError(err)
		g.logger.Errorf("pdf generation %s failed template=%s kind=%s exit=%d duration=%s: %v",
			id, templateHash, KindFromError(err), exitCode(err), duration, err)
		return Rendition{RequestID: id, TemplateHash: templateHash}, err
	}

	g.logger.Infof("pdf generation %s completed template=%s inputs=%d bytes=%d duration=%s",
		id, templateHash, len(req.Inputs), len(doc), duration)
	return Rendition{
		RequestID:    id,
		TemplateHash: templateHash,
		Document:     doc,
		Duration:     duration,
	}, nil
}

// GenerateRequest renders the document described by req.
func (g *Generator) GenerateRequest(ctx context.Context, req Request) ([]byte, error) {
	return g.Generate(ctx, req.Template, req.Inputs)
}

// GenerateToPath renders one document and writes it atomically to path.
// Nothing is written when generation fails.
func (g *Generator) GenerateToPath(ctx context.Context, tpl Template, inputs InputSet, path string) error {
	doc, err := g.Generate(ctx, tpl, inputs)
	if err != nil {
		return err
	}
	if _, err := WriteFile(ctx, path, bytes.NewReader(doc), DefaultFileMode); err != nil {
		g.logger.Errorf("pdf write to %s failed: %v", path, err)
		return err
	}
	return nil
}

// GenerateAll renders independent requests concurrently, each in its own
// renderer process. Results keep the order of reqs; a failed request never
// cancels its siblings.
func (g *Generator) GenerateAll(ctx context.Context, reqs []Request) []Result {
	results := make([]Result, len(reqs))
	if len(reqs) == 0 {
		return results
	}
	if g == nil || g.engine == nil {
		for i := range results {
			results[i] = Result{Err: NewError(KindValidation, "generator is not configured", nil)}
		}
		return results
	}

	var group errgroup.Group
	group.SetLimit(g.concurrency)
	for i, req := range reqs {
		group.Go(func() error {
			doc, err := g.GenerateRequest(ctx, req)
			results[i] = Result{Document: doc, Err: err}
			return nil
		})
	}
	_ = group.Wait()
	return results
}
