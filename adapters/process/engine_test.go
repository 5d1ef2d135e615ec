package bridgeprocess

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/goliatone/go-pdfbridge/bridge"
)

func scenarioTemplate() bridge.Template {
	return bridge.Template{
		Schemas: []bridge.Schema{
			{
				"text": map[string]any{
					"type":     "text",
					"position": map[string]any{"x": 0, "y": 0},
					"width":    100,
					"height":   20,
				},
			},
		},
	}
}

func scenarioInputs() bridge.InputSet {
	return bridge.InputSet{{"text": "Test PDF"}}
}

func testPayload(t *testing.T) bridge.Payload {
	t.Helper()
	payload, err := bridge.Marshal(scenarioTemplate(), scenarioInputs())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return payload
}

func newHelperEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	engine, err := New(cfg)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return engine
}

func bridgeError(t *testing.T, err error) *bridge.Error {
	t.Helper()
	var bridgeErr *bridge.Error
	if !errors.As(err, &bridgeErr) {
		t.Fatalf("expected *bridge.Error, got %T: %v", err, err)
	}
	return bridgeErr
}

func TestNew_ScriptUsesNodeRuntime(t *testing.T) {
	engine := newHelperEngine(t, Config{RendererPath: "dist/index.js"})
	if !filepath.IsAbs(engine.RendererPath()) {
		t.Fatalf("expected absolute renderer path, got %q", engine.RendererPath())
	}

	name, args := engine.commandLine(bridge.Payload{Template: `{"schemas":[]}`, Inputs: `[]`})
	if name != DefaultRuntime {
		t.Fatalf("expected runtime %q, got %q", DefaultRuntime, name)
	}
	want := []string{engine.RendererPath(), TemplateFlag, `{"schemas":[]}`, InputsFlag, `[]`}
	if diff := cmp.Diff(want, args); diff != "" {
		t.Fatalf("unexpected args (-want +got):\n%s", diff)
	}
}

func TestNew_ExecutableRunsDirectly(t *testing.T) {
	engine := newHelperEngine(t, Config{RendererPath: "pdfme-render", Args: []string{"--quiet"}})
	name, args := engine.commandLine(bridge.Payload{Template: "{}", Inputs: "[]"})
	if name != "pdfme-render" {
		t.Fatalf("expected bare command to be kept for PATH lookup, got %q", name)
	}
	want := []string{"--quiet", TemplateFlag, "{}", InputsFlag, "[]"}
	if diff := cmp.Diff(want, args); diff != "" {
		t.Fatalf("unexpected args (-want +got):\n%s", diff)
	}
}

func TestNew_DefaultRendererPath(t *testing.T) {
	engine := newHelperEngine(t, Config{})
	if !strings.HasSuffix(engine.RendererPath(), filepath.Join("dist", "index.js")) {
		t.Fatalf("expected default renderer path under dist/, got %q", engine.RendererPath())
	}
	if engine.timeout != DefaultTimeout {
		t.Fatalf("expected default timeout, got %s", engine.timeout)
	}
	if engine.maxOutput != DefaultMaxOutputBytes {
		t.Fatalf("expected default output limit, got %d", engine.maxOutput)
	}
}

func TestNew_NegativeTimeoutDisablesLimit(t *testing.T) {
	engine := newHelperEngine(t, Config{RendererPath: "renderer", Timeout: -1})
	if engine.timeout != 0 {
		t.Fatalf("expected no timeout, got %s", engine.timeout)
	}
}

func TestEngine_Render_PDF(t *testing.T) {
	engine := newHelperEngine(t, helperConfig("pdf"))
	doc, err := engine.Render(context.Background(), testPayload(t))
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !bytes.HasPrefix(doc, []byte("%PDF-")) {
		t.Fatalf("expected pdf header, got %q", doc)
	}
}

func TestEngine_Render_KeepsArgumentBoundaries(t *testing.T) {
	engine := newHelperEngine(t, helperConfig("echo"))
	payload := bridge.Payload{
		Template: `{"basePdf":"","schemas":[{"note":{"content":"a b  \"quoted\" 'single'\nline two ñ 日本"}}]}`,
		Inputs:   `[{"note":"--inputs -- $HOME; rm -rf / \\ end"}]`,
	}

	out, err := engine.Render(context.Background(), payload)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	var got []string
	if err := json.Unmarshal(out, &got); err != nil {
		t.Fatalf("decode echoed args: %v (%q)", err, out)
	}
	want := []string{TemplateFlag, payload.Template, InputsFlag, payload.Inputs}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("argument boundaries changed (-want +got):\n%s", diff)
	}
}

func TestEngine_Render_LargeOutputDoesNotDeadlock(t *testing.T) {
	const size = 8 << 20
	cfg := helperConfig("large", helperSizeEnv+"=8388608")
	cfg.Timeout = 30 * time.Second
	engine := newHelperEngine(t, cfg)

	doc, err := engine.Render(context.Background(), testPayload(t))
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(doc) != len("%PDF-1.7\n")+size {
		t.Fatalf("expected %d bytes, got %d", len("%PDF-1.7\n")+size, len(doc))
	}
}

func TestEngine_Render_OutputLimit(t *testing.T) {
	cfg := helperConfig("large", helperSizeEnv+"=1048576")
	cfg.MaxOutputBytes = 64 << 10
	engine := newHelperEngine(t, cfg)

	_, err := engine.Render(context.Background(), testPayload(t))
	bridgeErr := bridgeError(t, err)
	if bridgeErr.Kind != bridge.KindInvocation {
		t.Fatalf("expected invocation error, got %s", bridgeErr.Kind)
	}
	if !strings.Contains(bridgeErr.Msg, "exceeded") {
		t.Fatalf("expected output limit message, got %q", bridgeErr.Msg)
	}
}

func TestEngine_Render_NonZeroExit(t *testing.T) {
	engine := newHelperEngine(t, helperConfig("fail"))

	_, err := engine.Render(context.Background(), testPayload(t))
	bridgeErr := bridgeError(t, err)
	if bridgeErr.Kind != bridge.KindInvocation {
		t.Fatalf("expected invocation error, got %s", bridgeErr.Kind)
	}
	if bridgeErr.ExitCode != 3 {
		t.Fatalf("expected exit code 3, got %d", bridgeErr.ExitCode)
	}
	if !strings.Contains(bridgeErr.Stderr, "field text is not defined") {
		t.Fatalf("expected stderr diagnostics, got %q", bridgeErr.Stderr)
	}
	if !bridge.IsCallerFault(err) {
		t.Fatalf("expected renderer-reported failure to be attributed to the request")
	}
}

func TestEngine_Render_StderrKeepsTail(t *testing.T) {
	cfg := helperConfig("stderr-flood")
	cfg.MaxStderrBytes = 1024
	engine := newHelperEngine(t, cfg)

	_, err := engine.Render(context.Background(), testPayload(t))
	bridgeErr := bridgeError(t, err)
	if bridgeErr.ExitCode != 2 {
		t.Fatalf("expected exit code 2, got %d", bridgeErr.ExitCode)
	}
	if len(bridgeErr.Stderr) > 1024+len("...") {
		t.Fatalf("expected stderr to be capped, got %d bytes", len(bridgeErr.Stderr))
	}
	if !strings.HasSuffix(bridgeErr.Stderr, "last line") {
		t.Fatalf("expected stderr tail to be kept, got %q", bridgeErr.Stderr[len(bridgeErr.Stderr)-20:])
	}
}

func TestEngine_Render_EmptyOutput(t *testing.T) {
	engine := newHelperEngine(t, helperConfig("empty"))

	_, err := engine.Render(context.Background(), testPayload(t))
	bridgeErr := bridgeError(t, err)
	if bridgeErr.Kind != bridge.KindInvocation {
		t.Fatalf("expected invocation error, got %s", bridgeErr.Kind)
	}
	if bridgeErr.ExitCode != 0 {
		t.Fatalf("expected exit code 0, got %d", bridgeErr.ExitCode)
	}
}

func TestEngine_Render_MissingRenderer(t *testing.T) {
	engine := newHelperEngine(t, Config{RendererPath: filepath.Join(t.TempDir(), "missing-renderer")})

	_, err := engine.Render(context.Background(), testPayload(t))
	bridgeErr := bridgeError(t, err)
	if bridgeErr.Kind != bridge.KindInvocation {
		t.Fatalf("expected invocation error, got %s", bridgeErr.Kind)
	}
	if bridgeErr.ExitCode != bridge.NoExitCode {
		t.Fatalf("expected no exit code, got %d", bridgeErr.ExitCode)
	}
	if bridge.IsCallerFault(err) {
		t.Fatalf("expected start failure to be operational")
	}
}

func TestEngine_Render_SuccessLeavesProcessGroupAlone(t *testing.T) {
	var stopped []int
	stopGroup = func(pid int) { stopped = append(stopped, pid) }
	t.Cleanup(func() { stopGroup = stopProcessGroup })

	engine := newHelperEngine(t, helperConfig("pdf"))
	if _, err := engine.Render(context.Background(), testPayload(t)); err != nil {
		t.Fatalf("render: %v", err)
	}
	if _, err := engine.Render(context.Background(), bridge.Payload{Template: "{}", Inputs: "[]"}); err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(stopped) != 0 {
		t.Fatalf("expected no group kill after a clean exit, got %v", stopped)
	}
}

func TestEngine_Render_MissingRendererScript(t *testing.T) {
	script := filepath.Join(t.TempDir(), "dist", "index.js")
	engine := newHelperEngine(t, Config{RendererPath: script})

	_, err := engine.Render(context.Background(), testPayload(t))
	bridgeErr := bridgeError(t, err)
	if bridgeErr.Kind != bridge.KindInvocation {
		t.Fatalf("expected invocation error, got %s", bridgeErr.Kind)
	}
	if bridgeErr.ExitCode != bridge.NoExitCode {
		t.Fatalf("expected no exit code, got %d", bridgeErr.ExitCode)
	}
	if bridge.IsCallerFault(err) {
		t.Fatalf("expected missing renderer script to be operational, got %v", err)
	}
	if !strings.Contains(err.Error(), script) {
		t.Fatalf("expected renderer path in error, got %v", err)
	}
}

func TestEngine_Render_Timeout(t *testing.T) {
	const timeout = 300 * time.Millisecond
	cfg := helperConfig("sleep")
	cfg.Timeout = timeout
	engine := newHelperEngine(t, cfg)

	started := time.Now()
	_, err := engine.Render(context.Background(), testPayload(t))
	elapsed := time.Since(started)

	if bridge.KindFromError(err) != bridge.KindTimeout {
		t.Fatalf("expected timeout, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded in chain, got %v", err)
	}
	if elapsed > timeout+5*time.Second {
		t.Fatalf("timeout took too long: %s", elapsed)
	}
}

func TestEngine_Render_CallerDeadline(t *testing.T) {
	cfg := helperConfig("sleep")
	cfg.Timeout = -1
	engine := newHelperEngine(t, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	_, err := engine.Render(ctx, testPayload(t))
	if bridge.KindFromError(err) != bridge.KindTimeout {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestEngine_Render_CanceledBeforeStart(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "renderer.pid")
	engine := newHelperEngine(t, helperConfig("pdf", helperPIDFileEnv+"="+pidFile))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Render(ctx, testPayload(t))
	if bridge.KindFromError(err) != bridge.KindCanceled {
		t.Fatalf("expected canceled, got %v", err)
	}
	if _, err := pollPID(pidFile, 50*time.Millisecond); err == nil {
		t.Fatalf("expected renderer not to be started")
	}
}
