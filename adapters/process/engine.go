package bridgeprocess

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/goliatone/go-pdfbridge/bridge"
)

const (
	// DefaultRuntime runs renderer scripts.
	DefaultRuntime = "node"
	// DefaultTimeout bounds a single renderer invocation.
	DefaultTimeout = 60 * time.Second
	// DefaultMaxOutputBytes caps the captured document size.
	DefaultMaxOutputBytes int64 = 256 << 20
	// DefaultMaxStderrBytes caps the captured diagnostic tail.
	DefaultMaxStderrBytes int64 = 64 << 10
	// DefaultKillGrace bounds waiting on pipes after the renderer is stopped.
	DefaultKillGrace = 2 * time.Second

	TemplateFlag = "--template"
	InputsFlag   = "--inputs"
)

var (
	stopGroup = stopProcessGroup

	errRendererTimeout = errors.New("renderer timeout elapsed")
	errOutputLimit     = errors.New("renderer output limit exceeded")
)

// Config configures the renderer process. A zero Timeout selects
// DefaultTimeout and a negative one disables it; the same applies to the
// byte limits.
type Config struct {
	RendererPath   string
	Runtime        string
	Args           []string
	Env            []string
	Dir            string
	Timeout        time.Duration
	MaxOutputBytes int64
	MaxStderrBytes int64
	KillGrace      time.Duration
	Logger         bridge.Logger
}

// Engine invokes the external renderer once per Render call. Its
// configuration is fixed at construction and shared read-only.
type Engine struct {
	command   string
	runtime   string
	args      []string
	env       []string
	dir       string
	timeout   time.Duration
	maxOutput int64
	maxStderr int64
	killGrace time.Duration
	logger    bridge.Logger
}

// DefaultRendererPath locates the renderer bundle relative to the running
// executable: <exe dir>/../dist/index.js.
func DefaultRendererPath() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Join(filepath.Dir(exe), "..", "dist", "index.js"), nil
}

// New resolves the renderer location once and returns an Engine.
func New(cfg Config) (*Engine, error) {
	command := strings.TrimSpace(cfg.RendererPath)
	if command == "" {
		path, err := DefaultRendererPath()
		if err != nil {
			return nil, bridge.NewError(bridge.KindValidation, "resolve default renderer path failed", err)
		}
		command = path
	}
	if strings.ContainsRune(command, filepath.Separator) || strings.ContainsRune(command, '/') {
		abs, err := filepath.Abs(command)
		if err != nil {
			return nil, bridge.NewError(bridge.KindValidation, "resolve renderer path failed", err)
		}
		command = abs
	}

	runtimeCmd := strings.TrimSpace(cfg.Runtime)
	if runtimeCmd == "" && isScript(command) {
		runtimeCmd = DefaultRuntime
	}

	logger := cfg.Logger
	if logger == nil {
		logger = bridge.NopLogger{}
	}

	return &Engine{
		command:   command,
		runtime:   runtimeCmd,
		args:      append([]string{}, cfg.Args...),
		env:       append([]string{}, cfg.Env...),
		dir:       cfg.Dir,
		timeout:   pickDuration(cfg.Timeout, DefaultTimeout),
		maxOutput: pickLimit(cfg.MaxOutputBytes, DefaultMaxOutputBytes),
		maxStderr: pickLimit(cfg.MaxStderrBytes, DefaultMaxStderrBytes),
		killGrace: pickDuration(cfg.KillGrace, DefaultKillGrace),
		logger:    logger,
	}, nil
}

// RendererPath returns the resolved renderer location.
func (e *Engine) RendererPath() string {
	if e == nil {
		return ""
	}
	return e.command
}

// Render runs the renderer for payload and returns its standard output.
func (e *Engine) Render(ctx context.Context, payload bridge.Payload) ([]byte, error) {
	if e == nil {
		return nil, bridge.NewError(bridge.KindInternal, "renderer engine is nil", nil)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, contextError(err)
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	if e.timeout > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeoutCause(runCtx, e.timeout, errRendererTimeout)
		defer cancelTimeout()
	}

	if filepath.IsAbs(e.command) {
		if _, err := os.Stat(e.command); err != nil {
			return nil, bridge.NewInvocationError(fmt.Sprintf("renderer not found at %s", e.command), bridge.NoExitCode, "", err)
		}
	}

	name, args := e.commandLine(payload)
	cmd := exec.CommandContext(runCtx, name, args...)
	cmd.Dir = e.dir
	if len(e.env) > 0 {
		cmd.Env = append(os.Environ(), e.env...)
	}
	configureProcess(cmd)
	cmd.WaitDelay = e.killGrace

	stdout := newOutputBuffer(e.maxOutput, func() { cancel(errOutputLimit) })
	stderr := newTailBuffer(e.maxStderr)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	started := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, bridge.NewInvocationError("renderer could not be started", bridge.NoExitCode, "", err)
	}
	pid := cmd.Process.Pid
	e.logger.Debugf("renderer started pid=%d command=%s", pid, name)

	waitErr := cmd.Wait()
	if errors.Is(waitErr, exec.ErrWaitDelay) {
		// Descendants still hold the pipes, so the group id is still in use.
		stopGroup(pid)
	}
	e.logger.Debugf("renderer exited pid=%d duration=%s err=%v", pid, time.Since(started), waitErr)

	if err := classify(ctx, runCtx, waitErr, stdout, stderr, e.maxOutput, e.timeout); err != nil {
		return nil, err
	}
	return stdout.Bytes(), nil
}

func (e *Engine) commandLine(payload bridge.Payload) (string, []string) {
	args := make([]string, 0, len(e.args)+6)
	name := e.command
	if e.runtime != "" {
		name = e.runtime
		args = append(args, e.command)
	}
	args = append(args, e.args...)
	args = append(args, TemplateFlag, payload.Template, InputsFlag, payload.Inputs)
	return name, args
}

func classify(parent, runCtx context.Context, waitErr error, stdout *outputBuffer, stderr *tailBuffer, maxOutput int64, timeout time.Duration) error {
	diagnostics := strings.TrimSpace(stderr.String())

	if stdout.Exceeded() {
		return bridge.NewInvocationError(fmt.Sprintf("renderer output exceeded %d bytes", maxOutput), bridge.NoExitCode, diagnostics, errOutputLimit)
	}

	if waitErr == nil {
		if len(stdout.Bytes()) == 0 {
			return bridge.NewInvocationError("renderer produced no output", 0, diagnostics, nil)
		}
		return nil
	}

	if runCtx.Err() != nil {
		switch cause := context.Cause(runCtx); {
		case errors.Is(cause, errRendererTimeout):
			return bridge.NewError(bridge.KindTimeout, fmt.Sprintf("renderer exceeded timeout of %s", timeout), context.DeadlineExceeded)
		case parent.Err() != nil:
			return contextError(parent.Err())
		}
	}

	if errors.Is(waitErr, exec.ErrWaitDelay) {
		return bridge.NewInvocationError("renderer left its output pipes open", 0, diagnostics, waitErr)
	}

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		if code := exitErr.ExitCode(); code >= 0 {
			return bridge.NewInvocationError("renderer failed", code, diagnostics, nil)
		}
		return bridge.NewInvocationError("renderer terminated", bridge.NoExitCode, diagnostics, exitErr)
	}
	return bridge.NewInvocationError("renderer failed", bridge.NoExitCode, diagnostics, waitErr)
}

func contextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return bridge.NewError(bridge.KindTimeout, "renderer deadline exceeded", err)
	}
	return bridge.NewError(bridge.KindCanceled, "renderer canceled", err)
}

func isScript(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".js", ".mjs", ".cjs":
		return true
	default:
		return false
	}
}

func pickDuration(value, fallback time.Duration) time.Duration {
	switch {
	case value < 0:
		return 0
	case value == 0:
		return fallback
	default:
		return value
	}
}

func pickLimit(value, fallback int64) int64 {
	switch {
	case value < 0:
		return 0
	case value == 0:
		return fallback
	default:
		return value
	}
}
