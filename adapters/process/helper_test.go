package bridgeprocess

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"testing"
	"time"
)

const (
	helperEnv        = "PDFBRIDGE_HELPER_PROCESS"
	helperModeEnv    = "PDFBRIDGE_HELPER_MODE"
	helperPIDFileEnv = "PDFBRIDGE_HELPER_PIDFILE"
	helperSizeEnv    = "PDFBRIDGE_HELPER_SIZE"
	helperChildEnv   = "PDFBRIDGE_HELPER_CHILD_PIDFILE"
)

// TestHelperProcess is not a real test. It is re-executed by the engine
// tests and plays the renderer according to PDFBRIDGE_HELPER_MODE.
func TestHelperProcess(t *testing.T) {
	if os.Getenv(helperEnv) != "1" {
		return
	}
	os.Exit(runHelper(helperArgs(os.Args)))
}

func helperArgs(args []string) []string {
	for i, arg := range args {
		if arg == "--" {
			return args[i+1:]
		}
	}
	return nil
}

func runHelper(args []string) int {
	mode := os.Getenv(helperModeEnv)
	if path := os.Getenv(helperPIDFileEnv); path != "" {
		if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "write pid file: %v\n", err)
			return 1
		}
	}

	if mode == "echo" {
		out, _ := json.Marshal(args)
		os.Stdout.Write(out)
		return 0
	}

	tpl, inputs, ok := parseRendererArgs(args)
	if !ok {
		fmt.Fprintln(os.Stderr, "Missing required arguments: --template and --inputs")
		return 1
	}
	if !json.Valid([]byte(tpl)) || !json.Valid([]byte(inputs)) {
		fmt.Fprintln(os.Stderr, "Failed to generate PDF: invalid JSON payload")
		return 1
	}

	switch mode {
	case "pdf":
		fmt.Fprintf(os.Stdout, "%%PDF-1.7\n%% template=%d inputs=%d\n%%%%EOF\n", len(tpl), len(inputs))
		return 0
	case "large":
		size, _ := strconv.Atoi(os.Getenv(helperSizeEnv))
		os.Stdout.WriteString("%PDF-1.7\n")
		chunk := []byte(strings.Repeat("x", 32*1024))
		for written := 0; written < size; written += len(chunk) {
			if rest := size - written; rest < len(chunk) {
				chunk = chunk[:rest]
			}
			if _, err := os.Stdout.Write(chunk); err != nil {
				return 1
			}
		}
		return 0
	case "fail":
		fmt.Fprintln(os.Stderr, "Failed to generate PDF: field text is not defined")
		return 3
	case "stderr-flood":
		os.Stderr.WriteString(strings.Repeat("e", 1<<20))
		os.Stderr.WriteString("\nlast line\n")
		return 2
	case "empty":
		return 0
	case "sleep":
		time.Sleep(time.Minute)
		return 0
	case "spawn":
		child := exec.Command(os.Args[0], "-test.run=TestHelperProcess", "--", "--template", tpl, "--inputs", inputs)
		child.Env = append(os.Environ(), helperModeEnv+"=sleep", helperPIDFileEnv+"="+os.Getenv(helperChildEnv))
		child.Stdout = os.Stdout
		if err := child.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "spawn: %v\n", err)
			return 1
		}
		time.Sleep(time.Minute)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "unknown helper mode %q\n", mode)
		return 1
	}
}

func parseRendererArgs(args []string) (string, string, bool) {
	var tpl, inputs string
	var haveTpl, haveInputs bool
	for i := 0; i+1 < len(args); i++ {
		switch args[i] {
		case TemplateFlag:
			tpl, haveTpl = args[i+1], true
			i++
		case InputsFlag:
			inputs, haveInputs = args[i+1], true
			i++
		}
	}
	return tpl, inputs, haveTpl && haveInputs
}

// helperConfig points the engine at the test binary acting as renderer.
func helperConfig(mode string, env ...string) Config {
	return Config{
		RendererPath: os.Args[0],
		Args:         []string{"-test.run=TestHelperProcess", "--"},
		Env:          append([]string{helperEnv + "=1", helperModeEnv + "=" + mode}, env...),
	}
}

func waitForPID(t *testing.T, path string) int {
	t.Helper()
	pid, err := pollPID(path, 10*time.Second)
	if err != nil {
		t.Fatalf("%v", err)
	}
	return pid
}

func pollPID(path string, timeout time.Duration) (int, error) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		data, err := os.ReadFile(path)
		if err == nil && len(data) > 0 {
			if pid, err := strconv.Atoi(strings.TrimSpace(string(data))); err == nil {
				return pid, nil
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	return 0, fmt.Errorf("renderer did not write pid file %s", path)
}
