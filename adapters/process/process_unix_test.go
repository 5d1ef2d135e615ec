//go:build unix

package bridgeprocess

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/goliatone/go-pdfbridge/bridge"
)

// processAlive reports whether pid names a running (non-zombie) process.
func processAlive(pid int) bool {
	if data, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "stat")); err == nil {
		fields := strings.Fields(string(data[strings.LastIndexByte(string(data), ')')+1:]))
		return len(fields) > 0 && fields[0] != "Z"
	}
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}

func waitForExit(t *testing.T, pid int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if !processAlive(pid) {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("process %d is still running", pid)
}

func TestEngine_TimeoutKillsProcessGroup(t *testing.T) {
	dir := t.TempDir()
	parentPID := filepath.Join(dir, "renderer.pid")
	childPID := filepath.Join(dir, "child.pid")

	cfg := helperConfig("spawn", helperPIDFileEnv+"="+parentPID, helperChildEnv+"="+childPID)
	cfg.Timeout = 2 * time.Second
	cfg.KillGrace = 500 * time.Millisecond
	engine, err := New(cfg)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	_, err = engine.Render(context.Background(), testPayload(t))
	if bridge.KindFromError(err) != bridge.KindTimeout {
		t.Fatalf("expected timeout, got %v", err)
	}

	waitForExit(t, waitForPID(t, parentPID))
	waitForExit(t, waitForPID(t, childPID))
}

func TestEngine_CancelLeavesNoProcess(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "renderer.pid")
	engine, err := New(helperConfig("sleep", helperPIDFileEnv+"="+pidFile))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	pidCh := make(chan int, 1)
	go func() {
		pid, _ := pollPID(pidFile, 10*time.Second)
		pidCh <- pid
		cancel()
	}()

	_, err = engine.Render(ctx, testPayload(t))
	if bridge.KindFromError(err) != bridge.KindCanceled {
		t.Fatalf("expected canceled, got %v", err)
	}
	pid := <-pidCh
	if pid == 0 {
		t.Fatalf("renderer did not report its pid")
	}
	if processAlive(pid) {
		t.Fatalf("renderer process %d still running after cancel", pid)
	}
}
