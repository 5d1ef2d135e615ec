//go:build unix

package bridgeprocess

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// configureProcess starts the renderer in its own process group and makes
// context cancellation kill the whole group.
func configureProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil {
			if errors.Is(err, syscall.ESRCH) {
				return os.ErrProcessDone
			}
			return err
		}
		return nil
	}
}

// stopProcessGroup kills descendants the renderer left running in its group.
// Call it only while the group is known to be non-empty; once the group is
// gone its id may be reused.
func stopProcessGroup(pid int) {
	if pid <= 0 {
		return
	}
	_ = syscall.Kill(-pid, syscall.SIGKILL)
}
