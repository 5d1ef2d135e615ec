//go:build !unix

package bridgeprocess

import "os/exec"

// configureProcess keeps the exec default of killing the renderer process on
// cancellation.
func configureProcess(cmd *exec.Cmd) {}

func stopProcessGroup(pid int) {}
