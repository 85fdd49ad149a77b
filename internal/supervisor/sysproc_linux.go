//go:build linux

package supervisor

import (
	"os/exec"
	"syscall"
)

// setSysProcAttr asks the kernel to deliver SIGKILL to the subprocess if
// the gateway process dies without cleaning up.
func setSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Pdeathsig: syscall.SIGKILL}
}
