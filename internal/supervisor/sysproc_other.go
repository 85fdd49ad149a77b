//go:build !linux

package supervisor

import "os/exec"

func setSysProcAttr(cmd *exec.Cmd) {}
