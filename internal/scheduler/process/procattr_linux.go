//go:build linux

package process

import (
	"os/exec"
	"syscall"
)

// setProcAttr configures the command to run in its own process group so the
// whole renderer tree can be signalled together. Pdeathsig takes the child
// down if the manager dies without a Cancel.
func setProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGTERM,
	}
}

// terminateGroup sends SIGTERM to the entire process group.
func terminateGroup(pid int) error {
	return syscall.Kill(-pid, syscall.SIGTERM)
}

// killGroup sends SIGKILL to the entire process group.
func killGroup(pid int) error {
	return syscall.Kill(-pid, syscall.SIGKILL)
}
