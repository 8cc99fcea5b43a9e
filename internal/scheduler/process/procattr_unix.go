//go:build unix && !linux

package process

import (
	"os/exec"
	"syscall"
)

// setProcAttr configures the command to run in its own process group so the
// whole renderer tree can be signalled together. Pdeathsig is Linux-only;
// elsewhere orphan cleanup relies on explicit Cancel calls.
func setProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// terminateGroup sends SIGTERM to the entire process group.
func terminateGroup(pid int) error {
	return syscall.Kill(-pid, syscall.SIGTERM)
}

// killGroup sends SIGKILL to the entire process group.
func killGroup(pid int) error {
	return syscall.Kill(-pid, syscall.SIGKILL)
}
