//go:build windows

package process

import (
	"fmt"
	"os/exec"
	"syscall"
)

// setProcAttr configures the command to run in its own process group.
func setProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}

// terminateGroup asks the process tree to close. Without /F taskkill sends
// WM_CLOSE, the closest Windows equivalent of SIGTERM.
func terminateGroup(pid int) error {
	return exec.Command("taskkill", "/T", "/PID", fmt.Sprintf("%d", pid)).Run()
}

// killGroup force-kills the process tree.
func killGroup(pid int) error {
	return exec.Command("taskkill", "/F", "/T", "/PID", fmt.Sprintf("%d", pid)).Run()
}
