//go:build windows

package cmd

import (
	"os"
	"os/exec"
	"syscall"
)

// createNewProcessGroup keeps Ctrl+C in the launching console from
// reaching the background server.
const createNewProcessGroup = 0x00000200

func setDaemonAttrs(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: createNewProcessGroup}
}

// shutdownSignals end 'serve' and 'board watch'.
func shutdownSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}

// Windows cannot deliver SIGTERM; the daemon package kills on any signal.
func sigTERM() syscall.Signal { return syscall.SIGTERM }

func sigKILL() syscall.Signal { return syscall.SIGKILL }
