//go:build windows

package daemon

import (
	"os"
	"os/exec"
	"syscall"
)

func processAlive(pid int) bool {
	// FindProcess opens a handle and fails for exited processes.
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	_ = proc.Release()
	return true
}

func signalProcess(pid int, _ syscall.Signal) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	// Windows can only terminate.
	return proc.Kill()
}

// Detach is a no-op on Windows; there is no setsid.
func Detach(_ *exec.Cmd) {}

// ShutdownSignals are the signals that trigger a graceful shutdown.
func ShutdownSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}

// StopSignal is the signal `serve stop` sends; Windows always kills.
func StopSignal(_ bool) syscall.Signal {
	return syscall.SIGKILL
}
