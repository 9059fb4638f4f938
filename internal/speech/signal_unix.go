//go:build unix

package speech

import (
	"os"

	"golang.org/x/sys/unix"
)

const canSuspend = true

func suspend(p *os.Process) error {
	return p.Signal(unix.SIGSTOP)
}

func resume(p *os.Process) error {
	return p.Signal(unix.SIGCONT)
}
