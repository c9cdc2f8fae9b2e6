//go:build unix

package process

import (
	"errors"
	"os/exec"
	"syscall"
)

// setProcessGroup places the child in a new process group whose id equals
// its pid, so the whole tree spawned by the shell can be signalled at once.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// unixGroup signals process groups with kill(2) on the negated pgid.
type unixGroup struct{}

func defaultGroup() groupSignaler { return unixGroup{} }

func (unixGroup) Interrupt(h handle) error {
	return syscall.Kill(-h.pgid, syscall.SIGINT)
}

func (unixGroup) Kill(h handle) error {
	return syscall.Kill(-h.pgid, syscall.SIGKILL)
}

// Alive reports whether any member of the group still runs. Members that
// exited but were not reaped yet do not count.
func (unixGroup) Alive(h handle) bool {
	return groupAlive(h.pgid)
}

// signalAlive reports whether kill(2) still finds a member of the group.
// Unreaped zombies count as members.
func signalAlive(pgid int) bool {
	err := syscall.Kill(-pgid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}
