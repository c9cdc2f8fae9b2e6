//go:build !unix

package process

import (
	"os"
	"os/exec"
)

// Without process groups only the direct child is known; it is terminated
// explicitly and nothing else is tracked.
func setProcessGroup(cmd *exec.Cmd) {}

type childGroup struct{}

func defaultGroup() groupSignaler { return childGroup{} }

func (childGroup) Interrupt(h handle) error {
	if err := h.proc.Signal(os.Interrupt); err != nil {
		return h.proc.Kill()
	}
	return nil
}

func (childGroup) Kill(h handle) error {
	return h.proc.Kill()
}

func (childGroup) Alive(h handle) bool {
	select {
	case <-h.exited:
		return false
	default:
		return true
	}
}
