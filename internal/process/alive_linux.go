//go:build linux

package process

import (
	"github.com/prometheus/procfs"
)

// groupAlive scans /proc for a live member of the group. Zombies left by a
// PID 1 that does not reap orphans would keep kill(2) succeeding
// for as long as the container runs.
func groupAlive(pgid int) bool {
	procs, err := procfs.AllProcs()
	if err != nil {
		return signalAlive(pgid)
	}

	stats := make([]procfs.ProcStat, 0, len(procs))
	for _, p := range procs {
		st, err := p.Stat()
		if err != nil {
			continue // exited while scanning
		}
		stats = append(stats, st)
	}
	return liveMembers(stats, pgid) > 0
}

func liveMembers(stats []procfs.ProcStat, pgid int) int {
	n := 0
	for _, st := range stats {
		if st.PGRP == pgid && st.State != "Z" && st.State != "X" {
			n++
		}
	}
	return n
}
