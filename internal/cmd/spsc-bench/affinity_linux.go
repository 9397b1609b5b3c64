//go:build linux

package main

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// pinCurrentThread restricts the calling OS thread to cpu. The caller must
// hold runtime.LockOSThread.
func pinCurrentThread(cpu int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return fmt.Errorf("sched_setaffinity cpu %d: %w", cpu, err)
	}
	return nil
}
