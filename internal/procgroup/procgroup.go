// SPDX-License-Identifier: MIT

// Package procgroup runs external tools in their own process group and tears
// the whole group down on cancellation. ffmpeg and exec-style TTS engines may
// spawn helpers of their own; killing only the direct child would leak those
// past task timeouts and batch shutdown.
package procgroup

import (
	"os/exec"
	"time"
)

// Set configures cmd to start as the leader of a new process group. It must
// be called before cmd.Start for Terminate to reach the full tree.
func Set(cmd *exec.Cmd) {
	set(cmd)
}

// Terminate stops cmd's process group: graceful signal first, then a hard
// kill once grace expires. wait must be the channel carrying cmd.Wait's
// result; Terminate drains it and returns the process exit error. Safe to
// call with a nil command or one that never started.
func Terminate(cmd *exec.Cmd, wait <-chan error, grace time.Duration) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	_ = interrupt(cmd)
	select {
	case err := <-wait:
		return err
	case <-time.After(grace):
	}
	_ = kill(cmd)
	return <-wait
}
