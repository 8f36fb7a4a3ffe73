// SPDX-License-Identifier: MIT

//go:build windows

package procgroup

import "os/exec"

func set(_ *exec.Cmd) {
	// Process groups as used here are a Unix concept; on Windows the direct
	// child is all we can address.
}

func interrupt(_ *exec.Cmd) error {
	// No reliable graceful signal on Windows; Terminate escalates to kill
	// after the grace window.
	return nil
}

func kill(cmd *exec.Cmd) error {
	return cmd.Process.Kill()
}
