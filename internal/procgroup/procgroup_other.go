// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build !unix || windows

package procgroup

import (
	"os/exec"
	"syscall"
)

// Set is a no-op on platforms without process groups.
func Set(cmd *exec.Cmd) {}

// Kill signals the process directly on platforms without process groups.
func Kill(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	return cmd.Process.Signal(sig)
}
