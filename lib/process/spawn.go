// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// StartDetached re-executes the current chronicle binary in the given
// mode as a fully detached process: its own session, no inherited
// stdio, not reaped by the caller. The caller does not learn whether
// the child accomplished anything, only whether the fork succeeded;
// the child coordinates through the processor lock like any other
// invocation.
func StartDetached(mode string, configPath string) error {
	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locating current executable: %w", err)
	}
	arguments := []string{"--mode=" + mode}
	if configPath != "" {
		arguments = append(arguments, "--config="+configPath)
	}
	command := exec.Command(executable, arguments...)
	command.Stdin = nil
	command.Stdout = nil
	command.Stderr = nil
	command.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := command.Start(); err != nil {
		return fmt.Errorf("starting detached %s process: %w", mode, err)
	}
	// Release rather than Wait: the child outlives the caller and
	// init adopts it once it has its own session.
	if err := command.Process.Release(); err != nil {
		return fmt.Errorf("releasing detached process handle: %w", err)
	}
	return nil
}
