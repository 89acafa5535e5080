// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package process implements the local-system process operations a
// HostSession exposes: enumerate, spawn (suspended), resume, and kill.
package process

import (
	"context"
	"fmt"
	"os/exec"
	"syscall"

	gopsprocess "github.com/shirou/gopsutil/v4/process"

	"github.com/hostlink/hostlink/pkg/ferror"
	"github.com/hostlink/hostlink/pkg/hostsession"
)

// Enumerate lists every process visible on the local system.
func Enumerate(ctx context.Context) ([]hostsession.ProcessInfo, error) {
	procs, err := gopsprocess.ProcessesWithContext(ctx)
	if err != nil {
		return nil, ferror.NewFailed("enumerate processes", err)
	}

	infos := make([]hostsession.ProcessInfo, 0, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			// A process that exited between listing and naming is not an
			// error for the caller; just omit it.
			continue
		}
		infos = append(infos, hostsession.ProcessInfo{PID: int(p.Pid), Name: name})
	}
	return infos, nil
}

// Spawn starts path with args, held in a suspended state via SIGSTOP
// immediately after start, and returns its pid. Resume must be called to
// let it run. The native loader/injector bootstrap that actually
// instruments the new process before its first instruction runs is out
// of scope here; Spawn only owns OS process creation and the
// suspend/resume handshake.
func Spawn(_ context.Context, path string, args []string) (int, error) {
	cmd := exec.Command(path, args...)
	if err := cmd.Start(); err != nil {
		return 0, ferror.NewFailed("spawn process", err)
	}

	pid := cmd.Process.Pid
	if err := cmd.Process.Signal(syscall.SIGSTOP); err != nil {
		return 0, ferror.NewFailed(fmt.Sprintf("suspend spawned pid %d", pid), err)
	}
	return pid, nil
}

// Resume lets a process previously suspended by Spawn continue running.
func Resume(_ context.Context, pid int) error {
	p, err := gopsprocess.NewProcess(int32(pid))
	if err != nil {
		return ferror.NewFailed(fmt.Sprintf("resume pid %d", pid), err)
	}
	if err := p.SendSignal(syscall.SIGCONT); err != nil {
		return ferror.NewFailed(fmt.Sprintf("resume pid %d", pid), err)
	}
	return nil
}

// Kill terminates pid.
func Kill(ctx context.Context, pid int) error {
	p, err := gopsprocess.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return ferror.NewFailed(fmt.Sprintf("kill pid %d", pid), err)
	}
	if err := p.KillWithContext(ctx); err != nil {
		return ferror.NewFailed(fmt.Sprintf("kill pid %d", pid), err)
	}
	return nil
}
