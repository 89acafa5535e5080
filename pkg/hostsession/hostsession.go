// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package hostsession implements the attach session manager: the state
// machine that takes a target process id, brings up a request/response
// session to the injected agent, optionally re-exports it over TCP, and
// tears it all down on any failure path with no leaks and no double-close.
package hostsession

import (
	"context"

	"github.com/hostlink/hostlink/pkg/ids"
)

// ProcessInfo describes one process visible to a HostSession.
type ProcessInfo struct {
	PID  int
	Name string
}

// AgentSession is the typed RPC surface exposed by an in-target agent
// once attach has completed. It mirrors the ScriptEngine's public
// operations (see pkg/agent): a HostSession's AttachTo resolves one of
// these against the agent's well-known object path.
type AgentSession interface {
	CreateScript(ctx context.Context, name string, source string) (ids.AgentScriptID, error)
	DestroyScript(ctx context.Context, sid ids.AgentScriptID) error
	LoadScript(ctx context.Context, sid ids.AgentScriptID) error
	PostMessageToScript(ctx context.Context, sid ids.AgentScriptID, message string) error
	EnableDebugger(ctx context.Context) error
	DisableDebugger(ctx context.Context) error
	PostMessageToDebugger(ctx context.Context, message string) error
}

// HostSession is the per-target capability: enumerate/spawn/resume/kill
// processes, and attach to one to obtain an AgentSession.
type HostSession interface {
	EnumerateProcesses(ctx context.Context) ([]ProcessInfo, error)
	Spawn(ctx context.Context, path string, args []string) (int, error)
	Resume(ctx context.Context, pid int) error
	Kill(ctx context.Context, pid int) error

	AttachTo(ctx context.Context, pid int) (ids.AgentSessionID, error)
	ObtainAgentSession(id ids.AgentSessionID) (AgentSession, error)

	// OnAgentSessionClosed registers a callback invoked whenever one of
	// this HostSession's attached sessions terminates. It is used by the
	// owning Provider to re-broadcast the event to its own subscribers.
	OnAgentSessionClosed(fn func(ids.AgentSessionID, error))

	// Close tears down every attached session.
	Close(ctx context.Context) error
}
