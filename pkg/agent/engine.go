// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package agent implements the in-agent script engine: the per-agent
// registry that owns script instances, funnels asynchronous messages out
// to the host, and guarantees that destroying a script waits for its
// instrumentation machinery to quiesce before releasing resources.
package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/hostlink/hostlink/pkg/event"
	"github.com/hostlink/hostlink/pkg/ferror"
	"github.com/hostlink/hostlink/pkg/ids"
)

// ScriptMessage is one message posted by a script to the host, along with
// the script id it originated from.
type ScriptMessage struct {
	SID     ids.AgentScriptID
	Message string
	Data    []byte
}

// DebugHook is the process-wide hook on the script runtime that
// enable_debugger/disable_debugger install and remove. It must be safe
// to Disable without a prior Enable.
type DebugHook interface {
	Enable(handler func(message string)) error
	Disable() error
}

// ScriptEngine owns every script instance running inside one agent. Its
// script table, id counter and debugger state are guarded by its own
// mutex, the same way AttachManager guards its session table.
type ScriptEngine struct {
	compiler   Compiler
	tracer     Tracer
	debugHook  DebugHook
	agentRange MemoryRange

	mu              sync.Mutex
	scripts         map[ids.AgentScriptID]*ScriptInstance
	counter         ids.AgentScriptID
	debuggerEnabled bool

	messageFromScript   *event.Broadcaster[ScriptMessage]
	messageFromDebugger *event.Broadcaster[string]
}

// NewScriptEngine constructs an engine. agentRange is excluded from
// instrumentation on every script the engine creates, so the agent never
// traces its own code.
func NewScriptEngine(compiler Compiler, tracer Tracer, debugHook DebugHook, agentRange MemoryRange) *ScriptEngine {
	return &ScriptEngine{
		compiler:            compiler,
		tracer:              tracer,
		debugHook:           debugHook,
		agentRange:          agentRange,
		scripts:             make(map[ids.AgentScriptID]*ScriptInstance),
		messageFromScript:   event.NewBroadcaster[ScriptMessage](),
		messageFromDebugger: event.NewBroadcaster[string](),
	}
}

// MessageFromScript subscribes to messages posted by any script this
// engine owns.
func (e *ScriptEngine) MessageFromScript() (<-chan ScriptMessage, func()) {
	return e.messageFromScript.Subscribe()
}

// MessageFromDebugger subscribes to messages from the process-wide debug
// hook, when enabled.
func (e *ScriptEngine) MessageFromDebugger() (<-chan string, func()) {
	return e.messageFromDebugger.Subscribe()
}

// CreateScript compiles source into a new script instance, excludes the
// agent's own memory range from instrumentation, and installs the
// per-script message callback that forwards onto MessageFromScript. If
// name is empty it defaults to "script" + sid.
func (e *ScriptEngine) CreateScript(ctx context.Context, name, source string) (ids.AgentScriptID, error) {
	e.mu.Lock()
	sid := e.counter + 1
	e.counter = sid
	e.mu.Unlock()

	if name == "" {
		name = fmt.Sprintf("script%s", sid)
	}

	script, err := e.compiler.Compile(ctx, name, source)
	if err != nil {
		return 0, ferror.NewFailed("compile script", err)
	}

	if err := script.ExcludeRange(e.agentRange); err != nil {
		return 0, ferror.NewFailed("exclude agent memory range", err)
	}

	script.SetMessageHandler(func(message string, data []byte) {
		e.messageFromScript.Emit(ScriptMessage{SID: sid, Message: message, Data: data})
	})

	instance := newScriptInstance(sid, name, script, e.tracer)

	e.mu.Lock()
	e.scripts[sid] = instance
	e.mu.Unlock()

	return sid, nil
}

// DestroyScript removes sid from the table and destroys its instance,
// which blocks until the tracer's GC reports no residual work.
func (e *ScriptEngine) DestroyScript(ctx context.Context, sid ids.AgentScriptID) error {
	e.mu.Lock()
	instance, ok := e.scripts[sid]
	if ok {
		delete(e.scripts, sid)
	}
	e.mu.Unlock()

	if !ok {
		return ferror.NewFailed("invalid script id", nil)
	}
	return instance.destroy(ctx)
}

// LoadScript loads a previously created script.
func (e *ScriptEngine) LoadScript(ctx context.Context, sid ids.AgentScriptID) error {
	instance, ok := e.lookup(sid)
	if !ok {
		return ferror.NewFailed("invalid script id", nil)
	}
	return instance.script.Load(ctx)
}

// PostMessageToScript delivers msg to the script identified by sid.
func (e *ScriptEngine) PostMessageToScript(ctx context.Context, sid ids.AgentScriptID, msg string) error {
	instance, ok := e.lookup(sid)
	if !ok {
		return ferror.NewFailed("invalid script id", nil)
	}
	return instance.script.PostMessage(ctx, msg)
}

func (e *ScriptEngine) lookup(sid ids.AgentScriptID) (*ScriptInstance, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	instance, ok := e.scripts[sid]
	return instance, ok
}

// EnableDebugger installs the process-wide debug-message handler, if it
// is not already installed.
func (e *ScriptEngine) EnableDebugger(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.debuggerEnabled {
		return nil
	}
	if err := e.debugHook.Enable(func(message string) {
		e.messageFromDebugger.Emit(message)
	}); err != nil {
		return ferror.NewFailed("enable debugger", err)
	}
	e.debuggerEnabled = true
	return nil
}

// DisableDebugger removes the process-wide debug-message handler. It is
// safe to call even if EnableDebugger was never called.
func (e *ScriptEngine) DisableDebugger(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.debuggerEnabled {
		return nil
	}
	if err := e.debugHook.Disable(); err != nil {
		return ferror.NewFailed("disable debugger", err)
	}
	e.debuggerEnabled = false
	return nil
}

// PostMessageToDebugger unconditionally forwards msg to MessageFromDebugger
// subscribers, whether or not the debugger is enabled.
func (e *ScriptEngine) PostMessageToDebugger(_ context.Context, msg string) error {
	e.messageFromDebugger.Emit(msg)
	return nil
}

// Shutdown clears the table and destroys every instance, returning the
// first destroy error encountered.
func (e *ScriptEngine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	all := make([]*ScriptInstance, 0, len(e.scripts))
	for _, instance := range e.scripts {
		all = append(all, instance)
	}
	e.scripts = make(map[ids.AgentScriptID]*ScriptInstance)
	e.mu.Unlock()

	var firstErr error
	for _, instance := range all {
		if err := instance.destroy(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
