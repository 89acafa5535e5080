// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package agent

import "context"

// Tracer is the code-tracing subsystem's garbage collector. A script's
// instrumentation trampolines are only safe to release once a GC pass
// reports no residual work; see ScriptInstance.destroy.
type Tracer interface {
	// GC performs one collection pass and reports whether any
	// instrumentation trampolines are still live in target threads.
	GC(ctx context.Context) (residual bool, err error)
}

// MemoryRange is a contiguous [Base, Base+Size) span of target address
// space, used to exclude the agent's own image from instrumentation.
type MemoryRange struct {
	Base uintptr
	Size uintptr
}

// Script is the opaque scripting-runtime capability a script instance
// owns. The concrete scripting runtime is out of scope here; this
// interface is the seam the engine drives it through.
type Script interface {
	// ExcludeRange tells the script to never instrument addresses inside
	// r, used to keep the agent from tracing itself.
	ExcludeRange(r MemoryRange) error
	// SetMessageHandler installs the callback invoked whenever the script
	// posts a message out to the host.
	SetMessageHandler(func(message string, data []byte))
	Load(ctx context.Context) error
	Unload(ctx context.Context) error
	PostMessage(ctx context.Context, message string) error
}

// Compiler turns instrumentation source into a loadable Script.
type Compiler interface {
	Compile(ctx context.Context, name, source string) (Script, error)
}

// CompilerFunc adapts a plain function to a Compiler.
type CompilerFunc func(ctx context.Context, name, source string) (Script, error)

// Compile implements Compiler.
func (f CompilerFunc) Compile(ctx context.Context, name, source string) (Script, error) {
	return f(ctx, name, source)
}
