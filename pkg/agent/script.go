// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"time"

	"github.com/hostlink/hostlink/pkg/ids"
)

// gcDrainInterval is the pause between residual-work GC polls during
// ScriptInstance.destroy.
const gcDrainInterval = 50 * time.Millisecond

// ScriptInstance owns one compiled script for the lifetime between
// create_script and destroy_script (or engine shutdown).
type ScriptInstance struct {
	sid    ids.AgentScriptID
	name   string
	script Script
	tracer Tracer
}

func newScriptInstance(sid ids.AgentScriptID, name string, script Script, tracer Tracer) *ScriptInstance {
	return &ScriptInstance{sid: sid, name: name, script: script, tracer: tracer}
}

// destroy unloads the script, then drains the tracer's GC: it repeatedly
// requests a pass and, while the tracer reports residual work, sleeps
// gcDrainInterval and retries. It returns only once a pass reports no
// residual work, guaranteeing no trampoline is left live in a target
// thread when the caller releases the instance's resources.
func (s *ScriptInstance) destroy(ctx context.Context) error {
	if err := s.script.Unload(ctx); err != nil {
		return err
	}

	for {
		residual, err := s.tracer.GC(ctx)
		if err != nil {
			return err
		}
		if !residual {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(gcDrainInterval):
		}
	}
}
