// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package hostsession

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/exp/jsonrpc2"

	"github.com/hostlink/hostlink/pkg/ids"
	"github.com/hostlink/hostlink/pkg/rpcsession"
)

// dispatchAgentSessionCall decodes one incoming re-export client call and
// invokes the matching AgentSession method on session, so a client
// connecting through the loopback listener observes exactly the same
// effects as a direct in-process caller.
func dispatchAgentSessionCall(ctx context.Context, session AgentSession, req *jsonrpc2.Request) (interface{}, error) {
	if session == nil {
		return nil, fmt.Errorf("agent session closed")
	}

	prefix := rpcsession.AgentSessionObjectPath + "."
	switch req.Method {
	case prefix + "Ping":
		return true, nil
	case prefix + "CreateScript":
		var p createScriptParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, err
		}
		return session.CreateScript(ctx, p.Name, p.Source)
	case prefix + "DestroyScript":
		var sid ids.AgentScriptID
		if err := json.Unmarshal(req.Params, &sid); err != nil {
			return nil, err
		}
		return nil, session.DestroyScript(ctx, sid)
	case prefix + "LoadScript":
		var sid ids.AgentScriptID
		if err := json.Unmarshal(req.Params, &sid); err != nil {
			return nil, err
		}
		return nil, session.LoadScript(ctx, sid)
	case prefix + "PostMessageToScript":
		var p postMessageParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, err
		}
		return nil, session.PostMessageToScript(ctx, p.SID, p.Message)
	case prefix + "EnableDebugger":
		return nil, session.EnableDebugger(ctx)
	case prefix + "DisableDebugger":
		return nil, session.DisableDebugger(ctx)
	case prefix + "PostMessageToDebugger":
		var message string
		if err := json.Unmarshal(req.Params, &message); err != nil {
			return nil, err
		}
		return nil, session.PostMessageToDebugger(ctx, message)
	default:
		return nil, jsonrpc2.ErrMethodNotFound
	}
}
