// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"encoding/json"

	"golang.org/x/exp/jsonrpc2"

	"github.com/hostlink/hostlink/pkg/ids"
	"github.com/hostlink/hostlink/pkg/rpcsession"
)

type createScriptParams struct {
	Name   string `json:"name"`
	Source string `json:"source"`
}

type postMessageParams struct {
	SID     ids.AgentScriptID `json:"sid"`
	Message string            `json:"message"`
}

// Handler returns the jsonrpc2.Handler that answers a host's calls against
// this engine, including the initial Ping the bring-up handshake issues
// before it trusts the connection.
func (e *ScriptEngine) Handler() jsonrpc2.Handler {
	prefix := rpcsession.AgentSessionObjectPath + "."

	return jsonrpc2.HandlerFunc(func(ctx context.Context, req *jsonrpc2.Request) (interface{}, error) {
		switch req.Method {
		case prefix + "Ping":
			return true, nil
		case prefix + "CreateScript":
			var p createScriptParams
			if err := json.Unmarshal(req.Params, &p); err != nil {
				return nil, err
			}
			return e.CreateScript(ctx, p.Name, p.Source)
		case prefix + "DestroyScript":
			var sid ids.AgentScriptID
			if err := json.Unmarshal(req.Params, &sid); err != nil {
				return nil, err
			}
			return nil, e.DestroyScript(ctx, sid)
		case prefix + "LoadScript":
			var sid ids.AgentScriptID
			if err := json.Unmarshal(req.Params, &sid); err != nil {
				return nil, err
			}
			return nil, e.LoadScript(ctx, sid)
		case prefix + "PostMessageToScript":
			var p postMessageParams
			if err := json.Unmarshal(req.Params, &p); err != nil {
				return nil, err
			}
			return nil, e.PostMessageToScript(ctx, p.SID, p.Message)
		case prefix + "EnableDebugger":
			return nil, e.EnableDebugger(ctx)
		case prefix + "DisableDebugger":
			return nil, e.DisableDebugger(ctx)
		case prefix + "PostMessageToDebugger":
			var message string
			if err := json.Unmarshal(req.Params, &message); err != nil {
				return nil, err
			}
			return nil, e.PostMessageToDebugger(ctx, message)
		default:
			return nil, jsonrpc2.ErrMethodNotFound
		}
	})
}
