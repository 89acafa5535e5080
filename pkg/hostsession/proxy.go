// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package hostsession

import (
	"context"

	"github.com/hostlink/hostlink/pkg/ids"
	"github.com/hostlink/hostlink/pkg/rpcsession"
)

// agentSessionProxy implements AgentSession by forwarding every call over
// a live RPC connection to the in-target agent's ScriptEngine facade.
type agentSessionProxy struct {
	conn *rpcsession.Conn
}

func newAgentSessionProxy(conn *rpcsession.Conn) AgentSession {
	return &agentSessionProxy{conn: conn}
}

type createScriptParams struct {
	Name   string `json:"name"`
	Source string `json:"source"`
}

func (p *agentSessionProxy) CreateScript(ctx context.Context, name, source string) (ids.AgentScriptID, error) {
	var sid ids.AgentScriptID
	err := p.conn.Call(ctx, "CreateScript", createScriptParams{Name: name, Source: source}, &sid)
	return sid, err
}

func (p *agentSessionProxy) DestroyScript(ctx context.Context, sid ids.AgentScriptID) error {
	return p.conn.Call(ctx, "DestroyScript", sid, nil)
}

func (p *agentSessionProxy) LoadScript(ctx context.Context, sid ids.AgentScriptID) error {
	return p.conn.Call(ctx, "LoadScript", sid, nil)
}

type postMessageParams struct {
	SID     ids.AgentScriptID `json:"sid"`
	Message string             `json:"message"`
}

func (p *agentSessionProxy) PostMessageToScript(ctx context.Context, sid ids.AgentScriptID, message string) error {
	return p.conn.Call(ctx, "PostMessageToScript", postMessageParams{SID: sid, Message: message}, nil)
}

func (p *agentSessionProxy) EnableDebugger(ctx context.Context) error {
	return p.conn.Call(ctx, "EnableDebugger", nil, nil)
}

func (p *agentSessionProxy) DisableDebugger(ctx context.Context) error {
	return p.conn.Call(ctx, "DisableDebugger", nil, nil)
}

func (p *agentSessionProxy) PostMessageToDebugger(ctx context.Context, message string) error {
	return p.conn.Call(ctx, "PostMessageToDebugger", message, nil)
}
