// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/stacklok/flowhive/pkg/engine"
	"github.com/stacklok/flowhive/pkg/tools/stubs"
)

// session is one live connection to a tool server, either a spawned
// subprocess or an in-process stub. The mutex serializes CallTool per
// session: a stdio server's RPC stream is half-duplex per request.
type session struct {
	name   string
	client *client.Client

	// cmd is nil for stub sessions.
	cmd *exec.Cmd

	mu sync.Mutex
}

// newStubSession connects an in-process stub server for a well-known name.
func newStubSession(ctx context.Context, name string) (*session, error) {
	srv, err := stubs.NewServer(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", engine.ErrTool, err)
	}

	c, err := client.NewInProcessClient(srv)
	if err != nil {
		return nil, fmt.Errorf("%w: creating stub client for %s: %v", engine.ErrTool, name, err)
	}
	if err := startSession(ctx, c); err != nil {
		return nil, fmt.Errorf("%w: connecting stub %s: %v", engine.ErrTool, name, err)
	}
	return &session{name: name, client: c}, nil
}

// newProcessSession spawns the configured subprocess and performs the
// protocol handshake over its stdio. The process is spawned detached
// from ctx so it survives the Connect call's deadline.
func newProcessSession(ctx context.Context, name string, cfg ServerConfig) (*session, error) {
	cmd := exec.Command(cfg.Command, cfg.Args...) // #nosec G204 -- command comes from the user's own config
	cmd.Env = append(os.Environ(), expandEnv(cfg.Env)...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: opening stdin for %s: %v", engine.ErrTool, name, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: opening stdout for %s: %v", engine.ErrTool, name, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: opening stderr for %s: %v", engine.ErrTool, name, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: spawning %s (%s): %v", engine.ErrTool, name, cfg.Command, err)
	}

	c := client.NewClient(transport.NewIO(stdout, stdin, stderr))
	if err := startSession(ctx, c); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, fmt.Errorf("%w: handshake with %s failed: %v", engine.ErrTool, name, err)
	}

	return &session{name: name, client: c, cmd: cmd}, nil
}

// startSession starts the transport and performs the initialize handshake.
func startSession(ctx context.Context, c *client.Client) error {
	if err := c.Start(ctx); err != nil {
		return err
	}
	_, err := c.Initialize(ctx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			ClientInfo: mcp.Implementation{
				Name:    "flowhive",
				Version: "0.1.0",
			},
		},
	})
	return err
}

// alive probes whether the backing process still runs. Stub sessions are
// always alive.
func (s *session) alive() bool {
	if s.cmd == nil || s.cmd.Process == nil {
		return s.cmd == nil
	}
	p, err := process.NewProcess(int32(s.cmd.Process.Pid))
	if err != nil {
		return false
	}
	running, err := p.IsRunning()
	return err == nil && running
}

// close tears the session down, killing the subprocess if one exists.
func (s *session) close() {
	_ = s.client.Close()
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
		_ = s.cmd.Wait()
	}
}
