// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package tools implements the Tool Protocol client layer: lifecycle and
// RPC for external tool-server subprocesses, with a hybrid fallback to
// deterministic in-process stubs for well-known servers.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/stacklok/flowhive/pkg/engine"
	"github.com/stacklok/flowhive/pkg/logger"
)

// ToolDescriptor describes one tool offered by a server.
type ToolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema,omitempty"`
}

// Client is the executor-facing surface of the tool layer.
type Client interface {
	Connect(ctx context.Context, server string) error
	Disconnect(server string) error
	CallTool(ctx context.Context, server, tool string, args map[string]any) (map[string]any, error)
	ListTools(ctx context.Context, server string) ([]ToolDescriptor, error)
	IsConnected(server string) bool
	AutoConnect(ctx context.Context, servers []string) error
	Shutdown()
}

// Manager implements Client. Per-server configuration is read from the
// tool-server config file on first use; servers without an entry fall
// back to the in-process stubs.
type Manager struct {
	configPath string

	mu       sync.Mutex
	sessions map[string]*session
	configs  map[string]ServerConfig
}

// NewManager creates a Manager reading server configs from configPath.
func NewManager(configPath string) *Manager {
	return &Manager{
		configPath: configPath,
		sessions:   make(map[string]*session),
	}
}

var _ Client = (*Manager)(nil)

// Connect establishes a session with the named server. It is idempotent:
// connecting to an already-live server is a no-op.
func (m *Manager) Connect(ctx context.Context, server string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.sessions[server]; ok {
		if existing.alive() {
			return nil
		}
		// The process died since the last call; drop the dead session
		// and connect fresh.
		existing.close()
		delete(m.sessions, server)
	}

	configs, err := m.serverConfigs()
	if err != nil {
		return err
	}

	var sess *session
	if cfg, ok := configs[server]; ok {
		logger.Debugf("spawning tool server %s: %s", server, cfg.Command)
		sess, err = newProcessSession(ctx, server, cfg)
	} else {
		logger.Debugf("no config entry for tool server %s, using stub", server)
		sess, err = newStubSession(ctx, server)
	}
	if err != nil {
		return err
	}

	m.sessions[server] = sess
	return nil
}

// Disconnect closes the session with the named server, killing its
// subprocess if one was spawned. Unknown servers are a no-op.
func (m *Manager) Disconnect(server string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[server]
	if !ok {
		return nil
	}
	sess.close()
	delete(m.sessions, server)
	return nil
}

// CallTool invokes a tool on a connected server. Calls against the same
// server are serialized; different servers proceed in parallel.
func (m *Manager) CallTool(ctx context.Context, server, tool string, args map[string]any) (map[string]any, error) {
	sess, err := m.liveSession(server)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	result, err := sess.client.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      tool,
			Arguments: args,
		},
	})
	sess.mu.Unlock()
	if err != nil {
		// A transport failure usually means the process died; probe and
		// drop the session so the failure surfaces as disconnection.
		if !sess.alive() {
			_ = m.Disconnect(server)
			return nil, fmt.Errorf("%w: server %s exited during call to %s: %v", engine.ErrTool, server, tool, err)
		}
		return nil, fmt.Errorf("%w: calling %s on %s: %v", engine.ErrTool, tool, server, err)
	}

	return convertResult(server, tool, result)
}

// ListTools returns the descriptors offered by a connected server.
func (m *Manager) ListTools(ctx context.Context, server string) ([]ToolDescriptor, error) {
	sess, err := m.liveSession(server)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	result, err := sess.client.ListTools(ctx, mcp.ListToolsRequest{})
	sess.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("%w: listing tools on %s: %v", engine.ErrTool, server, err)
	}

	descriptors := make([]ToolDescriptor, 0, len(result.Tools))
	for _, tool := range result.Tools {
		schema, err := schemaToMap(tool.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("%w: tool %s on %s has unreadable schema: %v", engine.ErrProtocol, tool.Name, server, err)
		}
		descriptors = append(descriptors, ToolDescriptor{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: schema,
		})
	}
	return descriptors, nil
}

// IsConnected reports whether the named server has a live session.
func (m *Manager) IsConnected(server string) bool {
	m.mu.Lock()
	sess, ok := m.sessions[server]
	m.mu.Unlock()
	return ok && sess.alive()
}

// AutoConnect connects all the given servers, failing fast on the first
// error and cancelling the remaining connection attempts.
func (m *Manager) AutoConnect(ctx context.Context, servers []string) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, server := range servers {
		g.Go(func() error {
			if err := m.Connect(gctx, server); err != nil {
				return fmt.Errorf("connecting %s: %w", server, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Shutdown closes every session.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, sess := range m.sessions {
		sess.close()
		delete(m.sessions, name)
	}
}

func (m *Manager) liveSession(server string) (*session, error) {
	m.mu.Lock()
	sess, ok := m.sessions[server]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: server %s is not connected", engine.ErrTool, server)
	}
	if !sess.alive() {
		_ = m.Disconnect(server)
		return nil, fmt.Errorf("%w: server %s process has exited", engine.ErrTool, server)
	}
	return sess, nil
}

// serverConfigs lazily loads and caches the tool-server config file.
func (m *Manager) serverConfigs() (map[string]ServerConfig, error) {
	if m.configs != nil {
		return m.configs, nil
	}
	configs, err := LoadServerConfigs(m.configPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", engine.ErrTool, err)
	}
	m.configs = configs
	return configs, nil
}

// convertResult maps a protocol result onto the executor's JSON shape:
// a single text block that parses as a JSON object becomes that object,
// other JSON becomes {"result": value}, plain text becomes
// {"result": text}, and unknown content types pass through unchanged.
func convertResult(server, tool string, result *mcp.CallToolResult) (map[string]any, error) {
	if result == nil {
		return nil, fmt.Errorf("%w: nil result from %s on %s", engine.ErrProtocol, tool, server)
	}
	if result.IsError {
		return nil, fmt.Errorf("%w: %s on %s failed: %s", engine.ErrTool, tool, server, flattenText(result.Content))
	}
	if len(result.Content) == 0 {
		return nil, fmt.Errorf("%w: empty response from %s on %s", engine.ErrProtocol, tool, server)
	}

	if len(result.Content) == 1 {
		if text, ok := mcp.AsTextContent(result.Content[0]); ok {
			trimmed := strings.TrimSpace(text.Text)
			if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
				var parsed any
				if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
					if obj, isObject := parsed.(map[string]any); isObject {
						return obj, nil
					}
					return map[string]any{"result": parsed}, nil
				}
			}
			return map[string]any{"result": text.Text}, nil
		}
	}

	return map[string]any{"content": result.Content}, nil
}

// flattenText joins the text blocks of a content list for error messages.
func flattenText(content []mcp.Content) string {
	var parts []string
	for _, c := range content {
		if text, ok := mcp.AsTextContent(c); ok {
			parts = append(parts, text.Text)
		}
	}
	if len(parts) == 0 {
		return "(no error detail)"
	}
	return strings.Join(parts, "; ")
}

func schemaToMap(schema mcp.ToolInputSchema) (map[string]any, error) {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
