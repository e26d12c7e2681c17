// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package stubs provides deterministic in-process tool servers for the
// well-known server names. They answer the same Tool Protocol as real
// subprocess servers and return fixture data, so workflows remain
// runnable without any tool-server config. The stub set is deliberately
// small; unknown servers are not stubbed.
package stubs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// stubVersion is reported in the initialize handshake.
const stubVersion = "1.0.0"

// Available reports whether a stub exists for the given server name.
func Available(name string) bool {
	switch name {
	case "git", "github", "filesystem":
		return true
	default:
		return false
	}
}

// NewServer builds the in-process stub server for a well-known name.
func NewServer(name string) (*server.MCPServer, error) {
	switch name {
	case "git":
		return newGitServer(), nil
	case "github":
		return newGitHubServer(), nil
	case "filesystem":
		return newFilesystemServer(), nil
	default:
		return nil, fmt.Errorf("no stub for tool server %q", name)
	}
}

// jsonResult renders v as a single JSON text content block.
func jsonResult(v map[string]any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(string(data))},
	}, nil
}

// arguments extracts the call arguments, defaulting to an empty map.
func arguments(req mcp.CallToolRequest) map[string]any {
	args, ok := req.Params.Arguments.(map[string]any)
	if !ok {
		return map[string]any{}
	}
	return args
}

func stringArg(args map[string]any, key, fallback string) string {
	if v, ok := args[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func objectSchema(properties map[string]any, required ...string) mcp.ToolInputSchema {
	return mcp.ToolInputSchema{
		Type:       "object",
		Properties: properties,
		Required:   required,
	}
}

func newGitServer() *server.MCPServer {
	s := server.NewMCPServer("git-stub", stubVersion, server.WithToolCapabilities(true))

	s.AddTool(mcp.Tool{
		Name:        "git_status",
		Description: "Show the working tree status",
		InputSchema: objectSchema(map[string]any{
			"repo_path": map[string]any{"type": "string", "description": "Path to the repository"},
		}),
	}, func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := arguments(req)
		return jsonResult(map[string]any{
			"repo_path": stringArg(args, "repo_path", "."),
			"branch":    "main",
			"clean":     true,
			"staged":    []any{},
			"modified":  []any{},
			"untracked": []any{},
		})
	})

	s.AddTool(mcp.Tool{
		Name:        "git_log",
		Description: "Show recent commits",
		InputSchema: objectSchema(map[string]any{
			"repo_path": map[string]any{"type": "string"},
			"max_count": map[string]any{"type": "number"},
		}),
	}, func(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(map[string]any{
			"commits": []any{
				map[string]any{"hash": "a1b2c3d", "message": "Initial commit", "author": "dev"},
			},
		})
	})

	s.AddTool(mcp.Tool{
		Name:        "git_diff",
		Description: "Show changes between commits or the working tree",
		InputSchema: objectSchema(map[string]any{
			"repo_path": map[string]any{"type": "string"},
		}),
	}, func(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(map[string]any{"diff": ""})
	})

	return s
}

func newGitHubServer() *server.MCPServer {
	s := server.NewMCPServer("github-stub", stubVersion, server.WithToolCapabilities(true))

	s.AddTool(mcp.Tool{
		Name:        "get_issue",
		Description: "Get a single issue by number",
		InputSchema: objectSchema(map[string]any{
			"number": map[string]any{"type": "number", "description": "Issue number"},
		}, "number"),
	}, func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := arguments(req)
		number, _ := args["number"].(float64)
		return jsonResult(map[string]any{
			"number": number,
			"title":  fmt.Sprintf("Stub issue #%d", int(number)),
			"state":  "open",
			"body":   "Fixture issue body",
			"labels": []any{"stub"},
		})
	})

	s.AddTool(mcp.Tool{
		Name:        "list_issues",
		Description: "List open issues",
		InputSchema: objectSchema(map[string]any{
			"state": map[string]any{"type": "string"},
		}),
	}, func(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(map[string]any{
			"issues": []any{
				map[string]any{"number": float64(1), "title": "Stub issue #1", "state": "open"},
				map[string]any{"number": float64(2), "title": "Stub issue #2", "state": "open"},
			},
		})
	})

	s.AddTool(mcp.Tool{
		Name:        "create_comment",
		Description: "Create a comment on an issue",
		InputSchema: objectSchema(map[string]any{
			"number": map[string]any{"type": "number"},
			"body":   map[string]any{"type": "string"},
		}, "number", "body"),
	}, func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := arguments(req)
		number, _ := args["number"].(float64)
		return jsonResult(map[string]any{
			"created": true,
			"number":  number,
			"body":    stringArg(args, "body", ""),
		})
	})

	return s
}

func newFilesystemServer() *server.MCPServer {
	s := server.NewMCPServer("filesystem-stub", stubVersion, server.WithToolCapabilities(true))

	s.AddTool(mcp.Tool{
		Name:        "read_file",
		Description: "Read a file",
		InputSchema: objectSchema(map[string]any{
			"path": map[string]any{"type": "string"},
		}, "path"),
	}, func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := arguments(req)
		path := stringArg(args, "path", "")
		return jsonResult(map[string]any{
			"path":    path,
			"content": "stub contents of " + path,
		})
	})

	s.AddTool(mcp.Tool{
		Name:        "write_file",
		Description: "Write a file",
		InputSchema: objectSchema(map[string]any{
			"path":    map[string]any{"type": "string"},
			"content": map[string]any{"type": "string"},
		}, "path", "content"),
	}, func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := arguments(req)
		return jsonResult(map[string]any{
			"written": true,
			"path":    stringArg(args, "path", ""),
			"bytes":   float64(len(stringArg(args, "content", ""))),
		})
	})

	s.AddTool(mcp.Tool{
		Name:        "list_directory",
		Description: "List directory entries",
		InputSchema: objectSchema(map[string]any{
			"path": map[string]any{"type": "string"},
		}, "path"),
	}, func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := arguments(req)
		return jsonResult(map[string]any{
			"path":    stringArg(args, "path", "."),
			"entries": []any{"README.md", "src"},
		})
	})

	return s
}
