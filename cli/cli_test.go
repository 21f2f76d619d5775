// Copyright (c) 2025 SUSE LLC.
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SUSE/scriptguard-mcp/executor"
)

// newTestServer serves a small MCP server with the tools the CLI relies on.
func newTestServer(t *testing.T) string {
	t.Helper()
	s := server.NewMCPServer("scriptguard-test", "v1",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.AddTool(mcp.NewTool("echo",
		mcp.WithDescription("Echoes its input."),
		mcp.WithString("text", mcp.Required(), mcp.Description("Text to echo.")),
		mcp.WithArray("items", mcp.WithStringItems()),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := request.RequireString("text")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		items := request.GetStringSlice("items", nil)
		return mcp.NewToolResultText(fmt.Sprintf("%s %d", text, len(items))), nil
	})

	s.AddTool(mcp.NewTool("run_command",
		mcp.WithDescription("Runs code."),
		mcp.WithString("code", mcp.Required()),
		mcp.WithNumber("timeout"),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		code := request.GetString("code", "")
		exitCode := 0
		if code == "fail" {
			exitCode = 7
		}
		res := executor.Result{
			Stdout:   fmt.Sprintf("ran %s with timeout %d\n", code, request.GetInt("timeout", 0)),
			Stderr:   "warning\n",
			ExitCode: &exitCode,
		}
		data, _ := json.Marshal(res)
		return mcp.NewToolResultText(string(data)), nil
	})

	s.AddTool(mcp.NewTool("validate_code",
		mcp.WithString("code", mcp.Required()),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultText(`{"allowed": true}`), nil
	})

	s.AddResource(mcp.NewResource("test://static", "static", mcp.WithResourceDescription("A static resource.")),
		func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
			return []mcp.ResourceContents{
				mcp.TextResourceContents{URI: request.Params.URI, MIMEType: "text/plain", Text: "static content"},
			}, nil
		})

	ts := server.NewTestStreamableHTTPServer(s)
	t.Cleanup(ts.Close)
	return ts.URL + "/mcp"
}

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestListTools(t *testing.T) {
	url := newTestServer(t)

	out, _, err := runCLI(t, "--server", url, "list-tools")
	require.NoError(t, err)
	for _, tool := range []string{"echo", "run_command", "validate_code"} {
		assert.Contains(t, out, tool)
	}
}

func TestShowTool(t *testing.T) {
	url := newTestServer(t)

	out, _, err := runCLI(t, "--server", url, "show-tool", "echo")
	require.NoError(t, err)
	assert.Contains(t, out, "Echoes its input.")
	assert.Contains(t, out, "--text (string, required)")

	_, _, err = runCLI(t, "--server", url, "show-tool", "missing")
	assert.ErrorContains(t, err, "tool not found")
}

func TestTool(t *testing.T) {
	url := newTestServer(t)

	out, _, err := runCLI(t, "--server", url, "tool", "echo", "--text", "hello", "--items", `["a","b"]`)
	require.NoError(t, err)
	assert.Equal(t, "hello 2\n", out)

	out, _, err = runCLI(t, "tool", "echo", "--text=inline", "--server", url)
	require.NoError(t, err)
	assert.Equal(t, "inline 0\n", out)

	_, _, err = runCLI(t, "--server", url, "tool", "echo")
	assert.ErrorContains(t, err, "tool returned an error")
}

func TestParseToolArgs(t *testing.T) {
	name, params, err := parseToolArgs([]string{"get_event_logs", "--UNIT", "sshd", "--LINES=20"})
	require.NoError(t, err)
	assert.Equal(t, "get_event_logs", name)
	assert.Equal(t, map[string]any{"UNIT": "sshd", "LINES": "20"}, params)

	_, _, err = parseToolArgs([]string{"tool", "--UNIT"})
	assert.ErrorContains(t, err, "missing value")

	_, _, err = parseToolArgs([]string{"tool", "extra", "args"})
	assert.ErrorContains(t, err, "unexpected argument")

	name, _, err = parseToolArgs([]string{"--help"})
	require.NoError(t, err)
	assert.Empty(t, name)

	_, _, err = parseToolArgs([]string{"--UNIT", "sshd"})
	assert.ErrorContains(t, err, "missing tool name")
}

func TestRun(t *testing.T) {
	url := newTestServer(t)

	out, errOut, err := runCLI(t, "--server", url, "run", "uname -a", "--timeout", "10")
	require.NoError(t, err)
	assert.Equal(t, "ran uname -a with timeout 10\n", out)
	assert.Equal(t, "warning\n", errOut)

	_, _, err = runCLI(t, "--server", url, "run", "fail")
	var exitErr *exitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 7, exitErr.code)
}

func TestValidate(t *testing.T) {
	url := newTestServer(t)

	out, _, err := runCLI(t, "--server", url, "validate", "Get-Process")
	require.NoError(t, err)
	assert.Contains(t, out, `"allowed": true`)
}

func TestResources(t *testing.T) {
	url := newTestServer(t)

	out, _, err := runCLI(t, "--server", url, "list-resources")
	require.NoError(t, err)
	assert.Equal(t, "test://static\n", out)

	out, _, err = runCLI(t, "--server", url, "show-resource", "test://static")
	require.NoError(t, err)
	assert.Equal(t, "A static resource.\n", out)

	out, _, err = runCLI(t, "--server", url, "resource", "test://static")
	require.NoError(t, err)
	assert.Equal(t, "static content", out)
}

func TestUnreachableServer(t *testing.T) {
	_, _, err := runCLI(t, "--server", "http://127.0.0.1:1/mcp", "--request-timeout", "2s", "list-tools")
	assert.Error(t, err)
}
