// Copyright (c) 2025 Vojtech Pavlik <vojtech@suse.com>
//
// Created using AI tools
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// registerScriptTools registers the tools that review and touch up
// generated scripts below the output root.
func (a *app) registerScriptTools(mcpServer *server.MCPServer) {
	listScriptsTool := mcp.NewTool("ListScripts",
		mcp.WithDescription("Lists a directory below the output root."),
		mcp.WithString("path", mcp.Description("Directory relative to the output root."), mcp.DefaultString(".")))
	mcpServer.AddTool(listScriptsTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path := request.GetString("path", ".")
		if a.verbose {
			log.Printf("Handling ListScripts request for path: %s", path)
		}
		return a.listScripts(path), nil
	})
	log.Printf("Registered built-in script tool: %s", listScriptsTool.Name)

	readScriptTool := mcp.NewTool("ReadScript",
		mcp.WithDescription("Reads a generated script below the output root."),
		mcp.WithString("path", mcp.Required(), mcp.Description("File relative to the output root.")))
	mcpServer.AddTool(readScriptTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path, err := request.RequireString("path")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if a.verbose {
			log.Printf("Handling ReadScript request for path: %s", path)
		}
		content, err := a.writer.Read(path)
		if err != nil {
			return toolFailure("ReadScript", err), nil
		}
		return mcp.NewToolResultText(content), nil
	})
	log.Printf("Registered built-in script tool: %s", readScriptTool.Name)

	deleteScriptTool := mcp.NewTool("DeleteScript",
		mcp.WithDescription("Deletes a generated script or an empty directory below the output root."),
		mcp.WithString("path", mcp.Required(), mcp.Description("File or directory relative to the output root.")))
	mcpServer.AddTool(deleteScriptTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path, err := request.RequireString("path")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if a.verbose {
			log.Printf("Handling DeleteScript request for path: %s", path)
		}
		if err := a.writer.Remove(path); err != nil {
			return toolFailure("DeleteScript", err), nil
		}
		return mcp.NewToolResultText("Deleted successfully."), nil
	})
	log.Printf("Registered built-in script tool: %s", deleteScriptTool.Name)

	createDirectoryTool := mcp.NewTool("CreateDirectory",
		mcp.WithDescription("Creates a directory, and its parents, below the output root."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Directory relative to the output root.")))
	mcpServer.AddTool(createDirectoryTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path, err := request.RequireString("path")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if a.verbose {
			log.Printf("Handling CreateDirectory request for path: %s", path)
		}
		if _, err := a.writer.MkdirAll(path); err != nil {
			return toolFailure("CreateDirectory", err), nil
		}
		return mcp.NewToolResultText("Directory created successfully."), nil
	})
	log.Printf("Registered built-in script tool: %s", createDirectoryTool.Name)

	patchScriptTool := mcp.NewTool("PatchScript",
		mcp.WithDescription("Applies a unified diff to one generated script below the output root. Added lines are checked against the denylist before the file is changed."),
		mcp.WithString("path", mcp.Required(), mcp.Description("File relative to the output root. File names inside the diff are ignored.")),
		mcp.WithString("diff", mcp.Required(), mcp.Description("A unified diff with ---/+++ headers and @@ hunks for a single file.")))
	mcpServer.AddTool(patchScriptTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path, err := request.RequireString("path")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		diff, err := request.RequireString("diff")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if a.verbose {
			log.Printf("Handling PatchScript request for path: %s", path)
		}
		full, err := a.writer.Patch(path, diff, a.validator.Check)
		if err != nil {
			return toolFailure("PatchScript", err), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Patched %s successfully.", full)), nil
	})
	log.Printf("Registered built-in script tool: %s", patchScriptTool.Name)
}

func (a *app) listScripts(path string) *mcp.CallToolResult {
	entries, err := a.writer.List(path)
	if err != nil {
		return toolFailure("ListScripts", err)
	}
	if len(entries) == 0 {
		return mcp.NewToolResultText("Directory is empty.")
	}
	var out strings.Builder
	for _, entry := range entries {
		if entry.IsDir {
			fmt.Fprintf(&out, "%s/\n", entry.Name)
		} else {
			fmt.Fprintf(&out, "%s\t%d bytes\n", entry.Name, entry.Size)
		}
	}
	return mcp.NewToolResultText(out.String())
}
