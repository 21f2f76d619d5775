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
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/SUSE/scriptguard-mcp/executor"
	"github.com/SUSE/scriptguard-mcp/templates"
)

// query is a configured tool with its parsed command template.
type query struct {
	item QueryItem
	tmpl *templates.Template
}

// parseQueries parses the command templates of all configured queries.
// Every placeholder must be quoted, so that parameters can only ever be
// data.
func parseQueries(items []QueryItem) ([]query, error) {
	queries := make([]query, 0, len(items))
	for _, item := range items {
		tmpl, err := templates.Parse(item.Name, item.Command)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", item.Name, err)
		}
		for _, ph := range tmpl.Placeholders() {
			if ph.Mode != templates.ModeQuote {
				return nil, fmt.Errorf("query %s: placeholder %s must use the quote mode ({{%s!quote}})", item.Name, ph.Key, ph.Key)
			}
		}
		queries = append(queries, query{item: item, tmpl: tmpl})
	}
	return queries, nil
}

// registerQueryTools registers one tool per configured query. Placeholders
// of the command become string parameters; those without a default are
// required.
func (a *app) registerQueryTools(mcpServer *server.MCPServer) {
	for _, q := range a.queries {
		q := q
		toolOptions := []mcp.ToolOption{mcp.WithDescription(q.item.Description)}
		for _, ph := range q.tmpl.Placeholders() {
			opts := []mcp.PropertyOption{mcp.Description(fmt.Sprintf("Parameter: %s", ph.Key))}
			if ph.HasDefault {
				opts = append(opts, mcp.DefaultString(ph.Default))
			} else {
				opts = append(opts, mcp.Required())
			}
			toolOptions = append(toolOptions, mcp.WithString(ph.Key, opts...))
		}
		tool := mcp.NewTool(q.item.Name, toolOptions...)

		mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			log.Printf("Handling request for tool: %s", q.item.Name)

			params := make(templates.Parameters)
			for _, ph := range q.tmpl.Placeholders() {
				if v, ok := request.GetArguments()[ph.Key].(string); ok {
					params[ph.Key] = v
				}
			}
			if a.verbose {
				log.Printf("Tool parameters: %v", params)
			}
			code, err := q.tmpl.Render(a.catalog.Dialect(), params)
			if err != nil {
				return toolFailure(q.item.Name, err), nil
			}

			timeout := q.item.TimeoutSeconds
			if timeout <= 0 {
				timeout = a.defaultTimeout
			}
			if q.item.Async {
				return a.startAsync(ctx, q.item.Name, code, timeout, true)
			}
			return a.runQuery(ctx, q.item.Name, code, timeout)
		})

		logMessage := fmt.Sprintf("Registered tool: %s", q.item.Name)
		if q.item.Async {
			logMessage += " (Async)"
		}
		if q.item.TimeoutSeconds > 0 {
			logMessage += fmt.Sprintf(" (Timeout: %ds)", q.item.TimeoutSeconds)
		}
		log.Println(logMessage)
	}
}

// runQuery runs a query synchronously. Unlike run_command it returns plain
// stdout and treats a nonzero exit code as a failure.
func (a *app) runQuery(ctx context.Context, name, code string, timeout int) (*mcp.CallToolResult, error) {
	res, err := a.engine.Execute(ctx, code, timeout, &toolObserver{label: name, verbose: a.verbose})
	if err != nil {
		return toolFailure(name, err), nil
	}
	if failure := queryFailure(res, timeout); failure != "" {
		log.Printf("ERROR: Error executing query '%s': %s", name, failure)
		return mcp.NewToolResultError(fmt.Sprintf("Command failed: %s. Output: %s%s", failure, res.Stdout, res.Stderr)), nil
	}
	log.Printf("Successfully executed tool '%s', output: %d bytes, %d lines, duration: %s",
		name, len(res.Stdout), countLines(res.Stdout), time.Duration(res.DurationMs)*time.Millisecond)
	return mcp.NewToolResultText(res.Stdout), nil
}

func queryFailure(res *executor.Result, timeout int) string {
	switch {
	case res.TimedOut:
		return fmt.Sprintf("command timed out after %d seconds", timeout)
	case res.ExitCode == nil:
		return "command was terminated by a signal"
	case *res.ExitCode != 0:
		return fmt.Sprintf("exit code %d", *res.ExitCode)
	}
	return ""
}
